/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"
	"time"
)

// DatabaseStats is the trivial collaborator surface stats reporting needs
// from the music database: library-wide counts and total playtime.
type DatabaseStats struct {
	ArtistCount int
	AlbumCount  int
	SongCount   int
	DbPlaytime  time.Duration
}

// DatabasePlugin is the out-of-scope music database collaborator Stats
// queries for library-wide counts; the engine package never implements
// one itself.
type DatabasePlugin interface {
	GetStats() (DatabaseStats, error)
	GetUpdateStamp() time.Time
}

// Stats tracks process uptime and cumulative playtime across every song a
// partition has finished, and caches the last DatabasePlugin query until
// Invalidate is called. The cache is a plain valid/invalid flag rather
// than a three-state machine, since this package has no update daemon
// running concurrently to race against.
type Stats struct {
	start time.Time
	db    DatabasePlugin

	mu       sync.Mutex
	playtime time.Duration
	songs    uint64

	cacheValid bool
	cacheErr   error
	cache      DatabaseStats
}

// NewStats records the current time as the process start and binds db (may
// be nil, in which case DatabaseStats always reports the zero value).
func NewStats(db DatabasePlugin) *Stats {
	return &Stats{start: time.Now(), db: db}
}

// Uptime returns how long the process has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.start)
}

// RecordSongPlayed accumulates d into the cumulative playtime total, called
// once per finished song from Partition's PlayerListener plumbing.
func (s *Stats) RecordSongPlayed(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > 0 {
		s.playtime += d
	}
	s.songs++
}

// Playtime returns the cumulative duration of every song played so far.
func (s *Stats) Playtime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playtime
}

// SongsPlayed returns the number of songs that have finished playing.
func (s *Stats) SongsPlayed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.songs
}

// Invalidate discards the cached DatabaseStats snapshot, forcing the next
// DatabaseStats call to re-query db. Called after a library update.
func (s *Stats) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheValid = false
}

// DatabaseStats returns db's stats, using the cached snapshot unless
// Invalidate has been called since the last query (or this is the first
// call). A failed query is cached too, so a broken database doesn't get
// re-queried on every status read.
func (s *Stats) DatabaseStats() (DatabaseStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheValid {
		return s.cache, s.cacheErr
	}
	if s.db == nil {
		s.cache, s.cacheErr = DatabaseStats{}, nil
		s.cacheValid = true
		return s.cache, s.cacheErr
	}
	s.cache, s.cacheErr = s.db.GetStats()
	s.cacheValid = true
	return s.cache, s.cacheErr
}
