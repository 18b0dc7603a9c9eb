/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisMementoTTL = 30 * 24 * time.Hour

// RedisMixerMemento is the multi-instance MixerMemento: per-partition
// volume and replay-gain mode survive a process restart (or move to
// another instance behind the same Redis), grounded on
// internal/leadership/election.go's redis.NewClient/context-per-call
// usage of github.com/redis/go-redis/v9.
type RedisMixerMemento struct {
	client    *redis.Client
	keyPrefix string
	logger    zerolog.Logger
}

// NewRedisMixerMemento wraps an already-constructed client. keyPrefix
// namespaces the keys this memento writes, e.g. "grimnir:mixer".
func NewRedisMixerMemento(client *redis.Client, keyPrefix string, logger zerolog.Logger) *RedisMixerMemento {
	if keyPrefix == "" {
		keyPrefix = "grimnir:mixer"
	}
	return &RedisMixerMemento{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With().Str("component", "mixer_memento").Logger(),
	}
}

func (m *RedisMixerMemento) volumeKey(partition string) string {
	return m.keyPrefix + ":" + partition + ":volume"
}

func (m *RedisMixerMemento) rgModeKey(partition string) string {
	return m.keyPrefix + ":" + partition + ":replaygain"
}

// LoadVolume reads the last saved volume for partition. A missing key or
// a Redis error both resolve to ok=false, matching InMemoryMixerMemento's
// "nothing saved yet" semantics rather than surfacing transient Redis
// outages to the caller.
func (m *RedisMixerMemento) LoadVolume(partition string) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := m.client.Get(ctx, m.volumeKey(partition)).Result()
	if err != nil {
		if err != redis.Nil {
			m.logger.Warn().Err(err).Str("partition", partition).Msg("load volume")
		}
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// SaveVolume persists volume for partition with a generous TTL so a
// decommissioned partition's key eventually expires on its own.
func (m *RedisMixerMemento) SaveVolume(partition string, volume int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.client.Set(ctx, m.volumeKey(partition), strconv.Itoa(volume), redisMementoTTL).Err(); err != nil {
		m.logger.Warn().Err(err).Str("partition", partition).Msg("save volume")
	}
}

// LoadReplayGainMode reads the last saved replay-gain mode for partition.
func (m *RedisMixerMemento) LoadReplayGainMode(partition string) (ReplayGainMode, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s, err := m.client.Get(ctx, m.rgModeKey(partition)).Result()
	if err != nil {
		if err != redis.Nil {
			m.logger.Warn().Err(err).Str("partition", partition).Msg("load replay-gain mode")
		}
		return ReplayGainOff, false
	}
	mode, ok := parseReplayGainMode(s)
	if !ok {
		return ReplayGainOff, false
	}
	return mode, true
}

// SaveReplayGainMode persists mode for partition.
func (m *RedisMixerMemento) SaveReplayGainMode(partition string, mode ReplayGainMode) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.client.Set(ctx, m.rgModeKey(partition), mode.String(), redisMementoTTL).Err(); err != nil {
		m.logger.Warn().Err(err).Str("partition", partition).Msg("save replay-gain mode")
	}
}

func parseReplayGainMode(s string) (ReplayGainMode, bool) {
	switch s {
	case "off":
		return ReplayGainOff, true
	case "track":
		return ReplayGainTrack, true
	case "album":
		return ReplayGainAlbum, true
	case "auto":
		return ReplayGainAuto, true
	default:
		return ReplayGainOff, false
	}
}
