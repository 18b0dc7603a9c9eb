/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"math/rand"
	"sync"
)

// SingleMode is a three-state single option: OFF plays through the
// queue normally, ON stops (or loops, with repeat) after the current song,
// ONE_SHOT behaves like ON but reverts itself to OFF once a border pause
// triggers it.
type SingleMode int

const (
	SingleOff SingleMode = iota
	SingleOn
	SingleOneShot
)

// ConsumeMode is the same three-state shape as SingleMode, applied to
// whether a finished song is removed from the queue.
type ConsumeMode int

const (
	ConsumeOff ConsumeMode = iota
	ConsumeOn
	ConsumeOneShot
)

// QueueListener receives queue mutation notifications; Partition
// implements this.
type QueueListener interface {
	OnQueueModified()
	OnQueueOptionsChanged()
	OnQueueSongStarted(pos int)
}

type queueEntry struct {
	id       int
	song     DetachedSong
	priority uint8
}

// Queue is the play queue Partition owns: positions are a dense 0-based
// index into entries, ids are stable across reordering.
type Queue struct {
	mu      sync.Mutex
	entries []*queueEntry
	nextID  int

	repeat  bool
	random  bool
	single  SingleMode
	consume ConsumeMode

	// order holds a permutation of entry indices used when random is
	// true; order[cursor] is the currently playing entry. When random is
	// false, order is nil and position == index directly.
	order  []int
	cursor int // index into order (random) or into entries (sequential); -1 if nothing has started

	listener QueueListener
}

func NewQueue(listener QueueListener) *Queue {
	return &Queue{cursor: -1, listener: listener}
}

func (q *Queue) notifyModified() {
	if q.listener != nil {
		q.listener.OnQueueModified()
	}
}

func (q *Queue) notifyOptions() {
	if q.listener != nil {
		q.listener.OnQueueOptionsChanged()
	}
}

// Length returns the number of songs in the queue.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// AppendURI enqueues song at the tail and returns its stable id.
func (q *Queue) AppendURI(song DetachedSong) int {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.entries = append(q.entries, &queueEntry{id: id, song: song})
	if q.random {
		q.order = append(q.order, len(q.entries)-1)
	}
	q.mu.Unlock()
	q.notifyModified()
	return id
}

func (q *Queue) indexOfPosition(pos int) int {
	if pos < 0 || pos >= len(q.entries) {
		return -1
	}
	return pos
}

func (q *Queue) indexOfID(id int) int {
	for i, e := range q.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

// DeletePosition removes the song at pos. Returns ErrArgument if out of
// range.
func (q *Queue) DeletePosition(pos int) error {
	q.mu.Lock()
	idx := q.indexOfPosition(pos)
	if idx < 0 {
		q.mu.Unlock()
		return ErrArgument
	}
	q.removeIndexLocked(idx)
	q.mu.Unlock()
	q.notifyModified()
	return nil
}

// DeleteId removes the song with the given stable id.
func (q *Queue) DeleteId(id int) error {
	q.mu.Lock()
	idx := q.indexOfID(id)
	if idx < 0 {
		q.mu.Unlock()
		return ErrArgument
	}
	q.removeIndexLocked(idx)
	q.mu.Unlock()
	q.notifyModified()
	return nil
}

// DeleteRange removes positions [start, end). An empty range is a no-op.
func (q *Queue) DeleteRange(start, end int) error {
	q.mu.Lock()
	if start < 0 || end < start || end > len(q.entries) {
		q.mu.Unlock()
		return ErrArgument
	}
	if start == end {
		q.mu.Unlock()
		return nil
	}
	for i := end - 1; i >= start; i-- {
		q.removeIndexLocked(i)
	}
	q.mu.Unlock()
	q.notifyModified()
	return nil
}

// removeIndexLocked removes entries[idx], fixing up cursor and (if random)
// the order permutation. Caller holds q.mu.
func (q *Queue) removeIndexLocked(idx int) {
	removedID := q.entries[idx].id
	q.entries = append(q.entries[:idx], q.entries[idx+1:]...)

	if q.random {
		newOrder := make([]int, 0, len(q.order))
		for _, oi := range q.order {
			switch {
			case oi == idx:
				continue
			case oi > idx:
				newOrder = append(newOrder, oi-1)
			default:
				newOrder = append(newOrder, oi)
			}
		}
		q.order = newOrder
	}
	_ = removedID
	if q.cursor >= len(q.entries) {
		q.cursor = len(q.entries) - 1
	}
}

// Shuffle randomly permutes the songs in positions [start, end), leaving
// the rest of the queue untouched. This mutates physical position, unlike
// the random-mode playback order.
func (q *Queue) Shuffle(start, end int) error {
	q.mu.Lock()
	if start < 0 || end < start || end > len(q.entries) {
		q.mu.Unlock()
		return ErrArgument
	}
	sub := q.entries[start:end]
	rand.Shuffle(len(sub), func(i, j int) { sub[i], sub[j] = sub[j], sub[i] })
	q.mu.Unlock()
	q.notifyModified()
	return nil
}

// MoveRange relocates positions [start, end) so the block begins at to.
// from.start == to is a no-op.
func (q *Queue) MoveRange(start, end, to int) error {
	q.mu.Lock()
	if start < 0 || end < start || end > len(q.entries) || to < 0 || to > len(q.entries)-(end-start) {
		q.mu.Unlock()
		return ErrArgument
	}
	if start == to {
		q.mu.Unlock()
		return nil
	}
	block := append([]*queueEntry(nil), q.entries[start:end]...)
	rest := append([]*queueEntry(nil), q.entries[:start]...)
	rest = append(rest, q.entries[end:]...)

	out := make([]*queueEntry, 0, len(q.entries))
	out = append(out, rest[:to]...)
	out = append(out, block...)
	out = append(out, rest[to:]...)
	q.entries = out
	q.rebuildOrderLocked()
	q.mu.Unlock()
	q.notifyModified()
	return nil
}

func (q *Queue) rebuildOrderLocked() {
	if !q.random {
		return
	}
	if len(q.order) != len(q.entries) {
		q.order = make([]int, len(q.entries))
		for i := range q.order {
			q.order[i] = i
		}
	}
}

// SwapPositions exchanges the songs at positions a and b.
func (q *Queue) SwapPositions(a, b int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ia, ib := q.indexOfPosition(a), q.indexOfPosition(b)
	if ia < 0 || ib < 0 {
		return ErrArgument
	}
	q.entries[ia], q.entries[ib] = q.entries[ib], q.entries[ia]
	return nil
}

// SwapIds exchanges the positions of the songs with the given stable ids.
func (q *Queue) SwapIds(idA, idB int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	ia, ib := q.indexOfID(idA), q.indexOfID(idB)
	if ia < 0 || ib < 0 {
		return ErrArgument
	}
	q.entries[ia], q.entries[ib] = q.entries[ib], q.entries[ia]
	return nil
}

// SetPriorityRange sets the playback priority (used to reorder random-mode
// selection) of positions [start, end).
func (q *Queue) SetPriorityRange(start, end int, priority uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if start < 0 || end < start || end > len(q.entries) {
		return ErrArgument
	}
	for i := start; i < end; i++ {
		q.entries[i].priority = priority
	}
	return nil
}

// SetPriorityId sets the priority of the song with the given id.
func (q *Queue) SetPriorityId(id int, priority uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOfID(id)
	if idx < 0 {
		return ErrArgument
	}
	q.entries[idx].priority = priority
	return nil
}

// ClearQueue empties the queue. The currently-playing song (if any) is
// dropped from the list but the player is not stopped by this call alone;
// Partition is responsible for issuing STOP if it wants that.
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	q.entries = nil
	q.order = nil
	q.cursor = -1
	q.mu.Unlock()
	q.notifyModified()
}

// StaleSong removes every queue entry matching uri except the one
// currently playing (if it happens to match), used when the out-of-scope
// database layer reports a song as no longer locatable.
func (q *Queue) StaleSong(uri string) {
	q.mu.Lock()
	currentIdx := q.currentIndexLocked()
	kept := q.entries[:0:0]
	for i, e := range q.entries {
		if e.song.URI == uri && i != currentIdx {
			continue
		}
		kept = append(kept, e)
	}
	changed := len(kept) != len(q.entries)
	q.entries = kept
	if changed && q.random {
		q.rebuildOrderLocked()
	}
	q.mu.Unlock()
	if changed {
		q.notifyModified()
	}
}

func (q *Queue) SetRepeat(v bool) {
	q.mu.Lock()
	changed := q.repeat != v
	q.repeat = v
	q.mu.Unlock()
	if changed {
		q.notifyOptions()
	}
}

func (q *Queue) SetRandom(v bool) {
	q.mu.Lock()
	changed := q.random != v
	q.random = v
	if changed && v {
		q.order = make([]int, len(q.entries))
		for i := range q.order {
			q.order[i] = i
		}
		rand.Shuffle(len(q.order), func(i, j int) { q.order[i], q.order[j] = q.order[j], q.order[i] })
	} else if changed && !v {
		q.order = nil
	}
	q.mu.Unlock()
	if changed {
		q.notifyOptions()
	}
}

func (q *Queue) SetSingle(v SingleMode) {
	q.mu.Lock()
	changed := q.single != v
	q.single = v
	q.mu.Unlock()
	if changed {
		q.notifyOptions()
	}
}

func (q *Queue) SetConsume(v ConsumeMode) {
	q.mu.Lock()
	changed := q.consume != v
	q.consume = v
	q.mu.Unlock()
	if changed {
		q.notifyOptions()
	}
}

func (q *Queue) Options() (repeat, random bool, single SingleMode, consume ConsumeMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.repeat, q.random, q.single, q.consume
}

func (q *Queue) IsRandom() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.random
}

// currentIndexLocked returns the entries index of the playing song, or -1.
func (q *Queue) currentIndexLocked() int {
	if q.cursor < 0 {
		return -1
	}
	if q.random {
		if q.cursor >= len(q.order) {
			return -1
		}
		return q.order[q.cursor]
	}
	if q.cursor >= len(q.entries) {
		return -1
	}
	return q.cursor
}

// CurrentSong returns the song at the current playback cursor.
func (q *Queue) CurrentSong() (*DetachedSong, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.currentIndexLocked()
	if idx < 0 {
		return nil, -1, false
	}
	return &q.entries[idx].song, idx, true
}

// PlayPosition moves the cursor to pos and returns its song.
func (q *Queue) PlayPosition(pos int) (*DetachedSong, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOfPosition(pos)
	if idx < 0 {
		return nil, ErrArgument
	}
	q.setCursorToIndexLocked(idx)
	return &q.entries[idx].song, nil
}

// PlayId moves the cursor to the song with the given id and returns it.
func (q *Queue) PlayId(id int) (*DetachedSong, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.indexOfID(id)
	if idx < 0 {
		return nil, ErrArgument
	}
	q.setCursorToIndexLocked(idx)
	return &q.entries[idx].song, nil
}

func (q *Queue) setCursorToIndexLocked(idx int) {
	if q.random {
		for i, oi := range q.order {
			if oi == idx {
				q.cursor = i
				return
			}
		}
		q.order = append(q.order, idx)
		q.cursor = len(q.order) - 1
		return
	}
	q.cursor = idx
}

// Advance runs the end-of-song transition: it applies
// consume (removing the finished song), checks single/repeat, and returns
// the next song to play, or ok=false if playback should return to STOP.
// oneShotCleared reports whether a ONE_SHOT single/consume setting reverted
// itself to OFF, so Partition can raise OPTIONS accordingly.
func (q *Queue) Advance() (song *DetachedSong, pos int, ok bool, oneShotCleared bool, border bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	finishedIdx := q.currentIndexLocked()
	if finishedIdx >= 0 && q.consume != ConsumeOff {
		q.removeIndexLocked(finishedIdx)
		if q.consume == ConsumeOneShot {
			q.consume = ConsumeOff
			oneShotCleared = true
		}
		finishedIdx = -1
	}

	stopAfterThis := q.single != SingleOff
	if q.single == SingleOneShot {
		q.single = SingleOff
		oneShotCleared = true
	}
	if stopAfterThis && !q.repeat {
		q.cursor = -1
		return nil, -1, false, oneShotCleared, false
	}
	// single+repeat: the queue would otherwise loop silently past its own
	// boundary; pause at the border instead so a client notices the wrap,
	// without moving the cursor off the song that just finished.
	if stopAfterThis && q.repeat {
		return nil, -1, false, oneShotCleared, true
	}

	nextCursor := q.cursor + 1
	if q.random {
		if nextCursor >= len(q.order) {
			if !q.repeat {
				q.cursor = -1
				return nil, -1, false, oneShotCleared, false
			}
			nextCursor = 0
		}
		q.cursor = nextCursor
		idx := q.order[q.cursor]
		if idx < 0 || idx >= len(q.entries) {
			return nil, -1, false, oneShotCleared, false
		}
		return &q.entries[idx].song, idx, true, oneShotCleared, false
	}

	if nextCursor >= len(q.entries) {
		if !q.repeat || len(q.entries) == 0 {
			q.cursor = -1
			return nil, -1, false, oneShotCleared, false
		}
		nextCursor = 0
	}
	q.cursor = nextCursor
	return &q.entries[nextCursor].song, nextCursor, true, oneShotCleared, false
}

// PeekNext returns the song that Advance would move to without mutating
// state, used by the player thread to prepare gapless/crossfade decoding
// ahead of the current song actually ending.
func (q *Queue) PeekNext() (*DetachedSong, int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.single != SingleOff && !q.repeat {
		return nil, -1, false
	}
	nextCursor := q.cursor + 1
	if q.random {
		if nextCursor >= len(q.order) {
			if !q.repeat || len(q.order) == 0 {
				return nil, -1, false
			}
			nextCursor = 0
		}
		idx := q.order[nextCursor]
		return &q.entries[idx].song, idx, true
	}
	if nextCursor >= len(q.entries) {
		if !q.repeat || len(q.entries) == 0 {
			return nil, -1, false
		}
		nextCursor = 0
	}
	return &q.entries[nextCursor].song, nextCursor, true
}
