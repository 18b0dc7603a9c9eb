/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPartition(t *testing.T, newDecoder func() DecoderPlugin) (*Partition, *fakeOutputPlugin) {
	t.Helper()
	outputs := NewMultipleOutputs(zerolog.Nop())
	plugin := newTestOutput(t, outputs, "main", nil)

	p := NewPartition(PartitionConfig{
		Name:       "default",
		Outputs:    outputs,
		NewDecoder: newDecoder,
		Logger:     zerolog.Nop(),
	})
	p.Start()
	t.Cleanup(p.Kill)
	return p, plugin
}

func TestPartitionSyncWithPlayerAdvancesCursorOnGaplessPromotion(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(2, 100) })

	p.AppendURI(DetachedSong{URI: "a"})
	p.AppendURI(DetachedSong{URI: "b"})

	if err := p.PlayPosition(0); err != nil {
		t.Fatalf("play position: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		pos, ok := p.pc.CurrentSongPosition()
		return ok && pos == 0
	})

	// Simulate the player thread having autonomously promoted to song b
	// (gapless auto-advance) without the queue's cursor having moved yet.
	p.pc.mu.Lock()
	p.pc.currentPos = 1
	p.pc.mu.Unlock()

	p.SyncWithPlayer()

	_, pos, ok := p.queue.CurrentSong()
	if !ok || pos != 1 {
		t.Fatalf("expected queue cursor pulled forward to 1, got pos=%d ok=%v", pos, ok)
	}
}

func TestPartitionSyncWithPlayerNoopWhenCursorAlreadyMatches(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(2, 100) })

	p.AppendURI(DetachedSong{URI: "a"})
	if err := p.PlayPosition(0); err != nil {
		t.Fatalf("play position: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		pos, ok := p.pc.CurrentSongPosition()
		return ok && pos == 0
	})

	p.SyncWithPlayer()

	_, pos, ok := p.queue.CurrentSong()
	if !ok || pos != 0 {
		t.Fatalf("expected cursor to remain at 0, got pos=%d ok=%v", pos, ok)
	}
}

func TestPartitionBorderPauseDowngradesSingleOneShot(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	p.AppendURI(DetachedSong{URI: "a"})
	p.SetSingle(SingleOneShot)

	p.BorderPause()

	_, _, single, _ := p.queue.Options()
	if single != SingleOff {
		t.Fatalf("expected SingleOneShot downgraded to SingleOff, got %v", single)
	}
}

func TestPartitionBorderPauseDowngradesConsumeOneShot(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	p.AppendURI(DetachedSong{URI: "a"})
	p.SetConsume(ConsumeOneShot)

	p.BorderPause()

	_, _, _, consume := p.queue.Options()
	if consume != ConsumeOff {
		t.Fatalf("expected ConsumeOneShot downgraded to ConsumeOff, got %v", consume)
	}
}

func TestPartitionEmitsIdlePlaylistOnQueueModification(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	sub := p.Idle().Subscribe()
	defer p.Idle().Unsubscribe(sub)

	p.AppendURI(DetachedSong{URI: "a"})
	mask := p.Idle().Dispatch()
	if mask&IdlePlaylist == 0 {
		t.Fatalf("expected IdlePlaylist bit set, got %b", mask)
	}
}

func TestPartitionEmitsIdleOptionsOnRandomToggle(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	p.SetRandom(true)
	mask := p.Idle().Dispatch()
	if mask&IdleOptions == 0 {
		t.Fatalf("expected IdleOptions bit set after SetRandom, got %b", mask)
	}
}

func TestPartitionEmitsIdleMixerOnVolumeChange(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	p.OnMixerVolumeChanged(nil, 50)
	mask := p.Idle().Dispatch()
	if mask&IdleMixer == 0 {
		t.Fatalf("expected IdleMixer bit set, got %b", mask)
	}
}

func TestPartitionUpdateEffectiveReplayGainModeResolvesAutoAgainstRandomOrder(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin { return newFakeDecoder(1, 10) })

	p.SetReplayGainMode(ReplayGainAuto)
	if got := ResolveReplayGainMode(ReplayGainAuto, p.queue.IsRandom()); got != ReplayGainAlbum {
		t.Fatalf("expected AUTO to resolve to ALBUM under sequential order, got %v", got)
	}

	p.SetRandom(true)
	if got := ResolveReplayGainMode(ReplayGainAuto, p.queue.IsRandom()); got != ReplayGainTrack {
		t.Fatalf("expected AUTO to resolve to TRACK under random order, got %v", got)
	}
}

func TestPartitionStageLookaheadHandsOffQueuedNextSong(t *testing.T) {
	p, _ := newTestPartition(t, func() DecoderPlugin {
		d := newFakeDecoder(50, 100)
		d.pushDelay = 5 * time.Millisecond
		return d
	})

	p.AppendURI(DetachedSong{URI: "a"})
	p.AppendURI(DetachedSong{URI: "b"})

	if err := p.PlayPosition(0); err != nil {
		t.Fatalf("play position: %v", err)
	}

	waitFor(t, time.Second, func() bool { return p.pc.State() == PlayerPlay })
	p.stageLookahead()

	waitFor(t, time.Second, func() bool { return p.pc.HasNextSong() })
}
