/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeDecoder is a DecoderPlugin double: Start spawns a goroutine that
// pushes chunkCount chunks of chunkBytes bytes each into the pipe, pausing
// pushDelay between them, then closes done. Stop is idempotent and safe to
// call whether or not decoding has already finished.
type fakeDecoder struct {
	format     AudioFormat
	chunkCount int
	chunkBytes int
	pushDelay  time.Duration
	startErr   error

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan error
}

func newFakeDecoder(chunkCount, chunkBytes int) *fakeDecoder {
	return &fakeDecoder{
		format:     testFormat(),
		chunkCount: chunkCount,
		chunkBytes: chunkBytes,
		stopCh:     make(chan struct{}),
		done:       make(chan error, 1),
	}
}

func (d *fakeDecoder) Start(song *DetachedSong, pipe *MusicPipe) error {
	d.mu.Lock()
	if d.startErr != nil {
		err := d.startErr
		d.mu.Unlock()
		return err
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		for i := 0; i < d.chunkCount; i++ {
			select {
			case <-d.stopCh:
				d.done <- nil
				return
			default:
			}
			data := make([]byte, d.chunkBytes)
			for j := range data {
				data[j] = byte(i + 1)
			}
			if err := pipe.Push(NewChunk(d.format, data)); err != nil {
				d.done <- nil
				return
			}
			if d.pushDelay > 0 {
				time.Sleep(d.pushDelay)
			}
		}
		d.done <- nil
	}()
	return nil
}

func (d *fakeDecoder) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	close(d.stopCh)
}

func (d *fakeDecoder) Seek(t float64) error { return nil }
func (d *fakeDecoder) Format() AudioFormat  { return d.format }
func (d *fakeDecoder) Done() <-chan error   { return d.done }

func (d *fakeDecoder) wasStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// fakeOutputPlugin is an OutputPlugin double recording every byte handed to
// Play, optionally failing Open once with openErr.
type fakeOutputPlugin struct {
	name    string
	openErr error

	mu     sync.Mutex
	opened bool
	closed bool
	format AudioFormat
	played []byte
}

func (p *fakeOutputPlugin) Name() string               { return p.name }
func (p *fakeOutputPlugin) SupportsEnableDisable() bool { return true }
func (p *fakeOutputPlugin) SupportsPause() bool         { return true }
func (p *fakeOutputPlugin) Enable() error               { return nil }
func (p *fakeOutputPlugin) Disable() error              { return nil }

func (p *fakeOutputPlugin) Open(format AudioFormat) error {
	if p.openErr != nil {
		return p.openErr
	}
	p.mu.Lock()
	p.opened = true
	p.format = format
	p.mu.Unlock()
	return nil
}

func (p *fakeOutputPlugin) Close(drain bool) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakeOutputPlugin) Play(data []byte) (int, error) {
	p.mu.Lock()
	p.played = append(p.played, data...)
	p.mu.Unlock()
	return len(data), nil
}

func (p *fakeOutputPlugin) Drain() error  { return nil }
func (p *fakeOutputPlugin) Cancel() error { return nil }

func (p *fakeOutputPlugin) BeginPause() error           { return nil }
func (p *fakeOutputPlugin) IteratePause() (bool, error) { return true, nil }
func (p *fakeOutputPlugin) EndPause() error             { return nil }

func (p *fakeOutputPlugin) Delay() time.Duration  { return 0 }
func (p *fakeOutputPlugin) Interrupt()            {}
func (p *fakeOutputPlugin) SendTag(tag Tag) error { return nil }

func (p *fakeOutputPlugin) snapshot() (opened, closed bool, played []byte, format AudioFormat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.played))
	copy(out, p.played)
	return p.opened, p.closed, out, p.format
}

// newTestOutput wires a fakeOutputPlugin behind an enabled OutputController
// registered with outputs, mirroring how Partition wires real devices.
func newTestOutput(t *testing.T, outputs *MultipleOutputs, name string, openErr error) *fakeOutputPlugin {
	t.Helper()
	plugin := &fakeOutputPlugin{name: name, openErr: openErr}
	ctrl := NewOutputController(name, plugin, nil, false, outputs, zerolog.Nop(), nil, 50*time.Millisecond)
	outputs.Add(ctrl, nil, nil, nil)
	ctrl.LockSetEnabled(true)
	t.Cleanup(ctrl.BeginDestroy)
	return plugin
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not satisfied within timeout")
}

func newTestPlayerControl(t *testing.T, outputs *MultipleOutputs, newDecoder func() DecoderPlugin) *PlayerControl {
	t.Helper()
	pc := NewPlayerControl(PlayerControlConfig{
		Name:       "test",
		Outputs:    outputs,
		NewDecoder: newDecoder,
		Logger:     zerolog.Nop(),
	})
	pc.Start()
	t.Cleanup(pc.Kill)
	return pc
}

func TestPlayerControlPlayThenNaturalStopIsGapless(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	plugin := newTestOutput(t, outputs, "main", nil)

	const chunks, chunkBytes = 5, 400
	pc := newTestPlayerControl(t, outputs, func() DecoderPlugin {
		return newFakeDecoder(chunks, chunkBytes)
	})

	if err := pc.Play(&DetachedSong{URI: "song-a"}, 0); err != nil {
		t.Fatalf("play: %v", err)
	}
	if pc.State() != PlayerPlay {
		t.Fatalf("expected state Play right after Play, got %v", pc.State())
	}

	waitFor(t, time.Second, func() bool { return pc.State() == PlayerStop })
	waitFor(t, time.Second, func() bool {
		_, _, played, _ := plugin.snapshot()
		return len(played) == chunks*chunkBytes
	})

	opened, _, played, format := plugin.snapshot()
	if !opened {
		t.Fatal("expected output to have opened")
	}
	if format != testFormat() {
		t.Fatalf("unexpected negotiated format: %v", format)
	}
	for i := 0; i < chunks; i++ {
		want := byte(i + 1)
		for j := 0; j < chunkBytes; j++ {
			if got := played[i*chunkBytes+j]; got != want {
				t.Fatalf("chunk %d corrupted or reordered at byte %d: got %d want %d", i, j, got, want)
			}
		}
	}
}

func TestPlayerControlStopMidPlaybackStopsDecoder(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	newTestOutput(t, outputs, "main", nil)

	var decMu sync.Mutex
	var dec *fakeDecoder
	pc := newTestPlayerControl(t, outputs, func() DecoderPlugin {
		decMu.Lock()
		dec = newFakeDecoder(200, 100)
		dec.pushDelay = 5 * time.Millisecond
		d := dec
		decMu.Unlock()
		return d
	})

	if err := pc.Play(&DetachedSong{URI: "song-a"}, 0); err != nil {
		t.Fatalf("play: %v", err)
	}

	pc.LockStop()
	if pc.State() != PlayerStop {
		t.Fatalf("expected Stop after LockStop, got %v", pc.State())
	}

	decMu.Lock()
	stopped := dec.wasStopped()
	decMu.Unlock()
	if !stopped {
		t.Fatal("expected explicit Stop to cancel the in-flight decoder")
	}
}

func TestPlayerControlSeekStartsFreshDecoder(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	newTestOutput(t, outputs, "main", nil)

	var mu sync.Mutex
	var decoders []*fakeDecoder
	pc := newTestPlayerControl(t, outputs, func() DecoderPlugin {
		d := newFakeDecoder(50, 100)
		d.pushDelay = 5 * time.Millisecond
		mu.Lock()
		decoders = append(decoders, d)
		mu.Unlock()
		return d
	})

	if err := pc.Play(&DetachedSong{URI: "song-a"}, 0); err != nil {
		t.Fatalf("play: %v", err)
	}

	if err := pc.LockSeek(2 * time.Second); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if pc.State() != PlayerPlay {
		t.Fatalf("expected Play to resume after seek, got %v", pc.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(decoders) != 2 {
		t.Fatalf("expected seek to replace the decoder, got %d decoders", len(decoders))
	}
	if !decoders[0].wasStopped() {
		t.Fatal("expected the pre-seek decoder to have been stopped")
	}
}

func TestPlayerControlPauseIsIdempotent(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	newTestOutput(t, outputs, "main", nil)

	pc := newTestPlayerControl(t, outputs, func() DecoderPlugin {
		d := newFakeDecoder(200, 100)
		d.pushDelay = 5 * time.Millisecond
		return d
	})

	if err := pc.Play(&DetachedSong{URI: "song-a"}, 0); err != nil {
		t.Fatalf("play: %v", err)
	}

	pc.LockSetPause(true)
	if pc.State() != PlayerPause {
		t.Fatalf("expected Pause, got %v", pc.State())
	}
	pc.LockSetPause(true)
	if pc.State() != PlayerPause {
		t.Fatalf("expected repeated pause to be a no-op, got %v", pc.State())
	}

	pc.LockSetPause(false)
	if pc.State() != PlayerPlay {
		t.Fatalf("expected Play after unpausing, got %v", pc.State())
	}
}

func TestPlayerControlOneOutputFailureDoesNotAffectAnother(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	good := newTestOutput(t, outputs, "good", nil)
	newTestOutput(t, outputs, "bad", errors.New("device unavailable"))

	const chunks, chunkBytes = 3, 200
	pc := newTestPlayerControl(t, outputs, func() DecoderPlugin {
		return newFakeDecoder(chunks, chunkBytes)
	})

	if err := pc.Play(&DetachedSong{URI: "song-a"}, 0); err != nil {
		t.Fatalf("play: %v", err)
	}

	waitFor(t, time.Second, func() bool { return pc.State() == PlayerStop })
	waitFor(t, time.Second, func() bool {
		_, _, played, _ := good.snapshot()
		return len(played) == chunks*chunkBytes
	})

	if outputs.LastError("bad") == nil {
		t.Fatal("expected the failing output's open error to be recorded")
	}
	if outputs.LastError("good") != nil {
		t.Fatalf("expected the healthy output to have no recorded error, got %v", outputs.LastError("good"))
	}
}

func TestPlayerControlKillStopsThePlayerThread(t *testing.T) {
	outputs := NewMultipleOutputs(zerolog.Nop())
	newTestOutput(t, outputs, "main", nil)

	pc := NewPlayerControl(PlayerControlConfig{
		Name:       "test",
		Outputs:    outputs,
		NewDecoder: func() DecoderPlugin { return newFakeDecoder(1, 10) },
		Logger:     zerolog.Nop(),
	})
	pc.Start()

	pc.Kill()

	select {
	case <-pc.done:
	default:
		t.Fatal("expected pc.done to be closed after Kill")
	}
}
