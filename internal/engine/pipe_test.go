/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"testing"
	"time"
)

func testFormat() AudioFormat {
	return AudioFormat{SampleRate: 44100, Format: SampleFormatS16, Channels: 2}
}

func TestMusicPipeSingleConsumerFIFO(t *testing.T) {
	p := NewMusicPipe(0)
	id := p.RegisterConsumer()

	c1 := NewChunk(testFormat(), []byte{1, 2})
	c2 := NewChunk(testFormat(), []byte{3, 4})
	if err := p.Push(c1); err != nil {
		t.Fatalf("push c1: %v", err)
	}
	if err := p.Push(c2); err != nil {
		t.Fatalf("push c2: %v", err)
	}

	if got := p.Peek(id); got != c1 {
		t.Fatalf("expected c1 first, got %v", got)
	}
	p.Consume(id, c1)
	if got := p.Peek(id); got != c2 {
		t.Fatalf("expected c2 next, got %v", got)
	}
	if p.Size() != 1 {
		t.Fatalf("expected c1 released after full consumption, size=%d", p.Size())
	}
}

func TestMusicPipeMultiConsumerRefcount(t *testing.T) {
	p := NewMusicPipe(0)
	a := p.RegisterConsumer()
	b := p.RegisterConsumer()

	chunk := NewChunk(testFormat(), []byte{1})
	if err := p.Push(chunk); err != nil {
		t.Fatalf("push: %v", err)
	}

	p.Consume(a, chunk)
	if p.Size() != 1 {
		t.Fatalf("chunk must stay while b hasn't consumed it, size=%d", p.Size())
	}
	if !p.IsConsumed(a, chunk) {
		t.Fatal("expected a to have consumed chunk")
	}
	if p.IsConsumed(b, chunk) {
		t.Fatal("expected b not to have consumed chunk yet")
	}

	p.Consume(b, chunk)
	if p.Size() != 0 {
		t.Fatalf("chunk must release once every registered consumer has seen it, size=%d", p.Size())
	}
}

func TestMusicPipeUnregisterReleasesPending(t *testing.T) {
	p := NewMusicPipe(0)
	a := p.RegisterConsumer()
	b := p.RegisterConsumer()

	chunk := NewChunk(testFormat(), []byte{1})
	_ = p.Push(chunk)
	p.Consume(a, chunk)

	p.UnregisterConsumer(b)
	if p.Size() != 0 {
		t.Fatalf("chunk should release once its only remaining unconsuming reader detaches, size=%d", p.Size())
	}
}

func TestMusicPipePushBlocksOnSoftBound(t *testing.T) {
	p := NewMusicPipe(1)
	_ = p.RegisterConsumer()

	if err := p.Push(NewChunk(testFormat(), []byte{1})); err != nil {
		t.Fatalf("first push: %v", err)
	}

	pushed := make(chan error, 1)
	go func() {
		pushed <- p.Push(NewChunk(testFormat(), []byte{2}))
	}()

	select {
	case <-pushed:
		t.Fatal("push should have blocked while the soft bound is exceeded")
	case <-time.After(30 * time.Millisecond):
	}

	p.ShutDown()
	select {
	case err := <-pushed:
		if err != ErrPipeShutDown {
			t.Fatalf("expected ErrPipeShutDown after shutdown wakes a blocked push, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ShutDown did not wake the blocked Push within a second")
	}
}

func TestMusicPipeShutDownFailsFuturePush(t *testing.T) {
	p := NewMusicPipe(0)
	p.ShutDown()
	if err := p.Push(NewChunk(testFormat(), nil)); err != ErrPipeShutDown {
		t.Fatalf("expected ErrPipeShutDown, got %v", err)
	}
}
