/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"testing"
	"time"
)

func TestComputeCrossFadeFramesBasic(t *testing.T) {
	format := testFormat()
	frames := ComputeCrossFadeFrames(format, 2*time.Second, 0, 0, 60*time.Second)
	want := int(2 * float64(format.SampleRate))
	if frames != want {
		t.Fatalf("frames = %d, want %d", frames, want)
	}
}

func TestComputeCrossFadeFramesClampedToHalfSongDuration(t *testing.T) {
	format := testFormat()
	frames := ComputeCrossFadeFrames(format, 10*time.Second, 0, 0, 4*time.Second)
	want := int(2 * float64(format.SampleRate))
	if frames != want {
		t.Fatalf("frames = %d, want %d (half of a 4s song)", frames, want)
	}
}

func TestComputeCrossFadeFramesMixRampTakesPriority(t *testing.T) {
	format := testFormat()
	frames := ComputeCrossFadeFrames(format, 5*time.Second, 500*time.Millisecond, -6, 60*time.Second)
	want := int(0.5 * float64(format.SampleRate))
	if frames != want {
		t.Fatalf("frames = %d, want %d (MixRampDelay should win over CrossFadeDuration)", frames, want)
	}
}

func TestComputeCrossFadeFramesZeroWhenNoFadeConfigured(t *testing.T) {
	if got := ComputeCrossFadeFrames(testFormat(), 0, 0, 0, 60*time.Second); got != 0 {
		t.Fatalf("expected 0 frames with no crossfade or mixramp configured, got %d", got)
	}
}

func TestCrossFaderInactiveWithoutFrames(t *testing.T) {
	f := NewCrossFader(testFormat(), 0)
	if f.Active() {
		t.Fatal("expected an inactive fader with zero total frames")
	}
	next := []byte{1, 2, 3, 4}
	if got := f.Mix([]byte{9, 9, 9, 9}, next); string(got) != string(next) {
		t.Fatalf("inactive fader should pass next through unchanged, got %v", got)
	}
}

func TestCrossFaderMixConvergesToIncoming(t *testing.T) {
	format := testFormat()
	frameSize := format.FrameSize()
	frames := 4
	f := NewCrossFader(format, frames)

	cur := make([]byte, frames*frameSize)
	next := make([]byte, frames*frameSize)
	for i := 0; i < frames; i++ {
		writeS16Frame(cur, i, frameSize, 10000)
		writeS16Frame(next, i, frameSize, -10000)
	}

	out := f.Mix(cur, next)
	if len(out) != len(next) {
		t.Fatalf("mixed output length = %d, want %d", len(out), len(next))
	}
	if f.RemainingFrames() != 0 {
		t.Fatalf("expected fade fully consumed after mixing its whole budget, remaining=%d", f.RemainingFrames())
	}

	firstSample := readS16Frame(out, 0, frameSize)
	lastSample := readS16Frame(out, frames-1, frameSize)
	if firstSample <= lastSample {
		t.Fatalf("expected the mix to move from outgoing-heavy to incoming-heavy across the budget, got first=%d last=%d", firstSample, lastSample)
	}
}

func writeS16Frame(buf []byte, frame, frameSize int, sample int16) {
	off := frame * frameSize
	for i := 0; i+1 < frameSize; i += 2 {
		buf[off+i] = byte(uint16(sample))
		buf[off+i+1] = byte(uint16(sample) >> 8)
	}
}

func readS16Frame(buf []byte, frame, frameSize int) int16 {
	off := frame * frameSize
	return int16(uint16(buf[off]) | uint16(buf[off+1])<<8)
}
