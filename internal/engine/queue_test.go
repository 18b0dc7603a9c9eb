/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "testing"

type recordingQueueListener struct {
	modified int
	options  int
}

func (l *recordingQueueListener) OnQueueModified()        { l.modified++ }
func (l *recordingQueueListener) OnQueueOptionsChanged()   { l.options++ }
func (l *recordingQueueListener) OnQueueSongStarted(int)   {}

func songAt(uri string) DetachedSong {
	return DetachedSong{URI: uri}
}

func TestQueueAppendAndPlayPosition(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))

	song, err := q.PlayPosition(1)
	if err != nil {
		t.Fatalf("play position: %v", err)
	}
	if song.URI != "b" {
		t.Fatalf("expected song b, got %s", song.URI)
	}

	cur, pos, ok := q.CurrentSong()
	if !ok || pos != 1 || cur.URI != "b" {
		t.Fatalf("unexpected current song state: %v %d %v", cur, pos, ok)
	}
}

func TestQueueAdvanceSequentialEndsAtStop(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	if _, err := q.PlayPosition(0); err != nil {
		t.Fatal(err)
	}

	song, pos, ok, _, border := q.Advance()
	if !ok || pos != 1 || song.URI != "b" || border {
		t.Fatalf("unexpected first advance: song=%v pos=%d ok=%v border=%v", song, pos, ok, border)
	}

	_, _, ok, _, _ = q.Advance()
	if ok {
		t.Fatal("expected advance past the last song without repeat to return ok=false")
	}
}

func TestQueueAdvanceRepeatWraps(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	q.SetRepeat(true)
	if _, err := q.PlayPosition(1); err != nil {
		t.Fatal(err)
	}

	song, pos, ok, _, _ := q.Advance()
	if !ok || pos != 0 || song.URI != "a" {
		t.Fatalf("expected wraparound to position 0, got song=%v pos=%d ok=%v", song, pos, ok)
	}
}

func TestQueueAdvanceConsumeOneShotClearsAfterOneRemoval(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	q.SetConsume(ConsumeOneShot)
	if _, err := q.PlayPosition(0); err != nil {
		t.Fatal(err)
	}

	_, _, ok, oneShotCleared, _ := q.Advance()
	if !ok {
		t.Fatal("expected advance to succeed onto the remaining song")
	}
	if !oneShotCleared {
		t.Fatal("expected ConsumeOneShot to revert to ConsumeOff after triggering once")
	}
	if q.Length() != 1 {
		t.Fatalf("expected the finished song removed, length=%d", q.Length())
	}
	_, _, _, consume := q.Options()
	if consume != ConsumeOff {
		t.Fatalf("expected consume mode reset to off, got %v", consume)
	}
}

func TestQueueAdvanceSingleRepeatBorderPause(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	q.SetRepeat(true)
	q.SetSingle(SingleOneShot)
	if _, err := q.PlayPosition(0); err != nil {
		t.Fatal(err)
	}

	_, _, ok, oneShotCleared, border := q.Advance()
	if ok {
		t.Fatal("single mode should stop advancing past the current song")
	}
	if !oneShotCleared {
		t.Fatal("expected SingleOneShot to revert to SingleOff")
	}
	if !border {
		t.Fatal("expected a border pause since repeat is also set")
	}
}

func TestQueuePeekNextDoesNotMutateCursor(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	if _, err := q.PlayPosition(0); err != nil {
		t.Fatal(err)
	}

	song, pos, ok := q.PeekNext()
	if !ok || pos != 1 || song.URI != "b" {
		t.Fatalf("unexpected peek result: song=%v pos=%d ok=%v", song, pos, ok)
	}

	_, curPos, _ := q.CurrentSong()
	if curPos != 0 {
		t.Fatalf("PeekNext must not move the cursor, still at %d", curPos)
	}
}

func TestQueueDeleteRangeEmptyIsNoop(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	if err := q.DeleteRange(0, 0); err != nil {
		t.Fatalf("empty range delete should be a no-op, got %v", err)
	}
	if q.Length() != 1 {
		t.Fatalf("expected length unchanged, got %d", q.Length())
	}
}

func TestQueueMoveRangeNoopWhenAlreadyAtTarget(t *testing.T) {
	q := NewQueue(nil)
	q.AppendURI(songAt("a"))
	q.AppendURI(songAt("b"))
	if err := q.MoveRange(0, 1, 0); err != nil {
		t.Fatalf("no-op move should not error, got %v", err)
	}
	first, err := q.PlayPosition(0)
	if err != nil || first.URI != "a" {
		t.Fatalf("expected order unchanged, got %v err=%v", first, err)
	}
}

func TestQueueListenerNotifiedOnModifyAndOptions(t *testing.T) {
	l := &recordingQueueListener{}
	q := NewQueue(l)
	q.AppendURI(songAt("a"))
	q.SetRepeat(true)
	q.SetRepeat(true) // repeated identical call must not double-notify

	if l.modified != 1 {
		t.Fatalf("expected one modified notification, got %d", l.modified)
	}
	if l.options != 1 {
		t.Fatalf("expected one options notification, got %d", l.options)
	}
}
