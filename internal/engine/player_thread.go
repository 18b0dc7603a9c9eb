/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "time"

// currentPipePollInterval bounds how long playIterationLocked can go
// without re-checking the current song's private pipe for newly decoded
// chunks (see the comment at its wait site).
const currentPipePollInterval = 5 * time.Millisecond

// run is the player thread's worker loop: a per-song state machine driven
// through the same single-slot commandCell pattern as OutputController.run.
// cmdNone means "idle" while STOP/PAUSE, or "actively forwarding decoded
// audio" while PLAY; PLAY is the one state that must keep re-checking the
// cell between pipe-forwarding steps so a synchronous command is never
// starved.
func (pc *PlayerControl) run() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	defer close(pc.done)

	for {
		switch playerCommand(pc.cmd.value) {
		case playerCmdNone:
			if pc.state == PlayerPlay {
				pc.occupied = true
				pc.playIterationLocked()
				pc.occupied = false
			} else {
				pc.cmd.waitWorkLocked()
			}
		case playerCmdExit:
			pc.stopCurrentLocked()
			pc.stopNextLocked()
			pc.cmd.finishLocked(int(playerCmdNone))
			return
		default:
			pc.occupied = true
			pc.dispatchLocked(playerCommand(pc.cmd.value))
			pc.occupied = false
			pc.cmd.finishLocked(int(playerCmdNone))
		}
	}
}

func (pc *PlayerControl) dispatchLocked(cmd playerCommand) {
	switch cmd {
	case playerCmdQueue:
		pc.cmdQueueLocked()
	case playerCmdStop:
		pc.cmdStopLocked()
	case playerCmdPause:
		pc.cmdPauseLocked()
	case playerCmdSeek:
		pc.cmdSeekLocked()
	case playerCmdCloseAudio:
		pc.cmdCloseAudioLocked()
	case playerCmdUpdateAudio:
		pc.cmdUpdateAudioLocked()
	case playerCmdCancel:
		pc.cmdCancelLocked()
	case playerCmdRefresh:
		// No-op: LockGetStatus reads every field live once this command
		// round-trips, so there is nothing to recompute here.
	}
}

// playIterationLocked is the PLAY-state body: it keeps moving already
// decoded chunks from the current song's private pipe into the shared
// output pipe, staging and crossfading into next_song at the boundary, and
// returns as soon as a command is posted so the outer run loop can service
// it.
func (pc *PlayerControl) playIterationLocked() {
	for pc.cmd.value == int(playerCmdNone) && pc.state == PlayerPlay {
		if pc.currentSong == nil {
			pc.cmd.waitWorkLocked()
			continue
		}

		if pc.maybeStageNextLocked() {
			continue
		}

		chunk := pc.currentPipe.Peek(pc.currentConsumer)
		if chunk == nil {
			if pc.currentSongFinishedLocked() {
				pc.advanceLocked()
			} else {
				// The decoder pushes straight into currentPipe with no
				// hook back into this commandCell, so waitWorkLocked
				// would never be woken by a newly decoded chunk. Poll
				// on a short bound instead.
				pc.mu.Unlock()
				time.Sleep(currentPipePollInterval)
				pc.mu.Lock()
			}
			continue
		}

		pc.forwardChunkLocked(chunk)
	}
}

// maybeStageNextLocked lazily opens next_song's decoder the first time
// it's seen, computing the crossfade frame budget against the *current*
// song's remaining duration. Returns true if it did work this turn (so the
// caller loops again without blocking).
func (pc *PlayerControl) maybeStageNextLocked() bool {
	if pc.nextSong == nil || pc.nextOpened {
		return false
	}

	song, pos := pc.nextSong, pc.nextPos
	dec := pc.newDecoder()
	pipe := NewMusicPipe(pc.softQueueSize)

	pc.mu.Unlock()
	err := dec.Start(song, pipe)
	pc.mu.Lock()

	if err != nil {
		pc.logger.Warn().Err(err).Str("uri", song.URI).Msg("next-song decoder open failed")
		pc.nextSong = nil
		pc.notifyErrorLocked(PlayerErrorDecoder, &DecoderError{URI: song.URI, Err: err})
		return true
	}

	pc.nextPos = pos
	pc.nextDecoder = dec
	pc.nextPipe = pipe
	pc.nextConsumer = pipe.RegisterConsumer()
	pc.nextOpened = true

	frames := 0
	if pc.currentSong != nil {
		frames = ComputeCrossFadeFrames(pc.audioFormat, pc.crossFade, pc.mixRampDelay, pc.mixRampDb, pc.currentSong.Duration())
	}
	pc.fader = NewCrossFader(pc.audioFormat, frames)
	return true
}

// currentSongFinishedLocked drains the decoder's Done channel without
// blocking. A nil error or a closed channel both mean natural end of
// stream; a non-nil error latches a DecoderError, but either way the
// player advances past the song.
func (pc *PlayerControl) currentSongFinishedLocked() bool {
	select {
	case err, ok := <-pc.currentDecoder.Done():
		if !ok {
			return true
		}
		if err != nil {
			pc.logger.Warn().Err(err).Str("uri", pc.currentSong.URI).Msg("decoder failed")
			pc.setErrorLocked(PlayerErrorDecoder, &DecoderError{URI: pc.currentSong.URI, Err: err})
		}
		return true
	default:
		return false
	}
}

// forwardChunkLocked moves one chunk from the current song's private pipe
// into the shared output pipe, mixing it against next_song's lead-in once
// the crossfade window is reached (only the last buffered current-song
// chunk overlaps, matching a short, bounded fade rather than a
// byte-exact replica of the configured duration). With crossFade == 0 the
// fader never activates and this is an exact concatenation, giving
// gapless playback between adjacent songs.
func (pc *PlayerControl) forwardChunkLocked(chunk *Chunk) {
	if chunk.Tag != nil {
		pc.setTaggedSongLocked(pc.currentSong, chunk.Tag)
		listener := pc.listener
		pc.mu.Unlock()
		if listener != nil {
			listener.OnPlayerTagModified()
		}
		pc.mu.Lock()
	}

	out := chunk
	if pc.fader != nil && pc.fader.Active() && pc.nextOpened && pc.currentPipe.Size() <= 1 {
		if nc := pc.nextPipe.Peek(pc.nextConsumer); nc != nil {
			mixed := pc.fader.Mix(chunk.Data, nc.Data)
			merged := NewChunk(chunk.Format, mixed)
			merged.AbsTime = chunk.AbsTime
			pc.nextPipe.Consume(pc.nextConsumer, nc)
			out = merged
		}
	}

	changed := pc.ensureOutputPipeLocked(chunk.Format)
	pipe, outputs, format := pc.pipe, pc.outputs, pc.audioFormat
	pc.mu.Unlock()
	if changed {
		outputs.Play(pipe, format)
	}
	_ = pipe.Push(out)
	pc.mu.Lock()

	pc.currentPipe.Consume(pc.currentConsumer, chunk)
	if pc.metrics != nil {
		pc.metrics.PipeSize.WithLabelValues(pc.name).Set(float64(pc.pipe.Size()))
	}
	outputs = pc.outputs
	pc.mu.Unlock()
	outputs.Wake()
	pc.mu.Lock()
}

// advanceLocked runs the end-of-song transition: surface any latched
// decode error, then either promote next_song into current (gapless) or
// drop to STOP and let Partition's OnPlayerSync handler decide what, if
// anything, the queue has next.
func (pc *PlayerControl) advanceLocked() {
	hadErr := pc.err != nil
	pc.stopDecoderOnlyLocked(pc.currentDecoder, pc.currentPipe, pc.currentConsumer)
	if pc.metrics != nil {
		pc.metrics.SongsPlayedTotal.Inc()
	}
	if hadErr {
		pc.notifyErrorLocked(pc.errType, pc.err)
	}

	if pc.nextOpened {
		pc.currentSong = pc.nextSong
		pc.currentPos = pc.nextPos
		pc.currentDecoder = pc.nextDecoder
		pc.currentPipe = pc.nextPipe
		pc.currentConsumer = pc.nextConsumer
		pc.songStartWall = time.Now()
		pc.songStartElapsed = pc.currentSong.Start
		pc.totalTime = pc.currentSong.Duration()

		pc.nextSong, pc.nextPos = nil, 0
		pc.nextDecoder, pc.nextPipe, pc.nextConsumer = nil, nil, 0
		pc.nextOpened = false
		pc.fader = nil

		pc.notifySyncLocked()
		return
	}

	pc.currentSong = nil
	pc.currentDecoder = nil
	pc.currentPipe = nil
	pc.songStartWall = time.Time{}
	pc.state = PlayerStop
	pc.notifyStateChangedLocked()
	pc.notifySyncLocked()
}

// ensureOutputPipeLocked (re)creates the shared output pipe whenever the
// negotiated format changes, mirroring OutputController's own reopen-on-
// format-change rule. Returns whether it actually changed; the caller
// must re-broadcast outputs.Play when it did.
func (pc *PlayerControl) ensureOutputPipeLocked(format AudioFormat) bool {
	if pc.pipe != nil && pc.audioFormat == format {
		return false
	}
	old := pc.pipe
	pc.pipe = NewMusicPipe(pc.softQueueSize)
	pc.audioFormat = format
	if old != nil {
		old.ShutDown()
	}
	return true
}

// stopDecoderOnlyLocked stops dec (unlocked, since Stop may block briefly
// on the decoder's own goroutine) and unregisters its pipe consumer.
func (pc *PlayerControl) stopDecoderOnlyLocked(dec DecoderPlugin, pipe *MusicPipe, consumer int) {
	if dec == nil {
		return
	}
	pc.mu.Unlock()
	dec.Stop()
	pc.mu.Lock()
	if pipe != nil {
		pipe.UnregisterConsumer(consumer)
	}
}

// stopCurrentLocked tears down the currently loaded song, if any.
func (pc *PlayerControl) stopCurrentLocked() {
	pc.stopDecoderOnlyLocked(pc.currentDecoder, pc.currentPipe, pc.currentConsumer)
	pc.currentSong = nil
	pc.currentDecoder = nil
	pc.currentPipe = nil
	pc.songStartWall = time.Time{}
	pc.songStartElapsed = 0
}

// stopNextLocked discards any staged next_song without touching current
// playback or the outputs.
func (pc *PlayerControl) stopNextLocked() {
	pc.stopDecoderOnlyLocked(pc.nextDecoder, pc.nextPipe, pc.nextConsumer)
	pc.nextSong, pc.nextPos = nil, 0
	pc.nextDecoder, pc.nextPipe, pc.nextConsumer = nil, nil, 0
	pc.nextOpened = false
	pc.fader = nil
}

// notifyStateChangedLocked and notifyErrorLocked invoke the PlayerListener
// unlocked, since listener callbacks must never run with the controller's
// own mutex held, and reacquire before returning to the caller's locked
// context.
func (pc *PlayerControl) notifyStateChangedLocked() {
	l := pc.listener
	pc.mu.Unlock()
	if l != nil {
		l.OnPlayerStateChanged()
	}
	pc.mu.Lock()
}

// notifySyncLocked hands OnPlayerSync off to its own goroutine instead of
// calling it inline. OnPlayerSync's only implementation (Partition.
// SyncWithPlayer) can reach BorderPause -> PlayerControl.LockSetPause, a
// synchronous command that waits for this same player thread's run loop to
// service it; calling it from advanceLocked, which runs on that very
// goroutine in the middle of a run loop iteration, would wait for a command
// dispatch this goroutine itself has to reach the top of the loop to
// perform. A separate goroutine can block on the command cell while the
// player thread runs on and notices the posted command on its own.
func (pc *PlayerControl) notifySyncLocked() {
	l := pc.listener
	if l != nil {
		go l.OnPlayerSync()
	}
}

func (pc *PlayerControl) notifyErrorLocked(t PlayerErrorType, err error) {
	pc.setErrorLocked(t, err)
	l := pc.listener
	pc.mu.Unlock()
	if l != nil {
		l.OnPlayerError(t, err)
	}
	pc.mu.Lock()
}

// cmdQueueLocked implements QUEUE for an explicit client-driven jump
// (PlayAny/PlayPosition/PlayId/PlayNext/PlayPrevious all route through
// PlayerControl.Play): it always cuts immediately rather than waiting for
// a crossfade boundary, which is QueueNext's job instead.
func (pc *PlayerControl) cmdQueueLocked() {
	song, pos := pc.queuedSong, pc.queuedPos
	pc.queuedSong = nil
	if song == nil {
		return
	}

	pc.stopCurrentLocked()
	pc.stopNextLocked()

	dec := pc.newDecoder()
	pipe := NewMusicPipe(pc.softQueueSize)

	pc.mu.Unlock()
	err := dec.Start(song, pipe)
	pc.mu.Lock()

	if err != nil {
		pc.logger.Warn().Err(err).Str("uri", song.URI).Msg("decoder open failed")
		pc.state = PlayerStop
		pc.notifyErrorLocked(PlayerErrorDecoder, &DecoderError{URI: song.URI, Err: err})
		return
	}

	format := dec.Format()
	consumer := pipe.RegisterConsumer()

	pc.currentSong = song
	pc.currentPos = pos
	pc.currentDecoder = dec
	pc.currentPipe = pipe
	pc.currentConsumer = consumer
	pc.songStartWall = time.Now()
	pc.songStartElapsed = song.Start
	pc.totalTime = song.Duration()
	pc.state = PlayerPlay
	pc.err = nil
	pc.errType = PlayerErrorNone

	changed := pc.ensureOutputPipeLocked(format)
	outputs, p, f := pc.outputs, pc.pipe, pc.audioFormat
	pc.mu.Unlock()
	if changed {
		outputs.Play(p, f)
	}
	pc.mu.Lock()

	pc.notifyStateChangedLocked()
}

// cmdStopLocked implements STOP: halts playback and discards whatever the
// outputs still have buffered, but does not close them (that's CLOSE_AUDIO).
func (pc *PlayerControl) cmdStopLocked() {
	wasPlaying := pc.currentSong != nil
	pc.stopCurrentLocked()
	pc.stopNextLocked()
	pc.state = PlayerStop
	pc.err = nil
	pc.errType = PlayerErrorNone

	outputs := pc.outputs
	pc.mu.Unlock()
	if outputs != nil {
		outputs.Cancel()
	}
	pc.mu.Lock()

	if wasPlaying {
		pc.notifyStateChangedLocked()
	}
}

// cmdPauseLocked toggles PLAY/PAUSE. The caller (LockSetPause) only issues
// this when the requested state actually differs from the current one, so
// a bare toggle here is sufficient: calling Pause(true) twice in a row
// leaves the state at PAUSE either way.
func (pc *PlayerControl) cmdPauseLocked() {
	switch pc.state {
	case PlayerPlay:
		pc.songStartElapsed = pc.elapsedLocked()
		pc.state = PlayerPause
	case PlayerPause:
		pc.state = PlayerPlay
		pc.songStartWall = time.Now()
	default:
		return
	}
	pc.notifyStateChangedLocked()
}

// cmdSeekLocked implements SEEK: cancel the in-flight decode, reopen at
// seekTarget, and clear `seeking` once the decoder confirms (or fails to
// reach) the target position.
func (pc *PlayerControl) cmdSeekLocked() {
	if pc.currentSong == nil {
		pc.notifyErrorLocked(PlayerErrorDecoder, ErrArgument)
		return
	}

	target := pc.seekTarget
	pc.seeking = true

	song := *pc.currentSong
	song.Start = target
	pos := pc.currentPos

	pc.stopCurrentLocked()
	pc.stopNextLocked()

	dec := pc.newDecoder()
	pipe := NewMusicPipe(pc.softQueueSize)

	pc.mu.Unlock()
	err := dec.Start(&song, pipe)
	pc.mu.Lock()

	if err != nil {
		pc.logger.Warn().Err(err).Str("uri", song.URI).Msg("seek failed")
		pc.state = PlayerStop
		pc.seeking = false
		pc.notifyErrorLocked(PlayerErrorDecoder, &DecoderError{URI: song.URI, Err: err})
		return
	}

	format := dec.Format()
	consumer := pipe.RegisterConsumer()

	pc.currentSong = &song
	pc.currentPos = pos
	pc.currentDecoder = dec
	pc.currentPipe = pipe
	pc.currentConsumer = consumer
	pc.songStartWall = time.Now()
	pc.songStartElapsed = target
	pc.totalTime = song.Duration()
	pc.err = nil
	pc.errType = PlayerErrorNone
	if pc.state != PlayerPause {
		pc.state = PlayerPlay
	}

	changed := pc.ensureOutputPipeLocked(format)
	outputs, p, f := pc.outputs, pc.pipe, pc.audioFormat
	pc.mu.Unlock()
	if changed {
		outputs.Play(p, f)
	}
	pc.mu.Lock()

	pc.seeking = false
	pc.notifyStateChangedLocked()
}

// cmdCloseAudioLocked implements CLOSE_AUDIO: stop playback and close
// every output, returning to STOP.
func (pc *PlayerControl) cmdCloseAudioLocked() {
	pc.stopCurrentLocked()
	pc.stopNextLocked()
	pc.state = PlayerStop

	outputs, pipe := pc.outputs, pc.pipe
	pc.pipe = nil
	pc.mu.Unlock()
	if outputs != nil {
		outputs.Close()
	}
	if pipe != nil {
		pipe.ShutDown()
	}
	pc.mu.Lock()
	pc.notifyStateChangedLocked()
}

// cmdUpdateAudioLocked implements UPDATE_AUDIO: re-evaluate enabled
// outputs and reopen as needed without altering player state.
func (pc *PlayerControl) cmdUpdateAudioLocked() {
	if pc.pipe == nil || pc.outputs == nil {
		return
	}
	outputs, pipe, format := pc.outputs, pc.pipe, pc.audioFormat
	pc.mu.Unlock()
	outputs.Play(pipe, format)
	pc.mu.Lock()
}

// cmdCancelLocked implements CANCEL: discard next_song only.
func (pc *PlayerControl) cmdCancelLocked() {
	pc.stopNextLocked()
}
