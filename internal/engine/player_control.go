/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PlayerState is the player thread's three-value state machine.
type PlayerState int

const (
	PlayerStop PlayerState = iota
	PlayerPlay
	PlayerPause
)

func (s PlayerState) String() string {
	switch s {
	case PlayerPlay:
		return "play"
	case PlayerPause:
		return "pause"
	default:
		return "stop"
	}
}

// playerCommand is PlayerControl's commandCell payload: the set of
// commands a client can post to the player thread.
type playerCommand int

const (
	playerCmdNone playerCommand = iota
	playerCmdExit
	playerCmdStop
	playerCmdPause
	playerCmdSeek
	playerCmdCloseAudio
	playerCmdUpdateAudio
	playerCmdQueue
	playerCmdCancel
	playerCmdRefresh
)

// PlayerListener receives player-thread lifecycle events. Partition
// implements this.
type PlayerListener interface {
	OnPlayerStateChanged()
	OnPlayerError(errType PlayerErrorType, err error)
	OnPlayerTagModified()
	OnPlayerBorderPause()
	OnPlayerSync()
	OnPlayerOptionsChanged()
}

// PlayerControl is the synchronous command/event interface between
// Partition/clients and the player thread: one mailbox, one mutex, two
// condition variables.
type PlayerControl struct {
	name string

	mu  sync.Mutex
	cmd *commandCell

	state PlayerState

	queuedSong   *DetachedSong
	queuedPos    int
	seekTarget   time.Duration
	seeking      bool

	crossFade    time.Duration
	mixRampDb    float64
	mixRampDelay time.Duration

	totalTime   time.Duration
	bitRate     int
	audioFormat AudioFormat

	// currentSong/currentPos/currentDecoder/currentPipe describe the song
	// actively feeding pc.pipe. songStartWall/songStartElapsed let
	// elapsed time be computed live (time.Since-based) instead of polled,
	// so REFRESH never has to race the play loop for a field update.
	currentSong      *DetachedSong
	currentPos       int
	currentDecoder   DecoderPlugin
	currentPipe      *MusicPipe
	currentConsumer  int
	songStartWall    time.Time
	songStartElapsed time.Duration

	// nextSong is non-nil when a QUEUE or SEEK is in flight or completed
	// but not yet picked up: prepared ahead of the current song ending so
	// the transition can be gapless.
	nextSong     *DetachedSong
	nextPos      int
	nextDecoder  DecoderPlugin
	nextPipe     *MusicPipe
	nextConsumer int
	nextOpened   bool

	fader *CrossFader

	errType PlayerErrorType
	err     error

	taggedSong *DetachedSong
	taggedTag  *Tag

	occupied bool

	pipe             *MusicPipe
	outputs          *MultipleOutputs
	newDecoder       func() DecoderPlugin
	softQueueSize    int
	bufferBeforePlay time.Duration

	listener PlayerListener
	logger   zerolog.Logger
	metrics  *Metrics

	done chan struct{}
}

// PlayerControlConfig bundles PlayerControl's construction-time
// dependencies, mirroring the PlayerReopenBackoff-style config additions
// in SPEC_FULL.md §2.
type PlayerControlConfig struct {
	Name             string
	Outputs          *MultipleOutputs
	NewDecoder       func() DecoderPlugin
	SoftQueueSize    int
	BufferBeforePlay time.Duration
	CrossFade        time.Duration
	MixRampDb        float64
	Listener         PlayerListener
	Logger           zerolog.Logger
	Metrics          *Metrics
}

func NewPlayerControl(cfg PlayerControlConfig) *PlayerControl {
	pc := &PlayerControl{
		name:             cfg.Name,
		outputs:          cfg.Outputs,
		newDecoder:       cfg.NewDecoder,
		softQueueSize:    cfg.SoftQueueSize,
		bufferBeforePlay: cfg.BufferBeforePlay,
		crossFade:        cfg.CrossFade,
		mixRampDb:        cfg.MixRampDb,
		listener:         cfg.Listener,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		done:             make(chan struct{}),
	}
	pc.cmd = newCommandCell(&pc.mu)
	return pc
}

// Start launches the player thread goroutine.
func (pc *PlayerControl) Start() { go pc.run() }

func (pc *PlayerControl) synchronousCommand(cmd playerCommand) {
	pc.mu.Lock()
	pc.cmd.waitFreeLocked(int(playerCmdNone))
	pc.cmd.postLocked(int(cmd))
	pc.cmd.waitFreeLocked(int(playerCmdNone))
	pc.mu.Unlock()
}

func (pc *PlayerControl) asyncCommand(cmd playerCommand) {
	pc.mu.Lock()
	pc.cmd.waitFreeLocked(int(playerCmdNone))
	pc.cmd.postLocked(int(cmd))
	pc.mu.Unlock()
}

// Play enqueues song to start playing immediately (QUEUE command),
// returning once the player thread has picked it up or failed to open it.
func (pc *PlayerControl) Play(song *DetachedSong, pos int) error {
	pc.mu.Lock()
	pc.queuedSong = song
	pc.queuedPos = pos
	pc.mu.Unlock()
	pc.synchronousCommand(playerCmdQueue)
	return pc.LockGetError()
}

// LockCancel discards any queued next_song / in-flight crossfade staging
// without closing outputs.
func (pc *PlayerControl) LockCancel() { pc.synchronousCommand(playerCmdCancel) }

// LockStop halts playback and returns the player to STOP.
func (pc *PlayerControl) LockStop() { pc.synchronousCommand(playerCmdStop) }

// LockSetPause sets pause state to paused; calling it twice with the same
// value is a no-op observable effect.
func (pc *PlayerControl) LockSetPause(paused bool) {
	pc.mu.Lock()
	already := (pc.state == PlayerPause) == paused
	pc.mu.Unlock()
	if already {
		return
	}
	pc.synchronousCommand(playerCmdPause)
}

// LockCloseAudio implements CLOSE_AUDIO: stop playback and close outputs.
func (pc *PlayerControl) LockCloseAudio() { pc.synchronousCommand(playerCmdCloseAudio) }

// LockUpdateAudio implements UPDATE_AUDIO: re-evaluate and reopen outputs.
func (pc *PlayerControl) LockUpdateAudio() { pc.synchronousCommand(playerCmdUpdateAudio) }

// LockSeek requests a seek to target (absolute). Blocks until seeking
// clears, returning any error captured during the seek and rethrown to
// the caller.
func (pc *PlayerControl) LockSeek(target time.Duration) error {
	pc.mu.Lock()
	pc.seekTarget = target
	pc.mu.Unlock()
	pc.synchronousCommand(playerCmdSeek)
	return pc.LockGetError()
}

// Kill requests EXIT and waits for the thread to terminate.
func (pc *PlayerControl) Kill() {
	pc.asyncCommand(playerCmdExit)
	<-pc.done
}

// SetCrossFade / SetMixRampDb / SetMixRampDelay update fade parameters
// consumed by the next song transition; no command round-trip is needed
// since the player thread re-reads them under the same mutex at the point
// it computes the fade.
func (pc *PlayerControl) SetCrossFade(d time.Duration) {
	pc.mu.Lock()
	pc.crossFade = d
	pc.mu.Unlock()
}

func (pc *PlayerControl) SetMixRampDb(db float64) {
	pc.mu.Lock()
	pc.mixRampDb = db
	pc.mu.Unlock()
}

func (pc *PlayerControl) SetMixRampDelay(d time.Duration) {
	pc.mu.Lock()
	pc.mixRampDelay = d
	pc.mu.Unlock()
}

// PlayerStatus is the read-only snapshot LockGetStatus returns.
type PlayerStatus struct {
	State       PlayerState
	BitRate     int
	AudioFormat AudioFormat
	TotalTime   time.Duration
	ElapsedTime time.Duration
}

// LockGetStatus returns the current status, issuing a REFRESH command
// first if the player thread is not already occupied with other work, so
// elapsed time and bit rate are current as of the call rather than as of
// the last state change.
func (pc *PlayerControl) LockGetStatus() PlayerStatus {
	pc.mu.Lock()
	occupied := pc.occupied
	pc.mu.Unlock()
	if !occupied {
		pc.synchronousCommand(playerCmdRefresh)
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return PlayerStatus{
		State:       pc.state,
		BitRate:     pc.bitRate,
		AudioFormat: pc.audioFormat,
		TotalTime:   pc.totalTime,
		ElapsedTime: pc.elapsedLocked(),
	}
}

// elapsedLocked computes the current song's elapsed playback position live
// from the wall clock instead of a polled field, so a status read is never
// stale by more than the caller's own scheduling jitter. Caller holds pc.mu.
func (pc *PlayerControl) elapsedLocked() time.Duration {
	if pc.currentSong == nil {
		return 0
	}
	if pc.state != PlayerPlay || pc.songStartWall.IsZero() {
		return pc.songStartElapsed
	}
	return pc.songStartElapsed + time.Since(pc.songStartWall)
}

// LockGetError returns the currently latched error, if any.
func (pc *PlayerControl) LockGetError() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.err
}

// LockGetErrorType returns the currently latched error's classification.
func (pc *PlayerControl) LockGetErrorType() PlayerErrorType {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.errType
}

// LockClearError clears any latched error; both the error and its type
// are cleared together by whichever caller rethrows it.
func (pc *PlayerControl) LockClearError() {
	pc.mu.Lock()
	pc.err = nil
	pc.errType = PlayerErrorNone
	pc.mu.Unlock()
}

// setErrorLocked latches an error; caller holds pc.mu.
func (pc *PlayerControl) setErrorLocked(errType PlayerErrorType, err error) {
	pc.errType = errType
	pc.err = err
}

// ReadTaggedSong returns and clears the most recently tag-updated song, if
// any, for the partition to re-publish as TAG_MODIFIED.
func (pc *PlayerControl) ReadTaggedSong() (*DetachedSong, *Tag) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	song, tag := pc.taggedSong, pc.taggedTag
	pc.taggedSong, pc.taggedTag = nil, nil
	return song, tag
}

// setTaggedSongLocked records a tag update; caller holds pc.mu.
func (pc *PlayerControl) setTaggedSongLocked(song *DetachedSong, tag *Tag) {
	pc.taggedSong, pc.taggedTag = song, tag
}

// waitOutputConsumedLocked blocks (releasing no external lock;
// PlayerControl's own mutex guards this) until outputs.CheckPipe reports
// the pipe below threshold chunks, or a command arrives. Returns whether
// the threshold is now satisfied.
func (pc *PlayerControl) waitOutputConsumedLocked(threshold int, chunk *Chunk) bool {
	for pc.pipe.Size() > threshold && !pc.outputs.CheckPipe(chunk) {
		if pc.cmd.value != int(playerCmdNone) {
			return false
		}
		pc.cmd.waitWorkLocked()
	}
	return true
}

func (pc *PlayerControl) State() PlayerState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.state
}

// HasNextSong reports whether a next_song is already staged, so a caller
// deciding whether to look ahead in the queue (Partition's SyncWithPlayer)
// does not stage a second one on top of it.
func (pc *PlayerControl) HasNextSong() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.nextSong != nil
}

// QueueNext stages song/pos as next_song without blocking: the play loop
// picks it up on its next iteration and begins preparing the gapless/
// crossfade transition. Used by Partition once it decides, from queue
// state, what comes after the song currently playing, as opposed to Play
// which forces an immediate, non-gapless jump.
func (pc *PlayerControl) QueueNext(song *DetachedSong, pos int) {
	pc.mu.Lock()
	if pc.nextSong == nil {
		pc.nextSong = song
		pc.nextPos = pos
		pc.cmd.workerCond.Signal()
	}
	pc.mu.Unlock()
}

// CurrentSongPosition returns the position of the song currently loaded
// into the player (not necessarily still playing if it just finished),
// for status surfaces that want to show "currentsong" alongside queue
// position.
func (pc *PlayerControl) CurrentSongPosition() (int, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.currentSong == nil {
		return -1, false
	}
	return pc.currentPos, true
}
