/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Partition wires the subsystems together: it owns the queue, the player
// control, the output set, the mixer memento, the idle bus, and the client
// list, and is the only component that implements the cross-subsystem
// listener interfaces.
type Partition struct {
	Name string

	mu      sync.Mutex
	queue   *Queue
	pc      *PlayerControl
	outputs *MultipleOutputs
	memento MixerMemento
	idle    *IdleBus
	stats   *Stats

	replayGainMode ReplayGainMode
	tickCount      int
	lastOutputErrs map[string]error

	logger  zerolog.Logger
	metrics *Metrics
}

// PartitionConfig bundles Partition's construction-time dependencies.
type PartitionConfig struct {
	Name    string
	Outputs *MultipleOutputs
	Memento MixerMemento
	Idle    *IdleBus
	Stats   *Stats
	Logger  zerolog.Logger
	Metrics *Metrics

	NewDecoder       func() DecoderPlugin
	SoftQueueSize    int
	BufferBeforePlay time.Duration
	CrossFade        time.Duration
	MixRampDb        float64
}

// NewPartition builds a Partition and its owned Queue/PlayerControl,
// wiring each one's listener back to this Partition.
func NewPartition(cfg PartitionConfig) *Partition {
	if cfg.Memento == nil {
		cfg.Memento = NewInMemoryMixerMemento()
	}
	if cfg.Idle == nil {
		cfg.Idle = NewIdleBus()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats(nil)
	}

	p := &Partition{
		Name:           cfg.Name,
		outputs:        cfg.Outputs,
		memento:        cfg.Memento,
		idle:           cfg.Idle,
		stats:          cfg.Stats,
		lastOutputErrs: make(map[string]error),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	p.queue = NewQueue(p)
	p.pc = NewPlayerControl(PlayerControlConfig{
		Name:             cfg.Name,
		Outputs:          cfg.Outputs,
		NewDecoder:       cfg.NewDecoder,
		SoftQueueSize:    cfg.SoftQueueSize,
		BufferBeforePlay: cfg.BufferBeforePlay,
		CrossFade:        cfg.CrossFade,
		MixRampDb:        cfg.MixRampDb,
		Listener:         p,
		Logger:           cfg.Logger,
		Metrics:          cfg.Metrics,
	})

	if v, ok := cfg.Memento.LoadReplayGainMode(cfg.Name); ok {
		p.replayGainMode = v
	}

	return p
}

// Start launches the owned player thread. The caller is responsible for
// also calling Run to drive the idle-dispatch/lookahead loop.
func (p *Partition) Start() { p.pc.Start() }

// Kill tears down the player thread, blocking until it has exited.
func (p *Partition) Kill() { p.pc.Kill() }

// Run drives the partition's event loop until ctx is cancelled: it
// dispatches accumulated idle bits and proactively stages the queue's next
// song ahead of a gapless/crossfade boundary, mirroring
// internal/playout.Director.Run's select-on-ticker shape.
func (p *Partition) Run(ctx context.Context) error {
	p.logger.Info().Str("partition", p.Name).Msg("partition event loop started")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Str("partition", p.Name).Msg("partition event loop stopped")
			return ctx.Err()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Partition) tick() {
	p.idle.Dispatch()

	if song, tag := p.pc.ReadTaggedSong(); song != nil {
		_ = tag
		p.idle.EmitIdle(IdlePlayer)
	}

	p.stageLookahead()

	p.tickCount++
	if p.tickCount%10 == 0 {
		p.pollOutputErrors()
	}
}

// pollOutputErrors diffs each output's LastError against what was last
// seen and raises OUTPUT on a change, then asks PlayerControl to retry any
// output whose fail timer has expired, so a device that failed to open
// gets another attempt once its backoff clears. MultipleOutputs has no
// upward listener hook of its own, so Partition polls instead of being
// pushed to.
func (p *Partition) pollOutputErrors() {
	changed := false
	for _, name := range p.outputs.Names() {
		err := p.outputs.LastError(name)
		if (err == nil) != (p.lastOutputErrs[name] == nil) || (err != nil && err.Error() != errString(p.lastOutputErrs[name])) {
			changed = true
			p.lastOutputErrs[name] = err
		}
	}
	if changed {
		p.idle.EmitIdle(IdleOutput)
		p.pc.LockUpdateAudio()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// stageLookahead peeks the queue's next song and, if the player thread
// isn't already holding one staged, hands it over as next_song so the
// crossfade/gapless transition has time to prepare.
func (p *Partition) stageLookahead() {
	if p.pc.State() != PlayerPlay {
		return
	}
	if p.pc.HasNextSong() {
		return
	}
	song, pos, ok := p.queue.PeekNext()
	if !ok {
		return
	}
	p.pc.QueueNext(song, pos)
}

// --- Transport -------------------------------------------------------

// PlayAny starts playback at the queue's current cursor, or its first song
// if nothing is current.
func (p *Partition) PlayAny() error {
	song, pos, ok := p.queue.CurrentSong()
	if !ok {
		song, pos, ok = p.queue.PeekNext()
		if !ok {
			return ErrArgument
		}
		if _, err := p.queue.PlayPosition(pos); err != nil {
			return err
		}
	}
	return p.pc.Play(song, pos)
}

// PlayPosition jumps to and plays the song at pos.
func (p *Partition) PlayPosition(pos int) error {
	song, err := p.queue.PlayPosition(pos)
	if err != nil {
		return err
	}
	return p.pc.Play(song, pos)
}

// PlayId jumps to and plays the song with the given stable id.
func (p *Partition) PlayId(id int) error {
	song, err := p.queue.PlayId(id)
	if err != nil {
		return err
	}
	_, pos, _ := p.queue.CurrentSong()
	return p.pc.Play(song, pos)
}

// PlayNext advances to and plays the queue's next song, per Advance's
// repeat/single/consume semantics rather than a bare position increment.
func (p *Partition) PlayNext() error {
	song, pos, ok, oneShotCleared, border := p.queue.Advance()
	if oneShotCleared {
		p.idle.EmitIdle(IdleOptions)
	}
	if border {
		p.BorderPause()
	}
	if !ok {
		return p.Stop()
	}
	return p.pc.Play(song, pos)
}

// PlayPrevious jumps to the song immediately before the current cursor.
func (p *Partition) PlayPrevious() error {
	_, pos, ok := p.queue.CurrentSong()
	if !ok || pos <= 0 {
		return ErrArgument
	}
	return p.PlayPosition(pos - 1)
}

// Stop halts playback.
func (p *Partition) Stop() error {
	p.pc.LockStop()
	return nil
}

// Pause coordinates PlayerControl's pause with every output controller:
// devices that support pause enter a device pause, and the rest close
// their mixer/device outright.
func (p *Partition) Pause(paused bool) error {
	p.pc.LockSetPause(paused)
	return nil
}

// SeekAbsolute seeks the currently playing song to an absolute position.
func (p *Partition) SeekAbsolute(target time.Duration) error {
	return p.pc.LockSeek(target)
}

// SeekRelative seeks by a signed offset from the live elapsed position.
func (p *Partition) SeekRelative(offset time.Duration) error {
	status := p.pc.LockGetStatus()
	target := status.ElapsedTime + offset
	if target < 0 {
		target = 0
	}
	return p.pc.LockSeek(target)
}

// --- Queue editing (delegated directly to Queue) ---------------------

func (p *Partition) AppendURI(song DetachedSong) int { return p.queue.AppendURI(song) }

func (p *Partition) DeletePosition(pos int) error { return p.queue.DeletePosition(pos) }

func (p *Partition) DeleteId(id int) error { return p.queue.DeleteId(id) }

func (p *Partition) DeleteRange(start, end int) error { return p.queue.DeleteRange(start, end) }

func (p *Partition) Shuffle(start, end int) error { return p.queue.Shuffle(start, end) }

func (p *Partition) MoveRange(start, end, to int) error { return p.queue.MoveRange(start, end, to) }

func (p *Partition) SwapPositions(a, b int) error { return p.queue.SwapPositions(a, b) }

func (p *Partition) SwapIds(idA, idB int) error { return p.queue.SwapIds(idA, idB) }

func (p *Partition) SetPriorityRange(start, end int, priority uint8) error {
	return p.queue.SetPriorityRange(start, end, priority)
}

func (p *Partition) SetPriorityId(id int, priority uint8) error {
	return p.queue.SetPriorityId(id, priority)
}

func (p *Partition) ClearQueue() { p.queue.ClearQueue() }

func (p *Partition) StaleSong(uri string) { p.queue.StaleSong(uri) }

// --- Options -----------------------------------------------------------

func (p *Partition) SetRepeat(v bool) { p.queue.SetRepeat(v) }

// SetRandom toggles random order and re-resolves an AUTO replay-gain mode,
// since AUTO's resolution depends on the playback order.
func (p *Partition) SetRandom(v bool) {
	p.queue.SetRandom(v)
	p.UpdateEffectiveReplayGainMode()
}

func (p *Partition) SetSingle(v SingleMode) { p.queue.SetSingle(v) }

func (p *Partition) SetConsume(v ConsumeMode) { p.queue.SetConsume(v) }

// SetReplayGainMode sets the client-chosen mode and re-resolves it.
func (p *Partition) SetReplayGainMode(mode ReplayGainMode) {
	p.mu.Lock()
	p.replayGainMode = mode
	p.mu.Unlock()
	p.memento.SaveReplayGainMode(p.Name, mode)
	p.UpdateEffectiveReplayGainMode()
}

// UpdateEffectiveReplayGainMode resolves AUTO against the queue's current
// playback order and pushes the result to the outputs. AUTO resolves to
// TRACK under random order, ALBUM otherwise.
func (p *Partition) UpdateEffectiveReplayGainMode() {
	p.mu.Lock()
	mode := p.replayGainMode
	p.mu.Unlock()

	resolved := ResolveReplayGainMode(mode, p.queue.IsRandom())
	_ = resolved // applied by each output's replay-gain Filter at LockPlay time
	p.idle.EmitIdle(IdleOptions)
}

// --- Status / error retrieval -------------------------------------------

func (p *Partition) LockGetStatus() PlayerStatus { return p.pc.LockGetStatus() }

func (p *Partition) LockGetError() error { return p.pc.LockGetError() }

func (p *Partition) LockClearError() { p.pc.LockClearError() }

// Idle exposes the partition's idle bus for client subscription.
func (p *Partition) Idle() *IdleBus { return p.idle }

// Stats exposes cumulative playtime/uptime/database counters.
func (p *Partition) Stats() *Stats { return p.stats }

// --- QueueListener -------------------------------------------------------

func (p *Partition) OnQueueModified() {
	p.idle.EmitIdle(IdlePlaylist)
}

func (p *Partition) OnQueueOptionsChanged() {
	p.idle.EmitIdle(IdleOptions)
}

func (p *Partition) OnQueueSongStarted(pos int) {
	p.idle.EmitIdle(IdlePlaylist)
}

// --- PlayerListener -------------------------------------------------------

func (p *Partition) OnPlayerStateChanged() {
	p.idle.EmitIdle(IdlePlayer)
}

func (p *Partition) OnPlayerError(errType PlayerErrorType, err error) {
	p.logger.Warn().Err(err).Str("partition", p.Name).Str("error_type", errType.String()).Msg("player error")
	p.idle.EmitIdle(IdlePlayer)
}

func (p *Partition) OnPlayerTagModified() {
	p.idle.EmitIdle(IdlePlayer)
}

// OnPlayerBorderPause handles the BORDER_PAUSE event the player thread
// raises via Advance's border return value; it downgrades SingleMode's
// ONE_SHOT back to OFF.
func (p *Partition) OnPlayerBorderPause() {
	p.BorderPause()
}

// OnPlayerSync reconciles the queue's cursor with whatever song the player
// thread actually ended up loading, covering the race where the player
// thread autonomously advanced (gapless promotion, or end-of-queue STOP)
// before the queue's own cursor caught up.
func (p *Partition) OnPlayerSync() {
	p.SyncWithPlayer()
}

func (p *Partition) OnPlayerOptionsChanged() {
	p.idle.EmitIdle(IdleOptions)
}

// SyncWithPlayer reconciles queue.cursor with pc.currentSong's position:
// if the player thread promoted to a song the queue hasn't moved its
// cursor to yet (gapless auto-advance), pull the queue forward via
// Advance so QueueListener.OnQueueSongStarted and playlist position stay
// truthful; if the player fell back to STOP with nothing staged, leave
// the queue cursor where Advance already left it.
func (p *Partition) SyncWithPlayer() {
	pos, ok := p.pc.CurrentSongPosition()
	if !ok {
		return
	}
	finishedSong, curPos, curOk := p.queue.CurrentSong()
	if curOk && curPos == pos {
		return
	}
	for curOk && curPos != pos {
		_, nextPos, advanced, oneShotCleared, border := p.queue.Advance()
		if oneShotCleared {
			p.idle.EmitIdle(IdleOptions)
		}
		if border {
			p.BorderPause()
		}
		if !advanced {
			break
		}
		if finishedSong != nil {
			p.stats.RecordSongPlayed(finishedSong.Duration())
		}
		curPos = nextPos
		finishedSong, curPos, curOk = p.queue.CurrentSong()
	}
}

// BorderPause downgrades a ONE_SHOT single mode back to OFF once the
// border pause it requested has been observed.
func (p *Partition) BorderPause() {
	_, random, single, consume := p.queue.Options()
	if single == SingleOneShot {
		p.queue.SetSingle(SingleOff)
	}
	if consume == ConsumeOneShot {
		p.queue.SetConsume(ConsumeOff)
	}
	_ = random
	p.pc.LockSetPause(true)
}

// --- MixerListener -------------------------------------------------------

func (p *Partition) OnMixerVolumeChanged(m *Mixer, volume int) {
	p.memento.SaveVolume(p.Name, volume)
	p.idle.EmitIdle(IdleMixer)
}

func (p *Partition) OnMixerChanged() {
	p.idle.EmitIdle(IdleMixer)
}
