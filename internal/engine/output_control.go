/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OutputState is the externally observable lifecycle state of an
// OutputController, reported in status output and as a metrics gauge.
type OutputState int

const (
	OutputStateDisabled OutputState = iota
	OutputStateClosed
	OutputStateOpen
	OutputStatePause
)

func (s OutputState) String() string {
	switch s {
	case OutputStateClosed:
		return "closed"
	case OutputStateOpen:
		return "open"
	case OutputStatePause:
		return "pause"
	default:
		return "disabled"
	}
}

// command is the commandCell payload OutputController's worker goroutine
// dispatches on. cmdNone is the cell's "free" value.
type command int

const (
	cmdNone command = iota
	cmdEnable
	cmdDisable
	cmdOpen
	cmdClose
	cmdPause
	cmdRelease
	cmdDrain
	cmdCancel
	cmdKill
)

// OutputListener receives failure and enable-reconciliation notifications
// from an OutputController. MultipleOutputs implements this.
type OutputListener interface {
	// OnOutputError is called (with no OutputController lock held) whenever
	// a device call fails and the controller arms its fail timer.
	OnOutputError(name string, err error)
	// ApplyEnabled is called after ReplaceDummy swaps in a new plugin, so
	// the owning MultipleOutputs can re-synchronise its enabled-output set
	// exactly as MPD's Control.cxx ReplaceDummy drives client.ApplyEnabled.
	ApplyEnabled(name string, enabled bool)
}

// OutputController is the per-device worker: one goroutine per audio
// output, driven entirely through a single-slot commandCell so a
// long-running operation (PlayChunk looping over a filter chain) can still
// notice a newly posted command between steps.
type OutputController struct {
	name   string
	plugin OutputPlugin
	mixer  *Mixer

	alwaysOn bool

	listener      OutputListener
	logger        zerolog.Logger
	metrics       *Metrics
	reopenBackoff time.Duration

	mu  sync.Mutex
	cmd *commandCell

	enabled bool
	open    bool
	paused  bool

	pipe   *MusicPipe
	format AudioFormat
	source *DecoderSource

	pendingFormat       AudioFormat
	pendingPipe         *MusicPipe
	pendingRG           Filter
	pendingOtherRG      Filter
	pendingOutputFilter Filter

	openErr   error
	lastErr   error
	failUntil time.Time

	done chan struct{}
}

// NewOutputController wraps plugin, optionally coupled to mixer (mixer may
// be nil for a device with no volume control). alwaysOn mirrors an
// "always_on" output config flag: the device stays open even with nothing
// queued to play.
func NewOutputController(name string, plugin OutputPlugin, mixer *Mixer, alwaysOn bool, listener OutputListener, logger zerolog.Logger, metrics *Metrics, reopenBackoff time.Duration) *OutputController {
	c := &OutputController{
		name:          name,
		plugin:        plugin,
		mixer:         mixer,
		alwaysOn:      alwaysOn,
		listener:      listener,
		logger:        logger.With().Str("output", name).Logger(),
		metrics:       metrics,
		reopenBackoff: reopenBackoff,
		done:          make(chan struct{}),
	}
	c.cmd = newCommandCell(&c.mu)
	return c
}

func (c *OutputController) Name() string { return c.name }

// Start launches the controller's worker goroutine. Call once.
func (c *OutputController) Start() {
	go c.run()
}

// run is the worker loop, following the condition-variable mailbox pattern.
// cmdNone means "idle, or actively streaming if open and unpaused"; that
// is the one state PlayChunk/Fill must keep re-checking between chunks.
func (c *OutputController) run() {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(c.done)

	for {
		switch command(c.cmd.value) {
		case cmdNone:
			if c.enabled && c.open && !c.paused {
				c.playLoop()
			} else {
				c.cmd.waitWorkLocked()
			}
		case cmdKill:
			c.internalCloseLocked(false)
			if c.mixer != nil {
				c.mixer.LockClose()
			}
			c.cmd.finishLocked(int(cmdNone))
			return
		default:
			c.dispatchLocked(command(c.cmd.value))
			c.cmd.finishLocked(int(cmdNone))
		}
	}
}

func (c *OutputController) dispatchLocked(cmd command) {
	switch cmd {
	case cmdEnable:
		c.internalEnableLocked()
	case cmdDisable:
		c.internalDisableLocked()
	case cmdOpen:
		c.internalOpenLocked()
	case cmdClose:
		c.internalCloseLocked(false)
		if c.mixer != nil {
			c.mixer.LockClose()
		}
	case cmdPause:
		c.internalPauseLocked()
	case cmdRelease:
		c.internalReleaseLocked()
	case cmdDrain:
		c.internalDrainLocked()
	case cmdCancel:
		c.internalCancelLocked()
	}
}

// playLoop streams chunks to the device while the cell stays at cmdNone.
// It returns as soon as a command is posted or the pipe runs dry, so the
// outer run() loop can react without a dedicated poll.
func (c *OutputController) playLoop() {
	for c.cmd.value == int(cmdNone) && c.open && !c.paused {
		filled, err := c.source.Fill(&c.mu)
		if err != nil {
			c.armFailLocked(err)
			return
		}
		if len(c.source.PeekData()) == 0 {
			if !filled {
				c.cmd.waitWorkLocked()
			}
			continue
		}
		if tag := c.source.ReadTag(); tag != nil {
			c.mu.Unlock()
			_ = c.plugin.SendTag(*tag)
			c.mu.Lock()
		}
		if !c.waitForDelayLocked() {
			continue
		}
		if !c.playChunkLocked() {
			return
		}
	}
}

// waitForDelayLocked sleeps for the plugin's reported Delay() before the
// next Play call, so a device that reports it can't accept data yet (e.g.
// one still draining a previous write) isn't hammered with back-to-back
// writes. The wait is polled in short slices rather than one long sleep so
// a command posted mid-wait is noticed promptly; returns false if that
// happens, mirroring Thread.cxx's WaitForDelay returning false when a
// command is pending.
func (c *OutputController) waitForDelayLocked() bool {
	remaining := c.plugin.Delay()
	for remaining > 0 {
		if c.cmd.value != int(cmdNone) {
			return false
		}
		step := remaining
		if step > currentPipePollInterval {
			step = currentPipePollInterval
		}
		c.mu.Unlock()
		time.Sleep(step)
		c.mu.Lock()
		remaining -= step
	}
	return c.cmd.value == int(cmdNone)
}

// playChunkLocked writes the source's currently pending bytes to the
// device, handling short writes and ErrInterrupted. Returns false if the
// caller should stop (a failure was latched).
func (c *OutputController) playChunkLocked() bool {
	data := c.source.PeekData()
	c.mu.Unlock()
	n, err := c.plugin.Play(data)
	c.mu.Lock()
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			return true
		}
		c.armFailLocked(err)
		return false
	}
	c.source.ConsumeData(n)
	return true
}

func (c *OutputController) internalEnableLocked() {
	if c.enabled {
		return
	}
	if c.plugin.SupportsEnableDisable() {
		c.mu.Unlock()
		err := c.plugin.Enable()
		c.mu.Lock()
		if err != nil {
			c.armFailLocked(err)
			return
		}
	}
	c.enabled = true
	if c.metrics != nil {
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateClosed))
	}
}

func (c *OutputController) internalDisableLocked() {
	if !c.enabled {
		return
	}
	if c.open {
		c.internalCloseLocked(false)
		if c.mixer != nil {
			c.mixer.LockClose()
		}
	}
	if c.plugin.SupportsEnableDisable() {
		c.mu.Unlock()
		_ = c.plugin.Disable()
		c.mu.Lock()
	}
	c.enabled = false
	if c.metrics != nil {
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateDisabled))
	}
}

func (c *OutputController) internalOpenLocked() {
	if c.open {
		c.internalCloseLocked(false)
	}

	source := NewDecoderSource()
	format, err := source.Open(c.pendingFormat, c.pendingPipe, c.pendingRG, c.pendingOtherRG, c.pendingOutputFilter)
	if err == nil {
		c.mu.Unlock()
		err = c.plugin.Open(format)
		c.mu.Lock()
	}
	if err != nil {
		source.Close()
		c.openErr = err
		c.armFailLocked(err)
		return
	}

	c.source = source
	c.pipe = c.pendingPipe
	c.format = c.pendingFormat
	c.open = true
	c.paused = false
	c.openErr = nil
	c.lastErr = nil
	c.failUntil = time.Time{}

	if c.mixer != nil {
		_ = c.mixer.LockOpen()
	}
	if c.metrics != nil {
		c.metrics.OutputOpenTotal.WithLabelValues(c.name).Inc()
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateOpen))
	}
}

// internalCloseLocked closes the device but does not touch the mixer;
// callers decide between a forced close (mixer.LockClose, on CLOSE/KILL) and
// an auto-close that respects global mixers (mixer.LockAutoClose, on
// RELEASE).
func (c *OutputController) internalCloseLocked(drain bool) {
	if !c.open {
		return
	}
	c.mu.Unlock()
	_ = c.plugin.Close(drain)
	c.mu.Lock()

	if c.source != nil {
		c.source.Close()
		c.source = nil
	}
	c.open = false
	c.paused = false
	if c.metrics != nil {
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateClosed))
	}
}

// internalReleaseLocked keeps an always-on device open across RELEASE: it
// is only cancelled and paused, even if the plugin cannot really hold a
// paused state; everything else closes normally.
func (c *OutputController) internalReleaseLocked() {
	if !c.open {
		return
	}
	if c.alwaysOn {
		if c.source != nil {
			c.source.Cancel()
		}
		c.internalPauseLocked()
		if c.mixer != nil {
			c.mixer.LockAutoClose()
		}
		return
	}
	c.internalCloseLocked(false)
	if c.mixer != nil {
		c.mixer.LockAutoClose()
	}
}

func (c *OutputController) internalPauseLocked() {
	if !c.open {
		return
	}
	c.mu.Unlock()
	err := c.plugin.BeginPause()
	c.mu.Lock()
	if err != nil {
		c.armFailLocked(err)
		return
	}
	c.paused = true
	if c.metrics != nil {
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStatePause))
	}

	for c.cmd.value == int(cmdNone) {
		c.mu.Unlock()
		ok, err := c.plugin.IteratePause()
		c.mu.Lock()
		if err != nil {
			c.armFailLocked(err)
			return
		}
		if !ok {
			c.internalCloseLocked(false)
			return
		}
	}

	c.paused = false
	if c.open {
		c.mu.Unlock()
		_ = c.plugin.EndPause()
		c.mu.Lock()
		if c.metrics != nil {
			c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateOpen))
		}
	}
}

func (c *OutputController) internalDrainLocked() {
	if !c.open || c.source == nil {
		return
	}
	tail, err := c.source.Flush()
	if err == nil && len(tail) > 0 {
		c.mu.Unlock()
		_, err = c.plugin.Play(tail)
		c.mu.Lock()
	}
	if err != nil {
		c.armFailLocked(err)
		return
	}
	c.mu.Unlock()
	err = c.plugin.Drain()
	c.mu.Lock()
	if err != nil {
		c.armFailLocked(err)
	}
}

func (c *OutputController) internalCancelLocked() {
	if !c.open {
		return
	}
	if c.source != nil {
		c.source.Cancel()
	}
	c.mu.Unlock()
	_ = c.plugin.Cancel()
	c.mu.Lock()
}

// armFailLocked latches err, arms the reopen backoff (a 10s fail timer,
// configurable via PlayerReopenBackoff), and notifies the listener without
// holding the controller's own lock.
func (c *OutputController) armFailLocked(err error) {
	c.lastErr = err
	c.open = false
	c.paused = false
	c.failUntil = time.Now().Add(c.reopenBackoff)
	c.logger.Warn().Err(err).Msg("output failed, backing off before retry")
	if c.metrics != nil {
		c.metrics.OutputFailTotal.WithLabelValues(c.name).Inc()
		c.metrics.OutputState.WithLabelValues(c.name).Set(float64(OutputStateClosed))
	}
	if c.listener != nil {
		name, e, l := c.name, err, c.listener
		c.mu.Unlock()
		l.OnOutputError(name, e)
		c.mu.Lock()
	}
}

func (c *OutputController) failedLocked() bool {
	return !c.failUntil.IsZero() && time.Now().Before(c.failUntil)
}

// ReadyToRetry reports whether a previously failed open's backoff has
// elapsed, for MultipleOutputs' periodic retry sweep.
func (c *OutputController) ReadyToRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && !c.open && !c.failUntil.IsZero() && !c.failedLocked()
}

// postCommandAsync and postCommandWait interrupt the plugin first, so a
// Play/Drain/IteratePause call the worker goroutine is currently blocked in
// (holding no lock, per playChunkLocked/internalDrainLocked/
// internalPauseLocked) is nudged to return instead of stalling the command
// indefinitely, mirroring Control.cxx calling output->Interrupt() from
// every synchronous command-posting path.
func (c *OutputController) postCommandAsync(cmd command) {
	c.plugin.Interrupt()
	c.mu.Lock()
	c.cmd.waitFreeLocked(int(cmdNone))
	c.cmd.postLocked(int(cmd))
	c.mu.Unlock()
}

func (c *OutputController) postCommandWait(cmd command) {
	c.plugin.Interrupt()
	c.mu.Lock()
	c.cmd.waitFreeLocked(int(cmdNone))
	c.cmd.postLocked(int(cmd))
	c.cmd.waitFreeLocked(int(cmdNone))
	c.mu.Unlock()
}

// EnableDisableAsync posts ENABLE or DISABLE to match wantEnabled without
// blocking the caller on the device open/close call, matching MPD's use of
// this during startup so one slow device can't stall the others.
func (c *OutputController) EnableDisableAsync(wantEnabled bool) {
	if wantEnabled {
		c.postCommandAsync(cmdEnable)
	} else {
		c.postCommandAsync(cmdDisable)
	}
}

// LockSetEnabled blocks until the enable/disable transition completes.
func (c *OutputController) LockSetEnabled(enabled bool) {
	if enabled {
		c.postCommandWait(cmdEnable)
	} else {
		c.postCommandWait(cmdDisable)
	}
}

// LockToggleEnabled flips the enabled flag and returns the new value.
func (c *OutputController) LockToggleEnabled() bool {
	c.mu.Lock()
	next := !c.enabled
	c.mu.Unlock()
	c.LockSetEnabled(next)
	return next
}

// LockPlay ensures the device is open for format/pipe and wakes the worker
// so it picks up newly pushed chunks, per Control.cxx's Play(). Returns the
// latched open error, if any; a disabled or still-backed-off controller
// returns nil and simply does not play.
func (c *OutputController) LockPlay(pipe *MusicPipe, format AudioFormat, rgFilter, otherRG, outputFilter Filter) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}
	if c.failedLocked() {
		c.mu.Unlock()
		return nil
	}

	needOpen := !c.open || c.pipe != pipe || c.format != format
	if needOpen {
		c.cmd.waitFreeLocked(int(cmdNone))
		c.pendingFormat = format
		c.pendingPipe = pipe
		c.pendingRG = rgFilter
		c.pendingOtherRG = otherRG
		c.pendingOutputFilter = outputFilter
		c.cmd.postLocked(int(cmdOpen))
		c.cmd.waitFreeLocked(int(cmdNone))
		if c.openErr != nil {
			err := c.openErr
			c.mu.Unlock()
			return err
		}
	}
	if c.cmd.value == int(cmdNone) {
		c.cmd.workerCond.Signal()
	}
	c.mu.Unlock()
	return nil
}

// Wake nudges a sleeping worker to re-check the pipe, used by PlayerThread
// after pushing a chunk so every already-open output picks it up promptly.
func (c *OutputController) Wake() {
	c.mu.Lock()
	if c.cmd.value == int(cmdNone) {
		c.cmd.workerCond.Signal()
	}
	c.mu.Unlock()
}

func (c *OutputController) LockPauseAsync()  { c.postCommandAsync(cmdPause) }
func (c *OutputController) LockDrainAsync()  { c.postCommandAsync(cmdDrain) }
func (c *OutputController) LockCancelAsync() { c.postCommandAsync(cmdCancel) }

// LockDrain blocks until buffered audio has left the device.
func (c *OutputController) LockDrain() { c.postCommandWait(cmdDrain) }

// LockAllowPlay wakes the worker without forcing an open, used after a
// border-pause release once the player has decided playback may resume.
func (c *OutputController) LockAllowPlay() { c.Wake() }

// LockRelease implements the RELEASE command: give up the device (unless
// always_on) without fully tearing down the controller.
func (c *OutputController) LockRelease() { c.postCommandWait(cmdRelease) }

// LockCloseWait implements the CLOSE command, blocking until the device is
// shut and the mixer force-closed.
func (c *OutputController) LockCloseWait() { c.postCommandWait(cmdClose) }

// BeginDestroy posts KILL without waiting; StopThread blocks until the
// worker goroutine has actually exited.
func (c *OutputController) BeginDestroy() { c.postCommandAsync(cmdKill) }

// StopThread blocks until the worker goroutine launched by Start exits.
func (c *OutputController) StopThread() { <-c.done }

// Steal detaches the currently bound plugin and replaces it with a no-op
// dummy, closing the real device first. Used for live device
// reconfiguration; the returned plugin is the caller's to Close or hand to
// a new controller.
func (c *OutputController) Steal() OutputPlugin {
	c.postCommandWait(cmdClose)
	c.mu.Lock()
	stolen := c.plugin
	c.plugin = &dummyOutputPlugin{name: c.name}
	c.mu.Unlock()
	return stolen
}

// ReplaceDummy swaps in a real plugin after Steal and reconciles the
// enabled-output set through the listener, mirroring Control.cxx's
// ReplaceDummy -> client.ApplyEnabled call chain.
func (c *OutputController) ReplaceDummy(plugin OutputPlugin) {
	c.mu.Lock()
	c.plugin = plugin
	wasEnabled := c.enabled
	c.mu.Unlock()
	if c.listener != nil {
		c.listener.ApplyEnabled(c.name, wasEnabled)
	}
}

func (c *OutputController) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *OutputController) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *OutputController) State() OutputState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case !c.enabled:
		return OutputStateDisabled
	case c.paused:
		return OutputStatePause
	case c.open:
		return OutputStateOpen
	default:
		return OutputStateClosed
	}
}

func (c *OutputController) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// dummyOutputPlugin is the inert placeholder Steal leaves behind.
type dummyOutputPlugin struct{ name string }

func (d *dummyOutputPlugin) Name() string                   { return d.name + " (dummy)" }
func (d *dummyOutputPlugin) SupportsEnableDisable() bool    { return false }
func (d *dummyOutputPlugin) SupportsPause() bool            { return true }
func (d *dummyOutputPlugin) Enable() error                  { return nil }
func (d *dummyOutputPlugin) Disable() error                 { return nil }
func (d *dummyOutputPlugin) Open(AudioFormat) error         { return nil }
func (d *dummyOutputPlugin) Close(bool) error               { return nil }
func (d *dummyOutputPlugin) Play(data []byte) (int, error)  { return len(data), nil }
func (d *dummyOutputPlugin) Drain() error                   { return nil }
func (d *dummyOutputPlugin) Cancel() error                  { return nil }
func (d *dummyOutputPlugin) BeginPause() error               { return nil }
func (d *dummyOutputPlugin) IteratePause() (bool, error)     { return true, nil }
func (d *dummyOutputPlugin) EndPause() error                 { return nil }
func (d *dummyOutputPlugin) Delay() time.Duration             { return 0 }
func (d *dummyOutputPlugin) Interrupt()                       {}
func (d *dummyOutputPlugin) SendTag(Tag) error                 { return nil }
