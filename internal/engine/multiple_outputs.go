/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// outputEntry pairs a controller with the filter chain it was registered
// with. Per-output replay-gain/conversion filters are configuration, not
// per-call state, so Add binds them once rather than threading them
// through every Play call.
type outputEntry struct {
	controller   *OutputController
	rgFilter     Filter
	otherRG      Filter
	outputFilter Filter
}

// MultipleOutputs broadcasts fan-out over every output bound to a
// partition: a Play/Cancel/Drain/Close call reaches every
// controller independently, and one controller's failure never aborts the
// others, mirroring MPD's MultipleOutputs (implied by the per-controller
// independence designed into Control.cxx).
type MultipleOutputs struct {
	mu      sync.Mutex
	entries map[string]*outputEntry
	order   []string

	logger zerolog.Logger

	errMu    sync.Mutex
	lastErrs map[string]error
}

func NewMultipleOutputs(logger zerolog.Logger) *MultipleOutputs {
	return &MultipleOutputs{
		entries:  make(map[string]*outputEntry),
		logger:   logger,
		lastErrs: make(map[string]error),
	}
}

// Add registers a controller, starting its worker goroutine. rgFilter,
// otherRG and outputFilter may be nil.
func (o *MultipleOutputs) Add(c *OutputController, rgFilter, otherRG, outputFilter Filter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[c.Name()] = &outputEntry{controller: c, rgFilter: rgFilter, otherRG: otherRG, outputFilter: outputFilter}
	o.order = append(o.order, c.Name())
	c.Start()
}

// Remove tears down and forgets a controller, e.g. ahead of Steal-based
// device reconfiguration.
func (o *MultipleOutputs) Remove(name string) {
	o.mu.Lock()
	entry, ok := o.entries[name]
	if ok {
		delete(o.entries, name)
		for i, n := range o.order {
			if n == name {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
	o.mu.Unlock()
	if ok {
		entry.controller.BeginDestroy()
	}
}

func (o *MultipleOutputs) list() []*outputEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*outputEntry, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.entries[name])
	}
	return out
}

// Names returns registered output names in registration order.
func (o *MultipleOutputs) Names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := append([]string(nil), o.order...)
	sort.Strings(names)
	return names
}

// Get returns the controller registered under name, or nil.
func (o *MultipleOutputs) Get(name string) *OutputController {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[name]; ok {
		return e.controller
	}
	return nil
}

// Play broadcasts LockPlay to every entry. Per-entry failures are logged
// and recorded, not returned: a broken output must not stop the others
// from playing.
func (o *MultipleOutputs) Play(pipe *MusicPipe, format AudioFormat) {
	for _, e := range o.list() {
		if err := e.controller.LockPlay(pipe, format, e.rgFilter, e.otherRG, e.outputFilter); err != nil {
			o.recordErr(e.controller.Name(), err)
		}
	}
}

// Wake nudges every entry's worker, used right after a chunk is pushed to
// the shared pipe so already-open outputs pick it up without waiting for
// their own next Play call.
func (o *MultipleOutputs) Wake() {
	for _, e := range o.list() {
		e.controller.Wake()
	}
}

// Cancel broadcasts CANCEL to every entry, asynchronously.
func (o *MultipleOutputs) Cancel() {
	for _, e := range o.list() {
		e.controller.LockCancelAsync()
	}
}

// Drain blocks until every entry has drained, running the per-entry waits
// concurrently so one slow device does not serialise behind another.
func (o *MultipleOutputs) Drain() {
	entries := o.list()
	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		e := e
		go func() {
			defer wg.Done()
			e.controller.LockDrain()
		}()
	}
	wg.Wait()
}

// Close blocks until every entry's device is closed.
func (o *MultipleOutputs) Close() {
	entries := o.list()
	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		e := e
		go func() {
			defer wg.Done()
			e.controller.LockCloseWait()
		}()
	}
	wg.Wait()
}

// Release broadcasts RELEASE (give the device up without full teardown,
// unless an entry is always_on).
func (o *MultipleOutputs) Release() {
	entries := o.list()
	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		e := e
		go func() {
			defer wg.Done()
			e.controller.LockRelease()
		}()
	}
	wg.Wait()
}

// CheckPipe reports whether chunk has been consumed by every currently
// enabled entry's source, i.e. whether the player is free to advance the
// pipe head past it.
func (o *MultipleOutputs) CheckPipe(chunk *Chunk) bool {
	for _, e := range o.list() {
		if !e.controller.IsEnabled() {
			continue
		}
		c := e.controller
		c.mu.Lock()
		src := c.source
		c.mu.Unlock()
		if src != nil && !src.IsChunkConsumed(chunk) {
			return false
		}
	}
	return true
}

// EnableDisableAsync reconciles every entry's enabled flag against
// wanted, without blocking on any single device's open/close call.
func (o *MultipleOutputs) EnableDisableAsync(wanted map[string]bool) {
	for _, e := range o.list() {
		if want, ok := wanted[e.controller.Name()]; ok {
			e.controller.EnableDisableAsync(want)
		}
	}
}

// ApplyEnabled implements OutputListener: after a controller's ReplaceDummy
// swaps in a real plugin, re-issue its previous enabled state so the
// worker actually opens the device if it's supposed to be live (mirrors
// Control.cxx's ReplaceDummy -> client.ApplyEnabled).
func (o *MultipleOutputs) ApplyEnabled(name string, enabled bool) {
	if c := o.Get(name); c != nil {
		c.EnableDisableAsync(enabled)
	}
}

// OnOutputError implements OutputListener.
func (o *MultipleOutputs) OnOutputError(name string, err error) {
	o.recordErr(name, err)
	o.logger.Warn().Str("output", name).Err(err).Msg("output error")
}

func (o *MultipleOutputs) recordErr(name string, err error) {
	o.errMu.Lock()
	o.lastErrs[name] = err
	o.errMu.Unlock()
}

// LastError returns the most recently recorded error for name, if any.
func (o *MultipleOutputs) LastError(name string) error {
	o.errMu.Lock()
	defer o.errMu.Unlock()
	return o.lastErrs[name]
}

// RetrySweep calls LockPlay again on every entry whose fail timer has
// expired, giving a previously failed device another chance to open.
func (o *MultipleOutputs) RetrySweep(pipe *MusicPipe, format AudioFormat) {
	for _, e := range o.list() {
		if e.controller.ReadyToRetry() {
			if err := e.controller.LockPlay(pipe, format, e.rgFilter, e.otherRG, e.outputFilter); err != nil {
				o.recordErr(e.controller.Name(), err)
			}
		}
	}
}
