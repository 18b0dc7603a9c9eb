/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "sync"

// MixerListener receives volume/mixer-set change notifications. Partition
// implements this.
type MixerListener interface {
	OnMixerVolumeChanged(m *Mixer, volume int)
	OnMixerChanged()
}

// Mixer wraps a MixerPlugin with its own lock: an OutputController calls
// mixer.Lock* outside its own mutex, the one permitted cross-lock handoff
// in this package.
type Mixer struct {
	mu     sync.Mutex
	plugin MixerPlugin
	open   bool

	listener MixerListener
}

// NewMixer wraps plugin. listener may be nil.
func NewMixer(plugin MixerPlugin, listener MixerListener) *Mixer {
	return &Mixer{plugin: plugin, listener: listener}
}

// LockOpen opens the mixer if not already open.
func (m *Mixer) LockOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return nil
	}
	if err := m.plugin.Open(); err != nil {
		return err
	}
	m.open = true
	if m.listener != nil {
		m.listener.OnMixerChanged()
	}
	return nil
}

// LockAutoClose closes the mixer unless it is flagged global; global
// mixers stay open across an output close/pause.
func (m *Mixer) LockAutoClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open || m.plugin.Global() {
		return
	}
	_ = m.plugin.Close()
	m.open = false
	if m.listener != nil {
		m.listener.OnMixerChanged()
	}
}

// LockClose force-closes regardless of the global flag. Used on CLOSE, as
// opposed to the RELEASE/pause path which goes through LockAutoClose.
func (m *Mixer) LockClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return
	}
	_ = m.plugin.Close()
	m.open = false
}

// LockGetVolume returns the current volume, or -1 if the mixer is closed.
func (m *Mixer) LockGetVolume() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return -1
	}
	v, err := m.plugin.GetVolume()
	if err != nil {
		return -1
	}
	return v
}

// LockSetVolume sets the volume and notifies the listener.
func (m *Mixer) LockSetVolume(volume int) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	err := m.plugin.SetVolume(volume)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if m.listener != nil {
		m.listener.OnMixerVolumeChanged(m, volume)
	}
	return nil
}

// MixerMemento is a per-partition record of the last client-set volume and
// replay-gain mode, used so a mixer reopening (after a device reconnect or
// process restart) resumes at the previously chosen setting rather than
// the device's power-on default. See RedisMixerMemento for a persisted
// implementation.
type MixerMemento interface {
	LoadVolume(partition string) (volume int, ok bool)
	SaveVolume(partition string, volume int)
	LoadReplayGainMode(partition string) (mode ReplayGainMode, ok bool)
	SaveReplayGainMode(partition string, mode ReplayGainMode)
}

// InMemoryMixerMemento is the default MixerMemento: process-lifetime only.
// It is what a single-instance deployment uses; RedisMixerMemento is the
// multi-instance variant wired in by SPEC_FULL.md's domain stack section.
type InMemoryMixerMemento struct {
	mu       sync.Mutex
	volumes  map[string]int
	rgModes  map[string]ReplayGainMode
}

func NewInMemoryMixerMemento() *InMemoryMixerMemento {
	return &InMemoryMixerMemento{
		volumes: make(map[string]int),
		rgModes: make(map[string]ReplayGainMode),
	}
}

func (m *InMemoryMixerMemento) LoadVolume(partition string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[partition]
	return v, ok
}

func (m *InMemoryMixerMemento) SaveVolume(partition string, volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[partition] = volume
}

func (m *InMemoryMixerMemento) LoadReplayGainMode(partition string) (ReplayGainMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.rgModes[partition]
	return v, ok
}

func (m *InMemoryMixerMemento) SaveReplayGainMode(partition string, mode ReplayGainMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rgModes[partition] = mode
}
