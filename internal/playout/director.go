/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/grimnir_radio/internal/config"
	"github.com/friendsincode/grimnir_radio/internal/engine"
	"github.com/friendsincode/grimnir_radio/internal/engine/outputs"
	"github.com/friendsincode/grimnir_radio/internal/events"
	"github.com/friendsincode/grimnir_radio/internal/models"
	"github.com/friendsincode/grimnir_radio/internal/webstream"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type playoutState struct {
	MediaID   string
	EntryID   string
	StationID string
	Started   time.Time
	Ends      time.Time
}

// Director drives schedule execution and emits now playing events. Media
// entries are played through a per-mount engine.Partition so consecutive
// tracks on the same mount get gapless/crossfade transitions instead of a
// hard process restart; webstream entries still go through Manager's
// one-process-per-mount Pipeline, since ingesting a live stream is outside
// what an OutputPlugin/DecoderPlugin pair is for.
type Director struct {
	db             *gorm.DB
	cfg            *config.Config
	manager        *Manager
	bus            *events.Bus
	webstreamSvc   *webstream.Service
	logger         zerolog.Logger

	mu     sync.Mutex
	played map[string]time.Time
	active map[string]playoutState

	partMu     sync.Mutex
	partitions map[string]*engine.Partition
	runCtx     context.Context
}

// NewDirector creates a playout director.
func NewDirector(db *gorm.DB, cfg *config.Config, manager *Manager, bus *events.Bus, webstreamSvc *webstream.Service, logger zerolog.Logger) *Director {
	return &Director{
		db:           db,
		cfg:          cfg,
		manager:      manager,
		bus:          bus,
		webstreamSvc: webstreamSvc,
		logger:       logger,
		played:       make(map[string]time.Time),
		active:       make(map[string]playoutState),
		partitions:   make(map[string]*engine.Partition),
	}
}

// Run executes the director loop until context cancellation.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Msg("playout director started")
	d.runCtx = ctx
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("playout director stopped")
			d.killPartitions()
			return ctx.Err()
		case <-ticker.C:
			if err := d.tick(ctx); err != nil {
				d.logger.Error().Err(err).Msg("playout director tick failed")
			}
		}
	}
}

// ensurePartition returns the mount's playback partition, building it (one
// software-mixed output backed by a GStreamer subprocess pair, matching the
// GStreamer bin/sink convention Manager's ad hoc launch strings already
// used) the first time the mount plays a media entry.
func (d *Director) ensurePartition(mountID string) *engine.Partition {
	d.partMu.Lock()
	defer d.partMu.Unlock()

	if p, ok := d.partitions[mountID]; ok {
		return p
	}

	logger := d.logger.With().Str("mount", mountID).Logger()
	outputSet := engine.NewMultipleOutputs(logger)
	plugin := outputs.NewGStreamerOutputPlugin(mountID, d.cfg.GStreamerBin, "autoaudiosink sync=true", logger)
	ctrl := engine.NewOutputController(mountID, plugin, nil, true, outputSet, logger, nil, d.cfg.PlayerReopenBackoff)
	outputSet.Add(ctrl, nil, nil, nil)
	ctrl.LockSetEnabled(true)

	gstBin := d.cfg.GStreamerBin
	p := engine.NewPartition(engine.PartitionConfig{
		Name:    mountID,
		Outputs: outputSet,
		Logger:  logger,
		NewDecoder: func() engine.DecoderPlugin {
			return outputs.NewGStreamerDecoderPlugin(gstBin, logger)
		},
		SoftQueueSize:    d.cfg.PlayerSoftQueueSize,
		BufferBeforePlay: d.cfg.PlayerBufferBeforePlay,
		CrossFade:        d.cfg.PlayerCrossFadeDefault,
		MixRampDb:        d.cfg.PlayerMixRampDBDefault,
	})
	p.Start()

	runCtx := d.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}
	go func() {
		if err := p.Run(runCtx); err != nil && err != context.Canceled {
			logger.Debug().Err(err).Msg("partition event loop exited")
		}
	}()

	d.partitions[mountID] = p
	return p
}

// killPartitions tears down every partition's player thread on shutdown.
// Each partition's own Run loop already stopped via runCtx cancellation.
func (d *Director) killPartitions() {
	d.partMu.Lock()
	partitions := make([]*engine.Partition, 0, len(d.partitions))
	for _, p := range d.partitions {
		partitions = append(partitions, p)
	}
	d.partMu.Unlock()

	for _, p := range partitions {
		p.Kill()
	}
}

// stopMountPlayback halts whichever playback mechanism is active for
// mountID: the engine partition if a media entry has ever played there,
// otherwise the legacy GStreamer Pipeline used for webstream entries.
func (d *Director) stopMountPlayback(mountID string) {
	d.partMu.Lock()
	p, ok := d.partitions[mountID]
	d.partMu.Unlock()

	if ok {
		if err := p.Stop(); err != nil {
			d.logger.Debug().Err(err).Str("mount", mountID).Msg("partition stop failed")
		}
		return
	}
	if err := d.manager.StopPipeline(mountID); err != nil {
		d.logger.Debug().Err(err).Str("mount", mountID).Msg("stop pipeline failed")
	}
}

func (d *Director) tick(ctx context.Context) error {
	now := time.Now().UTC()
	d.prunePlayed(now)

	var entries []models.ScheduleEntry
	err := d.db.WithContext(ctx).
		Where("starts_at <= ?", now.Add(5*time.Second)).
		Where("ends_at >= ?", now.Add(-30*time.Second)).
		Order("starts_at ASC").
		Find(&entries).Error
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.StartsAt.After(now) {
			continue
		}

		if d.isPlayed(entry.ID) {
			continue
		}

		if err := d.handleEntry(ctx, entry); err != nil {
			d.logger.Warn().Err(err).Str("entry", entry.ID).Msg("failed to handle schedule entry")
			continue
		}

		d.markPlayed(entry.ID, entry.EndsAt)
	}

	d.emitHealthSnapshot()
	return nil
}

func (d *Director) handleEntry(ctx context.Context, entry models.ScheduleEntry) error {
	switch entry.SourceType {
	case "media":
		return d.startMediaEntry(ctx, entry)
	case "webstream":
		return d.startWebstreamEntry(ctx, entry)
	default:
		d.publishNowPlaying(entry, nil)
		return nil
	}
}

func (d *Director) startMediaEntry(ctx context.Context, entry models.ScheduleEntry) error {
	var media models.MediaItem
	err := d.db.WithContext(ctx).First(&media, "id = ?", entry.SourceID).Error
	if err != nil {
		return err
	}

	d.mu.Lock()
	prev, hasPrev := d.active[entry.MountID]
	d.active[entry.MountID] = playoutState{MediaID: media.ID, EntryID: entry.ID, StationID: entry.StationID, Started: entry.StartsAt, Ends: entry.EndsAt}
	d.mu.Unlock()

	partition := d.ensurePartition(entry.MountID)
	song := engine.DetachedSong{
		URI: media.Path,
		Tag: engine.Tag{Title: media.Title, Artist: media.Artist, Album: media.Album},
		End: media.Duration,
	}
	id := partition.AppendURI(song)
	if partition.LockGetStatus().State == engine.PlayerStop {
		if err := partition.PlayId(id); err != nil {
			d.logger.Warn().Err(err).Str("mount", entry.MountID).Msg("failed to start playback")
		}
	}

	payload := map[string]any{
		"media_id": media.ID,
		"title":    media.Title,
		"artist":   media.Artist,
		"album":    media.Album,
	}

	if hasPrev && prev.MediaID != media.ID {
		d.bus.Publish(events.EventHealth, events.Payload{
			"station_id":        entry.StationID,
			"mount_id":          entry.MountID,
			"previous_media":    prev.MediaID,
			"previous_entry_id": prev.EntryID,
			"current_media":     media.ID,
			"entry_id":          entry.ID,
			"event":             "crossfade",
		})
	}

	d.publishNowPlaying(entry, payload)
	d.scheduleStop(entry.MountID, entry.EndsAt)

	return nil
}

func (d *Director) startWebstreamEntry(ctx context.Context, entry models.ScheduleEntry) error {
	// Get webstream ID from metadata or SourceID
	webstreamID := entry.SourceID
	if webstreamID == "" {
		if id, ok := entry.Metadata["webstream_id"].(string); ok {
			webstreamID = id
		}
	}

	if webstreamID == "" {
		return fmt.Errorf("webstream_id not found in entry")
	}

	// Load webstream from database
	ws, err := d.webstreamSvc.GetWebstream(ctx, webstreamID)
	if err != nil {
		return fmt.Errorf("failed to load webstream: %w", err)
	}

	// Get current URL (respects failover state)
	currentURL := ws.GetCurrentURL()
	if currentURL == "" {
		return fmt.Errorf("no URL configured for webstream %s", webstreamID)
	}

	// Build GStreamer pipeline for webstream
	// souphttpsrc for HTTP/Icecast streams with ICY metadata
	pipeline := fmt.Sprintf("souphttpsrc location=%q is-live=true do-timestamp=true", currentURL)

	// Add ICY metadata extraction if passthrough is enabled
	if ws.PassthroughMetadata {
		pipeline += " iradio-mode=true"
	}

	// Add buffer
	if ws.BufferSizeMS > 0 {
		pipeline += fmt.Sprintf(" ! queue max-size-time=%d000000", ws.BufferSizeMS) // Convert ms to ns
	}

	// Add decoder and output
	pipeline += " ! decodebin ! audioconvert ! audioresample ! queue max-size-buffers=0 max-size-time=0 ! audioconvert ! autoaudiosink sync=true"

	d.mu.Lock()
	prev, hasPrev := d.active[entry.MountID]
	d.active[entry.MountID] = playoutState{
		MediaID:   webstreamID, // Store webstream ID in MediaID field for tracking
		EntryID:   entry.ID,
		StationID: entry.StationID,
		Started:   entry.StartsAt,
		Ends:      entry.EndsAt,
	}
	d.mu.Unlock()

	// Stop previous pipeline
	if err := d.manager.StopPipeline(entry.MountID); err != nil {
		d.logger.Debug().Err(err).Str("mount", entry.MountID).Msg("stop pipeline failed")
	}

	// Start webstream pipeline
	if err := d.manager.EnsurePipeline(ctx, entry.MountID, pipeline); err != nil {
		d.logger.Warn().Err(err).Str("mount", entry.MountID).Msg("failed to start webstream pipeline")
		return err
	}

	// Build metadata payload
	payload := map[string]any{
		"webstream_id":   ws.ID,
		"webstream_name": ws.Name,
		"url":            currentURL,
		"health_status":  ws.HealthStatus,
	}

	// Add custom metadata if override is enabled
	if ws.OverrideMetadata && ws.CustomMetadata != nil {
		for k, v := range ws.CustomMetadata {
			payload[k] = v
		}
	}

	if hasPrev && prev.MediaID != webstreamID {
		d.bus.Publish(events.EventHealth, events.Payload{
			"station_id":        entry.StationID,
			"mount_id":          entry.MountID,
			"previous_source":   prev.MediaID,
			"previous_entry_id": prev.EntryID,
			"current_source":    webstreamID,
			"entry_id":          entry.ID,
			"event":             "source_change",
		})
	}

	d.publishNowPlaying(entry, payload)
	d.scheduleStop(entry.MountID, entry.EndsAt)

	return nil
}

func (d *Director) scheduleStop(mountID string, endsAt time.Time) {
	delay := time.Until(endsAt)
	if delay < 0 {
		delay = 0
	}
	go func(expected time.Time) {
		timer := time.NewTimer(delay + 200*time.Millisecond)
		defer timer.Stop()
		<-timer.C

		d.mu.Lock()
		state, ok := d.active[mountID]
		if !ok || state.Ends.After(expected.Add(500*time.Millisecond)) {
			d.mu.Unlock()
			return
		}
		delete(d.active, mountID)
		d.mu.Unlock()

		d.stopMountPlayback(mountID)
		d.bus.Publish(events.EventHealth, events.Payload{
			"station_id": state.StationID,
			"mount_id":   mountID,
			"entry_id":   state.EntryID,
			"media_id":   state.MediaID,
			"starts_at":  state.Started,
			"ends_at":    state.Ends,
			"event":      "ended",
			"status":     "ended",
		})
	}(endsAt)
}

func (d *Director) emitHealthSnapshot() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for mountID, state := range d.active {
		d.bus.Publish(events.EventHealth, events.Payload{
			"station_id": state.StationID,
			"mount_id":   mountID,
			"entry_id":   state.EntryID,
			"media_id":   state.MediaID,
			"started_at": state.Started,
			"starts_at":  state.Started,
			"ends_at":    state.Ends,
			"status":     "playing",
		})
	}
}

func (d *Director) publishNowPlaying(entry models.ScheduleEntry, extra map[string]any) {
	payload := events.Payload{
		"entry_id":    entry.ID,
		"station_id":  entry.StationID,
		"mount_id":    entry.MountID,
		"source_type": entry.SourceType,
		"source_id":   entry.SourceID,
		"starts_at":   entry.StartsAt,
		"ends_at":     entry.EndsAt,
	}
	for k, v := range entry.Metadata {
		payload[k] = v
	}
	payload["metadata"] = entry.Metadata
	for k, v := range extra {
		payload[k] = v
	}
	d.bus.Publish(events.EventNowPlaying, payload)
}

func (d *Director) isPlayed(entryID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.played[entryID]
	return ok
}

func (d *Director) markPlayed(entryID string, endsAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played[entryID] = endsAt
}

func (d *Director) prunePlayed(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, endsAt := range d.played {
		if endsAt.Add(30 * time.Minute).Before(now) {
			delete(d.played, id)
		}
	}
}
