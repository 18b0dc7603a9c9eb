/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package outputs provides GStreamer subprocess-backed implementations of
// engine.DecoderPlugin and engine.OutputPlugin: decoding and rendering both
// happen out-of-process via gst-launch-1.0, communicating over stdout/stdin
// pipes of raw interleaved S16LE PCM.
package outputs

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_radio/internal/engine"
)

const readChunkFrames = 4096

// GStreamerDecoderPlugin decodes a song's URI to raw PCM using a
// gst-launch-1.0 subprocess, pushing chunks onto the MusicPipe as they
// arrive. Grounded on internal/playout/crossfade.go's startDecoder.
type GStreamerDecoderPlugin struct {
	bin    string
	logger zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	format engine.AudioFormat
	done   chan error
}

// NewGStreamerDecoderPlugin constructs an unopened decoder plugin bound to
// gstBin (typically "gst-launch-1.0").
func NewGStreamerDecoderPlugin(gstBin string, logger zerolog.Logger) *GStreamerDecoderPlugin {
	return &GStreamerDecoderPlugin{
		bin:    gstBin,
		logger: logger.With().Str("component", "gst-decoder").Logger(),
		done:   make(chan error, 1),
	}
}

// Start launches the decode subprocess and begins streaming chunks into
// pipe on a background goroutine. It returns once the subprocess has
// started; Format() becomes valid immediately since the target format is
// negotiated at launch time rather than probed.
func (d *GStreamerDecoderPlugin) Start(song *engine.DetachedSong, pipe *engine.MusicPipe) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	format := engine.AudioFormat{SampleRate: 44100, Format: engine.SampleFormatS16, Channels: 2}
	launch := fmt.Sprintf(
		`filesrc location=%q ! decodebin ! audioconvert ! audioresample ! audio/x-raw,format=S16LE,rate=%d,channels=%d ! identity sync=false ! fdsink fd=1`,
		song.URI, format.SampleRate, format.Channels,
	)

	ctx, cancel := context.WithCancel(context.Background())
	shellCmd := fmt.Sprintf("%s -e %s", d.bin, launch)
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("decoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start decoder: %w", err)
	}

	d.cmd = cmd
	d.cancel = cancel
	d.format = format
	d.done = make(chan error, 1)

	d.logger.Debug().Str("uri", song.URI).Int("pid", cmd.Process.Pid).Msg("decoder started")

	go d.pump(cmd, stdout, pipe, format, song.Start, song.End)
	return nil
}

// pump reads fixed-size PCM frames from stdout and pushes them onto pipe
// as chunks until EOF or the process is stopped, then reports the outcome
// on the done channel. gst-launch-1.0's CLI has no seek primitive, so
// trimming to [start, end) is done in software here: frames decoded before
// start are read and discarded rather than pushed.
func (d *GStreamerDecoderPlugin) pump(cmd *exec.Cmd, stdout io.ReadCloser, pipe *engine.MusicPipe, format engine.AudioFormat, start, end time.Duration) {
	buf := make([]byte, readChunkFrames*format.FrameSize())
	var decoded time.Duration
	frameDur := time.Second / time.Duration(format.SampleRate)

	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			frames := n / format.FrameSize()
			chunkStart := decoded
			decoded += time.Duration(frames) * frameDur

			if decoded > start {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunk := engine.NewChunk(format, data)
				chunk.AbsTime = chunkStart - start
				if pushErr := pipe.Push(chunk); pushErr != nil {
					break
				}
			}
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				d.finish(cmd, nil)
				return
			}
			d.finish(cmd, err)
			return
		}
		if end > 0 && decoded >= end {
			d.finish(cmd, nil)
			return
		}
	}
}

func (d *GStreamerDecoderPlugin) finish(cmd *exec.Cmd, err error) {
	waitErr := cmd.Wait()
	if err == nil && waitErr != nil {
		d.mu.Lock()
		stopped := d.cmd != cmd
		d.mu.Unlock()
		if !stopped {
			err = waitErr
		}
	}
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	done <- err
	close(done)
}

// Stop aborts decoding; the subprocess is killed and any chunks it already
// pushed remain in the pipe.
func (d *GStreamerDecoderPlugin) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Seek is unsupported: seeking is implemented by the player thread
// reopening a fresh decoder at the target offset, so this plugin never
// needs to seek in place.
func (d *GStreamerDecoderPlugin) Seek(t float64) error {
	return engine.ErrArgument
}

// Format returns the negotiated PCM layout.
func (d *GStreamerDecoderPlugin) Format() engine.AudioFormat {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

// Done reports decode completion or failure.
func (d *GStreamerDecoderPlugin) Done() <-chan error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// GStreamerOutputPlugin renders PCM to a device (or arbitrary GStreamer
// sink description, e.g. an Icecast shout2send element) via a persistent
// gst-launch-1.0 subprocess fed over stdin. Grounded on
// internal/playout/pipeline.go's Pipeline.Start subprocess lifecycle.
type GStreamerOutputPlugin struct {
	name   string
	bin    string
	sink   string // GStreamer sink element description, e.g. "autoaudiosink" or "shout2send ip=... mount=..."
	logger zerolog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	cancel     context.CancelFunc
	lastFormat engine.AudioFormat
	interrupt  chan struct{}
}

// NewGStreamerOutputPlugin constructs a plugin named name, rendering
// through the given GStreamer sink element description.
func NewGStreamerOutputPlugin(name, gstBin, sink string, logger zerolog.Logger) *GStreamerOutputPlugin {
	return &GStreamerOutputPlugin{
		name:      name,
		bin:       gstBin,
		sink:      sink,
		logger:    logger.With().Str("component", "gst-output").Str("output", name).Logger(),
		interrupt: make(chan struct{}, 1),
	}
}

func (o *GStreamerOutputPlugin) Name() string { return o.name }

// SupportsEnableDisable is true: the subprocess can be freely stopped and
// relaunched.
func (o *GStreamerOutputPlugin) SupportsEnableDisable() bool { return true }

// SupportsPause is false: a GStreamer sink process has no clean device
// pause primitive over a raw stdin feed, so PlayerControl's pause handling
// falls back to closing this output and reopening on resume.
func (o *GStreamerOutputPlugin) SupportsPause() bool { return false }

func (o *GStreamerOutputPlugin) Enable() error  { return nil }
func (o *GStreamerOutputPlugin) Disable() error { return o.Close(false) }

// Open launches the render subprocess for format.
func (o *GStreamerOutputPlugin) Open(format engine.AudioFormat) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cmd != nil {
		return nil
	}

	launch := fmt.Sprintf(
		`fdsrc fd=0 ! audio/x-raw,format=S16LE,rate=%d,channels=%d,layout=interleaved ! audioconvert ! %s`,
		format.SampleRate, format.Channels, o.sink,
	)

	ctx, cancel := context.WithCancel(context.Background())
	shellCmd := fmt.Sprintf("%s -e %s", o.bin, launch)
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("output stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start output: %w", err)
	}

	o.cmd = cmd
	o.stdin = stdin
	o.cancel = cancel
	o.lastFormat = format
	o.logger.Debug().Int("pid", cmd.Process.Pid).Msg("output opened")

	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// Close terminates the render subprocess. drain closes stdin first and
// gives the process a moment to flush before killing it; a hard close
// skips straight to cancellation.
func (o *GStreamerOutputPlugin) Close(drain bool) error {
	o.mu.Lock()
	cmd, stdin, cancel := o.cmd, o.stdin, o.cancel
	o.cmd, o.stdin, o.cancel = nil, nil, nil
	o.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if drain {
		done := make(chan struct{})
		go func() { _ = cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			cancel()
		}
	} else {
		cancel()
	}
	return nil
}

// Play writes data to the subprocess's stdin, honoring Interrupt.
func (o *GStreamerOutputPlugin) Play(data []byte) (int, error) {
	o.mu.Lock()
	stdin := o.stdin
	o.mu.Unlock()
	if stdin == nil {
		return 0, fmt.Errorf("output %q not open", o.name)
	}

	select {
	case <-o.interrupt:
		return 0, engine.ErrInterrupted
	default:
	}

	n, err := stdin.Write(data)
	if err != nil {
		return n, &engine.OutputError{Output: o.name, Err: err}
	}
	return n, nil
}

// Drain blocks briefly to let the subprocess's own internal buffering
// flush; a raw stdin pipe has no explicit drain primitive, so this is a
// bounded sleep rather than a device query.
func (o *GStreamerOutputPlugin) Drain() error {
	time.Sleep(50 * time.Millisecond)
	return nil
}

// Cancel discards buffered audio by closing and relaunching the
// subprocess; a raw shell pipeline has no flush-without-close primitive.
func (o *GStreamerOutputPlugin) Cancel() error {
	o.mu.Lock()
	format := o.lastFormat
	o.mu.Unlock()
	if err := o.Close(false); err != nil {
		return err
	}
	if format.IsValid() {
		return o.Open(format)
	}
	return nil
}

func (o *GStreamerOutputPlugin) BeginPause() error {
	return fmt.Errorf("output %q does not support pause", o.name)
}

func (o *GStreamerOutputPlugin) IteratePause() (bool, error) { return false, nil }

func (o *GStreamerOutputPlugin) EndPause() error { return nil }

// Delay reports that this plugin has no internal backpressure signal
// beyond the OS pipe buffer, so the controller should not wait between
// writes.
func (o *GStreamerOutputPlugin) Delay() time.Duration { return 0 }

// Interrupt unblocks an in-flight Play call.
func (o *GStreamerOutputPlugin) Interrupt() {
	select {
	case o.interrupt <- struct{}{}:
	default:
	}
}

// SendTag is a no-op: this plugin has no inline metadata channel.
func (o *GStreamerOutputPlugin) SendTag(tag engine.Tag) error { return nil }
