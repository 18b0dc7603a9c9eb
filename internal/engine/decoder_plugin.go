/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

// DecoderPlugin decodes a DetachedSong's URI into PCM chunks pushed onto a
// MusicPipe. Format probing, container demuxing, and codec decode are an
// external collaborator's concern; this interface is the contract the
// player thread drives, with internal/engine/outputs providing a GStreamer
// subprocess-backed implementation.
type DecoderPlugin interface {
	// Start begins decoding song into pipe starting at song.Start, stopping
	// at song.End if set. Start must not block past the point where the
	// first chunk is queued or decoding is known to have failed.
	Start(song *DetachedSong, pipe *MusicPipe) error
	// Stop aborts decoding; pipe may still contain chunks already pushed.
	Stop()
	// Seek requests the decoder resume from t. Returns an error if the
	// format or source does not support seeking.
	Seek(t float64) error
	// Format returns the negotiated output format once known, or the zero
	// AudioFormat before the first chunk is produced.
	Format() AudioFormat
	// Done reports decode completion: a nil error means the song decoded
	// to the end and every chunk is already in the pipe; a non-nil error
	// is a DecoderError the player thread should latch and advance past.
	// Closed (not just unbuffered-empty) once the outcome is known.
	Done() <-chan error
}
