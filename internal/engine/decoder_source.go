/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "sync"

// DecoderSource is the per-output bridge between the shared MusicPipe and
// one OutputController's filter chain. Despite the name it does not itself
// decode audio: raw decoding into the pipe is the player thread's job via
// a decoder plugin; DecoderSource peeks chunks already in
// the pipe, runs them through the replay-gain/other-replay-gain/output
// filter chain, and exposes the filtered bytes for PlayChunk to drain.
//
// Fill is called with the owning OutputController's mutex held and may
// drop it temporarily while invoking filters; callers must re-check the
// pending command immediately after it returns.
type DecoderSource struct {
	pipe       *MusicPipe
	consumerID int

	rgFilter     Filter
	otherRG      Filter
	outputFilter Filter

	pending    []byte // filtered bytes not yet consumed by PlayChunk
	pendingTag *Tag
	lastChunk  *Chunk
}

// NewDecoderSource constructs an unopened source.
func NewDecoderSource() *DecoderSource {
	return &DecoderSource{}
}

// Open registers a consumer on pipe and negotiates the output format
// through the filter chain. Any of the filter arguments may be nil, in
// which case a PassthroughFilter is substituted.
func (s *DecoderSource) Open(format AudioFormat, pipe *MusicPipe, rgFilter, otherRG, outputFilter Filter) (AudioFormat, error) {
	if rgFilter == nil {
		rgFilter = &PassthroughFilter{}
	}
	if otherRG == nil {
		otherRG = &PassthroughFilter{}
	}
	if outputFilter == nil {
		outputFilter = &PassthroughFilter{}
	}

	s.pipe = pipe
	s.consumerID = pipe.RegisterConsumer()
	s.rgFilter = rgFilter
	s.otherRG = otherRG
	s.outputFilter = outputFilter
	s.pending = nil
	s.pendingTag = nil
	s.lastChunk = nil

	f, err := rgFilter.Open(format)
	if err != nil {
		return AudioFormat{}, err
	}
	f, err = otherRG.Open(f)
	if err != nil {
		return AudioFormat{}, err
	}
	f, err = outputFilter.Open(f)
	if err != nil {
		return AudioFormat{}, err
	}
	return f, nil
}

// Fill pulls the next unconsumed chunk from the pipe and runs it through
// the filter chain, appending the result to the pending buffer. It
// returns false when there is nothing new to fill (caller should stop
// iterating, not that an error occurred). mu is the OutputController's
// lock, held on entry; Fill unlocks it while running filters.
func (s *DecoderSource) Fill(mu *sync.Mutex) (bool, error) {
	chunk := s.pipe.Peek(s.consumerID)
	if chunk == nil {
		return false, nil
	}

	mu.Unlock()
	data, err := s.rgFilter.FilterPCM(chunk.Data)
	if err == nil {
		data, err = s.otherRG.FilterPCM(data)
	}
	if err == nil {
		data, err = s.outputFilter.FilterPCM(data)
	}
	mu.Lock()

	if err != nil {
		return false, &FilterError{Err: err}
	}

	s.pending = append(s.pending, data...)
	if chunk.Tag != nil {
		s.pendingTag = chunk.Tag
	}
	s.lastChunk = chunk
	s.pipe.Consume(s.consumerID, chunk)
	return true, nil
}

// PeekData returns the filtered bytes not yet consumed.
func (s *DecoderSource) PeekData() []byte { return s.pending }

// ConsumeData advances past n consumed bytes.
func (s *DecoderSource) ConsumeData(n int) {
	if n >= len(s.pending) {
		s.pending = s.pending[:0]
		return
	}
	s.pending = s.pending[n:]
}

// ReadTag returns and clears the most recently seen tag, or nil.
func (s *DecoderSource) ReadTag() *Tag {
	t := s.pendingTag
	s.pendingTag = nil
	return t
}

// Flush drains the filter chain's trailing output (e.g. a resampler's
// internal tail) after the pipe itself has gone dry, for DRAIN.
func (s *DecoderSource) Flush() ([]byte, error) {
	data, err := s.rgFilter.Flush()
	if err != nil {
		return nil, err
	}
	more, err := s.otherRG.Flush()
	if err != nil {
		return nil, err
	}
	data = append(data, more...)
	more, err = s.outputFilter.Flush()
	if err != nil {
		return nil, err
	}
	data = append(data, more...)
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Cancel discards any buffered filtered bytes without closing the source.
func (s *DecoderSource) Cancel() {
	s.pending = s.pending[:0]
	s.pendingTag = nil
}

// Close unregisters the consumer and releases the filter chain.
func (s *DecoderSource) Close() {
	if s.pipe != nil {
		s.pipe.UnregisterConsumer(s.consumerID)
	}
	if s.rgFilter != nil {
		s.rgFilter.Close()
	}
	if s.otherRG != nil {
		s.otherRG.Close()
	}
	if s.outputFilter != nil {
		s.outputFilter.Close()
	}
	s.pipe = nil
	s.pending = nil
	s.pendingTag = nil
}

// IsChunkConsumed reports whether this source's consumer has already
// consumed chunk (used by the player to decide when it can advance the
// pipe further).
func (s *DecoderSource) IsChunkConsumed(chunk *Chunk) bool {
	if s.pipe == nil {
		return true
	}
	return s.pipe.IsConsumed(s.consumerID, chunk)
}
