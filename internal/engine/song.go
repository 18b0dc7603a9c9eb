/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import "time"

// DetachedSong is an immutable reference to a song handed to the player:
// a located URI, a tag snapshot taken at enqueue time, optional start/end
// trim offsets, and the source's last-known modification time. Once handed
// to PlayerControl it is never mutated; a later tag update produces a new
// Tag delivered via the tagged-song path (see PlayerControl.ReadTaggedSong),
// not a mutation of this struct.
type DetachedSong struct {
	URI     string
	Tag     Tag
	Start   time.Duration
	End     time.Duration // zero means "play to end"
	ModTime time.Time
}

// Duration returns the trimmed playback duration if End is set, or zero if
// unknown (End == 0).
func (s *DetachedSong) Duration() time.Duration {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}
