// Package playback turns decoded audio units into one continuous output
// stream.
//
// The [Scheduler] keeps a single "next free" timestamp on the output's audio
// clock and starts every unit at max(now, next free), so consecutive units
// play back to back without gaps when they arrive faster than real time and
// never overlap or reorder when they arrive slower. The [Pipeline] decodes
// containers on a single worker goroutine so that decode completion order
// equals submission order.
package playback

import (
	"fmt"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Clock reports the current position of an audio clock. The timeline starts
// at zero when the output starts and is independent of wall-clock time.
type Clock interface {
	Now() time.Duration
}

// Output is an audio sink that can start a buffer at an absolute position on
// its clock.
//
// Play must not block. onEnded, when non-nil, is invoked once the buffer has
// finished playing; it may run on any goroutine, including threads owned by
// the audio driver, so implementations of onEnded must not touch state owned
// by another goroutine without synchronisation.
type Output interface {
	Clock

	// Format returns the format buffers should be in when passed to Play.
	Format() audio.Format

	// Play schedules buf to start at the clock position at. A position in
	// the past starts the buffer immediately.
	Play(buf audio.Buffer, at time.Duration, onEnded func()) error
}

// Slot describes where a unit was placed on the audio clock.
type Slot struct {
	// Now is the clock reading at scheduling time.
	Now time.Duration

	// Start and End bound the unit's playback.
	Start time.Duration
	End   time.Duration
}

// Lag is how far in the future the unit starts, i.e. the amount of audio
// already queued ahead of it.
func (s Slot) Lag() time.Duration { return s.Start - s.Now }

// Scheduler places audio units back to back on an [Output].
//
// A Scheduler is not safe for concurrent use; it is meant to be owned by a
// single goroutine (the session reactor).
type Scheduler struct {
	out  Output
	next time.Duration
}

// NewScheduler returns a Scheduler for out. The first unit starts at the
// clock's current position.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out}
}

// Schedule starts buf at max(now, next free time) and advances the next free
// time by the buffer's duration. When the output rejects the buffer, the next
// free time is left unchanged and the error is returned.
func (s *Scheduler) Schedule(buf audio.Buffer, onEnded func()) (Slot, error) {
	now := s.out.Now()
	start := max(now, s.next)

	if err := s.out.Play(buf, start, onEnded); err != nil {
		return Slot{}, fmt.Errorf("playback: schedule: %w", err)
	}

	s.next = start + buf.Duration()
	return Slot{Now: now, Start: start, End: s.next}, nil
}

// Reset discards any scheduling backlog by moving the next free time to the
// clock's current position. Audio that is already scheduled keeps playing.
// It returns the new next free time.
func (s *Scheduler) Reset() time.Duration {
	s.next = s.out.Now()
	return s.next
}

// NextFreeTime returns the earliest position at which a new unit may start.
func (s *Scheduler) NextFreeTime() time.Duration {
	return s.next
}
