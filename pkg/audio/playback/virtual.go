package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// ErrOutputClosed is returned by Play after the output has been closed.
var ErrOutputClosed = errors.New("playback: output closed")

// VirtualOutput is an [Output] without a sound device. Its clock follows the
// monotonic wall clock from the moment it was created and end-of-playback
// callbacks fire on timer goroutines at the scheduled end time. It is used
// for headless runs and as a fallback when no device is available.
type VirtualOutput struct {
	format audio.Format
	epoch  time.Time

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

var _ Output = (*VirtualOutput)(nil)

// NewVirtualOutput returns a VirtualOutput reporting the given format.
func NewVirtualOutput(format audio.Format) *VirtualOutput {
	return &VirtualOutput{
		format: format,
		epoch:  time.Now(),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Now implements [Clock].
func (v *VirtualOutput) Now() time.Duration {
	return time.Since(v.epoch)
}

// Format implements [Output].
func (v *VirtualOutput) Format() audio.Format {
	return v.format
}

// Play implements [Output]. The audio itself is discarded.
func (v *VirtualOutput) Play(buf audio.Buffer, at time.Duration, onEnded func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrOutputClosed
	}
	if onEnded == nil {
		return nil
	}

	wait := max(at+buf.Duration()-v.Now(), 0)
	var t *time.Timer
	t = time.AfterFunc(wait, func() {
		v.mu.Lock()
		delete(v.timers, t)
		v.mu.Unlock()
		onEnded()
	})
	v.timers[t] = struct{}{}
	return nil
}

// Close stops all pending end-of-playback timers. Idempotent.
func (v *VirtualOutput) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	for t := range v.timers {
		t.Stop()
	}
	clear(v.timers)
	return nil
}
