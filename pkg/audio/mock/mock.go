// Package mock provides in-memory mock implementations of the
// [playback.Output] and [playback.Decoder] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := &mock.Output{Fmt: audio.Format{SampleRate: 24000, Channels: 1}}
//	sched := playback.NewScheduler(out)
//	out.Advance(250 * time.Millisecond)
//	sched.Schedule(buf, nil)
//	out.FinishAll() // fire every pending onEnded callback
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/playback"
)

// ─── Output ───────────────────────────────────────────────────────────────────

// PlayCall records the arguments of a single [Output.Play] invocation.
type PlayCall struct {
	// Buffer is the buffer passed to Play.
	Buffer audio.Buffer

	// At is the requested start position.
	At time.Duration

	// Now is the clock reading at the time of the call.
	Now time.Duration
}

// Output is a mock implementation of [playback.Output] driven by a manual
// clock. The clock only moves when the test calls [Output.Advance] or
// [Output.Set].
type Output struct {
	mu sync.Mutex

	// Fmt is returned by [Output.Format].
	Fmt audio.Format

	// PlayError is returned by [Output.Play] when non-nil. Failed calls are
	// still recorded in PlayCalls.
	PlayError error

	// PlayCalls records every Play invocation in order.
	PlayCalls []PlayCall

	now     time.Duration
	pending []func()
}

var _ playback.Output = (*Output)(nil)

// Now implements [playback.Clock].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Advance moves the clock forward by d.
func (o *Output) Advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

// Set moves the clock to t.
func (o *Output) Set(t time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = t
}

// Format implements [playback.Output].
func (o *Output) Format() audio.Format {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Fmt
}

// Play implements [playback.Output]. Successful calls keep onEnded until
// [Output.FinishAll] is called.
func (o *Output) Play(buf audio.Buffer, at time.Duration, onEnded func()) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayCalls = append(o.PlayCalls, PlayCall{Buffer: buf, At: at, Now: o.now})
	if o.PlayError != nil {
		return o.PlayError
	}
	if onEnded != nil {
		o.pending = append(o.pending, onEnded)
	}
	return nil
}

// Calls returns a snapshot of PlayCalls.
func (o *Output) Calls() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlayCall, len(o.PlayCalls))
	copy(out, o.PlayCalls)
	return out
}

// FinishAll invokes and forgets every pending end-of-playback callback, in
// the order the buffers were scheduled. Callbacks run on the calling
// goroutine, outside the mock's lock.
func (o *Output) FinishAll() {
	o.mu.Lock()
	cbs := o.pending
	o.pending = nil
	o.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

// Decoder is a mock implementation of [playback.Decoder].
type Decoder struct {
	mu sync.Mutex

	// DecodeFunc, when set, is called for every Decode invocation.
	DecodeFunc func(ctx context.Context, container []byte) (audio.Buffer, error)

	// DecodeResult and DecodeError are returned when DecodeFunc is nil.
	DecodeResult audio.Buffer
	DecodeError  error

	// DecodeCalls records the container passed to each call.
	DecodeCalls [][]byte
}

var _ playback.Decoder = (*Decoder)(nil)

// Decode implements [playback.Decoder].
func (d *Decoder) Decode(ctx context.Context, container []byte) (audio.Buffer, error) {
	d.mu.Lock()
	d.DecodeCalls = append(d.DecodeCalls, container)
	fn := d.DecodeFunc
	res, err := d.DecodeResult, d.DecodeError
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, container)
	}
	return res, err
}

// CallCount returns the number of Decode invocations.
func (d *Decoder) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DecodeCalls)
}
