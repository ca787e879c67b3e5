package playback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/wav"
)

// ErrQueueFull is returned by [Pipeline.Submit] when the decode queue has no
// room left. The fragment is dropped.
var ErrQueueFull = errors.New("playback: decode queue full")

// defaultQueueDepth is used when NewPipeline is given a non-positive depth.
const defaultQueueDepth = 64

// Decoder turns a container into a playable buffer.
type Decoder interface {
	Decode(ctx context.Context, container []byte) (audio.Buffer, error)
}

// WAVDecoder decodes canonical mono 16-bit WAVE containers and resamples the
// result to SampleRate. A zero SampleRate keeps the container's rate.
type WAVDecoder struct {
	SampleRate int
}

// Decode implements [Decoder].
func (d WAVDecoder) Decode(_ context.Context, container []byte) (audio.Buffer, error) {
	info, pcm, err := wav.Parse(container)
	if err != nil {
		return audio.Buffer{}, err
	}
	if len(pcm) < 2 {
		return audio.Buffer{}, fmt.Errorf("%w: no samples", wav.ErrInvalidContainer)
	}
	buf := audio.Buffer{
		Data:       pcm,
		SampleRate: int(info.SampleRate),
		Channels:   int(info.Channels),
	}
	return audio.Resample(buf, d.SampleRate), nil
}

// Result is the outcome of decoding one submitted container.
type Result struct {
	// Seq is the sequence number returned by Submit.
	Seq uint64

	// Buffer is the decoded audio; zero when Err is non-nil.
	Buffer audio.Buffer

	// Err is the decode error, if any.
	Err error

	// Elapsed is the time spent decoding.
	Elapsed time.Duration
}

type job struct {
	seq       uint64
	container []byte
}

// Pipeline decodes containers on one worker goroutine, in submission order,
// and reports each [Result] to a completion callback.
//
// The callback runs on the worker goroutine. Callers that own state on a
// different goroutine should forward the result rather than act on it
// directly.
type Pipeline struct {
	dec   Decoder
	queue chan job
	done  func(Result)
	seq   atomic.Uint64
}

// NewPipeline returns a Pipeline with a queue of the given depth. done is
// called once per submitted container.
func NewPipeline(dec Decoder, depth int, done func(Result)) *Pipeline {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Pipeline{
		dec:   dec,
		queue: make(chan job, depth),
		done:  done,
	}
}

// Submit enqueues container for decoding and returns its sequence number.
// It never blocks; when the queue is full the container is dropped and
// [ErrQueueFull] is returned.
func (p *Pipeline) Submit(container []byte) (uint64, error) {
	seq := p.seq.Add(1)
	select {
	case p.queue <- job{seq: seq, container: container}:
		return seq, nil
	default:
		return seq, ErrQueueFull
	}
}

// Pending returns the number of containers waiting to be decoded.
func (p *Pipeline) Pending() int {
	return len(p.queue)
}

// Run decodes queued containers until ctx is cancelled. Containers still
// queued at that point are discarded without a callback.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-p.queue:
			start := time.Now()
			buf, err := p.dec.Decode(ctx, j.container)
			res := Result{Seq: j.seq, Elapsed: time.Since(start)}
			if err != nil {
				res.Err = fmt.Errorf("playback: decode #%d: %w", j.seq, err)
			} else {
				res.Buffer = buf
			}
			if p.done != nil {
				p.done(res)
			}
		}
	}
}
