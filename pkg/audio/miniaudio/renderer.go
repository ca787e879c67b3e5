package miniaudio

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// scheduled is one buffer placed on the frame timeline.
type scheduled struct {
	start   int64 // first frame
	data    []byte
	onEnded func()
}

func (s *scheduled) end() int64 {
	return s.start + int64(len(s.data)/2)
}

// Renderer mixes scheduled mono s16le buffers into device periods. Its
// position advances only when Render is called, so the audio clock it
// reports is the number of frames actually handed to the device.
//
// All methods are safe for concurrent use.
type Renderer struct {
	rate int

	mu    sync.Mutex
	pos   int64
	units []*scheduled
}

// NewRenderer returns a Renderer for a device running at sampleRate.
func NewRenderer(sampleRate int) *Renderer {
	return &Renderer{rate: sampleRate}
}

// Now returns the audio clock: frames rendered so far, as a duration.
func (r *Renderer) Now() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameToTime(r.pos)
}

// Pending returns the number of buffers that have not finished playing.
func (r *Renderer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// Schedule places buf at the clock position at. Positions that have already
// been rendered start at the next rendered frame.
func (r *Renderer) Schedule(buf audio.Buffer, at time.Duration, onEnded func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := &scheduled{
		start:   max(r.timeToFrame(at), r.pos),
		data:    buf.Data[:len(buf.Data)&^1],
		onEnded: onEnded,
	}
	i, _ := slices.BinarySearchFunc(r.units, u.start, func(s *scheduled, start int64) int {
		return cmp.Compare(s.start, start)
	})
	r.units = slices.Insert(r.units, i, u)
}

// Render fills out (mono s16le) with the next len(out)/2 frames and returns
// the end-of-playback callbacks of buffers that finished within them. The
// caller decides where the callbacks run.
func (r *Renderer) Render(out []byte) []func() {
	clear(out)
	frames := int64(len(out) / 2)

	r.mu.Lock()
	defer r.mu.Unlock()

	from, to := r.pos, r.pos+frames
	for _, u := range r.units {
		if u.start >= to {
			break
		}
		lo, hi := max(u.start, from), min(u.end(), to)
		for f := lo; f < hi; f++ {
			src := (f - u.start) * 2
			dst := (f - from) * 2
			mixed := int32(sample(out, dst)) + int32(sample(u.data, src))
			putSample(out, dst, clamp16(mixed))
		}
	}
	r.pos = to

	var ended []func()
	r.units = slices.DeleteFunc(r.units, func(u *scheduled) bool {
		if u.end() > to {
			return false
		}
		if u.onEnded != nil {
			ended = append(ended, u.onEnded)
		}
		return true
	})
	return ended
}

// timeToFrame and frameToTime split whole seconds from the remainder so the
// products stay within int64 for any realistic uptime.
func (r *Renderer) timeToFrame(t time.Duration) int64 {
	if t <= 0 || r.rate <= 0 {
		return 0
	}
	rate := int64(r.rate)
	sec, rem := int64(t/time.Second), int64(t%time.Second)
	return sec*rate + (rem*rate+int64(time.Second)/2)/int64(time.Second)
}

func (r *Renderer) frameToTime(f int64) time.Duration {
	if r.rate <= 0 {
		return 0
	}
	rate := int64(r.rate)
	return time.Duration(f/rate)*time.Second + time.Duration(f%rate)*time.Second/time.Duration(rate)
}

func sample(b []byte, i int64) int16 {
	return int16(b[i]) | int16(b[i+1])<<8
}

func putSample(b []byte, i int64, s int16) {
	b[i] = byte(s)
	b[i+1] = byte(s >> 8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
