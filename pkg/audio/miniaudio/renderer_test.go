package miniaudio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// constBuffer returns a mono 1 kHz buffer of n frames all holding value v.
func constBuffer(n int, v int16) audio.Buffer {
	data := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	return audio.Buffer{Data: data, SampleRate: 1000, Channels: 1}
}

func frames(out []byte) []int16 {
	s := make([]int16, len(out)/2)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	return s
}

func TestRenderer_ClockAdvancesWithRender(t *testing.T) {
	r := NewRenderer(1000)
	if r.Now() != 0 {
		t.Fatalf("Now = %v, want 0", r.Now())
	}
	r.Render(make([]byte, 20))
	if r.Now() != 10*time.Millisecond {
		t.Errorf("Now = %v, want 10ms", r.Now())
	}
}

func TestRenderer_PlaysAtScheduledFrame(t *testing.T) {
	r := NewRenderer(1000)
	r.Schedule(constBuffer(3, 7), 2*time.Millisecond, nil)

	out := make([]byte, 12) // 6 frames
	r.Render(out)

	want := []int16{0, 0, 7, 7, 7, 0}
	got := frames(out)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestRenderer_SpansPeriods(t *testing.T) {
	r := NewRenderer(1000)
	ended := 0
	r.Schedule(constBuffer(5, 1), 0, func() { ended++ })

	out := make([]byte, 6) // 3 frames
	if cbs := r.Render(out); len(cbs) != 0 {
		t.Fatal("buffer ended too early")
	}
	cbs := r.Render(out)
	if len(cbs) != 1 {
		t.Fatalf("expected 1 ended callback, got %d", len(cbs))
	}
	cbs[0]()
	if ended != 1 {
		t.Errorf("ended = %d, want 1", ended)
	}
	if got := frames(out); got[0] != 1 || got[1] != 1 || got[2] != 0 {
		t.Errorf("second period = %v, want [1 1 0]", got)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", r.Pending())
	}
}

func TestRenderer_BackToBackHasNoGap(t *testing.T) {
	r := NewRenderer(1000)
	r.Schedule(constBuffer(2, 1), 0, nil)
	r.Schedule(constBuffer(2, 2), 2*time.Millisecond, nil)

	out := make([]byte, 8)
	r.Render(out)
	got := frames(out)
	want := []int16{1, 1, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}
}

func TestRenderer_LateStartPlaysImmediately(t *testing.T) {
	r := NewRenderer(1000)
	r.Render(make([]byte, 20)) // clock at 10ms

	r.Schedule(constBuffer(1, 9), 3*time.Millisecond, nil)
	out := make([]byte, 4)
	r.Render(out)
	if got := frames(out); got[0] != 9 {
		t.Errorf("frames = %v, want first frame 9", got)
	}
}

func TestRenderer_ClampsOverlap(t *testing.T) {
	r := NewRenderer(1000)
	r.Schedule(constBuffer(1, 30000), 0, nil)
	r.Schedule(constBuffer(1, 30000), 0, nil)

	out := make([]byte, 2)
	r.Render(out)
	if got := frames(out); got[0] != 32767 {
		t.Errorf("mixed sample = %d, want 32767", got[0])
	}
}

func TestRenderer_LongUptime(t *testing.T) {
	const rate = 48000
	for _, uptime := range []time.Duration{54 * time.Hour, 120 * time.Hour, 24 * 365 * time.Hour} {
		r := NewRenderer(rate)
		r.pos = int64(uptime/time.Second) * rate

		if got := r.Now(); got != uptime {
			t.Fatalf("Now at %v = %v", uptime, got)
		}
		if got := r.timeToFrame(uptime); got != r.pos {
			t.Fatalf("timeToFrame(%v) = %d, want %d", uptime, got, r.pos)
		}

		before := r.Now()
		ended := 0
		r.Schedule(constBuffer(rate/100, 3), before+5*time.Millisecond, func() { ended++ })
		out := make([]byte, rate/50*2) // 20ms
		for _, cb := range r.Render(out) {
			cb()
		}
		got := frames(out)
		if got[rate/200-1] != 0 || got[rate/200] != 3 || got[rate/200+rate/100-1] != 3 {
			t.Fatalf("at %v: buffer not placed 5ms after now", uptime)
		}
		if ended != 1 {
			t.Errorf("at %v: ended = %d, want 1", uptime, ended)
		}
		if after := r.Now(); after != before+20*time.Millisecond {
			t.Errorf("at %v: clock moved %v -> %v, want +20ms", uptime, before, after)
		}
	}
}

func TestRenderer_SubSecondRounding(t *testing.T) {
	r := NewRenderer(24000)
	if got := r.timeToFrame(1500 * time.Millisecond); got != 36000 {
		t.Errorf("timeToFrame(1.5s) = %d, want 36000", got)
	}
	if got := r.frameToTime(36001); got != 1500*time.Millisecond+41666 {
		t.Errorf("frameToTime(36001) = %v", got)
	}
}
