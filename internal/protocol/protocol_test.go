package protocol

import (
	"errors"
	"testing"
)

// recordingHandler records every routed call.
type recordingHandler struct {
	status   []bool
	audio    []string
	speaking []bool
}

func (h *recordingHandler) OnStatus(c bool)   { h.status = append(h.status, c) }
func (h *recordingHandler) OnAudio(d string)  { h.audio = append(h.audio, d) }
func (h *recordingHandler) OnSpeaking(s bool) { h.speaking = append(h.speaking, s) }

func (h *recordingHandler) calls() int {
	return len(h.status) + len(h.audio) + len(h.speaking)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"status", KindStatus},
		{"audio", KindAudio},
		{"model_speaking", KindSpeaking},
		{"transcript", KindUnknown},
		{"", KindUnknown},
		{"AUDIO", KindUnknown},
	}
	for _, tc := range tests {
		if got := ParseKind(tc.in); got != tc.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	env, err := Parse([]byte(`{"bot_type":"scooby","type":"audio","data":"AAEC"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Kind() != KindAudio || env.Data != "AAEC" || env.BotType != "scooby" {
		t.Errorf("unexpected envelope: %+v", env)
	}

	for _, raw := range []string{"not json", `{"type":`, `42`, `{"connected":"yes"}`} {
		if _, err := Parse([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q) err = %v, want ErrMalformed", raw, err)
		}
	}
}

func TestDispatcher_Routes(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher("scooby", h)

	frames := []struct {
		raw  string
		want Result
	}{
		{`{"type":"status","connected":true}`, ResultDispatched},
		{`{"type":"status"}`, ResultDispatched},
		{`{"type":"audio","data":"AAEC"}`, ResultDispatched},
		{`{"bot_type":"scooby","type":"model_speaking","speaking":true}`, ResultDispatched},
		{`{"type":"model_speaking"}`, ResultDispatched},
	}
	for _, f := range frames {
		if _, got := d.Dispatch([]byte(f.raw)); got != f.want {
			t.Errorf("Dispatch(%s) = %v, want %v", f.raw, got, f.want)
		}
	}

	if len(h.status) != 2 || !h.status[0] || h.status[1] {
		t.Errorf("status calls = %v, want [true false]", h.status)
	}
	if len(h.audio) != 1 || h.audio[0] != "AAEC" {
		t.Errorf("audio calls = %v", h.audio)
	}
	if len(h.speaking) != 2 || !h.speaking[0] || h.speaking[1] {
		t.Errorf("speaking calls = %v, want [true false]", h.speaking)
	}
}

func TestDispatcher_FiltersOtherBots(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher("scooby", h)

	for _, raw := range []string{
		`{"bot_type":"shaggy","type":"status","connected":true}`,
		`{"bot_type":"shaggy","type":"audio","data":"AAEC"}`,
		`{"bot_type":"shaggy","type":"model_speaking","speaking":true}`,
	} {
		if _, res := d.Dispatch([]byte(raw)); res != ResultFiltered {
			t.Errorf("Dispatch(%s) = %v, want filtered", raw, res)
		}
	}
	if h.calls() != 0 {
		t.Errorf("handler called %d times for foreign envelopes", h.calls())
	}
}

func TestDispatcher_EmptyTagMatchesAll(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher("", h)
	if d.Tag() != DefaultBotTag {
		t.Errorf("Tag() = %q, want %q", d.Tag(), DefaultBotTag)
	}
	if _, res := d.Dispatch([]byte(`{"bot_type":"","type":"status","connected":true}`)); res != ResultDispatched {
		t.Errorf("empty bot_type should be accepted, got %v", res)
	}
}

func TestDispatcher_MalformedAndUnknown(t *testing.T) {
	h := &recordingHandler{}
	d := NewDispatcher("scooby", h)

	tests := []struct {
		raw  string
		want Result
	}{
		{"definitely not json", ResultMalformed},
		{"", ResultMalformed},
		{`[1,2,3]`, ResultMalformed},
		{`{"type":"transcript","text":"hi"}`, ResultUnknown},
		{`{}`, ResultUnknown},
		{`null`, ResultUnknown},
	}
	for _, tc := range tests {
		if _, got := d.Dispatch([]byte(tc.raw)); got != tc.want {
			t.Errorf("Dispatch(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
	if h.calls() != 0 {
		t.Errorf("handler called %d times", h.calls())
	}
}

func TestPreview(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	if got := preview(long); len([]rune(got)) != previewLen+1 {
		t.Errorf("preview length = %d, want %d", len([]rune(got)), previewLen+1)
	}
	if got := preview([]byte("short")); got != "short" {
		t.Errorf("preview = %q", got)
	}
}
