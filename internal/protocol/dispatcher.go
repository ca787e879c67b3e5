package protocol

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBotTag is the recipient tag this client answers to.
const DefaultBotTag = "scooby"

// previewLen bounds how much of a malformed frame is logged.
const previewLen = 200

// Handler receives routed envelopes. All methods are called synchronously on
// the goroutine that called [Dispatcher.Dispatch].
type Handler interface {
	// OnStatus handles a status envelope.
	OnStatus(connected bool)

	// OnAudio handles an audio envelope carrying base64 PCM.
	OnAudio(data string)

	// OnSpeaking handles a model_speaking envelope.
	OnSpeaking(speaking bool)
}

// Result reports what Dispatch did with a frame.
type Result int

const (
	// ResultDispatched means the envelope was routed to the Handler.
	ResultDispatched Result = iota

	// ResultFiltered means the envelope was addressed to another bot.
	ResultFiltered

	// ResultMalformed means the frame could not be parsed.
	ResultMalformed

	// ResultUnknown means the envelope had an unknown or missing type.
	ResultUnknown
)

// String returns a short label suitable for metric attributes.
func (r Result) String() string {
	switch r {
	case ResultDispatched:
		return "dispatched"
	case ResultFiltered:
		return "filtered"
	case ResultMalformed:
		return "malformed"
	case ResultUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Dispatcher parses frames, drops envelopes addressed to other bots and
// routes the rest to a [Handler].
type Dispatcher struct {
	tag     string
	handler Handler
	logger  *slog.Logger

	// Malformed frames can arrive in bursts; keep the log readable.
	malformedLog rate.Sometimes
}

// NewDispatcher returns a Dispatcher answering to tag. An empty tag selects
// [DefaultBotTag].
func NewDispatcher(tag string, h Handler) *Dispatcher {
	if tag == "" {
		tag = DefaultBotTag
	}
	return &Dispatcher{
		tag:          tag,
		handler:      h,
		logger:       slog.Default().With("component", "protocol"),
		malformedLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Tag returns the recipient tag the dispatcher answers to.
func (d *Dispatcher) Tag() string { return d.tag }

// Dispatch parses raw and routes it. Parse failures are logged and the frame
// is dropped; they never reach the Handler.
func (d *Dispatcher) Dispatch(raw []byte) (Envelope, Result) {
	env, err := Parse(raw)
	if err != nil {
		d.malformedLog.Do(func() {
			d.logger.Warn("dropping malformed frame", "err", err, "preview", preview(raw))
		})
		return Envelope{}, ResultMalformed
	}

	if !env.For(d.tag) {
		d.logger.Debug("ignoring envelope for another bot", "bot_type", env.BotType, "expected", d.tag)
		return env, ResultFiltered
	}

	switch env.Kind() {
	case KindStatus:
		d.handler.OnStatus(env.Connected)
	case KindAudio:
		d.handler.OnAudio(env.Data)
	case KindSpeaking:
		d.handler.OnSpeaking(env.Speaking)
	default:
		d.logger.Warn("unknown envelope type", "type", env.Type)
		return env, ResultUnknown
	}
	return env, ResultDispatched
}

func preview(raw []byte) string {
	if len(raw) > previewLen {
		return string(raw[:previewLen]) + "…"
	}
	return string(raw)
}
