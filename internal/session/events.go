package session

import "github.com/MrWong99/earshot/pkg/audio/playback"

// Event is one input to the reactor. The set of events is closed: only the
// types in this file implement it.
type Event interface {
	event()
}

// TransportOpened reports that a stream connection was established.
type TransportOpened struct{}

// TransportClosed reports that the connection closed or a dial failed.
type TransportClosed struct {
	Err error
}

// MessageReceived carries one raw frame from the stream.
type MessageReceived struct {
	Data []byte
}

// DecodeCompleted carries the outcome of decoding one fragment.
type DecodeCompleted struct {
	Result playback.Result
}

// PlaybackEnded reports that a scheduled unit finished playing.
type PlaybackEnded struct {
	Seq uint64
}

// barrier is handled by closing done; it lets Flush wait for the reactor.
type barrier struct {
	done chan struct{}
}

func (TransportOpened) event() {}
func (TransportClosed) event() {}
func (MessageReceived) event() {}
func (DecodeCompleted) event() {}
func (PlaybackEnded) event()   {}
func (barrier) event()         {}
