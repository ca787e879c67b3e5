package miniaudio

import "sync"

// notifier runs callbacks in submission order on one goroutine. Post never
// blocks and never drops, so the audio thread can hand off end-of-playback
// callbacks without waiting on the consumer.
type notifier struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go n.loop()
	return n
}

// Post queues cb. Callbacks posted after Stop are discarded.
func (n *notifier) Post(cbs ...func()) {
	if len(cbs) == 0 {
		return
	}
	n.mu.Lock()
	n.pending = append(n.pending, cbs...)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Stop ends the delivery goroutine and waits for it. Callbacks still queued
// are not run.
func (n *notifier) Stop() {
	close(n.done)
	<-n.stopped
}

func (n *notifier) loop() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case <-n.wake:
		}

		n.mu.Lock()
		batch := n.pending
		n.pending = nil
		n.mu.Unlock()

		for _, cb := range batch {
			select {
			case <-n.done:
				return
			default:
			}
			cb()
		}
	}
}
