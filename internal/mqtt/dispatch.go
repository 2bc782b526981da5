package mqtt

import (
	"sync"

	"go.uber.org/zap"
)

// Dispatcher publishes session events from its own goroutine so the
// session loop never waits on the network. Events that do not fit the
// queue are dropped.
type Dispatcher struct {
	pub    Publisher
	logger *zap.SugaredLogger
	queue  chan SessionEvent

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher starts a dispatcher with room for size pending events.
func NewDispatcher(pub Publisher, size int, logger *zap.SugaredLogger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dispatcher{
		pub:    pub,
		logger: logger,
		queue:  make(chan SessionEvent, size),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		if err := d.pub.Publish(ev); err != nil {
			d.logger.Warnf("mqtt: publish %s: %v", ev.Event, err)
		}
	}
}

// Send queues ev without blocking. It reports false if ev was dropped.
// Send must not be called after Close.
func (d *Dispatcher) Send(ev SessionEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Warnf("mqtt: event queue full, dropping %s", ev.Event)
		return false
	}
}

// Close stops accepting events and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.queue) })
	<-d.done
}
