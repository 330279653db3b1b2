package service

import (
	"log"
	"sync"
	"time"

	"github.com/openfolio/engine/internal/config"
	"github.com/openfolio/engine/internal/model"
)

// Sink receives published events. Delivery is at-most-once; a sink
// error drops the event after logging.
type Sink interface {
	Deliver(event model.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event model.Event) error

// Deliver calls f(event).
func (f SinkFunc) Deliver(event model.Event) error { return f(event) }

// LogSink writes events to the process log. It is the default sink
// when no external fan-out layer is configured.
type LogSink struct{}

// Deliver logs the event.
func (LogSink) Deliver(event model.Event) error {
	log.Printf("event %s account=%s version=%s", event.Type, event.AccountID, event.CalculationVersion)
	return nil
}

type queueKey struct {
	accountID string
	eventType model.EventType
}

// Publisher fans computed updates out to a sink without ever blocking
// the computation pipeline. The queue is bounded; when a newer event
// arrives for an (account, type) pair that already has one queued, the
// older event is replaced, and when the queue is full the oldest entry
// is dropped. Consumers therefore always converge to the latest state
// even under a slow sink.
type Publisher struct {
	sink Sink
	cfg  config.PublisherConfig

	mu      sync.Mutex
	queue   []model.Event
	pending map[queueKey]int
	wake    chan struct{}
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewPublisher creates a Publisher delivering to sink.
func NewPublisher(sink Sink, cfg config.PublisherConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Publisher{
		sink:    sink,
		cfg:     cfg,
		pending: make(map[queueKey]int),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop drains nothing: queued events are abandoned, matching the
// fire-and-forget contract. Safe to call once.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Publish enqueues an event. It never blocks: a queued event of the
// same type for the same account is coalesced to this newer one, and a
// full queue drops its oldest entry.
func (p *Publisher) Publish(event model.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	key := queueKey{accountID: event.AccountID, eventType: event.Type}
	if idx, ok := p.pending[key]; ok {
		p.queue[idx] = event
		p.signal()
		return
	}

	if len(p.queue) >= p.cfg.QueueSize {
		dropped := p.queue[0]
		p.queue = p.queue[1:]
		delete(p.pending, queueKey{accountID: dropped.AccountID, eventType: dropped.Type})
		for k, i := range p.pending {
			p.pending[k] = i - 1
		}
		log.Printf("publish queue full, dropped oldest %s event for account %s", dropped.Type, dropped.AccountID)
	}

	p.pending[key] = len(p.queue)
	p.queue = append(p.queue, event)
	p.signal()
}

func (p *Publisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}

		for {
			event, ok := p.next()
			if !ok {
				break
			}
			if err := p.sink.Deliver(event); err != nil {
				log.Printf("event delivery failed for account %s: %v", event.AccountID, err)
			}
		}
	}
}

func (p *Publisher) next() (model.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return model.Event{}, false
	}
	event := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.pending, queueKey{accountID: event.AccountID, eventType: event.Type})
	for k, i := range p.pending {
		p.pending[k] = i - 1
	}
	return event, true
}
