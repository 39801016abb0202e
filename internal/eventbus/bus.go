// Package eventbus is the in-process publish/subscribe broker a Trader
// process uses to fan inbound gateway updates out to strategies, the IPC
// push path, and the order-command executor.
//
// Handlers registered on the same topic run serialized, in registration
// order, so causally related updates (e.g. two order.update events for the
// same order_id) are observed in order. Handlers on different topics make
// progress independently. A panicking or error-returning handler is logged
// and isolated; it never prevents other handlers from running.
package eventbus

import (
	"log"
	"sync"
	"time"
)

// Handler processes one published payload. A non-nil return value is
// logged but does not stop the bus or sibling handlers.
type Handler func(payload any) error

// DefaultQueueSize is the bounded per-topic backlog. On overflow, Publish
// drops the payload and logs a warning rather than blocking the publisher
// or growing memory without bound.
const DefaultQueueSize = 1000

// tickQueueSize is wider than DefaultQueueSize: tick.update is the
// highest-rate topic, and market-data loss under a burst is preferred to
// blocking the loop, but a too-small buffer would drop routine bursts.
const tickQueueSize = 10000

// StopGrace bounds how long Stop waits for in-flight queues to drain
// before abandoning any unprocessed backlog.
const StopGrace = 2 * time.Second

type topicState struct {
	mu       sync.Mutex
	handlers []Handler
	queue    chan any
	started  bool
}

// Bus is the process-wide event broker for one Trader.
type Bus struct {
	mu      sync.Mutex
	topics  map[Topic]*topicState
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a stopped Bus. Call Start before publishing.
func New() *Bus {
	return &Bus{
		topics: make(map[Topic]*topicState),
		stopCh: make(chan struct{}),
	}
}

func (b *Bus) queueSize(topic Topic) int {
	if topic == TopicTickUpdate {
		return tickQueueSize
	}
	return DefaultQueueSize
}

func (b *Bus) getOrCreate(topic Topic) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[topic]
	if !ok {
		ts = &topicState{queue: make(chan any, b.queueSize(topic))}
		b.topics[topic] = ts
	}
	if b.started && !ts.started {
		ts.started = true
		b.wg.Add(1)
		go b.runTopic(topic, ts)
	}
	return ts
}

// Register adds a handler for topic, appended after any already
// registered for that topic. It is safe to call before or after Start.
func (b *Bus) Register(topic Topic, h Handler) {
	ts := b.getOrCreate(topic)
	ts.mu.Lock()
	ts.handlers = append(ts.handlers, h)
	ts.mu.Unlock()
}

// Publish enqueues payload for topic without blocking the caller. If the
// topic's queue is full, the payload is dropped and a warning logged.
func (b *Bus) Publish(topic Topic, payload any) {
	ts := b.getOrCreate(topic)
	select {
	case ts.queue <- payload:
	default:
		log.Printf("eventbus: queue full for topic %q, dropping payload", topic)
	}
}

// Start launches one worker goroutine per registered topic (and for any
// topic registered afterward). Safe to call once.
func (b *Bus) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	topics := make(map[Topic]*topicState, len(b.topics))
	for k, v := range b.topics {
		topics[k] = v
	}
	b.mu.Unlock()

	for topic, ts := range topics {
		ts.mu.Lock()
		already := ts.started
		ts.started = true
		ts.mu.Unlock()
		if !already {
			b.wg.Add(1)
			go b.runTopic(topic, ts)
		}
	}
}

// Stop signals every topic worker to drain its queue with a grace period
// and then exit, and blocks until all have returned or the grace period
// elapses.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(StopGrace):
		log.Printf("eventbus: stop grace period elapsed with workers still draining")
	}
}

func (b *Bus) runTopic(topic Topic, ts *topicState) {
	defer b.wg.Done()
	for {
		select {
		case payload, ok := <-ts.queue:
			if !ok {
				return
			}
			b.dispatch(topic, ts, payload)
		case <-b.stopCh:
			b.drainWithGrace(topic, ts)
			return
		}
	}
}

// drainWithGrace processes whatever is already queued, up to StopGrace,
// then returns even if items remain (they are dropped).
func (b *Bus) drainWithGrace(topic Topic, ts *topicState) {
	deadline := time.Now().Add(StopGrace)
	for time.Now().Before(deadline) {
		select {
		case payload, ok := <-ts.queue:
			if !ok {
				return
			}
			b.dispatch(topic, ts, payload)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(topic Topic, ts *topicState, payload any) {
	ts.mu.Lock()
	handlers := ts.handlers
	ts.mu.Unlock()

	for _, h := range handlers {
		invokeSafely(topic, h, payload)
	}
}

func invokeSafely(topic Topic, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus: handler for topic %q panicked: %v", topic, r)
		}
	}()
	if err := h(payload); err != nil {
		log.Printf("eventbus: handler for topic %q returned error: %v", topic, err)
	}
}
