package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind identifies the producer and meaning of an Event
type Kind int

const (
	KindInput Kind = iota
	KindResize
	KindTick
	KindCacheChanged
	KindWatchState
	KindLogLines
	KindLogEnded
	KindActionOutcome
	KindEditFinished
	KindContextsLoaded
	KindNamespacesLoaded
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindResize:
		return "resize"
	case KindTick:
		return "tick"
	case KindCacheChanged:
		return "cache-changed"
	case KindWatchState:
		return "watch-state"
	case KindLogLines:
		return "log-lines"
	case KindLogEnded:
		return "log-ended"
	case KindActionOutcome:
		return "action-outcome"
	case KindEditFinished:
		return "edit-finished"
	case KindContextsLoaded:
		return "contexts-loaded"
	case KindNamespacesLoaded:
		return "namespaces-loaded"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of the multiplexed stream. Payload type depends on Kind
// and is defined by the producing package.
type Event struct {
	Kind    Kind
	At      time.Time
	Payload any
}

// Resize is the payload of KindResize
type Resize struct {
	Width  int
	Height int
}

// Publisher accepts events without blocking the caller for long
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

const (
	// DefaultTickInterval drives spinners, banner expiry and age columns
	DefaultTickInterval = 250 * time.Millisecond

	// maxPendingTicks bounds queued ticks while the consumer is busy
	maxPendingTicks = 2

	inboxSize = 64
)

// Multiplexer merges input, ticks and background notifications into a single
// ordered stream. Producers never wait on the consumer: a pump goroutine
// buffers events in an unbounded FIFO. Only ticks are coalesced.
type Multiplexer struct {
	in           chan Event
	out          chan Event
	done         chan struct{}
	tickInterval time.Duration
	logger       *zap.Logger
}

var _ Publisher = (*Multiplexer)(nil)

// NewMultiplexer creates a multiplexer; call Run to start it
func NewMultiplexer(tickInterval time.Duration, logger *zap.Logger) *Multiplexer {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Multiplexer{
		in:           make(chan Event, inboxSize),
		out:          make(chan Event),
		done:         make(chan struct{}),
		tickInterval: tickInterval,
		logger:       logger,
	}
}

// Events returns the consumer side. It is closed when Run returns.
func (m *Multiplexer) Events() <-chan Event {
	return m.out
}

// Publish enqueues an event. It is a no-op after shutdown.
func (m *Multiplexer) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.in <- e:
	case <-m.done:
	}
}

// PublishInput enqueues an operator input
func (m *Multiplexer) PublishInput(input any) {
	m.Publish(Event{Kind: KindInput, Payload: input})
}

// PublishResize enqueues a terminal resize
func (m *Multiplexer) PublishResize(width, height int) {
	m.Publish(Event{Kind: KindResize, Payload: Resize{Width: width, Height: height}})
}

// Run pumps events until ctx is cancelled, then closes the output channel
func (m *Multiplexer) Run(ctx context.Context) error {
	defer close(m.out)
	defer close(m.done)

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	m.logger.Debug("Event multiplexer started", zap.Duration("tick_interval", m.tickInterval))

	var queue fifo
	for {
		var out chan Event
		var head Event
		if queue.len() > 0 {
			out = m.out
			head = queue.peek()
		}

		select {
		case <-ctx.Done():
			m.logger.Debug("Event multiplexer stopped", zap.Int("pending", queue.len()))
			return nil
		case e := <-m.in:
			queue.push(e)
		case t := <-ticker.C:
			if queue.ticks >= maxPendingTicks {
				queue.dropOldestTick()
			}
			queue.push(Event{Kind: KindTick, At: t})
		case out <- head:
			queue.pop()
		}
	}
}

// fifo is a slice-backed queue that tracks how many ticks it holds
type fifo struct {
	items []Event
	ticks int
}

func (q *fifo) len() int { return len(q.items) }

func (q *fifo) peek() Event { return q.items[0] }

func (q *fifo) push(e Event) {
	q.items = append(q.items, e)
	if e.Kind == KindTick {
		q.ticks++
	}
}

func (q *fifo) pop() {
	if q.items[0].Kind == KindTick {
		q.ticks--
	}
	q.items[0] = Event{}
	q.items = q.items[1:]
}

func (q *fifo) dropOldestTick() {
	for i, e := range q.items {
		if e.Kind == KindTick {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.ticks--
			return
		}
	}
}
