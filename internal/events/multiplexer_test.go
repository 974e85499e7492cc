package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startMultiplexer(t *testing.T, tick time.Duration) (*Multiplexer, context.CancelFunc) {
	t.Helper()
	m := NewMultiplexer(tick, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(cancel)
	return m, cancel
}

func next(t *testing.T, m *Multiplexer) Event {
	t.Helper()
	select {
	case e, ok := <-m.Events():
		require.True(t, ok, "event stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// nextNonTick skips ticks and returns the next other event
func nextNonTick(t *testing.T, m *Multiplexer) Event {
	t.Helper()
	for {
		if e := next(t, m); e.Kind != KindTick {
			return e
		}
	}
}

func TestMultiplexerPreservesOrder(t *testing.T) {
	m, _ := startMultiplexer(t, time.Hour)

	m.PublishInput("a")
	m.PublishResize(80, 24)
	m.Publish(Event{Kind: KindCacheChanged, Payload: 1})
	m.PublishInput("b")

	e := nextNonTick(t, m)
	assert.Equal(t, KindInput, e.Kind)
	assert.Equal(t, "a", e.Payload)
	assert.False(t, e.At.IsZero())

	e = nextNonTick(t, m)
	assert.Equal(t, KindResize, e.Kind)
	assert.Equal(t, Resize{Width: 80, Height: 24}, e.Payload)

	e = nextNonTick(t, m)
	assert.Equal(t, KindCacheChanged, e.Kind)

	e = nextNonTick(t, m)
	assert.Equal(t, "b", e.Payload)
}

func TestMultiplexerEmitsTicks(t *testing.T) {
	m, _ := startMultiplexer(t, 5*time.Millisecond)

	e := next(t, m)
	assert.Equal(t, KindTick, e.Kind)
}

func TestMultiplexerCoalescesTicks(t *testing.T) {
	m, _ := startMultiplexer(t, 2*time.Millisecond)

	m.PublishInput("first")
	// Let many ticks pile up behind the unread input
	time.Sleep(100 * time.Millisecond)
	m.PublishInput("second")

	ticks := 0
	sawFirst := false
	for {
		e := next(t, m)
		if e.Kind == KindTick {
			if sawFirst {
				ticks++
			}
			continue
		}
		if e.Payload == "first" {
			sawFirst = true
			continue
		}
		require.Equal(t, "second", e.Payload)
		break
	}
	assert.True(t, sawFirst)
	assert.LessOrEqual(t, ticks, maxPendingTicks)
}

func TestMultiplexerNeverDropsNonTickEvents(t *testing.T) {
	m, _ := startMultiplexer(t, time.Millisecond)

	const producers, perProducer = 4, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				m.Publish(Event{Kind: KindLogLines, Payload: i})
			}
		}()
	}
	wg.Wait()

	got := 0
	for got < producers*perProducer {
		if e := next(t, m); e.Kind == KindLogLines {
			got++
		}
	}
	assert.Equal(t, producers*perProducer, got)
}

func TestMultiplexerShutdown(t *testing.T) {
	m := NewMultiplexer(time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, ok := <-m.Events()
	assert.False(t, ok, "expected output channel to be closed")

	// Publishing after shutdown must not block
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 2*inboxSize; i++ {
			m.PublishInput(i)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked after shutdown")
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "tick", KindTick.String())
	assert.Equal(t, "action-outcome", KindActionOutcome.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
