package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
)

// Phase is the lifecycle position of a watch session
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseConnecting
	PhaseActive
	PhaseReconnecting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseStopped:
		return "Stopped"
	case PhaseConnecting:
		return "Connecting"
	case PhaseActive:
		return "Active"
	case PhaseReconnecting:
		return "Reconnecting"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SessionState describes the current watch session
type SessionState struct {
	Phase     Phase
	Attempt   int
	NextRetry time.Time
	Reason    string
	Err       error
}

// Changed is the payload of events.KindCacheChanged
type Changed struct {
	SessionID uint64
	Target    model.Target
}

// StateChanged is the payload of events.KindWatchState
type StateChanged struct {
	SessionID uint64
	Target    model.Target
	State     SessionState
}

// WatchConfig tunes reconnect behaviour
type WatchConfig struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StaleTimeout   time.Duration
}

var errWatchClosed = errors.New("watch stream closed by server")

// DefaultWatchConfig returns the reconnect defaults
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		BackoffInitial: time.Second,
		BackoffMax:     30 * time.Second,
		StaleTimeout:   60 * time.Second,
	}
}

// WatchManager owns the single live watch subscription and its cache
type WatchManager struct {
	client    datasource.ClusterClient
	publisher events.Publisher
	config    WatchConfig
	logger    *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	current *watchSession
}

type watchSession struct {
	id     uint64
	target model.Target
	cache  *ResourceCache
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.RWMutex
	state SessionState
}

// NewWatchManager creates a watch manager
func NewWatchManager(
	client datasource.ClusterClient,
	publisher events.Publisher,
	config WatchConfig,
	logger *zap.Logger,
) *WatchManager {
	defaults := DefaultWatchConfig()
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = defaults.BackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = defaults.BackoffMax
	}
	if config.StaleTimeout <= 0 {
		config.StaleTimeout = defaults.StaleTimeout
	}
	return &WatchManager{
		client:    client,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// Start stops the current session, waits for it to exit and starts a new
// one with a fresh cache. It returns the new session ID.
func (m *WatchManager) Start(target model.Target) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	m.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	s := &watchSession{
		id:     m.nextID,
		target: target,
		cache:  NewResourceCache(target, m.logger),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  SessionState{Phase: PhaseConnecting},
	}
	m.current = s

	m.logger.Info("Starting watch session",
		zap.Uint64("session", s.id),
		zap.Stringer("target", target),
	)

	go m.run(ctx, s)
	return s.id
}

// Stop cancels the current session and waits for it. Safe to call repeatedly.
func (m *WatchManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *WatchManager) stopLocked() {
	s := m.current
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
	s.setState(SessionState{Phase: PhaseStopped})
	m.current = nil

	m.logger.Debug("Watch session stopped",
		zap.Uint64("session", s.id),
		zap.Stringer("target", s.target),
	)
}

// SessionID returns the ID of the live session, or 0 when stopped
func (m *WatchManager) SessionID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0
	}
	return m.current.id
}

// Target returns the target of the live session
func (m *WatchManager) Target() (model.Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return model.Target{}, false
	}
	return m.current.target, true
}

// View returns an immutable snapshot of the live cache
func (m *WatchManager) View() View {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return View{}
	}
	return s.cache.View()
}

// State returns the state of the live session
func (m *WatchManager) State() SessionState {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return SessionState{Phase: PhaseStopped}
	}
	return s.getState()
}

func (s *watchSession) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *watchSession) getState() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (m *WatchManager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.BackoffInitial
	b.MaxInterval = m.config.BackoffMax
	b.MaxElapsedTime = 0 // never give up
	b.Reset()
	return b
}

// run is the session loop: list, resync, watch, and reconnect on failure
func (m *WatchManager) run(ctx context.Context, s *watchSession) {
	defer close(s.done)

	b := m.newBackOff()
	attempt := 0
	var lostAt time.Time

	for {
		if ctx.Err() != nil {
			return
		}
		if attempt == 0 {
			m.transition(s, SessionState{Phase: PhaseConnecting})
		}

		err := m.listAndWatch(ctx, s, func() {
			b.Reset()
			attempt = 0
			lostAt = time.Time{}
		})
		if ctx.Err() != nil {
			return
		}

		err = datasource.Classify(err, datasource.KindTransport)
		if datasource.IsPermanent(err) {
			if datasource.ReasonOf(err) == datasource.ReasonOffline {
				s.cache.MarkOffline()
				m.notifyChanged(s)
			}
			m.logger.Warn("Watch session failed",
				zap.Uint64("session", s.id),
				zap.Stringer("target", s.target),
				zap.Error(err),
			)
			m.transition(s, SessionState{Phase: PhaseFailed, Reason: err.Error(), Err: err})
			return
		}

		if lostAt.IsZero() {
			lostAt = time.Now()
			s.cache.MarkStale()
			m.notifyChanged(s)
		}

		attempt++
		delay := b.NextBackOff()
		m.logger.Info("Watch interrupted, reconnecting",
			zap.Uint64("session", s.id),
			zap.Stringer("target", s.target),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		m.transition(s, SessionState{
			Phase:     PhaseReconnecting,
			Attempt:   attempt,
			NextRetry: time.Now().Add(delay),
			Reason:    err.Error(),
			Err:       err,
		})

		if !m.wait(ctx, s, delay, lostAt) {
			return
		}
	}
}

// listAndWatch performs one list + watch cycle and returns why it ended
func (m *WatchManager) listAndWatch(ctx context.Context, s *watchSession, onActive func()) error {
	list, err := m.client.List(ctx, s.target)
	if err != nil {
		return err
	}

	s.cache.Resync(list.Items)
	onActive()
	m.transition(s, SessionState{Phase: PhaseActive})
	m.notifyChanged(s)

	ch, err := m.client.Watch(ctx, s.target, list.ResourceVersion)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return errWatchClosed
			}
			if event.Type == model.EventError {
				if event.Err == nil {
					return errWatchClosed
				}
				return event.Err
			}
			s.cache.Apply(event.Type, event.Item)
			m.notifyChanged(s)
		}
	}
}

// wait sleeps for the backoff delay. The cache is dropped if the stale
// window runs out meanwhile. Returns false when the session was cancelled.
func (m *WatchManager) wait(ctx context.Context, s *watchSession, delay time.Duration, lostAt time.Time) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	var staleC <-chan time.Time
	if !s.cache.Offline() {
		remaining := m.config.StaleTimeout - time.Since(lostAt)
		if remaining <= 0 {
			m.expire(s)
		} else {
			staleTimer := time.NewTimer(remaining)
			defer staleTimer.Stop()
			staleC = staleTimer.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-staleC:
			m.expire(s)
			staleC = nil
		case <-timer.C:
			return true
		}
	}
}

func (m *WatchManager) expire(s *watchSession) {
	m.logger.Warn("Stale window elapsed, dropping cache",
		zap.Uint64("session", s.id),
		zap.Stringer("target", s.target),
		zap.Duration("stale_timeout", m.config.StaleTimeout),
	)
	s.cache.MarkOffline()
	m.notifyChanged(s)
}

func (m *WatchManager) transition(s *watchSession, state SessionState) {
	s.setState(state)
	m.publisher.Publish(events.Event{
		Kind:    events.KindWatchState,
		Payload: StateChanged{SessionID: s.id, Target: s.target, State: state},
	})
}

func (m *WatchManager) notifyChanged(s *watchSession) {
	m.publisher.Publish(events.Event{
		Kind:    events.KindCacheChanged,
		Payload: Changed{SessionID: s.id, Target: s.target},
	})
}
