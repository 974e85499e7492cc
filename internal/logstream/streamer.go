package logstream

import (
	"bufio"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourusername/k8s-console/internal/datasource"
	"github.com/yourusername/k8s-console/internal/events"
	"github.com/yourusername/k8s-console/internal/model"
	"go.uber.org/zap"
)

const (
	scannerInitial = 64 * 1024
	scannerMax     = 1024 * 1024

	// flushInterval batches lines read in quick succession into one event
	flushInterval = 50 * time.Millisecond
	maxBatch      = 256

	// DefaultTailLines is how much history a new stream starts with
	DefaultTailLines = 100
)

// Lines is the payload of events.KindLogLines
type Lines struct {
	StreamID uint64
	Key      model.Key
	Lines    []string
}

// Ended is the payload of events.KindLogEnded
type Ended struct {
	StreamID uint64
	Key      model.Key
	Err      error
}

// Config tunes log streaming
type Config struct {
	TailLines int64
	MaxLines  int
}

// Streamer owns at most one live log stream. Lines are read on a background
// goroutine and published; the controller applies them to the Buffer with
// HandleLines on its own goroutine.
type Streamer struct {
	client    datasource.ClusterClient
	publisher events.Publisher
	config    Config
	logger    *zap.Logger

	mu      sync.Mutex
	nextID  uint64
	current *logSession
}

type logSession struct {
	id     uint64
	key    model.Key
	cancel context.CancelFunc
	done   chan struct{}
	buffer *Buffer
	ended  bool
	err    error
}

// NewStreamer creates a log streamer
func NewStreamer(client datasource.ClusterClient, publisher events.Publisher, config Config, logger *zap.Logger) *Streamer {
	if config.TailLines <= 0 {
		config.TailLines = DefaultTailLines
	}
	if config.MaxLines <= 0 {
		config.MaxLines = DefaultMaxLines
	}
	return &Streamer{
		client:    client,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// Start stops any live stream and follows the logs of a pod with a fresh buffer
func (s *Streamer) Start(kubeContext string, key model.Key, container string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	s.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	session := &logSession{
		id:     s.nextID,
		key:    key,
		cancel: cancel,
		done:   make(chan struct{}),
		buffer: NewBuffer(s.config.MaxLines),
	}
	s.current = session

	s.logger.Info("Starting log stream",
		zap.Uint64("stream", session.id),
		zap.String("context", kubeContext),
		zap.Stringer("pod", key),
		zap.String("container", container),
	)

	opts := datasource.LogOptions{Container: container, Follow: true, TailLines: s.config.TailLines}
	go s.run(ctx, session, kubeContext, opts)
	return session.id
}

// Stop cancels the live stream and discards its buffer. Safe to call repeatedly.
func (s *Streamer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Streamer) stopLocked() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	<-s.current.done
	s.logger.Debug("Log stream stopped", zap.Uint64("stream", s.current.id))
	s.current = nil
}

// StreamID returns the live stream ID, or 0
func (s *Streamer) StreamID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.id
}

// Key returns the pod of the live stream
func (s *Streamer) Key() (model.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return model.Key{}, false
	}
	return s.current.key, true
}

// Buffer returns the buffer of the live stream, or nil
func (s *Streamer) Buffer() *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.buffer
}

// Ended reports whether the live stream has finished and why
func (s *Streamer) Ended() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false, nil
	}
	return s.current.ended, s.current.err
}

// HandleLines appends lines that belong to the live stream. Lines from an
// earlier stream are dropped and false is returned.
func (s *Streamer) HandleLines(l Lines) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.id != l.StreamID {
		return false
	}
	s.current.buffer.Append(l.Lines...)
	return true
}

// HandleEnded records the end of the live stream
func (s *Streamer) HandleEnded(e Ended) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.id != e.StreamID {
		return false
	}
	s.current.ended = true
	s.current.err = e.Err
	return true
}

func (s *Streamer) run(ctx context.Context, session *logSession, kubeContext string, opts datasource.LogOptions) {
	defer close(session.done)

	stream, err := s.client.StreamLogs(ctx, kubeContext, session.key, opts)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("Failed to open log stream", zap.Stringer("pod", session.key), zap.Error(err))
			s.publishEnded(session, datasource.Classify(err, datasource.KindTransport))
		}
		return
	}
	defer stream.Close()

	// Closing the body unblocks the scanner when the stream is cancelled
	stopClose := context.AfterFunc(ctx, func() { stream.Close() })
	defer stopClose()

	lineCh := make(chan string, maxBatch)
	var scanErr error
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, scannerInitial), scannerMax)
		for scanner.Scan() {
			select {
			case lineCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		s.publisher.Publish(events.Event{
			Kind:    events.KindLogLines,
			Payload: Lines{StreamID: session.id, Key: session.key, Lines: pending},
		})
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			// Drain so the scanner goroutine can exit
			for range lineCh {
			}
			return
		case line, ok := <-lineCh:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				flush()
				if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
					scanErr = datasource.Classify(scanErr, datasource.KindTransport)
				}
				s.logger.Debug("Log stream ended", zap.Stringer("pod", session.key), zap.Error(scanErr))
				s.publishEnded(session, scanErr)
				return
			}
			pending = append(pending, line)
			if len(pending) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *Streamer) publishEnded(session *logSession, err error) {
	s.publisher.Publish(events.Event{
		Kind:    events.KindLogEnded,
		Payload: Ended{StreamID: session.id, Key: session.key, Err: err},
	})
}
