package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

// ErrChannelSinkClosed is returned by a channel sink once its consumer side
// has been closed.
var ErrChannelSinkClosed = errors.New("channel sink is closed")

// BatchFunc consumes one batch of points.
type BatchFunc func(ctx context.Context, points []domain.Point) error

// CallbackSink forwards every batch to a function. Used for embedding the
// pipeline into other services and for tests.
type CallbackSink struct {
	name string
	fn   BatchFunc
}

func NewCallbackSink(name string, fn BatchFunc) *CallbackSink {
	return &CallbackSink{name: name, fn: fn}
}

func (s *CallbackSink) Name() string { return s.name }

func (s *CallbackSink) WriteBatch(ctx context.Context, points []domain.Point) error {
	return s.fn(ctx, points)
}

// ChannelSink exposes written batches on a channel. Close releases the
// consumer; writes after Close fail with ErrChannelSinkClosed.
type ChannelSink struct {
	name string
	ch   chan []domain.Point

	mu     sync.Mutex
	closed bool
}

func NewChannelSink(name string, buffer int) *ChannelSink {
	return &ChannelSink{
		name: name,
		ch:   make(chan []domain.Point, buffer),
	}
}

func (s *ChannelSink) Name() string { return s.name }

func (s *ChannelSink) Batches() <-chan []domain.Point { return s.ch }

func (s *ChannelSink) WriteBatch(ctx context.Context, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrChannelSinkClosed
	}
	select {
	case s.ch <- points:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

var (
	_ ports.Sink = (*CallbackSink)(nil)
	_ ports.Sink = (*ChannelSink)(nil)
)
