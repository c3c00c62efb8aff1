package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

const defaultEventBufferSize = 1_000

// EventService hands clinical events to the publisher off the request path.
// A full buffer drops the event rather than slowing down the write that
// produced it.
type EventService struct {
	pub     events.Publisher
	metrics *metrics.Collector
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan events.Event
	done   chan struct{}
}

func NewEventService(pub events.Publisher, bufferSize int, timeout time.Duration, m *metrics.Collector, log *zap.Logger) *EventService {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	svc := &EventService{
		pub:     pub,
		metrics: m,
		log:     log,
		timeout: timeout,
		queue:   make(chan events.Event, bufferSize),
		done:    make(chan struct{}),
	}
	go svc.worker()
	return svc
}

// Emit enqueues evs without blocking.
func (s *EventService) Emit(evs ...events.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	for _, ev := range evs {
		select {
		case s.queue <- ev:
		default:
			s.metrics.EventsDroppedTotal.Inc()
			s.log.Warn("event buffer full, dropping event",
				zap.String("type", string(ev.Type)),
				zap.String("patient_id", ev.PatientID),
			)
		}
	}
}

// Shutdown stops accepting events and waits for the queue to drain or ctx to
// expire.
func (s *EventService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.log.Warn("event service shutdown timed out; some events may be lost")
		return ctx.Err()
	}
	return s.pub.Close()
}

func (s *EventService) worker() {
	defer close(s.done)
	for ev := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.pub.Publish(ctx, ev)
		cancel()

		if err != nil {
			s.metrics.EventsDroppedTotal.Inc()
			if errors.Is(err, events.ErrUnavailable) {
				s.log.Debug("event broker unavailable, dropping event", zap.String("type", string(ev.Type)))
				continue
			}
			s.log.Error("failed to publish event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		s.metrics.EventsPublishedTotal.Inc()
	}
}
