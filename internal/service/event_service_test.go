package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

// blockingPublisher holds every publish until release is closed.
type blockingPublisher struct {
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, _ ...events.Event) error {
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *blockingPublisher) Close() error { return nil }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, ...events.Event) error { return events.ErrUnavailable }

func (failingPublisher) Close() error { return nil }

func TestEventService_DropsWhenBufferFull(t *testing.T) {
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	pub := &blockingPublisher{release: make(chan struct{})}
	svc := NewEventService(pub, 1, time.Second, m, zap.NewNop())

	ev := events.New(events.TypePatientCreated, "doc-1", "p-1", time.Now())
	// One in flight, one buffered, the rest dropped. The worker may not have
	// picked up the first event yet, so allow for one more drop.
	for range 5 {
		svc.Emit(ev)
	}

	dropped := testutil.ToFloat64(m.EventsDroppedTotal)
	if dropped < 3 || dropped > 4 {
		t.Errorf("dropped = %v, want 3 or 4", dropped)
	}

	close(pub.release)
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if published := testutil.ToFloat64(m.EventsPublishedTotal); published+dropped != 5 {
		t.Errorf("published %v + dropped %v != 5", published, dropped)
	}
}

func TestEventService_EmitAfterShutdownIsIgnored(t *testing.T) {
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	pub := &recordingPublisher{}
	svc := NewEventService(pub, 10, time.Second, m, zap.NewNop())

	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	svc.Emit(events.New(events.TypePatientCreated, "doc-1", "p-1", time.Now()))

	if len(pub.types()) != 0 {
		t.Error("event published after shutdown")
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
}

func TestEventService_PublishFailureCountsAsDropped(t *testing.T) {
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	svc := NewEventService(failingPublisher{}, 10, time.Second, m, zap.NewNop())

	svc.Emit(events.New(events.TypePatientCreated, "doc-1", "p-1", time.Now()))
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if got := testutil.ToFloat64(m.EventsDroppedTotal); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
}
