package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

// InstrumentedPatients wraps a patient store and records the latency of every
// call, whichever backend sits underneath.
type InstrumentedPatients struct {
	next    patient.Repository
	metrics *metrics.Collector
}

func NewInstrumentedPatients(next patient.Repository, m *metrics.Collector) *InstrumentedPatients {
	return &InstrumentedPatients{next: next, metrics: m}
}

func (r *InstrumentedPatients) observe(op string, start time.Time) {
	r.metrics.StoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *InstrumentedPatients) Create(ctx context.Context, p *patient.Patient) error {
	defer r.observe("create", time.Now())
	return r.next.Create(ctx, p)
}

func (r *InstrumentedPatients) GetByID(ctx context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	defer r.observe("get_by_id", time.Now())
	return r.next.GetByID(ctx, id, doctorID)
}

func (r *InstrumentedPatients) GetByConsultationID(ctx context.Context, consultationID, doctorID string) (*patient.Patient, error) {
	defer r.observe("get_by_consultation_id", time.Now())
	return r.next.GetByConsultationID(ctx, consultationID, doctorID)
}

func (r *InstrumentedPatients) Save(ctx context.Context, p *patient.Patient) error {
	defer r.observe("save", time.Now())
	return r.next.Save(ctx, p)
}

func (r *InstrumentedPatients) Delete(ctx context.Context, id uuid.UUID, doctorID string) error {
	defer r.observe("delete", time.Now())
	return r.next.Delete(ctx, id, doctorID)
}

func (r *InstrumentedPatients) ListByDoctor(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	defer r.observe("list_by_doctor", time.Now())
	return r.next.ListByDoctor(ctx, doctorID)
}

func (r *InstrumentedPatients) ListCreatedSince(ctx context.Context, doctorID string, since time.Time) ([]*patient.Patient, error) {
	defer r.observe("list_created_since", time.Now())
	return r.next.ListCreatedSince(ctx, doctorID, since)
}

func (r *InstrumentedPatients) Search(ctx context.Context, q *patient.SearchQuery) (*patient.PagedPatients, error) {
	defer r.observe("search", time.Now())
	return r.next.Search(ctx, q)
}
