package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/domain"
	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

// memPatients is an in-memory patient store that enforces the version check
// the real backends apply.
type memPatients struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*patient.Patient
	saves    int

	// conflicts makes the next N saves lose a race against a phantom writer.
	conflicts int
}

func newMemPatients() *memPatients {
	return &memPatients{patients: make(map[uuid.UUID]*patient.Patient)}
}

func clonePatient(t *patient.Patient) *patient.Patient {
	b, err := json.Marshal(t)
	if err != nil {
		panic(err)
	}
	var out patient.Patient
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}

func (r *memPatients) Create(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = clonePatient(p)
	return nil
}

func (r *memPatients) GetByID(_ context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.DoctorID != doctorID {
		return nil, patient.ErrPatientNotFound
	}
	return clonePatient(p), nil
}

func (r *memPatients) GetByConsultationID(_ context.Context, consultationID, doctorID string) (*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.DoctorID != doctorID {
			continue
		}
		if _, err := p.Consultation(consultationID); err == nil {
			return clonePatient(p), nil
		}
	}
	return nil, patient.ErrConsultationNotFound
}

func (r *memPatients) Save(_ context.Context, p *patient.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.patients[p.ID]
	if !ok || stored.DoctorID != p.DoctorID {
		return patient.ErrPatientNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		stored.Version++
		return patient.ErrVersionConflict
	}
	if stored.Version != p.Version {
		return patient.ErrVersionConflict
	}
	p.Version++
	r.patients[p.ID] = clonePatient(p)
	r.saves++
	return nil
}

func (r *memPatients) Delete(_ context.Context, id uuid.UUID, doctorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.DoctorID != doctorID {
		return patient.ErrPatientNotFound
	}
	delete(r.patients, id)
	return nil
}

func (r *memPatients) ListByDoctor(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	return r.ListCreatedSince(ctx, doctorID, time.Time{})
}

func (r *memPatients) ListCreatedSince(_ context.Context, doctorID string, since time.Time) ([]*patient.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*patient.Patient, 0)
	for _, p := range r.patients {
		if p.DoctorID == doctorID && !p.CreatedAt.Before(since) {
			out = append(out, clonePatient(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memPatients) Search(ctx context.Context, q *patient.SearchQuery) (*patient.PagedPatients, error) {
	all, _ := r.ListByDoctor(ctx, q.DoctorID)
	matched := make([]*patient.Patient, 0)
	for _, p := range all {
		if q.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Name)) {
			continue
		}
		if q.CreatedFrom != nil && p.CreatedAt.Before(*q.CreatedFrom) {
			continue
		}
		if q.CreatedTo != nil && p.CreatedAt.After(*q.CreatedTo) {
			continue
		}
		matched = append(matched, p)
	}

	start := (q.Page - 1) * q.PageSize
	end := min(start+q.PageSize, len(matched))
	start = min(start, end)
	return &patient.PagedPatients{
		Patients:   matched[start:end],
		TotalCount: int64(len(matched)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: (len(matched) + q.PageSize - 1) / q.PageSize,
	}, nil
}

func (r *memPatients) stored(id uuid.UUID) *patient.Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clonePatient(r.patients[id])
}

type memDoctors struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*domain.Doctor
}

func newMemDoctors() *memDoctors {
	return &memDoctors{doctors: make(map[uuid.UUID]*domain.Doctor)}
}

func (r *memDoctors) Create(_ context.Context, d *domain.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.doctors {
		if existing.Email == d.Email {
			return domain.ErrEmailAlreadyTaken
		}
	}
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *memDoctors) GetByEmail(_ context.Context, email string) (*domain.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.doctors {
		if d.Email == strings.ToLower(email) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrDoctorNotFound
}

func (r *memDoctors) GetByID(_ context.Context, id uuid.UUID) (*domain.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, domain.ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memDoctors) UpdateLoginState(_ context.Context, d *domain.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.doctors[d.ID]
	if !ok {
		return domain.ErrDoctorNotFound
	}
	stored.FailedLoginCount = d.FailedLoginCount
	stored.LockedUntil = d.LockedUntil
	stored.LastLoginAt = d.LastLoginAt
	return nil
}

func (r *memDoctors) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.doctors[id]
	if !ok {
		return domain.ErrDoctorNotFound
	}
	stored.PasswordHash = hash
	return nil
}

func (r *memDoctors) UpdateMFA(_ context.Context, id uuid.UUID, secret string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.doctors[id]
	if !ok {
		return domain.ErrDoctorNotFound
	}
	stored.MFASecret = secret
	stored.MFAEnabled = enabled
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	repo          *memPatients
	pub           *recordingPublisher
	events        *EventService
	metrics       *metrics.Collector
	patients      *PatientService
	consultations *ConsultationService
}

// newTestEnv wires both lifecycle services over one in-memory store with a
// fixed clock and no retry backoff.
func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	log := zap.NewNop()
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	repo := newMemPatients()
	pub := &recordingPublisher{}
	ev := NewEventService(pub, 100, time.Second, m, log)

	ps := NewPatientService(repo, ev, m, 3, log)
	ps.now = func() time.Time { return now }
	ps.retry.backoff = func(int) time.Duration { return 0 }

	cs := NewConsultationService(repo, ev, m, 3, log)
	cs.now = func() time.Time { return now }
	cs.retry.backoff = func(int) time.Duration { return 0 }

	t.Cleanup(func() { _ = ev.Shutdown(context.Background()) })

	return &testEnv{repo: repo, pub: pub, events: ev, metrics: m, patients: ps, consultations: cs}
}

// flushEvents drains the event worker so the publisher can be inspected.
func (e *testEnv) flushEvents(t *testing.T) []events.Type {
	t.Helper()
	if err := e.events.Shutdown(context.Background()); err != nil {
		t.Fatalf("event shutdown: %v", err)
	}
	return e.pub.types()
}

func (e *testEnv) createPatient(t *testing.T, doctorID, name string) *patient.Patient {
	t.Helper()
	p, err := e.patients.CreatePatient(context.Background(), &patient.CreatePatientCommand{
		DoctorID: doctorID,
		Name:     name,
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	return p
}

func ptr[T any](v T) *T { return &v }
