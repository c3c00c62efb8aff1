package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists Patient aggregates. Every method that names a patient
// or a consultation also takes the caller's doctorID and applies it in the
// same query; a record owned by someone else is reported as not found.
type Repository interface {
	// Create persists a new patient with its initial version.
	Create(ctx context.Context, p *Patient) error

	// GetByID returns ErrPatientNotFound if absent or not owned by doctorID.
	GetByID(ctx context.Context, id uuid.UUID, doctorID string) (*Patient, error)

	// GetByConsultationID returns the patient whose history contains the
	// consultation. Returns ErrConsultationNotFound if absent or not owned.
	GetByConsultationID(ctx context.Context, consultationID, doctorID string) (*Patient, error)

	// Save writes the whole aggregate if the stored version still equals
	// p.Version, then increments p.Version. Returns ErrVersionConflict when
	// another write got there first.
	Save(ctx context.Context, p *Patient) error

	// Delete hard-deletes the patient. Returns ErrPatientNotFound if absent
	// or not owned.
	Delete(ctx context.Context, id uuid.UUID, doctorID string) error

	// ListByDoctor returns all of the doctor's patients, newest first.
	ListByDoctor(ctx context.Context, doctorID string) ([]*Patient, error)

	// ListCreatedSince returns the doctor's patients created at or after since,
	// newest first.
	ListCreatedSince(ctx context.Context, doctorID string, since time.Time) ([]*Patient, error)

	// Search returns a page of the doctor's patients matching q.
	Search(ctx context.Context, q *SearchQuery) (*PagedPatients, error)
}
