package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
)

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"name":      "name",
	"age":       "age",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type PatientRepository struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	p.Normalize()
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("inserting patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) GetByID(ctx context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	var p patient.Patient
	err := r.db.WithContext(ctx).
		Where("id = ? AND doctor_id = ?", id, doctorID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}
	p.Normalize()
	return &p, nil
}

func (r *PatientRepository) GetByConsultationID(ctx context.Context, consultationID, doctorID string) (*patient.Patient, error) {
	needle, err := json.Marshal([]map[string]string{{"consultationId": consultationID}})
	if err != nil {
		return nil, fmt.Errorf("encoding consultation filter: %w", err)
	}

	var p patient.Patient
	err = r.db.WithContext(ctx).
		Where("doctor_id = ? AND consultations @> ?::jsonb", doctorID, string(needle)).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrConsultationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient by consultation: %w", err)
	}
	p.Normalize()
	return &p, nil
}

// Save rewrites the row only while its version still matches the one the
// caller loaded. The owner and creation time are never rewritten.
func (r *PatientRepository) Save(ctx context.Context, p *patient.Patient) error {
	expected := p.Version
	next := *p
	next.Version = expected + 1
	next.Normalize()

	res := r.db.WithContext(ctx).
		Model(&next).
		Select("*").
		Omit("id", "created_at", "doctor_id").
		Where("doctor_id = ? AND version = ?", p.DoctorID, expected).
		Updates(&next)
	if res.Error != nil {
		return fmt.Errorf("saving patient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return patient.ErrVersionConflict
	}

	p.Version = next.Version
	p.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *PatientRepository) Delete(ctx context.Context, id uuid.UUID, doctorID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND doctor_id = ?", id, doctorID).
		Delete(&patient.Patient{})
	if res.Error != nil {
		return fmt.Errorf("deleting patient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return patient.ErrPatientNotFound
	}
	return nil
}

func (r *PatientRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	var ps []*patient.Patient
	err := r.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at DESC").
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	return normalizeAll(ps), nil
}

func (r *PatientRepository) ListCreatedSince(ctx context.Context, doctorID string, since time.Time) ([]*patient.Patient, error) {
	var ps []*patient.Patient
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND created_at >= ?", doctorID, since).
		Order("created_at DESC").
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("listing patients created since %s: %w", since.Format(time.RFC3339), err)
	}
	return normalizeAll(ps), nil
}

func (r *PatientRepository) Search(ctx context.Context, q *patient.SearchQuery) (*patient.PagedPatients, error) {
	base := r.db.WithContext(ctx).Model(&patient.Patient{}).Where("doctor_id = ?", q.DoctorID)

	if name := strings.TrimSpace(q.Name); name != "" {
		base = base.Where("LOWER(name) LIKE ?", "%"+likeEscaper.Replace(strings.ToLower(name))+"%")
	}
	if q.CreatedFrom != nil {
		base = base.Where("created_at >= ?", *q.CreatedFrom)
	}
	if q.CreatedTo != nil {
		base = base.Where("created_at <= ?", *q.CreatedTo)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting patients: %w", err)
	}

	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}

	var ps []*patient.Patient
	err := base.
		Order(fmt.Sprintf("%s %s NULLS LAST, id ASC", col, dir)).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("searching patients: %w", err)
	}

	return &patient.PagedPatients{
		Patients:   normalizeAll(ps),
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages(total, q.PageSize),
	}, nil
}

func normalizeAll(ps []*patient.Patient) []*patient.Patient {
	if ps == nil {
		return []*patient.Patient{}
	}
	for _, p := range ps {
		p.Normalize()
	}
	return ps
}

func totalPages(total int64, size int) int {
	if size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
