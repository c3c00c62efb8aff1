package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/logger"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

var tracer = otel.Tracer("github.com/krishx009/HomeoCare/internal/service")

const (
	maxNameLen           = 100
	maxMedicalHistoryLen = 5000
	maxFileURLs          = 20
	maxAge               = 150
	maxWeightKg          = 500
	maxHeightCm          = 300

	defaultPageSize = 20
	maxPageSize     = 100
)

type PatientService struct {
	repo    patient.Repository
	events  *EventService
	metrics *metrics.Collector
	retry   writeRetrier
	log     *zap.Logger
	now     func() time.Time
}

func NewPatientService(repo patient.Repository, eventSvc *EventService, m *metrics.Collector, maxWriteAttempts int, log *zap.Logger) *PatientService {
	return &PatientService{
		repo:    repo,
		events:  eventSvc,
		metrics: m,
		retry:   newWriteRetrier(maxWriteAttempts, m, log),
		log:     log,
		now:     patient.Now,
	}
}

func (s *PatientService) CreatePatient(ctx context.Context, cmd *patient.CreatePatientCommand) (*patient.Patient, error) {
	ctx, span := tracer.Start(ctx, "PatientService.CreatePatient")
	defer span.End()

	if err := validateCreatePatient(cmd); err != nil {
		return nil, err
	}

	p := patient.NewPatient(cmd, s.now())
	if err := s.repo.Create(ctx, p); err != nil {
		s.log.Error("failed to create patient", zap.Error(err))
		return nil, traceErr(span, fmt.Errorf("creating patient: %w", err))
	}

	s.metrics.PatientsCreatedTotal.Inc()
	s.events.Emit(events.New(events.TypePatientCreated, p.DoctorID, p.ID.String(), p.CreatedAt))

	s.log.Info("patient created",
		zap.String("patient_id", p.ID.String()),
		zap.String("doctor_id", p.DoctorID),
		zap.String("name", logger.Redact(p.Name)),
	)

	return p, nil
}

func (s *PatientService) GetPatient(ctx context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	ctx, span := tracer.Start(ctx, "PatientService.GetPatient",
		trace.WithAttributes(attribute.String("patient.id", id.String())))
	defer span.End()

	return s.repo.GetByID(ctx, id, doctorID)
}

// UpdatePatient applies a partial update of the scalar fields. The
// consultation history and derived summary are carried over untouched.
func (s *PatientService) UpdatePatient(ctx context.Context, cmd *patient.UpdatePatientCommand) (*patient.Patient, error) {
	ctx, span := tracer.Start(ctx, "PatientService.UpdatePatient",
		trace.WithAttributes(attribute.String("patient.id", cmd.ID.String())))
	defer span.End()

	if err := validateUpdatePatient(cmd); err != nil {
		return nil, err
	}

	var updated *patient.Patient
	err := s.retry.run(ctx, "update_patient", func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, cmd.ID, cmd.DoctorID)
		if err != nil {
			return err
		}
		p.Apply(cmd)
		p.UpdatedAt = s.now()
		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, traceErr(span, err)
	}

	return updated, nil
}

func (s *PatientService) DeletePatient(ctx context.Context, id uuid.UUID, doctorID string) error {
	ctx, span := tracer.Start(ctx, "PatientService.DeletePatient",
		trace.WithAttributes(attribute.String("patient.id", id.String())))
	defer span.End()

	if err := s.repo.Delete(ctx, id, doctorID); err != nil {
		return traceErr(span, err)
	}

	s.events.Emit(events.New(events.TypePatientDeleted, doctorID, id.String(), s.now()))
	s.log.Info("patient deleted", zap.String("patient_id", id.String()), zap.String("doctor_id", doctorID))
	return nil
}

func (s *PatientService) ListPatients(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	ctx, span := tracer.Start(ctx, "PatientService.ListPatients")
	defer span.End()

	return s.repo.ListByDoctor(ctx, doctorID)
}

// TodaysPatients returns the patients registered since local midnight.
func (s *PatientService) TodaysPatients(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	ctx, span := tracer.Start(ctx, "PatientService.TodaysPatients")
	defer span.End()

	return s.repo.ListCreatedSince(ctx, doctorID, patient.StartOfDay(s.now()))
}

// DateRange names a preset window over the registration date.
type DateRange string

const (
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
	RangeYear  DateRange = "year"
)

// SearchPatientsQuery is the raw search request. Date filters are applied in
// precedence order: Range, then StartDate/EndDate, then Month (with Year),
// then Year alone.
type SearchPatientsQuery struct {
	DoctorID  string
	Query     string
	Range     DateRange
	StartDate *time.Time
	EndDate   *time.Time
	Month     int
	Year      int
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

func (s *PatientService) SearchPatients(ctx context.Context, in *SearchPatientsQuery) (*patient.PagedPatients, error) {
	ctx, span := tracer.Start(ctx, "PatientService.SearchPatients")
	defer span.End()

	q, err := s.resolveSearch(in)
	if err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, q)
}

func (s *PatientService) resolveSearch(in *SearchPatientsQuery) (*patient.SearchQuery, error) {
	var v validator
	v.check(in.Range == "" || in.Range == RangeToday || in.Range == RangeWeek || in.Range == RangeMonth || in.Range == RangeYear,
		"dateRange must be one of today, week, month, year")
	v.check(in.Month >= 0 && in.Month <= 12, "month must be between 1 and 12")
	v.check(in.Year >= 0 && in.Year <= 9999, "year is invalid")
	v.check(in.Limit >= 0 && in.Limit <= maxPageSize, fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	v.check(in.Page >= 0, "page must be positive")
	if in.StartDate != nil && in.EndDate != nil {
		v.check(!in.EndDate.Before(*in.StartDate), "endDate must not be before startDate")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	q := &patient.SearchQuery{
		DoctorID:  in.DoctorID,
		Name:      strings.TrimSpace(in.Query),
		SortBy:    in.SortBy,
		SortOrder: strings.ToLower(in.SortOrder),
		Page:      in.Page,
		PageSize:  in.Limit,
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}

	now := s.now()
	today := patient.StartOfDay(now)
	from := func(t time.Time) { q.CreatedFrom = &t }
	to := func(t time.Time) { q.CreatedTo = &t }

	switch {
	case in.Range == RangeToday:
		from(today)
		to(endOfDay(today))
	case in.Range == RangeWeek:
		from(today.AddDate(0, 0, -int(today.Weekday())))
	case in.Range == RangeMonth:
		from(time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.Local))
	case in.Range == RangeYear:
		from(time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.Local))
	case in.StartDate != nil || in.EndDate != nil:
		if in.StartDate != nil {
			from(patient.StartOfDay(*in.StartDate))
		}
		if in.EndDate != nil {
			to(endOfDay(patient.StartOfDay(*in.EndDate)))
		}
	case in.Month > 0:
		year := in.Year
		if year == 0 {
			year = today.Year()
		}
		start := time.Date(year, time.Month(in.Month), 1, 0, 0, 0, 0, time.Local)
		from(start)
		to(start.AddDate(0, 1, 0).Add(-time.Nanosecond))
	case in.Year > 0:
		start := time.Date(in.Year, time.January, 1, 0, 0, 0, 0, time.Local)
		from(start)
		to(start.AddDate(1, 0, 0).Add(-time.Nanosecond))
	}

	return q, nil
}

func endOfDay(midnight time.Time) time.Time {
	return midnight.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func validateCreatePatient(cmd *patient.CreatePatientCommand) error {
	var v validator

	name := strings.TrimSpace(cmd.Name)
	v.check(name != "", "name is required")
	v.check(utf8.RuneCountInString(name) <= maxNameLen, fmt.Sprintf("name must be at most %d characters", maxNameLen))
	validateVitals(&v, cmd.Age, cmd.Weight, cmd.Height)
	v.check(utf8.RuneCountInString(cmd.MedicalHistory) <= maxMedicalHistoryLen,
		fmt.Sprintf("medicalHistory must be at most %d characters", maxMedicalHistoryLen))
	validateFileURLs(&v, cmd.FileURLs)

	return v.err()
}

func validateUpdatePatient(cmd *patient.UpdatePatientCommand) error {
	var v validator

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		v.check(name != "", "name cannot be empty")
		v.check(utf8.RuneCountInString(name) <= maxNameLen, fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}
	validateVitals(&v, cmd.Age, cmd.Weight, cmd.Height)
	if cmd.MedicalHistory != nil {
		v.check(utf8.RuneCountInString(*cmd.MedicalHistory) <= maxMedicalHistoryLen,
			fmt.Sprintf("medicalHistory must be at most %d characters", maxMedicalHistoryLen))
	}
	if cmd.FileURLs != nil {
		validateFileURLs(&v, *cmd.FileURLs)
	}

	return v.err()
}

func validateVitals(v *validator, age *int, weight, height *float64) {
	if age != nil {
		v.check(*age >= 0 && *age <= maxAge, fmt.Sprintf("age must be between 0 and %d", maxAge))
	}
	if weight != nil {
		v.check(*weight >= 0 && *weight <= maxWeightKg, fmt.Sprintf("weight must be between 0 and %d kg", maxWeightKg))
	}
	if height != nil {
		v.check(*height >= 0 && *height <= maxHeightCm, fmt.Sprintf("height must be between 0 and %d cm", maxHeightCm))
	}
}

func validateFileURLs(v *validator, urls []string) {
	v.check(len(urls) <= maxFileURLs, fmt.Sprintf("at most %d file URLs are allowed", maxFileURLs))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			v.add("file URLs cannot be empty")
			return
		}
	}
}

func traceErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
