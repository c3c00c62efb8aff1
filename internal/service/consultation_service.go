package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

const (
	maxChiefComplaintLen     = 2000
	maxDoctorNotesLen        = 3000
	maxRemedyFieldLen        = 255
	maxReasonForSelectionLen = 1000
	maxFollowUpTextLen       = 2000
)

// ConsultationService runs the consultation lifecycle. Every mutation is a
// versioned read-modify-write of the owning patient, with the derived
// summary refreshed in memory before the single write.
type ConsultationService struct {
	repo    patient.Repository
	events  *EventService
	metrics *metrics.Collector
	retry   writeRetrier
	log     *zap.Logger
	now     func() time.Time
	newID   func(time.Time) string
}

func NewConsultationService(repo patient.Repository, eventSvc *EventService, m *metrics.Collector, maxWriteAttempts int, log *zap.Logger) *ConsultationService {
	return &ConsultationService{
		repo:    repo,
		events:  eventSvc,
		metrics: m,
		retry:   newWriteRetrier(maxWriteAttempts, m, log),
		log:     log,
		now:     patient.Now,
		newID:   patient.NewConsultationID,
	}
}

func (s *ConsultationService) CreateConsultation(ctx context.Context, cmd *patient.CreateConsultationCommand) (*patient.Consultation, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.CreateConsultation",
		trace.WithAttributes(attribute.String("patient.id", cmd.PatientID.String())))
	defer span.End()

	if err := validateCreateConsultation(cmd); err != nil {
		return nil, err
	}

	var created patient.Consultation
	err := s.retry.run(ctx, "create_consultation", func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, cmd.PatientID, cmd.DoctorID)
		if err != nil {
			return err
		}

		now := s.now()
		c, err := p.AddConsultation(patient.NewConsultation(cmd, s.newID(now), now))
		if err != nil {
			return err
		}
		p.UpdatedAt = now

		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, traceErr(span, err)
	}

	s.metrics.ConsultationsCreatedTotal.Inc()

	ev := events.New(events.TypeConsultationCreated, cmd.DoctorID, cmd.PatientID.String(), created.ConsultationDate)
	ev.ConsultationID = created.ConsultationID
	ev.Remedy = created.PrescribedRemedy.RemedyName
	ev.FollowUpDate = created.FollowUpDate
	s.events.Emit(ev)

	s.log.Info("consultation created",
		zap.String("patient_id", cmd.PatientID.String()),
		zap.String("consultation_id", created.ConsultationID),
		zap.String("doctor_id", cmd.DoctorID),
	)

	return &created, nil
}

// RecordFollowUp updates the target consultation's follow-up fields and,
// for a remedy change with a new prescription, appends the successor
// consultation in the same write. The returned consultation is the target.
func (s *ConsultationService) RecordFollowUp(ctx context.Context, cmd *patient.FollowUpCommand) (*patient.Consultation, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.RecordFollowUp",
		trace.WithAttributes(
			attribute.String("consultation.id", cmd.ConsultationID),
			attribute.String("followup.decision", string(cmd.Decision)),
		))
	defer span.End()

	if err := validateFollowUp(cmd); err != nil {
		return nil, err
	}

	if cmd.Decision == patient.DecisionChange && cmd.NewPrescription == nil {
		s.log.Warn("remedy change recorded without a new prescription; no consultation spawned",
			zap.String("consultation_id", cmd.ConsultationID),
			zap.String("doctor_id", cmd.DoctorID),
		)
	}

	var (
		updated   patient.Consultation
		spawned   *patient.Consultation
		patientID string
	)
	err := s.retry.run(ctx, "record_followup", func(ctx context.Context) error {
		p, err := s.repo.GetByConsultationID(ctx, cmd.ConsultationID, cmd.DoctorID)
		if err != nil {
			return err
		}

		now := s.now()
		u, sp, err := p.RecordFollowUp(cmd, now, s.newID)
		if err != nil {
			return err
		}
		p.UpdatedAt = now

		if err := s.repo.Save(ctx, p); err != nil {
			return err
		}
		updated, spawned, patientID = u, sp, p.ID.String()
		return nil
	})
	if err != nil {
		return nil, traceErr(span, err)
	}

	s.metrics.FollowupsRecordedTotal.WithLabelValues(string(cmd.Decision)).Inc()

	ev := events.New(events.TypeFollowUpRecorded, cmd.DoctorID, patientID, s.now())
	ev.ConsultationID = updated.ConsultationID
	ev.Decision = string(cmd.Decision)
	ev.Remedy = updated.PrescribedRemedy.RemedyName
	ev.FollowUpDate = updated.FollowUpDate
	emitted := []events.Event{ev}

	if spawned != nil {
		s.metrics.ConsultationsCreatedTotal.Inc()
		next := events.New(events.TypeConsultationCreated, cmd.DoctorID, patientID, spawned.ConsultationDate)
		next.ConsultationID = spawned.ConsultationID
		next.Remedy = spawned.PrescribedRemedy.RemedyName
		next.PreviousRemedy = updated.PrescribedRemedy.RemedyName
		next.FollowUpDate = spawned.FollowUpDate
		emitted = append(emitted, next)
	}
	s.events.Emit(emitted...)

	s.log.Info("follow-up recorded",
		zap.String("patient_id", patientID),
		zap.String("consultation_id", updated.ConsultationID),
		zap.String("decision", string(cmd.Decision)),
		zap.Bool("spawned_consultation", spawned != nil),
	)

	return &updated, nil
}

// ConsultationDetail is a single consultation with the identity of its patient.
type ConsultationDetail struct {
	Consultation patient.Consultation `json:"consultation"`
	Patient      patient.Summary      `json:"patient"`
}

func (s *ConsultationService) GetConsultation(ctx context.Context, consultationID, doctorID string) (*ConsultationDetail, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.GetConsultation",
		trace.WithAttributes(attribute.String("consultation.id", consultationID)))
	defer span.End()

	p, err := s.repo.GetByConsultationID(ctx, consultationID, doctorID)
	if err != nil {
		return nil, err
	}
	c, err := p.Consultation(consultationID)
	if err != nil {
		return nil, err
	}
	return &ConsultationDetail{Consultation: c, Patient: p.Summary()}, nil
}

// ListConsultations returns the patient's history, most recent first.
func (s *ConsultationService) ListConsultations(ctx context.Context, patientID uuid.UUID, doctorID string) ([]patient.Consultation, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.ListConsultations",
		trace.WithAttributes(attribute.String("patient.id", patientID.String())))
	defer span.End()

	p, err := s.repo.GetByID(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	return p.ConsultationsNewestFirst(), nil
}

// FollowupsDue scans the doctor's patients fresh on every call.
func (s *ConsultationService) FollowupsDue(ctx context.Context, doctorID string) ([]patient.FollowupEntry, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.FollowupsDue")
	defer span.End()

	ps, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, traceErr(span, fmt.Errorf("loading patients: %w", err))
	}
	return patient.ScanFollowupsDue(ps, s.now(), patient.DefaultFollowupHorizonDays), nil
}

func (s *ConsultationService) Stats(ctx context.Context, doctorID string) (*patient.Stats, error) {
	ctx, span := tracer.Start(ctx, "ConsultationService.Stats")
	defer span.End()

	ps, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, traceErr(span, fmt.Errorf("loading patients: %w", err))
	}
	st := patient.ComputeStats(ps, s.now())
	return &st, nil
}

func (s *ConsultationService) SearchRemedies(q string) []string {
	return patient.SearchRemedies(q)
}

func validateCreateConsultation(cmd *patient.CreateConsultationCommand) error {
	var v validator

	complaint := strings.TrimSpace(cmd.ChiefComplaint)
	v.check(complaint != "", "chiefComplaint is required")
	v.check(utf8.RuneCountInString(complaint) <= maxChiefComplaintLen,
		fmt.Sprintf("chiefComplaint must be at most %d characters", maxChiefComplaintLen))
	validateRemedy(&v, "prescribedRemedy", &cmd.PrescribedRemedy)
	v.check(utf8.RuneCountInString(cmd.DoctorNotes) <= maxDoctorNotesLen,
		fmt.Sprintf("doctorNotes must be at most %d characters", maxDoctorNotesLen))
	v.check(cmd.DiagnosisApproach == "" || cmd.DiagnosisApproach.IsValid(),
		"diagnosisApproach must be one of constitutional, acute, chronic, miasmatic")
	if cmd.GeneralCharacteristics != nil {
		thermal := cmd.GeneralCharacteristics.ThermalState
		v.check(thermal == "" || thermal == "chilly" || thermal == "hot", "generalCharacteristics.thermalState must be chilly or hot")
	}

	return v.err()
}

func validateFollowUp(cmd *patient.FollowUpCommand) error {
	var v validator

	switch {
	case cmd.ResponseToTreatment == "":
		v.add("responseToTreatment is required")
	case !cmd.ResponseToTreatment.IsValid():
		v.add("responseToTreatment must be one of improved, same, worsened, partially_improved")
	}
	switch {
	case cmd.Decision == "":
		v.add("decision is required")
	case !cmd.Decision.IsValid():
		v.add("decision must be one of repeat, change, observe")
	}

	for _, f := range []struct {
		name, value string
	}{
		{"improvementsNoted", cmd.ImprovementsNoted},
		{"remainingSymptoms", cmd.RemainingSymptoms},
		{"newSymptoms", cmd.NewSymptoms},
		{"followUpNotes", cmd.FollowUpNotes},
	} {
		v.check(utf8.RuneCountInString(f.value) <= maxFollowUpTextLen,
			fmt.Sprintf("%s must be at most %d characters", f.name, maxFollowUpTextLen))
	}

	if cmd.Decision == patient.DecisionChange && cmd.NewPrescription != nil {
		validateRemedy(&v, "newPrescription", cmd.NewPrescription)
	}

	return v.err()
}

func validateRemedy(v *validator, field string, r *patient.PrescribedRemedy) {
	for _, f := range []struct {
		name, value string
	}{
		{"remedyName", r.RemedyName},
		{"potency", r.Potency},
		{"dosage", r.Dosage},
		{"frequency", r.Frequency},
		{"duration", r.Duration},
	} {
		v.check(strings.TrimSpace(f.value) != "", fmt.Sprintf("%s.%s is required", field, f.name))
	}
	for _, f := range []struct {
		name, value string
	}{
		{"remedyName", r.RemedyName},
		{"potency", r.Potency},
		{"dosage", r.Dosage},
		{"frequency", r.Frequency},
		{"duration", r.Duration},
		{"instructions", r.Instructions},
	} {
		v.check(utf8.RuneCountInString(f.value) <= maxRemedyFieldLen,
			fmt.Sprintf("%s.%s must be at most %d characters", field, f.name, maxRemedyFieldLen))
	}
	v.check(utf8.RuneCountInString(r.ReasonForSelection) <= maxReasonForSelectionLen,
		fmt.Sprintf("%s.reasonForSelection must be at most %d characters", field, maxReasonForSelectionLen))
}
