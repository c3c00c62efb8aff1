package patient

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampPrecision is the finest resolution kept by every store. Times
// entering the aggregate are truncated to it.
const TimestampPrecision = time.Millisecond

// Now returns the current time at TimestampPrecision.
func Now() time.Time {
	return time.Now().Truncate(TimestampPrecision)
}

// Patient is the root aggregate. It owns its full consultation history; the
// summary fields are derived from that history and are never set by callers.
type Patient struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;not null;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updated_at;not null"`

	// Optimistic concurrency revision, bumped by every successful write.
	Version int64 `json:"version" gorm:"column:version;not null;default:1"`

	DoctorID string `json:"doctorId" gorm:"column:doctor_id;type:varchar(128);not null;index"`

	Name           string   `json:"name" gorm:"column:name;type:varchar(100);not null"`
	Age            *int     `json:"age,omitempty" gorm:"column:age"`
	Weight         *float64 `json:"weight,omitempty" gorm:"column:weight"` // kg
	Height         *float64 `json:"height,omitempty" gorm:"column:height"` // cm
	MedicalHistory string   `json:"medicalHistory" gorm:"column:medical_history;type:text"`
	FileURLs       []string `json:"fileUrls" gorm:"column:file_urls;type:jsonb;serializer:json"`

	Consultations []Consultation `json:"consultations" gorm:"column:consultations;type:jsonb;serializer:json"`

	CurrentRemedy        string     `json:"currentRemedy,omitempty" gorm:"column:current_remedy;type:varchar(255)"`
	LastConsultationDate *time.Time `json:"lastConsultationDate,omitempty" gorm:"column:last_consultation_date"`
	TotalConsultations   int        `json:"totalConsultations" gorm:"column:total_consultations;not null;default:0"`
}

func (Patient) TableName() string {
	return "clinical.patients"
}

// RefreshSummary recomputes the derived fields from the last appended
// consultation. Every mutator calls it before the aggregate is persisted.
func (p *Patient) RefreshSummary() {
	p.TotalConsultations = len(p.Consultations)
	if p.TotalConsultations == 0 {
		p.CurrentRemedy = ""
		p.LastConsultationDate = nil
		return
	}

	last := p.Consultations[p.TotalConsultations-1]
	d := last.ConsultationDate
	p.CurrentRemedy = last.PrescribedRemedy.RemedyName
	p.LastConsultationDate = &d
}

// SummaryConsistent reports whether the derived fields match the history.
func (p *Patient) SummaryConsistent() bool {
	if p.TotalConsultations != len(p.Consultations) {
		return false
	}
	if len(p.Consultations) == 0 {
		return p.CurrentRemedy == "" && p.LastConsultationDate == nil
	}
	last := p.Consultations[len(p.Consultations)-1]
	return p.CurrentRemedy == last.PrescribedRemedy.RemedyName &&
		p.LastConsultationDate != nil &&
		p.LastConsultationDate.Equal(last.ConsultationDate)
}

// Normalize fills nil collections so the document always has a complete shape.
func (p *Patient) Normalize() {
	if p.FileURLs == nil {
		p.FileURLs = []string{}
	}
	if p.Consultations == nil {
		p.Consultations = []Consultation{}
	}
	for i := range p.Consultations {
		p.Consultations[i].normalize()
	}
}

func (p *Patient) indexOf(consultationID string) int {
	for i := range p.Consultations {
		if p.Consultations[i].ConsultationID == consultationID {
			return i
		}
	}
	return -1
}

// Consultation returns a copy of the consultation with the given id.
func (p *Patient) Consultation(consultationID string) (Consultation, error) {
	i := p.indexOf(consultationID)
	if i < 0 {
		return Consultation{}, ErrConsultationNotFound
	}
	return p.Consultations[i].clone(), nil
}

// AddConsultation appends c and refreshes the summary. Existing entries are
// never reordered.
func (p *Patient) AddConsultation(c Consultation) (Consultation, error) {
	if p.indexOf(c.ConsultationID) >= 0 {
		return Consultation{}, ErrDuplicateConsultationID
	}
	c.normalize()
	p.Consultations = append(p.Consultations, c)
	p.RefreshSummary()
	return c.clone(), nil
}

// RecordFollowUp applies a follow-up to the consultation named in cmd. The
// target's follow-up fields are overwritten in place; a change of remedy
// appends a new consultation carrying the predecessor's symptom picture
// instead of touching the original prescription. It returns the updated
// target and, when one was spawned, the new consultation.
func (p *Patient) RecordFollowUp(cmd *FollowUpCommand, now time.Time, newID func(time.Time) string) (Consultation, *Consultation, error) {
	i := p.indexOf(cmd.ConsultationID)
	if i < 0 {
		return Consultation{}, nil, ErrConsultationNotFound
	}
	now = now.Truncate(TimestampPrecision)

	target := &p.Consultations[i]
	target.ResponseToTreatment = cmd.ResponseToTreatment
	target.ImprovementsNoted = cmd.ImprovementsNoted
	target.RemainingSymptoms = cmd.RemainingSymptoms
	target.NewSymptoms = cmd.NewSymptoms
	target.FollowUpNotes = cmd.FollowUpNotes
	target.Decision = cmd.Decision
	if cmd.NextFollowUpDate != nil {
		t := *cmd.NextFollowUpDate
		target.FollowUpDate = &t
	}

	// Copy before appending: append may reallocate and invalidate target.
	updated := target.clone()

	var spawned *Consultation
	if cmd.SpawnsConsultation() {
		next := Consultation{
			ConsultationID:         newID(now),
			ConsultationDate:       now,
			ChiefComplaint:         fmt.Sprintf("Follow-up to %s", updated.ConsultationID),
			PhysicalSymptoms:       updated.PhysicalSymptoms,
			MentalEmotionalState:   updated.MentalEmotionalState,
			GeneralCharacteristics: updated.GeneralCharacteristics,
			PrescribedRemedy:       cmd.NewPrescription.Normalize(),
			DiagnosisApproach:      updated.DiagnosisApproach,
		}
		next.DoctorNotes = fmt.Sprintf("Changed remedy from %s to %s",
			updated.PrescribedRemedy.RemedyName, next.PrescribedRemedy.RemedyName)
		if cmd.NextFollowUpDate != nil {
			t := *cmd.NextFollowUpDate
			next.FollowUpDate = &t
		}

		added, err := p.AddConsultation(next.clone())
		if err != nil {
			return Consultation{}, nil, err
		}
		spawned = &added
	}

	p.RefreshSummary()
	return updated, spawned, nil
}

// ConsultationsNewestFirst returns a copy of the history ordered by
// consultation date, most recent first. Storage order is left untouched.
func (p *Patient) ConsultationsNewestFirst() []Consultation {
	// Reversed first so that equal dates list the later append first.
	n := len(p.Consultations)
	out := make([]Consultation, n)
	for i := range p.Consultations {
		out[n-1-i] = p.Consultations[i].clone()
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].ConsultationDate.After(out[b].ConsultationDate)
	})
	return out
}

// Summary is the minimal identity returned alongside a single consultation.
type Summary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Age  *int      `json:"age,omitempty"`
}

func (p *Patient) Summary() Summary {
	return Summary{ID: p.ID, Name: p.Name, Age: p.Age}
}

type CreatePatientCommand struct {
	DoctorID       string
	Name           string
	Age            *int
	Weight         *float64
	Height         *float64
	MedicalHistory string
	FileURLs       []string
}

// NewPatient builds an empty-history patient from a validated command.
func NewPatient(cmd *CreatePatientCommand, now time.Time) *Patient {
	now = now.Truncate(TimestampPrecision)
	p := &Patient{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
		DoctorID:       cmd.DoctorID,
		Name:           strings.TrimSpace(cmd.Name),
		Age:            cmd.Age,
		Weight:         cmd.Weight,
		Height:         cmd.Height,
		MedicalHistory: cmd.MedicalHistory,
		FileURLs:       cloneStrings(cmd.FileURLs),
	}
	p.Normalize()
	p.RefreshSummary()
	return p
}

// UpdatePatientCommand carries a partial update of the scalar fields. The
// consultation history and the owner cannot be changed through it.
type UpdatePatientCommand struct {
	ID             uuid.UUID
	DoctorID       string
	Name           *string
	Age            *int
	Weight         *float64
	Height         *float64
	MedicalHistory *string
	FileURLs       *[]string
}

func (p *Patient) Apply(cmd *UpdatePatientCommand) {
	if cmd.Name != nil {
		p.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Age != nil {
		p.Age = cmd.Age
	}
	if cmd.Weight != nil {
		p.Weight = cmd.Weight
	}
	if cmd.Height != nil {
		p.Height = cmd.Height
	}
	if cmd.MedicalHistory != nil {
		p.MedicalHistory = *cmd.MedicalHistory
	}
	if cmd.FileURLs != nil {
		p.FileURLs = cloneStrings(*cmd.FileURLs)
	}
}

// SearchQuery defines filtering and pagination for patient searches. The
// DoctorID filter is always applied.
type SearchQuery struct {
	DoctorID    string
	Name        string // case-insensitive partial match
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
	SortBy      string // createdAt | updatedAt | name | age
	SortOrder   string // "asc" | "desc"
}

type PagedPatients struct {
	Patients   []*Patient
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
