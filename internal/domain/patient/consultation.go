package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type DiagnosisApproach string

const (
	ApproachConstitutional DiagnosisApproach = "constitutional"
	ApproachAcute          DiagnosisApproach = "acute"
	ApproachChronic        DiagnosisApproach = "chronic"
	ApproachMiasmatic      DiagnosisApproach = "miasmatic"
)

func (a DiagnosisApproach) IsValid() bool {
	switch a {
	case ApproachConstitutional, ApproachAcute, ApproachChronic, ApproachMiasmatic:
		return true
	}
	return false
}

type ResponseToTreatment string

const (
	ResponseImproved          ResponseToTreatment = "improved"
	ResponseSame              ResponseToTreatment = "same"
	ResponseWorsened          ResponseToTreatment = "worsened"
	ResponsePartiallyImproved ResponseToTreatment = "partially_improved"
)

func (r ResponseToTreatment) IsValid() bool {
	switch r {
	case ResponseImproved, ResponseSame, ResponseWorsened, ResponsePartiallyImproved:
		return true
	}
	return false
}

// Decision is what the doctor does with the remedy at a follow-up.
type Decision string

const (
	DecisionRepeat  Decision = "repeat"
	DecisionChange  Decision = "change"
	DecisionObserve Decision = "observe"
)

func (d Decision) IsValid() bool {
	switch d {
	case DecisionRepeat, DecisionChange, DecisionObserve:
		return true
	}
	return false
}

type Modalities struct {
	BetterBy []string `json:"betterBy" bson:"betterBy"`
	WorseBy  []string `json:"worseBy" bson:"worseBy"`
}

type PhysicalSymptoms struct {
	Location   string     `json:"location" bson:"location"`
	Sensation  string     `json:"sensation" bson:"sensation"`
	Timing     string     `json:"timing" bson:"timing"`
	Modalities Modalities `json:"modalities" bson:"modalities"`
}

type MentalEmotionalState struct {
	PrimaryEmotion string `json:"primaryEmotion" bson:"primaryEmotion"`
	Personality    string `json:"personality" bson:"personality"`
	StressResponse string `json:"stressResponse" bson:"stressResponse"`
}

type GeneralCharacteristics struct {
	ThermalState string   `json:"thermalState" bson:"thermalState"` // "chilly" | "hot"
	Appetite     string   `json:"appetite" bson:"appetite"`
	Thirst       string   `json:"thirst" bson:"thirst"`
	FoodCravings []string `json:"foodCravings" bson:"foodCravings"`
	SleepPattern string   `json:"sleepPattern" bson:"sleepPattern"`
	EnergyLevel  string   `json:"energyLevel" bson:"energyLevel"`
}

// Consultation is one visit embedded in its Patient. It has no owner of its
// own; access always goes through the parent's DoctorID.
type Consultation struct {
	ConsultationID   string    `json:"consultationId" bson:"consultationId"`
	ConsultationDate time.Time `json:"consultationDate" bson:"consultationDate"`
	ChiefComplaint   string    `json:"chiefComplaint" bson:"chiefComplaint"`

	PhysicalSymptoms       PhysicalSymptoms       `json:"physicalSymptoms" bson:"physicalSymptoms"`
	MentalEmotionalState   MentalEmotionalState   `json:"mentalEmotionalState" bson:"mentalEmotionalState"`
	GeneralCharacteristics GeneralCharacteristics `json:"generalCharacteristics" bson:"generalCharacteristics"`
	PrescribedRemedy       PrescribedRemedy       `json:"prescribedRemedy" bson:"prescribedRemedy"`

	DoctorNotes       string            `json:"doctorNotes" bson:"doctorNotes"` // PHI
	DiagnosisApproach DiagnosisApproach `json:"diagnosisApproach" bson:"diagnosisApproach"`
	FollowUpDate      *time.Time        `json:"followUpDate,omitempty" bson:"followUpDate,omitempty"`

	// Populated once a follow-up is recorded against this consultation.
	ResponseToTreatment ResponseToTreatment `json:"responseToTreatment,omitempty" bson:"responseToTreatment,omitempty"`
	ImprovementsNoted   string              `json:"improvementsNoted,omitempty" bson:"improvementsNoted,omitempty"`
	RemainingSymptoms   string              `json:"remainingSymptoms,omitempty" bson:"remainingSymptoms,omitempty"`
	NewSymptoms         string              `json:"newSymptoms,omitempty" bson:"newSymptoms,omitempty"`
	FollowUpNotes       string              `json:"followUpNotes,omitempty" bson:"followUpNotes,omitempty"`
	Decision            Decision            `json:"decision,omitempty" bson:"decision,omitempty"`
}

// HasFollowUp reports whether a follow-up date is scheduled.
func (c *Consultation) HasFollowUp() bool {
	return c.FollowUpDate != nil && !c.FollowUpDate.IsZero()
}

// normalize fills every nested group so readers never see null lists.
func (c *Consultation) normalize() {
	if c.PhysicalSymptoms.Modalities.BetterBy == nil {
		c.PhysicalSymptoms.Modalities.BetterBy = []string{}
	}
	if c.PhysicalSymptoms.Modalities.WorseBy == nil {
		c.PhysicalSymptoms.Modalities.WorseBy = []string{}
	}
	if c.GeneralCharacteristics.FoodCravings == nil {
		c.GeneralCharacteristics.FoodCravings = []string{}
	}
	if c.DiagnosisApproach == "" {
		c.DiagnosisApproach = ApproachConstitutional
	}
}

func (c Consultation) clone() Consultation {
	out := c
	out.PhysicalSymptoms.Modalities.BetterBy = cloneStrings(c.PhysicalSymptoms.Modalities.BetterBy)
	out.PhysicalSymptoms.Modalities.WorseBy = cloneStrings(c.PhysicalSymptoms.Modalities.WorseBy)
	out.GeneralCharacteristics.FoodCravings = cloneStrings(c.GeneralCharacteristics.FoodCravings)
	if c.FollowUpDate != nil {
		t := *c.FollowUpDate
		out.FollowUpDate = &t
	}
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// NewConsultationID returns an id that is unique across the whole store, not
// only within one patient: lookups by consultation id happen before the
// owning patient is known.
func NewConsultationID(now time.Time) string {
	return fmt.Sprintf("CONS-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}

type CreateConsultationCommand struct {
	PatientID uuid.UUID
	DoctorID  string

	ChiefComplaint         string
	PhysicalSymptoms       *PhysicalSymptoms
	MentalEmotionalState   *MentalEmotionalState
	GeneralCharacteristics *GeneralCharacteristics
	PrescribedRemedy       PrescribedRemedy
	DoctorNotes            string
	DiagnosisApproach      DiagnosisApproach
	FollowUpDate           *time.Time
}

// NewConsultation builds a consultation from a validated command. Absent
// groups become empty-valued structures.
func NewConsultation(cmd *CreateConsultationCommand, id string, now time.Time) Consultation {
	now = now.Truncate(TimestampPrecision)
	c := Consultation{
		ConsultationID:    id,
		ConsultationDate:  now,
		ChiefComplaint:    strings.TrimSpace(cmd.ChiefComplaint),
		PrescribedRemedy:  cmd.PrescribedRemedy.Normalize(),
		DoctorNotes:       cmd.DoctorNotes,
		DiagnosisApproach: cmd.DiagnosisApproach,
	}
	if cmd.PhysicalSymptoms != nil {
		c.PhysicalSymptoms = *cmd.PhysicalSymptoms
	}
	if cmd.MentalEmotionalState != nil {
		c.MentalEmotionalState = *cmd.MentalEmotionalState
	}
	if cmd.GeneralCharacteristics != nil {
		c.GeneralCharacteristics = *cmd.GeneralCharacteristics
	}
	if cmd.FollowUpDate != nil {
		t := *cmd.FollowUpDate
		c.FollowUpDate = &t
	}
	c = c.clone()
	c.normalize()
	return c
}

type FollowUpCommand struct {
	ConsultationID string
	DoctorID       string

	ResponseToTreatment ResponseToTreatment
	ImprovementsNoted   string
	RemainingSymptoms   string
	NewSymptoms         string
	FollowUpNotes       string
	Decision            Decision
	NextFollowUpDate    *time.Time

	// Only used when Decision is DecisionChange.
	NewPrescription *PrescribedRemedy
}

// SpawnsConsultation reports whether applying the command appends a new
// consultation to the patient.
func (cmd *FollowUpCommand) SpawnsConsultation() bool {
	return cmd.Decision == DecisionChange && cmd.NewPrescription != nil
}
