package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
)

const dateLayout = "2006-01-02"

// flexDate accepts either an RFC 3339 timestamp or a bare calendar date,
// read as local midnight.
type flexDate struct {
	time.Time
}

func (d *flexDate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := parseDate(raw)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return t, nil
}

func (d *flexDate) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

type createPatientRequest struct {
	Name           string   `json:"name"`
	Age            *int     `json:"age"`
	Weight         *float64 `json:"weight"`
	Height         *float64 `json:"height"`
	MedicalHistory string   `json:"medicalHistory"`
	FileURLs       []string `json:"fileUrls"`
}

type updatePatientRequest struct {
	Name           *string   `json:"name"`
	Age            *int      `json:"age"`
	Weight         *float64  `json:"weight"`
	Height         *float64  `json:"height"`
	MedicalHistory *string   `json:"medicalHistory"`
	FileURLs       *[]string `json:"fileUrls"`
}

// patientListItem is a patient without its consultation history, used by
// every list endpoint.
type patientListItem struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Age                  *int       `json:"age,omitempty"`
	Weight               *float64   `json:"weight,omitempty"`
	Height               *float64   `json:"height,omitempty"`
	CurrentRemedy        string     `json:"currentRemedy,omitempty"`
	LastConsultationDate *time.Time `json:"lastConsultationDate,omitempty"`
	TotalConsultations   int        `json:"totalConsultations"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

func toListItems(ps []*patient.Patient) []patientListItem {
	out := make([]patientListItem, 0, len(ps))
	for _, p := range ps {
		out = append(out, patientListItem{
			ID:                   p.ID,
			Name:                 p.Name,
			Age:                  p.Age,
			Weight:               p.Weight,
			Height:               p.Height,
			CurrentRemedy:        p.CurrentRemedy,
			LastConsultationDate: p.LastConsultationDate,
			TotalConsultations:   p.TotalConsultations,
			CreatedAt:            p.CreatedAt,
			UpdatedAt:            p.UpdatedAt,
		})
	}
	return out
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type searchResponse struct {
	Patients   []patientListItem `json:"patients"`
	Pagination pagination        `json:"pagination"`
}

type createConsultationRequest struct {
	ChiefComplaint         string                          `json:"chiefComplaint"`
	PhysicalSymptoms       *patient.PhysicalSymptoms       `json:"physicalSymptoms"`
	MentalEmotionalState   *patient.MentalEmotionalState   `json:"mentalEmotionalState"`
	GeneralCharacteristics *patient.GeneralCharacteristics `json:"generalCharacteristics"`
	PrescribedRemedy       patient.PrescribedRemedy        `json:"prescribedRemedy"`
	DoctorNotes            string                          `json:"doctorNotes"`
	DiagnosisApproach      patient.DiagnosisApproach       `json:"diagnosisApproach"`
	FollowUpDate           *flexDate                       `json:"followUpDate"`
}

type followUpRequest struct {
	ResponseToTreatment patient.ResponseToTreatment `json:"responseToTreatment"`
	ImprovementsNoted   string                      `json:"improvementsNoted"`
	RemainingSymptoms   string                      `json:"remainingSymptoms"`
	NewSymptoms         string                      `json:"newSymptoms"`
	FollowUpNotes       string                      `json:"followUpNotes"`
	Decision            patient.Decision            `json:"decision"`
	NextFollowUpDate    *flexDate                   `json:"nextFollowUpDate"`
	NewPrescription     *patient.PrescribedRemedy   `json:"newPrescription"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type verifyMFARequest struct {
	Code string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}
