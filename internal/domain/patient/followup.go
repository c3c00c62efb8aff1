package patient

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultFollowupHorizonDays is how far ahead the due list looks.
const DefaultFollowupHorizonDays = 7

// FollowupEntry is one row of the follow-ups-due list.
type FollowupEntry struct {
	PatientID            uuid.UUID  `json:"patientId"`
	Name                 string     `json:"name"`
	Age                  *int       `json:"age,omitempty"`
	CurrentRemedy        string     `json:"currentRemedy"`
	LastConsultationDate *time.Time `json:"lastConsultationDate,omitempty"`
	ConsultationID       string     `json:"consultationId"`
	FollowUpDate         time.Time  `json:"followUpDate"`
	DaysUntilFollowup    int        `json:"daysUntilFollowup"`
	IsOverdue            bool       `json:"isOverdue"`
}

// ScanFollowupsDue selects, per patient, the most recent consultation that
// has a follow-up scheduled and reports it when the follow-up falls within
// horizonDays of asOf. Overdue follow-ups are always reported. The result is
// ordered most overdue first.
func ScanFollowupsDue(patients []*Patient, asOf time.Time, horizonDays int) []FollowupEntry {
	out := make([]FollowupEntry, 0)
	for _, p := range patients {
		sel := latestScheduled(p.Consultations)
		if sel == nil {
			continue
		}

		days := DaysBetween(asOf, *sel.FollowUpDate)
		if days > horizonDays {
			continue
		}

		entry := FollowupEntry{
			PatientID:         p.ID,
			Name:              p.Name,
			Age:               p.Age,
			CurrentRemedy:     p.CurrentRemedy,
			ConsultationID:    sel.ConsultationID,
			FollowUpDate:      *sel.FollowUpDate,
			DaysUntilFollowup: days,
			IsOverdue:         days < 0,
		}
		if entry.CurrentRemedy == "" {
			entry.CurrentRemedy = sel.PrescribedRemedy.RemedyName
		}
		last := sel.ConsultationDate
		if p.LastConsultationDate != nil {
			last = *p.LastConsultationDate
		}
		entry.LastConsultationDate = &last

		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DaysUntilFollowup < out[j].DaysUntilFollowup
	})
	return out
}

// latestScheduled returns the consultation with the latest consultation date
// among those carrying a follow-up date. On equal dates the later entry in
// the history wins.
func latestScheduled(cs []Consultation) *Consultation {
	var sel *Consultation
	for i := range cs {
		c := &cs[i]
		if !c.HasFollowUp() {
			continue
		}
		if sel == nil || !c.ConsultationDate.Before(sel.ConsultationDate) {
			sel = c
		}
	}
	return sel
}

// DaysBetween returns the number of calendar days from from to to, both
// taken at local midnight. Daylight-saving shifts do not affect the count.
func DaysBetween(from, to time.Time) int {
	return int(civilDay(to).Sub(civilDay(from)).Hours() / 24)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
