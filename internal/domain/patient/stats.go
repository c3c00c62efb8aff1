package patient

import "time"

// Stats is the dashboard summary of a doctor's practice.
type Stats struct {
	TotalThisMonth       int `json:"totalThisMonth"`
	FollowupsDueThisWeek int `json:"followupsDueThisWeek"`
	ConsultedToday       int `json:"consultedToday"`
	ActiveRemedies       int `json:"activeRemedies"`
}

// ComputeStats derives the dashboard counters from the doctor's patients.
// Calendar boundaries are taken in local time.
func ComputeStats(patients []*Patient, now time.Time) Stats {
	var s Stats
	today := StartOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.Local)
	nextMonth := monthStart.AddDate(0, 1, 0)

	remedies := make(map[string]struct{})
	for _, p := range patients {
		seenToday := false
		for i := range p.Consultations {
			d := p.Consultations[i].ConsultationDate
			if !d.Before(monthStart) && d.Before(nextMonth) {
				s.TotalThisMonth++
			}
			if !seenToday && !d.Before(today) && d.Before(tomorrow) {
				seenToday = true
			}
		}
		if seenToday {
			s.ConsultedToday++
		}
		if p.CurrentRemedy != "" {
			remedies[p.CurrentRemedy] = struct{}{}
		}
	}

	s.ActiveRemedies = len(remedies)
	s.FollowupsDueThisWeek = len(ScanFollowupsDue(patients, now, DefaultFollowupHorizonDays))
	return s
}
