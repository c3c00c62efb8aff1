package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/pkg/events"
)

var clinicNow = time.Date(2024, time.June, 12, 15, 0, 0, 0, time.Local) // a Wednesday

func TestCreatePatient(t *testing.T) {
	env := newTestEnv(t, clinicNow)

	p, err := env.patients.CreatePatient(context.Background(), &patient.CreatePatientCommand{
		DoctorID: "doc-1",
		Name:     "  Asha Rao ",
		Age:      ptr(34),
	})
	if err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}

	if p.Name != "Asha Rao" {
		t.Errorf("Name = %q, want trimmed", p.Name)
	}
	if p.TotalConsultations != 0 || p.CurrentRemedy != "" || p.LastConsultationDate != nil {
		t.Errorf("derived fields not zero: %+v", p)
	}
	if p.Consultations == nil || p.FileURLs == nil {
		t.Error("collections should be empty, not nil")
	}
	if p.Version != 1 {
		t.Errorf("Version = %d, want 1", p.Version)
	}
	if got := testutil.ToFloat64(env.metrics.PatientsCreatedTotal); got != 1 {
		t.Errorf("patients_created_total = %v, want 1", got)
	}
	if got := env.flushEvents(t); !slices.Equal(got, []events.Type{events.TypePatientCreated}) {
		t.Errorf("events = %v", got)
	}
}

func TestCreatePatient_ValidationRejectsBeforeStorage(t *testing.T) {
	tests := []struct {
		name string
		cmd  patient.CreatePatientCommand
	}{
		{"missing name", patient.CreatePatientCommand{Name: "  "}},
		{"age above range", patient.CreatePatientCommand{Name: "A", Age: ptr(151)}},
		{"negative age", patient.CreatePatientCommand{Name: "A", Age: ptr(-1)}},
		{"weight above range", patient.CreatePatientCommand{Name: "A", Weight: ptr(500.5)}},
		{"height above range", patient.CreatePatientCommand{Name: "A", Height: ptr(301.0)}},
		{"too many files", patient.CreatePatientCommand{Name: "A", FileURLs: make([]string, 21)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, clinicNow)
			cmd := tt.cmd
			cmd.DoctorID = "doc-1"

			_, err := env.patients.CreatePatient(context.Background(), &cmd)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if len(env.repo.patients) != 0 {
				t.Error("nothing should be stored on validation failure")
			}
		})
	}
}

func TestGetPatient_OtherDoctorIsNotFound(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	p := env.createPatient(t, "doc-1", "Asha")

	if _, err := env.patients.GetPatient(context.Background(), p.ID, "doc-2"); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("err = %v, want ErrPatientNotFound", err)
	}
	if err := env.patients.DeletePatient(context.Background(), p.ID, "doc-2"); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("delete err = %v, want ErrPatientNotFound", err)
	}
	if _, err := env.patients.GetPatient(context.Background(), p.ID, "doc-1"); err != nil {
		t.Fatalf("owner lost access: %v", err)
	}
}

func TestUpdatePatient_LeavesHistoryUntouched(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	p := env.createPatient(t, "doc-1", "Asha")

	if _, err := env.consultations.CreateConsultation(context.Background(), &patient.CreateConsultationCommand{
		PatientID:        p.ID,
		DoctorID:         "doc-1",
		ChiefComplaint:   "Headache",
		PrescribedRemedy: prescription("Belladonna", "30C"),
	}); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}

	updated, err := env.patients.UpdatePatient(context.Background(), &patient.UpdatePatientCommand{
		ID:       p.ID,
		DoctorID: "doc-1",
		Age:      ptr(35),
	})
	if err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}

	if *updated.Age != 35 || updated.Name != "Asha" {
		t.Errorf("unexpected scalars: name=%q age=%v", updated.Name, *updated.Age)
	}
	if updated.TotalConsultations != 1 || updated.CurrentRemedy != "Belladonna" {
		t.Errorf("summary changed by scalar update: %+v", updated)
	}
	if !updated.SummaryConsistent() {
		t.Error("summary inconsistent after update")
	}
}

func TestUpdatePatient_RetriesVersionConflicts(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	p := env.createPatient(t, "doc-1", "Asha")
	env.repo.conflicts = 2

	updated, err := env.patients.UpdatePatient(context.Background(), &patient.UpdatePatientCommand{
		ID:       p.ID,
		DoctorID: "doc-1",
		Name:     ptr("Asha R"),
	})
	if err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}
	if updated.Name != "Asha R" {
		t.Errorf("Name = %q", updated.Name)
	}
	if got := testutil.ToFloat64(env.metrics.WriteConflictsTotal.WithLabelValues("update_patient")); got != 2 {
		t.Errorf("write_conflicts_total = %v, want 2", got)
	}
	if stored := env.repo.stored(p.ID); stored.Name != "Asha R" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestUpdatePatient_ConflictBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	p := env.createPatient(t, "doc-1", "Asha")
	env.repo.conflicts = 10

	_, err := env.patients.UpdatePatient(context.Background(), &patient.UpdatePatientCommand{
		ID:       p.ID,
		DoctorID: "doc-1",
		Name:     ptr("Asha R"),
	})
	if !errors.Is(err, ErrWriteConflict) {
		t.Fatalf("err = %v, want ErrWriteConflict", err)
	}
	if env.repo.conflicts != 7 {
		t.Errorf("attempts made = %d, want 3", 10-env.repo.conflicts)
	}
	if stored := env.repo.stored(p.ID); stored.Name != "Asha" {
		t.Errorf("stored name changed to %q", stored.Name)
	}
}

func TestDeletePatient(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	p := env.createPatient(t, "doc-1", "Asha")

	if err := env.patients.DeletePatient(context.Background(), p.ID, "doc-1"); err != nil {
		t.Fatalf("DeletePatient: %v", err)
	}
	if _, err := env.patients.GetPatient(context.Background(), p.ID, "doc-1"); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("err = %v, want ErrPatientNotFound", err)
	}
	want := []events.Type{events.TypePatientCreated, events.TypePatientDeleted}
	if got := env.flushEvents(t); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestResolveSearch(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.Local) }
	endOf := func(t time.Time) time.Time { return t.AddDate(0, 0, 1).Add(-time.Nanosecond) }
	june3 := day(2024, time.June, 3)
	june5 := day(2024, time.June, 5).Add(10 * time.Hour)

	tests := []struct {
		name     string
		in       SearchPatientsQuery
		wantFrom *time.Time
		wantTo   *time.Time
	}{
		{"no filter", SearchPatientsQuery{}, nil, nil},
		{"today", SearchPatientsQuery{Range: RangeToday}, ptr(day(2024, time.June, 12)), ptr(endOf(day(2024, time.June, 12)))},
		{"week starts on sunday", SearchPatientsQuery{Range: RangeWeek}, ptr(day(2024, time.June, 9)), nil},
		{"month", SearchPatientsQuery{Range: RangeMonth}, ptr(day(2024, time.June, 1)), nil},
		{"year", SearchPatientsQuery{Range: RangeYear}, ptr(day(2024, time.January, 1)), nil},
		{"explicit days are inclusive", SearchPatientsQuery{StartDate: &june3, EndDate: &june5},
			ptr(june3), ptr(endOf(day(2024, time.June, 5)))},
		{"range beats explicit dates", SearchPatientsQuery{Range: RangeToday, StartDate: &june3},
			ptr(day(2024, time.June, 12)), ptr(endOf(day(2024, time.June, 12)))},
		{"month of given year", SearchPatientsQuery{Month: 2, Year: 2024},
			ptr(day(2024, time.February, 1)), ptr(endOf(day(2024, time.February, 29)))},
		{"month defaults to current year", SearchPatientsQuery{Month: 1},
			ptr(day(2024, time.January, 1)), ptr(endOf(day(2024, time.January, 31)))},
		{"year alone", SearchPatientsQuery{Year: 2023},
			ptr(day(2023, time.January, 1)), ptr(endOf(day(2023, time.December, 31)))},
	}

	env := newTestEnv(t, clinicNow)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			q, err := env.patients.resolveSearch(&in)
			if err != nil {
				t.Fatalf("resolveSearch: %v", err)
			}
			if !sameTime(q.CreatedFrom, tt.wantFrom) {
				t.Errorf("from = %v, want %v", q.CreatedFrom, tt.wantFrom)
			}
			if !sameTime(q.CreatedTo, tt.wantTo) {
				t.Errorf("to = %v, want %v", q.CreatedTo, tt.wantTo)
			}
		})
	}
}

func TestResolveSearch_Defaults(t *testing.T) {
	env := newTestEnv(t, clinicNow)

	q, err := env.patients.resolveSearch(&SearchPatientsQuery{DoctorID: "doc-1", Query: " ash ", SortOrder: "ASC"})
	if err != nil {
		t.Fatalf("resolveSearch: %v", err)
	}
	if q.Page != 1 || q.PageSize != 20 {
		t.Errorf("page=%d size=%d, want 1/20", q.Page, q.PageSize)
	}
	if q.SortOrder != "asc" || q.Name != "ash" || q.DoctorID != "doc-1" {
		t.Errorf("unexpected query %+v", q)
	}

	q, err = env.patients.resolveSearch(&SearchPatientsQuery{SortOrder: "sideways"})
	if err != nil {
		t.Fatalf("resolveSearch: %v", err)
	}
	if q.SortOrder != "desc" {
		t.Errorf("SortOrder = %q, want desc", q.SortOrder)
	}
}

func TestResolveSearch_Invalid(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	june5 := time.Date(2024, time.June, 5, 0, 0, 0, 0, time.Local)
	june3 := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.Local)

	for name, in := range map[string]SearchPatientsQuery{
		"limit too large":  {Limit: 101},
		"bad range":        {Range: "fortnight"},
		"month 13":         {Month: 13},
		"end before start": {StartDate: &june5, EndDate: &june3},
	} {
		t.Run(name, func(t *testing.T) {
			var vErr *ValidationError
			if _, err := env.patients.resolveSearch(&in); !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestSearchPatients_ScopedToDoctor(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	env.createPatient(t, "doc-1", "Asha Rao")
	env.createPatient(t, "doc-1", "Bina Shah")
	env.createPatient(t, "doc-2", "Asha Mehta")

	page, err := env.patients.SearchPatients(context.Background(), &SearchPatientsQuery{DoctorID: "doc-1", Query: "ASHA"})
	if err != nil {
		t.Fatalf("SearchPatients: %v", err)
	}
	if page.TotalCount != 1 || len(page.Patients) != 1 || page.Patients[0].Name != "Asha Rao" {
		t.Fatalf("unexpected page: total=%d patients=%d", page.TotalCount, len(page.Patients))
	}
}

func TestTodaysPatients(t *testing.T) {
	env := newTestEnv(t, clinicNow)
	env.createPatient(t, "doc-1", "Today")

	old := patient.NewPatient(&patient.CreatePatientCommand{DoctorID: "doc-1", Name: "Yesterday"}, clinicNow.AddDate(0, 0, -1))
	if err := env.repo.Create(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	ps, err := env.patients.TodaysPatients(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("TodaysPatients: %v", err)
	}
	if len(ps) != 1 || ps[0].Name != "Today" {
		t.Fatalf("got %d patients", len(ps))
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
