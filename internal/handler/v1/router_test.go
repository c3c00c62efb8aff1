package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/krishx009/HomeoCare/internal/config"
	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/internal/service"
	"github.com/krishx009/HomeoCare/pkg/events"
	"github.com/krishx009/HomeoCare/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenVerifier treats the bearer token as the doctor id.
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "invalid" {
		return "", errors.New("bad token")
	}
	return token, nil
}

type memStore struct {
	mu       sync.Mutex
	patients map[uuid.UUID][]byte
}

func (s *memStore) put(p *patient.Patient) {
	b, _ := json.Marshal(p)
	s.patients[p.ID] = b
}

func (s *memStore) load(id uuid.UUID, doctorID string) (*patient.Patient, bool) {
	b, ok := s.patients[id]
	if !ok {
		return nil, false
	}
	var p patient.Patient
	_ = json.Unmarshal(b, &p)
	return &p, p.DoctorID == doctorID
}

func (s *memStore) Create(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(p)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID, doctorID string) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.load(id, doctorID)
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (s *memStore) GetByConsultationID(_ context.Context, consultationID, doctorID string) (*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.patients {
		p, ok := s.load(id, doctorID)
		if !ok {
			continue
		}
		if _, err := p.Consultation(consultationID); err == nil {
			return p, nil
		}
	}
	return nil, patient.ErrConsultationNotFound
}

func (s *memStore) Save(_ context.Context, p *patient.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.load(p.ID, p.DoctorID)
	if !ok {
		return patient.ErrPatientNotFound
	}
	if stored.Version != p.Version {
		return patient.ErrVersionConflict
	}
	p.Version++
	s.put(p)
	return nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID, doctorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.load(id, doctorID); !ok {
		return patient.ErrPatientNotFound
	}
	delete(s.patients, id)
	return nil
}

func (s *memStore) ListByDoctor(ctx context.Context, doctorID string) ([]*patient.Patient, error) {
	return s.ListCreatedSince(ctx, doctorID, time.Time{})
}

func (s *memStore) ListCreatedSince(_ context.Context, doctorID string, since time.Time) ([]*patient.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*patient.Patient, 0)
	for id := range s.patients {
		if p, ok := s.load(id, doctorID); ok && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Search(ctx context.Context, q *patient.SearchQuery) (*patient.PagedPatients, error) {
	ps, _ := s.ListByDoctor(ctx, q.DoctorID)
	return &patient.PagedPatients{
		Patients:   ps,
		TotalCount: int64(len(ps)),
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: 1,
	}, nil
}

func remedyJSON(name, potency string) map[string]any {
	return map[string]any{
		"remedyName": name,
		"potency":    potency,
		"dosage":     "2 pills",
		"frequency":  "Single dose",
		"duration":   "1 week",
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := zap.NewNop()
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	store := &memStore{patients: make(map[uuid.UUID][]byte)}
	ev := service.NewEventService(events.NopPublisher{}, 10, time.Second, m, log)
	t.Cleanup(func() { _ = ev.Shutdown(context.Background()) })

	return NewRouter(RouterDeps{
		Patients:      service.NewPatientService(store, ev, m, 3, log),
		Consultations: service.NewConsultationService(store, ev, m, 3, log),
		Verifier:      tokenVerifier{},
		Metrics:       m,
		Log:           log,
		CORS:          config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		RateLimit:     config.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000, AuthRequestsPerMinute: 100},
	})
}

type envelope struct {
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Fields []string        `json:"fields"`
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decoding %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func TestRouter_RequiresBearerToken(t *testing.T) {
	r := newTestRouter(t)

	if code, _ := do(t, r, http.MethodGet, "/api/v1/patients", "", nil); code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", code)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/patients", "invalid", nil); code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", code)
	}
	if code, _ := do(t, r, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Errorf("healthz: status = %d", code)
	}
}

func TestRouter_ConsultationLifecycle(t *testing.T) {
	r := newTestRouter(t)

	code, res := do(t, r, http.MethodPost, "/api/v1/patients", "doc-1", map[string]any{"name": "Asha", "age": 34})
	if code != http.StatusCreated {
		t.Fatalf("create patient: status = %d (%s)", code, res.Error)
	}
	var p patient.Patient
	if err := json.Unmarshal(res.Data, &p); err != nil {
		t.Fatal(err)
	}

	code, res = do(t, r, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/consultations", "doc-1", map[string]any{
		"chiefComplaint":   "Throbbing headache",
		"prescribedRemedy": remedyJSON("Belladonna", "30C"),
		"followUpDate":     time.Now().AddDate(0, 0, 3).Format(dateLayout),
	})
	if code != http.StatusCreated {
		t.Fatalf("create consultation: status = %d (%s %v)", code, res.Error, res.Fields)
	}
	var c patient.Consultation
	if err := json.Unmarshal(res.Data, &c); err != nil {
		t.Fatal(err)
	}
	if c.FollowUpDate == nil {
		t.Fatal("followUpDate not parsed")
	}

	code, res = do(t, r, http.MethodGet, "/api/v1/patients/followups-due", "doc-1", nil)
	if code != http.StatusOK {
		t.Fatalf("followups-due: status = %d", code)
	}
	var due []patient.FollowupEntry
	if err := json.Unmarshal(res.Data, &due); err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ConsultationID != c.ConsultationID {
		t.Fatalf("due = %+v", due)
	}

	code, res = do(t, r, http.MethodPut, "/api/v1/consultations/"+c.ConsultationID+"/followup", "doc-1", map[string]any{
		"responseToTreatment": "same",
		"decision":            "change",
		"newPrescription":     remedyJSON("Bryonia Alba", "200C"),
	})
	if code != http.StatusOK {
		t.Fatalf("followup: status = %d (%s %v)", code, res.Error, res.Fields)
	}

	code, res = do(t, r, http.MethodGet, "/api/v1/patients/"+p.ID.String()+"/consultations", "doc-1", nil)
	if code != http.StatusOK {
		t.Fatalf("list consultations: status = %d", code)
	}
	var history []patient.Consultation
	if err := json.Unmarshal(res.Data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].PrescribedRemedy.RemedyName != "Bryonia Alba" {
		t.Fatalf("history = %+v", history)
	}

	code, res = do(t, r, http.MethodGet, "/api/v1/consultations/"+c.ConsultationID, "doc-1", nil)
	if code != http.StatusOK {
		t.Fatalf("get consultation: status = %d", code)
	}
	var detail service.ConsultationDetail
	if err := json.Unmarshal(res.Data, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Patient.Name != "Asha" || detail.Consultation.Decision != patient.DecisionChange {
		t.Fatalf("detail = %+v", detail)
	}

	if code, _ := do(t, r, http.MethodGet, "/api/v1/consultations/"+c.ConsultationID, "doc-2", nil); code != http.StatusNotFound {
		t.Errorf("other doctor: status = %d, want 404", code)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/patients/"+p.ID.String(), "doc-2", nil); code != http.StatusNotFound {
		t.Errorf("other doctor patient: status = %d, want 404", code)
	}
}

func TestRouter_ValidationErrors(t *testing.T) {
	r := newTestRouter(t)

	code, res := do(t, r, http.MethodPost, "/api/v1/patients", "doc-1", map[string]any{"name": "Asha", "age": 151})
	if code != http.StatusBadRequest || len(res.Fields) == 0 {
		t.Errorf("age 151: status = %d fields = %v", code, res.Fields)
	}

	code, res = do(t, r, http.MethodPost, "/api/v1/patients", "doc-1", map[string]any{"name": "Asha"})
	if code != http.StatusCreated {
		t.Fatalf("create patient: %d", code)
	}
	var p patient.Patient
	_ = json.Unmarshal(res.Data, &p)

	code, res = do(t, r, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/consultations", "doc-1", map[string]any{
		"prescribedRemedy": remedyJSON("Belladonna", "30C"),
	})
	if code != http.StatusBadRequest {
		t.Errorf("missing chiefComplaint: status = %d", code)
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/consultations", "doc-1", map[string]any{
		"chiefComplaint":   "Cough",
		"prescribedRemedy": remedyJSON("Drosera", "30C"),
		"followUpDate":     "next tuesday",
	})
	if code != http.StatusBadRequest {
		t.Errorf("bad followUpDate: status = %d", code)
	}

	for _, field := range []string{"remedyName", "potency", "dosage", "frequency", "duration"} {
		remedy := remedyJSON("Belladonna", "30C")
		delete(remedy, field)
		code, res := do(t, r, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/consultations", "doc-1", map[string]any{
			"chiefComplaint":   "Headache",
			"prescribedRemedy": remedy,
		})
		if code != http.StatusBadRequest || !slices.Contains(res.Fields, "prescribedRemedy."+field+" is required") {
			t.Errorf("missing %s: status = %d fields = %v", field, code, res.Fields)
		}
	}

	if code, _ := do(t, r, http.MethodGet, "/api/v1/patients/search?limit=abc", "doc-1", nil); code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", code)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/patients/not-a-uuid", "doc-1", nil); code != http.StatusNotFound {
		t.Errorf("bad id: status = %d, want 404", code)
	}
	if code, _ := do(t, r, http.MethodPut, "/api/v1/consultations/CONS-1/followup", "doc-1", map[string]any{"decision": "repeat"}); code != http.StatusBadRequest {
		t.Errorf("missing responseToTreatment: status = %d", code)
	}
}

func TestRouter_ListsOmitHistory(t *testing.T) {
	r := newTestRouter(t)
	if code, _ := do(t, r, http.MethodPost, "/api/v1/patients", "doc-1", map[string]any{"name": "Asha"}); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}

	code, res := do(t, r, http.MethodGet, "/api/v1/patients/search?q=as", "doc-1", nil)
	if code != http.StatusOK {
		t.Fatalf("search: status = %d", code)
	}
	var page map[string]json.RawMessage
	if err := json.Unmarshal(res.Data, &page); err != nil {
		t.Fatal(err)
	}
	if _, ok := page["pagination"]; !ok {
		t.Error("missing pagination")
	}
	var items []map[string]any
	if err := json.Unmarshal(page["patients"], &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	if _, ok := items[0]["consultations"]; ok {
		t.Error("list items must not carry consultations")
	}
}

func TestRouter_EmptyFollowupsIsArray(t *testing.T) {
	r := newTestRouter(t)

	code, res := do(t, r, http.MethodGet, "/api/v1/patients/followups-due", "doc-1", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if string(res.Data) != "[]" {
		t.Errorf("data = %s, want []", res.Data)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/patients", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}
