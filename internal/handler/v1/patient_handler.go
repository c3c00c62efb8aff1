package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/internal/service"
)

type PatientHandler struct {
	svc *service.PatientService
}

func NewPatientHandler(svc *service.PatientService) *PatientHandler {
	return &PatientHandler{svc: svc}
}

func (h *PatientHandler) Create(c *gin.Context) {
	var req createPatientRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.CreatePatient(c.Request.Context(), &patient.CreatePatientCommand{
		DoctorID:       doctorID(c),
		Name:           req.Name,
		Age:            req.Age,
		Weight:         req.Weight,
		Height:         req.Height,
		MedicalHistory: req.MedicalHistory,
		FileURLs:       req.FileURLs,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, p)
}

func (h *PatientHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.GetPatient(c.Request.Context(), id, doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *PatientHandler) Update(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req updatePatientRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.svc.UpdatePatient(c.Request.Context(), &patient.UpdatePatientCommand{
		ID:             id,
		DoctorID:       doctorID(c),
		Name:           req.Name,
		Age:            req.Age,
		Weight:         req.Weight,
		Height:         req.Height,
		MedicalHistory: req.MedicalHistory,
		FileURLs:       req.FileURLs,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *PatientHandler) Delete(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeletePatient(c.Request.Context(), id, doctorID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PatientHandler) List(c *gin.Context) {
	ps, err := h.svc.ListPatients(c.Request.Context(), doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toListItems(ps))
}

func (h *PatientHandler) Today(c *gin.Context) {
	ps, err := h.svc.TodaysPatients(c.Request.Context(), doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, toListItems(ps))
}

// Search handles GET /patients/search. Absent numeric parameters fall back
// to the service defaults.
func (h *PatientHandler) Search(c *gin.Context) {
	q := &service.SearchPatientsQuery{
		DoctorID:  doctorID(c),
		Query:     c.Query("q"),
		Range:     service.DateRange(c.Query("dateRange")),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}

	var ok bool
	if q.Page, ok = parseQueryInt(c, "page"); !ok {
		return
	}
	if q.Limit, ok = parseQueryInt(c, "limit"); !ok {
		return
	}
	if q.Month, ok = parseQueryInt(c, "month"); !ok {
		return
	}
	if q.Year, ok = parseQueryInt(c, "year"); !ok {
		return
	}
	for _, d := range []struct {
		key string
		dst **time.Time
	}{{"startDate", &q.StartDate}, {"endDate", &q.EndDate}} {
		if raw := c.Query(d.key); raw != "" {
			t, err := parseDate(raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "invalid "+d.key+": "+err.Error())
				return
			}
			*d.dst = &t
		}
	}

	page, err := h.svc.SearchPatients(c.Request.Context(), q)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, searchResponse{
		Patients: toListItems(page.Patients),
		Pagination: pagination{
			Page:       page.Page,
			Limit:      page.PageSize,
			Total:      page.TotalCount,
			TotalPages: page.TotalPages,
		},
	})
}
