package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/internal/service"
)

type ConsultationHandler struct {
	svc *service.ConsultationService
}

func NewConsultationHandler(svc *service.ConsultationService) *ConsultationHandler {
	return &ConsultationHandler{svc: svc}
}

func (h *ConsultationHandler) Create(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req createConsultationRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.svc.CreateConsultation(c.Request.Context(), &patient.CreateConsultationCommand{
		PatientID:              patientID,
		DoctorID:               doctorID(c),
		ChiefComplaint:         req.ChiefComplaint,
		PhysicalSymptoms:       req.PhysicalSymptoms,
		MentalEmotionalState:   req.MentalEmotionalState,
		GeneralCharacteristics: req.GeneralCharacteristics,
		PrescribedRemedy:       req.PrescribedRemedy,
		DoctorNotes:            req.DoctorNotes,
		DiagnosisApproach:      req.DiagnosisApproach,
		FollowUpDate:           req.FollowUpDate.ptr(),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, created)
}

func (h *ConsultationHandler) List(c *gin.Context) {
	patientID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	cs, err := h.svc.ListConsultations(c.Request.Context(), patientID, doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, cs)
}

func (h *ConsultationHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetConsultation(c.Request.Context(), c.Param("consultationId"), doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, detail)
}

func (h *ConsultationHandler) RecordFollowUp(c *gin.Context) {
	var req followUpRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.svc.RecordFollowUp(c.Request.Context(), &patient.FollowUpCommand{
		ConsultationID:      c.Param("consultationId"),
		DoctorID:            doctorID(c),
		ResponseToTreatment: req.ResponseToTreatment,
		ImprovementsNoted:   req.ImprovementsNoted,
		RemainingSymptoms:   req.RemainingSymptoms,
		NewSymptoms:         req.NewSymptoms,
		FollowUpNotes:       req.FollowUpNotes,
		Decision:            req.Decision,
		NextFollowUpDate:    req.NextFollowUpDate.ptr(),
		NewPrescription:     req.NewPrescription,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, updated)
}

func (h *ConsultationHandler) FollowupsDue(c *gin.Context) {
	due, err := h.svc.FollowupsDue(c.Request.Context(), doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, due)
}

func (h *ConsultationHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context(), doctorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, st)
}

func (h *ConsultationHandler) Remedies(c *gin.Context) {
	respondOK(c, h.svc.SearchRemedies(c.Query("q")))
}
