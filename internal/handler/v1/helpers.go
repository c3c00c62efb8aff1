package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krishx009/HomeoCare/internal/domain"
	"github.com/krishx009/HomeoCare/internal/domain/patient"
	"github.com/krishx009/HomeoCare/internal/service"
)

const doctorIDKey = "doctor_id"

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, patient.ErrConsultationNotFound),
		errors.Is(err, domain.ErrDoctorNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrWriteConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "WRITE_CONFLICT"})

	case errors.Is(err, patient.ErrDuplicateConsultationID),
		errors.Is(err, domain.ErrEmailAlreadyTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrMFANotEnrolled):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrMFARequired):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "MFA_REQUIRED"})

	case errors.Is(err, service.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Code: "INVALID_OTP"})

	case errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "account is inactive"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		// Surfaced by the request logger.
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		// Not a well-formed id, so it cannot name one of the caller's patients.
		c.JSON(http.StatusNotFound, ErrorResponse{Error: patient.ErrPatientNotFound.Error()})
		return uuid.Nil, false
	}
	return id, true
}

// parseQueryInt returns 0 when key is absent, letting the service apply its
// default. A malformed value is reported as a bad request.
func parseQueryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": must be a positive integer"})
		return 0, false
	}
	return v, true
}

func doctorID(c *gin.Context) string {
	return c.GetString(doctorIDKey)
}
