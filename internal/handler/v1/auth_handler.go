package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/krishx009/HomeoCare/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	d, err := h.svc.Register(c.Request.Context(), &service.RegisterCommand{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, d)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.svc.Login(c.Request.Context(), req.Email, req.Password, req.OTP, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, pair)
}

func (h *AuthHandler) EnrollMFA(c *gin.Context) {
	id, ok := currentDoctor(c)
	if !ok {
		return
	}

	enrollment, err := h.svc.EnrollMFA(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, enrollment)
}

func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	id, ok := currentDoctor(c)
	if !ok {
		return
	}

	var req verifyMFARequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.VerifyMFA(c.Request.Context(), id, req.Code); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse[any]{Message: "mfa enabled"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	id, ok := currentDoctor(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse[any]{Message: "password changed"})
}

// currentDoctor parses the authenticated subject. Account endpoints need it
// as a uuid because they act on the local doctor record.
func currentDoctor(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(doctorID(c))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return id, true
}
