package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/middleware"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/response"
	"github.com/medsim/clerksim-backend/internal/service"
	"github.com/medsim/clerksim-backend/internal/validator"
)

// CaseHandler handles the case lifecycle endpoints.
type CaseHandler struct {
	caseService *service.CaseService
	cfg         *config.Config
}

// NewCaseHandler creates a new CaseHandler.
func NewCaseHandler(caseService *service.CaseService, cfg *config.Config) *CaseHandler {
	return &CaseHandler{
		caseService: caseService,
		cfg:         cfg,
	}
}

// Generate godoc
// POST /api/v1/cases
// Generates a new clinical case, opens its session and sets the context
// cookie. Diagnosis and grading context never appear in the payload.
func (h *CaseHandler) Generate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.GenerateCaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	start, err := h.caseService.Generate(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrGeneratorFailed)
		return
	}

	setContextCookie(c, start.ContextToken, int(h.cfg.ContextTokenExpiry.Seconds()), h.cfg.CookieSecure)
	response.Success(c, http.StatusCreated, gin.H{
		"case":          start.Case,
		"session":       start.Session,
		"context_token": start.ContextToken,
	})
}

// ActiveCases godoc
// GET /api/v1/cases/active
// Lists the user's resumable sessions paired with their case summaries.
func (h *CaseHandler) ActiveCases(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	active, err := h.caseService.ActiveCases(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}
	if active == nil {
		active = []service.ActiveCase{}
	}

	response.Success(c, http.StatusOK, gin.H{"cases": active})
}

// Resume godoc
// POST /api/v1/cases/resume
// Re-enters an in-progress case: revives the session if needed, re-warms
// the context cache and re-issues the context cookie.
func (h *CaseHandler) Resume(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ResumeCaseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	start, err := h.caseService.Resume(c.Request.Context(), claims.UserID, req.CaseID)
	if err != nil {
		failCaseError(c, err)
		return
	}

	setContextCookie(c, start.ContextToken, int(h.cfg.ContextTokenExpiry.Seconds()), h.cfg.CookieSecure)
	response.Success(c, http.StatusOK, gin.H{
		"case":          start.Case,
		"session":       start.Session,
		"context_token": start.ContextToken,
	})
}

// RefreshToken godoc
// POST /api/v1/cases/refresh-token
// Re-issues the context token from the current cookie with a fresh expiry.
// The embedded context is carried over; the cache is untouched.
func (h *CaseHandler) RefreshToken(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	raw, err := c.Cookie(middleware.ContextCookieName)
	if err != nil || raw == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	token, err := h.caseService.RefreshToken(c.Request.Context(), claims.UserID, raw)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenExpired):
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		case errors.Is(err, service.ErrNotCaseOwner):
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		default:
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		}
		return
	}

	setContextCookie(c, token, int(h.cfg.ContextTokenExpiry.Seconds()), h.cfg.CookieSecure)
	response.Success(c, http.StatusOK, gin.H{"context_token": token})
}

// AskPatient godoc
// POST /api/v1/cases/ask
// Relays one student question to the virtual patient, grounded on the
// primary context resolved by the session gate.
func (h *CaseHandler) AskPatient(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	var req model.AskPatientRequest
	if fields := validator.BindBody(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reply, err := h.caseService.AskPatient(c.Request.Context(), cc.Primary, req.Question, req.History)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrGeneratorFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"reply": reply})
}

// Autosave godoc
// POST /api/v1/cases/autosave
// Stores the client's secondary-context scratch copy. Always whole-document;
// last write wins.
func (h *CaseHandler) Autosave(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	var req model.AutosaveRequest
	if fields := validator.BindBody(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.caseService.Autosave(c.Request.Context(), cc.Session.CaseID, &req.Context); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// Complete godoc
// POST /api/v1/cases/complete
// Finishes the case: persists the report, deactivates the session, evicts
// the caches and clears the context cookie.
func (h *CaseHandler) Complete(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	// The body is optional; without one the last autosaved scratch is used.
	var sc *model.SecondaryContext
	var req model.CompleteCaseRequest
	if fields := validator.BindBody(c, &req); fields == nil {
		sc = &req.Context
	}

	report, err := h.caseService.Complete(c.Request.Context(), cc.Session, sc)
	if err != nil {
		failCaseError(c, err)
		return
	}

	clearContextCookie(c, h.cfg.CookieSecure)
	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// Report godoc
// GET /api/v1/cases/:case_id/report
// Returns the durable report of a completed case the user owns.
func (h *CaseHandler) Report(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	caseID, err := uuid.Parse(c.Param("case_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.caseService.Report(c.Request.Context(), claims.UserID, caseID)
	if err != nil {
		failCaseError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"report": report})
}

// failCaseError maps case lifecycle errors onto response codes.
func failCaseError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCaseNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrCaseNotFound)
	case errors.Is(err, service.ErrNotCaseOwner):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrCaseCompleted):
		response.Fail(c, http.StatusConflict, response.ErrCaseCompleted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
	}
}
