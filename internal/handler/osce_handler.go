package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/medsim/clerksim-backend/internal/middleware"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/response"
	"github.com/medsim/clerksim-backend/internal/service"
	"github.com/medsim/clerksim-backend/internal/validator"
)

// OSCEHandler handles the structured examination stage of OSCE cases.
// Every route here runs behind the case session gate.
type OSCEHandler struct {
	osceService *service.OSCEService
	caseService *service.CaseService
}

// NewOSCEHandler creates a new OSCEHandler.
func NewOSCEHandler(osceService *service.OSCEService, caseService *service.CaseService) *OSCEHandler {
	return &OSCEHandler{
		osceService: osceService,
		caseService: caseService,
	}
}

// Start godoc
// POST /api/v1/osce/start
// Seeds the OSCE caches for the session and returns the history question
// set. Idempotent; a retry returns the already seeded set.
func (h *OSCEHandler) Start(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	record, err := h.caseService.CaseInfo(c.Request.Context(), cc.Claims.UserID, cc.Session.CaseID)
	if err != nil {
		failCaseError(c, err)
		return
	}
	if !record.IsOSCE {
		response.Fail(c, http.StatusBadRequest, response.ErrNotOSCECase)
		return
	}

	questions, err := h.osceService.Start(c.Request.Context(), cc.Session.SessionID, cc.Session.CaseID, cc.Primary)
	if err != nil {
		response.Fail(c, http.StatusBadGateway, response.ErrGeneratorFailed)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"history_questions": questions})
}

// HistoryQuestions godoc
// GET /api/v1/osce/history-questions
// Returns the cached history question set for the session.
func (h *OSCEHandler) HistoryQuestions(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	questions, err := h.osceService.HistoryQuestions(c.Request.Context(), cc.Session.SessionID)
	if err != nil {
		failOSCEError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"history_questions": questions})
}

// FollowUps godoc
// GET /api/v1/osce/follow-ups
// Returns the session's follow-up questions in their client-safe
// projection. Answers and explanations never appear here.
func (h *OSCEHandler) FollowUps(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	views, err := h.osceService.FollowUpsForClient(c.Request.Context(), cc.Session.SessionID)
	if err != nil {
		failOSCEError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"follow_ups": views})
}

// AnswerFollowUp godoc
// POST /api/v1/osce/follow-ups/answer
// Records a student answer against one follow-up question. Re-submission
// overwrites the prior answer.
func (h *OSCEHandler) AnswerFollowUp(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	var req model.AnswerFollowUpRequest
	if fields := validator.BindBody(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.osceService.UpdateAnswer(c.Request.Context(), cc.Session.SessionID, req.QuestionID, req.Answer)
	if err != nil {
		failOSCEError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": view})
}

// Evaluate godoc
// POST /api/v1/osce/evaluate
// Grades the session against the hidden answer key and returns the scored
// evaluation, corrections included.
func (h *OSCEHandler) Evaluate(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	eval, err := h.osceService.Evaluate(c.Request.Context(), cc.Session.SessionID, cc.Session.CaseID)
	if err != nil {
		failOSCEError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"evaluation": eval})
}

// Evaluation godoc
// GET /api/v1/osce/evaluation
// Returns the cached evaluation for the session.
func (h *OSCEHandler) Evaluation(c *gin.Context) {
	cc := middleware.GetCaseContext(c)
	if cc == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	eval, err := h.osceService.Evaluation(c.Request.Context(), cc.Session.SessionID)
	if err != nil {
		failOSCEError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"evaluation": eval})
}

// failOSCEError maps OSCE domain errors onto response codes.
func failOSCEError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrOSCENotStarted):
		response.Fail(c, http.StatusNotFound, response.ErrOSCENotStarted)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
	case errors.Is(err, service.ErrEvaluationMissing):
		response.Fail(c, http.StatusNotFound, response.ErrEvaluationMissing)
	case errors.Is(err, service.ErrInvalidEvaluation):
		response.Fail(c, http.StatusInternalServerError, response.ErrInvalidEvaluation)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
	}
}
