package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/response"
	"github.com/medsim/clerksim-backend/internal/service"
)

const (
	// ContextCookieName is the HTTP-only cookie carrying the signed
	// context token.
	ContextCookieName = "case_context"

	// ContextKeyCaseContext is the Gin context key for the resolved case
	// context.
	ContextKeyCaseContext = "case_context_data"
)

// ContextTokenVerifier proves a context token's authenticity and integrity.
type ContextTokenVerifier interface {
	Verify(token string) (*service.ContextClaims, error)
}

// SessionValidator answers whether a (session, user, case) triple is live.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID string, userID, caseID uuid.UUID) (*model.SessionValidation, error)
}

// PrimaryContextResolver is the cache-aside primary context read.
type PrimaryContextResolver interface {
	Get(ctx context.Context, caseID uuid.UUID) (*model.CachedPrimaryContext, error)
}

// CaseContext is what the gate hands to handlers: who is calling, for
// which session, with which primary context.
type CaseContext struct {
	Claims  *service.Claims
	Session *model.CaseSession
	Primary *model.PrimaryContext
}

// RequireCaseSession is the request gate for every endpoint that touches
// case data. It runs after RequireAuth and resolves the case session in
// one of two ways:
//
//  1. Token fast path: a verified context cookie answers the request with
//     zero lookups. Non-GET requests additionally cross-check the Session
//     Store so a deactivated session cannot keep mutating state on the
//     strength of an old token.
//  2. Store fallback: a {case_id, session_id} pair in the body is
//     validated against the Session Store and the primary context is
//     resolved through the cache (rebuilding from durable state on miss).
//
// The token verifier only proves authenticity; the ownership check
// (token user == caller) lives here.
func RequireCaseSession(tokens ContextTokenVerifier, sessions SessionValidator, contexts PrimaryContextResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrUnauthorized)
			return
		}

		if raw, err := c.Cookie(ContextCookieName); err == nil && raw != "" {
			resolveFromToken(c, claims, raw, tokens, sessions)
			return
		}

		resolveFromStore(c, claims, sessions, contexts)
	}
}

// GetCaseContext retrieves the resolved case context from the Gin context.
func GetCaseContext(c *gin.Context) *CaseContext {
	val, exists := c.Get(ContextKeyCaseContext)
	if !exists {
		return nil
	}
	cc, ok := val.(*CaseContext)
	if !ok {
		return nil
	}
	return cc
}

func resolveFromToken(c *gin.Context, claims *service.Claims, raw string, tokens ContextTokenVerifier, sessions SessionValidator) {
	tc, err := tokens.Verify(raw)
	if err != nil {
		if errors.Is(err, service.ErrTokenExpired) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	if tc.UserID != claims.UserID {
		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	session := &model.CaseSession{
		SessionID: tc.SessionID,
		CaseID:    tc.CaseID,
		UserID:    tc.UserID,
		IsActive:  true,
		ExpiresAt: tc.ExpiresAt.Time,
	}

	// State-changing requests must not ride on the token alone.
	if c.Request.Method != http.MethodGet {
		validation, err := sessions.ValidateSession(c.Request.Context(), tc.SessionID, claims.UserID, tc.CaseID)
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrStorage)
			return
		}
		if !validation.Valid {
			abortForReason(c, validation.Reason)
			return
		}
		session = validation.Session
	}

	dispatch(c, claims, session, &tc.Primary)
}

func resolveFromStore(c *gin.Context, claims *service.Claims, sessions SessionValidator, contexts PrimaryContextResolver) {
	var ref model.SessionRef
	if err := c.ShouldBindBodyWith(&ref, binding.JSON); err != nil {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionRequired)
		return
	}

	validation, err := sessions.ValidateSession(c.Request.Context(), ref.SessionID, claims.UserID, ref.CaseID)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}
	if !validation.Valid {
		abortForReason(c, validation.Reason)
		return
	}

	entry, err := contexts.Get(c.Request.Context(), ref.CaseID)
	if err != nil {
		response.AbortFail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}
	if entry == nil {
		response.AbortFail(c, http.StatusNotFound, response.ErrContextNotFound)
		return
	}
	if entry.UserID != claims.UserID {
		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	dispatch(c, claims, validation.Session, &entry.Context)
}

func dispatch(c *gin.Context, claims *service.Claims, session *model.CaseSession, primary *model.PrimaryContext) {
	c.Set(ContextKeyCaseContext, &CaseContext{
		Claims:  claims,
		Session: session,
		Primary: primary,
	})
	c.Next()
}

func abortForReason(c *gin.Context, reason model.InvalidReason) {
	switch reason {
	case model.ReasonExpired:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionExpired)
	case model.ReasonInactive:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInactive)
	default:
		response.AbortFail(c, http.StatusNotFound, response.ErrSessionNotFound)
	}
}
