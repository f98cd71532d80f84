package model

import (
	"time"

	"github.com/google/uuid"
)

// CaseSession identifies one active attempt at a case. The session id is an
// opaque, unguessable token string, not a sequential or UUID identifier.
type CaseSession struct {
	SessionID string    `json:"session_id"`
	CaseID    uuid.UUID `json:"case_id"`
	UserID    uuid.UUID `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the session is passively invalid at t.
func (s *CaseSession) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// InvalidReason enumerates why a session failed validation. Expected
// conditions are reported as data, not raised as errors.
type InvalidReason string

const (
	ReasonNotFound InvalidReason = "not_found"
	ReasonExpired  InvalidReason = "expired"
	ReasonInactive InvalidReason = "inactive"
)

// SessionValidation is the typed result of Session Store validation.
type SessionValidation struct {
	Valid   bool          `json:"valid"`
	Session *CaseSession  `json:"session,omitempty"`
	Reason  InvalidReason `json:"reason,omitempty"`
}

// SessionRef identifies a session in a request body, used by clients that
// do not carry the signed context cookie.
type SessionRef struct {
	CaseID    uuid.UUID `json:"case_id" binding:"required"`
	SessionID string    `json:"session_id" binding:"required"`
}

// CachedPrimaryContext wraps a primary context in the cache layer together
// with its provenance and expiry. The durable case record and Session Store
// remain the backing source; this entry is always reconstructible.
type CachedPrimaryContext struct {
	CaseID    uuid.UUID      `json:"case_id"`
	UserID    uuid.UUID      `json:"user_id"`
	SessionID string         `json:"session_id"`
	Context   PrimaryContext `json:"context"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}
