package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/rs/zerolog"
)

// SessionStore is the durable session row access the service needs.
// Implemented by repository.CaseSessionRepository; tests substitute an
// in-memory fake with the same pgx.ErrNoRows miss convention.
type SessionStore interface {
	Insert(ctx context.Context, s *model.CaseSession) error
	Get(ctx context.Context, sessionID string) (*model.CaseSession, error)
	Deactivate(ctx context.Context, sessionID string) error
	DeactivateForCase(ctx context.Context, caseID, userID uuid.UUID) error
	ListActive(ctx context.Context, userID uuid.UUID) ([]model.CaseSession, error)
	NewestActiveForCase(ctx context.Context, caseID uuid.UUID) (*model.CaseSession, error)
}

// SessionService is the source of truth for "is this case session still
// valid". Expected failures (expired, not found, inactive) are reported as
// a typed SessionValidation; only storage failures surface as errors.
type SessionService struct {
	store SessionStore
	log   zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(store SessionStore, log zerolog.Logger) *SessionService {
	return &SessionService{
		store: store,
		log:   log.With().Str("component", "session_service").Logger(),
	}
}

// NewSessionID returns a 256-bit random hex string. Session ids must be
// unguessable: they gate access to a case's primary context.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateSession opens a new active session for a (case, user) pair.
// Any prior active session for the same pair is deactivated first, so at
// most one active session per pair exists at a time.
func (s *SessionService) CreateSession(ctx context.Context, caseID, userID uuid.UUID, ttl time.Duration) (*model.CaseSession, error) {
	sessionID, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	if err := s.store.DeactivateForCase(ctx, caseID, userID); err != nil {
		return nil, fmt.Errorf("deactivate prior sessions: %w", err)
	}

	session := &model.CaseSession{
		SessionID: sessionID,
		CaseID:    caseID,
		UserID:    userID,
		IsActive:  true,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.store.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Debug().
		Str("case_id", caseID.String()).
		Time("expires_at", session.ExpiresAt).
		Msg("Session created")
	return session, nil
}

// ValidateSession checks that a session row exists for exactly this
// (session, user, case) triple, is active, and has not expired. Returns
// an error only when the store itself fails.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string, userID, caseID uuid.UUID) (*model.SessionValidation, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.SessionValidation{Valid: false, Reason: model.ReasonNotFound}, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	// A key mismatch is indistinguishable from absence on purpose: the
	// response must not confirm that the session id exists for someone else.
	if session.UserID != userID || session.CaseID != caseID {
		return &model.SessionValidation{Valid: false, Reason: model.ReasonNotFound}, nil
	}
	if !session.IsActive {
		return &model.SessionValidation{Valid: false, Reason: model.ReasonInactive}, nil
	}
	if session.Expired(time.Now()) {
		return &model.SessionValidation{Valid: false, Reason: model.ReasonExpired}, nil
	}

	return &model.SessionValidation{Valid: true, Session: session}, nil
}

// DeactivateSession flips a session to inactive. Idempotent; rows are kept
// as an audit trail, never deleted.
func (s *SessionService) DeactivateSession(ctx context.Context, sessionID string) error {
	if err := s.store.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}
	return nil
}

// ListActiveSessions returns the user's live sessions, newest first. Used
// to resume in-progress cases.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID uuid.UUID) ([]model.CaseSession, error) {
	sessions, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// ActiveSessionForCase returns the newest live session for a case, or nil
// if none exists.
func (s *SessionService) ActiveSessionForCase(ctx context.Context, caseID uuid.UUID) (*model.CaseSession, error) {
	session, err := s.store.NewestActiveForCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("newest active session: %w", err)
	}
	return session, nil
}
