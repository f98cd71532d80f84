package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/generator"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/repository"
	"github.com/medsim/clerksim-backend/internal/secondary"
	"github.com/rs/zerolog"
)

// Case lifecycle errors.
var (
	ErrCaseNotFound  = errors.New("case not found")
	ErrCaseCompleted = errors.New("case already completed")
	ErrNotCaseOwner  = errors.New("case belongs to another user")
)

// CaseStart is everything a client needs to begin (or resume) clerking a
// case: the client-safe case record, the session, and the signed context
// token to be set as a cookie.
type CaseStart struct {
	Case         *model.ClinicalCase `json:"case"`
	Session      *model.CaseSession  `json:"session"`
	ContextToken string              `json:"-"`
}

// ActiveCase pairs a live session with its case summary for the resume list.
type ActiveCase struct {
	Session model.CaseSession   `json:"session"`
	Case    *model.ClinicalCase `json:"case"`
}

// CaseService orchestrates the case lifecycle: generation, resumption,
// patient Q&A relay, autosave and completion. It owns the coupling between
// the Session Store, the primary-context cache and the token service.
type CaseService struct {
	cases    *repository.CaseRepository
	reports  *repository.CaseReportRepository
	sessions *SessionService
	cache    *PrimaryContextCache
	tokens   *ContextTokenService
	osce     *OSCEService
	gen      generator.Client
	scratch  secondary.Store
	cfg      *config.Config
	log      zerolog.Logger
}

// NewCaseService creates a new CaseService.
func NewCaseService(
	cases *repository.CaseRepository,
	reports *repository.CaseReportRepository,
	sessions *SessionService,
	cache *PrimaryContextCache,
	tokens *ContextTokenService,
	osce *OSCEService,
	gen generator.Client,
	scratch secondary.Store,
	cfg *config.Config,
	log zerolog.Logger,
) *CaseService {
	return &CaseService{
		cases:    cases,
		reports:  reports,
		sessions: sessions,
		cache:    cache,
		tokens:   tokens,
		osce:     osce,
		gen:      gen,
		scratch:  scratch,
		cfg:      cfg,
		log:      log.With().Str("component", "case_service").Logger(),
	}
}

// Generate produces a new case for the user: narrative from the generator,
// durable case row, fresh session, warmed cache, signed context token.
func (s *CaseService) Generate(ctx context.Context, userID uuid.UUID, req model.GenerateCaseRequest) (*CaseStart, error) {
	seed, err := s.gen.GenerateCase(ctx, generator.CaseRequest{
		Department:      req.Department,
		DifficultyLevel: req.DifficultyLevel,
		IsPediatric:     req.IsPediatric,
	})
	if err != nil {
		return nil, fmt.Errorf("generate case: %w", err)
	}

	record := &model.ClinicalCase{
		UserID:           userID,
		Diagnosis:        seed.Diagnosis,
		PrimaryInfo:      seed.PrimaryInfo,
		OpeningLine:      seed.OpeningLine,
		PatientProfile:   seed.PatientProfile,
		PediatricProfile: seed.PediatricProfile,
		IsPediatric:      req.IsPediatric,
		Department:       req.Department,
		DifficultyLevel:  req.DifficultyLevel,
		IsOSCE:           req.IsOSCE,
	}
	primary := record.PrimaryContext()
	if err := primary.Validate(); err != nil {
		return nil, fmt.Errorf("generator produced invalid context: %w", err)
	}

	if err := s.cases.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist case: %w", err)
	}

	session, err := s.sessions.CreateSession(ctx, record.ID, userID, s.cache.TTLFor(req.IsOSCE))
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.Put(ctx, record.ID, userID, session.SessionID, primary, req.IsOSCE); err != nil {
		// A cold cache is recoverable: the next Get rebuilds from the row
		// just written. Log and continue.
		s.log.Warn().Err(err).Str("case_id", record.ID.String()).Msg("Cache warm failed")
	}

	token, err := s.tokens.Issue(record.ID, userID, session.SessionID, primary, s.cfg.ContextTokenExpiry)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("case_id", record.ID.String()).
		Str("department", record.Department).
		Bool("osce", record.IsOSCE).
		Msg("Case generated")

	return &CaseStart{Case: record, Session: session, ContextToken: token}, nil
}

// Resume re-enters an in-progress case: validates ownership, ensures a live
// session exists, re-issues the context token from rebuilt primary context.
func (s *CaseService) Resume(ctx context.Context, userID, caseID uuid.UUID) (*CaseStart, error) {
	record, err := s.getOwnedCase(ctx, caseID, userID)
	if err != nil {
		return nil, err
	}
	if record.CompletedAt != nil {
		return nil, ErrCaseCompleted
	}

	session, err := s.sessions.ActiveSessionForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		// Expired mid-case: open a fresh session so the student can carry on.
		session, err = s.sessions.CreateSession(ctx, caseID, userID, s.cache.TTLFor(record.IsOSCE))
		if err != nil {
			return nil, err
		}
	}

	primary := record.PrimaryContext()
	if _, err := s.cache.Put(ctx, caseID, userID, session.SessionID, primary, record.IsOSCE); err != nil {
		s.log.Warn().Err(err).Str("case_id", caseID.String()).Msg("Cache warm failed on resume")
	}

	token, err := s.tokens.Issue(caseID, userID, session.SessionID, primary, s.cfg.ContextTokenExpiry)
	if err != nil {
		return nil, err
	}
	return &CaseStart{Case: record, Session: session, ContextToken: token}, nil
}

// ActiveCases lists the user's resumable sessions paired with their cases.
func (s *CaseService) ActiveCases(ctx context.Context, userID uuid.UUID) ([]ActiveCase, error) {
	sessions, err := s.sessions.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := make([]ActiveCase, 0, len(sessions))
	for _, sess := range sessions {
		record, err := s.cases.GetByID(ctx, sess.CaseID)
		if err != nil {
			continue // Skip if the case row is gone
		}
		if record.CompletedAt != nil {
			continue
		}
		active = append(active, ActiveCase{Session: sess, Case: record})
	}
	return active, nil
}

// RefreshToken re-issues the caller's context token with a fresh expiry.
// The verifier proves authenticity; ownership is checked here.
func (s *CaseService) RefreshToken(ctx context.Context, userID uuid.UUID, oldToken string) (string, error) {
	claims, err := s.tokens.Verify(oldToken)
	if err != nil {
		return "", err
	}
	if claims.UserID != userID {
		return "", ErrNotCaseOwner
	}

	// Cross-check the session before extending the token's life.
	validation, err := s.sessions.ValidateSession(ctx, claims.SessionID, claims.UserID, claims.CaseID)
	if err != nil {
		return "", err
	}
	if !validation.Valid {
		return "", ErrTokenExpired
	}

	return s.tokens.Issue(claims.CaseID, claims.UserID, claims.SessionID, &claims.Primary, s.cfg.ContextTokenExpiry)
}

// AskPatient relays one student question to the generator, grounded on the
// primary context. The transcript stays client-held; the server stores
// nothing here.
func (s *CaseService) AskPatient(ctx context.Context, primary *model.PrimaryContext, question string, history []model.ChatMessage) (string, error) {
	reply, err := s.gen.PatientReply(ctx, generator.ReplyRequest{
		Primary:  *primary,
		Question: question,
		History:  history,
	})
	if err != nil {
		return "", fmt.Errorf("patient reply: %w", err)
	}
	return reply, nil
}

// Autosave stores the client's secondary-context scratch copy.
func (s *CaseService) Autosave(ctx context.Context, caseID uuid.UUID, sc *model.SecondaryContext) error {
	sc.CaseID = caseID
	sc.UpdatedAt = time.Now()
	return s.scratch.Set(ctx, caseID, sc)
}

// Complete finishes a case: persists the report durably, deactivates the
// session, evicts the primary-context and OSCE caches, clears the scratch.
// The eviction order matters: once the report is durable, a lingering
// duplicate request must not be served stale primary context.
func (s *CaseService) Complete(ctx context.Context, session *model.CaseSession, sc *model.SecondaryContext) (*model.CaseReport, error) {
	record, err := s.getOwnedCase(ctx, session.CaseID, session.UserID)
	if err != nil {
		return nil, err
	}
	if record.CompletedAt != nil {
		return nil, ErrCaseCompleted
	}

	if sc == nil {
		if sc, err = s.scratch.Get(ctx, session.CaseID); err != nil {
			return nil, err
		}
		if sc == nil {
			sc = &model.SecondaryContext{}
		}
	}
	sc.CaseID = session.CaseID
	sc.UpdatedAt = time.Now()

	report := &model.CaseReport{
		CaseID: session.CaseID,
		UserID: session.UserID,
		Report: *sc,
	}
	if err := s.reports.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}
	if err := s.cases.MarkCompleted(ctx, session.CaseID); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}
	if err := s.sessions.DeactivateSession(ctx, session.SessionID); err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, session.CaseID); err != nil {
		s.log.Warn().Err(err).Str("case_id", session.CaseID.String()).Msg("Cache invalidate failed")
	}
	if err := s.osce.InvalidateSession(ctx, session.SessionID, session.CaseID); err != nil {
		s.log.Warn().Err(err).Str("case_id", session.CaseID.String()).Msg("OSCE cache invalidate failed")
	}
	_ = s.scratch.Remove(ctx, session.CaseID)

	s.log.Info().Str("case_id", session.CaseID.String()).Msg("Case completed")
	return report, nil
}

// Report returns the durable report for a completed case the user owns.
func (s *CaseService) Report(ctx context.Context, userID, caseID uuid.UUID) (*model.CaseReport, error) {
	if _, err := s.getOwnedCase(ctx, caseID, userID); err != nil {
		return nil, err
	}
	report, err := s.reports.GetByCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// CaseInfo returns the case record if the user owns it.
func (s *CaseService) CaseInfo(ctx context.Context, userID, caseID uuid.UUID) (*model.ClinicalCase, error) {
	return s.getOwnedCase(ctx, caseID, userID)
}

func (s *CaseService) getOwnedCase(ctx context.Context, caseID, userID uuid.UUID) (*model.ClinicalCase, error) {
	record, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	if record.UserID != userID {
		return nil, ErrNotCaseOwner
	}
	return record, nil
}
