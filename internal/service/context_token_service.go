package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/model"
)

// Signed context token errors. Tampering and expiry are distinct: an
// expired-but-authentic token may be refreshed, a tampered one never.
var (
	ErrTokenTampered = errors.New("context token signature or format invalid")
	ErrTokenExpired  = errors.New("context token expired")
)

// ContextClaims is the signed context token payload: a full copy of the
// primary context plus the identifiers needed to tie it to a session.
// Carrying the context inside the token is the zero-roundtrip fast path;
// a verified token answers a request without touching cache or database.
type ContextClaims struct {
	jwt.RegisteredClaims
	CaseID    uuid.UUID            `json:"case_id"`
	UserID    uuid.UUID            `json:"user_id"`
	SessionID string               `json:"session_id"`
	Primary   model.PrimaryContext `json:"primary_context"`
}

// ContextTokenService issues and verifies signed context tokens (HS256).
// The verifier proves authenticity and integrity only; matching the token's
// user against the caller is the middleware's job.
type ContextTokenService struct {
	secret []byte
}

// NewContextTokenService creates a new ContextTokenService.
func NewContextTokenService(secret string) *ContextTokenService {
	return &ContextTokenService{secret: []byte(secret)}
}

// Issue signs a context token for the given session. If sessionID is empty
// a fresh one is generated. The primary context is validated before it is
// embedded; a malformed context never gets signed.
func (s *ContextTokenService) Issue(caseID, userID uuid.UUID, sessionID string, primary *model.PrimaryContext, ttl time.Duration) (string, error) {
	if primary == nil {
		return "", fmt.Errorf("issue token: primary context is nil")
	}
	if err := primary.Validate(); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if sessionID == "" {
		var err error
		sessionID, err = NewSessionID()
		if err != nil {
			return "", err
		}
	}

	now := time.Now()
	claims := ContextClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		CaseID:    caseID,
		UserID:    userID,
		SessionID: sessionID,
		Primary:   *primary,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign context token: %w", err)
	}
	return signed, nil
}

// Verify checks signature integrity first, then expiry. Returns
// ErrTokenTampered for any signature or format problem, ErrTokenExpired for
// an authentic token past its exp claim. Malformed input never panics.
func (s *ContextTokenService) Verify(tokenStr string) (*ContextClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ContextClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		// Signature problems dominate: an expired token with a broken
		// signature is tampered, not expired.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenTampered
		}
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenTampered
	}

	claims, ok := token.Claims.(*ContextClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenTampered
	}
	if claims.UserID == uuid.Nil || claims.CaseID == uuid.Nil || claims.SessionID == "" {
		return nil, ErrTokenTampered
	}
	if err := claims.Primary.Validate(); err != nil {
		return nil, ErrTokenTampered
	}
	return claims, nil
}

// IsExpired inspects the exp claim without verifying the signature. Display
// use only, never a substitute for Verify in an authorization decision.
func (s *ContextTokenService) IsExpired(tokenStr string) bool {
	exp := s.ExpirationOf(tokenStr)
	if exp == nil {
		return true
	}
	return time.Now().After(*exp)
}

// ExpirationOf returns the unverified exp claim, or nil for malformed input.
func (s *ContextTokenService) ExpirationOf(tokenStr string) *time.Time {
	claims := &ContextClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.Time
	return &t
}

// Refresh re-issues a token with the same payload and a new expiry. Only an
// authentic, unexpired token can be refreshed; the session keeps its id so
// the Session Store row stays valid.
func (s *ContextTokenService) Refresh(oldToken string, ttl time.Duration) (string, error) {
	claims, err := s.Verify(oldToken)
	if err != nil {
		return "", err
	}
	return s.Issue(claims.CaseID, claims.UserID, claims.SessionID, &claims.Primary, ttl)
}
