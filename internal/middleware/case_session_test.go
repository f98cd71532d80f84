package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/medsim/clerksim-backend/internal/service"
)

type fakeVerifier struct {
	claims *service.ContextClaims
	err    error
}

func (f *fakeVerifier) Verify(_ string) (*service.ContextClaims, error) {
	return f.claims, f.err
}

type fakeValidator struct {
	result *model.SessionValidation
	err    error
	calls  int
}

func (f *fakeValidator) ValidateSession(_ context.Context, _ string, _, _ uuid.UUID) (*model.SessionValidation, error) {
	f.calls++
	return f.result, f.err
}

type fakeResolver struct {
	entry *model.CachedPrimaryContext
	err   error
}

func (f *fakeResolver) Get(_ context.Context, _ uuid.UUID) (*model.CachedPrimaryContext, error) {
	return f.entry, f.err
}

func gatePrimary() model.PrimaryContext {
	return model.PrimaryContext{
		Diagnosis:   "Acute appendicitis",
		PrimaryInfo: "Classic presentation",
		OpeningLine: "It hurts.",
		Department:  "surgery",
	}
}

func gateClaims(userID, caseID uuid.UUID, sessionID string) *service.ContextClaims {
	return &service.ContextClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		CaseID:    caseID,
		UserID:    userID,
		SessionID: sessionID,
		Primary:   gatePrimary(),
	}
}

// gateRouter builds a router whose gated endpoint echoes the resolved case
// context. The outer claims are injected directly; outer auth has its own
// middleware and tests.
func gateRouter(userID uuid.UUID, tokens ContextTokenVerifier, sessions SessionValidator, contexts PrimaryContextResolver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	inject := func(c *gin.Context) {
		c.Set(ContextKeyClaims, &service.Claims{UserID: userID})
		c.Next()
	}
	gate := RequireCaseSession(tokens, sessions, contexts)
	handler := func(c *gin.Context) {
		cc := GetCaseContext(c)
		if cc == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": cc.Session.SessionID,
			"case_id":    cc.Session.CaseID.String(),
			"diagnosis":  cc.Primary.Diagnosis,
		})
	}
	r.GET("/gated", inject, gate, handler)
	r.POST("/gated", inject, gate, handler)
	return r
}

func doGet(r *gin.Engine, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/gated", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: ContextCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doPost(r *gin.Engine, cookie string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/gated", &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: ContextCookieName, Value: cookie})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGateTokenFastPath(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	validator := &fakeValidator{}
	r := gateRouter(userID,
		&fakeVerifier{claims: gateClaims(userID, caseID, "sess-1")},
		validator,
		&fakeResolver{},
	)

	w := doGet(r, "some-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if validator.calls != 0 {
		t.Errorf("GET on the fast path must not hit the session store, got %d calls", validator.calls)
	}

	var body struct {
		SessionID string `json:"session_id"`
		Diagnosis string `json:"diagnosis"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "sess-1" {
		t.Errorf("session mismatch: %q", body.SessionID)
	}
	if body.Diagnosis != "Acute appendicitis" {
		t.Errorf("primary context not resolved from token: %q", body.Diagnosis)
	}
}

func TestGateNonGETCrossChecksStore(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	session := &model.CaseSession{
		SessionID: "sess-1",
		CaseID:    caseID,
		UserID:    userID,
		IsActive:  true,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	validator := &fakeValidator{result: &model.SessionValidation{Valid: true, Session: session}}
	r := gateRouter(userID,
		&fakeVerifier{claims: gateClaims(userID, caseID, "sess-1")},
		validator,
		&fakeResolver{},
	)

	w := doPost(r, "some-token", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if validator.calls != 1 {
		t.Errorf("state-changing request must cross-check the store, got %d calls", validator.calls)
	}
}

func TestGateNonGETRejectsDeadSession(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	validator := &fakeValidator{result: &model.SessionValidation{Valid: false, Reason: model.ReasonInactive}}
	r := gateRouter(userID,
		&fakeVerifier{claims: gateClaims(userID, caseID, "sess-1")},
		validator,
		&fakeResolver{},
	)

	w := doPost(r, "some-token", gin.H{})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated session must not mutate state, got %d", w.Code)
	}
}

func TestGateRejectsForeignToken(t *testing.T) {
	userID := uuid.New()
	// Token verifies fine but belongs to someone else.
	r := gateRouter(userID,
		&fakeVerifier{claims: gateClaims(uuid.New(), uuid.New(), "sess-1")},
		&fakeValidator{},
		&fakeResolver{},
	)

	w := doGet(r, "some-token")
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign token, got %d", w.Code)
	}
}

func TestGateTokenErrors(t *testing.T) {
	userID := uuid.New()

	t.Run("expired", func(t *testing.T) {
		r := gateRouter(userID, &fakeVerifier{err: service.ErrTokenExpired}, &fakeValidator{}, &fakeResolver{})
		if w := doGet(r, "tok"); w.Code != http.StatusUnauthorized {
			t.Errorf("got %d", w.Code)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		r := gateRouter(userID, &fakeVerifier{err: service.ErrTokenTampered}, &fakeValidator{}, &fakeResolver{})
		if w := doGet(r, "tok"); w.Code != http.StatusUnauthorized {
			t.Errorf("got %d", w.Code)
		}
	})
}

func TestGateStoreFallback(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	session := &model.CaseSession{
		SessionID: "sess-1",
		CaseID:    caseID,
		UserID:    userID,
		IsActive:  true,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	entry := &model.CachedPrimaryContext{
		CaseID:    caseID,
		UserID:    userID,
		SessionID: "sess-1",
		Context:   gatePrimary(),
	}
	r := gateRouter(userID,
		&fakeVerifier{err: service.ErrTokenTampered},
		&fakeValidator{result: &model.SessionValidation{Valid: true, Session: session}},
		&fakeResolver{entry: entry},
	)

	// No cookie: the body reference drives resolution.
	w := doPost(r, "", gin.H{"case_id": caseID.String(), "session_id": "sess-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Diagnosis string `json:"diagnosis"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Diagnosis != "Acute appendicitis" {
		t.Errorf("primary context not resolved from cache: %q", body.Diagnosis)
	}
}

func TestGateStoreFallbackReasons(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	ref := gin.H{"case_id": caseID.String(), "session_id": "sess-1"}

	cases := []struct {
		reason model.InvalidReason
		want   int
	}{
		{model.ReasonNotFound, http.StatusNotFound},
		{model.ReasonExpired, http.StatusUnauthorized},
		{model.ReasonInactive, http.StatusUnauthorized},
	}
	for _, c := range cases {
		r := gateRouter(userID,
			&fakeVerifier{err: service.ErrTokenTampered},
			&fakeValidator{result: &model.SessionValidation{Valid: false, Reason: c.reason}},
			&fakeResolver{},
		)
		if w := doPost(r, "", ref); w.Code != c.want {
			t.Errorf("reason %s: expected %d, got %d", c.reason, c.want, w.Code)
		}
	}
}

func TestGateStoreFallbackContextMissing(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	session := &model.CaseSession{SessionID: "sess-1", CaseID: caseID, UserID: userID, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	r := gateRouter(userID,
		&fakeVerifier{err: service.ErrTokenTampered},
		&fakeValidator{result: &model.SessionValidation{Valid: true, Session: session}},
		&fakeResolver{entry: nil},
	)

	w := doPost(r, "", gin.H{"case_id": caseID.String(), "session_id": "sess-1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unrecoverable context must read 404, got %d", w.Code)
	}
}

func TestGateStoreFallbackForeignContext(t *testing.T) {
	userID, caseID := uuid.New(), uuid.New()
	session := &model.CaseSession{SessionID: "sess-1", CaseID: caseID, UserID: userID, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	entry := &model.CachedPrimaryContext{
		CaseID:    caseID,
		UserID:    uuid.New(), // someone else's case
		SessionID: "sess-1",
		Context:   gatePrimary(),
	}
	r := gateRouter(userID,
		&fakeVerifier{err: service.ErrTokenTampered},
		&fakeValidator{result: &model.SessionValidation{Valid: true, Session: session}},
		&fakeResolver{entry: entry},
	)

	w := doPost(r, "", gin.H{"case_id": caseID.String(), "session_id": "sess-1"})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestGateNoCookieNoBody(t *testing.T) {
	r := gateRouter(uuid.New(), &fakeVerifier{}, &fakeValidator{}, &fakeResolver{})

	if w := doGet(r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without any session reference, got %d", w.Code)
	}
}
