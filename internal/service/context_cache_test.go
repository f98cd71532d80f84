package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// fakeCaseStore is an in-memory CaseStore with the pgx.ErrNoRows miss
// convention.
type fakeCaseStore struct {
	cases map[uuid.UUID]*model.ClinicalCase
}

func newFakeCaseStore() *fakeCaseStore {
	return &fakeCaseStore{cases: make(map[uuid.UUID]*model.ClinicalCase)}
}

func (f *fakeCaseStore) GetByID(_ context.Context, id uuid.UUID) (*model.ClinicalCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testClinicalCase(userID uuid.UUID) *model.ClinicalCase {
	return &model.ClinicalCase{
		ID:          uuid.New(),
		UserID:      userID,
		Diagnosis:   "Acute appendicitis",
		PrimaryInfo: "Migratory right iliac fossa pain",
		OpeningLine: "Doctor, my stomach really hurts.",
		PatientProfile: &model.PatientProfile{
			Name:   "Budi Santoso",
			Age:    24,
			Gender: "male",
		},
		Department:      "surgery",
		DifficultyLevel: model.DifficultyEasy,
		CreatedAt:       time.Now(),
	}
}

func newTestCache(t *testing.T) (*PrimaryContextCache, *fakeCaseStore, *SessionService, *redis.Client) {
	t.Helper()
	rdb := testRedis(t)
	cases := newFakeCaseStore()
	sessions := NewSessionService(newFakeSessionStore(), zerolog.Nop())
	cache := NewPrimaryContextCache(rdb, cases, sessions, time.Hour, 2*time.Hour, zerolog.Nop())
	return cache, cases, sessions, rdb
}

func TestCachePutGet(t *testing.T) {
	cache, _, _, _ := newTestCache(t)
	ctx := context.Background()
	caseID, userID := uuid.New(), uuid.New()
	primary := testPrimaryContext()

	put, err := cache.Put(ctx, caseID, userID, "session-1", primary, false)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := cache.Get(ctx, caseID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if got.SessionID != "session-1" || got.UserID != userID {
		t.Errorf("entry mismatch: %+v", got)
	}
	if got.Context.Diagnosis != primary.Diagnosis {
		t.Errorf("context mismatch: %q", got.Context.Diagnosis)
	}
	if !got.CachedAt.Equal(put.CachedAt) {
		t.Errorf("CachedAt drift: put %v get %v", put.CachedAt, got.CachedAt)
	}
}

func TestCachePutRejectsInvalidContext(t *testing.T) {
	cache, _, _, _ := newTestCache(t)

	bad := &model.PrimaryContext{OpeningLine: "no diagnosis"}
	if _, err := cache.Put(context.Background(), uuid.New(), uuid.New(), "s", bad, false); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCacheTTLFor(t *testing.T) {
	cache, _, _, _ := newTestCache(t)
	if cache.TTLFor(false) != time.Hour {
		t.Errorf("regular ttl: %v", cache.TTLFor(false))
	}
	if cache.TTLFor(true) != 2*time.Hour {
		t.Errorf("osce ttl: %v", cache.TTLFor(true))
	}
}

func TestCacheMissRebuildsFromDurableState(t *testing.T) {
	cache, cases, sessions, _ := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()

	record := testClinicalCase(userID)
	cases.cases[record.ID] = record

	session, err := sessions.CreateSession(ctx, record.ID, userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := cache.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected rebuilt entry")
	}
	if got.SessionID != session.SessionID {
		t.Errorf("rebuild should anchor to the newest active session, got %q", got.SessionID)
	}
	if got.Context.Diagnosis != record.Diagnosis {
		t.Errorf("rebuilt context mismatch: %q", got.Context.Diagnosis)
	}

	// Self-heal: the rebuilt entry is back in Redis.
	again, err := cache.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if again == nil || !again.CachedAt.Equal(got.CachedAt) {
		t.Error("second read should hit the self-healed entry")
	}
}

func TestCacheMissNoActiveSession(t *testing.T) {
	cache, cases, _, _ := newTestCache(t)
	ctx := context.Background()

	record := testClinicalCase(uuid.New())
	cases.cases[record.ID] = record

	got, err := cache.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("no active session means nothing to rebuild, got %+v", got)
	}
}

func TestCacheMissUnknownCase(t *testing.T) {
	cache, _, _, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("unknown case must read as nil, got %+v", got)
	}
}

func TestCacheCompletedCaseNotRebuilt(t *testing.T) {
	cache, cases, sessions, _ := newTestCache(t)
	ctx := context.Background()
	userID := uuid.New()

	record := testClinicalCase(userID)
	done := time.Now()
	record.CompletedAt = &done
	cases.cases[record.ID] = record

	if _, err := sessions.CreateSession(ctx, record.ID, userID, time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := cache.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("completed case must not be resurrected, got %+v", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	cache, _, _, rdb := newTestCache(t)
	ctx := context.Background()
	caseID := uuid.New()

	if _, err := cache.Put(ctx, caseID, uuid.New(), "session-1", testPrimaryContext(), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Invalidate(ctx, caseID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	// The key is gone; without durable backing the read returns nil.
	exists, err := rdb.Exists(ctx, config.CacheKey.PrimaryContextKey(caseID.String())).Result()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists != 0 {
		t.Error("entry still present after invalidate")
	}

	got, err := cache.Get(ctx, caseID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("invalidated entry must not be served, got %+v", got)
	}
}

func TestCachePutOverwrites(t *testing.T) {
	cache, _, _, _ := newTestCache(t)
	ctx := context.Background()
	caseID := uuid.New()

	if _, err := cache.Put(ctx, caseID, uuid.New(), "session-old", testPrimaryContext(), false); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := cache.Put(ctx, caseID, uuid.New(), "session-new", testPrimaryContext(), false); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, err := cache.Get(ctx, caseID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.SessionID != "session-new" {
		t.Errorf("expected the newer entry, got %+v", got)
	}
}
