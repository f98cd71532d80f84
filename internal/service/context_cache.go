package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var contextCacheReads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "context_cache_reads_total",
		Help: "Primary context cache reads by outcome",
	},
	[]string{"outcome"},
)

// CaseStore is the durable case lookup the cache rebuilds from.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.ClinicalCase, error)
}

// PrimaryContextCache is the cache-aside layer in front of the durable case
// record. A miss is never fatal: every entry is reconstructible from the
// cases table plus the newest active session, so eviction only costs a
// refetch. The cache is never the sole source of truth.
type PrimaryContextCache struct {
	rdb      *redis.Client
	cases    CaseStore
	sessions *SessionService
	ttl      time.Duration
	osceTTL  time.Duration
	log      zerolog.Logger
}

// NewPrimaryContextCache creates a new PrimaryContextCache. ttl applies to
// regular cases, osceTTL to OSCE cases (longer interaction window).
func NewPrimaryContextCache(rdb *redis.Client, cases CaseStore, sessions *SessionService, ttl, osceTTL time.Duration, log zerolog.Logger) *PrimaryContextCache {
	return &PrimaryContextCache{
		rdb:      rdb,
		cases:    cases,
		sessions: sessions,
		ttl:      ttl,
		osceTTL:  osceTTL,
		log:      log.With().Str("component", "context_cache").Logger(),
	}
}

// TTLFor returns the cache TTL for a case of the given mode.
func (c *PrimaryContextCache) TTLFor(isOSCE bool) time.Duration {
	if isOSCE {
		return c.osceTTL
	}
	return c.ttl
}

// Put writes a cache entry for a case, overwriting any prior entry for the
// same case id. The primary context is validated at this boundary.
func (c *PrimaryContextCache) Put(ctx context.Context, caseID, userID uuid.UUID, sessionID string, primary *model.PrimaryContext, isOSCE bool) (*model.CachedPrimaryContext, error) {
	if err := primary.Validate(); err != nil {
		return nil, fmt.Errorf("cache put: %w", err)
	}

	ttl := c.TTLFor(isOSCE)
	now := time.Now()
	entry := &model.CachedPrimaryContext{
		CaseID:    caseID,
		UserID:    userID,
		SessionID: sessionID,
		Context:   *primary,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, config.CacheKey.PrimaryContextKey(caseID.String()), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("cache primary context: %w", err)
	}
	return entry, nil
}

// Get is the cache-aside read. A hit past its embedded expiry counts as a
// miss. On miss the entry is rebuilt from the durable case record and the
// newest active session for the case; if no active session exists there is
// nothing valid to reconstruct and Get returns nil. A successful rebuild
// re-populates the cache before returning (self-heal).
func (c *PrimaryContextCache) Get(ctx context.Context, caseID uuid.UUID) (*model.CachedPrimaryContext, error) {
	key := config.CacheKey.PrimaryContextKey(caseID.String())

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry model.CachedPrimaryContext
		if err := json.Unmarshal(data, &entry); err == nil && time.Now().Before(entry.ExpiresAt) {
			contextCacheReads.WithLabelValues("hit").Inc()
			return &entry, nil
		}
		// Corrupt or stale entry: fall through to rebuild.
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("cache get: %w", err)
	}

	entry, err := c.rebuild(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		contextCacheReads.WithLabelValues("miss").Inc()
	} else {
		contextCacheReads.WithLabelValues("rebuild").Inc()
	}
	return entry, nil
}

// Invalidate evicts a case's entry early, used at case completion so stale
// primary context cannot satisfy a lingering request after the case closes.
func (c *PrimaryContextCache) Invalidate(ctx context.Context, caseID uuid.UUID) error {
	if err := c.rdb.Del(ctx, config.CacheKey.PrimaryContextKey(caseID.String())).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (c *PrimaryContextCache) rebuild(ctx context.Context, caseID uuid.UUID) (*model.CachedPrimaryContext, error) {
	record, err := c.cases.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("rebuild: get case: %w", err)
	}
	if record.CompletedAt != nil {
		// A completed case must not be resurrected into the cache.
		return nil, nil
	}

	session, err := c.sessions.ActiveSessionForCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	entry, err := c.Put(ctx, caseID, session.UserID, session.SessionID, record.PrimaryContext(), record.IsOSCE)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("case_id", caseID.String()).Msg("Primary context rebuilt from durable store")
	return entry, nil
}
