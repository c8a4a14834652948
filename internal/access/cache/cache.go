package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinauth_decision_cache_hits_total",
		Help: "Decisions answered from the cache",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinauth_decision_cache_misses_total",
		Help: "Decisions computed and stored on a cache miss",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinauth_decision_cache_store_errors_total",
		Help: "Store failures that degraded a decision to direct evaluation",
	})
	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinauth_decision_cache_invalidations_total",
		Help: "Epoch bumps by scope",
	}, []string{"scope"})
)

const (
	keyPrefix      = "authz:dec:"
	epochGlobalKey = "authz:epoch:global"

	// DefaultTTL bounds staleness when an invalidation call is missed. It is
	// a safety net, not the invalidation mechanism.
	DefaultTTL = 5 * time.Minute
)

func epochSubjectKey(id domain.SubjectID) string {
	return "authz:epoch:subject:" + id.String()
}

func epochResourceKey(key access.ResourceKey) string {
	return "authz:epoch:resource:" + string(key.Kind) + ":" + key.ID
}

// Decisions memoizes boolean capability decisions in a Store. Epochs
// (global, per subject, per resource) are embedded in every key, so an
// invalidation is a single counter bump and stale entries become
// unreachable instead of being deleted. Concurrent misses for the same key
// collapse into one computation via singleflight.
type Decisions struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	group  singleflight.Group
	hits   atomic.Uint64
	misses atomic.Uint64
}

type Option func(*Decisions)

// WithTTL overrides the decision-entry TTL.
func WithTTL(ttl time.Duration) Option {
	return func(d *Decisions) { d.ttl = ttl }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Decisions {
	d := &Decisions{
		store:  store,
		ttl:    DefaultTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate answers one decision, consulting the cache when it safely can.
// Unauthenticated subjects bypass the cache entirely: their decisions are
// cheap, and there is no stable identity to key an epoch on. compute must be
// the pure predicate closure; it is only called on a miss or a degrade.
func (d *Decisions) Evaluate(ctx context.Context, sub *access.Subject, decision string, res *access.ResourceKey, extra []string, compute func() bool) bool {
	if sub == nil || !sub.Authenticated {
		return compute()
	}

	key, ok := d.buildKey(ctx, sub, decision, res, extra)
	if !ok {
		// Epoch read failed; evaluate directly rather than caching under a
		// possibly stale epoch.
		return compute()
	}

	val, found, err := d.store.Get(ctx, key)
	if err != nil {
		cacheErrors.Inc()
		d.logger.WarnContext(ctx, "decision cache read failed, evaluating directly",
			"decision", decision, "error", err)
		return compute()
	}
	if found {
		d.hits.Add(1)
		cacheHits.Inc()
		return val == "1"
	}

	d.misses.Add(1)
	cacheMisses.Inc()
	result, _, _ := d.group.Do(key, func() (any, error) {
		granted := compute()
		stored := "0"
		if granted {
			stored = "1"
		}
		if err := d.store.Set(ctx, key, stored, d.ttl); err != nil {
			cacheErrors.Inc()
			d.logger.WarnContext(ctx, "decision cache write failed",
				"decision", decision, "error", err)
		}
		return granted, nil
	})
	return result.(bool)
}

// buildKey embeds the current epochs in the decision key. A key built under
// old epochs can never match after an invalidation, which is the whole
// invalidation mechanism.
func (d *Decisions) buildKey(ctx context.Context, sub *access.Subject, decision string, res *access.ResourceKey, extra []string) (string, bool) {
	epochKeys := []string{epochGlobalKey, epochSubjectKey(sub.ID)}
	if res != nil {
		epochKeys = append(epochKeys, epochResourceKey(*res))
	}
	epochs, err := d.store.GetMulti(ctx, epochKeys)
	if err != nil {
		cacheErrors.Inc()
		d.logger.WarnContext(ctx, "epoch read failed", "decision", decision, "error", err)
		return "", false
	}
	for i, e := range epochs {
		if e == "" {
			epochs[i] = "0"
		}
	}

	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(sub.ID.String())
	b.WriteByte(':')
	b.WriteString(decision)
	if res != nil {
		b.WriteByte(':')
		b.WriteString(string(res.Kind))
		b.WriteByte(':')
		b.WriteString(res.ID)
	}
	for _, e := range extra {
		b.WriteByte(':')
		b.WriteString(e)
	}
	b.WriteString(":g")
	b.WriteString(epochs[0])
	b.WriteString("s")
	b.WriteString(epochs[1])
	if res != nil {
		b.WriteString("r")
		b.WriteString(epochs[2])
	}
	return b.String(), true
}

// InvalidateSubject makes every cached decision about the subject
// unreachable.
func (d *Decisions) InvalidateSubject(ctx context.Context, id domain.SubjectID) error {
	cacheInvalidations.WithLabelValues("subject").Inc()
	if _, err := d.store.Incr(ctx, epochSubjectKey(id)); err != nil {
		return fmt.Errorf("bump subject epoch: %w", err)
	}
	return nil
}

// InvalidateResource makes every cached decision about the resource
// unreachable.
func (d *Decisions) InvalidateResource(ctx context.Context, key access.ResourceKey) error {
	cacheInvalidations.WithLabelValues("resource").Inc()
	if _, err := d.store.Incr(ctx, epochResourceKey(key)); err != nil {
		return fmt.Errorf("bump resource epoch: %w", err)
	}
	return nil
}

// InvalidateAll makes every cached decision unreachable.
func (d *Decisions) InvalidateAll(ctx context.Context) error {
	cacheInvalidations.WithLabelValues("global").Inc()
	if _, err := d.store.Incr(ctx, epochGlobalKey); err != nil {
		return fmt.Errorf("bump global epoch: %w", err)
	}
	return nil
}

// Stats is the observability snapshot consumed by the ops endpoints.
type Stats struct {
	Hits     uint64  `json:"hits"`
	Misses   uint64  `json:"misses"`
	Total    uint64  `json:"total"`
	HitRatio float64 `json:"hit_ratio"`
}

func (d *Decisions) Stats() Stats {
	hits := d.hits.Load()
	misses := d.misses.Load()
	total := hits + misses
	s := Stats{Hits: hits, Misses: misses, Total: total}
	if total > 0 {
		s.HitRatio = float64(hits) / float64(total)
	}
	return s
}

// Available probes the store with a trivial write/read/delete round trip.
// A false answer means decisions are being evaluated uncached.
func (d *Decisions) Available(ctx context.Context) bool {
	key := "authz:probe:" + uuid.NewString()
	if err := d.store.Set(ctx, key, "1", time.Minute); err != nil {
		return false
	}
	val, found, err := d.store.Get(ctx, key)
	if err != nil || !found || val != "1" {
		return false
	}
	return d.store.Delete(ctx, key) == nil
}
