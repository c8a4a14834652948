//go:build integration

package cache_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"clinauth/internal/access"
	"clinauth/internal/access/cache"
	"clinauth/pkg/domain"
	"clinauth/pkg/testutil/containers"
)

type RedisDecisionsSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
}

func TestRedisDecisionsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisDecisionsSuite))
}

func (s *RedisDecisionsSuite) SetupSuite() {
	s.redis = containers.NewRedis(s.T())
	s.store = cache.NewRedisStore(s.redis.Client)
}

func (s *RedisDecisionsSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisDecisionsSuite) subject() *access.Subject {
	return &access.Subject{
		ID:            domain.SubjectID(uuid.New()),
		Authenticated: true,
		Profession:    access.ProfessionDoctor,
	}
}

func (s *RedisDecisionsSuite) TestMissHitAndProbe() {
	decisions := cache.New(s.store, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	sub := s.subject()
	res := &access.ResourceKey{Kind: access.KindPatient, ID: uuid.NewString()}

	calls := 0
	compute := func() bool { calls++; return true }

	s.True(decisions.Evaluate(ctx, sub, "patients.access_patient", res, nil, compute))
	s.True(decisions.Evaluate(ctx, sub, "patients.access_patient", res, nil, compute))
	s.Equal(1, calls)
	s.True(decisions.Available(ctx))
}

// Invalidation must propagate between instances sharing the same Redis, as
// separate server processes do in production.
func (s *RedisDecisionsSuite) TestInvalidationAcrossInstances() {
	logger := slog.New(slog.DiscardHandler)
	a := cache.New(s.store, logger)
	b := cache.New(s.store, logger)
	ctx := context.Background()
	sub := s.subject()
	res := &access.ResourceKey{Kind: access.KindPatient, ID: uuid.NewString()}

	calls := 0
	compute := func() bool { calls++; return true }

	s.True(a.Evaluate(ctx, sub, "patients.access_patient", res, nil, compute))
	s.True(b.Evaluate(ctx, sub, "patients.access_patient", res, nil, compute))
	s.Equal(1, calls, "instance b must hit the entry instance a stored")

	s.Require().NoError(b.InvalidateSubject(ctx, sub.ID))
	s.True(a.Evaluate(ctx, sub, "patients.access_patient", res, nil, compute))
	s.Equal(2, calls, "instance a must see the epoch bumped by instance b")
}

func (s *RedisDecisionsSuite) TestTTLExpiry() {
	decisions := cache.New(s.store, slog.New(slog.DiscardHandler), cache.WithTTL(time.Second))
	ctx := context.Background()
	sub := s.subject()
	res := &access.ResourceKey{Kind: access.KindEvent, ID: uuid.NewString()}

	calls := 0
	compute := func() bool { calls++; return false }

	s.False(decisions.Evaluate(ctx, sub, "events.edit_event", res, nil, compute))
	time.Sleep(1500 * time.Millisecond)
	s.False(decisions.Evaluate(ctx, sub, "events.edit_event", res, nil, compute))
	s.Equal(2, calls, "entry must expire with its TTL")
}
