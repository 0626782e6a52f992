package cache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"nucleus/internal/moderation/models"
)

type CacheSuite struct {
	suite.Suite
	now   time.Time
	cache *Cache
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.cache = New(
		WithTTL(time.Minute),
		WithMaxEntries(64),
		WithShards(4),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *CacheSuite) restriction(subject string, kind models.Kind, rev uint64) models.Restriction {
	return models.Restriction{
		Subject:   models.Subject{ID: models.SubjectID(subject)},
		Kind:      kind,
		Scope:     models.ScopeFleet,
		Actor:     "mod",
		CreatedAt: s.now,
		Revision:  rev,
	}
}

// =============================================================================
// Miss and fill
// =============================================================================

func (s *CacheSuite) TestMissAndFill() {
	s.Run("unknown subject misses", func() {
		_, ok := s.cache.Get("nobody")
		s.False(ok)
	})

	s.Run("put alone leaves subject partial", func() {
		s.True(s.cache.Put(s.restriction("P1", models.KindMute, 1)))
		_, ok := s.cache.Get("P1")
		s.False(ok, "partial entries must fall through to the store")
	})

	s.Run("fill replaces partial state with the snapshot", func() {
		s.now = s.now.Add(time.Second)
		s.cache.Fill("P1", []models.Restriction{s.restriction("P1", models.KindBan, 1)}, s.cache.Now())

		got, ok := s.cache.Get("P1")
		s.Require().True(ok)
		s.Require().Len(got, 1)
		s.Equal(models.KindBan, got[0].Kind)
	})

	s.Run("empty fill caches a clean subject", func() {
		s.cache.Fill("P2", nil, s.cache.Now())
		got, ok := s.cache.Get("P2")
		s.True(ok)
		s.Empty(got)
	})
}

func (s *CacheSuite) TestFillDropsSlotsAbsentFromSnapshot() {
	s.cache.Fill("P1", []models.Restriction{s.restriction("P1", models.KindBan, 1)}, s.cache.Now())

	s.now = s.now.Add(time.Second)
	// The ban was revoked elsewhere; a fresh snapshot no longer has it.
	s.cache.Fill("P1", nil, s.cache.Now())

	got, ok := s.cache.Get("P1")
	s.Require().True(ok)
	s.Empty(got)
}

func (s *CacheSuite) TestFillKeepsPutsRacingTheRead() {
	readStarted := s.cache.Now()
	s.now = s.now.Add(time.Millisecond)
	s.cache.Put(s.restriction("P1", models.KindBan, 3))

	s.cache.Fill("P1", nil, readStarted)

	got, ok := s.cache.Get("P1")
	s.Require().True(ok)
	s.Require().Len(got, 1)
	s.Equal(uint64(3), got[0].Revision)
}

// =============================================================================
// Revision gating
// =============================================================================

func (s *CacheSuite) TestRevisionGate() {
	s.cache.Fill("P1", nil, s.cache.Now())

	s.True(s.cache.Put(s.restriction("P1", models.KindBan, 2)))
	s.False(s.cache.Put(s.restriction("P1", models.KindBan, 2)), "equal revision is a no-op")
	s.False(s.cache.Put(s.restriction("P1", models.KindBan, 1)), "older revision is a no-op")

	revoked := s.restriction("P1", models.KindBan, 3)
	revoked.Revoked = true
	s.True(s.cache.Put(revoked))

	got, ok := s.cache.Get("P1")
	s.Require().True(ok)
	s.Empty(got)

	s.False(s.cache.Put(s.restriction("P1", models.KindBan, 2)), "tombstone blocks resurrection")

	s.now = s.now.Add(time.Second)
	s.cache.Fill("P1", nil, s.cache.Now())
	s.False(s.cache.Put(s.restriction("P1", models.KindBan, 2)), "tombstone survives a refill")

	rev, ok := s.cache.Revision(revoked.Key())
	s.True(ok)
	s.Equal(uint64(3), rev, "revision reports tombstones")
	mute := s.restriction("P1", models.KindMute, 1)
	_, ok = s.cache.Revision(mute.Key())
	s.False(ok)
}

func (s *CacheSuite) TestOrderIndependentConvergence() {
	const revisions = 20
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 10; round++ {
		subject := fmt.Sprintf("P%d", round)
		s.cache.Fill(models.SubjectID(subject), nil, s.cache.Now())

		order := rng.Perm(revisions)
		for _, i := range order {
			r := s.restriction(subject, models.KindMute, uint64(i+1))
			r.Reason = fmt.Sprintf("rev-%d", i+1)
			s.cache.Put(r)
		}

		got, ok := s.cache.Get(models.SubjectID(subject))
		s.Require().True(ok)
		s.Require().Len(got, 1)
		s.Equal(uint64(revisions), got[0].Revision)
		s.Equal(fmt.Sprintf("rev-%d", revisions), got[0].Reason)
	}
}

// =============================================================================
// Expiry and eviction
// =============================================================================

func (s *CacheSuite) TestTTLExpiry() {
	s.cache.Fill("P1", []models.Restriction{s.restriction("P1", models.KindBan, 1)}, s.cache.Now())

	s.now = s.now.Add(2 * time.Minute)
	_, ok := s.cache.Get("P1")
	s.False(ok, "expired entries miss")

	stale, ok := s.cache.Stale("P1")
	s.True(ok, "expired entries remain available for degraded reads")
	s.Len(stale, 1)
}

func (s *CacheSuite) TestLazyRestrictionExpiry() {
	r := s.restriction("P1", models.KindMute, 1)
	expires := s.now.Add(10 * time.Second)
	r.ExpiresAt = &expires
	s.cache.Fill("P1", []models.Restriction{r}, s.cache.Now())

	got, _ := s.cache.Get("P1")
	s.Len(got, 1)

	s.now = expires
	got, ok := s.cache.Get("P1")
	s.True(ok)
	s.Empty(got)
}

func (s *CacheSuite) TestLRUBound() {
	c := New(WithMaxEntries(2), WithShards(1), WithClock(func() time.Time { return s.now }))
	c.Fill("a", nil, s.now)
	c.Fill("b", nil, s.now)
	_, _ = c.Get("a") // a becomes most recent
	c.Fill("c", nil, s.now)

	s.Equal(2, c.Len())
	_, ok := c.Get("b")
	s.False(ok, "least recently used subject is evicted")
	_, ok = c.Get("a")
	s.True(ok)
}

func (s *CacheSuite) TestInvalidateAndPurge() {
	s.cache.Fill("P1", nil, s.cache.Now())
	s.cache.Fill("P2", nil, s.cache.Now())

	s.cache.Invalidate("P1")
	_, ok := s.cache.Get("P1")
	s.False(ok)
	s.Equal(1, s.cache.Len())

	s.cache.Purge()
	s.Zero(s.cache.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(WithMaxEntries(1000))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				subject := models.SubjectID(fmt.Sprintf("P%d", i%50))
				c.Put(models.Restriction{
					Subject:  models.Subject{ID: subject},
					Kind:     models.KindMute,
					Scope:    models.ScopeFleet,
					Revision: uint64(w*1000 + i),
				})
				c.Fill(subject, nil, c.Now().Add(-time.Second))
				_, _ = c.Get(subject)
			}
		}(w)
	}
	wg.Wait()
}
