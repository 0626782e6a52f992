package synchronizer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"nucleus/internal/moderation/cache"
	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/store/restriction"
	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/logger"
	"nucleus/pkg/platform/sentinel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction(dedupeSweeper))
}

// dedupeSweeper is the expiry goroutine the event ID cache runs for the life
// of the process.
const dedupeSweeper = "github.com/hashicorp/golang-lru/v2/expirable.NewLRU[...].func1"

// flakyStore fails Upsert with ErrUnavailable for the first failUpserts calls,
// or forever when failUpserts is negative. ListActive can be held open.
type flakyStore struct {
	*restriction.InMemory
	failUpserts atomic.Int32
	upserts     atomic.Int32
	listGate    chan struct{}
}

func newFlakyStore() *flakyStore {
	return &flakyStore{InMemory: restriction.NewInMemory()}
}

func (f *flakyStore) Upsert(ctx context.Context, r models.Restriction) (bool, error) {
	f.upserts.Add(1)
	if n := f.failUpserts.Load(); n != 0 {
		if n > 0 {
			f.failUpserts.Add(-1)
		}
		return false, fmt.Errorf("upsert: %w", sentinel.ErrUnavailable)
	}
	return f.InMemory.Upsert(ctx, r)
}

func (f *flakyStore) ListActive(ctx context.Context, now time.Time) ([]models.Restriction, error) {
	if f.listGate != nil {
		select {
		case <-f.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.InMemory.ListActive(ctx, now)
}

type SynchronizerSuite struct {
	suite.Suite
	ctx     context.Context
	bus     *bus.Memory
	codec   *codec.Codec
	now     time.Time
	started []*Synchronizer
}

func TestSynchronizerSuite(t *testing.T) {
	suite.Run(t, new(SynchronizerSuite))
}

func (s *SynchronizerSuite) SetupTest() {
	s.ctx = context.Background()
	s.bus = bus.NewMemory(bus.WithLogger(logger.Discard()))
	s.codec = codec.New(codec.FormatJSON)
	s.now = time.Now().UTC()
	s.started = nil
}

func (s *SynchronizerSuite) TearDownTest() {
	for _, syncer := range s.started {
		s.Require().NoError(syncer.Stop(s.ctx))
	}
	s.Require().NoError(s.bus.Close())
}

type node struct {
	sync    *Synchronizer
	store   *flakyStore
	cache   *cache.Cache
	metrics *metrics.Metrics
}

func (s *SynchronizerSuite) newNode(id string, store *flakyStore) *node {
	if store == nil {
		store = newFlakyStore()
	}
	c := cache.New()
	m := metrics.New(nil)
	syncer, err := New(id, store, c, s.bus, s.codec,
		WithLogger(logger.Discard()),
		WithMetrics(m),
		WithRetry(4, time.Millisecond, 5*time.Millisecond),
	)
	s.Require().NoError(err)
	return &node{sync: syncer, store: store, cache: c, metrics: m}
}

func (s *SynchronizerSuite) start(n *node) {
	s.Require().NoError(n.sync.Start(s.ctx))
	s.started = append(s.started, n.sync)
}

func (s *SynchronizerSuite) restriction(subject string, kind models.Kind, rev uint64) models.Restriction {
	return models.Restriction{
		Subject:   models.Subject{ID: models.SubjectID(subject)},
		Kind:      kind,
		Scope:     models.ScopeFleet,
		Actor:     "mod",
		Reason:    "griefing",
		CreatedAt: s.now,
		Revision:  rev,
	}
}

func (s *SynchronizerSuite) publish(origin, eventID string, r models.Restriction) {
	payload, err := s.codec.EncodePunishment(models.PunishmentEvent{EventID: eventID, Origin: origin, Restriction: r})
	s.Require().NoError(err)
	s.Require().NoError(s.bus.Publish(s.ctx, models.TopicPunishment, string(r.Subject.ID), payload))
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *SynchronizerSuite) TestStartSeedsCache() {
	n := s.newNode("node-a", nil)
	_, err := n.store.Upsert(s.ctx, s.restriction("P1", models.KindBan, 2))
	s.Require().NoError(err)
	n.cache.Put(s.restriction("GHOST", models.KindMute, 1))

	s.Equal(StateStarting, n.sync.State())
	s.start(n)
	s.Equal(StateLive, n.sync.State())

	got, ok := n.cache.Get("P1")
	s.Require().True(ok)
	s.Require().Len(got, 1)
	s.Equal(models.KindBan, got[0].Kind)

	_, ok = n.cache.Stale("GHOST")
	s.False(ok, "state from before the restart is purged")

	err = n.sync.Start(s.ctx)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

// TestEventsDuringCatchUpWaitForSeed verifies an event delivered while the seed
// is running is applied on top of it rather than lost or overwritten.
func (s *SynchronizerSuite) TestEventsDuringCatchUpWaitForSeed() {
	store := newFlakyStore()
	_, err := store.Upsert(s.ctx, s.restriction("P1", models.KindMute, 1))
	s.Require().NoError(err)
	store.listGate = make(chan struct{})
	n := s.newNode("node-b", store)

	done := make(chan error, 1)
	go func() { done <- n.sync.Start(s.ctx) }()
	s.Eventually(func() bool { return n.sync.State() == StateCatchingUp }, time.Second, time.Millisecond,
		"subscribed and waiting on the seed")

	revoke := s.restriction("P1", models.KindMute, 2)
	revoke.Revoked = true
	s.publish("node-a", "evt-revoke", revoke)

	close(store.listGate)
	s.Require().NoError(<-done)
	s.started = append(s.started, n.sync)

	s.Eventually(func() bool {
		got, ok := n.cache.Get("P1")
		return ok && len(got) == 0
	}, 2*time.Second, 5*time.Millisecond, "revocation applied after the seed")

	rev, err := store.CurrentRevision(s.ctx, revoke.Key())
	s.Require().NoError(err)
	s.Equal(uint64(2), rev)
}

func (s *SynchronizerSuite) TestStopDrainsAndRejects() {
	n := s.newNode("node-a", nil)
	s.Require().NoError(n.sync.Start(s.ctx))

	s.Require().NoError(n.sync.Stop(s.ctx))
	s.Require().NoError(n.sync.Stop(s.ctx), "stop is idempotent")
	s.Equal(StateStopped, n.sync.State())

	err := n.sync.Commit(s.ctx, s.restriction("P1", models.KindBan, 1))
	s.ErrorIs(err, sentinel.ErrClosed)
}

// =============================================================================
// Commit and fan-out
// =============================================================================

func (s *SynchronizerSuite) TestCommitPropagatesToPeers() {
	origin := s.newNode("node-a", nil)
	peer := s.newNode("node-b", nil)
	s.start(origin)
	s.start(peer)

	ban := s.restriction("P1", models.KindBan, 1)
	s.Require().NoError(origin.sync.Commit(s.ctx, ban))

	got, ok := origin.cache.Stale("P1")
	s.False(ok, "origin cache holds a partial entry until filled")
	s.Empty(got)
	s.False(origin.cache.Put(ban), "origin cache is already at this revision")

	history, err := origin.store.History(s.ctx, "P1")
	s.Require().NoError(err)
	s.Len(history, 1)

	s.Eventually(func() bool {
		peerHistory, err := peer.store.History(s.ctx, "P1")
		return err == nil && len(peerHistory) == 1
	}, 2*time.Second, 5*time.Millisecond, "peer persists the remote event")

	rev, err := peer.store.CurrentRevision(s.ctx, ban.Key())
	s.Require().NoError(err)
	s.Equal(uint64(1), rev)
	s.False(peer.cache.Put(ban))

	// The origin ignores its own echo.
	s.Eventually(func() bool {
		return testutil.ToFloat64(origin.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeDuplicate)) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *SynchronizerSuite) TestCommitConflict() {
	n := s.newNode("node-a", nil)
	s.start(n)
	s.Require().NoError(n.sync.Commit(s.ctx, s.restriction("P1", models.KindBan, 1)))

	err := n.sync.Commit(s.ctx, s.restriction("P1", models.KindBan, 1))
	s.ErrorIs(err, sentinel.ErrConflict)

	history, err := n.store.History(s.ctx, "P1")
	s.Require().NoError(err)
	s.Len(history, 1, "rejected commits leave no history")
}

func (s *SynchronizerSuite) TestCommitStoreFailureDoesNotPublish() {
	n := s.newNode("node-a", nil)
	peer := s.newNode("node-b", nil)
	s.start(n)
	s.start(peer)
	n.store.failUpserts.Store(-1)

	err := n.sync.Commit(s.ctx, s.restriction("P1", models.KindBan, 1))
	s.ErrorIs(err, sentinel.ErrUnavailable)

	s.Never(func() bool {
		rev, _ := peer.store.CurrentRevision(s.ctx, models.Key{Subject: "P1", Kind: models.KindBan, Scope: models.ScopeFleet})
		return rev != 0
	}, 50*time.Millisecond, 5*time.Millisecond)
}

// =============================================================================
// Inbound events
// =============================================================================

func (s *SynchronizerSuite) TestRedeliveryIsIdempotent() {
	n := s.newNode("node-b", nil)
	s.start(n)
	ban := s.restriction("P1", models.KindBan, 1)

	for i := 0; i < 3; i++ {
		s.publish("node-a", "evt-1", ban)
	}

	s.Eventually(func() bool {
		return testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeDuplicate)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(1.0, testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeApplied)))

	history, err := n.store.History(s.ctx, "P1")
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *SynchronizerSuite) TestOutOfOrderEventsConverge() {
	n := s.newNode("node-b", nil)
	s.start(n)
	n.cache.Fill("P1", nil, n.cache.Now())

	newer := s.restriction("P1", models.KindBan, 2)
	newer.Revoked = true
	older := s.restriction("P1", models.KindBan, 1)

	s.publish("node-a", "evt-2", newer)
	s.publish("node-a", "evt-1", older)

	s.Eventually(func() bool {
		return testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeStale)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	got, ok := n.cache.Get("P1")
	s.Require().True(ok)
	s.Empty(got, "the older ban must not resurrect after the pardon")

	rev, err := n.store.CurrentRevision(s.ctx, newer.Key())
	s.Require().NoError(err)
	s.Equal(uint64(2), rev)
}

// TestLateRedeliveryAfterPardon covers a node that loaded a subject after a
// pardon and then receives an older revision of the pardoned restriction.
func (s *SynchronizerSuite) TestLateRedeliveryAfterPardon() {
	s.Run("pardon never cached", func() {
		store := newFlakyStore()
		mute := s.restriction("P1", models.KindMute, 1)
		ban := s.restriction("P1", models.KindBan, 1)
		pardon := s.restriction("P1", models.KindBan, 2)
		pardon.Revoked = true
		for _, r := range []models.Restriction{mute, ban, pardon} {
			_, err := store.Upsert(s.ctx, r)
			s.Require().NoError(err)
		}
		n := s.newNode("node-b", store)
		s.start(n)

		got, ok := n.cache.Get("P1")
		s.Require().True(ok)
		s.Require().Len(got, 1)

		s.publish("node-a", "evt-ban-1", ban)
		s.Eventually(func() bool {
			return testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeStale)) == 1
		}, 2*time.Second, 5*time.Millisecond)

		_, ok = n.cache.Get("P1")
		s.False(ok, "subject is reloaded from the store on the next read")

		active, err := store.FindActive(s.ctx, "P1", time.Now())
		s.Require().NoError(err)
		n.cache.Fill("P1", active, n.cache.Now())
		got, ok = n.cache.Get("P1")
		s.Require().True(ok)
		s.Require().Len(got, 1)
		s.Equal(models.KindMute, got[0].Kind)
	})

	s.Run("cached slot behind the store", func() {
		n := s.newNode("node-c", nil)
		s.start(n)
		n.cache.Fill("P2", nil, n.cache.Now())

		ban := s.restriction("P2", models.KindBan, 1)
		s.publish("node-a", "evt-p2-1", ban)
		s.Eventually(func() bool {
			rev, ok := n.cache.Revision(ban.Key())
			return ok && rev == 1
		}, 2*time.Second, 5*time.Millisecond)

		pardon := s.restriction("P2", models.KindBan, 3)
		pardon.Revoked = true
		_, err := n.store.Upsert(s.ctx, pardon)
		s.Require().NoError(err)

		s.publish("node-a", "evt-p2-2", s.restriction("P2", models.KindBan, 2))
		s.Eventually(func() bool {
			_, ok := n.cache.Stale("P2")
			return !ok
		}, 2*time.Second, 5*time.Millisecond, "stale ban is dropped, not served")
	})

	s.Run("same revision already stored by a peer", func() {
		store := newFlakyStore()
		n := s.newNode("node-d", store)
		s.start(n)
		n.cache.Fill("P3", nil, n.cache.Now())

		ban := s.restriction("P3", models.KindBan, 1)
		_, err := store.Upsert(s.ctx, ban)
		s.Require().NoError(err)

		s.publish("node-a", "evt-p3-1", ban)
		s.Eventually(func() bool {
			got, ok := n.cache.Get("P3")
			return ok && len(got) == 1
		}, 2*time.Second, 5*time.Millisecond)
	})
}

func (s *SynchronizerSuite) TestDedupeCapacityBound() {
	n := s.newNode("node-b", nil)
	syncer, err := New("node-e", n.store, n.cache, s.bus, s.codec, WithDedupeCapacity(2))
	s.Require().NoError(err)

	s.False(syncer.seenRecently("evt-1"))
	s.True(syncer.seenRecently("evt-1"))
	s.False(syncer.seenRecently("evt-2"))
	s.False(syncer.seenRecently("evt-3"))
	s.False(syncer.seenRecently("evt-1"), "oldest ID is forgotten past capacity")
}

func (s *SynchronizerSuite) TestMalformedEventsAreDropped() {
	n := s.newNode("node-b", nil)
	s.start(n)

	s.Require().NoError(s.bus.Publish(s.ctx, models.TopicPunishment, "P1", []byte("{not json")))
	s.publish("node-a", "evt-1", s.restriction("P1", models.KindMute, 1))

	s.Eventually(func() bool {
		return testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeApplied)) == 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(1.0, testutil.ToFloat64(n.metrics.SyncEvents.WithLabelValues(models.TopicPunishment, metrics.OutcomeMalformed)))
}

func (s *SynchronizerSuite) TestTransientStoreFailureIsRetried() {
	n := s.newNode("node-b", nil)
	s.start(n)
	n.store.failUpserts.Store(2)

	ban := s.restriction("P1", models.KindBan, 1)
	s.publish("node-a", "evt-1", ban)

	s.Eventually(func() bool {
		rev, err := n.store.CurrentRevision(s.ctx, ban.Key())
		return err == nil && rev == 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(int32(3), n.store.upserts.Load())
	s.Zero(testutil.ToFloat64(n.metrics.SyncPersistFailed))
}

func (s *SynchronizerSuite) TestPersistExhaustionKeepsCacheAndContinues() {
	n := s.newNode("node-b", nil)
	s.start(n)
	n.store.failUpserts.Store(-1)
	n.cache.Fill("P1", nil, n.cache.Now())

	s.publish("node-a", "evt-1", s.restriction("P1", models.KindBan, 1))

	s.Eventually(func() bool {
		return testutil.ToFloat64(n.metrics.SyncPersistFailed) == 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Equal(int32(4), n.store.upserts.Load(), "bounded attempts")

	got, ok := n.cache.Get("P1")
	s.Require().True(ok)
	s.Len(got, 1, "the cache still reflects the event")

	// Later events are unaffected by the failure.
	n.store.failUpserts.Store(0)
	mute := s.restriction("P2", models.KindMute, 1)
	s.publish("node-a", "evt-2", mute)
	s.Eventually(func() bool {
		rev, _ := n.store.CurrentRevision(s.ctx, mute.Key())
		return rev == 1
	}, 2*time.Second, 5*time.Millisecond)
}

// TestOfflineNodeCatchUp verifies a node that missed events while down sees
// them after restarting from the store.
func (s *SynchronizerSuite) TestOfflineNodeCatchUp() {
	shared := newFlakyStore()
	online := s.newNode("node-a", shared)
	s.start(online)

	for i := 1; i <= 5; i++ {
		r := s.restriction(fmt.Sprintf("P%d", i), models.KindBan, 1)
		s.Require().NoError(online.sync.Commit(s.ctx, r))
	}

	late := s.newNode("node-b", shared)
	s.start(late)

	for i := 1; i <= 5; i++ {
		got, ok := late.cache.Get(models.SubjectID(fmt.Sprintf("P%d", i)))
		s.Require().True(ok)
		s.Len(got, 1)
	}
}

func (s *SynchronizerSuite) TestConcurrentCommitsOnDistinctKeys() {
	n := s.newNode("node-a", nil)
	s.start(n)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- n.sync.Commit(s.ctx, s.restriction(fmt.Sprintf("P%d", i), models.KindMute, 1))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	active, err := n.store.ListActive(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Len(active, 16)
}
