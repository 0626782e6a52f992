package presence

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/metrics"
	"nucleus/internal/moderation/models"
	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	bus      *bus.Memory
	survival *Service
	lobby    *Service
	metrics  *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.bus = bus.NewMemory(bus.WithLogger(logger.Discard()))
	s.metrics = metrics.New(nil)
	s.survival = s.newService("survival", codec.FormatJSON)
	s.lobby = s.newService("lobby", codec.FormatCBOR)
}

func (s *ServiceSuite) TearDownTest() {
	s.Require().NoError(s.survival.Stop())
	s.Require().NoError(s.lobby.Stop())
	s.Require().NoError(s.bus.Close())
}

func (s *ServiceSuite) newService(serverID string, format codec.Format) *Service {
	svc, err := NewService(NewTracker(), s.bus, codec.New(format), serverID,
		WithLogger(logger.Discard()),
		WithMetrics(s.metrics),
		WithHeartbeatInterval(10*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
		WithServerInfo(func() *models.ServerInfo {
			return &models.ServerInfo{Name: serverID, PlayerLimit: 50}
		}),
	)
	s.Require().NoError(err)
	s.Require().NoError(svc.Start(s.ctx))
	return svc
}

func (s *ServiceSuite) TestHooksPropagateAcrossNodes() {
	s.Require().NoError(s.survival.PlayerJoined(s.ctx, "P1"))
	s.Equal([]string{"survival"}, s.survival.WhereIs("P1"), "local hooks apply immediately")

	s.Eventually(func() bool {
		where := s.lobby.WhereIs("P1")
		return len(where) == 1 && where[0] == "survival"
	}, 2*time.Second, 5*time.Millisecond)

	s.Require().NoError(s.lobby.PlayerJoined(s.ctx, "P1"))
	s.Eventually(func() bool {
		return len(s.survival.WhereIs("P1")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Require().NoError(s.survival.PlayerLeft(s.ctx, "P1"))
	s.Eventually(func() bool {
		where := s.lobby.WhereIs("P1")
		return len(where) == 1 && where[0] == "lobby"
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *ServiceSuite) TestSequencesIncrease() {
	first := s.survival.seq.Load()
	s.Require().NoError(s.survival.PlayerJoined(s.ctx, "P1"))
	s.Require().NoError(s.survival.PlayerLeft(s.ctx, "P1"))
	s.Equal(first+2, s.survival.seq.Load())
	s.Greater(first, uint64(time.Now().Add(-time.Hour).UnixNano()), "seeded from the wall clock")
}

func (s *ServiceSuite) TestJoinRejectsInvalidSubject() {
	s.Error(s.survival.PlayerJoined(s.ctx, ""))
}

func (s *ServiceSuite) TestRunHeartbeatsAndStops() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- s.survival.Run(ctx) }()

	s.Eventually(func() bool {
		for _, srv := range s.lobby.Tracker().Servers() {
			if srv.ID == "survival" && srv.Info != nil && srv.Info.PlayerLimit == 50 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	s.Eventually(func() bool {
		return testutil.ToFloat64(s.metrics.PresenceServers) >= 1
	}, 2*time.Second, 5*time.Millisecond, "sweeps refresh the gauges")

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("run did not stop")
	}
}

func (s *ServiceSuite) TestMalformedPresenceDropped() {
	s.Require().NoError(s.bus.Publish(s.ctx, models.TopicPresence, "", []byte(`{"type":"join"}`)))
	s.Require().NoError(s.survival.PlayerJoined(s.ctx, "P2"))

	s.Eventually(func() bool {
		return len(s.lobby.WhereIs("P2")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	s.GreaterOrEqual(testutil.ToFloat64(s.metrics.SyncEvents.WithLabelValues(models.TopicPresence, metrics.OutcomeMalformed)), 1.0)
}
