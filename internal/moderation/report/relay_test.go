package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"nucleus/internal/moderation/codec"
	"nucleus/internal/moderation/models"
	"nucleus/internal/platform/bus"
	"nucleus/internal/platform/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type RelaySuite struct {
	suite.Suite
	ctx context.Context
	bus *bus.Memory
	now time.Time
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	s.ctx = context.Background()
	s.bus = bus.NewMemory(bus.WithLogger(logger.Discard()))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *RelaySuite) TearDownTest() {
	s.Require().NoError(s.bus.Close())
}

func (s *RelaySuite) newRelay(serverID string, opts ...Option) *Relay {
	base := []Option{WithLogger(logger.Discard()), WithClock(func() time.Time { return s.now })}
	r, err := New(s.bus, codec.New(codec.FormatJSON), serverID, append(base, opts...)...)
	s.Require().NoError(err)
	return r
}

func (s *RelaySuite) TestPublishStampsAndDelivers() {
	var mu sync.Mutex
	var received []models.ReportEvent
	bot := s.newRelay("bot", WithHandler(func(_ context.Context, report models.ReportEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, report)
		return nil
	}))
	s.Require().NoError(bot.Start(s.ctx))
	defer func() { s.Require().NoError(bot.Stop()) }()

	survival := s.newRelay("survival")
	sent, err := survival.Publish(s.ctx, models.ReportEvent{
		Reporter: "P9",
		Reported: models.Subject{ID: "P1", Name: "griefer"},
		Reason:   "breaking spawn",
	})
	s.Require().NoError(err)
	s.NotEmpty(sent.EventID)
	s.Equal("survival", sent.Server)
	s.Equal(s.now, sent.Timestamp)

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	recent := bot.Recent(10)
	s.Require().Len(recent, 1)
	s.Equal(sent.EventID, recent[0].EventID)
	s.Equal("griefer", recent[0].Reported.Name)
}

func (s *RelaySuite) TestBacklogIsBoundedNewestFirst() {
	bot := s.newRelay("bot", WithBacklog(2))
	s.Require().NoError(bot.Start(s.ctx))
	defer func() { s.Require().NoError(bot.Stop()) }()

	for _, reason := range []string{"one", "two", "three"} {
		_, err := bot.Publish(s.ctx, models.ReportEvent{Reporter: "P9", Reported: models.Subject{ID: "P1"}, Reason: reason})
		s.Require().NoError(err)
	}

	s.Eventually(func() bool {
		recent := bot.Recent(0)
		return len(recent) == 2 && recent[0].Reason == "three" && recent[1].Reason == "two"
	}, time.Second, 5*time.Millisecond)
}

func (s *RelaySuite) TestHandlerErrorsAndMalformedPayloadsAreIsolated() {
	var mu sync.Mutex
	calls := 0
	bot := s.newRelay("bot", WithHandler(func(context.Context, models.ReportEvent) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("discord unavailable")
	}))
	s.Require().NoError(bot.Start(s.ctx))
	defer func() { s.Require().NoError(bot.Stop()) }()

	s.Require().NoError(s.bus.Publish(s.ctx, models.TopicReport, "P1", []byte("{not json")))
	for i := 0; i < 2; i++ {
		_, err := bot.Publish(s.ctx, models.ReportEvent{Reporter: "P9", Reported: models.Subject{ID: "P1"}, Reason: "spam"})
		s.Require().NoError(err)
	}

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
	s.Len(bot.Recent(0), 2)
}

func (s *RelaySuite) TestPublishOnClosedBus() {
	relay := s.newRelay("survival")
	s.Require().NoError(s.bus.Close())
	_, err := relay.Publish(s.ctx, models.ReportEvent{Reporter: "P9", Reported: models.Subject{ID: "P1"}, Reason: "spam"})
	s.ErrorIs(err, bus.ErrClosed)
}
