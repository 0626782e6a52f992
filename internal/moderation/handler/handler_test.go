package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"nucleus/internal/moderation/auth"
	"nucleus/internal/moderation/handler/mocks"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/presence"
	"nucleus/internal/platform/config"
	"nucleus/internal/platform/logger"
	"nucleus/internal/platform/metrics"
	dErrors "nucleus/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	reports []models.ReportEvent
	asked   int
}

func (f *fakeFeed) Recent(n int) []models.ReportEvent {
	f.asked = n
	if n < len(f.reports) {
		return f.reports[:n]
	}
	return f.reports
}

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	tokens  *auth.TokenService
	feed    *fakeFeed
	ready   error
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.tokens = auth.NewTokenService("test-signing-key", "nucleus", time.Hour)
	s.feed = &fakeFeed{}
	s.ready = nil

	hash, err := bcrypt.GenerateFromPassword([]byte("alice-key"), bcrypt.MinCost)
	s.Require().NoError(err)
	dir, err := auth.NewDirectory([]config.Moderator{
		{Name: "alice", TokenHash: string(hash), Rights: []string{"ban", "mute", "pardon"}},
	})
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	h := New(s.service, dir, s.tokens,
		WithLogger(logger.Discard()),
		WithMetrics(metrics.New(reg)),
		WithGatherer(reg),
		WithLockout(auth.NewLockout(auth.WithLockoutThreshold(2))),
		WithReportFeed(s.feed),
		WithReadiness(func(context.Context) error { return s.ready }),
		WithClock(func() time.Time { return testNow }),
	)
	s.router = h.Routes()
}

func (s *HandlerSuite) token(rights ...auth.Right) string {
	token, _, err := s.tokens.Issue(&auth.Principal{Name: "alice", Rights: rights})
	s.Require().NoError(err)
	return token
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v))
}

func ban(subject models.SubjectID) models.Restriction {
	return models.Restriction{
		Subject:   models.Subject{ID: subject},
		Kind:      models.KindBan,
		Scope:     models.ScopeFleet,
		Reason:    "griefing",
		Actor:     "alice",
		CreatedAt: testNow,
		Revision:  1,
	}
}

// =============================================================================
// Health and tokens
// =============================================================================

func (s *HandlerSuite) TestHealthAndReadiness() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/readyz", "", nil).Code)

	s.ready = errors.New("catching up")
	w := s.do(http.MethodGet, "/readyz", "", nil)
	s.Equal(http.StatusServiceUnavailable, w.Code)
	s.Contains(w.Body.String(), "catching up")
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.do(http.MethodGet, "/healthz", "", nil)
	w := s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "http_requests_total")
}

func (s *HandlerSuite) TestToken() {
	s.Run("valid key issues a usable token", func() {
		w := s.do(http.MethodPost, "/auth/token", "", tokenRequest{Name: "alice", Key: "alice-key"})
		s.Require().Equal(http.StatusOK, w.Code)

		var resp tokenResponse
		s.decode(w, &resp)
		s.Equal("Bearer", resp.TokenType)
		p, err := s.tokens.Validate(resp.Token)
		s.Require().NoError(err)
		s.Equal("alice", p.Name)
		s.True(p.Has(auth.RightBan))
	})

	s.Run("wrong key", func() {
		w := s.do(http.MethodPost, "/auth/token", "", tokenRequest{Name: "alice", Key: "nope"})
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("repeated failures lock the name", func() {
		// Second failure for alice from this address, counting "wrong key".
		w := s.do(http.MethodPost, "/auth/token", "", tokenRequest{Name: "alice", Key: "nope"})
		s.Equal(http.StatusUnauthorized, w.Code)

		w = s.do(http.MethodPost, "/auth/token", "", tokenRequest{Name: "alice", Key: "alice-key"})
		s.Equal(http.StatusTooManyRequests, w.Code)
	})

	s.Run("unknown fields are rejected", func() {
		w := s.do(http.MethodPost, "/auth/token", "", map[string]string{"user": "alice"})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestProtectedRoutesRequireToken() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/restrictions/P1", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/restrictions/P1", "garbage", nil).Code)
}

// =============================================================================
// Restrictions
// =============================================================================

func (s *HandlerSuite) TestIsRestricted() {
	s.Run("restricted", func() {
		b := ban("P1")
		s.service.EXPECT().IsRestricted(gomock.Any(), models.SubjectID("P1"), models.ServerScope("survival")).Return(&b, nil)

		w := s.do(http.MethodGet, "/restrictions/P1?scope=survival", s.token(), nil)
		s.Require().Equal(http.StatusOK, w.Code)

		var resp struct {
			Restricted  bool `json:"restricted"`
			Restriction struct {
				Kind      models.Kind `json:"kind"`
				Permanent bool        `json:"permanent"`
			} `json:"restriction"`
		}
		s.decode(w, &resp)
		s.True(resp.Restricted)
		s.Equal(models.KindBan, resp.Restriction.Kind)
		s.True(resp.Restriction.Permanent)
	})

	s.Run("not restricted", func() {
		s.service.EXPECT().IsRestricted(gomock.Any(), models.SubjectID("P2"), models.ScopeFleet).Return(nil, nil)

		w := s.do(http.MethodGet, "/restrictions/P2", s.token(), nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var resp checkResponse
		s.decode(w, &resp)
		s.False(resp.Restricted)
		s.Nil(resp.Restriction)
	})

	s.Run("store unavailable", func() {
		s.service.EXPECT().IsRestricted(gomock.Any(), models.SubjectID("P3"), models.ScopeFleet).
			Return(nil, dErrors.New(dErrors.CodeUnavailable, "restriction store unavailable"))

		w := s.do(http.MethodGet, "/restrictions/P3", s.token(), nil)
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})

	s.Run("bad scope", func() {
		w := s.do(http.MethodGet, "/restrictions/P1?scope=server:", s.token(), nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestActiveAndHistory() {
	expires := testNow.Add(90 * time.Second)
	mute := ban("P1")
	mute.Kind = models.KindMute
	mute.ExpiresAt = &expires
	s.service.EXPECT().Active(gomock.Any(), models.SubjectID("P1")).Return([]models.Restriction{mute}, nil)
	s.service.EXPECT().History(gomock.Any(), models.SubjectID("P1")).Return(nil, nil)

	w := s.do(http.MethodGet, "/restrictions/P1/active", s.token(), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var active struct {
		Restrictions []struct {
			Kind             models.Kind `json:"kind"`
			Permanent        bool        `json:"permanent"`
			RemainingSeconds int64       `json:"remaining_seconds"`
		} `json:"restrictions"`
	}
	s.decode(w, &active)
	s.Require().Len(active.Restrictions, 1)
	s.False(active.Restrictions[0].Permanent)
	s.Equal(int64(90), active.Restrictions[0].RemainingSeconds)

	w = s.do(http.MethodGet, "/restrictions/P1/history", s.token(), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"restrictions":[]}`, w.Body.String())
}

func (s *HandlerSuite) TestApply() {
	s.Run("actor comes from the token", func() {
		s.service.EXPECT().Apply(gomock.Any(), "alice", gomock.Any()).
			DoAndReturn(func(_ context.Context, actor string, r models.Restriction) (*models.Restriction, error) {
				s.Equal(models.SubjectID("P1"), r.Subject.ID)
				s.Equal(models.KindMute, r.Kind)
				s.Equal(models.ServerScope("survival"), r.Scope)
				s.Require().NotNil(r.ExpiresAt)
				s.Equal(testNow.Add(48*time.Hour), *r.ExpiresAt)
				r.Actor = actor
				r.Revision = 1
				return &r, nil
			})

		w := s.do(http.MethodPost, "/restrictions", s.token(auth.RightMute), applyRequest{
			Subject:  "P1",
			Kind:     "mute",
			Scope:    "server:survival",
			Reason:   "spam",
			Duration: "2d",
		})
		s.Equal(http.StatusCreated, w.Code)
	})

	s.Run("forbidden", func() {
		s.service.EXPECT().Apply(gomock.Any(), "alice", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "missing right"))

		w := s.do(http.MethodPost, "/restrictions", s.token(), applyRequest{Subject: "P1", Kind: "ban", Reason: "x"})
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("conflict", func() {
		s.service.EXPECT().Apply(gomock.Any(), "alice", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "restriction was changed concurrently, try again"))

		w := s.do(http.MethodPost, "/restrictions", s.token(auth.RightBan), applyRequest{Subject: "P1", Kind: "ban", Reason: "x"})
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("invalid requests never reach the service", func() {
		for name, req := range map[string]applyRequest{
			"unknown kind":      {Subject: "P1", Kind: "jail", Reason: "x"},
			"bad duration":      {Subject: "P1", Kind: "mute", Reason: "x", Duration: "soon"},
			"negative duration": {Subject: "P1", Kind: "mute", Reason: "x", Duration: "-1h"},
		} {
			w := s.do(http.MethodPost, "/restrictions", s.token(auth.RightMute), req)
			s.Equal(http.StatusBadRequest, w.Code, name)
		}
	})
}

func (s *HandlerSuite) TestRevoke() {
	revoked := ban("P1")
	revoked.Revoked = true
	revoked.Revision = 2
	s.service.EXPECT().
		Revoke(gomock.Any(), "alice", models.SubjectID("P1"), models.KindBan, models.ScopeFleet, "appeal accepted").
		Return(&revoked, nil)

	w := s.do(http.MethodDelete, "/restrictions/P1/ban?reason=appeal+accepted", s.token(auth.RightPardon), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Revoked  bool   `json:"revoked"`
		Revision uint64 `json:"revision"`
	}
	s.decode(w, &resp)
	s.True(resp.Revoked)
	s.Equal(uint64(2), resp.Revision)

	s.Run("not found", func() {
		s.service.EXPECT().Revoke(gomock.Any(), "alice", models.SubjectID("P2"), models.KindMute, models.ScopeFleet, "").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "no active restriction"))
		w := s.do(http.MethodDelete, "/restrictions/P2/mute", s.token(auth.RightPardon), nil)
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("unknown kind", func() {
		w := s.do(http.MethodDelete, "/restrictions/P2/jail", s.token(auth.RightPardon), nil)
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

// =============================================================================
// Presence
// =============================================================================

func (s *HandlerSuite) TestPresenceRequiresRight() {
	w := s.do(http.MethodGet, "/presence/P1", s.token(auth.RightBan), nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestWhereIs() {
	s.service.EXPECT().WhereIs(gomock.Any(), models.SubjectID("P1")).Return([]string{"lobby"})
	s.service.EXPECT().WhereIs(gomock.Any(), models.SubjectID("P2")).Return(nil)

	w := s.do(http.MethodGet, "/presence/P1", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"subject":"P1","online":true,"servers":["lobby"]}`, w.Body.String())

	w = s.do(http.MethodGet, "/presence/P2", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"subject":"P2","online":false,"servers":[]}`, w.Body.String())
}

func (s *HandlerSuite) TestJoinAndLeave() {
	s.Run("banned subject is refused", func() {
		b := ban("P1")
		s.service.EXPECT().PlayerJoined(gomock.Any(), models.Subject{ID: "P1"}).Return(&b, nil)

		w := s.do(http.MethodPost, "/presence/P1/join", s.token(auth.RightPresence), nil)
		s.Require().Equal(http.StatusOK, w.Code)
		var resp joinResponse
		s.decode(w, &resp)
		s.False(resp.Allowed)
		s.Require().NotNil(resp.Restriction)
	})

	s.Run("muted subject joins", func() {
		m := ban("P2")
		m.Kind = models.KindMute
		s.service.EXPECT().PlayerJoined(gomock.Any(), models.Subject{ID: "P2", Name: "bob", Fingerprint: "10.0.0.2"}).Return(&m, nil)

		body := joinRequest{Name: "bob", Fingerprint: "10.0.0.2"}
		w := s.do(http.MethodPost, "/presence/P2/join", s.token(auth.RightPresence), body)
		var resp joinResponse
		s.decode(w, &resp)
		s.True(resp.Allowed)
	})

	s.Run("malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/presence/P3/join", strings.NewReader(`{"nickname":"x"}`))
		req.Header.Set("Authorization", "Bearer "+s.token(auth.RightPresence))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("leave", func() {
		s.service.EXPECT().PlayerLeft(gomock.Any(), models.SubjectID("P2")).Return(nil)
		w := s.do(http.MethodPost, "/presence/P2/leave", s.token(auth.RightPresence), nil)
		s.Equal(http.StatusNoContent, w.Code)
	})
}

func (s *HandlerSuite) TestServers() {
	s.service.EXPECT().Servers().Return([]presence.ServerStatus{
		{ID: "lobby", LastSeen: testNow, Players: 3},
	})
	b := ban("P9")
	s.service.EXPECT().RestrictedOnline(gomock.Any(), "lobby").
		Return(map[models.SubjectID]models.Restriction{"P9": b}, nil)

	w := s.do(http.MethodGet, "/servers", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var servers serversResponse
	s.decode(w, &servers)
	s.Require().Len(servers.Servers, 1)
	s.Equal(3, servers.Servers[0].Players)

	w = s.do(http.MethodGet, "/servers/lobby/restricted", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"P9"`)
}

// =============================================================================
// Subjects
// =============================================================================

func (s *HandlerSuite) TestProfile() {
	since := testNow.Add(-10 * time.Minute)
	s.service.EXPECT().Profile(gomock.Any(), models.SubjectID("P1")).Return(&models.Profile{
		ID:          "P1",
		LastName:    "alice",
		Names:       []string{"alice"},
		Addresses:   []string{"10.0.0.1"},
		TimesJoined: 3,
		PlayTime:    time.Hour,
		OnlineSince: &since,
		FirstSeen:   testNow.Add(-24 * time.Hour),
		LastSeen:    since,
	}, nil)
	s.service.EXPECT().Profile(gomock.Any(), models.SubjectID("P2")).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "subject P2 has never been seen"))

	w := s.do(http.MethodGet, "/subjects/P1", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp profileResponse
	s.decode(w, &resp)
	s.Equal([]string{"10.0.0.1"}, resp.Addresses)
	s.Equal(int64(3), resp.TimesJoined)
	s.Equal(int64(70*60), resp.PlayTimeSeconds, "open session counts toward play time")
	s.True(resp.Online)

	w = s.do(http.MethodGet, "/subjects/P2", s.token(auth.RightPresence), nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/subjects/P1", s.token(auth.RightBan), nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestSubjectsByAddress() {
	s.service.EXPECT().SubjectsByAddress(gomock.Any(), "10.0.0.1").Return([]models.Profile{
		{ID: "P3", Addresses: []string{"10.0.0.1"}},
		{ID: "P1", Addresses: []string{"10.0.0.1"}},
	}, nil)
	s.service.EXPECT().SubjectsByAddress(gomock.Any(), "").
		Return(nil, dErrors.New(dErrors.CodeValidation, "address is required"))

	w := s.do(http.MethodGet, "/subjects?address=10.0.0.1", s.token(auth.RightPresence), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp profilesResponse
	s.decode(w, &resp)
	s.Require().Len(resp.Subjects, 2)
	s.Equal(models.SubjectID("P3"), resp.Subjects[0].ID)

	w = s.do(http.MethodGet, "/subjects", s.token(auth.RightPresence), nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

// =============================================================================
// Reports
// =============================================================================

func (s *HandlerSuite) TestReport() {
	s.service.EXPECT().Report(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e models.ReportEvent) (models.ReportEvent, error) {
			s.Equal("P2", e.Reporter)
			s.Equal(models.SubjectID("P1"), e.Reported.ID)
			e.EventID = "evt-1"
			e.Server = "lobby"
			e.Timestamp = testNow
			return e, nil
		})

	w := s.do(http.MethodPost, "/reports", s.token(), reportRequest{Reporter: "P2", Reported: "P1", Reason: "  cheating "})
	s.Require().Equal(http.StatusAccepted, w.Code)
	var resp reportResponse
	s.decode(w, &resp)
	s.Equal("evt-1", resp.ID)
	s.Equal("cheating", resp.Reason)
}

func (s *HandlerSuite) TestRecentReports() {
	s.feed.reports = []models.ReportEvent{{EventID: "b"}, {EventID: "a"}}

	w := s.do(http.MethodGet, "/reports?limit=1", s.token(), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(1, s.feed.asked)
	var resp reportsResponse
	s.decode(w, &resp)
	s.Require().Len(resp.Reports, 1)
	s.Equal("b", resp.Reports[0].ID)

	w = s.do(http.MethodGet, "/reports?limit=zero", s.token(), nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func TestParseDuration(t *testing.T) {
	cases := map[string]struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		"hours":    {in: "36h", want: 36 * time.Hour},
		"days":     {in: "7d", want: 7 * 24 * time.Hour},
		"spaced":   {in: " 30m ", want: 30 * time.Minute},
		"zero":     {in: "0s", wantErr: true},
		"bad days": {in: "xd", wantErr: true},
		"garbage":  {in: "forever", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := parseDuration(tc.in)
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), "duration") {
					t.Fatalf("expected duration error, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("parseDuration(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
			}
		})
	}
}
