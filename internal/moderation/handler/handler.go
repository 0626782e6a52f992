// Package handler exposes the moderation service over HTTP for the moderation
// bot and for plugin hosts that cannot embed the Go API.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nucleus/internal/moderation/auth"
	"nucleus/internal/moderation/models"
	"nucleus/internal/moderation/presence"
	"nucleus/internal/platform/metrics"
	"nucleus/internal/platform/middleware"
	dErrors "nucleus/pkg/domain-errors"
	"nucleus/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the moderation facade.
type Service interface {
	IsRestricted(ctx context.Context, subject models.SubjectID, scope models.Scope) (*models.Restriction, error)
	Active(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error)
	History(ctx context.Context, subject models.SubjectID) ([]models.Restriction, error)
	Apply(ctx context.Context, actor string, r models.Restriction) (*models.Restriction, error)
	Revoke(ctx context.Context, actor string, subject models.SubjectID, kind models.Kind, scope models.Scope, reason string) (*models.Restriction, error)
	WhereIs(ctx context.Context, subject models.SubjectID) []string
	Servers() []presence.ServerStatus
	RestrictedOnline(ctx context.Context, serverID string) (map[models.SubjectID]models.Restriction, error)
	PlayerJoined(ctx context.Context, subject models.Subject) (*models.Restriction, error)
	PlayerLeft(ctx context.Context, subject models.SubjectID) error
	Profile(ctx context.Context, subject models.SubjectID) (*models.Profile, error)
	SubjectsByAddress(ctx context.Context, address string) ([]models.Profile, error)
	Report(ctx context.Context, report models.ReportEvent) (models.ReportEvent, error)
}

// Authenticator checks moderator API keys.
type Authenticator interface {
	Authenticate(name, key string) (*auth.Principal, error)
}

// Tokens issues and validates moderator tokens.
type Tokens interface {
	Issue(p *auth.Principal) (string, time.Time, error)
	Validate(token string) (*auth.Principal, error)
}

// ReportFeed lists recently received reports.
type ReportFeed interface {
	Recent(n int) []models.ReportEvent
}

// Handler serves the moderation HTTP API.
type Handler struct {
	service  Service
	authn    Authenticator
	tokens   Tokens
	lockout  *auth.Lockout
	reports  ReportFeed
	ready    func(ctx context.Context) error
	gatherer prometheus.Gatherer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithLockout throttles failed token requests.
func WithLockout(l *auth.Lockout) Option {
	return func(h *Handler) {
		h.lockout = l
	}
}

func WithReportFeed(feed ReportFeed) Option {
	return func(h *Handler) {
		h.reports = feed
	}
}

// WithReadiness makes /readyz report ready only while check returns nil.
func WithReadiness(check func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.ready = check
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func New(service Service, authn Authenticator, tokens Tokens, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		authn:   authn,
		tokens:  tokens,
		logger:  slog.Default(),
		timeout: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.Logger(h.logger, h.metrics))

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(h.timeout))
		r.Post("/auth/token", h.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(h.tokens, h.logger))

			r.Route("/restrictions", func(r chi.Router) {
				r.Post("/", h.handleApply)
				r.Get("/{subject}", h.handleIsRestricted)
				r.Get("/{subject}/active", h.handleActive)
				r.Get("/{subject}/history", h.handleHistory)
				r.Delete("/{subject}/{kind}", h.handleRevoke)
			})

			r.Post("/reports", h.handleReport)
			r.Get("/reports", h.handleRecentReports)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRight(auth.RightPresence))
				r.Get("/presence/{subject}", h.handleWhereIs)
				r.Post("/presence/{subject}/join", h.handleJoin)
				r.Post("/presence/{subject}/leave", h.handleLeave)
				r.Get("/servers", h.handleServers)
				r.Get("/servers/{server}/restricted", h.handleRestrictedOnline)
				r.Get("/subjects", h.handleSubjectsByAddress)
				r.Get("/subjects/{subject}", h.handleProfile)
			})
		})
	})
	return r
}

// =============================================================================
// Health and tokens
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": err.Error(),
			})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[tokenRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	ip := middleware.ClientIP(r)
	if h.lockout != nil {
		if err := h.lockout.Check(req.Name, ip); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	p, err := h.authn.Authenticate(req.Name, req.Key)
	if err != nil {
		locked := false
		if h.lockout != nil && dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			locked = h.lockout.RecordFailure(req.Name, ip)
		}
		h.logger.WarnContext(ctx, "moderator authentication failed",
			"moderator", req.Name,
			"client_ip", ip,
			"locked", locked,
			"request_id", chimw.GetReqID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	if h.lockout != nil {
		h.lockout.Clear(req.Name, ip)
	}
	token, expiresAt, err := h.tokens.Issue(p)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue token", "moderator", p.Name, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}

// =============================================================================
// Restrictions
// =============================================================================

func (h *Handler) handleIsRestricted(w http.ResponseWriter, r *http.Request) {
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	scope, err := models.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.IsRestricted(r.Context(), subject, scope)
	if err != nil {
		h.writeServiceError(w, r, "check restriction", err)
		return
	}
	resp := checkResponse{Subject: subject, Scope: scope, Restricted: res != nil}
	if res != nil {
		out := toRestrictionResponse(*res, h.now())
		resp.Restriction = &out
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	active, err := h.service.Active(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, "list active restrictions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Restrictions: toRestrictionResponses(active, h.now())})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	history, err := h.service.History(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, "list restriction history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Restrictions: toRestrictionResponses(history, h.now())})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[applyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	restriction, err := req.toModel(h.now())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	applied, err := h.service.Apply(ctx, auth.PrincipalFrom(ctx).Name, restriction)
	if err != nil {
		h.writeServiceError(w, r, "apply restriction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRestrictionResponse(*applied, h.now()))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scope, err := models.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	revoked, err := h.service.Revoke(ctx, auth.PrincipalFrom(ctx).Name, subject, kind, scope, r.URL.Query().Get("reason"))
	if err != nil {
		h.writeServiceError(w, r, "revoke restriction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRestrictionResponse(*revoked, h.now()))
}

// =============================================================================
// Presence
// =============================================================================

func (h *Handler) handleWhereIs(w http.ResponseWriter, r *http.Request) {
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	if err := subject.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	servers := h.service.WhereIs(r.Context(), subject)
	if servers == nil {
		servers = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, whereIsResponse{Subject: subject, Online: len(servers) > 0, Servers: servers})
}

// handleJoin accepts an optional body carrying the name and address the
// subject joined with.
func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	subject := models.Subject{ID: models.SubjectID(chi.URLParam(r, "subject"))}
	if r.ContentLength != 0 {
		req, err := httputil.DecodeJSON[joinRequest](r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		subject.Name = req.Name
		subject.Fingerprint = req.Fingerprint
	}
	res, err := h.service.PlayerJoined(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, "record join", err)
		return
	}
	resp := joinResponse{Allowed: true}
	if res != nil {
		out := toRestrictionResponse(*res, h.now())
		resp.Restriction = &out
		resp.Allowed = res.Kind.Severity() < models.KindKick.Severity()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	subject := models.SubjectID(chi.URLParam(r, "subject"))
	if err := h.service.PlayerLeft(r.Context(), subject); err != nil {
		h.writeServiceError(w, r, "record leave", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), models.SubjectID(chi.URLParam(r, "subject")))
	if err != nil {
		h.writeServiceError(w, r, "read subject profile", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(*profile, h.now()))
}

func (h *Handler) handleSubjectsByAddress(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.SubjectsByAddress(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		h.writeServiceError(w, r, "find subjects by address", err)
		return
	}
	now := h.now()
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p, now))
	}
	httputil.WriteJSON(w, http.StatusOK, profilesResponse{Subjects: out})
}

func (h *Handler) handleServers(w http.ResponseWriter, _ *http.Request) {
	statuses := h.service.Servers()
	out := make([]serverResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, serverResponse{
			ID:       st.ID,
			LastSeen: st.LastSeen,
			Players:  st.Players,
			Info:     st.Info,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, serversResponse{Servers: out})
}

func (h *Handler) handleRestrictedOnline(w http.ResponseWriter, r *http.Request) {
	restricted, err := h.service.RestrictedOnline(r.Context(), chi.URLParam(r, "server"))
	if err != nil {
		h.writeServiceError(w, r, "check online subjects", err)
		return
	}
	now := h.now()
	out := make(map[models.SubjectID]restrictionResponse, len(restricted))
	for subject, res := range restricted {
		out[subject] = toRestrictionResponse(res, now)
	}
	httputil.WriteJSON(w, http.StatusOK, restrictedOnlineResponse{Restricted: out})
}

// =============================================================================
// Reports
// =============================================================================

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[reportRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sent, err := h.service.Report(r.Context(), req.toModel())
	if err != nil {
		h.writeServiceError(w, r, "send report", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toReportResponse(sent))
}

func (h *Handler) handleRecentReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "reports are not enabled"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	recent := h.reports.Recent(limit)
	out := make([]reportResponse, 0, len(recent))
	for _, rep := range recent {
		out = append(out, toReportResponse(rep))
	}
	httputil.WriteJSON(w, http.StatusOK, reportsResponse{Reports: out})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "failed to "+op, "error", err, "request_id", chimw.GetReqID(ctx))
	case dErrors.CodeUnavailable, dErrors.CodeConflict:
		h.logger.WarnContext(ctx, "failed to "+op, "error", err, "request_id", chimw.GetReqID(ctx))
	}
	httputil.WriteError(w, err)
}
