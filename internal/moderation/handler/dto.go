package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nucleus/internal/moderation/models"
	dErrors "nucleus/pkg/domain-errors"
)

type tokenRequest struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// applyRequest creates or replaces a restriction. Duration accepts Go
// durations plus a "d" day suffix; empty means permanent.
type applyRequest struct {
	Subject     string `json:"subject"`
	Name        string `json:"name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Kind        string `json:"kind"`
	Scope       string `json:"scope,omitempty"`
	Reason      string `json:"reason"`
	Duration    string `json:"duration,omitempty"`
}

func (req *applyRequest) toModel(now time.Time) (models.Restriction, error) {
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		return models.Restriction{}, err
	}
	scope, err := models.ParseScope(req.Scope)
	if err != nil {
		return models.Restriction{}, err
	}
	r := models.Restriction{
		Subject: models.Subject{
			ID:          models.SubjectID(strings.TrimSpace(req.Subject)),
			Name:        req.Name,
			Fingerprint: req.Fingerprint,
		},
		Kind:   kind,
		Scope:  scope,
		Reason: strings.TrimSpace(req.Reason),
	}
	if req.Duration != "" {
		d, err := parseDuration(req.Duration)
		if err != nil {
			return models.Restriction{}, err
		}
		expiresAt := now.Add(d)
		r.ExpiresAt = &expiresAt
	}
	return r, nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid duration %q", s))
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid duration %q", s))
		}
	}
	if d <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "duration must be positive")
	}
	return d, nil
}

type restrictionResponse struct {
	models.Restriction
	Permanent        bool  `json:"permanent"`
	RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
}

func toRestrictionResponse(r models.Restriction, now time.Time) restrictionResponse {
	out := restrictionResponse{Restriction: r, Permanent: r.IsPermanent()}
	if !r.IsPermanent() && !r.Revoked {
		out.RemainingSeconds = int64(r.Remaining(now).Seconds())
	}
	return out
}

func toRestrictionResponses(rs []models.Restriction, now time.Time) []restrictionResponse {
	out := make([]restrictionResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRestrictionResponse(r, now))
	}
	return out
}

type checkResponse struct {
	Subject     models.SubjectID     `json:"subject"`
	Scope       models.Scope         `json:"scope"`
	Restricted  bool                 `json:"restricted"`
	Restriction *restrictionResponse `json:"restriction,omitempty"`
}

type listResponse struct {
	Restrictions []restrictionResponse `json:"restrictions"`
}

type whereIsResponse struct {
	Subject models.SubjectID `json:"subject"`
	Online  bool             `json:"online"`
	Servers []string         `json:"servers"`
}

type joinRequest struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

type joinResponse struct {
	Allowed     bool                 `json:"allowed"`
	Restriction *restrictionResponse `json:"restriction,omitempty"`
}

type serverResponse struct {
	ID       string             `json:"id"`
	LastSeen time.Time          `json:"last_seen"`
	Players  int                `json:"players"`
	Info     *models.ServerInfo `json:"info,omitempty"`
}

type serversResponse struct {
	Servers []serverResponse `json:"servers"`
}

type restrictedOnlineResponse struct {
	Restricted map[models.SubjectID]restrictionResponse `json:"restricted"`
}

type reportRequest struct {
	Reporter    string `json:"reporter"`
	Reported    string `json:"reported"`
	Name        string `json:"name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Reason      string `json:"reason"`
}

func (req *reportRequest) toModel() models.ReportEvent {
	return models.ReportEvent{
		Reporter: strings.TrimSpace(req.Reporter),
		Reported: models.Subject{
			ID:          models.SubjectID(strings.TrimSpace(req.Reported)),
			Name:        req.Name,
			Fingerprint: req.Fingerprint,
		},
		Reason: strings.TrimSpace(req.Reason),
	}
}

type reportResponse struct {
	ID        string         `json:"id"`
	Server    string         `json:"server"`
	Reporter  string         `json:"reporter"`
	Reported  models.Subject `json:"reported"`
	Reason    string         `json:"reason"`
	Timestamp time.Time      `json:"timestamp"`
}

func toReportResponse(e models.ReportEvent) reportResponse {
	return reportResponse{
		ID:        e.EventID,
		Server:    e.Server,
		Reporter:  e.Reporter,
		Reported:  e.Reported,
		Reason:    e.Reason,
		Timestamp: e.Timestamp,
	}
}

type reportsResponse struct {
	Reports []reportResponse `json:"reports"`
}

type profileResponse struct {
	models.Profile
	PlayTimeSeconds int64 `json:"play_time_seconds"`
	Online          bool  `json:"online"`
}

func toProfileResponse(p models.Profile, now time.Time) profileResponse {
	return profileResponse{
		Profile:         p,
		PlayTimeSeconds: int64(p.PlayTimeAt(now) / time.Second),
		Online:          p.OnlineSince != nil,
	}
}

type profilesResponse struct {
	Subjects []profileResponse `json:"subjects"`
}
