package codec

import (
	"fmt"
	"time"

	"nucleus/internal/moderation/models"
)

// Wire shapes are decoupled from the domain models so field names stay
// stable across releases. Field tags apply to both JSON and CBOR.

type restrictionWire struct {
	SubjectID   string     `json:"subject_id"`
	SubjectName string     `json:"subject_name,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	Kind        string     `json:"kind"`
	Scope       string     `json:"scope"`
	Reason      string     `json:"reason,omitempty"`
	Actor       string     `json:"actor"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Revision    uint64     `json:"revision"`
	Revoked     bool       `json:"revoked,omitempty"`
}

type punishmentWire struct {
	EventID     string          `json:"event_id"`
	Origin      string          `json:"origin"`
	Restriction restrictionWire `json:"restriction"`
}

type presenceWire struct {
	Type      string             `json:"type"`
	Subject   string             `json:"subject,omitempty"`
	Server    string             `json:"server"`
	Timestamp time.Time          `json:"timestamp"`
	Sequence  uint64             `json:"sequence"`
	Info      *models.ServerInfo `json:"info,omitempty"`
}

type reportWire struct {
	EventID             string    `json:"event_id"`
	Server              string    `json:"server"`
	Reporter            string    `json:"reporter"`
	ReportedID          string    `json:"reported_id"`
	ReportedName        string    `json:"reported_name,omitempty"`
	ReportedFingerprint string    `json:"reported_fingerprint,omitempty"`
	Reason              string    `json:"reason"`
	Timestamp           time.Time `json:"timestamp"`
}

// EncodePunishment serializes a punishment event in the configured format.
func (c *Codec) EncodePunishment(e models.PunishmentEvent) ([]byte, error) {
	r := e.Restriction
	out, err := c.marshal(punishmentWire{
		EventID: e.EventID,
		Origin:  e.Origin,
		Restriction: restrictionWire{
			SubjectID:   string(r.Subject.ID),
			SubjectName: r.Subject.Name,
			Fingerprint: r.Subject.Fingerprint,
			Kind:        string(r.Kind),
			Scope:       string(r.Scope),
			Reason:      r.Reason,
			Actor:       r.Actor,
			CreatedAt:   r.CreatedAt,
			ExpiresAt:   r.ExpiresAt,
			Revision:    r.Revision,
			Revoked:     r.Revoked,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode punishment event: %w", err)
	}
	return out, nil
}

// DecodePunishment parses either format. Payloads missing an event ID, a
// revision or a valid restriction are rejected with ErrMalformed.
func (c *Codec) DecodePunishment(data []byte) (models.PunishmentEvent, error) {
	var w punishmentWire
	if err := unmarshal(data, &w); err != nil {
		return models.PunishmentEvent{}, err
	}
	if w.EventID == "" {
		return models.PunishmentEvent{}, malformed("punishment event without event_id")
	}
	if w.Restriction.Revision == 0 {
		return models.PunishmentEvent{}, malformed("punishment event %s without revision", w.EventID)
	}
	r := models.Restriction{
		Subject: models.Subject{
			ID:          models.SubjectID(w.Restriction.SubjectID),
			Name:        w.Restriction.SubjectName,
			Fingerprint: w.Restriction.Fingerprint,
		},
		Kind:      models.Kind(w.Restriction.Kind),
		Scope:     models.Scope(w.Restriction.Scope),
		Reason:    w.Restriction.Reason,
		Actor:     w.Restriction.Actor,
		CreatedAt: w.Restriction.CreatedAt,
		ExpiresAt: w.Restriction.ExpiresAt,
		Revision:  w.Restriction.Revision,
		Revoked:   w.Restriction.Revoked,
	}
	if err := r.Validate(); err != nil {
		return models.PunishmentEvent{}, malformed("punishment event %s: %v", w.EventID, err)
	}
	return models.PunishmentEvent{EventID: w.EventID, Origin: w.Origin, Restriction: r}, nil
}

func (c *Codec) EncodePresence(e models.PresenceEvent) ([]byte, error) {
	out, err := c.marshal(presenceWire{
		Type:      string(e.Type),
		Subject:   string(e.Subject),
		Server:    e.Server,
		Timestamp: e.Timestamp,
		Sequence:  e.Sequence,
		Info:      e.Info,
	})
	if err != nil {
		return nil, fmt.Errorf("encode presence event: %w", err)
	}
	return out, nil
}

// DecodePresence parses either format. Join and leave events need a subject;
// every event needs a server.
func (c *Codec) DecodePresence(data []byte) (models.PresenceEvent, error) {
	var w presenceWire
	if err := unmarshal(data, &w); err != nil {
		return models.PresenceEvent{}, err
	}
	t := models.PresenceType(w.Type)
	if !t.Valid() {
		return models.PresenceEvent{}, malformed("unknown presence type %q", w.Type)
	}
	if w.Server == "" {
		return models.PresenceEvent{}, malformed("presence event without server")
	}
	if t != models.PresenceHeartbeat && w.Subject == "" {
		return models.PresenceEvent{}, malformed("%s event without subject", t)
	}
	return models.PresenceEvent{
		Type:      t,
		Subject:   models.SubjectID(w.Subject),
		Server:    w.Server,
		Timestamp: w.Timestamp,
		Sequence:  w.Sequence,
		Info:      w.Info,
	}, nil
}

func (c *Codec) EncodeReport(e models.ReportEvent) ([]byte, error) {
	out, err := c.marshal(reportWire{
		EventID:             e.EventID,
		Server:              e.Server,
		Reporter:            e.Reporter,
		ReportedID:          string(e.Reported.ID),
		ReportedName:        e.Reported.Name,
		ReportedFingerprint: e.Reported.Fingerprint,
		Reason:              e.Reason,
		Timestamp:           e.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("encode report event: %w", err)
	}
	return out, nil
}

func (c *Codec) DecodeReport(data []byte) (models.ReportEvent, error) {
	var w reportWire
	if err := unmarshal(data, &w); err != nil {
		return models.ReportEvent{}, err
	}
	if w.EventID == "" || w.ReportedID == "" {
		return models.ReportEvent{}, malformed("report event without event_id or reported subject")
	}
	return models.ReportEvent{
		EventID:  w.EventID,
		Server:   w.Server,
		Reporter: w.Reporter,
		Reported: models.Subject{
			ID:          models.SubjectID(w.ReportedID),
			Name:        w.ReportedName,
			Fingerprint: w.ReportedFingerprint,
		},
		Reason:    w.Reason,
		Timestamp: w.Timestamp,
	}, nil
}
