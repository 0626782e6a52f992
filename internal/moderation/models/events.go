package models

import "time"

// Bus topics shared by every node in the fleet.
const (
	TopicPunishment = "moderation.punishment"
	TopicPresence   = "moderation.presence"
	TopicReport     = "moderation.report"
)

// PunishmentEvent announces a restriction creation, update or revocation.
// EventID makes redelivery detectable; Origin names the node that committed it.
type PunishmentEvent struct {
	EventID     string
	Origin      string
	Restriction Restriction
}

// PresenceType distinguishes join, leave and heartbeat presence events.
type PresenceType string

const (
	PresenceJoin      PresenceType = "join"
	PresenceLeave     PresenceType = "leave"
	PresenceHeartbeat PresenceType = "heartbeat"
)

func (t PresenceType) Valid() bool {
	switch t {
	case PresenceJoin, PresenceLeave, PresenceHeartbeat:
		return true
	}
	return false
}

// ServerInfo is the optional descriptive payload a heartbeat carries.
type ServerInfo struct {
	Name        string `json:"name,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	MapName     string `json:"map_name,omitempty"`
	PlayerCount int    `json:"player_count,omitempty"`
	PlayerLimit int    `json:"player_limit,omitempty"`
}

// PresenceEvent reports a subject joining or leaving a server, or a server
// heartbeat (Subject empty). Sequence is ordered per (subject, server).
type PresenceEvent struct {
	Type      PresenceType
	Subject   SubjectID
	Server    string
	Timestamp time.Time
	Sequence  uint64
	Info      *ServerInfo
}

// ReportEvent is a player report raised on a game server for moderators.
type ReportEvent struct {
	EventID   string
	Server    string
	Reporter  string
	Reported  Subject
	Reason    string
	Timestamp time.Time
}
