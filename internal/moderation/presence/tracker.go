// Package presence tracks which servers each subject is connected to.
//
// State is derived only from join, leave and heartbeat events and lives in
// memory. Per (subject, server) sequence numbers make delivery order
// irrelevant: the event with the highest sequence decides whether the pair
// is online.
package presence

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"nucleus/internal/moderation/models"
)

const (
	DefaultTimeout = 45 * time.Second
	defaultShards  = 32
)

// ServerStatus describes a server heard from within the liveness timeout.
type ServerStatus struct {
	ID       string             `json:"id"`
	LastSeen time.Time          `json:"last_seen"`
	Players  int                `json:"players"`
	Info     *models.ServerInfo `json:"info,omitempty"`
}

// pair is the state of one (subject, server) pair. Offline pairs are kept as
// tombstones so stale joins stay rejected.
type pair struct {
	joinSeq uint64
	lastSeq uint64
	online  bool
	updated time.Time
}

type server struct {
	lastSeen time.Time
	info     *models.ServerInfo
}

// Tracker is safe for concurrent use. Subjects hash onto independently locked
// shards; server liveness has its own lock.
type Tracker struct {
	shards  []*subjectShard
	timeout time.Duration
	now     func() time.Time

	serversMu sync.RWMutex
	servers   map[string]*server
}

type subjectShard struct {
	mu       sync.RWMutex
	subjects map[models.SubjectID]map[string]*pair
}

type TrackerOption func(*Tracker)

// WithTimeout sets how long a silent server is considered alive.
func WithTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		timeout: DefaultTimeout,
		now:     time.Now,
		servers: make(map[string]*server),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.shards = make([]*subjectShard, defaultShards)
	for i := range t.shards {
		t.shards[i] = &subjectShard{subjects: make(map[models.SubjectID]map[string]*pair)}
	}
	return t
}

func (t *Tracker) shardFor(subject models.SubjectID) *subjectShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// Apply merges one event and reports whether it changed pair state. Every
// event, applied or not, refreshes its server's liveness.
func (t *Tracker) Apply(ev models.PresenceEvent) bool {
	if ev.Server == "" {
		return false
	}
	t.touch(ev.Server, ev.Info)
	if ev.Type == models.PresenceHeartbeat || ev.Subject == "" {
		return false
	}

	sh := t.shardFor(ev.Subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	servers := sh.subjects[ev.Subject]
	if servers == nil {
		servers = make(map[string]*pair)
		sh.subjects[ev.Subject] = servers
	}
	p := servers[ev.Server]
	if p == nil {
		p = &pair{}
		servers[ev.Server] = p
	}

	switch ev.Type {
	case models.PresenceJoin:
		if ev.Sequence <= p.lastSeq {
			return false
		}
		p.joinSeq = ev.Sequence
		p.lastSeq = ev.Sequence
		p.online = true
	case models.PresenceLeave:
		if ev.Sequence < p.joinSeq {
			return false
		}
		p.online = false
		if ev.Sequence > p.lastSeq {
			p.lastSeq = ev.Sequence
		}
	default:
		return false
	}
	p.updated = t.now()
	return true
}

func (t *Tracker) touch(serverID string, info *models.ServerInfo) {
	now := t.now()
	t.serversMu.Lock()
	defer t.serversMu.Unlock()
	s := t.servers[serverID]
	if s == nil {
		s = &server{}
		t.servers[serverID] = s
	}
	s.lastSeen = now
	if info != nil {
		s.info = info
	}
}

func (t *Tracker) liveServers(now time.Time) map[string]*server {
	t.serversMu.RLock()
	defer t.serversMu.RUnlock()
	live := make(map[string]*server, len(t.servers))
	for id, s := range t.servers {
		if now.Sub(s.lastSeen) <= t.timeout {
			live[id] = s
		}
	}
	return live
}

func (t *Tracker) isLive(serverID string, now time.Time) bool {
	t.serversMu.RLock()
	defer t.serversMu.RUnlock()
	s, ok := t.servers[serverID]
	return ok && now.Sub(s.lastSeen) <= t.timeout
}

// WhereIs returns the live servers a subject is online on, sorted.
func (t *Tracker) WhereIs(subject models.SubjectID) []string {
	now := t.now()
	sh := t.shardFor(subject)
	sh.mu.RLock()
	var candidates []string
	for serverID, p := range sh.subjects[subject] {
		if p.online {
			candidates = append(candidates, serverID)
		}
	}
	sh.mu.RUnlock()

	out := candidates[:0]
	for _, serverID := range candidates {
		if t.isLive(serverID, now) {
			out = append(out, serverID)
		}
	}
	sort.Strings(out)
	return out
}

// Online returns the subjects currently online on serverID, sorted.
func (t *Tracker) Online(serverID string) []models.SubjectID {
	if !t.isLive(serverID, t.now()) {
		return nil
	}
	var out []models.SubjectID
	for _, sh := range t.shards {
		sh.mu.RLock()
		for subject, servers := range sh.subjects {
			if p, ok := servers[serverID]; ok && p.online {
				out = append(out, subject)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Servers lists live servers with their online player counts.
func (t *Tracker) Servers() []ServerStatus {
	live := t.liveServers(t.now())
	players := make(map[string]int, len(live))
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, servers := range sh.subjects {
			for serverID, p := range servers {
				if _, ok := live[serverID]; ok && p.online {
					players[serverID]++
				}
			}
		}
		sh.mu.RUnlock()
	}

	out := make([]ServerStatus, 0, len(live))
	for id, s := range live {
		status := ServerStatus{ID: id, LastSeen: s.lastSeen, Players: players[id]}
		if s.info != nil {
			info := *s.info
			status.Info = &info
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sweep forgets servers silent for longer than the timeout together with every
// pair they own, and drops offline tombstones older than the timeout. It
// returns the expired server IDs.
func (t *Tracker) Sweep(now time.Time) []string {
	t.serversMu.Lock()
	var expired []string
	for id, s := range t.servers {
		if now.Sub(s.lastSeen) > t.timeout {
			expired = append(expired, id)
			delete(t.servers, id)
		}
	}
	t.serversMu.Unlock()

	dead := make(map[string]struct{}, len(expired))
	for _, id := range expired {
		dead[id] = struct{}{}
	}
	for _, sh := range t.shards {
		sh.mu.Lock()
		for subject, servers := range sh.subjects {
			for serverID, p := range servers {
				_, isDead := dead[serverID]
				if isDead || (!p.online && now.Sub(p.updated) > t.timeout) {
					delete(servers, serverID)
				}
			}
			if len(servers) == 0 {
				delete(sh.subjects, subject)
			}
		}
		sh.mu.Unlock()
	}
	if len(expired) == 0 {
		return nil
	}
	sort.Strings(expired)
	return expired
}

// Counts returns the number of online subjects and live servers.
func (t *Tracker) Counts() (onlineSubjects, liveServers int) {
	now := t.now()
	live := t.liveServers(now)
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, servers := range sh.subjects {
			for serverID, p := range servers {
				if _, ok := live[serverID]; ok && p.online {
					onlineSubjects++
					break
				}
			}
		}
		sh.mu.RUnlock()
	}
	return onlineSubjects, len(live)
}
