package models

import (
	"net/netip"
	"strings"
	"time"
)

// Profile is what the fleet has observed about a subject across its joins.
// Names and addresses accumulate without duplicates in first-seen order, which
// lets moderators spot accounts that share an address with a banned one.
type Profile struct {
	ID          SubjectID     `json:"id"`
	LastName    string        `json:"last_name,omitempty"`
	LastAddress string        `json:"last_address,omitempty"`
	Names       []string      `json:"names"`
	Addresses   []string      `json:"addresses"`
	TimesJoined int64         `json:"times_joined"`
	TimesKicked int64         `json:"times_kicked"`
	PlayTime    time.Duration `json:"-"`
	OnlineSince *time.Time    `json:"online_since,omitempty"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastSeen    time.Time     `json:"last_seen"`
}

// NormalizeAddress canonicalizes a fingerprint that parses as an IP address,
// unmapping IPv4-in-IPv6 forms. Anything else is returned trimmed.
func NormalizeAddress(fingerprint string) string {
	fingerprint = strings.TrimSpace(fingerprint)
	if addr, err := netip.ParseAddr(fingerprint); err == nil {
		return addr.Unmap().String()
	}
	return fingerprint
}

// RecordJoin folds one join observed at into p.
func (p *Profile) RecordJoin(subject Subject, at time.Time) {
	if p.FirstSeen.IsZero() {
		p.FirstSeen = at
	}
	if name := strings.TrimSpace(subject.Name); name != "" {
		p.LastName = name
		p.Names = appendUnique(p.Names, name)
	}
	if addr := NormalizeAddress(subject.Fingerprint); addr != "" {
		p.LastAddress = addr
		p.Addresses = appendUnique(p.Addresses, addr)
	}
	p.TimesJoined++
	p.LastSeen = at
	if p.OnlineSince == nil {
		since := at
		p.OnlineSince = &since
	}
}

// RecordLeave closes the open session, adding its length to PlayTime. A leave
// without a matching join only refreshes LastSeen.
func (p *Profile) RecordLeave(at time.Time) {
	if p.OnlineSince != nil && at.After(*p.OnlineSince) {
		p.PlayTime += at.Sub(*p.OnlineSince)
	}
	p.OnlineSince = nil
	p.LastSeen = at
}

// PlayTimeAt includes the open session, if any, up to now.
func (p *Profile) PlayTimeAt(now time.Time) time.Duration {
	total := p.PlayTime
	if p.OnlineSince != nil && now.After(*p.OnlineSince) {
		total += now.Sub(*p.OnlineSince)
	}
	return total
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
