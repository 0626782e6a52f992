package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"10.0.0.1", "10.0.0.1"},
		{" ::ffff:10.0.0.1 ", "10.0.0.1"},
		{"2001:DB8::1", "2001:db8::1"},
		{"hashed-fingerprint", "hashed-fingerprint"},
		{"", ""},
	} {
		assert.Equal(t, tc.want, NormalizeAddress(tc.in), tc.in)
	}
}

func TestProfileSessions(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var p Profile

	p.RecordJoin(Subject{ID: "P1", Name: "alice", Fingerprint: "10.0.0.1"}, start)
	p.RecordLeave(start.Add(30 * time.Minute))
	p.RecordJoin(Subject{ID: "P1", Name: "alice2", Fingerprint: "::ffff:10.0.0.1"}, start.Add(time.Hour))

	assert.Equal(t, []string{"alice", "alice2"}, p.Names)
	assert.Equal(t, []string{"10.0.0.1"}, p.Addresses)
	assert.Equal(t, "alice2", p.LastName)
	assert.Equal(t, int64(2), p.TimesJoined)
	assert.Equal(t, start, p.FirstSeen)
	assert.Equal(t, 30*time.Minute, p.PlayTime)
	require.NotNil(t, p.OnlineSince)
	assert.Equal(t, 40*time.Minute, p.PlayTimeAt(start.Add(70*time.Minute)))

	t.Run("leave without join only touches last seen", func(t *testing.T) {
		var q Profile
		q.RecordLeave(start)
		assert.Zero(t, q.PlayTime)
		assert.Equal(t, start, q.LastSeen)
	})

	t.Run("a repeated join keeps the open session", func(t *testing.T) {
		var q Profile
		q.RecordJoin(Subject{ID: "P2"}, start)
		q.RecordJoin(Subject{ID: "P2"}, start.Add(time.Minute))
		q.RecordLeave(start.Add(10 * time.Minute))
		assert.Equal(t, 10*time.Minute, q.PlayTime)
		assert.Empty(t, q.Names)
	})
}
