package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event outcomes recorded by the synchronizer.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeMalformed = "malformed"
)

// Cache lookup results.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupStale   = "stale"
	LookupUnknown = "unknown"
)

// Metrics holds the moderation collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	SyncEvents        *prometheus.CounterVec
	SyncPersistFailed prometheus.Counter
	SyncState         prometheus.Gauge
	CacheLookups      *prometheus.CounterVec
	StoreErrors       *prometheus.CounterVec
	Applies           *prometheus.CounterVec
	BreakerOpen       prometheus.Gauge
	PresenceOnline    prometheus.Gauge
	PresenceServers   prometheus.Gauge
	Reports           prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which suits tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SyncEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nucleus_sync_events_total",
			Help: "Bus events processed by the synchronizer, by topic and outcome",
		}, []string{"topic", "outcome"}),
		SyncPersistFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "nucleus_sync_persist_failures_total",
			Help: "Remote events that could not be persisted after all retries",
		}),
		SyncState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nucleus_sync_state",
			Help: "Synchronizer state: 0 starting, 1 catching up, 2 live, 3 stopped",
		}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nucleus_cache_lookups_total",
			Help: "Restriction lookups by how they were answered",
		}, []string{"result"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nucleus_store_errors_total",
			Help: "Moderation store failures by operation",
		}, []string{"op"}),
		Applies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nucleus_restriction_applies_total",
			Help: "Apply and revoke requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nucleus_store_breaker_open",
			Help: "1 while the store circuit breaker is open",
		}),
		PresenceOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nucleus_presence_online_subjects",
			Help: "Subjects currently online on at least one server",
		}),
		PresenceServers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nucleus_presence_live_servers",
			Help: "Servers heard from within the presence timeout",
		}),
		Reports: factory.NewCounter(prometheus.CounterOpts{
			Name: "nucleus_reports_total",
			Help: "Player reports relayed",
		}),
	}
}

func (m *Metrics) ObserveSyncEvent(topic, outcome string) {
	if m == nil {
		return
	}
	m.SyncEvents.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) IncrementPersistFailures() {
	if m == nil {
		return
	}
	m.SyncPersistFailed.Inc()
}

func (m *Metrics) SetSyncState(state int) {
	if m == nil {
		return
	}
	m.SyncState.Set(float64(state))
}

func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementStoreErrors(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveApply(kind, outcome string) {
	if m == nil {
		return
	}
	m.Applies.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) SetPresence(onlineSubjects, liveServers int) {
	if m == nil {
		return
	}
	m.PresenceOnline.Set(float64(onlineSubjects))
	m.PresenceServers.Set(float64(liveServers))
}

func (m *Metrics) IncrementReports() {
	if m == nil {
		return
	}
	m.Reports.Inc()
}
