package promsink

import (
	"context"
	"net/http"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hrm_auth"

// Sink counts activity events and tracks the session store state
type Sink struct {
	registry *prometheus.Registry
	activity *prometheus.CounterVec
	signedIn prometheus.Gauge
	loading  prometheus.Gauge
	revision prometheus.Gauge
}

var _ auth.ActivitySink = (*Sink)(nil)

// New registers the collectors on a fresh registry
func New() *Sink {
	s := &Sink{
		registry: prometheus.NewRegistry(),
		activity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_total",
				Help:      "Auth activity events by type and role.",
			},
			[]string{"event", "role"},
		),
		signedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_signed_in",
			Help:      "1 while the session store holds an identity.",
		}),
		loading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_loading",
			Help:      "1 while the session is being resolved.",
		}),
		revision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_store_revision",
			Help:      "Revision of the last identity write.",
		}),
	}

	s.registry.MustRegister(s.activity, s.signedIn, s.loading, s.revision)
	return s
}

func (s *Sink) Record(_ context.Context, event auth.ActivityEvent) error {
	role := string(event.Role)
	if role == "" {
		role = "none"
	}
	s.activity.WithLabelValues(string(event.EventType), role).Inc()
	return nil
}

// Observe mirrors store snapshots into the gauges until the returned
// function is called
func (s *Sink) Observe(store *auth.SessionStore) (unsubscribe func()) {
	s.update(store.Snapshot())
	return store.Subscribe(s.update)
}

func (s *Sink) update(snap auth.StoreSnapshot) {
	s.signedIn.Set(boolValue(snap.Identity != nil))
	s.loading.Set(boolValue(snap.IsLoading))
	s.revision.Set(float64(snap.Revision))
}

func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the sink registry in the exposition format
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
