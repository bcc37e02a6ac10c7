// Package metrics exports focus analytics as Prometheus collectors.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-focus/pkg/focus"
)

const namespace = "focus"

// Collector holds the service metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	framesTotal     *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	analyzeDuration *prometheus.HistogramVec
	score           *prometheus.GaugeVec
	awaySeconds     *prometheus.GaugeVec
	loopConfidence  *prometheus.GaugeVec
	sessionsActive  prometheus.Gauge
	streamClients   prometheus.Gauge
}

// New creates a collector. Go runtime and process metrics are included
// when runtime is set.
func New(runtime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Total number of analyzed frames by pipeline path",
			},
			[]string{"path"}, // path: primary, fallback, error
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of raised alerts by kind",
			},
			[]string{"alert"},
		),
		analyzeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analyze_duration_seconds",
				Help:      "Histogram of frame analysis duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"source"}, // source: http, websocket, webcam
		),
		score: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "score",
				Help:      "Damped focus score of the last analyzed frame",
			},
			[]string{"session"},
		),
		awaySeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "away_seconds",
				Help:      "Seconds the subject has been away",
			},
			[]string{"session"},
		),
		loopConfidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "loop_confidence",
				Help:      "Replay loop confidence of the last analyzed frame",
			},
			[]string{"session"},
		),
		sessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of live sessions",
			},
		),
		streamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Number of connected result stream observers",
			},
		),
	}

	c.registry.MustRegister(
		c.framesTotal,
		c.alertsTotal,
		c.analyzeDuration,
		c.score,
		c.awaySeconds,
		c.loopConfidence,
		c.sessionsActive,
		c.streamClients,
	)
	if runtime {
		c.registry.MustRegister(collectors.NewGoCollector())
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe records one analyzed frame. It satisfies session.Observer.
func (c *Collector) Observe(session string, res focus.Result) {
	path := string(res.Path)
	if path == "" {
		path = string(focus.PathError)
	}
	c.framesTotal.WithLabelValues(path).Inc()
	if !res.Success {
		return
	}

	c.score.WithLabelValues(session).Set(res.FocusScore)
	c.awaySeconds.WithLabelValues(session).Set(res.AwayTimer)
	if res.LoopDetection != nil {
		c.loopConfidence.WithLabelValues(session).Set(res.LoopDetection.Confidence)
	}
	for _, a := range res.Alerts {
		c.alertsTotal.WithLabelValues(AlertKind(a)).Inc()
	}
}

// ObserveDuration records how long one analysis took.
func (c *Collector) ObserveDuration(source string, d time.Duration) {
	c.analyzeDuration.WithLabelValues(source).Observe(d.Seconds())
}

// SetSessions sets the live session gauge.
func (c *Collector) SetSessions(n int) {
	c.sessionsActive.Set(float64(n))
}

// SetStreamClients sets the result stream observer gauge.
func (c *Collector) SetStreamClients(n int) {
	c.streamClients.Set(float64(n))
}

// ForgetSession drops the per-session series.
func (c *Collector) ForgetSession(session string) {
	c.score.DeleteLabelValues(session)
	c.awaySeconds.DeleteLabelValues(session)
	c.loopConfidence.DeleteLabelValues(session)
}

// AlertKind strips the measured value from parameterized alerts, so
// "head_yaw:40.0" counts as "head_yaw".
func AlertKind(alert string) string {
	if i := strings.IndexByte(alert, ':'); i >= 0 {
		return alert[:i]
	}
	return alert
}
