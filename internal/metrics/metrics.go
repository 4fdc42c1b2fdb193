// Package metrics はハブの動作状況をPrometheus形式で公開する
//
// nilの*Metricsに対する呼び出しは何もしないので、テストでは省略できる
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "capturehub"

// Metrics はハブのコレクター一式
type Metrics struct {
	registry *prometheus.Registry

	motionEvents   *prometheus.CounterVec
	sessions       *prometheus.CounterVec
	activeSession  prometheus.Gauge
	captures       *prometheus.CounterVec
	fanoutDuration prometheus.Histogram
	images         *prometheus.CounterVec
	imageBytes     prometheus.Counter
	heartbeats     prometheus.Counter
}

// New は専用レジストリにコレクターを登録したMetricsを作成する
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		motionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_events_total",
			Help:      "Motion events by result (accepted, throttled).",
		}, []string{"result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Session transitions (opened, closed).",
		}, []string{"event"}),
		activeSession: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a capture session is open.",
		}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_requests_total",
			Help:      "Per-device capture outcomes.",
		}, []string{"outcome"}),
		fanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_duration_seconds",
			Help:      "Time for a capture fan-out to complete.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Image uploads by result.",
		}, []string{"result"}),
		imageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_bytes_total",
			Help:      "Bytes of decoded image data written.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeats received.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.motionEvents,
		m.sessions,
		m.activeSession,
		m.captures,
		m.fanoutDuration,
		m.images,
		m.imageBytes,
		m.heartbeats,
	)

	return m
}

// Registry は内部のレジストリを返す
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は /metrics 用のハンドラを返す
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MotionAccepted() {
	if m == nil {
		return
	}
	m.motionEvents.WithLabelValues("accepted").Inc()
}

func (m *Metrics) MotionThrottled() {
	if m == nil {
		return
	}
	m.motionEvents.WithLabelValues("throttled").Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("opened").Inc()
	m.activeSession.Set(1)
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues("closed").Inc()
	m.activeSession.Set(0)
}

// CaptureOutcome は端末1台分の結果を記録する
func (m *Metrics) CaptureOutcome(outcome string) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(outcome).Inc()
}

// ObserveFanout はファンアウト全体の所要時間を記録する
func (m *Metrics) ObserveFanout(d time.Duration) {
	if m == nil {
		return
	}
	m.fanoutDuration.Observe(d.Seconds())
}

func (m *Metrics) ImageStored(size int) {
	if m == nil {
		return
	}
	m.images.WithLabelValues("stored").Inc()
	m.imageBytes.Add(float64(size))
}

func (m *Metrics) ImageRejected() {
	if m == nil {
		return
	}
	m.images.WithLabelValues("rejected").Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}
