// Package telemetry exports generation metrics in the Prometheus exposition
// format. Each Metrics owns its registry so servers and tests never collide
// on the global default.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aclis/ehrsynth/internal/platform/sandbox"
)

const namespace = "ehrsynth"

// Patient kinds used as the "kind" label.
const (
	KindShowcase = "showcase"
	KindFiller   = "filler"
)

// Metrics records corpus generation. It satisfies sandbox.Observer.
type Metrics struct {
	registry      *prometheus.Registry
	corpora       prometheus.Counter
	patients      *prometheus.CounterVec
	encounters    prometheus.Counter
	criticalLabs  prometheus.Counter
	duration      prometheus.Histogram
	artifactBytes prometheus.Gauge
}

// NewMetrics creates and registers the generator metrics. withRuntime adds
// the Go and process collectors.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		corpora: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corpora_generated_total",
			Help:      "Corpora generated.",
		}),
		patients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patients_generated_total",
			Help:      "Patients generated, by kind.",
		}, []string{"kind"}),
		encounters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encounters_generated_total",
			Help:      "Encounters generated across all patients.",
		}),
		criticalLabs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critical_labs_generated_total",
			Help:      "Lab results classified Critical.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time to generate one corpus.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		artifactBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last artifact written.",
		}),
	}
	m.registry.MustRegister(m.corpora, m.patients, m.encounters, m.criticalLabs, m.duration, m.artifactBytes)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Observe records one generated corpus.
func (m *Metrics) Observe(r *sandbox.SeedResult) {
	m.corpora.Inc()
	m.patients.WithLabelValues(KindShowcase).Add(float64(r.Showcase))
	m.patients.WithLabelValues(KindFiller).Add(float64(r.Filler))
	m.encounters.Add(float64(r.Encounters))
	m.criticalLabs.Add(float64(r.CriticalLabs))
	m.duration.Observe(r.Duration.Seconds())
}

// ObserveArtifact records the size of a written artifact.
func (m *Metrics) ObserveArtifact(size int64) {
	m.artifactBytes.Set(float64(size))
}

// Registry exposes the underlying registry, e.g. for a push gateway.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile atomically writes the current values to path for the
// node_exporter textfile collector. Batch runs use this instead of /metrics.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterRoutes mounts GET /metrics.
func (m *Metrics) RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}
