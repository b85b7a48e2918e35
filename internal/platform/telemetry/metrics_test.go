package telemetry

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aclis/ehrsynth/internal/platform/sandbox"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics(false)
	m.Observe(&sandbox.SeedResult{Showcase: 1, Filler: 3, Encounters: 7, CriticalLabs: 1, Duration: 2 * time.Millisecond})
	m.Observe(&sandbox.SeedResult{Filler: 2, Encounters: 3})

	if got := testutil.ToFloat64(m.corpora); got != 2 {
		t.Fatalf("expected 2 corpora, got %v", got)
	}
	if got := testutil.ToFloat64(m.patients.WithLabelValues(KindShowcase)); got != 1 {
		t.Fatalf("expected 1 showcase patient, got %v", got)
	}
	if got := testutil.ToFloat64(m.patients.WithLabelValues(KindFiller)); got != 5 {
		t.Fatalf("expected 5 filler patients, got %v", got)
	}
	if got := testutil.ToFloat64(m.encounters); got != 10 {
		t.Fatalf("expected 10 encounters, got %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestMetrics_ObserveArtifact(t *testing.T) {
	m := NewMetrics(false)
	m.ObserveArtifact(1024)
	m.ObserveArtifact(2048)
	if got := testutil.ToFloat64(m.artifactBytes); got != 2048 {
		t.Fatalf("expected gauge to hold the last size, got %v", got)
	}
}

func TestMetrics_Endpoint(t *testing.T) {
	m := NewMetrics(true)
	m.Observe(&sandbox.SeedResult{Showcase: 1, Filler: 3})

	e := echo.New()
	m.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`ehrsynth_patients_generated_total{kind="filler"} 3`,
		`ehrsynth_corpora_generated_total 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q", want)
		}
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics(false)
	m.Observe(&sandbox.SeedResult{Showcase: 1, Filler: 3, Encounters: 9})
	m.ObserveArtifact(512)

	path := filepath.Join(t.TempDir(), "ehrsynth.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading textfile: %v", err)
	}
	for _, want := range []string{"ehrsynth_encounters_generated_total 9", "ehrsynth_artifact_bytes 512"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("expected textfile to contain %q, got %s", want, data)
		}
	}
}

func TestMetrics_WriteTextfileMissingDir(t *testing.T) {
	m := NewMetrics(false)
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Fatal("expected error for a missing directory")
	}
}
