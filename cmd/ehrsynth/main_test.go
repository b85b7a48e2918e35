package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aclis/ehrsynth/internal/config"
	"github.com/aclis/ehrsynth/internal/platform/blobstore"
	"github.com/aclis/ehrsynth/internal/platform/document"
	"github.com/aclis/ehrsynth/internal/platform/telemetry"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{logOut: io.Discard, out: &out, logger: zerolog.Nop()}
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func TestGenerate_DefaultCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synthetic_aclis_records.json")
	if _, err := runCLI(t, "--output", path, "--seed", "42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	var docs []document.PatientDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("artifact is not a JSON array of patients: %v", err)
	}
	if len(docs) != 4 {
		t.Fatalf("expected showcase + 3 roster patients, got %d", len(docs))
	}
	if docs[0].Name != "John Doe" {
		t.Errorf("expected showcase first, got %s", docs[0].Name)
	}
	if docs[0].GenomicProfile == nil || len(docs[0].WearableData) != 30 {
		t.Errorf("expected showcase genomics and 30 wearable days")
	}
	for _, d := range docs[1:] {
		if d.GenomicProfile != nil {
			t.Errorf("filler patient %s should carry no genomic profile", d.Name)
		}
	}
	if docs[0].SchemaVersion != document.Version {
		t.Errorf("expected schema version %s, got %s", document.Version, docs[0].SchemaVersion)
	}
}

func TestGenerate_SameSeedSameNarrative(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")
	for _, p := range []string{a, b} {
		if _, err := runCLI(t, "generate", "-o", p, "--seed", "7"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var first, second []document.PatientDoc
	for p, into := range map[string]*[]document.PatientDoc{a: &first, b: &second} {
		data, _ := os.ReadFile(p)
		if err := json.Unmarshal(data, into); err != nil {
			t.Fatalf("decode %s: %v", p, err)
		}
	}
	if first[0].PatientID != second[0].PatientID {
		t.Errorf("expected identical showcase id, got %s and %s", first[0].PatientID, second[0].PatientID)
	}
	if len(first[0].Encounters) != len(second[0].Encounters) {
		t.Fatal("expected identical encounter structure")
	}
	for i := range first[0].Encounters {
		if first[0].Encounters[i].EncounterID != second[0].Encounters[i].EncounterID {
			t.Errorf("encounter %d differs between runs", i)
		}
	}
}

func TestGenerate_NDJSONWithFiller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.ndjson")
	if _, err := runCLI(t, "-o", path, "--format", "ndjson", "--filler", "2", "--seed", "3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var doc document.PatientDoc
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		lines++
	}
	if lines != 6 {
		t.Fatalf("expected 6 patient lines, got %d", lines)
	}
}

func TestGenerate_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	prom := filepath.Join(dir, "ehrsynth.prom")
	if _, err := runCLI(t, "-o", filepath.Join(dir, "out.json"), "--seed", "1", "--metrics-file", prom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	if !strings.Contains(string(data), `ehrsynth_patients_generated_total{kind="showcase"} 1`) {
		t.Errorf("expected showcase counter in %s", data)
	}
}

func TestGenerate_UnwritableOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")
	_, err := runCLI(t, "-o", path, "--seed", "1")
	if !errors.Is(err, blobstore.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestGenerate_InvalidConfig(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.json")
	tests := [][]string{
		{"-o", out, "--format", "xml"},
		{"-o", out, "--scenario", "melanoma"},
		{"-o", out, "--filler", "-2"},
		{"-o", out, "--env", "staging"},
		{"--output", "s3://bucket-only"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			if _, err := runCLI(t, args...); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("expected no artifact after a rejected configuration")
	}
}

// ---------------------------------------------------------------------------
// scenarios
// ---------------------------------------------------------------------------

func TestScenarios_ListsBuiltins(t *testing.T) {
	out, err := runCLI(t, "scenarios")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"nsclc", "breast-idc"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %s", want, out)
		}
	}
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func testApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.Load(nil, "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.RateLimitRPS = 0
	return &app{cfg: cfg, logger: zerolog.Nop(), logOut: io.Discard, out: io.Discard}
}

func TestServer_CorpusAndMetrics(t *testing.T) {
	a := testApp(t)
	e := a.newServer(telemetry.NewMetrics(false))

	req := httptest.NewRequest(http.MethodGet, "/sandbox/corpus?seed=42&filler=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Seed") != "42" {
		t.Errorf("expected X-Seed 42, got %q", rec.Header().Get("X-Seed"))
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("expected no-store on sandbox responses")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected a request id")
	}
	var docs []document.PatientDoc
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decode corpus: %v", err)
	}
	if len(docs) != 5 {
		t.Fatalf("expected 5 patients, got %d", len(docs))
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ehrsynth_corpora_generated_total 1") {
		t.Errorf("expected one corpus recorded, got %s", rec.Body.String())
	}
}

func TestServer_Health(t *testing.T) {
	e := testApp(t).newServer(telemetry.NewMetrics(false))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_UnknownScenario(t *testing.T) {
	e := testApp(t).newServer(telemetry.NewMetrics(false))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sandbox/corpus?scenario=melanoma", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
