package sandbox

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aclis/ehrsynth/internal/domain/record"
	"github.com/aclis/ehrsynth/internal/domain/scenario"
	"github.com/aclis/ehrsynth/internal/platform/document"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the shape of a generated corpus.
type SeedConfig struct {
	// Seed drives every draw of the run. 0 picks a time-based seed.
	Seed int64 `json:"seed"`

	// Scenario names the built-in showcase journey placed first in the
	// corpus. Empty skips the showcase.
	Scenario string `json:"scenario"`

	// Roster lists the fixed filler patients; Filler adds drawn ones after.
	Roster []RosterEntry `json:"roster,omitempty"`
	Filler int           `json:"filler"`

	// Now is the synthesis date. Zero means time.Now.
	Now time.Time `json:"-"`
}

// DefaultSeedConfig returns the demo corpus: the NSCLC showcase followed by
// the default roster.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Scenario: "nsclc",
		Roster:   DefaultRoster,
	}
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// SeedResult summarizes a generation run.
type SeedResult struct {
	Seed             int64         `json:"seed"`
	Scenario         string        `json:"scenario,omitempty"`
	Patients         int           `json:"patients"`
	Showcase         int           `json:"showcase"`
	Filler           int           `json:"filler"`
	Encounters       int           `json:"encounters"`
	Labs             int           `json:"labs"`
	CriticalLabs     int           `json:"criticalLabs"`
	ImagingStudies   int           `json:"imagingStudies"`
	PathologyReports int           `json:"pathologyReports"`
	WearableSamples  int           `json:"wearableSamples"`
	Duration         time.Duration `json:"duration"`
}

// Corpus is the ordered output of a run: showcase first, then filler.
type Corpus struct {
	Patients    []*record.Patient
	GeneratedAt time.Time
}

// Documents encodes the corpus with ages computed at its generation time.
func (c *Corpus) Documents() []document.PatientDoc {
	return document.EncodePatients(c.Patients, c.GeneratedAt)
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder assembles one corpus from a single draw sequence. A Seeder is
// single-use and not safe for concurrent use.
type Seeder struct {
	config    SeedConfig
	source    *Source
	engine    *scenario.Engine
	generator *DataGenerator
	logger    zerolog.Logger
}

// NewSeeder creates a Seeder with the given config.
func NewSeeder(config SeedConfig, logger zerolog.Logger) *Seeder {
	now := config.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	src := NewSource(config.Seed)
	return &Seeder{
		config:    config,
		source:    src,
		engine:    scenario.NewEngine(src, now, logger),
		generator: NewDataGenerator(src, now),
		logger:    logger,
	}
}

// Seed returns the effective seed, useful to reproduce a time-seeded run.
func (s *Seeder) Seed() int64 { return s.source.Seed() }

// Generate builds the corpus. Template defects surface as errors matching
// scenario.ErrConfiguration.
func (s *Seeder) Generate() (*Corpus, *SeedResult, error) {
	start := time.Now()
	corpus := &Corpus{GeneratedAt: s.engine.Now()}
	result := &SeedResult{Seed: s.source.Seed(), Scenario: s.config.Scenario}

	if s.config.Filler < 0 {
		return nil, nil, fmt.Errorf("filler count %d is negative", s.config.Filler)
	}

	if s.config.Scenario != "" {
		tmpl, err := scenario.Lookup(s.config.Scenario)
		if err != nil {
			return nil, nil, err
		}
		p, err := s.engine.Synthesize(tmpl)
		if err != nil {
			return nil, nil, err
		}
		corpus.Patients = append(corpus.Patients, p)
		result.Showcase++
	}

	for _, entry := range s.config.Roster {
		p, err := s.generator.GenerateRosterPatient(entry)
		if err != nil {
			return nil, nil, err
		}
		corpus.Patients = append(corpus.Patients, p)
		result.Filler++
	}
	for i := 0; i < s.config.Filler; i++ {
		p, err := s.generator.GeneratePatient()
		if err != nil {
			return nil, nil, err
		}
		corpus.Patients = append(corpus.Patients, p)
		result.Filler++
	}

	for _, p := range corpus.Patients {
		if err := p.Validate(); err != nil {
			return nil, nil, fmt.Errorf("patient %s: %w", p.ID, err)
		}
		tally(result, p)
	}
	result.Patients = len(corpus.Patients)
	result.Duration = time.Since(start)

	s.logger.Info().
		Int64("seed", result.Seed).
		Str("scenario", result.Scenario).
		Int("patients", result.Patients).
		Int("encounters", result.Encounters).
		Dur("duration", result.Duration).
		Msg("corpus generated")
	return corpus, result, nil
}

func tally(r *SeedResult, p *record.Patient) {
	r.Encounters += len(p.Encounters)
	r.WearableSamples += len(p.Wearable)
	for _, e := range p.Encounters {
		r.Labs += len(e.Labs)
		r.CriticalLabs += len(e.CriticalLabs())
		r.ImagingStudies += len(e.Imaging)
		r.PathologyReports += len(e.Pathology)
	}
}
