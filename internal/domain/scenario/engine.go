package scenario

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aclis/ehrsynth/internal/domain/codes"
	"github.com/aclis/ehrsynth/internal/domain/record"
)

// Rand is the random draw sequence consumed by the engine. The sandbox
// Source implements it; tests may supply their own.
type Rand interface {
	IntRange(lo, hi int) int
	FloatRange(lo, hi float64) float64
	Pick(pool []string) string
	Hex(n int) string
}

var errNoMalignancy = errors.New("no malignancy established before genomic profile")

const placeholderImage = "https://via.placeholder.com/400x300/111827/6B7280?text="

// Engine builds patients from templates. It is not safe for concurrent use
// because it shares one draw sequence.
type Engine struct {
	rnd    Rand
	now    time.Time
	logger zerolog.Logger
}

// NewEngine returns an engine drawing from rnd with now as the synthesis
// date.
func NewEngine(rnd Rand, now time.Time, logger zerolog.Logger) *Engine {
	return &Engine{rnd: rnd, now: now.UTC(), logger: logger}
}

// Now returns the synthesis instant.
func (e *Engine) Now() time.Time { return e.now }

// journeyState carries the outputs of earlier encounters that later ones
// must honor.
type journeyState struct {
	patient    *record.Patient
	outcomes   map[string]*outcome
	malignancy *codes.Concept
	driver     string
}

type outcome struct {
	recommends string
	site       string
	confidence int
}

// Synthesize validates t and builds one coherent patient from it.
func (e *Engine) Synthesize(t *Template) (*record.Patient, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	spec := t.Patient
	id := fmt.Sprintf("%s-%s", spec.IDPrefix, e.rnd.Hex(8))
	dob := e.now.AddDate(0, 0, -spec.AgeYears*365)
	st := &journeyState{
		patient:  record.NewPatient(id, spec.Name, dob, spec.Sex, e.rnd.Pick(record.BloodTypes)),
		outcomes: make(map[string]*outcome, len(t.Encounters)),
	}
	if t.Genomics != nil {
		st.driver = t.Genomics.Driver.Gene
	}

	for i := range t.Encounters {
		if err := e.encounter(st, t, i); err != nil {
			return nil, fmt.Errorf("synthesize %s: encounter %s: %w", t.Name, t.Encounters[i].Key, err)
		}
	}
	if t.Genomics != nil {
		if st.malignancy == nil {
			return nil, &ConfigError{Template: t.Name, Step: "genomics", Err: errNoMalignancy}
		}
		if err := st.patient.AttachGenomics(e.genomics(t.Genomics)); err != nil {
			return nil, fmt.Errorf("synthesize %s: %w", t.Name, err)
		}
	}
	if t.Wearable != nil {
		st.patient.Wearable = e.wearable(t.Wearable)
	}

	if err := st.patient.Validate(); err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", t.Name, err)
	}
	if err := CheckCoherence(st.patient); err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", t.Name, err)
	}

	e.logger.Debug().
		Str("scenario", t.Name).
		Str("patient_id", st.patient.ID).
		Int("encounters", len(st.patient.Encounters)).
		Msg("scenario synthesized")
	return st.patient, nil
}

func (e *Engine) encounter(st *journeyState, t *Template, idx int) error {
	spec := &t.Encounters[idx]
	p := st.patient
	date := e.now.AddDate(0, 0, -spec.DaysAgo)
	enc := record.NewEncounter(record.EncounterID(p.ID, idx), p.ID, date, spec.Type, spec.ChiefComplaint)
	out := &outcome{}

	var pred *outcome
	if spec.FollowUp != "" {
		pred = st.outcomes[spec.FollowUp]
	}

	for _, k := range spec.Diagnoses {
		c, err := codes.Diagnosis(k)
		if err != nil {
			return err
		}
		enc.AddDiagnosis(c)
	}
	for _, k := range spec.Medications {
		m, err := codes.Drug(k)
		if err != nil {
			return err
		}
		enc.AddMedication(m)
	}
	for _, k := range spec.Procedures {
		if err := addProcedure(enc, k); err != nil {
			return err
		}
	}
	if pred != nil {
		if err := addProcedure(enc, pred.recommends); err != nil {
			return err
		}
	}

	if v := spec.Vitals; v != nil {
		enc.AddVitals(record.Vitals{
			Timestamp: enc.Date.Add(time.Duration(v.AtHour) * time.Hour),
			HR:        e.draw(v.HR),
			BP:        fmt.Sprintf("%d/%d", e.draw(v.Systolic), e.draw(v.Diastolic)),
			SpO2:      e.draw(v.SpO2),
		})
	}

	if spec.Imaging != nil {
		if err := e.imaging(enc, spec.Imaging, pred, out); err != nil {
			return err
		}
	}
	if spec.Pathology != nil {
		if err := e.pathology(enc, spec.Pathology, st.driver); err != nil {
			return err
		}
	}
	for _, l := range spec.Labs {
		lab, err := e.lab(l)
		if err != nil {
			return err
		}
		enc.AddLab(lab)
	}

	if spec.EstablishesMalignancy {
		dx := enc.Diagnoses[0]
		st.malignancy = &dx
	}
	if err := p.AddEncounter(enc); err != nil {
		return err
	}
	st.outcomes[spec.Key] = out
	return nil
}

func (e *Engine) imaging(enc *record.Encounter, spec *ImagingSpec, pred *outcome, out *outcome) error {
	modality, site, floor := spec.Modality, spec.Site, spec.Confidence.Min
	if pred != nil {
		if modality == "" {
			modality = pred.recommends
		}
		if site == "" {
			site = pred.site
		}
		floor = max(floor, pred.confidence)
	}
	if err := addProcedure(enc, modality); err != nil {
		return err
	}
	confidence := clampPercent(e.rnd.IntRange(floor, spec.Confidence.Max))

	ai := &record.AIAnalysis{
		Provider: spec.Provider,
		Logo:     spec.Logo,
		Findings: []record.Finding{{
			Label:      fmt.Sprintf("%s (%s)", spec.Finding, site),
			Site:       site,
			Confidence: confidence,
			Coordinates: []record.Coordinate{{
				Top:  fmt.Sprintf("%d%%", e.rnd.IntRange(30, 45)),
				Left: fmt.Sprintf("%d%%", e.rnd.IntRange(50, 65)),
			}},
		}},
	}
	if spec.ContradictionAlert != "" {
		alert := spec.ContradictionAlert
		ai.ContradictionAlert = &alert
	}

	study := record.ImagingStudy{
		ID:       "IMG-" + e.rnd.Hex(6),
		Type:     modality,
		Date:     enc.Date,
		Report:   strings.ReplaceAll(spec.Report, SitePlaceholder, site),
		ImageURL: placeholderImage + url.QueryEscape(modality),
		FollowUp: spec.Recommends,
		AI:       ai,
	}
	if err := enc.AddImaging(study); err != nil {
		return err
	}

	out.recommends = spec.Recommends
	out.site = site
	out.confidence = confidence
	return nil
}

func (e *Engine) pathology(enc *record.Encounter, spec *PathologySpec, driver string) error {
	var insight *string
	if spec.Insight != "" {
		s := strings.ReplaceAll(spec.Insight, GenePlaceholder, driver)
		insight = &s
	}
	return enc.AddPathology(record.PathologyReport{
		ID:       "PATH-" + e.rnd.Hex(6),
		Date:     enc.Date.AddDate(0, 0, spec.LagDays),
		Specimen: spec.Specimen,
		Report:   spec.Report,
		AI: &record.AIAnalysis{
			Provider: spec.Provider,
			Logo:     spec.Logo,
			Findings: []record.Finding{{
				Label:      spec.Finding,
				Confidence: clampPercent(e.draw(spec.Confidence)),
			}},
			PrognosticInsight: insight,
		},
	})
}

func (e *Engine) lab(spec LabSpec) (record.LabResult, error) {
	test, err := codes.Lab(spec.Test)
	if err != nil {
		return record.LabResult{}, err
	}
	if !test.Numeric() {
		return record.NewTextLab(spec.Test, spec.Text, spec.Status)
	}
	v := record.RoundLab(e.rnd.FloatRange(spec.Value.Min, spec.Value.Max))
	v = math.Max(spec.Value.Min, math.Min(spec.Value.Max, v))
	lab, err := record.NewNumericLab(spec.Test, v)
	if err != nil {
		return record.LabResult{}, err
	}
	if spec.Expect != "" && lab.Status != spec.Expect {
		return record.LabResult{}, fmt.Errorf("%w: lab %s drew %s, classified %s, expected %s",
			ErrConfiguration, spec.Test, lab.Value, lab.Status, spec.Expect)
	}
	return lab, nil
}

func (e *Engine) genomics(spec *GenomicSpec) *record.GenomicProfile {
	return &record.GenomicProfile{
		Prognosis: record.Prognosis{
			Model:           spec.Model,
			RiskScore:       e.draw(spec.RiskScore),
			StagePrediction: spec.StagePrediction,
			Confidence:      clampPercent(e.draw(spec.Confidence)),
			KeyFactors:      spec.KeyFactors(),
		},
		Mutations:      spec.Mutations(),
		SuggestedTests: append([]record.GenomicTest(nil), spec.SuggestedTests...),
	}
}

// wearable builds spec.Days consecutive samples ending on the synthesis
// date. Step counts drift downward with the day index.
func (e *Engine) wearable(spec *WearableSpec) []record.WearableSample {
	end := record.Day(e.now)
	out := make([]record.WearableSample, 0, spec.Days)
	for i := 0; i < spec.Days; i++ {
		steps := e.rnd.IntRange(spec.StepsLow, spec.StepsHigh) - i*spec.DailyDrift
		out = append(out, record.WearableSample{
			Date:       end.AddDate(0, 0, i-spec.Days+1),
			Steps:      max(steps, 0),
			AvgHR:      e.draw(spec.HR),
			SleepHours: math.Round(e.rnd.FloatRange(spec.Sleep.Min, spec.Sleep.Max)*10) / 10,
		})
	}
	return out
}

func (e *Engine) draw(env IntEnvelope) int { return e.rnd.IntRange(env.Min, env.Max) }

func addProcedure(enc *record.Encounter, key string) error {
	c, err := codes.Procedure(key)
	if err != nil {
		return err
	}
	if !enc.HasProcedure(c.Code) {
		enc.AddProcedure(c)
	}
	return nil
}

func clampPercent(v int) int { return min(max(v, 0), 100) }
