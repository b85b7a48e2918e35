// Package scenario synthesizes clinically coherent patient journeys from
// declarative templates. A Template is an ordered list of encounter
// specifications; each may name a predecessor whose imaging recommendation it
// must act on. The Engine threads the outputs of one encounter into the next
// so the resulting record reads as a single causal story.
package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aclis/ehrsynth/internal/domain/codes"
	"github.com/aclis/ehrsynth/internal/domain/record"
)

// ErrConfiguration is wrapped by every template defect. It is fatal: a
// malformed template is a programming error, not runtime data.
var ErrConfiguration = errors.New("scenario configuration error")

// ConfigError reports one template defect at a named step.
type ConfigError struct {
	Template string
	Step     string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("scenario %s: %s: %v", e.Template, e.Step, e.Err)
}

// Unwrap exposes both ErrConfiguration and the cause, so errors.Is matches
// either (for example codes.ErrNotFound).
func (e *ConfigError) Unwrap() []error { return []error{ErrConfiguration, e.Err} }

// GenePlaceholder is substituted with the driver gene in pathology insights.
const GenePlaceholder = "{gene}"

// SitePlaceholder is substituted with the anatomical site in imaging reports.
const SitePlaceholder = "{site}"

// IntEnvelope is an inclusive integer draw range.
type IntEnvelope struct {
	Min, Max int
}

// Fixed returns an envelope that always draws v.
func Fixed(v int) IntEnvelope { return IntEnvelope{v, v} }

func (e IntEnvelope) valid() bool { return e.Min <= e.Max }

func (e IntEnvelope) percent() bool { return e.valid() && e.Min >= 0 && e.Max <= 100 }

// FloatEnvelope is a float draw range.
type FloatEnvelope struct {
	Min, Max float64
}

// Template is a declarative patient journey.
type Template struct {
	Name        string
	Description string
	Patient     PatientSpec
	Encounters  []EncounterSpec
	Genomics    *GenomicSpec
	Wearable    *WearableSpec
}

// PatientSpec fixes the demographics of the showcase patient. The blood type
// is always drawn.
type PatientSpec struct {
	IDPrefix string
	Name     string
	AgeYears int
	Sex      string
}

// EncounterSpec describes one visit. Code lists hold reference-table keys.
type EncounterSpec struct {
	Key            string
	DaysAgo        int
	Type           record.EncounterType
	ChiefComplaint string
	Diagnoses      []string
	Medications    []string
	Procedures     []string

	// FollowUp names an earlier encounter whose imaging recommendation this
	// encounter performs. Imaging here inherits that study's site and cannot
	// report a lower confidence.
	FollowUp string

	Vitals    *VitalsSpec
	Imaging   *ImagingSpec
	Pathology *PathologySpec
	Labs      []LabSpec

	// RequireCritical demands that at least one lab is authored to come out
	// Critical.
	RequireCritical bool

	// EstablishesMalignancy marks the diagnostic encounter that a genomic
	// profile may follow.
	EstablishesMalignancy bool
}

type VitalsSpec struct {
	AtHour    int
	HR        IntEnvelope
	Systolic  IntEnvelope
	Diastolic IntEnvelope
	SpO2      IntEnvelope
}

// ImagingSpec describes one study. Modality and Site may be left empty on a
// follow-up encounter, in which case they come from the predecessor; when set
// they must match it.
type ImagingSpec struct {
	Modality           string
	Site               string
	Finding            string
	Report             string
	Recommends         string
	Confidence         IntEnvelope
	Provider           string
	Logo               string
	ContradictionAlert string
}

type PathologySpec struct {
	LagDays    int
	Specimen   string
	Report     string
	Finding    string
	Provider   string
	Logo       string
	Confidence IntEnvelope
	Insight    string
}

// LabSpec describes one lab draw. Numeric tests draw from Value; qualitative
// tests carry Text with an authored status. Expect, when set, is checked
// against both envelope bounds.
type LabSpec struct {
	Test   string
	Value  FloatEnvelope
	Text   string
	Status record.LabStatus
	Expect record.LabStatus
}

type GenomicSpec struct {
	Model           string
	RiskScore       IntEnvelope
	StagePrediction string
	Confidence      IntEnvelope
	Driver          record.Mutation
	Comutations     []record.Mutation
	ExtraFactors    []string
	SuggestedTests  []record.GenomicTest
}

// Mutations returns the driver followed by the co-mutations.
func (g *GenomicSpec) Mutations() []record.Mutation {
	return append([]record.Mutation{g.Driver}, g.Comutations...)
}

// KeyFactors returns the driver label followed by the extra factors.
func (g *GenomicSpec) KeyFactors() []string {
	return append([]string{g.Driver.Label()}, g.ExtraFactors...)
}

// WearableSpec shapes the trailing activity window. Steps are drawn in
// [StepsLow, StepsHigh] and lowered by DailyDrift per day index.
type WearableSpec struct {
	Days       int
	StepsLow   int
	StepsHigh  int
	DailyDrift int
	HR         IntEnvelope
	Sleep      FloatEnvelope
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the template for defects and returns all of them joined.
// Every returned error matches ErrConfiguration.
func (t *Template) Validate() error {
	v := &validator{name: t.Name}

	if t.Name == "" {
		v.fail("template", errors.New("name is required"))
	}
	v.patient(t.Patient)
	if len(t.Encounters) == 0 {
		v.fail("encounters", errors.New("at least one encounter is required"))
	}

	byKey := make(map[string]int, len(t.Encounters))
	malignant := false
	for i := range t.Encounters {
		e := &t.Encounters[i]
		step := fmt.Sprintf("encounter %d (%s)", i+1, e.Key)
		if e.Key == "" {
			v.fail(step, errors.New("key is required"))
		} else if _, dup := byKey[e.Key]; dup {
			v.fail(step, fmt.Errorf("duplicate key %q", e.Key))
		}
		if i > 0 && e.DaysAgo >= t.Encounters[i-1].DaysAgo {
			v.fail(step, fmt.Errorf("dated %d days ago, not after the previous encounter (%d days ago)",
				e.DaysAgo, t.Encounters[i-1].DaysAgo))
		}
		if e.DaysAgo < 0 {
			v.fail(step, errors.New("dated in the future"))
		}
		if !e.Type.Valid() {
			v.fail(step, fmt.Errorf("unknown encounter type %q", e.Type))
		}
		v.encounter(step, e, t, byKey)
		byKey[e.Key] = i
		if e.EstablishesMalignancy {
			if len(e.Diagnoses) == 0 {
				v.fail(step, errors.New("establishes malignancy without a diagnosis"))
			}
			malignant = true
		}
	}

	if t.Genomics != nil {
		if !malignant {
			v.fail("genomics", errors.New("no encounter establishes the malignancy a genomic profile follows"))
		}
		v.genomics(t.Genomics)
	}
	for i := range t.Encounters {
		p := t.Encounters[i].Pathology
		if p != nil && strings.Contains(p.Insight, GenePlaceholder) && t.Genomics == nil {
			v.fail("encounter "+t.Encounters[i].Key, errors.New("pathology insight names a gene but the template has no genomics"))
		}
	}
	if t.Wearable != nil {
		v.wearable(t.Wearable)
	}
	return errors.Join(v.errs...)
}

type validator struct {
	name string
	errs []error
}

func (v *validator) fail(step string, err error) {
	v.errs = append(v.errs, &ConfigError{Template: v.name, Step: step, Err: err})
}

func (v *validator) patient(p PatientSpec) {
	if p.IDPrefix == "" || p.Name == "" {
		v.fail("patient", errors.New("id prefix and name are required"))
	}
	if p.AgeYears <= 0 {
		v.fail("patient", fmt.Errorf("age %d must be positive", p.AgeYears))
	}
	if p.Sex != record.SexMale && p.Sex != record.SexFemale {
		v.fail("patient", fmt.Errorf("unknown sex %q", p.Sex))
	}
}

func (v *validator) encounter(step string, e *EncounterSpec, t *Template, byKey map[string]int) {
	for _, k := range e.Diagnoses {
		if _, err := codes.Diagnosis(k); err != nil {
			v.fail(step, err)
		}
	}
	for _, k := range e.Procedures {
		if _, err := codes.Procedure(k); err != nil {
			v.fail(step, err)
		}
	}
	for _, k := range e.Medications {
		if _, err := codes.Drug(k); err != nil {
			v.fail(step, err)
			continue
		}
		indicated := false
		for _, d := range e.Diagnoses {
			if codes.IndicatedFor(d, k) {
				indicated = true
				break
			}
		}
		if !indicated {
			v.fail(step, fmt.Errorf("medication %q is not indicated for any diagnosis of the encounter", k))
		}
	}

	var pred *ImagingSpec
	if e.FollowUp != "" {
		idx, ok := byKey[e.FollowUp]
		switch {
		case !ok:
			v.fail(step, fmt.Errorf("follow-up of unknown or later encounter %q", e.FollowUp))
		case t.Encounters[idx].Imaging == nil || t.Encounters[idx].Imaging.Recommends == "":
			v.fail(step, fmt.Errorf("follow-up of %q, which recommends nothing", e.FollowUp))
		default:
			pred = t.Encounters[idx].Imaging
		}
	}

	if e.Vitals != nil {
		vs := e.Vitals
		if vs.AtHour < 0 || vs.AtHour > 23 {
			v.fail(step, fmt.Errorf("vitals hour %d outside [0,23]", vs.AtHour))
		}
		if !vs.HR.valid() || !vs.Systolic.valid() || !vs.Diastolic.valid() || !vs.SpO2.percent() {
			v.fail(step, errors.New("invalid vitals envelope"))
		}
	}

	if im := e.Imaging; im != nil {
		if im.Modality == "" && pred == nil {
			v.fail(step, errors.New("imaging has no modality and no follow-up to inherit one from"))
		}
		if im.Modality != "" {
			if _, err := codes.Procedure(im.Modality); err != nil {
				v.fail(step, err)
			}
		}
		if pred != nil && im.Modality != "" && im.Modality != pred.Recommends {
			v.fail(step, fmt.Errorf("imaging modality %q does not perform the recommended %q", im.Modality, pred.Recommends))
		}
		if im.Site == "" && pred == nil {
			v.fail(step, errors.New("imaging has no site and no follow-up to inherit one from"))
		}
		if pred != nil && im.Site != "" && im.Site != pred.Site {
			v.fail(step, fmt.Errorf("imaging site %q differs from the followed-up site %q", im.Site, pred.Site))
		}
		if im.Recommends != "" {
			if _, err := codes.Procedure(im.Recommends); err != nil {
				v.fail(step, err)
			}
		}
		if im.Provider == "" || im.Finding == "" {
			v.fail(step, errors.New("imaging AI provider and finding are required"))
		}
		if !im.Confidence.percent() {
			v.fail(step, fmt.Errorf("imaging confidence envelope %v outside [0,100]", im.Confidence))
		}
		if pred != nil && im.Confidence.Max < pred.Confidence.Max {
			v.fail(step, fmt.Errorf("imaging confidence ceiling %d below predecessor's %d", im.Confidence.Max, pred.Confidence.Max))
		}
	}

	if p := e.Pathology; p != nil {
		if p.LagDays < 1 {
			v.fail(step, fmt.Errorf("pathology lag %d must be at least one day", p.LagDays))
		}
		if p.Provider == "" || p.Finding == "" {
			v.fail(step, errors.New("pathology AI provider and finding are required"))
		}
		if !p.Confidence.percent() {
			v.fail(step, fmt.Errorf("pathology confidence envelope %v outside [0,100]", p.Confidence))
		}
	}

	critical := false
	for _, l := range e.Labs {
		test, err := codes.Lab(l.Test)
		if err != nil {
			v.fail(step, err)
			continue
		}
		if !test.Numeric() {
			if l.Text == "" || l.Status == "" {
				v.fail(step, fmt.Errorf("qualitative lab %q needs text and status", l.Test))
			}
			if l.Status == record.LabCritical {
				critical = true
			}
			continue
		}
		if l.Value.Min > l.Value.Max {
			v.fail(step, fmt.Errorf("lab %q envelope inverted", l.Test))
			continue
		}
		if !onGrid(l.Value.Min) || !onGrid(l.Value.Max) {
			v.fail(step, fmt.Errorf("lab %q envelope [%g,%g] bounds must have at most one decimal",
				l.Test, l.Value.Min, l.Value.Max))
			continue
		}
		if l.Expect != "" {
			lo := record.Classify(l.Value.Min, *test.Range)
			hi := record.Classify(l.Value.Max, *test.Range)
			if lo != l.Expect || hi != l.Expect || !sameSide(l.Value, *test.Range) {
				v.fail(step, fmt.Errorf("lab %q envelope [%g,%g] does not always classify %s",
					l.Test, l.Value.Min, l.Value.Max, l.Expect))
			}
			if l.Expect == record.LabCritical {
				critical = true
			}
		}
	}
	if e.RequireCritical && !critical {
		v.fail(step, errors.New("lab panel has no value guaranteed to be Critical"))
	}
}

// onGrid reports whether x is representable as a reported lab value. Drawn
// values are rounded to one decimal, so only on-grid bounds are reachable.
func onGrid(x float64) bool { return record.RoundLab(x) == x }

// sameSide reports whether both ends of env lie on the same side of r, so a
// status shared by the endpoints holds across the envelope.
func sameSide(env FloatEnvelope, r codes.RefRange) bool {
	side := func(x float64) int {
		switch {
		case x < r.Low:
			return -1
		case x > r.High:
			return 1
		}
		return 0
	}
	return side(env.Min) == side(env.Max)
}

func (v *validator) genomics(g *GenomicSpec) {
	if g.Model == "" || g.StagePrediction == "" {
		v.fail("genomics", errors.New("model and stage prediction are required"))
	}
	if g.Driver.Gene == "" || g.Driver.Variant == "" {
		v.fail("genomics", errors.New("driver mutation is required"))
	}
	if !g.Confidence.percent() || !g.RiskScore.percent() {
		v.fail("genomics", errors.New("risk score and confidence envelopes must lie in [0,100]"))
	}
	profile := record.GenomicProfile{
		Prognosis: record.Prognosis{Confidence: g.Confidence.Min, KeyFactors: g.KeyFactors()},
		Mutations: g.Mutations(),
	}
	if err := profile.Validate(); err != nil {
		v.fail("genomics", err)
	}
}

func (v *validator) wearable(w *WearableSpec) {
	if w.Days <= 0 {
		v.fail("wearable", fmt.Errorf("window of %d days", w.Days))
	}
	if w.StepsLow < 0 || w.StepsLow > w.StepsHigh || w.DailyDrift < 0 {
		v.fail("wearable", errors.New("invalid step envelope"))
	}
	if !w.HR.valid() || w.Sleep.Min > w.Sleep.Max {
		v.fail("wearable", errors.New("invalid heart rate or sleep envelope"))
	}
}
