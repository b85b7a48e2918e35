package sandbox

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/aclis/ehrsynth/internal/domain/codes"
	"github.com/aclis/ehrsynth/internal/domain/record"
)

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

var (
	fillerDiagnoses = []string{
		"Hypertension", "Hyperlipidemia", "Type 2 Diabetes", "CAD",
		"Pneumonia", "Asthma", "Hypothyroidism", "GERD",
	}

	fillerProcedures = []string{
		"Office Visit", "ECG", "CBC", "Metabolic Panel", "Chest X-ray",
	}

	fillerLabs = []string{
		"Potassium", "HbA1c", "Creatinine", "WBC", "Hgb",
	}

	encounterTypes = []string{
		string(record.EncounterOutpatient),
		string(record.EncounterInpatient),
		string(record.EncounterEmergency),
	}
)

// RosterEntry names a fixed filler patient and the condition they present
// with.
type RosterEntry struct {
	Name      string
	Diagnosis string
	Age       int
}

// DefaultRoster is the list-view population shipped with every corpus.
var DefaultRoster = []RosterEntry{
	{Name: "Jane Smith", Diagnosis: "Type 2 Diabetes", Age: 68},
	{Name: "Robert Brown", Diagnosis: "CAD", Age: 72},
	{Name: "Emily Jones", Diagnosis: "Pneumonia", Age: 55},
}

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces independent filler patients: 1-3 encounters each,
// every field drawn on its own from the reference tables. The records honor
// the entity invariants but tell no story.
type DataGenerator struct {
	src *Source
	now time.Time
}

// NewDataGenerator returns a generator drawing from src, dating encounters
// relative to now.
func NewDataGenerator(src *Source, now time.Time) *DataGenerator {
	return &DataGenerator{src: src, now: now.UTC()}
}

func (g *DataGenerator) patientID() string { return "ACLIS-" + g.src.Hex(8) }

// GenerateRosterPatient builds the roster patient e. Its first encounter
// presents with e.Diagnosis.
func (g *DataGenerator) GenerateRosterPatient(e RosterEntry) (*record.Patient, error) {
	if _, err := codes.Diagnosis(e.Diagnosis); err != nil {
		return nil, fmt.Errorf("roster patient %s: %w", e.Name, err)
	}
	return g.generate(e.Name, e.Age, g.src.Sex(), e.Diagnosis)
}

// GeneratePatient builds a filler patient with drawn demographics.
func (g *DataGenerator) GeneratePatient() (*record.Patient, error) {
	name := g.src.FirstName() + " " + g.src.LastName()
	return g.generate(name, g.src.IntRange(25, 85), g.src.Sex(), g.src.Pick(fillerDiagnoses))
}

func (g *DataGenerator) generate(name string, age int, sex, presenting string) (*record.Patient, error) {
	p := record.NewPatient(g.patientID(), name, g.now.AddDate(0, 0, -age*365), sex, g.src.Pick(record.BloodTypes))

	n := g.src.IntRange(1, 3)
	days := make([]int, n)
	for i := range days {
		days[i] = g.src.IntRange(5, 50)
	}
	// oldest first
	slices.Sort(days)
	slices.Reverse(days)

	for i, ago := range days {
		dx := presenting
		if i > 0 {
			dx = g.src.Pick(fillerDiagnoses)
		}
		enc, err := g.GenerateEncounter(p.ID, i, g.now.AddDate(0, 0, -ago), dx)
		if err != nil {
			return nil, fmt.Errorf("filler patient %s: %w", name, err)
		}
		if err := p.AddEncounter(enc); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// GenerateEncounter builds one independent encounter presenting with the
// diagnosis registered under dx.
func (g *DataGenerator) GenerateEncounter(patientID string, idx int, date time.Time, dx string) (*record.Encounter, error) {
	diagnosis, err := codes.Diagnosis(dx)
	if err != nil {
		return nil, err
	}
	typ := record.EncounterType(g.src.Pick(encounterTypes))
	enc := record.NewEncounter(record.EncounterID(patientID, idx), patientID, date, typ, diagnosis.Description)
	enc.AddDiagnosis(diagnosis)

	if meds := codes.Indications[dx]; len(meds) > 0 && g.src.Intn(2) == 0 {
		m, err := codes.Drug(g.src.Pick(meds))
		if err != nil {
			return nil, err
		}
		enc.AddMedication(m)
	}

	proc, err := codes.Procedure(g.src.Pick(fillerProcedures))
	if err != nil {
		return nil, err
	}
	enc.AddProcedure(proc)

	enc.AddVitals(record.Vitals{
		Timestamp: enc.Date.Add(time.Duration(g.src.IntRange(7, 18)) * time.Hour),
		HR:        g.src.IntRange(58, 104),
		BP:        fmt.Sprintf("%d/%d", g.src.IntRange(105, 165), g.src.IntRange(62, 98)),
		SpO2:      g.src.IntRange(92, 100),
	})

	for i, k := 0, g.src.IntRange(0, 2); i < k; i++ {
		lab, err := g.GenerateLab(g.src.Pick(fillerLabs))
		if err != nil {
			return nil, err
		}
		enc.AddLab(lab)
	}
	return enc, nil
}

// GenerateLab draws a value for the numeric test key from its reference
// range widened by 30% on each side, so some results come out abnormal.
// The status is computed, never drawn.
func (g *DataGenerator) GenerateLab(key string) (record.LabResult, error) {
	test, err := codes.Lab(key)
	if err != nil {
		return record.LabResult{}, err
	}
	if !test.Numeric() {
		return record.LabResult{}, fmt.Errorf("filler lab %q is not numeric", key)
	}
	span := test.Range.High - test.Range.Low
	v := g.src.FloatRange(test.Range.Low-0.3*span, test.Range.High+0.3*span)
	return record.NewNumericLab(key, record.RoundLab(math.Max(v, 0)))
}
