package record

import (
	"fmt"
	"time"

	"github.com/aclis/ehrsynth/internal/domain/codes"
)

// EncounterType classifies an encounter.
type EncounterType string

const (
	EncounterOutpatient EncounterType = "Outpatient"
	EncounterInpatient  EncounterType = "Inpatient"
	EncounterEmergency  EncounterType = "Emergency"
)

// Valid reports whether t is one of the known encounter types.
func (t EncounterType) Valid() bool {
	switch t {
	case EncounterOutpatient, EncounterInpatient, EncounterEmergency:
		return true
	}
	return false
}

// Vitals is one point-in-time vital signs reading.
type Vitals struct {
	Timestamp time.Time
	HR        int
	BP        string
	SpO2      int
}

// Encounter is one clinical visit or stay.
type Encounter struct {
	ID             string
	PatientID      string
	Date           time.Time
	Type           EncounterType
	ChiefComplaint string

	Diagnoses   []codes.Concept
	Procedures  []codes.Concept
	Medications []codes.Medication
	Vitals      []Vitals
	Labs        []LabResult
	Imaging     []ImagingStudy
	Pathology   []PathologyReport
}

// EncounterID derives "E-<last four of patient id>-NN" for the encounter at
// zero-based position idx. Shorter patient ids are used whole.
func EncounterID(patientID string, idx int) string {
	tail := patientID
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	return fmt.Sprintf("E-%s-%02d", tail, idx+1)
}

// NewEncounter returns an empty encounter dated on date's calendar day.
func NewEncounter(id, patientID string, date time.Time, typ EncounterType, complaint string) *Encounter {
	return &Encounter{
		ID:             id,
		PatientID:      patientID,
		Date:           Day(date),
		Type:           typ,
		ChiefComplaint: complaint,
	}
}

func (e *Encounter) AddDiagnosis(c codes.Concept)     { e.Diagnoses = append(e.Diagnoses, c) }
func (e *Encounter) AddProcedure(c codes.Concept)     { e.Procedures = append(e.Procedures, c) }
func (e *Encounter) AddMedication(m codes.Medication) { e.Medications = append(e.Medications, m) }
func (e *Encounter) AddVitals(v Vitals)               { e.Vitals = append(e.Vitals, v) }
func (e *Encounter) AddLab(l LabResult)               { e.Labs = append(e.Labs, l) }

// AddImaging appends a study. Studies cannot predate the encounter.
func (e *Encounter) AddImaging(s ImagingStudy) error {
	if Day(s.Date).Before(e.Date) {
		return fmt.Errorf("%w: imaging %s dated before encounter %s", ErrInvariant, s.ID, e.ID)
	}
	e.Imaging = append(e.Imaging, s)
	return nil
}

// AddPathology appends a report. Reports cannot predate the encounter.
func (e *Encounter) AddPathology(r PathologyReport) error {
	if Day(r.Date).Before(e.Date) {
		return fmt.Errorf("%w: pathology %s dated before encounter %s", ErrInvariant, r.ID, e.ID)
	}
	e.Pathology = append(e.Pathology, r)
	return nil
}

// HasProcedure reports whether a procedure with the given CPT code was
// performed during the encounter.
func (e *Encounter) HasProcedure(code string) bool {
	for _, p := range e.Procedures {
		if p.Code == code {
			return true
		}
	}
	return false
}

// HasDiagnosis reports whether the encounter records the given ICD-10 code.
func (e *Encounter) HasDiagnosis(code string) bool {
	for _, d := range e.Diagnoses {
		if d.Code == code {
			return true
		}
	}
	return false
}

// CriticalLabs returns the labs flagged Critical.
func (e *Encounter) CriticalLabs() []LabResult {
	var out []LabResult
	for _, l := range e.Labs {
		if l.Status == LabCritical {
			out = append(out, l)
		}
	}
	return out
}
