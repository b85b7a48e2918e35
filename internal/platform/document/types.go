// Package document is the versioned wire contract for generated records.
// Each entity has a pure encoding function (entity -> document) kept apart
// from the entity model so the JSON shape can evolve on its own schedule.
// Field names are snake_case; dates serialize as YYYY-MM-DD and timestamps
// as RFC 3339 in UTC with a trailing Z.
package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version identifies this wire shape. Bump it on any breaking field change.
const Version = "1"

// Date is a calendar day serialized as "YYYY-MM-DD".
type Date time.Time

// ParseDate parses a "YYYY-MM-DD" string as a UTC calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// Time returns the day at UTC midnight.
func (d Date) Time() time.Time { return time.Time(d) }

func (d Date) String() string { return time.Time(d).UTC().Format(time.DateOnly) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = Date(t)
	return nil
}

// Timestamp is an instant serialized as RFC 3339 UTC, e.g. "2026-03-15T08:00:00Z".
type Timestamp time.Time

// Time returns the instant.
func (ts Timestamp) Time() time.Time { return time.Time(ts) }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ts).UTC().Format(time.RFC3339))
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	*ts = Timestamp(t.UTC())
	return nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// PatientDoc is one element of the corpus array.
type PatientDoc struct {
	SchemaVersion  string         `json:"schema_version"`
	PatientID      string         `json:"patient_id"`
	Name           string         `json:"name"`
	Age            int            `json:"age"`
	Sex            string         `json:"sex"`
	DOB            Date           `json:"dob"`
	BloodType      string         `json:"blood_type"`
	Encounters     []EncounterDoc `json:"encounters"`
	GenomicProfile *GenomicDoc    `json:"genomic_profile"`
	WearableData   []WearableDoc  `json:"wearable_data"`
}

// CodeDoc is a coded concept (ICD-10 or CPT) with its description.
type CodeDoc struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MedicationDoc is a drug with its RxNorm code.
type MedicationDoc struct {
	RxCUI string `json:"rxcui"`
	Name  string `json:"name"`
}

// VitalsDoc is one vital signs reading; BP is "systolic/diastolic".
type VitalsDoc struct {
	Timestamp Timestamp `json:"timestamp"`
	HR        int       `json:"hr"`
	BP        string    `json:"bp"`
	SpO2      int       `json:"spo2"`
}

// EncounterDoc is one visit with everything recorded during it.
type EncounterDoc struct {
	EncounterID      string          `json:"encounter_id"`
	PatientID        string          `json:"patient_id"`
	Date             Date            `json:"date"`
	Type             string          `json:"type"`
	ChiefComplaint   string          `json:"chief_complaint"`
	Diagnoses        []CodeDoc       `json:"diagnoses"`
	Procedures       []CodeDoc       `json:"procedures"`
	Medications      []MedicationDoc `json:"medications"`
	Vitals           []VitalsDoc     `json:"vitals"`
	Labs             []LabDoc        `json:"labs"`
	ImagingStudies   []ImagingDoc    `json:"imaging_studies"`
	PathologyReports []PathologyDoc  `json:"pathology_reports"`
}

// LabDoc carries Value as a JSON number for numeric results and a string
// for qualitative ones. RefRange is null for qualitative results.
type LabDoc struct {
	TestName string  `json:"test_name"`
	LOINC    string  `json:"loinc"`
	Value    any     `json:"value"`
	Unit     *string `json:"unit"`
	RefRange *string `json:"ref_range"`
	Status   string  `json:"status"`
}

// CoordinateDoc places a finding on the image as CSS percentages.
type CoordinateDoc struct {
	Top  string `json:"top"`
	Left string `json:"left"`
}

// FindingDoc is one AI finding.
type FindingDoc struct {
	Finding     string          `json:"finding"`
	Site        string          `json:"site,omitempty"`
	Confidence  int             `json:"confidence"`
	Coordinates []CoordinateDoc `json:"coordinates,omitempty"`
}

// AIAnalysisDoc is the AI read attached to an imaging study or pathology
// report. ContradictionAlert is always present, possibly null.
type AIAnalysisDoc struct {
	Provider           string       `json:"provider"`
	Logo               string       `json:"logo"`
	Findings           []FindingDoc `json:"findings"`
	ContradictionAlert *string      `json:"contradiction_alert"`
	PrognosticInsight  *string      `json:"prognostic_insight,omitempty"`
}

// ImagingDoc is one imaging study.
type ImagingDoc struct {
	StudyID             string         `json:"study_id"`
	Type                string         `json:"type"`
	Date                Date           `json:"date"`
	Report              string         `json:"report"`
	ImageURL            string         `json:"image_url"`
	RecommendedFollowUp *string        `json:"recommended_follow_up"`
	AIAnalysis          *AIAnalysisDoc `json:"ai_analysis"`
}

// PathologyDoc is one pathology report.
type PathologyDoc struct {
	ReportID   string         `json:"report_id"`
	Date       Date           `json:"date"`
	Specimen   string         `json:"specimen"`
	Report     string         `json:"report"`
	AIAnalysis *AIAnalysisDoc `json:"ai_analysis"`
}

// PrognosisDoc is the genomic prognosis summary.
type PrognosisDoc struct {
	Model           string   `json:"model"`
	RiskScore       int      `json:"risk_score"`
	StagePrediction string   `json:"stage_prediction"`
	Confidence      int      `json:"confidence"`
	KeyFactors      []string `json:"key_factors"`
}

// MutationDoc is one variant. Type carries the germline/somatic origin.
type MutationDoc struct {
	Gene         string `json:"gene"`
	Variant      string `json:"variant"`
	Significance string `json:"significance"`
	Type         string `json:"type"`
}

// SuggestedTestDoc is a recommended follow-on genomic test.
type SuggestedTestDoc struct {
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Logo        string `json:"logo"`
	Description string `json:"description"`
}

// GenomicDoc is a patient's genomic profile.
type GenomicDoc struct {
	Prognosis      PrognosisDoc       `json:"prognosis"`
	Mutations      []MutationDoc      `json:"mutations"`
	SuggestedTests []SuggestedTestDoc `json:"suggested_tests"`
}

// WearableDoc is one day of activity data.
type WearableDoc struct {
	Date       Date    `json:"date"`
	Steps      int     `json:"steps"`
	AvgHR      int     `json:"avg_hr"`
	SleepHours float64 `json:"sleep_hours"`
}
