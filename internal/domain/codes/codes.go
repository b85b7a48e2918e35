// Package codes holds the static clinical code reference tables used by the
// synthesis engine and the filler generator. Tables map a scenario-meaningful
// name (for example "NSCLC" or "Chest CT") to its standardized code and
// descriptive metadata. The tables are process-wide configuration: a lookup
// of an undefined key is a defect in the caller, reported as ErrNotFound.
package codes

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrNotFound is returned when a key is absent from a reference table.
var ErrNotFound = errors.New("code reference not found")

// Table names used in LookupError.
const (
	TableDiagnoses   = "diagnoses"
	TableProcedures  = "procedures"
	TableMedications = "medications"
	TableLabTests    = "lab_tests"
)

// LookupError reports which table and key a failed lookup referenced.
type LookupError struct {
	Table string
	Key   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: no entry for %q", e.Table, e.Key)
}

// Is makes errors.Is(err, ErrNotFound) succeed for any LookupError.
func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound
}

// ---------------------------------------------------------------------------
// Reference types
// ---------------------------------------------------------------------------

// Concept is a coded diagnosis (ICD-10) or procedure (CPT).
type Concept struct {
	Code        string
	Description string
}

// Medication is an RxNorm-coded drug product.
type Medication struct {
	RxCUI string
	Name  string
}

// RefRange is an inclusive numeric reference interval.
type RefRange struct {
	Low  float64
	High float64
}

// Contains reports whether v lies inside the interval.
func (r RefRange) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// String renders the range as "low-high", e.g. "3.5-5.2".
func (r RefRange) String() string {
	return formatBound(r.Low) + "-" + formatBound(r.High)
}

func formatBound(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for _, c := range s {
		if c == '.' {
			return s
		}
	}
	return s + ".0"
}

// LabTest is a LOINC-coded laboratory test. Unit and Range are empty for
// qualitative tests such as mutation assays.
type LabTest struct {
	LOINC string
	Unit  string
	Range *RefRange
}

// Numeric reports whether the test has a numeric reference range.
func (l LabTest) Numeric() bool { return l.Range != nil }

// ---------------------------------------------------------------------------
// Tables
// ---------------------------------------------------------------------------

// Diagnoses maps a condition name to its ICD-10 code.
var Diagnoses = map[string]Concept{
	"NSCLC":           {"C34.11", "Malignant neoplasm of right upper lobe, bronchus or lung"},
	"Breast Cancer":   {"C50.411", "Malignant neoplasm of upper-outer quadrant of right female breast"},
	"Hypertension":    {"I10", "Essential (primary) hypertension"},
	"Hyperlipidemia":  {"E78.5", "Hyperlipidemia, unspecified"},
	"Type 2 Diabetes": {"E11.9", "Type 2 diabetes mellitus without complications"},
	"CAD":             {"I25.10", "Atherosclerotic heart disease of native coronary artery without angina pectoris"},
	"Pneumonia":       {"J18.9", "Pneumonia, unspecified organism"},
	"Asthma":          {"J45.909", "Unspecified asthma, uncomplicated"},
	"Hypothyroidism":  {"E03.9", "Hypothyroidism, unspecified"},
	"GERD":            {"K21.0", "Gastro-esophageal reflux disease with esophagitis"},
}

// Procedures maps a procedure name to its CPT code.
var Procedures = map[string]Concept{
	"Office Visit":        {"99214", "Office or other outpatient visit, established patient, 30-39 minutes"},
	"Chest X-ray":         {"71046", "Radiologic examination, chest; 2 views"},
	"Chest CT":            {"71260", "Computed tomography, thorax; with contrast material(s)"},
	"Bronchoscopy":        {"31622", "Bronchoscopy, rigid or flexible, with or without fluoroscopic guidance"},
	"Biopsy":              {"31625", "Bronchoscopy with bronchial or endobronchial biopsy"},
	"Screening Mammogram": {"77067", "Screening mammography, bilateral, including computer-aided detection"},
	"Breast Ultrasound":   {"76642", "Ultrasound, breast, unilateral, real time with image documentation, limited"},
	"Breast Biopsy":       {"19083", "Biopsy, breast, with placement of localization device, percutaneous; ultrasound guidance"},
	"ECG":                 {"93000", "Electrocardiogram, routine ECG with at least 12 leads"},
	"CBC":                 {"85025", "Complete blood count (CBC) with differential"},
	"Metabolic Panel":     {"80053", "Comprehensive metabolic panel"},
}

// Medications maps a drug name to its RxNorm concept.
var Medications = map[string]Medication{
	"Lisinopril":    {"203166", "Lisinopril 10 MG Oral Tablet"},
	"Atorvastatin":  {"200331", "Atorvastatin 20 MG Oral Tablet"},
	"Osimertinib":   {"1732461", "Osimertinib 80 MG Oral Tablet"},
	"Metformin":     {"860975", "Metformin hydrochloride 500 MG Extended Release Oral Tablet"},
	"Aspirin":       {"243670", "Aspirin 81 MG Oral Tablet"},
	"Amoxicillin":   {"308191", "Amoxicillin 875 MG Oral Tablet"},
	"Albuterol":     {"745679", "Albuterol 90 MCG/ACTUAT Metered Dose Inhaler"},
	"Levothyroxine": {"966222", "Levothyroxine Sodium 0.05 MG Oral Tablet"},
	"Omeprazole":    {"402014", "Omeprazole 20 MG Delayed Release Oral Capsule"},
	"Letrozole":     {"200064", "Letrozole 2.5 MG Oral Tablet"},
	"Metoprolol":    {"866924", "Metoprolol Tartrate 25 MG Oral Tablet"},
}

// LabTests maps a lab name to its LOINC code, unit and reference range.
var LabTests = map[string]LabTest{
	"Potassium":     {"2823-3", "mEq/L", &RefRange{3.5, 5.2}},
	"HbA1c":         {"4548-4", "%", &RefRange{4.0, 5.6}},
	"Creatinine":    {"2160-0", "mg/dL", &RefRange{0.6, 1.3}},
	"WBC":           {"6690-2", "x10^3/uL", &RefRange{4.5, 11.0}},
	"Hgb":           {"718-7", "g/dL", &RefRange{13.5, 17.5}},
	"CA 15-3":       {"6875-9", "U/mL", &RefRange{0, 30}},
	"EGFR Mutation": {"42800-2", "", nil},
}

// Indications lists, per diagnosis, the medications indicated for it. A
// diagnosis/medication pair attached to the same encounter must appear here.
var Indications = map[string][]string{
	"Hypertension":    {"Lisinopril", "Metoprolol"},
	"Hyperlipidemia":  {"Atorvastatin"},
	"Type 2 Diabetes": {"Metformin"},
	"CAD":             {"Aspirin", "Atorvastatin", "Metoprolol"},
	"Pneumonia":       {"Amoxicillin"},
	"Asthma":          {"Albuterol"},
	"Hypothyroidism":  {"Levothyroxine"},
	"GERD":            {"Omeprazole"},
	"NSCLC":           {"Osimertinib"},
	"Breast Cancer":   {"Letrozole"},
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// Diagnosis returns the ICD-10 concept registered under key.
func Diagnosis(key string) (Concept, error) {
	c, ok := Diagnoses[key]
	if !ok {
		return Concept{}, &LookupError{Table: TableDiagnoses, Key: key}
	}
	return c, nil
}

// Procedure returns the CPT concept registered under key.
func Procedure(key string) (Concept, error) {
	c, ok := Procedures[key]
	if !ok {
		return Concept{}, &LookupError{Table: TableProcedures, Key: key}
	}
	return c, nil
}

// Drug returns the RxNorm medication registered under key.
func Drug(key string) (Medication, error) {
	m, ok := Medications[key]
	if !ok {
		return Medication{}, &LookupError{Table: TableMedications, Key: key}
	}
	return m, nil
}

// Lab returns the lab test registered under key.
func Lab(key string) (LabTest, error) {
	l, ok := LabTests[key]
	if !ok {
		return LabTest{}, &LookupError{Table: TableLabTests, Key: key}
	}
	return l, nil
}

// IndicatedFor reports whether medication is indicated for diagnosis.
func IndicatedFor(diagnosis, medication string) bool {
	for _, m := range Indications[diagnosis] {
		if m == medication {
			return true
		}
	}
	return false
}

// IsDiagnosisCode reports whether code belongs to the diagnosis table.
func IsDiagnosisCode(code string) bool {
	for _, c := range Diagnoses {
		if c.Code == code {
			return true
		}
	}
	return false
}

// IsProcedureCode reports whether code belongs to the procedure table.
func IsProcedureCode(code string) bool {
	for _, c := range Procedures {
		if c.Code == code {
			return true
		}
	}
	return false
}

// IsMedicationCode reports whether rxcui belongs to the medication table.
func IsMedicationCode(rxcui string) bool {
	for _, m := range Medications {
		if m.RxCUI == rxcui {
			return true
		}
	}
	return false
}

// Keys returns the sorted keys of any reference table. Sorting keeps random
// draws over the tables reproducible for a fixed seed.
func Keys[V any](table map[string]V) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
