package record

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aclis/ehrsynth/internal/domain/codes"
)

// LabStatus classifies a lab value against its reference range.
type LabStatus string

const (
	LabNormal   LabStatus = "Normal"
	LabAbnormal LabStatus = "Abnormal"
	LabCritical LabStatus = "Critical"
)

// CriticalMargin is the fraction past a violated bound at which an abnormal
// value becomes critical.
const CriticalMargin = 0.2

// Classify derives the status of v against r.
func Classify(v float64, r codes.RefRange) LabStatus {
	switch {
	case r.Contains(v):
		return LabNormal
	case v > r.High:
		if v > r.High+math.Abs(r.High)*CriticalMargin {
			return LabCritical
		}
	case v < r.Low:
		if v < r.Low-math.Abs(r.Low)*CriticalMargin {
			return LabCritical
		}
	}
	return LabAbnormal
}

// LabValue holds either a numeric or a textual result.
type LabValue struct {
	Number *float64
	Text   string
}

// IsNumeric reports whether the value is numeric.
func (v LabValue) IsNumeric() bool { return v.Number != nil }

func (v LabValue) String() string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	}
	return v.Text
}

// LabResult is one reported lab value.
type LabResult struct {
	TestName string
	LOINC    string
	Value    LabValue
	Unit     string
	Range    *codes.RefRange
	Status   LabStatus
}

// RoundLab rounds v to the one decimal that numeric results report.
func RoundLab(v float64) float64 { return math.Round(v*10) / 10 }

// NewNumericLab builds a numeric result for the lab registered under key.
// The status is computed from value exactly as given; callers round with
// RoundLab first.
func NewNumericLab(key string, value float64) (LabResult, error) {
	test, err := codes.Lab(key)
	if err != nil {
		return LabResult{}, err
	}
	if !test.Numeric() {
		return LabResult{}, fmt.Errorf("lab %q has no numeric reference range", key)
	}
	v := value
	rng := *test.Range
	return LabResult{
		TestName: key,
		LOINC:    test.LOINC,
		Value:    LabValue{Number: &v},
		Unit:     test.Unit,
		Range:    &rng,
		Status:   Classify(v, rng),
	}, nil
}

// NewTextLab builds a qualitative result with an authored status.
func NewTextLab(key, text string, status LabStatus) (LabResult, error) {
	test, err := codes.Lab(key)
	if err != nil {
		return LabResult{}, err
	}
	return LabResult{
		TestName: key,
		LOINC:    test.LOINC,
		Value:    LabValue{Text: text},
		Unit:     test.Unit,
		Status:   status,
	}, nil
}

// Consistent reports whether the status agrees with the value. Results
// without a numeric value and range are always consistent.
func (l LabResult) Consistent() bool {
	if l.Value.Number == nil || l.Range == nil {
		return true
	}
	in := l.Range.Contains(*l.Value.Number)
	if in {
		return l.Status == LabNormal
	}
	return l.Status == LabAbnormal || l.Status == LabCritical
}
