package record

import (
	"fmt"
	"time"
)

// Coordinate positions a finding overlay on the study image.
type Coordinate struct {
	Top  string
	Left string
}

// Finding is one AI-detected observation with a confidence in [0,100].
type Finding struct {
	Label       string
	Site        string
	Confidence  int
	Coordinates []Coordinate
}

// AIAnalysis is a third-party style annotation attached to an imaging study
// or a pathology report.
type AIAnalysis struct {
	Provider string
	Logo     string
	Findings []Finding

	// ContradictionAlert carries an external-literature cross-check. Nil
	// means the check ran and found nothing.
	ContradictionAlert *string
	PrognosticInsight  *string
}

// TopFinding returns the highest-confidence finding, or nil.
func (a *AIAnalysis) TopFinding() *Finding {
	if a == nil || len(a.Findings) == 0 {
		return nil
	}
	best := &a.Findings[0]
	for i := range a.Findings[1:] {
		if a.Findings[i+1].Confidence > best.Confidence {
			best = &a.Findings[i+1]
		}
	}
	return best
}

func (a *AIAnalysis) validate(owner string) error {
	if a == nil {
		return nil
	}
	if a.Provider == "" {
		return fmt.Errorf("%w: %s AI analysis has no provider", ErrInvariant, owner)
	}
	for _, f := range a.Findings {
		if f.Confidence < 0 || f.Confidence > 100 {
			return fmt.Errorf("%w: %s finding %q confidence %d outside [0,100]", ErrInvariant, owner, f.Label, f.Confidence)
		}
	}
	return nil
}

// ImagingStudy is one imaging exam with its report.
type ImagingStudy struct {
	ID       string
	Type     string
	Date     time.Time
	Report   string
	ImageURL string

	// FollowUp names the procedure the report recommends next, if any.
	FollowUp string
	AI       *AIAnalysis
}

// PathologyReport is the result of a specimen examination. Its date lags the
// procedure that produced the specimen.
type PathologyReport struct {
	ID       string
	Date     time.Time
	Specimen string
	Report   string
	AI       *AIAnalysis
}
