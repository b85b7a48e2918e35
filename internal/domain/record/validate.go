package record

import (
	"errors"
	"fmt"

	"github.com/aclis/ehrsynth/internal/domain/codes"
)

// Validate checks every per-patient invariant of the entity model and
// returns all violations joined. It does not check cross-encounter narrative
// coherence, which only synthesized journeys promise.
func (p *Patient) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...))
	}

	if p.ID == "" {
		add("patient has no id")
	}
	if p.DOB.IsZero() {
		add("patient %s has no date of birth", p.ID)
	}

	seen := make(map[string]bool, len(p.Encounters))
	for i, e := range p.Encounters {
		if seen[e.ID] {
			add("duplicate encounter id %s", e.ID)
		}
		seen[e.ID] = true
		if e.PatientID != p.ID {
			add("encounter %s references patient %s", e.ID, e.PatientID)
		}
		if !e.Type.Valid() {
			add("encounter %s has unknown type %q", e.ID, e.Type)
		}
		if i > 0 && e.Date.Before(p.Encounters[i-1].Date) {
			add("encounter %s out of chronological order", e.ID)
		}
		for _, d := range e.Diagnoses {
			if !codes.IsDiagnosisCode(d.Code) {
				add("encounter %s diagnosis %s not in reference table", e.ID, d.Code)
			}
		}
		for _, pr := range e.Procedures {
			if !codes.IsProcedureCode(pr.Code) {
				add("encounter %s procedure %s not in reference table", e.ID, pr.Code)
			}
		}
		for _, m := range e.Medications {
			if !codes.IsMedicationCode(m.RxCUI) {
				add("encounter %s medication %s not in reference table", e.ID, m.RxCUI)
			}
		}
		for _, l := range e.Labs {
			if !l.Consistent() {
				add("encounter %s lab %s value %s marked %s against range %s",
					e.ID, l.TestName, l.Value, l.Status, l.Range)
			}
		}
		for _, s := range e.Imaging {
			if Day(s.Date).Before(e.Date) {
				add("imaging %s predates encounter %s", s.ID, e.ID)
			}
			if err := s.AI.validate("imaging " + s.ID); err != nil {
				errs = append(errs, err)
			}
		}
		for _, r := range e.Pathology {
			if Day(r.Date).Before(e.Date) {
				add("pathology %s predates encounter %s", r.ID, e.ID)
			}
			if err := r.AI.validate("pathology " + r.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if p.Genomics != nil {
		if err := p.Genomics.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ValidateWearable(p.Wearable); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
