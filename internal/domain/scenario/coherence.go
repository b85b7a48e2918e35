package scenario

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aclis/ehrsynth/internal/domain/codes"
	"github.com/aclis/ehrsynth/internal/domain/record"
)

// ErrIncoherent is wrapped when a synthesized journey breaks its causal
// chain.
var ErrIncoherent = errors.New("journey is not coherent")

// CheckCoherence verifies the cross-encounter links of a synthesized
// journey, all joined:
//
//   - encounter dates strictly increase;
//   - every imaging recommendation is performed by a later encounter;
//   - a study performing an earlier recommendation images the same site
//     with no lower detection confidence;
//   - pathology reports are dated after their encounter;
//   - a genomic profile follows a malignant (ICD-10 C) diagnosis, and any
//     gene named by a pathology insight is in its mutation list.
//
// Filler records do not promise any of this.
func CheckCoherence(p *record.Patient) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrIncoherent}, args...)...))
	}

	// open recommendations by procedure key
	pending := make(map[string]*record.Finding)
	malignant := false
	for i, e := range p.Encounters {
		if i > 0 && !e.Date.After(p.Encounters[i-1].Date) {
			fail("encounter %s dated %s, not after %s", e.ID, e.Date.Format(time.DateOnly),
				p.Encounters[i-1].Date.Format(time.DateOnly))
		}
		for _, d := range e.Diagnoses {
			if strings.HasPrefix(d.Code, "C") {
				malignant = true
			}
		}
		for _, s := range e.Imaging {
			if s.FollowUp != "" && !performedAfter(p.Encounters[i+1:], s.FollowUp) {
				fail("recommendation %q from %s never performed", s.FollowUp, s.ID)
			}
			top := s.AI.TopFinding()
			if prev, ok := pending[s.Type]; ok {
				delete(pending, s.Type)
				switch {
				case prev == nil || top == nil:
				case top.Site != prev.Site:
					fail("imaging %s at %s does not follow up the earlier study at %s", s.ID, top.Site, prev.Site)
				case top.Confidence < prev.Confidence:
					fail("imaging %s confidence %d at %s below earlier %d", s.ID, top.Confidence, top.Site, prev.Confidence)
				}
			}
			if s.FollowUp != "" {
				pending[s.FollowUp] = top
			}
		}
		for _, r := range e.Pathology {
			if !r.Date.After(e.Date) {
				fail("pathology %s not dated after encounter %s", r.ID, e.ID)
			}
			if r.AI == nil || r.AI.PrognosticInsight == nil {
				continue
			}
			if p.Genomics == nil {
				fail("pathology %s carries an insight but the patient has no genomic profile", r.ID)
				continue
			}
			if !namesListedGene(*r.AI.PrognosticInsight, p.Genomics) {
				fail("pathology %s insight names no gene of the mutation list", r.ID)
			}
		}
	}
	if p.Genomics != nil && !malignant {
		fail("genomic profile without a malignant diagnosis")
	}
	return errors.Join(errs...)
}

// performedAfter reports whether any of encs performs the procedure
// registered under key.
func performedAfter(encs []*record.Encounter, key string) bool {
	c, err := codes.Procedure(key)
	if err != nil {
		return false
	}
	for _, e := range encs {
		if e.HasProcedure(c.Code) {
			return true
		}
	}
	return false
}

func namesListedGene(insight string, g *record.GenomicProfile) bool {
	for _, w := range strings.FieldsFunc(insight, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == ';' || r == '(' || r == ')'
	}) {
		if g.HasGene(w) {
			return true
		}
	}
	return false
}
