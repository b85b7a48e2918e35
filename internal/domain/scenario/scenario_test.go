package scenario_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclis/ehrsynth/internal/domain/codes"
	"github.com/aclis/ehrsynth/internal/domain/record"
	"github.com/aclis/ehrsynth/internal/domain/scenario"
	"github.com/aclis/ehrsynth/internal/platform/document"
	"github.com/aclis/ehrsynth/internal/platform/sandbox"
)

var testNow = time.Date(2026, 3, 15, 14, 0, 0, 0, time.UTC)

func synthesize(t *testing.T, rnd scenario.Rand, tmpl *scenario.Template) *record.Patient {
	t.Helper()
	p, err := scenario.NewEngine(rnd, testNow, zerolog.Nop()).Synthesize(tmpl)
	require.NoError(t, err)
	return p
}

// edgeRand always draws the low (or high) end of every envelope.
type edgeRand struct{ high bool }

func (r edgeRand) IntRange(lo, hi int) int {
	if r.high {
		return hi
	}
	return lo
}

func (r edgeRand) FloatRange(lo, hi float64) float64 {
	if r.high {
		return hi
	}
	return lo
}

func (r edgeRand) Pick(pool []string) string { return pool[0] }
func (r edgeRand) Hex(n int) string          { return strings.Repeat("a", n) }

// ---------------------------------------------------------------------------
// Showcase journey
// ---------------------------------------------------------------------------

func TestSynthesize_NSCLCJourney(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		p := synthesize(t, sandbox.NewSource(seed), scenario.NSCLC())

		require.Len(t, p.Encounters, 3)
		e1, e2, e3 := p.Encounters[0], p.Encounters[1], p.Encounters[2]

		assert.Equal(t, "John Doe", p.Name)
		assert.Equal(t, 45, p.Age(testNow))
		assert.Regexp(t, `^ACLIS-[0-9a-f]{8}$`, p.ID)
		assert.Equal(t, "E-"+p.ID[len(p.ID)-4:]+"-01", e1.ID)

		assert.True(t, e1.Date.Before(e2.Date), "encounter 1 must precede encounter 2")
		assert.True(t, e2.Date.Before(e3.Date), "encounter 2 must precede encounter 3")
		assert.Equal(t, record.Day(testNow).AddDate(0, 0, -30), e1.Date)

		// Encounter 2 performs what encounter 1 recommended, at the same site.
		require.Len(t, e1.Imaging, 1)
		require.Len(t, e2.Imaging, 1)
		assert.Equal(t, "Chest CT", e1.Imaging[0].FollowUp)
		assert.True(t, e2.HasProcedure("71260"))
		assert.Equal(t, "Chest CT", e2.Imaging[0].Type)
		f1, f2 := e1.Imaging[0].AI.TopFinding(), e2.Imaging[0].AI.TopFinding()
		assert.Equal(t, f1.Site, f2.Site)
		assert.GreaterOrEqual(t, f2.Confidence, f1.Confidence)
		assert.NotNil(t, e2.Imaging[0].AI.ContradictionAlert)
		assert.Nil(t, e1.Imaging[0].AI.ContradictionAlert)

		// Encounter 3 performs the biopsy and confirms malignancy.
		assert.True(t, e3.HasProcedure("31625"))
		assert.True(t, e3.HasDiagnosis("C34.11"))
		require.Len(t, e3.Pathology, 1)
		path := e3.Pathology[0]
		assert.True(t, path.Date.After(e3.Date))
		require.NotNil(t, path.AI.PrognosticInsight)
		assert.Contains(t, *path.AI.PrognosticInsight, "EGFR")
		assert.NotEmpty(t, e3.CriticalLabs())

		require.NotNil(t, p.Genomics)
		assert.True(t, p.Genomics.HasGene("EGFR"))
		assert.NotEmpty(t, p.Genomics.ReferencedMutations())
		assert.Contains(t, p.Genomics.Prognosis.KeyFactors, "EGFR L858R Mutation")
	}
}

func TestSynthesize_CodesFromReferenceTables(t *testing.T) {
	for _, name := range scenario.Names() {
		tmpl, err := scenario.Lookup(name)
		require.NoError(t, err)
		p := synthesize(t, sandbox.NewSource(7), tmpl)
		for _, e := range p.Encounters {
			for _, d := range e.Diagnoses {
				assert.True(t, codes.IsDiagnosisCode(d.Code), "%s: diagnosis %s", name, d.Code)
			}
			for _, pr := range e.Procedures {
				assert.True(t, codes.IsProcedureCode(pr.Code), "%s: procedure %s", name, pr.Code)
			}
			for _, m := range e.Medications {
				assert.True(t, codes.IsMedicationCode(m.RxCUI), "%s: medication %s", name, m.RxCUI)
			}
		}
	}
}

func TestSynthesize_LabStatusMatchesRange(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		p := synthesize(t, sandbox.NewSource(seed), scenario.NSCLC())
		for _, e := range p.Encounters {
			for _, l := range e.Labs {
				if !l.Value.IsNumeric() {
					continue
				}
				in := l.Range.Contains(*l.Value.Number)
				if in {
					assert.Equal(t, record.LabNormal, l.Status, l.TestName)
				} else {
					assert.NotEqual(t, record.LabNormal, l.Status, l.TestName)
				}
			}
		}
	}
}

func TestSynthesize_WearableWindow(t *testing.T) {
	p := synthesize(t, sandbox.NewSource(3), scenario.NSCLC())

	require.Len(t, p.Wearable, 30)
	assert.Equal(t, record.Day(testNow), p.Wearable[29].Date, "window must end on the synthesis date")
	seen := make(map[time.Time]bool)
	for i, w := range p.Wearable {
		assert.False(t, seen[w.Date], "duplicate date %s", w.Date)
		seen[w.Date] = true
		if i > 0 {
			assert.Equal(t, p.Wearable[i-1].Date.AddDate(0, 0, 1), w.Date)
		}
		assert.GreaterOrEqual(t, w.Steps, 2000-i*50)
		assert.LessOrEqual(t, w.Steps, 8000-i*50)
		assert.GreaterOrEqual(t, w.SleepHours, 5.5)
		assert.LessOrEqual(t, w.SleepHours, 7.5)
	}
}

func TestSynthesize_DeterministicForSeed(t *testing.T) {
	a := synthesize(t, sandbox.NewSource(42), scenario.NSCLC())
	b := synthesize(t, sandbox.NewSource(42), scenario.NSCLC())
	assert.Equal(t, document.EncodePatient(a, testNow), document.EncodePatient(b, testNow))

	c := synthesize(t, sandbox.NewSource(43), scenario.NSCLC())
	assert.NotEqual(t, a.ID, c.ID)
	// Narrative structure does not depend on the seed.
	require.Len(t, c.Encounters, len(a.Encounters))
	for i := range a.Encounters {
		assert.Equal(t, a.Encounters[i].Procedures, c.Encounters[i].Procedures)
		assert.Equal(t, a.Encounters[i].Diagnoses, c.Encounters[i].Diagnoses)
		assert.Equal(t, a.Encounters[i].Date, c.Encounters[i].Date)
	}
	assert.Equal(t, a.Genomics.Mutations, c.Genomics.Mutations)
}

func TestSynthesize_EnvelopeEdges(t *testing.T) {
	for _, high := range []bool{false, true} {
		for _, name := range scenario.Names() {
			tmpl, err := scenario.Lookup(name)
			require.NoError(t, err)
			p := synthesize(t, edgeRand{high: high}, tmpl)
			for _, e := range p.Encounters {
				for _, s := range e.Imaging {
					for _, f := range s.AI.Findings {
						assert.GreaterOrEqual(t, f.Confidence, 0)
						assert.LessOrEqual(t, f.Confidence, 100)
					}
				}
			}
			assert.NoError(t, scenario.CheckCoherence(p))
		}
	}
}

func TestSynthesize_FollowUpConfidenceFloor(t *testing.T) {
	tmpl := scenario.NSCLC()
	tmpl.Encounters[1].Imaging.Site = "RUL"
	tmpl.Encounters[1].Imaging.Confidence = scenario.IntEnvelope{Min: 10, Max: 90}
	require.NoError(t, tmpl.Validate())

	p := synthesize(t, edgeRand{}, tmpl)
	xray := p.Encounters[0].Imaging[0].AI.TopFinding()
	ct := p.Encounters[1].Imaging[0].AI.TopFinding()
	assert.Equal(t, xray.Site, ct.Site)
	assert.GreaterOrEqual(t, ct.Confidence, xray.Confidence)
}

func TestSynthesize_LabEnvelopeEdgesOnGrid(t *testing.T) {
	for _, high := range []bool{false, true} {
		tmpl := scenario.NSCLC()
		tmpl.Encounters[2].Labs[1].Value = scenario.FloatEnvelope{Min: 6.8, Max: 6.9}

		p := synthesize(t, edgeRand{high: high}, tmpl)
		hba1c := p.Encounters[2].Labs[1]
		require.NotNil(t, hba1c.Value.Number)
		assert.Equal(t, record.LabCritical, hba1c.Status)
		assert.Equal(t, record.RoundLab(*hba1c.Value.Number), *hba1c.Value.Number)
	}
}

func TestSynthesize_OffGridEnvelopeIsConfigurationError(t *testing.T) {
	tmpl := scenario.NSCLC()
	tmpl.Encounters[2].Labs[1].Value = scenario.FloatEnvelope{Min: 6.73, Max: 7.4}

	_, err := scenario.NewEngine(edgeRand{}, testNow, zerolog.Nop()).Synthesize(tmpl)
	require.Error(t, err)
	assert.ErrorIs(t, err, scenario.ErrConfiguration)
}

func TestSynthesize_BreastIDC(t *testing.T) {
	p := synthesize(t, sandbox.NewSource(11), scenario.BreastIDC())

	require.Len(t, p.Encounters, 3)
	assert.Equal(t, record.SexFemale, p.Sex)
	assert.True(t, p.Encounters[1].HasProcedure("76642"))
	assert.True(t, p.Encounters[2].HasProcedure("19083"))
	assert.True(t, p.Genomics.HasGene("PIK3CA"))
	assert.Contains(t, *p.Encounters[2].Pathology[0].AI.PrognosticInsight, "PIK3CA")
	assert.NotEmpty(t, p.Encounters[2].CriticalLabs())
}

// ---------------------------------------------------------------------------
// Template validation
// ---------------------------------------------------------------------------

func TestValidate_BuiltinsAreValid(t *testing.T) {
	for _, name := range scenario.Names() {
		tmpl, err := scenario.Lookup(name)
		require.NoError(t, err)
		assert.NoError(t, tmpl.Validate(), name)
	}
}

func TestValidate_MissingCodeKey(t *testing.T) {
	tmpl := scenario.NSCLC()
	tmpl.Encounters[2].Procedures = []string{"Lobectomy"}

	_, err := scenario.NewEngine(sandbox.NewSource(1), testNow, zerolog.Nop()).Synthesize(tmpl)
	require.Error(t, err)
	assert.ErrorIs(t, err, scenario.ErrConfiguration)
	assert.ErrorIs(t, err, codes.ErrNotFound)

	var cfgErr *scenario.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "nsclc", cfgErr.Template)
	assert.Contains(t, err.Error(), "Lobectomy")
}

func TestValidate_Defects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*scenario.Template)
		want   string
	}{
		{"dates not increasing", func(tm *scenario.Template) { tm.Encounters[1].DaysAgo = 30 }, "not after the previous encounter"},
		{"unknown follow-up", func(tm *scenario.Template) { tm.Encounters[1].FollowUp = "nowhere" }, "unknown or later encounter"},
		{"follow-up of later encounter", func(tm *scenario.Template) { tm.Encounters[0].FollowUp = "biopsy" }, "unknown or later encounter"},
		{"predecessor recommends nothing", func(tm *scenario.Template) { tm.Encounters[0].Imaging.Recommends = "" }, "recommends nothing"},
		{"confidence outside percent", func(tm *scenario.Template) { tm.Encounters[0].Imaging.Confidence.Max = 120 }, "outside [0,100]"},
		{"confidence ceiling drops", func(tm *scenario.Template) { tm.Encounters[1].Imaging.Confidence = scenario.IntEnvelope{Min: 50, Max: 60} }, "below predecessor"},
		{"follow-up images another site", func(tm *scenario.Template) { tm.Encounters[1].Imaging.Site = "LLL" }, "differs from the followed-up site"},
		{"follow-up skips recommended modality", func(tm *scenario.Template) { tm.Encounters[1].Imaging.Modality = "Chest X-ray" }, "does not perform the recommended"},
		{"lab lower bound off grid", func(tm *scenario.Template) {
			tm.Encounters[2].Labs[1].Value = scenario.FloatEnvelope{Min: 6.73, Max: 7.4}
		}, "at most one decimal"},
		{"lab upper bound off grid", func(tm *scenario.Template) {
			tm.Encounters[2].Labs[1].Value = scenario.FloatEnvelope{Min: 6.8, Max: 7.45}
		}, "at most one decimal"},
		{"medication not indicated", func(tm *scenario.Template) { tm.Encounters[0].Medications = []string{"Metformin"} }, "not indicated"},
		{"no critical lab", func(tm *scenario.Template) { tm.Encounters[2].Labs = tm.Encounters[2].Labs[:1] }, "guaranteed to be Critical"},
		{"lab envelope straddles status", func(tm *scenario.Template) {
			tm.Encounters[2].Labs[1].Value = scenario.FloatEnvelope{Min: 5.0, Max: 7.0}
		}, "does not always classify"},
		{"genomics without malignancy", func(tm *scenario.Template) { tm.Encounters[2].EstablishesMalignancy = false }, "no encounter establishes the malignancy"},
		{"factor cites unlisted gene", func(tm *scenario.Template) {
			tm.Genomics.ExtraFactors = append(tm.Genomics.ExtraFactors, "KRAS G12C Mutation")
		}, "KRAS"},
		{"pathology lag", func(tm *scenario.Template) { tm.Encounters[2].Pathology.LagDays = 0 }, "at least one day"},
		{"insight without genomics", func(tm *scenario.Template) { tm.Genomics = nil }, "no genomics"},
		{"empty wearable window", func(tm *scenario.Template) { tm.Wearable.Days = 0 }, "window of 0 days"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := scenario.NSCLC()
			tc.mutate(tmpl)
			err := tmpl.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, scenario.ErrConfiguration)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"breast-idc", "nsclc"}, scenario.Names())

	a, err := scenario.Lookup("nsclc")
	require.NoError(t, err)
	b, _ := scenario.Lookup("nsclc")
	a.Encounters[0].DaysAgo = 99
	assert.Equal(t, 30, b.Encounters[0].DaysAgo, "lookup must return independent copies")

	_, err = scenario.Lookup("melanoma")
	assert.ErrorIs(t, err, scenario.ErrUnknownScenario)
}

// ---------------------------------------------------------------------------
// Coherence
// ---------------------------------------------------------------------------

func TestCheckCoherence_DetectsBrokenChain(t *testing.T) {
	t.Run("recommendation not performed", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		p.Encounters[2].Procedures = p.Encounters[2].Procedures[:1]
		assert.ErrorIs(t, scenario.CheckCoherence(p), scenario.ErrIncoherent)
	})
	t.Run("confidence regresses", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		p.Encounters[1].Imaging[0].AI.Findings[0].Confidence = 10
		assert.ErrorIs(t, scenario.CheckCoherence(p), scenario.ErrIncoherent)
	})
	t.Run("follow-up at another site", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		p.Encounters[1].Imaging[0].AI.Findings[0].Site = "LLL"
		err := scenario.CheckCoherence(p)
		assert.ErrorIs(t, err, scenario.ErrIncoherent)
		assert.Contains(t, err.Error(), "does not follow up")
	})
	t.Run("follow-up regresses at another site", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		f := &p.Encounters[1].Imaging[0].AI.Findings[0]
		f.Site, f.Confidence = "LLL", 10
		assert.ErrorIs(t, scenario.CheckCoherence(p), scenario.ErrIncoherent)
	})
	t.Run("insight names unlisted gene", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		alk := "Morphology suggests ALK rearrangement."
		p.Encounters[2].Pathology[0].AI.PrognosticInsight = &alk
		assert.ErrorIs(t, scenario.CheckCoherence(p), scenario.ErrIncoherent)
	})
	t.Run("same-day encounters", func(t *testing.T) {
		p := synthesize(t, sandbox.NewSource(5), scenario.NSCLC())
		p.Encounters[1].Date = p.Encounters[0].Date
		assert.ErrorIs(t, scenario.CheckCoherence(p), scenario.ErrIncoherent)
	})
}
