package record

import (
	"fmt"
	"strings"
)

// Mutation origins.
const (
	OriginSomatic  = "Somatic"
	OriginGermline = "Germline"
)

// Mutation is one variant reported by a genomic panel.
type Mutation struct {
	Gene         string
	Variant      string
	Significance string
	Origin       string
}

// Label renders the mutation the way prognosis factors cite it, e.g.
// "EGFR L858R Mutation".
func (m Mutation) Label() string {
	return m.Gene + " " + m.Variant + " Mutation"
}

// Prognosis is a model-computed risk summary.
type Prognosis struct {
	Model           string
	RiskScore       int
	StagePrediction string
	Confidence      int
	KeyFactors      []string
}

// GenomicTest is a suggested follow-up genomic assay.
type GenomicTest struct {
	Name        string
	Provider    string
	Logo        string
	Description string
}

// GenomicProfile is the post-diagnostic genomic summary of a patient.
type GenomicProfile struct {
	Prognosis      Prognosis
	Mutations      []Mutation
	SuggestedTests []GenomicTest
}

// HasGene reports whether any listed mutation is in gene.
func (g *GenomicProfile) HasGene(gene string) bool {
	for _, m := range g.Mutations {
		if strings.EqualFold(m.Gene, gene) {
			return true
		}
	}
	return false
}

// ReferencedMutations returns the listed mutations cited by a key factor.
func (g *GenomicProfile) ReferencedMutations() []Mutation {
	var out []Mutation
	for _, m := range g.Mutations {
		for _, f := range g.Prognosis.KeyFactors {
			if citesGene(f, m.Gene) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func citesGene(factor, gene string) bool {
	return factor == gene || strings.HasPrefix(factor, gene+" ")
}

// Validate checks that prognosis factors citing a mutation resolve to a
// listed mutation and that at least one listed mutation is cited.
func (g *GenomicProfile) Validate() error {
	if len(g.Mutations) == 0 {
		return fmt.Errorf("%w: genomic profile has no mutations", ErrInvariant)
	}
	if g.Prognosis.Confidence < 0 || g.Prognosis.Confidence > 100 {
		return fmt.Errorf("%w: prognosis confidence %d outside [0,100]", ErrInvariant, g.Prognosis.Confidence)
	}
	for _, f := range g.Prognosis.KeyFactors {
		if !strings.HasSuffix(f, " Mutation") {
			continue
		}
		gene, _, _ := strings.Cut(f, " ")
		if !g.HasGene(gene) {
			return fmt.Errorf("%w: key factor %q cites gene %s absent from mutation list", ErrInvariant, f, gene)
		}
	}
	if len(g.ReferencedMutations()) == 0 {
		return fmt.Errorf("%w: no key factor references a listed mutation", ErrInvariant)
	}
	return nil
}
