package document

import (
	"time"

	"github.com/aclis/ehrsynth/internal/domain/record"
)

// EncodePatient converts p into its wire document. Age is derived from the
// date of birth at asOf rather than stored on the entity.
func EncodePatient(p *record.Patient, asOf time.Time) PatientDoc {
	doc := PatientDoc{
		SchemaVersion: Version,
		PatientID:     p.ID,
		Name:          p.Name,
		Age:           p.Age(asOf),
		Sex:           p.Sex,
		DOB:           Date(p.DOB),
		BloodType:     p.BloodType,
		Encounters:    make([]EncounterDoc, 0, len(p.Encounters)),
		WearableData:  make([]WearableDoc, 0, len(p.Wearable)),
	}
	for _, e := range p.Encounters {
		doc.Encounters = append(doc.Encounters, EncodeEncounter(e))
	}
	if p.Genomics != nil {
		g := EncodeGenomics(p.Genomics)
		doc.GenomicProfile = &g
	}
	for _, w := range p.Wearable {
		doc.WearableData = append(doc.WearableData, WearableDoc{
			Date:       Date(w.Date),
			Steps:      w.Steps,
			AvgHR:      w.AvgHR,
			SleepHours: w.SleepHours,
		})
	}
	return doc
}

// EncodePatients encodes a corpus in order.
func EncodePatients(ps []*record.Patient, asOf time.Time) []PatientDoc {
	out := make([]PatientDoc, 0, len(ps))
	for _, p := range ps {
		out = append(out, EncodePatient(p, asOf))
	}
	return out
}

// EncodeEncounter converts e into its wire document.
func EncodeEncounter(e *record.Encounter) EncounterDoc {
	doc := EncounterDoc{
		EncounterID:      e.ID,
		PatientID:        e.PatientID,
		Date:             Date(e.Date),
		Type:             string(e.Type),
		ChiefComplaint:   e.ChiefComplaint,
		Diagnoses:        make([]CodeDoc, 0, len(e.Diagnoses)),
		Procedures:       make([]CodeDoc, 0, len(e.Procedures)),
		Medications:      make([]MedicationDoc, 0, len(e.Medications)),
		Vitals:           make([]VitalsDoc, 0, len(e.Vitals)),
		Labs:             make([]LabDoc, 0, len(e.Labs)),
		ImagingStudies:   make([]ImagingDoc, 0, len(e.Imaging)),
		PathologyReports: make([]PathologyDoc, 0, len(e.Pathology)),
	}
	for _, d := range e.Diagnoses {
		doc.Diagnoses = append(doc.Diagnoses, CodeDoc{Code: d.Code, Description: d.Description})
	}
	for _, p := range e.Procedures {
		doc.Procedures = append(doc.Procedures, CodeDoc{Code: p.Code, Description: p.Description})
	}
	for _, m := range e.Medications {
		doc.Medications = append(doc.Medications, MedicationDoc{RxCUI: m.RxCUI, Name: m.Name})
	}
	for _, v := range e.Vitals {
		doc.Vitals = append(doc.Vitals, VitalsDoc{Timestamp: Timestamp(v.Timestamp), HR: v.HR, BP: v.BP, SpO2: v.SpO2})
	}
	for _, l := range e.Labs {
		doc.Labs = append(doc.Labs, EncodeLab(l))
	}
	for _, s := range e.Imaging {
		doc.ImagingStudies = append(doc.ImagingStudies, EncodeImaging(s))
	}
	for _, r := range e.Pathology {
		doc.PathologyReports = append(doc.PathologyReports, PathologyDoc{
			ReportID:   r.ID,
			Date:       Date(r.Date),
			Specimen:   r.Specimen,
			Report:     r.Report,
			AIAnalysis: EncodeAIAnalysis(r.AI),
		})
	}
	return doc
}

// EncodeLab converts l, keeping numeric values as JSON numbers.
func EncodeLab(l record.LabResult) LabDoc {
	doc := LabDoc{
		TestName: l.TestName,
		LOINC:    l.LOINC,
		Status:   string(l.Status),
	}
	if l.Value.Number != nil {
		doc.Value = *l.Value.Number
	} else {
		doc.Value = l.Value.Text
	}
	if l.Unit != "" {
		u := l.Unit
		doc.Unit = &u
	}
	if l.Range != nil {
		r := l.Range.String()
		doc.RefRange = &r
	}
	return doc
}

// EncodeImaging converts s; an empty recommendation encodes as null.
func EncodeImaging(s record.ImagingStudy) ImagingDoc {
	doc := ImagingDoc{
		StudyID:    s.ID,
		Type:       s.Type,
		Date:       Date(s.Date),
		Report:     s.Report,
		ImageURL:   s.ImageURL,
		AIAnalysis: EncodeAIAnalysis(s.AI),
	}
	if s.FollowUp != "" {
		f := s.FollowUp
		doc.RecommendedFollowUp = &f
	}
	return doc
}

// EncodeAIAnalysis converts a, returning nil for a nil analysis.
func EncodeAIAnalysis(a *record.AIAnalysis) *AIAnalysisDoc {
	if a == nil {
		return nil
	}
	doc := &AIAnalysisDoc{
		Provider:           a.Provider,
		Logo:               a.Logo,
		Findings:           make([]FindingDoc, 0, len(a.Findings)),
		ContradictionAlert: a.ContradictionAlert,
		PrognosticInsight:  a.PrognosticInsight,
	}
	for _, f := range a.Findings {
		fd := FindingDoc{Finding: f.Label, Site: f.Site, Confidence: f.Confidence}
		for _, c := range f.Coordinates {
			fd.Coordinates = append(fd.Coordinates, CoordinateDoc{Top: c.Top, Left: c.Left})
		}
		doc.Findings = append(doc.Findings, fd)
	}
	return doc
}

// EncodeGenomics converts g.
func EncodeGenomics(g *record.GenomicProfile) GenomicDoc {
	doc := GenomicDoc{
		Prognosis: PrognosisDoc{
			Model:           g.Prognosis.Model,
			RiskScore:       g.Prognosis.RiskScore,
			StagePrediction: g.Prognosis.StagePrediction,
			Confidence:      g.Prognosis.Confidence,
			KeyFactors:      append([]string{}, g.Prognosis.KeyFactors...),
		},
		Mutations:      make([]MutationDoc, 0, len(g.Mutations)),
		SuggestedTests: make([]SuggestedTestDoc, 0, len(g.SuggestedTests)),
	}
	for _, m := range g.Mutations {
		doc.Mutations = append(doc.Mutations, MutationDoc{
			Gene:         m.Gene,
			Variant:      m.Variant,
			Significance: m.Significance,
			Type:         m.Origin,
		})
	}
	for _, t := range g.SuggestedTests {
		doc.SuggestedTests = append(doc.SuggestedTests, SuggestedTestDoc{
			Name:        t.Name,
			Provider:    t.Provider,
			Logo:        t.Logo,
			Description: t.Description,
		})
	}
	return doc
}
