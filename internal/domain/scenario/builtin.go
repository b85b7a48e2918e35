package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aclis/ehrsynth/internal/domain/record"
)

// ErrUnknownScenario is returned by Lookup for an unregistered name.
var ErrUnknownScenario = errors.New("unknown scenario")

var builtins = map[string]func() *Template{
	"nsclc":      NSCLC,
	"breast-idc": BreastIDC,
}

// Names lists the built-in scenarios in sorted order.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns a fresh copy of the built-in template registered as name.
func Lookup(name string) (*Template, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownScenario, name, Names())
	}
	return fn(), nil
}

// Built-in wearable trend: activity declining with disease progression.
func decliningActivity(drift int) *WearableSpec {
	return &WearableSpec{
		Days:       30,
		StepsLow:   2000,
		StepsHigh:  8000,
		DailyDrift: drift,
		HR:         IntEnvelope{70, 90},
		Sleep:      FloatEnvelope{5.5, 7.5},
	}
}

const noduleMetastasisAlert = "Global research agent notes a new study suggesting nodules with these " +
	"characteristics have a 15% higher risk of metastasis than previously thought. [View Study]"

var foundationOne = record.GenomicTest{
	Name:        "FoundationOne CDx",
	Provider:    "Foundation Medicine",
	Logo:        "https://via.placeholder.com/80x20/8B5CF6/FFFFFF?text=Foundation",
	Description: "324-gene panel for solid tumors, FDA-approved companion diagnostic.",
}

// NSCLC is the showcase journey: an incidental lung nodule on a chest X-ray,
// confirmed on CT, biopsied, diagnosed as EGFR-driven non-small cell lung
// cancer.
func NSCLC() *Template {
	return &Template{
		Name:        "nsclc",
		Description: "Non-small cell lung cancer, EGFR L858R, detected from an incidental nodule",
		Patient: PatientSpec{
			IDPrefix: "ACLIS",
			Name:     "John Doe",
			AgeYears: 45,
			Sex:      record.SexMale,
		},
		Encounters: []EncounterSpec{
			{
				Key:            "primary-care",
				DaysAgo:        30,
				Type:           record.EncounterOutpatient,
				ChiefComplaint: "Persistent cough and shortness of breath for 3 weeks.",
				Diagnoses:      []string{"Hypertension"},
				Medications:    []string{"Lisinopril"},
				Procedures:     []string{"Office Visit"},
				Vitals: &VitalsSpec{
					AtHour:    9,
					HR:        IntEnvelope{80, 90},
					Systolic:  IntEnvelope{132, 142},
					Diastolic: IntEnvelope{84, 92},
					SpO2:      IntEnvelope{95, 98},
				},
				Imaging: &ImagingSpec{
					Modality:   "Chest X-ray",
					Site:       "RUL",
					Finding:    "Pulmonary Nodule",
					Report:     "A 1.5 cm nodule is noted in the right upper lobe ({site}). Recommend follow-up with CT.",
					Recommends: "Chest CT",
					Confidence: IntEnvelope{82, 90},
					Provider:   "Qure.ai qXR",
					Logo:       "https://via.placeholder.com/80x20/10B981/FFFFFF?text=Qure.ai",
				},
			},
			{
				Key:            "pulmonology-ct",
				DaysAgo:        15,
				Type:           record.EncounterOutpatient,
				ChiefComplaint: "Follow-up on abnormal chest X-ray.",
				FollowUp:       "primary-care",
				Imaging: &ImagingSpec{
					Finding:            "Spiculated Nodule",
					Report:             "Confirms 1.5 cm spiculated nodule in the {site}, highly suspicious for malignancy. Recommend bronchoscopy with biopsy.",
					Recommends:         "Biopsy",
					Confidence:         IntEnvelope{90, 97},
					Provider:           "Aidoc Radiology",
					Logo:               "https://via.placeholder.com/80x20/3B82F6/FFFFFF?text=Aidoc",
					ContradictionAlert: noduleMetastasisAlert,
				},
			},
			{
				Key:                   "biopsy",
				DaysAgo:               7,
				Type:                  record.EncounterInpatient,
				ChiefComplaint:        "Scheduled bronchoscopy and biopsy.",
				FollowUp:              "pulmonology-ct",
				Procedures:            []string{"Bronchoscopy"},
				Diagnoses:             []string{"NSCLC"},
				EstablishesMalignancy: true,
				RequireCritical:       true,
				Pathology: &PathologySpec{
					LagDays:    2,
					Specimen:   "Right upper lobe bronchial biopsy",
					Report:     "Findings consistent with non-small cell lung carcinoma, adenocarcinoma subtype.",
					Finding:    "Adenocarcinoma cells detected",
					Provider:   "Paige.AI",
					Logo:       "https://via.placeholder.com/80x20/8B5CF6/FFFFFF?text=Paige",
					Confidence: IntEnvelope{96, 99},
					Insight:    "Morphology suggests high likelihood of {gene} mutation.",
				},
				Labs: []LabSpec{
					{Test: "Potassium", Value: FloatEnvelope{3.8, 4.6}, Expect: record.LabNormal},
					{Test: "HbA1c", Value: FloatEnvelope{6.8, 7.4}, Expect: record.LabCritical},
					{Test: "WBC", Value: FloatEnvelope{6.0, 10.5}, Expect: record.LabNormal},
				},
			},
		},
		Genomics: &GenomicSpec{
			Model:           "TabPFN Prognostic Model",
			RiskScore:       IntEnvelope{30, 38},
			StagePrediction: "Stage IIIB",
			Confidence:      IntEnvelope{85, 92},
			Driver:          record.Mutation{Gene: "EGFR", Variant: "L858R", Significance: "Pathogenic", Origin: record.OriginSomatic},
			Comutations: []record.Mutation{
				{Gene: "TP53", Variant: "R273H", Significance: "Likely Pathogenic", Origin: record.OriginSomatic},
			},
			ExtraFactors: []string{"Tumor Size > 1cm", "Age > 40"},
			SuggestedTests: []record.GenomicTest{
				foundationOne,
				{
					Name:        "Guardant360 CDx",
					Provider:    "Guardant Health",
					Logo:        "https://via.placeholder.com/80x20/EF4444/FFFFFF?text=Guardant",
					Description: "Liquid biopsy for comprehensive genomic profiling of 74 genes.",
				},
			},
		},
		Wearable: decliningActivity(50),
	}
}

// BreastIDC follows a screening mammogram finding through ultrasound and
// core biopsy to a PIK3CA-mutated invasive ductal carcinoma.
func BreastIDC() *Template {
	return &Template{
		Name:        "breast-idc",
		Description: "Invasive ductal carcinoma of the breast, PIK3CA H1047R, detected on screening",
		Patient: PatientSpec{
			IDPrefix: "ACLIS",
			Name:     "Mary Major",
			AgeYears: 52,
			Sex:      record.SexFemale,
		},
		Encounters: []EncounterSpec{
			{
				Key:            "screening",
				DaysAgo:        42,
				Type:           record.EncounterOutpatient,
				ChiefComplaint: "Routine annual screening visit.",
				Diagnoses:      []string{"Hypothyroidism"},
				Medications:    []string{"Levothyroxine"},
				Procedures:     []string{"Office Visit"},
				Vitals: &VitalsSpec{
					AtHour:    10,
					HR:        IntEnvelope{64, 78},
					Systolic:  IntEnvelope{112, 124},
					Diastolic: IntEnvelope{70, 80},
					SpO2:      IntEnvelope{97, 99},
				},
				Imaging: &ImagingSpec{
					Modality:   "Screening Mammogram",
					Site:       "Right UOQ",
					Finding:    "Irregular Mass",
					Report:     "A 1.2 cm irregular mass with indistinct margins in the {site}. BI-RADS 0. Recommend diagnostic ultrasound.",
					Recommends: "Breast Ultrasound",
					Confidence: IntEnvelope{76, 85},
					Provider:   "Lunit INSIGHT MMG",
					Logo:       "https://via.placeholder.com/80x20/F59E0B/FFFFFF?text=Lunit",
				},
			},
			{
				Key:            "diagnostic-us",
				DaysAgo:        21,
				Type:           record.EncounterOutpatient,
				ChiefComplaint: "Diagnostic work-up of abnormal screening mammogram.",
				FollowUp:       "screening",
				Imaging: &ImagingSpec{
					Finding:    "Hypoechoic Mass",
					Report:     "Irregular hypoechoic mass in the {site} with posterior shadowing. BI-RADS 5. Recommend ultrasound-guided core biopsy.",
					Recommends: "Breast Biopsy",
					Confidence: IntEnvelope{88, 96},
					Provider:   "Koios DS",
					Logo:       "https://via.placeholder.com/80x20/3B82F6/FFFFFF?text=Koios",
				},
			},
			{
				Key:                   "core-biopsy",
				DaysAgo:               10,
				Type:                  record.EncounterOutpatient,
				ChiefComplaint:        "Ultrasound-guided core needle biopsy.",
				FollowUp:              "diagnostic-us",
				Diagnoses:             []string{"Breast Cancer"},
				Medications:           []string{"Letrozole"},
				EstablishesMalignancy: true,
				RequireCritical:       true,
				Pathology: &PathologySpec{
					LagDays:    3,
					Specimen:   "Right breast core needle biopsy, upper outer quadrant",
					Report:     "Invasive ductal carcinoma, Nottingham grade 2. ER positive, PR positive, HER2 negative.",
					Finding:    "Invasive ductal carcinoma detected",
					Provider:   "Paige.AI",
					Logo:       "https://via.placeholder.com/80x20/8B5CF6/FFFFFF?text=Paige",
					Confidence: IntEnvelope{94, 99},
					Insight:    "Luminal morphology; {gene} pathway activation is likely.",
				},
				Labs: []LabSpec{
					{Test: "CA 15-3", Value: FloatEnvelope{42.0, 58.0}, Expect: record.LabCritical},
					{Test: "Hgb", Value: FloatEnvelope{13.6, 15.2}, Expect: record.LabNormal},
					{Test: "WBC", Value: FloatEnvelope{5.0, 9.0}, Expect: record.LabNormal},
				},
			},
		},
		Genomics: &GenomicSpec{
			Model:           "TabPFN Prognostic Model",
			RiskScore:       IntEnvelope{18, 26},
			StagePrediction: "Stage IIA",
			Confidence:      IntEnvelope{84, 91},
			Driver:          record.Mutation{Gene: "PIK3CA", Variant: "H1047R", Significance: "Pathogenic", Origin: record.OriginSomatic},
			Comutations: []record.Mutation{
				{Gene: "BRCA2", Variant: "c.5946delT", Significance: "Likely Pathogenic", Origin: record.OriginGermline},
			},
			ExtraFactors: []string{"ER/PR Positive", "Tumor Size > 1cm"},
			SuggestedTests: []record.GenomicTest{
				foundationOne,
				{
					Name:        "Oncotype DX Breast Recurrence Score",
					Provider:    "Exact Sciences",
					Logo:        "https://via.placeholder.com/80x20/10B981/FFFFFF?text=Oncotype",
					Description: "21-gene assay estimating distant recurrence risk in early-stage ER-positive breast cancer.",
				},
			},
		},
		Wearable: decliningActivity(40),
	}
}
