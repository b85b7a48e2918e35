// Package record defines the clinical entity model emitted by the generators:
// patients, their time-ordered encounters and the lab, imaging, pathology,
// genomic and wearable records hanging off them. Ownership is tree-shaped;
// the only cross links are vocabulary matches (sites, genes, codes).
package record

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant is wrapped by every data-model invariant violation.
var ErrInvariant = errors.New("record invariant violated")

// BloodTypes is the pool a patient's blood type is drawn from.
var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// Sex values.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Patient is the root of one synthetic clinical record.
type Patient struct {
	ID        string
	Name      string
	DOB       time.Time
	Sex       string
	BloodType string

	Encounters []*Encounter
	Genomics   *GenomicProfile
	Wearable   []WearableSample
}

// NewPatient returns a patient with no encounters. The date of birth is
// truncated to a calendar day.
func NewPatient(id, name string, dob time.Time, sex, bloodType string) *Patient {
	return &Patient{
		ID:        id,
		Name:      name,
		DOB:       Day(dob),
		Sex:       sex,
		BloodType: bloodType,
	}
}

// Age returns the patient's age in whole years at asOf. Years are counted as
// 365-day blocks.
func (p *Patient) Age(asOf time.Time) int {
	days := int(Day(asOf).Sub(p.DOB).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / 365
}

// LastEncounter returns the most recent encounter, or nil.
func (p *Patient) LastEncounter() *Encounter {
	if len(p.Encounters) == 0 {
		return nil
	}
	return p.Encounters[len(p.Encounters)-1]
}

// Encounter returns the encounter with the given id, or nil.
func (p *Patient) Encounter(id string) *Encounter {
	for _, e := range p.Encounters {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// AddEncounter appends e. Encounters must belong to the patient, carry a
// unique id and be dated on or after the previous encounter.
func (p *Patient) AddEncounter(e *Encounter) error {
	if e.PatientID != p.ID {
		return fmt.Errorf("%w: encounter %s belongs to patient %s, not %s", ErrInvariant, e.ID, e.PatientID, p.ID)
	}
	if p.Encounter(e.ID) != nil {
		return fmt.Errorf("%w: duplicate encounter id %s", ErrInvariant, e.ID)
	}
	if last := p.LastEncounter(); last != nil && e.Date.Before(last.Date) {
		return fmt.Errorf("%w: encounter %s dated %s precedes %s dated %s",
			ErrInvariant, e.ID, e.Date.Format(time.DateOnly), last.ID, last.Date.Format(time.DateOnly))
	}
	p.Encounters = append(p.Encounters, e)
	return nil
}

// AttachGenomics sets the patient's genomic profile. A patient carries at
// most one profile.
func (p *Patient) AttachGenomics(g *GenomicProfile) error {
	if p.Genomics != nil {
		return fmt.Errorf("%w: patient %s already has a genomic profile", ErrInvariant, p.ID)
	}
	p.Genomics = g
	return nil
}
