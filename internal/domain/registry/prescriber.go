package registry

import (
	"math/rand/v2"

	"github.com/ehr/registry/internal/domain/records"
)

// Prescriber chooses the medication and dosage issued to a processed
// patient.
type Prescriber interface {
	Prescribe(p records.Patient) (records.Medication, string)
}

type treatment struct {
	medication records.Medication
	dosages    []string
}

var treatments = map[records.Condition]treatment{
	records.ConditionFlu:          {records.MedicationAntiviral, []string{"75mg twice daily", "150mg once daily"}},
	records.ConditionDiabetes:     {records.MedicationInsulin, []string{"10 units before meals", "20 units at night"}},
	records.ConditionHypertension: {records.MedicationBetaBlocker, []string{"25mg once daily", "50mg once daily"}},
	records.ConditionAsthma:       {records.MedicationBronchodilator, []string{"2 puffs as needed", "1 puff every 6 hours"}},
	records.ConditionMigraine:     {records.MedicationAnalgesic, []string{"400mg at onset", "200mg every 8 hours"}},
	records.ConditionArthritis:    {records.MedicationAntiInflam, []string{"200mg twice daily", "500mg once daily"}},
	records.ConditionAllergy:      {records.MedicationAntihistamine, []string{"10mg once daily", "5mg twice daily"}},
	records.ConditionInfection:    {records.MedicationAntibiotic, []string{"500mg every 8 hours", "250mg every 6 hours"}},
}

// ConditionPrescriber picks the medication matching the patient's
// condition and one of its standard dosages at random. It is not safe for
// concurrent use; the Service calls it under its own lock.
type ConditionPrescriber struct {
	rng *rand.Rand
}

func NewConditionPrescriber(rng *rand.Rand) *ConditionPrescriber {
	return &ConditionPrescriber{rng: rng}
}

func (c *ConditionPrescriber) Prescribe(p records.Patient) (records.Medication, string) {
	t, ok := treatments[p.Condition]
	if !ok {
		return records.MedicationAnalgesic, "as directed"
	}
	return t.medication, t.dosages[c.rng.IntN(len(t.dosages))]
}
