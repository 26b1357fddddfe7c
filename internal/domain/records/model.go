package records

import (
	"fmt"
	"strings"
	"time"
)

// Condition is the medical-condition label carried by a patient.
type Condition string

const (
	ConditionFlu          Condition = "flu"
	ConditionDiabetes     Condition = "diabetes"
	ConditionHypertension Condition = "hypertension"
	ConditionAsthma       Condition = "asthma"
	ConditionMigraine     Condition = "migraine"
	ConditionArthritis    Condition = "arthritis"
	ConditionAllergy      Condition = "allergy"
	ConditionInfection    Condition = "infection"
)

// Conditions lists every accepted condition in a stable order.
var Conditions = []Condition{
	ConditionFlu,
	ConditionDiabetes,
	ConditionHypertension,
	ConditionAsthma,
	ConditionMigraine,
	ConditionArthritis,
	ConditionAllergy,
	ConditionInfection,
}

// ParseCondition maps a case-insensitive label onto the enumeration.
func ParseCondition(s string) (Condition, error) {
	c := Condition(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Conditions {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown condition %q: %w", s, ErrValidation)
}

// Specialty is a doctor's specialty label.
type Specialty string

const (
	SpecialtyGeneral     Specialty = "general_practice"
	SpecialtyCardiology  Specialty = "cardiology"
	SpecialtyEndocrine   Specialty = "endocrinology"
	SpecialtyPulmonology Specialty = "pulmonology"
	SpecialtyNeurology   Specialty = "neurology"
	SpecialtyRheumatism  Specialty = "rheumatology"
)

// Medication is the medication-type label of a prescription.
type Medication string

const (
	MedicationAntiviral      Medication = "antiviral"
	MedicationInsulin        Medication = "insulin"
	MedicationBetaBlocker    Medication = "beta_blocker"
	MedicationBronchodilator Medication = "bronchodilator"
	MedicationAnalgesic      Medication = "analgesic"
	MedicationAntiInflam     Medication = "anti_inflammatory"
	MedicationAntihistamine  Medication = "antihistamine"
	MedicationAntibiotic     Medication = "antibiotic"
)

// Patient is a registered patient. Condition and Age change only through
// Store.Update; the ledger only through issuance and explicit pops. Values
// handed out by the Store are snapshots with a nil Ledger.
type Patient struct {
	Key          string    `json:"key"`
	Seq          int       `json:"seq"`
	Name         string    `json:"name"`
	Condition    Condition `json:"condition"`
	Age          int       `json:"age"`
	RegisteredAt time.Time `json:"registered_at"`

	Ledger *Ledger `json:"-"`
}

// snapshot copies the record without its ledger. Callers hold the store
// lock.
func (p *Patient) snapshot() Patient {
	c := *p
	c.Ledger = nil
	return c
}

// Doctor is a roster entry. Doctors are immutable and never removed.
type Doctor struct {
	Key       string    `json:"key"`
	Seq       int       `json:"seq"`
	Name      string    `json:"name"`
	Specialty Specialty `json:"specialty"`
}

// Prescription is an issued prescription. It belongs to exactly one ledger.
type Prescription struct {
	Key        string     `json:"key"`
	Seq        int        `json:"seq"`
	Medication Medication `json:"medication"`
	Dosage     string     `json:"dosage"`
	IssuedAt   time.Time  `json:"issued_at"`
}

// NewPatient is the registration input for a single patient.
type NewPatient struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
	Age       int    `json:"age"`
}

// Field selects the patient attribute changed by Store.Update.
type Field string

const (
	FieldAge       Field = "age"
	FieldCondition Field = "condition"
)

func patientKey(seq int) string      { return fmt.Sprintf("P%04d", seq) }
func prescriptionKey(seq int) string { return fmt.Sprintf("RX%04d", seq) }
func doctorKey(seq int) string       { return fmt.Sprintf("D%d", seq) }
