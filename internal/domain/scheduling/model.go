package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment binds a patient to a doctor on a calendar day. Appointments
// are read-only once created.
type Appointment struct {
	ID         uuid.UUID `json:"id"`
	PatientKey string    `json:"patient_key"`
	DoctorKey  string    `json:"doctor_key"`
	Date       time.Time `json:"date"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

// Result is the outcome of scheduling one patient in a batch.
type Result struct {
	PatientKey  string       `json:"patient_key"`
	Appointment *Appointment `json:"appointment,omitempty"`
	OK          bool         `json:"ok"`
	Err         error        `json:"-"`
}

// DoctorSelector chooses the doctor for an appointment: either a specific
// roster key or any doctor at random.
type DoctorSelector struct {
	key string
}

// AnyDoctor picks uniformly among the roster.
func AnyDoctor() DoctorSelector { return DoctorSelector{} }

// DoctorKey picks the doctor stored under key.
func DoctorKey(key string) DoctorSelector { return DoctorSelector{key: key} }

// ParseSelector accepts a doctor key, or "random", "any" or "" for any doctor.
func ParseSelector(s string) DoctorSelector {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "random", "any":
		return AnyDoctor()
	}
	return DoctorKey(strings.ToUpper(strings.TrimSpace(s)))
}

// IsAny reports whether the selector leaves the choice to the scheduler.
func (d DoctorSelector) IsAny() bool { return d.key == "" }

func (d DoctorSelector) String() string {
	if d.IsAny() {
		return "random"
	}
	return d.key
}
