package records

// RosterEntry describes a doctor before the store assigns its key.
type RosterEntry struct {
	Name      string
	Specialty Specialty
}

// DefaultRoster is the fixed set of doctors the registry starts with.
var DefaultRoster = []RosterEntry{
	{Name: "Dr. Amara Okafor", Specialty: SpecialtyGeneral},
	{Name: "Dr. Henrik Lund", Specialty: SpecialtyCardiology},
	{Name: "Dr. Priya Raman", Specialty: SpecialtyEndocrine},
	{Name: "Dr. Mateo Silva", Specialty: SpecialtyPulmonology},
	{Name: "Dr. Yuki Tanaka", Specialty: SpecialtyNeurology},
	{Name: "Dr. Leila Haddad", Specialty: SpecialtyRheumatism},
}
