package records

import (
	"fmt"
	"iter"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Store is the authoritative in-memory collection of patients, the doctor
// roster and the prescription key sequence.
//
// Patients are held in a map for keyed lookup and in a slice ordered by
// sequence number for listing and range search. Sequence numbers are never
// reused, so the slice stays sorted under appends and deletions.
type Store struct {
	mu       sync.RWMutex
	patients map[string]*Patient
	order    []*Patient
	nextSeq  int
	nextRx   int
	doctors  []Doctor
	byDoctor map[string]int
	now      func() time.Time
}

// NewStore creates an empty store with the given doctor roster. Roster
// entries are assigned keys and sequence numbers in the order given.
func NewStore(roster []RosterEntry) *Store {
	s := &Store{
		patients: make(map[string]*Patient),
		byDoctor: make(map[string]int),
		now:      time.Now,
	}
	for i, r := range roster {
		d := Doctor{Key: doctorKey(i + 1), Seq: i + 1, Name: r.Name, Specialty: r.Specialty}
		s.byDoctor[d.Key] = len(s.doctors)
		s.doctors = append(s.doctors, d)
	}
	return s
}

// Register validates every input and then inserts them all. Nothing is
// inserted when any input is invalid. The returned patients are snapshots.
func (s *Store) Register(in []NewPatient) ([]Patient, error) {
	conds := make([]Condition, len(in))
	for i, np := range in {
		if strings.TrimSpace(np.Name) == "" {
			return nil, fmt.Errorf("patient %d: name is required: %w", i, ErrValidation)
		}
		if np.Age < 0 {
			return nil, fmt.Errorf("patient %d: age %d is negative: %w", i, np.Age, ErrValidation)
		}
		c, err := ParseCondition(np.Condition)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", i, err)
		}
		conds[i] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := make([]Patient, 0, len(in))
	for i, np := range in {
		s.nextSeq++
		p := &Patient{
			Key:          patientKey(s.nextSeq),
			Seq:          s.nextSeq,
			Name:         strings.TrimSpace(np.Name),
			Condition:    conds[i],
			Age:          np.Age,
			RegisteredAt: s.now().UTC(),
			Ledger:       NewLedger(),
		}
		s.patients[p.Key] = p
		s.order = append(s.order, p)
		created = append(created, p.snapshot())
	}
	return created, nil
}

// Update changes exactly one field of the patient stored under key and
// returns the updated snapshot.
func (s *Store) Update(key string, field Field, value string) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[key]
	if !ok {
		return Patient{}, fmt.Errorf("patient %s: %w", key, ErrNotFound)
	}

	switch Field(strings.ToLower(string(field))) {
	case FieldAge:
		age, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return Patient{}, fmt.Errorf("age %q is not an integer: %w", value, ErrValidation)
		}
		if age < 0 {
			return Patient{}, fmt.Errorf("age %d is negative: %w", age, ErrValidation)
		}
		p.Age = age
	case FieldCondition:
		c, err := ParseCondition(value)
		if err != nil {
			return Patient{}, err
		}
		p.Condition = c
	default:
		return Patient{}, fmt.Errorf("unknown field %q: %w", field, ErrValidation)
	}
	return p.snapshot(), nil
}

// Remove deletes the patient stored under key and returns its last
// snapshot.
func (s *Store) Remove(key string) (Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[key]
	if !ok {
		return Patient{}, fmt.Errorf("patient %s: %w", key, ErrNotFound)
	}
	delete(s.patients, key)
	i := s.indexOf(p.Seq)
	s.order = append(s.order[:i], s.order[i+1:]...)
	clear(s.order[len(s.order):len(s.order)+1])
	return p.snapshot(), nil
}

// Get returns a snapshot of the patient stored under key.
func (s *Store) Get(key string) (Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[key]
	if !ok {
		return Patient{}, fmt.Errorf("patient %s: %w", key, ErrNotFound)
	}
	return p.snapshot(), nil
}

// View copies the mutable fields of a record obtained from Find.
func (s *Store) View(p *Patient) Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.snapshot()
}

// Find returns the shared record stored under key, ledger included. Age and
// Condition may change under the store lock at any time, so callers read
// them through View rather than from the record directly.
func (s *Store) Find(key string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[key]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", key, ErrNotFound)
	}
	return p, nil
}

// List yields every patient in registration order. Each iteration works on
// a snapshot taken when it starts, so the sequence can be restarted and is
// unaffected by concurrent changes.
func (s *Store) List() iter.Seq[Patient] {
	return func(yield func(Patient) bool) {
		for _, p := range s.snapshot(0, -1) {
			if !yield(p) {
				return
			}
		}
	}
}

// Range yields the patients whose keys fall between from and to inclusive,
// in key order. Either bound may be empty to leave that side open.
func (s *Store) Range(from, to string) (iter.Seq[Patient], error) {
	lo, hi := 0, -1
	if from != "" {
		seq, err := ParseKey(from)
		if err != nil {
			return nil, err
		}
		lo = seq
	}
	if to != "" {
		seq, err := ParseKey(to)
		if err != nil {
			return nil, err
		}
		hi = seq
	}
	return func(yield func(Patient) bool) {
		for _, p := range s.snapshot(lo, hi) {
			if !yield(p) {
				return
			}
		}
	}, nil
}

// Len reports the number of registered patients.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Keys returns the patient keys in registration order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, len(s.order))
	for i, p := range s.order {
		keys[i] = p.Key
	}
	return keys
}

// Doctors returns a copy of the roster.
func (s *Store) Doctors() []Doctor {
	out := make([]Doctor, len(s.doctors))
	copy(out, s.doctors)
	return out
}

// Doctor returns the roster entry stored under key.
func (s *Store) Doctor(key string) (Doctor, error) {
	i, ok := s.byDoctor[key]
	if !ok {
		return Doctor{}, fmt.Errorf("doctor %s: %w", key, ErrNotFound)
	}
	return s.doctors[i], nil
}

// NewPrescription allocates the next prescription key. The result is not
// attached to any ledger.
func (s *Store) NewPrescription(med Medication, dosage string) Prescription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRx++
	return Prescription{
		Key:        prescriptionKey(s.nextRx),
		Seq:        s.nextRx,
		Medication: med,
		Dosage:     dosage,
		IssuedAt:   s.now().UTC(),
	}
}

// snapshot copies the patients with lo <= seq <= hi; hi < 0 means no upper
// bound. Bounds are located by binary search over the seq-ordered slice.
func (s *Store) snapshot(lo, hi int) []Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.order), func(i int) bool { return s.order[i].Seq >= lo })
	end := len(s.order)
	if hi >= 0 {
		end = sort.Search(len(s.order), func(i int) bool { return s.order[i].Seq > hi })
	}
	if start >= end {
		return nil
	}
	out := make([]Patient, end-start)
	for i, p := range s.order[start:end] {
		out[i] = p.snapshot()
	}
	return out
}

// indexOf locates seq in the ordered slice. The caller holds the lock and
// guarantees seq is present.
func (s *Store) indexOf(seq int) int {
	return sort.Search(len(s.order), func(i int) bool { return s.order[i].Seq >= seq })
}

// ParseKey extracts the sequence number from a patient key such as "P0042".
func ParseKey(key string) (int, error) {
	if len(key) < 2 || (key[0] != 'P' && key[0] != 'p') {
		return 0, fmt.Errorf("malformed patient key %q: %w", key, ErrValidation)
	}
	seq, err := strconv.Atoi(key[1:])
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("malformed patient key %q: %w", key, ErrValidation)
	}
	return seq, nil
}
