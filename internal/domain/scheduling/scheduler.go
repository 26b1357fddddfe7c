// Package scheduling books patients with doctors and feeds the
// consultation queue.
package scheduling

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/registry/internal/domain/records"
)

// DefaultHorizonDays is how far ahead appointment dates are drawn.
const DefaultHorizonDays = 365

// Directory resolves patients and doctors for the scheduler. Find returns
// the shared record handed to the queue; View reads its fields safely.
type Directory interface {
	Find(key string) (*records.Patient, error)
	View(p *records.Patient) records.Patient
	Keys() []string
	Doctors() []records.Doctor
	Doctor(key string) (records.Doctor, error)
}

// Enqueuer receives each successfully scheduled patient.
type Enqueuer interface {
	Enqueue(p *records.Patient)
}

// Scheduler creates appointments and keeps the appointment log. Every
// successful booking appends exactly one log entry and one queue entry.
type Scheduler struct {
	mu          sync.RWMutex
	dir         Directory
	queue       Enqueuer
	rng         *rand.Rand
	now         func() time.Time
	horizonDays int
	log         []Appointment
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRand sets the random source used for doctor and date selection.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rng = r }
}

// WithClock sets the clock appointment dates are measured from.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithHorizon sets the number of days ahead dates may fall. Non-positive
// values keep the default.
func WithHorizon(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

// NewScheduler creates a scheduler over dir that enqueues into queue.
func NewScheduler(dir Directory, queue Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		dir:         dir,
		queue:       queue,
		now:         time.Now,
		horizonDays: DefaultHorizonDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := uint64(time.Now().UnixNano())
		s.rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return s
}

// Schedule books the patient stored under patientKey with the selected
// doctor and enqueues the patient for consultation.
func (s *Scheduler) Schedule(patientKey string, sel DoctorSelector) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(patientKey, sel)
}

// ScheduleRandom books n distinct patients, drawn without replacement, each
// with a random doctor. n is checked against the registry size before
// anything is booked.
func (s *Scheduler) ScheduleRandom(n int) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.dir.Keys()
	if n < 0 {
		return nil, fmt.Errorf("cannot schedule %d patients: %w", n, records.ErrValidation)
	}
	if n > len(keys) {
		return nil, fmt.Errorf("cannot schedule %d patients, only %d registered: %w", n, len(keys), records.ErrValidation)
	}
	if n > 0 && len(s.dir.Doctors()) == 0 {
		return nil, fmt.Errorf("no doctors on the roster: %w", records.ErrNotFound)
	}

	results := make([]Result, 0, n)
	for _, i := range s.rng.Perm(len(keys))[:n] {
		key := keys[i]
		appt, err := s.scheduleLocked(key, AnyDoctor())
		results = append(results, Result{PatientKey: key, Appointment: appt, OK: err == nil, Err: err})
	}
	return results, nil
}

func (s *Scheduler) scheduleLocked(patientKey string, sel DoctorSelector) (*Appointment, error) {
	rec, err := s.dir.Find(patientKey)
	if err != nil {
		return nil, err
	}
	doc, err := s.pickDoctor(sel)
	if err != nil {
		return nil, err
	}
	p := s.dir.View(rec)

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	appt := Appointment{
		ID:         uuid.New(),
		PatientKey: p.Key,
		DoctorKey:  doc.Key,
		Date:       today.AddDate(0, 0, 1+s.rng.IntN(s.horizonDays)),
		Detail:     fmt.Sprintf("%s with %s (%s) for %s", p.Name, doc.Name, doc.Specialty, p.Condition),
		CreatedAt:  now,
	}

	// Nothing below can fail, so the log entry and the queue entry are
	// recorded together.
	s.log = append(s.log, appt)
	s.queue.Enqueue(rec)
	return &appt, nil
}

func (s *Scheduler) pickDoctor(sel DoctorSelector) (records.Doctor, error) {
	if !sel.IsAny() {
		return s.dir.Doctor(sel.key)
	}
	docs := s.dir.Doctors()
	if len(docs) == 0 {
		return records.Doctor{}, fmt.Errorf("no doctors on the roster: %w", records.ErrNotFound)
	}
	return docs[s.rng.IntN(len(docs))], nil
}

// Appointments returns the log in booking order.
func (s *Scheduler) Appointments() []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Appointment, len(s.log))
	copy(out, s.log)
	return out
}

// ForPatient returns the patient's appointments in booking order.
func (s *Scheduler) ForPatient(key string) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.log {
		if a.PatientKey == key {
			out = append(out, a)
		}
	}
	return out
}

// Latest returns the patient's most recently booked appointment.
func (s *Scheduler) Latest(key string) (Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].PatientKey == key {
			return s.log[i], true
		}
	}
	return Appointment{}, false
}

// RemovePatient drops the patient's appointments from the log and reports
// how many were dropped.
func (s *Scheduler) RemovePatient(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.log[:0]
	for _, a := range s.log {
		if a.PatientKey != key {
			kept = append(kept, a)
		}
	}
	removed := len(s.log) - len(kept)
	clear(s.log[len(kept):])
	s.log = kept
	return removed
}

func (s *Scheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}
