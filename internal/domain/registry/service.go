package registry

import (
	"fmt"
	"iter"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/registry/internal/domain/consultation"
	"github.com/ehr/registry/internal/domain/records"
	"github.com/ehr/registry/internal/domain/scheduling"
	"github.com/ehr/registry/internal/platform/metrics"
)

// PatientGenerator produces registration inputs, typically synthetic ones
// for demos and load seeding.
type PatientGenerator interface {
	Generate(n int) []records.NewPatient
}

// Issued pairs a patient with the prescription pushed onto their ledger.
type Issued struct {
	Patient      records.Patient      `json:"patient"`
	Prescription records.Prescription `json:"prescription"`
}

// Summary is the search view of one patient.
type Summary struct {
	Key                string                   `json:"key"`
	Name               string                   `json:"name"`
	Condition          records.Condition        `json:"condition"`
	Age                int                      `json:"age"`
	State              State                    `json:"state"`
	Appointment        *scheduling.Appointment  `json:"appointment,omitempty"`
	Appointments       []scheduling.Appointment `json:"appointments"`
	LatestPrescription *records.Prescription    `json:"latest_prescription,omitempty"`
	Prescriptions      []records.Prescription   `json:"prescriptions"`
}

// DefaultMaxBatch caps how many patients one registration call may create.
const DefaultMaxBatch = 1000

// Service is the registry facade. Every mutating method holds the service
// lock for its whole duration, so batch operations such as ProcessQueue and
// IssuePrescriptions are atomic with respect to Schedule and RemovePatient.
// Patients handed out are snapshots; the live records never leave the
// facade.
type Service struct {
	mu        sync.Mutex
	store     *records.Store
	queue     *consultation.Queue
	sched     *scheduling.Scheduler
	rx        Prescriber
	metrics   *metrics.RegistryMetrics
	states    map[string]State
	processed []*records.Patient
	maxBatch  int
	log       zerolog.Logger
}

// New composes a facade over explicitly constructed stores. m may be nil.
func New(store *records.Store, queue *consultation.Queue, sched *scheduling.Scheduler, rx Prescriber, m *metrics.RegistryMetrics) *Service {
	return &Service{
		store:    store,
		queue:    queue,
		sched:    sched,
		rx:       rx,
		metrics:  m,
		states:   make(map[string]State),
		maxBatch: DefaultMaxBatch,
		log:      zerolog.Nop(),
	}
}

// WithMaxBatch overrides DefaultMaxBatch. Non-positive values are ignored.
func (s *Service) WithMaxBatch(n int) *Service {
	if n > 0 {
		s.maxBatch = n
	}
	return s
}

// WithLogger sets the logger used for pipeline events.
func (s *Service) WithLogger(l zerolog.Logger) *Service {
	s.log = l.With().Str("component", "registry").Logger()
	return s
}

// -- Patients --

// Register creates count patients from gen.
func (s *Service) Register(count int, gen PatientGenerator) ([]records.Patient, error) {
	if count < 0 {
		return nil, fmt.Errorf("count %d is negative: %w", count, records.ErrValidation)
	}
	if count > s.maxBatch {
		return nil, fmt.Errorf("count %d exceeds the batch limit of %d: %w", count, s.maxBatch, records.ErrValidation)
	}
	if gen == nil {
		return nil, fmt.Errorf("patient generator is required: %w", records.ErrValidation)
	}
	return s.RegisterPatients(gen.Generate(count))
}

// RegisterPatients creates one patient per input. Either all are created or
// none are.
func (s *Service) RegisterPatients(in []records.NewPatient) ([]records.Patient, error) {
	if len(in) > s.maxBatch {
		return nil, fmt.Errorf("%d patients exceed the batch limit of %d: %w", len(in), s.maxBatch, records.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.store.Register(in)
	if err != nil {
		return nil, err
	}
	for _, p := range created {
		s.states[p.Key] = StateRegistered
	}
	s.metrics.PatientsRegistered(len(created))
	s.log.Debug().Int("count", len(created)).Int("total", s.store.Len()).Msg("patients registered")
	return created, nil
}

// UpdatePatient sets one mutable field and returns the updated record.
func (s *Service) UpdatePatient(key string, field records.Field, value string) (records.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Update(key, field, value)
}

// RemovePatient deletes the patient and scrubs every structure that refers
// to it: queue entries, the appointment log and the processed set.
func (s *Service) RemovePatient(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Remove(key); err != nil {
		return err
	}
	s.queue.Remove(key)
	s.sched.RemovePatient(key)
	kept := s.processed[:0]
	for _, p := range s.processed {
		if p.Key != key {
			kept = append(kept, p)
		}
	}
	clear(s.processed[len(kept):])
	s.processed = kept
	delete(s.states, key)

	s.metrics.PatientRemoved()
	s.metrics.SetQueueDepth(s.queue.Len())
	s.log.Info().Str("patient", key).Msg("patient removed")
	return nil
}

// ListPatients yields every patient in registration order.
func (s *Service) ListPatients() iter.Seq[records.Patient] {
	return s.store.List()
}

// SearchPatients yields the patients with keys between from and to
// inclusive.
func (s *Service) SearchPatients(from, to string) (iter.Seq[records.Patient], error) {
	return s.store.Range(from, to)
}

func (s *Service) ListDoctors() []records.Doctor {
	return s.store.Doctors()
}

// FindPatient returns the patient's summary: current state, latest and past
// appointments, and prescriptions newest first.
func (s *Service) FindPatient(key string) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Find(key)
	if err != nil {
		return nil, err
	}
	v := s.store.View(p)
	sum := &Summary{
		Key:           v.Key,
		Name:          v.Name,
		Condition:     v.Condition,
		Age:           v.Age,
		State:         s.states[v.Key],
		Appointments:  s.sched.ForPatient(v.Key),
		Prescriptions: p.Ledger.Items(),
	}
	if latest, ok := s.sched.Latest(v.Key); ok {
		sum.Appointment = &latest
	}
	if rx, ok := p.Ledger.Peek(); ok {
		sum.LatestPrescription = &rx
	}
	if sum.Appointments == nil {
		sum.Appointments = []scheduling.Appointment{}
	}
	return sum, nil
}

// State reports the pipeline state of the patient stored under key.
func (s *Service) State(key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		return "", fmt.Errorf("patient %s: %w", key, records.ErrNotFound)
	}
	return st, nil
}

// -- Scheduling --

// Schedule books the patient and places them in the consultation queue.
func (s *Service) Schedule(key string, sel scheduling.DoctorSelector) (*scheduling.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, err := s.sched.Schedule(key, sel)
	if err != nil {
		return nil, err
	}
	s.states[key] = StateQueued
	s.metrics.AppointmentBooked(selectorLabel(sel))
	s.metrics.SetQueueDepth(s.queue.Len())
	return appt, nil
}

// ScheduleRandom books n distinct random patients with random doctors. It
// fails without booking anyone when n exceeds the number of patients.
func (s *Service) ScheduleRandom(n int) ([]scheduling.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.sched.ScheduleRandom(n)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.OK {
			s.states[r.PatientKey] = StateQueued
			s.metrics.AppointmentBooked("random")
		}
	}
	s.metrics.SetQueueDepth(s.queue.Len())
	s.log.Debug().Int("requested", n).Int("appointments", s.sched.Len()).Msg("random appointments booked")
	return results, nil
}

func (s *Service) Appointments() []scheduling.Appointment {
	return s.sched.Appointments()
}

// -- Consultation --

// ProcessQueue drains the consultation queue. Every drained patient becomes
// processed and joins the set awaiting prescriptions. ok is false when the
// queue was empty.
func (s *Service) ProcessQueue() ([]records.Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained, ok := s.queue.DrainAll()
	if !ok {
		return nil, false
	}
	out := make([]records.Patient, len(drained))
	for i, p := range drained {
		s.states[p.Key] = StateProcessed
		out[i] = s.store.View(p)
	}
	s.processed = append(s.processed, drained...)

	s.metrics.QueueDrained(len(drained))
	s.metrics.SetQueueDepth(0)
	s.log.Info().Int("processed", len(drained)).Msg("consultation queue drained")
	return out, true
}

// PeekQueue yields the queue in FIFO order without consuming it.
func (s *Service) PeekQueue() iter.Seq[records.Patient] {
	return func(yield func(records.Patient) bool) {
		for p := range s.queue.PeekOrder() {
			if !yield(s.store.View(p)) {
				return
			}
		}
	}
}

// Processed returns the patients waiting for prescriptions, in processing
// order.
func (s *Service) Processed() []records.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]records.Patient, len(s.processed))
	for i, p := range s.processed {
		out[i] = s.store.View(p)
	}
	return out
}

// -- Prescriptions --

// IssuePrescriptions pushes one prescription onto the ledger of every
// processed patient and then clears the processed set. ok is false when
// there was nothing to issue; no ledger is touched in that case.
func (s *Service) IssuePrescriptions() ([]Issued, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.processed) == 0 {
		return nil, false
	}

	issued := make([]Issued, 0, len(s.processed))
	for _, p := range s.processed {
		v := s.store.View(p)
		med, dosage := s.rx.Prescribe(v)
		rx := s.store.NewPrescription(med, dosage)
		p.Ledger.Push(rx)
		if s.states[p.Key] == StateProcessed {
			s.states[p.Key] = StatePrescribed
		}
		issued = append(issued, Issued{Patient: v, Prescription: rx})
	}
	s.processed = nil

	s.metrics.PrescriptionsIssued(len(issued))
	s.log.Info().Int("issued", len(issued)).Msg("prescriptions issued")
	return issued, true
}

// PopPrescription removes the most recent prescription from the patient's
// ledger. ok is false when the ledger is empty.
func (s *Service) PopPrescription(key string) (rx records.Prescription, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Find(key)
	if err != nil {
		return records.Prescription{}, false, err
	}
	rx, ok = p.Ledger.Pop()
	if ok {
		s.metrics.PrescriptionPopped()
		s.log.Debug().Str("patient", key).Str("prescription", rx.Key).Int("remaining", p.Ledger.Len()).Msg("prescription popped")
	}
	return rx, ok, nil
}

func selectorLabel(sel scheduling.DoctorSelector) string {
	if sel.IsAny() {
		return "random"
	}
	return "explicit"
}
