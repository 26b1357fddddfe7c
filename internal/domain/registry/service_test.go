package registry

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/registry/internal/domain/consultation"
	"github.com/ehr/registry/internal/domain/records"
	"github.com/ehr/registry/internal/domain/scheduling"
)

// -- Fakes --

type fixedGenerator struct{}

func (fixedGenerator) Generate(n int) []records.NewPatient {
	out := make([]records.NewPatient, n)
	for i := range out {
		out[i] = records.NewPatient{
			Name:      fmt.Sprintf("Patient %d", i+1),
			Condition: string(records.Conditions[i%len(records.Conditions)]),
			Age:       20 + i,
		}
	}
	return out
}

type stubPrescriber struct{ calls int }

func (s *stubPrescriber) Prescribe(p records.Patient) (records.Medication, string) {
	s.calls++
	return records.MedicationAnalgesic, fmt.Sprintf("dose-%d", s.calls)
}

func newTestService() *Service {
	store := records.NewStore(records.DefaultRoster)
	queue := consultation.NewQueue()
	sched := scheduling.NewScheduler(store, queue,
		scheduling.WithRand(rand.New(rand.NewPCG(1, 2))),
		scheduling.WithClock(func() time.Time { return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) }),
	)
	return New(store, queue, sched, &stubPrescriber{}, nil)
}

func registerN(t *testing.T, s *Service, n int) []records.Patient {
	t.Helper()
	ps, err := s.Register(n, fixedGenerator{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return ps
}

func keys(ps []records.Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Key
	}
	return out
}

func ledgerLen(t *testing.T, s *Service, key string) int {
	t.Helper()
	p, err := s.store.Find(key)
	if err != nil {
		t.Fatalf("find %s: %v", key, err)
	}
	return p.Ledger.Len()
}

func peekKeys(s *Service) []string {
	var out []string
	for p := range s.PeekQueue() {
		out = append(out, p.Key)
	}
	return out
}

// -- Tests --

func TestService_Register(t *testing.T) {
	s := newTestService()
	ps := registerN(t, s, 3)
	if !slices.Equal(keys(ps), []string{"P0001", "P0002", "P0003"}) {
		t.Errorf("unexpected keys %v", keys(ps))
	}
	for _, p := range ps {
		st, err := s.State(p.Key)
		if err != nil || st != StateRegistered {
			t.Errorf("expected registered, got %s (%v)", st, err)
		}
	}
}

func TestService_Register_Validation(t *testing.T) {
	s := newTestService()
	if _, err := s.Register(-1, fixedGenerator{}); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation for negative count, got %v", err)
	}
	if _, err := s.Register(2, nil); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation for nil generator, got %v", err)
	}
	_, err := s.RegisterPatients([]records.NewPatient{{Name: "Ada", Condition: "flu", Age: -3}})
	if !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation for negative age, got %v", err)
	}
}

func TestService_Register_BatchLimit(t *testing.T) {
	s := newTestService().WithMaxBatch(3)

	if _, err := s.Register(10_000_000_000, fixedGenerator{}); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation for a huge count, got %v", err)
	}
	if _, err := s.Register(4, fixedGenerator{}); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation above the limit, got %v", err)
	}
	if _, err := s.RegisterPatients(fixedGenerator{}.Generate(4)); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation for an oversized batch, got %v", err)
	}
	if s.store.Len() != 0 {
		t.Errorf("rejected batches must not register anyone, got %d", s.store.Len())
	}
	if ps := registerN(t, s, 3); len(ps) != 3 {
		t.Errorf("expected 3 patients at the limit, got %d", len(ps))
	}
}

func TestService_ScenarioFIFOProcessing(t *testing.T) {
	s := newTestService()
	registerN(t, s, 3)

	if _, err := s.Schedule("P0001", scheduling.DoctorKey("D1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Schedule("P0002", scheduling.DoctorKey("D1")); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.State("P0001"); st != StateQueued {
		t.Errorf("expected queued, got %s", st)
	}
	if st, _ := s.State("P0003"); st != StateRegistered {
		t.Errorf("expected P0003 still registered, got %s", st)
	}

	processed, ok := s.ProcessQueue()
	if !ok {
		t.Fatal("expected processed patients")
	}
	if !slices.Equal(keys(processed), []string{"P0001", "P0002"}) {
		t.Errorf("expected [P0001 P0002], got %v", keys(processed))
	}
	if len(peekKeys(s)) != 0 {
		t.Error("expected empty queue after processing")
	}
	if st, _ := s.State("P0002"); st != StateProcessed {
		t.Errorf("expected processed, got %s", st)
	}

	if again, ok := s.ProcessQueue(); ok || again != nil {
		t.Errorf("expected empty result, got %v", keys(again))
	}
}

func TestService_PeekQueue_Idempotent(t *testing.T) {
	s := newTestService()
	registerN(t, s, 3)
	s.Schedule("P0003", scheduling.AnyDoctor())
	s.Schedule("P0001", scheduling.AnyDoctor())

	first, second := peekKeys(s), peekKeys(s)
	if !slices.Equal(first, second) || !slices.Equal(first, []string{"P0003", "P0001"}) {
		t.Errorf("peek not idempotent: %v vs %v", first, second)
	}
}

func TestService_ScheduleRandom_TooManyDoesNotMutate(t *testing.T) {
	s := newTestService()
	registerN(t, s, 3)

	if _, err := s.ScheduleRandom(5); !errors.Is(err, records.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(peekKeys(s)) != 0 || len(s.Appointments()) != 0 {
		t.Error("queue and appointment log must be untouched")
	}
	n := 0
	for p := range s.ListPatients() {
		n++
		if st, _ := s.State(p.Key); st != StateRegistered {
			t.Errorf("expected %s registered, got %s", p.Key, st)
		}
	}
	if n != 3 {
		t.Errorf("expected 3 patients, got %d", n)
	}
}

func TestService_ScheduleRandom(t *testing.T) {
	s := newTestService()
	registerN(t, s, 4)

	results, err := s.ScheduleRandom(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	queued := 0
	for _, r := range results {
		if !r.OK {
			t.Errorf("expected success for %s", r.PatientKey)
		}
		if st, _ := s.State(r.PatientKey); st == StateQueued {
			queued++
		}
	}
	if queued != 3 || len(peekKeys(s)) != 3 {
		t.Errorf("expected 3 queued, got %d states / %d entries", queued, len(peekKeys(s)))
	}
}

func TestService_IssuePrescriptions_NothingToIssue(t *testing.T) {
	s := newTestService()
	ps := registerN(t, s, 2)

	issued, ok := s.IssuePrescriptions()
	if ok || issued != nil {
		t.Errorf("expected nothing to issue, got %v", issued)
	}
	for _, p := range ps {
		if ledgerLen(t, s, p.Key) != 0 {
			t.Errorf("ledger of %s changed", p.Key)
		}
	}

	// Scheduled but not yet processed patients are not eligible either.
	s.Schedule("P0001", scheduling.AnyDoctor())
	if _, ok := s.IssuePrescriptions(); ok {
		t.Error("queued patients must not receive prescriptions")
	}
}

func TestService_IssuePrescriptions(t *testing.T) {
	s := newTestService()
	registerN(t, s, 3)
	s.Schedule("P0002", scheduling.DoctorKey("D2"))
	s.Schedule("P0001", scheduling.DoctorKey("D1"))
	s.ProcessQueue()

	issued, ok := s.IssuePrescriptions()
	if !ok || len(issued) != 2 {
		t.Fatalf("expected 2 issued, got %d (ok=%v)", len(issued), ok)
	}
	if issued[0].Patient.Key != "P0002" || issued[1].Patient.Key != "P0001" {
		t.Errorf("expected issuance in processing order, got %s, %s", issued[0].Patient.Key, issued[1].Patient.Key)
	}
	if issued[0].Prescription.Key == issued[1].Prescription.Key {
		t.Error("prescription keys must be unique")
	}
	if ledgerLen(t, s, "P0001") != 1 || ledgerLen(t, s, "P0002") != 1 || ledgerLen(t, s, "P0003") != 0 {
		t.Error("unexpected ledger sizes")
	}
	if st, _ := s.State("P0001"); st != StatePrescribed {
		t.Errorf("expected prescribed, got %s", st)
	}
	if len(s.Processed()) != 0 {
		t.Error("processed set must be cleared")
	}
	if _, ok := s.IssuePrescriptions(); ok {
		t.Error("second issuance must find nothing")
	}
}

func TestService_PopPrescription(t *testing.T) {
	s := newTestService()
	registerN(t, s, 1)
	for i := 0; i < 2; i++ {
		s.Schedule("P0001", scheduling.AnyDoctor())
		s.ProcessQueue()
		s.IssuePrescriptions()
	}

	sum, _ := s.FindPatient("P0001")
	if len(sum.Prescriptions) != 2 || sum.Prescriptions[0].Dosage != "dose-2" {
		t.Fatalf("expected newest first, got %+v", sum.Prescriptions)
	}
	if sum.LatestPrescription == nil || sum.LatestPrescription.Key != sum.Prescriptions[0].Key {
		t.Errorf("expected latest prescription %s, got %+v", sum.Prescriptions[0].Key, sum.LatestPrescription)
	}

	rx, ok, err := s.PopPrescription("P0001")
	if err != nil || !ok || rx.Dosage != "dose-2" {
		t.Errorf("expected dose-2, got %+v (ok=%v, err=%v)", rx, ok, err)
	}
	rx, ok, _ = s.PopPrescription("P0001")
	if !ok || rx.Dosage != "dose-1" {
		t.Errorf("expected dose-1, got %+v", rx)
	}
	if _, ok, err := s.PopPrescription("P0001"); ok || err != nil {
		t.Errorf("expected empty result, got ok=%v err=%v", ok, err)
	}
	if _, _, err := s.PopPrescription("P0404"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_RemovePatient_Cascades(t *testing.T) {
	s := newTestService()
	registerN(t, s, 3)
	s.Schedule("P0001", scheduling.AnyDoctor())
	s.ProcessQueue()
	s.Schedule("P0001", scheduling.AnyDoctor())
	s.Schedule("P0002", scheduling.AnyDoctor())

	if err := s.RemovePatient("P0001"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := s.FindPatient("P0001"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if _, err := s.State("P0001"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected state to be dropped, got %v", err)
	}
	if got := peekKeys(s); !slices.Equal(got, []string{"P0002"}) {
		t.Errorf("expected queue [P0002], got %v", got)
	}
	for _, a := range s.Appointments() {
		if a.PatientKey == "P0001" {
			t.Error("appointment log still references removed patient")
		}
	}
	if len(s.Processed()) != 0 {
		t.Error("processed set still references removed patient")
	}
	if _, ok := s.IssuePrescriptions(); ok {
		t.Error("removed patient must not be issued a prescription")
	}

	if err := s.RemovePatient("P0001"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestService_UpdatePatient(t *testing.T) {
	s := newTestService()
	registerN(t, s, 1)

	updated, err := s.UpdatePatient("P0001", records.FieldAge, "77")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Age != 77 || updated.Ledger != nil {
		t.Errorf("expected a detached record with age 77, got %+v", updated)
	}
	sum, _ := s.FindPatient("P0001")
	if sum.Age != 77 {
		t.Errorf("expected age 77, got %d", sum.Age)
	}
	if _, err := s.UpdatePatient("P0009", records.FieldAge, "1"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UpdatePatient("P0001", "height", "1"); !errors.Is(err, records.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestService_FindPatient_Summary(t *testing.T) {
	s := newTestService()
	registerN(t, s, 2)

	sum, err := s.FindPatient("P0002")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if sum.Appointment != nil || len(sum.Appointments) != 0 || len(sum.Prescriptions) != 0 || sum.LatestPrescription != nil {
		t.Errorf("expected empty history, got %+v", sum)
	}

	first, _ := s.Schedule("P0002", scheduling.DoctorKey("D3"))
	second, _ := s.Schedule("P0002", scheduling.DoctorKey("D4"))
	sum, _ = s.FindPatient("P0002")
	if sum.Appointment == nil || sum.Appointment.ID != second.ID {
		t.Errorf("expected latest appointment %s", second.ID)
	}
	if len(sum.Appointments) != 2 || sum.Appointments[0].ID != first.ID {
		t.Errorf("unexpected appointment history %+v", sum.Appointments)
	}
	if sum.State != StateQueued {
		t.Errorf("expected queued, got %s", sum.State)
	}
}

func TestService_SearchPatients(t *testing.T) {
	s := newTestService()
	registerN(t, s, 5)

	seq, err := s.SearchPatients("P0002", "P0003")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var got []string
	for p := range seq {
		got = append(got, p.Key)
	}
	if !slices.Equal(got, []string{"P0002", "P0003"}) {
		t.Errorf("unexpected range %v", got)
	}
}

func TestService_ListDoctors(t *testing.T) {
	s := newTestService()
	if len(s.ListDoctors()) != len(records.DefaultRoster) {
		t.Errorf("expected full roster")
	}
}

func TestConditionPrescriber(t *testing.T) {
	rx := NewConditionPrescriber(rand.New(rand.NewPCG(3, 4)))
	for _, c := range records.Conditions {
		med, dosage := rx.Prescribe(records.Patient{Condition: c})
		if med != treatments[c].medication {
			t.Errorf("%s: expected %s, got %s", c, treatments[c].medication, med)
		}
		if !slices.Contains(treatments[c].dosages, dosage) {
			t.Errorf("%s: unexpected dosage %q", c, dosage)
		}
	}
}

func TestService_LogsPipelineEvents(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService().WithLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))
	registerN(t, s, 2)
	s.Schedule("P0001", scheduling.AnyDoctor())
	s.ProcessQueue()
	s.IssuePrescriptions()

	out := buf.String()
	for _, msg := range []string{"consultation queue drained", "prescriptions issued"} {
		if !strings.Contains(out, msg) {
			t.Errorf("expected %q in log output %q", msg, out)
		}
	}
	if strings.Contains(out, "patients registered") {
		t.Error("registration is logged at debug and should be filtered at the default level")
	}
}

func TestService_ConcurrentScheduleAndProcess(t *testing.T) {
	s := newTestService()
	ps := registerN(t, s, 8)

	const perPatient = 25
	booked := make(map[string]int)
	var bookedMu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range ps {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			n := 0
			for i := 0; i < perPatient; i++ {
				if _, err := s.Schedule(key, scheduling.AnyDoctor()); err != nil {
					t.Errorf("schedule %s: %v", key, err)
					continue
				}
				n++
			}
			bookedMu.Lock()
			booked[key] += n
			bookedMu.Unlock()
		}(p.Key)
	}

	drained := make(map[string]int)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			out, _ := s.ProcessQueue()
			for _, p := range out {
				drained[p.Key]++
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-done
	out, _ := s.ProcessQueue()
	for _, p := range out {
		drained[p.Key]++
	}

	for _, p := range ps {
		if booked[p.Key] != perPatient || drained[p.Key] != perPatient {
			t.Errorf("%s: booked %d, drained %d, want %d", p.Key, booked[p.Key], drained[p.Key], perPatient)
		}
	}
	if got := len(s.Appointments()); got != len(ps)*perPatient {
		t.Errorf("expected %d appointments, got %d", len(ps)*perPatient, got)
	}
	if len(peekKeys(s)) != 0 {
		t.Error("expected an empty queue after the final drain")
	}
}

func TestService_ConcurrentRemoveAndIssue(t *testing.T) {
	s := newTestService()
	ps := registerN(t, s, 20)
	for _, p := range ps {
		s.Schedule(p.Key, scheduling.AnyDoctor())
	}
	s.ProcessQueue()

	removed := make(map[string]bool)
	var issued []Issued
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < len(ps); i += 2 {
			if err := s.RemovePatient(ps[i].Key); err != nil {
				t.Errorf("remove %s: %v", ps[i].Key, err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if out, ok := s.IssuePrescriptions(); ok {
				issued = append(issued, out...)
			}
		}
	}()
	wg.Wait()
	for i := 0; i < len(ps); i += 2 {
		removed[ps[i].Key] = true
	}

	patients := make(map[string]bool)
	rxKeys := make(map[string]bool)
	for _, is := range issued {
		if patients[is.Patient.Key] {
			t.Errorf("%s was issued twice", is.Patient.Key)
		}
		patients[is.Patient.Key] = true
		if rxKeys[is.Prescription.Key] {
			t.Errorf("prescription key %s reused", is.Prescription.Key)
		}
		rxKeys[is.Prescription.Key] = true
	}
	for _, p := range ps {
		if removed[p.Key] {
			continue
		}
		if n := ledgerLen(t, s, p.Key); n != 1 {
			t.Errorf("%s: expected one prescription, got %d", p.Key, n)
		}
		if st, _ := s.State(p.Key); st != StatePrescribed {
			t.Errorf("%s: expected prescribed, got %s", p.Key, st)
		}
	}
	if len(s.Processed()) != 0 {
		t.Error("processed set must be empty")
	}
	if _, ok := s.IssuePrescriptions(); ok {
		t.Error("nothing should remain to issue")
	}
}
