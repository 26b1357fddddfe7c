package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/registry/internal/config"
	"github.com/ehr/registry/internal/domain/records"
)

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the registry pipeline once over synthetic patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, _ := cmd.Flags().GetInt("patients")
			schedule, _ := cmd.Flags().GetInt("schedule")
			seedVal, _ := cmd.Flags().GetUint64("seed")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if seedVal != 0 {
				cfg.RandomSeed = seedVal
			}
			return runDemo(cmd.OutOrStdout(), cfg, patients, schedule)
		},
	}
	cmd.Flags().Int("patients", 10, "Number of synthetic patients to register")
	cmd.Flags().Int("schedule", 5, "Number of registered patients to schedule at random")
	cmd.Flags().Uint64("seed", 0, "Random seed (overrides RANDOM_SEED)")
	return cmd
}

// runDemo registers, schedules, processes and prescribes in one pass and
// prints each stage as a table.
func runDemo(w io.Writer, cfg *config.Config, patients, schedule int) error {
	a := newApp(cfg, zerolog.Nop(), nil)

	created, err := a.svc.Register(patients, a.gen)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Registered %d patient(s)\n", len(created))
	printPatients(w, created)

	results, err := a.svc.ScheduleRandom(schedule)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nScheduled %d appointment(s)\n", len(results))
	fmt.Fprintf(w, "%-8s %-6s %-12s %s\n", "PATIENT", "DOCTOR", "DATE", "DETAIL")
	for _, r := range results {
		if !r.OK {
			fmt.Fprintf(w, "%-8s %-6s %-12s %v\n", r.PatientKey, "-", "-", r.Err)
			continue
		}
		appt := r.Appointment
		fmt.Fprintf(w, "%-8s %-6s %-12s %s\n", appt.PatientKey, appt.DoctorKey, appt.Date.Format("2006-01-02"), appt.Detail)
	}

	processed, ok := a.svc.ProcessQueue()
	if !ok {
		fmt.Fprintln(w, "\nConsultation queue is empty")
		return nil
	}
	fmt.Fprintf(w, "\nProcessed %d patient(s)\n", len(processed))
	printPatients(w, processed)

	issued, _ := a.svc.IssuePrescriptions()
	fmt.Fprintf(w, "\nIssued %d prescription(s)\n", len(issued))
	fmt.Fprintf(w, "%-8s %-8s %-18s %s\n", "RX", "PATIENT", "MEDICATION", "DOSAGE")
	for _, is := range issued {
		fmt.Fprintf(w, "%-8s %-8s %-18s %s\n", is.Prescription.Key, is.Patient.Key, is.Prescription.Medication, is.Prescription.Dosage)
	}
	return nil
}

func printPatients(w io.Writer, ps []records.Patient) {
	fmt.Fprintf(w, "%-8s %-24s %-14s %s\n", "KEY", "NAME", "CONDITION", "AGE")
	for _, p := range ps {
		fmt.Fprintf(w, "%-8s %-24s %-14s %d\n", p.Key, p.Name, p.Condition, p.Age)
	}
}

func doctorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctors",
		Short: "Print the doctor roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			printDoctors(cmd.OutOrStdout(), records.NewStore(records.DefaultRoster).Doctors())
			return nil
		},
	}
}

func printDoctors(w io.Writer, doctors []records.Doctor) {
	fmt.Fprintf(w, "%-4s %-24s %s\n", "KEY", "NAME", "SPECIALTY")
	for _, d := range doctors {
		fmt.Fprintf(w, "%-4s %-24s %s\n", d.Key, d.Name, d.Specialty)
	}
}
