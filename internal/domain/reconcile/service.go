// Package reconcile re-derives the patient-side caches from the
// authoritative appointment and prescription tables and finishes any
// prescription cascade that died halfway.
package reconcile

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/domain/prescription"
)

const pageSize = 200

type Service struct {
	patients      *patient.Service
	appointments  *appointment.Service
	prescriptions *prescription.Service
	workers       int
	logger        zerolog.Logger
}

func NewService(patients *patient.Service, appointments *appointment.Service, prescriptions *prescription.Service, workers int, logger zerolog.Logger) *Service {
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		patients:      patients,
		appointments:  appointments,
		prescriptions: prescriptions,
		workers:       workers,
		logger:        logger,
	}
}

type Report struct {
	PatientsScanned   int64 `json:"patients_scanned"`
	RefsRepaired      int64 `json:"refs_repaired"`
	CascadesCompleted int64 `json:"cascades_completed"`
	StatusRepaired    int64 `json:"status_repaired"`
	Errors            int64 `json:"errors"`
}

type counters struct {
	scanned  atomic.Int64
	refs     atomic.Int64
	cascades atomic.Int64
	statuses atomic.Int64
	errCount atomic.Int64
}

// Run walks every patient and repairs drift. Individual patient failures
// are counted, logged, and skipped; only a broken patient listing aborts
// the sweep.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	var c counters
	offset := 0
	for {
		page, _, err := s.patients.List(ctx, nil, pageSize, offset)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, p := range page {
			p := p
			g.Go(func() error {
				c.scanned.Add(1)
				if err := s.reconcilePatient(gctx, p, &c); err != nil {
					c.errCount.Add(1)
					s.logger.Error().Err(err).Str("patient_id", p.PatientID).Msg("reconcile failed for patient")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}

	return &Report{
		PatientsScanned:   c.scanned.Load(),
		RefsRepaired:      c.refs.Load(),
		CascadesCompleted: c.cascades.Load(),
		StatusRepaired:    c.statuses.Load(),
		Errors:            c.errCount.Load(),
	}, nil
}

// RunForPatient repairs a single patient.
func (s *Service) RunForPatient(ctx context.Context, patientID string) (*Report, error) {
	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	var c counters
	c.scanned.Add(1)
	if err := s.reconcilePatient(ctx, p, &c); err != nil {
		return nil, err
	}
	return &Report{
		PatientsScanned:   c.scanned.Load(),
		RefsRepaired:      c.refs.Load(),
		CascadesCompleted: c.cascades.Load(),
		StatusRepaired:    c.statuses.Load(),
	}, nil
}

func (s *Service) reconcilePatient(ctx context.Context, p *patient.Patient, c *counters) error {
	appts, err := s.appointments.ListByPatient(ctx, p.PatientID)
	if err != nil {
		return err
	}
	rxs, err := s.prescriptions.ListByPatient(ctx, p.PatientID)
	if err != nil {
		return err
	}

	// Finish cascades that inserted a prescription but never completed the
	// appointment.
	apptByID := make(map[string]*appointment.Appointment, len(appts))
	for _, a := range appts {
		apptByID[a.AppointmentID] = a
	}
	for _, rx := range rxs {
		if rx.AppointmentID == "" {
			continue
		}
		a, ok := apptByID[rx.AppointmentID]
		if !ok {
			continue
		}
		if a.Status == appointment.StatusCompleted && a.Completion.Done(appointment.StepPrescriptionIssued) {
			continue
		}
		repaired, err := s.appointments.CompleteForPrescription(ctx, rx.AppointmentID, appointment.PrescriptionRef{
			PrescriptionID:   rx.PrescriptionID,
			PrescriptionCode: rx.PrescriptionCode,
			IssuedBy:         rx.DoctorID.String(),
			IssuedAt:         rx.IssuedAt,
		}, "reconciler")
		if err != nil {
			return err
		}
		apptByID[rx.AppointmentID] = repaired
		c.cascades.Add(1)
	}

	// Rebuild the denormalized lists from the authoritative rows.
	expectedAppts := make([]patient.AppointmentRef, 0, len(appts))
	for _, a := range appts {
		cur := apptByID[a.AppointmentID]
		expectedAppts = append(expectedAppts, patient.AppointmentRef{
			AppointmentID: cur.AppointmentID,
			UID:           cur.ID,
			DoctorID:      cur.DoctorID,
			DoctorName:    cur.DoctorName,
			Status:        string(cur.Status),
			ScheduledDate: cur.ScheduledDate,
			ScheduledTime: cur.ScheduledTime,
		})
	}
	expectedRxs := make([]patient.PrescriptionRef, 0, len(rxs))
	for _, rx := range rxs {
		expectedRxs = append(expectedRxs, patient.PrescriptionRef{
			PrescriptionID:   rx.PrescriptionID,
			PrescriptionCode: rx.PrescriptionCode,
			AppointmentID:    rx.AppointmentID,
			DoctorID:         rx.DoctorID,
			DoctorName:       rx.DoctorName,
			IssuedAt:         rx.IssuedAt,
		})
	}
	if !apptRefsEqual(p.AppointmentRefs, expectedAppts) || !rxRefsEqual(p.PrescriptionRefs, expectedRxs) {
		if err := s.patients.ReplaceRefs(ctx, p.PatientID, expectedAppts, expectedRxs); err != nil {
			return err
		}
		c.refs.Add(1)
	}

	// A patient with an issued prescription must be at least Reported.
	if len(rxs) > 0 && p.WorkflowStatus != patient.StatusReported && p.WorkflowStatus != patient.StatusCompleted {
		if err := s.patients.Apply(ctx, p.PatientID, patient.EventPrescriptionIssued); err != nil {
			return err
		}
		c.statuses.Add(1)
	}
	return nil
}

func apptRefsEqual(got, want []patient.AppointmentRef) bool {
	if len(got) != len(want) {
		return false
	}
	byID := make(map[string]patient.AppointmentRef, len(got))
	for _, r := range got {
		byID[r.AppointmentID] = r
	}
	for _, w := range want {
		g, ok := byID[w.AppointmentID]
		if !ok || g.Status != w.Status || g.UID != w.UID {
			return false
		}
	}
	return true
}

func rxRefsEqual(got, want []patient.PrescriptionRef) bool {
	if len(got) != len(want) {
		return false
	}
	byID := make(map[string]bool, len(got))
	for _, r := range got {
		byID[r.PrescriptionID] = true
	}
	for _, w := range want {
		if !byID[w.PrescriptionID] {
			return false
		}
	}
	return true
}
