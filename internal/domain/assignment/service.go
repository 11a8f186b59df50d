// Package assignment coordinates doctor ownership across the patient and
// appointment records, keeping the two levels consistent without letting
// either one write the other's state directly.
package assignment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
	"github.com/clinicflow/clinicflow/internal/domain/directory"
	"github.com/clinicflow/clinicflow/internal/domain/patient"
	"github.com/clinicflow/clinicflow/internal/platform/notify"
)

type Service struct {
	patients     *patient.Service
	appointments *appointment.Service
	dir          *directory.Service
	notifier     notify.Notifier
	lookback     time.Duration
	logger       zerolog.Logger
}

// NewService wires the assignment manager. lookbackDays guards demotion on
// unassignment: a patient seen within the window keeps their workflow
// status when the doctor is removed.
func NewService(patients *patient.Service, appointments *appointment.Service, dir *directory.Service, notifier notify.Notifier, lookbackDays int, logger zerolog.Logger) *Service {
	return &Service{
		patients:     patients,
		appointments: appointments,
		dir:          dir,
		notifier:     notifier,
		lookback:     time.Duration(lookbackDays) * 24 * time.Hour,
		logger:       logger,
	}
}

// AssignPatient sets or clears the doctor who owns the patient. Passing a
// nil doctorID unassigns.
func (s *Service) AssignPatient(ctx context.Context, patientID string, doctorID *uuid.UUID, notes, actor string) (*patient.Patient, error) {
	if doctorID == nil {
		return s.unassignPatient(ctx, patientID, actor)
	}

	doc, err := s.dir.ActiveDoctor(ctx, *doctorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.SetAssignment(ctx, patientID, &patient.Assignment{
		DoctorID:   doc.ID,
		DoctorName: doc.Name,
		AssignedBy: actor,
		AssignedAt: time.Now().UTC(),
		Notes:      notes,
	}); err != nil {
		return nil, err
	}
	if err := s.patients.Apply(ctx, patientID, patient.EventDoctorAssigned); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("failed to project assignment")
	}
	s.notifier.Publish(ctx, notify.Event{
		Type:      notify.EventDoctorAssigned,
		PatientID: patientID,
		Actor:     actor,
	})
	return s.patients.Get(ctx, patientID)
}

func (s *Service) unassignPatient(ctx context.Context, patientID, actor string) (*patient.Patient, error) {
	p, err := s.patients.SetAssignment(ctx, patientID, nil)
	if err != nil {
		return nil, err
	}

	// Demote the workflow status only when the patient has had no live
	// appointment inside the look-back window; a recently seen patient is
	// mid-episode and keeps their place in the queue.
	recent, err := s.appointments.HasActivitySince(ctx, patientID, time.Now().Add(-s.lookback))
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("look-back query failed, skipping demotion")
	} else if !recent {
		if err := s.patients.Apply(ctx, patientID, patient.EventDoctorUnassigned); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID).Msg("failed to project unassignment")
		}
	}

	s.notifier.Publish(ctx, notify.Event{
		Type:      notify.EventDoctorUnassigned,
		PatientID: patientID,
		Actor:     actor,
	})
	if refreshed, err := s.patients.Get(ctx, patientID); err == nil {
		return refreshed, nil
	}
	return p, nil
}

// AssignAppointment sets or clears the doctor on one appointment and,
// when syncPatient is set, carries the same change to the patient level.
func (s *Service) AssignAppointment(ctx context.Context, appointmentID string, doctorID *uuid.UUID, notes string, syncPatient bool, actor string) (*appointment.Appointment, error) {
	a, err := s.appointments.AssignDoctor(ctx, appointmentID, doctorID, actor)
	if err != nil {
		return nil, err
	}
	if syncPatient {
		if _, err := s.AssignPatient(ctx, a.PatientID, doctorID, notes, actor); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", appointmentID).
				Str("patient_id", a.PatientID).
				Msg("appointment assigned but patient sync failed")
		}
	}
	return a, nil
}
