package patient

// Event is a workflow occurrence that can move the patient-level status.
// The projector is the only code path that computes workflow_status; callers
// apply events instead of writing the status field directly.
type Event string

const (
	EventDoctorAssigned     Event = "doctor_assigned"
	EventDoctorUnassigned   Event = "doctor_unassigned"
	EventAssessmentStarted  Event = "assessment_started"
	EventDiagnosisRecorded  Event = "diagnosis_recorded"
	EventPrescriptionIssued Event = "prescription_issued"
	EventEpisodeClosed      Event = "episode_closed"
)

// Project returns the status after applying ev to current. Progress events
// never demote: applying an assignment event to a patient already in
// assessment leaves the status alone. The only demotions are unassignment
// (guarded by the caller with the recent-appointment look-back) and the
// new-episode reset, which does not go through the projector at all.
func Project(current WorkflowStatus, ev Event) WorkflowStatus {
	if current == "" {
		current = StatusNew
	}
	switch ev {
	case EventDoctorAssigned:
		return promote(current, StatusAssigned)
	case EventDoctorUnassigned:
		if statusRank[current] >= statusRank[StatusReported] {
			return current
		}
		return StatusNew
	case EventAssessmentStarted:
		return promote(current, StatusDoctorOpened)
	case EventDiagnosisRecorded:
		return promote(current, StatusInProgress)
	case EventPrescriptionIssued:
		return promote(current, StatusReported)
	case EventEpisodeClosed:
		return StatusCompleted
	}
	return current
}

func promote(current, target WorkflowStatus) WorkflowStatus {
	if statusRank[target] > statusRank[current] {
		return target
	}
	return current
}
