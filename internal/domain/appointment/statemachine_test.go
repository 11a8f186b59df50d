package appointment

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusScheduled, StatusConfirmed},
		{StatusScheduled, StatusInProgress},
		{StatusScheduled, StatusCancelled},
		{StatusScheduled, StatusNoShow},
		{StatusScheduled, StatusRescheduled},
		{StatusConfirmed, StatusInProgress},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusNoShow},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusScheduled, StatusCompleted},
		{StatusConfirmed, StatusRescheduled},
		{StatusConfirmed, StatusScheduled},
		{StatusInProgress, StatusNoShow},
		{StatusInProgress, StatusScheduled},
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusScheduled},
		{StatusNoShow, StatusConfirmed},
		{StatusRescheduled, StatusScheduled},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusScheduled, StatusConfirmed, StatusInProgress} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be live", s)
		}
	}
}

func TestAdvancePhase_NeverRegresses(t *testing.T) {
	if got := advancePhase(PhaseDiagnosed, PhaseAssigned); got != PhaseDiagnosed {
		t.Errorf("expected diagnosed to stick, got %s", got)
	}
	if got := advancePhase(PhaseRegistered, PhaseInAssessment); got != PhaseInAssessment {
		t.Errorf("expected promotion, got %s", got)
	}
	if got := advancePhase("", PhaseAssigned); got != PhaseAssigned {
		t.Errorf("expected empty phase to take target, got %s", got)
	}
}

func TestCompletionMark_Sticky(t *testing.T) {
	cs := CompletionStatus{}
	first := mustTime(t, "2026-08-30T10:00:00Z")
	cs.Mark(StepVitalsRecorded, "dr-1", first)
	cs.Mark(StepVitalsRecorded, "dr-2", mustTime(t, "2026-08-31T10:00:00Z"))

	m := cs[StepVitalsRecorded]
	if !m.Completed || m.CompletedBy != "dr-1" || !m.CompletedAt.Equal(first) {
		t.Errorf("expected first mark to stick, got %+v", m)
	}
}
