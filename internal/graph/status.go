package graph

import "fmt"

// --- Status state machine for flows ---
//
// A flow's overall status and completion are derived from its steps; they
// are never set directly.

// StepIndex returns the position of stepID within the flow, or -1.
func StepIndex(f *Flow, stepID string) int {
	for i, s := range f.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// SetStepStatus changes one step's status and recomputes the flow.
func SetStepStatus(f *Flow, stepID string, status Status) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	idx := StepIndex(f, stepID)
	if idx < 0 {
		return fmt.Errorf("unknown step %q in flow %q", stepID, f.ID)
	}
	f.Steps[idx].Status = status
	Recompute(f)
	f.UpdatedAt = timeNow().UTC().Format("2006-01-02T15:04:05Z07:00")
	return nil
}

// Recompute derives the flow's status and completion percentage from its
// steps. A flow with no steps keeps its declared status.
func Recompute(f *Flow) {
	if len(f.Steps) == 0 {
		if f.Status == "" {
			f.Status = StatusPending
		}
		return
	}

	counts := make(map[Status]int, len(validStatuses))
	for _, s := range f.Steps {
		st := s.Status
		if st == "" {
			st = StatusPending
		}
		counts[st]++
	}
	total := len(f.Steps)
	f.Completion = counts[StatusCompleted] * 100 / total

	switch {
	case counts[StatusCompleted] == total:
		f.Status = StatusCompleted
	case counts[StatusBlocked] > 0:
		f.Status = StatusBlocked
	case counts[StatusNeedsReview] > 0:
		f.Status = StatusNeedsReview
	case counts[StatusInProgress] > 0 || counts[StatusCompleted] > 0:
		f.Status = StatusInProgress
	default:
		f.Status = StatusPending
	}
}
