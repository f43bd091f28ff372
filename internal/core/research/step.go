package research

// Step statuses.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepFailed     = "failed"
)

// NeedsExecution reports whether a step in status must run (again) when a
// plan is executed. Steps left in_progress or failed by an interrupted run
// are re-executed from the start.
func NeedsExecution(status string) bool {
	return status != StepCompleted
}

// AllCompleted reports whether every status is completed. An empty plan is
// not complete.
func AllCompleted(statuses []string) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if s != StepCompleted {
			return false
		}
	}
	return true
}
