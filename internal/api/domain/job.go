package domain

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var allowedJobTransitions = map[JobStatus][]JobStatus{
	JobStatusOpen:       {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// CanTransitionTo reports whether the job state machine allows s -> next.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range allowedJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
