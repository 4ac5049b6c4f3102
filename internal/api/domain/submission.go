package domain

// SubmissionStatus is the review state of a work submission.
type SubmissionStatus string

const (
	SubmissionStatusSubmitted         SubmissionStatus = "submitted"
	SubmissionStatusRevisionRequested SubmissionStatus = "revision_requested"
	SubmissionStatusApproved          SubmissionStatus = "approved"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusSubmitted, SubmissionStatusRevisionRequested, SubmissionStatusApproved:
		return true
	default:
		return false
	}
}
