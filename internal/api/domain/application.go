package domain

// ApplicationStatus is the state of a freelancer's offer on a job.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusAccepted, ApplicationStatusRejected:
		return true
	default:
		return false
	}
}
