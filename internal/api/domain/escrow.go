package domain

// EscrowState mirrors the settlement contract state.
type EscrowState string

const (
	EscrowAwaitingPayment  EscrowState = "AWAITING_PAYMENT"
	EscrowAwaitingDelivery EscrowState = "AWAITING_DELIVERY"
	EscrowComplete         EscrowState = "COMPLETE"
	EscrowRefunded         EscrowState = "REFUNDED"
)

// IsTerminal reports whether the escrow can no longer move.
func (s EscrowState) IsTerminal() bool {
	return s == EscrowComplete || s == EscrowRefunded
}

// EscrowAction is a settlement call that has been persisted but not yet
// applied. An escrow with a pending action is awaiting reconciliation.
type EscrowAction string

const (
	EscrowActionFund    EscrowAction = "fund"
	EscrowActionConfirm EscrowAction = "confirm"
	EscrowActionRefund  EscrowAction = "refund"
)

// TargetState is the escrow state the action drives towards.
func (a EscrowAction) TargetState() EscrowState {
	switch a {
	case EscrowActionFund:
		return EscrowAwaitingDelivery
	case EscrowActionConfirm:
		return EscrowComplete
	case EscrowActionRefund:
		return EscrowRefunded
	default:
		return ""
	}
}

// JobStatus is the job status that must accompany the action's target state.
// Funding leaves the job where it is.
func (a EscrowAction) JobStatus() JobStatus {
	switch a {
	case EscrowActionConfirm:
		return JobStatusCompleted
	case EscrowActionRefund:
		return JobStatusCancelled
	default:
		return ""
	}
}
