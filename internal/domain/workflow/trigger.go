package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit          Trigger = "SUBMIT"
	TriggerStartReview     Trigger = "START_REVIEW"
	TriggerApprove         Trigger = "APPROVE"
	TriggerDirectorSignoff Trigger = "DIRECTOR_SIGNOFF"
	TriggerFinalize        Trigger = "FINALIZE"
	TriggerReject          Trigger = "REJECT"
	TriggerReimburse       Trigger = "REIMBURSE"
	TriggerProcessPayment  Trigger = "PROCESS_PAYMENT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
