package workflow

import (
	"context"

	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

func directorPending(_ context.Context, f domainwf.Facts) bool {
	return f.RequiresDirectorSignoff && !f.DirectorSigned
}

func directorSettled(ctx context.Context, f domainwf.Facts) bool {
	return !directorPending(ctx, f)
}

// BuildExpenseStateMachine creates a state machine configured for the expense lifecycle
func BuildExpenseStateMachine(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StateSubmitted)

	builder.Configure(domainwf.StateSubmitted).
		Permit(domainwf.TriggerStartReview, domainwf.StateUnderReview).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateUnderReview).
		Permit(domainwf.TriggerApprove, domainwf.StateApprovedL1).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateApprovedL1).
		Permit(domainwf.TriggerApprove, domainwf.StateApprovedL2).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateApprovedL2).
		Permit(domainwf.TriggerApprove, domainwf.StateApprovedL3).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	builder.Configure(domainwf.StateApprovedL3).
		Permit(domainwf.TriggerApprove, domainwf.StateApprovedFinance).
		Permit(domainwf.TriggerReject, domainwf.StateRejected)

	// Finance approval lands here; the expense finalizes immediately unless
	// a director sign-off is still outstanding
	builder.Configure(domainwf.StateApprovedFinance).
		PermitIf(domainwf.TriggerFinalize, domainwf.StateApproved, directorSettled).
		PermitIf(domainwf.TriggerDirectorSignoff, domainwf.StateApproved, directorPending).
		PermitIf(domainwf.TriggerReject, domainwf.StateRejected, directorPending)

	builder.Configure(domainwf.StateApproved).
		Permit(domainwf.TriggerReimburse, domainwf.StateReimbursed).
		Permit(domainwf.TriggerProcessPayment, domainwf.StatePaymentProcessed)

	builder.Configure(domainwf.StateReimbursed).
		Permit(domainwf.TriggerProcessPayment, domainwf.StatePaymentProcessed)

	// payment_processed and rejected are terminal

	return builder.Build(initialState)
}
