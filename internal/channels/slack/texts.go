package slack

// User-visible texts.
const (
	ProcessingText    = "🤔 Processing..."
	EmptyMentionText  = "Hello! How can I help you today?"
	UnknownUserText   = "Unable to identify user"
	RejectedPrefix    = "❌ Rejected. Agent response:\n"
	NoReasonText      = "No reason provided"
	ApprovedText      = ":white_check_mark: Approved"
	RejectedText      = ":x: Rejected"
	ApproveButtonText = "Approve"
	RejectButtonText  = "Reject"
)

// Block and action ids of the rejection-reason modal.
const (
	ApprovalActionsBlockID = "approval_actions"
	ReasonBlockID          = "reason_block"
	ReasonInputActionID    = "reason_input"
)

// ApprovalStatus is the final state shown on an approval message.
type ApprovalStatus string

const (
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// Text returns the message text for the status.
func (s ApprovalStatus) Text() string {
	if s == StatusApproved {
		return ApprovedText
	}
	return RejectedText
}

// ThreadID keys conversation memory by the thread a message belongs to.
// Top-level messages start their own thread.
func ThreadID(channel, threadTS, ts string) string {
	if threadTS == "" {
		threadTS = ts
	}
	return channel + ":" + threadTS
}
