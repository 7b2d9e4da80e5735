package notification

import "time"

type Kind string

const (
	KindCampaignApproved        Kind = "campaign.approved"
	KindCampaignRejected        Kind = "campaign.rejected"
	KindCampaignClosed          Kind = "campaign.closed"
	KindCampaignCancelled       Kind = "campaign.cancelled"
	KindApplicationSelected     Kind = "application.selected"
	KindApplicationRejected     Kind = "application.rejected"
	KindVerificationApproved    Kind = "verification.approved"
	KindVerificationRejected    Kind = "verification.rejected"
	KindReviewApproved          Kind = "review.approved"
	KindReviewRevisionRequested Kind = "review.revision_requested"
	KindReviewRejected          Kind = "review.rejected"
	KindReviewDeadlineReminder  Kind = "review.deadline_reminder"
	KindWithdrawalRejected      Kind = "withdrawal.rejected"
	KindWithdrawalCompleted     Kind = "withdrawal.completed"
	KindPaymentConfirmed        Kind = "payment.confirmed"
	KindPaymentCancelled        Kind = "payment.cancelled"
)

// Event is the message published for one notification.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
