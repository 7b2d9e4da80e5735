package review

import (
	"time"

	"reviewcamp/pkg/fsm"
	"reviewcamp/services/campaign"
	"reviewcamp/services/evidence"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusAIPassed          Status = "ai_passed"
	StatusNeedsReview       Status = "needs_review"
	StatusApproved          Status = "approved"
	StatusRevisionRequested Status = "revision_requested"
	StatusRejected          Status = "rejected"
)

// Machine holds the submission lifecycle. revision_requested loops back to
// pending on the same record.
var Machine = fsm.New("review_submission", map[Status][]Status{
	StatusPending:           {StatusAIPassed, StatusNeedsReview, StatusApproved, StatusRevisionRequested, StatusRejected},
	StatusAIPassed:          {StatusApproved, StatusRevisionRequested, StatusRejected},
	StatusNeedsReview:       {StatusApproved, StatusRevisionRequested, StatusRejected},
	StatusRevisionRequested: {StatusPending},
})

// Moderatable are the statuses an operator can act on.
var Moderatable = []Status{StatusPending, StatusAIPassed, StatusNeedsReview}

type ReviewSubmission struct {
	ID                 string                      `gorm:"column:id;primaryKey" json:"id"`
	ApplicationID      string                      `gorm:"column:application_id;not null;uniqueIndex" json:"application_id"`
	CampaignID         string                      `gorm:"column:campaign_id;not null;index" json:"campaign_id"`
	ReviewerID         string                      `gorm:"column:reviewer_id;not null;index" json:"reviewer_id"`
	Platform           campaign.Platform           `gorm:"column:platform;type:varchar(20);not null" json:"platform"`
	ReviewURL          string                      `gorm:"column:review_url;not null" json:"review_url"`
	EvidenceURLs       datatypes.JSONSlice[string] `gorm:"column:evidence_urls" json:"evidence_urls"`
	Status             Status                      `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	SubmissionCount    int                         `gorm:"column:submission_count;not null;default:1" json:"submission_count"`
	RevisionComment    string                      `gorm:"column:revision_comment;type:text" json:"revision_comment,omitempty"`
	RejectionReason    string                      `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	RewardPoint        int64                       `gorm:"column:reward_point;not null;default:0" json:"reward_point"`
	PointTransactionID string                      `gorm:"column:point_transaction_id" json:"point_transaction_id,omitempty"`
	CheckedAt          *time.Time                  `gorm:"column:checked_at" json:"checked_at,omitempty"`
	ReviewedBy         string                      `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time                  `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	SubmittedAt        time.Time                   `gorm:"column:submitted_at" json:"submitted_at"`
	CreatedAt          time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

type SubmitInput struct {
	ReviewURL string
	Files     []evidence.File
	URLs      []string
}
