package verification

import (
	"time"

	"reviewcamp/pkg/fsm"
	"reviewcamp/services/evidence"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var Machine = fsm.New("purchase_verification", map[Status][]Status{
	StatusPending: {StatusApproved, StatusRejected},
})

type PurchaseVerification struct {
	ID              string                      `gorm:"column:id;primaryKey" json:"id"`
	ApplicationID   string                      `gorm:"column:application_id;not null;uniqueIndex" json:"application_id"`
	CampaignID      string                      `gorm:"column:campaign_id;not null;index" json:"campaign_id"`
	ReviewerID      string                      `gorm:"column:reviewer_id;not null;index" json:"reviewer_id"`
	OrderNumber     string                      `gorm:"column:order_number;not null" json:"order_number"`
	EvidenceURLs    datatypes.JSONSlice[string] `gorm:"column:evidence_urls" json:"evidence_urls"`
	Status          Status                      `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	RejectionReason string                      `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	ReviewedBy      string                      `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time                  `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt       time.Time                   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"column:updated_at" json:"updated_at"`
}

// SubmitInput carries new files for the evidence store and references to
// files that were stored beforehand.
type SubmitInput struct {
	OrderNumber string
	Files       []evidence.File
	URLs        []string
}
