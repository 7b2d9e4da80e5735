package application

import (
	"time"

	"reviewcamp/pkg/fsm"
	"reviewcamp/services/campaign"
)

type Status string

const (
	StatusApplied   Status = "applied"
	StatusSelected  Status = "selected"
	StatusSettled   Status = "settled"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

var Machine = fsm.New("application", map[Status][]Status{
	StatusApplied:  {StatusSelected, StatusRejected, StatusCancelled},
	StatusSelected: {StatusSettled, StatusCancelled},
})

// Seated are the statuses that occupy one of the campaign's recruit seats.
var Seated = []Status{StatusSelected, StatusSettled}

type Application struct {
	ID              string            `gorm:"column:id;primaryKey" json:"id"`
	CampaignID      string            `gorm:"column:campaign_id;not null;uniqueIndex:idx_application_slot,priority:1" json:"campaign_id"`
	ReviewerID      string            `gorm:"column:reviewer_id;not null;uniqueIndex:idx_application_slot,priority:2;index" json:"reviewer_id"`
	Platform        campaign.Platform `gorm:"column:platform;type:varchar(20);not null;uniqueIndex:idx_application_slot,priority:3" json:"platform"`
	Status          Status            `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	Message         string            `gorm:"column:message;type:text" json:"message,omitempty"`
	RejectionReason string            `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	SelectedAt      *time.Time        `gorm:"column:selected_at" json:"selected_at,omitempty"`
	SelectedBy      string            `gorm:"column:selected_by" json:"selected_by,omitempty"`
	RejectedAt      *time.Time        `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	SettledAt       *time.Time        `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at" json:"updated_at"`
}

type ApplyInput struct {
	CampaignID string            `json:"campaign_id"`
	Platform   campaign.Platform `json:"platform"`
	Message    string            `json:"message"`
}

type ListFilter struct {
	CampaignID string
	ReviewerID string
	Status     Status
	Platform   campaign.Platform
}
