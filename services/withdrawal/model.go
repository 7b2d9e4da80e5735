package withdrawal

import (
	"time"

	"reviewcamp/pkg/fsm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

var Machine = fsm.New("withdrawal", map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
})

// Open statuses hold a reservation on the reviewer's balance.
var Open = []Status{StatusPending, StatusApproved}

type WithdrawalRequest struct {
	ID                  string     `gorm:"column:id;primaryKey" json:"id"`
	Code                string     `gorm:"column:code;uniqueIndex" json:"code"`
	ReviewerID          string     `gorm:"column:reviewer_id;not null;index" json:"reviewer_id"`
	Amount              int64      `gorm:"column:amount;not null" json:"amount"`
	Fee                 int64      `gorm:"column:fee;not null" json:"fee"`
	NetAmount           int64      `gorm:"column:net_amount;not null" json:"net_amount"`
	BankName            string     `gorm:"column:bank_name;not null" json:"bank_name"`
	AccountHolder       string     `gorm:"column:account_holder;not null" json:"account_holder"`
	AccountNumberEnc    string     `gorm:"column:account_number_enc;not null" json:"-"`
	AccountNumberMasked string     `gorm:"column:account_number_masked" json:"account_number"`
	Status              Status     `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	RejectionReason     string     `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	ApprovedBy          string     `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt          *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	RejectedAt          *time.Time `gorm:"column:rejected_at" json:"rejected_at,omitempty"`
	CompletedBy         string     `gorm:"column:completed_by" json:"completed_by,omitempty"`
	CompletedAt         *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	PointTransactionID  string     `gorm:"column:point_transaction_id" json:"point_transaction_id,omitempty"`
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

type CreateInput struct {
	Amount        int64  `json:"amount"`
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	AccountNumber string `json:"account_number"`
}

// FeeSchedule is captured per request at creation time.
type FeeSchedule struct {
	MinAmount int64
	FeeFlat   int64
	FeeBps    int64
}

var DefaultFeeSchedule = FeeSchedule{MinAmount: 10000, FeeFlat: 500}

// ReservationReport compares open withdrawals with the reservation held on
// the reviewer's balance.
type ReservationReport struct {
	ReviewerID string `json:"reviewer_id"`
	Balance    int64  `json:"balance"`
	Reserved   int64  `json:"reserved"`
	OpenAmount int64  `json:"open_amount"`
	Consistent bool   `json:"consistent"`
}
