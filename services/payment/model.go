package payment

import (
	"time"

	"reviewcamp/pkg/fsm"
	"reviewcamp/services/billing"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

var Machine = fsm.New("campaign_payment", map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusRefunded},
})

// Source tells who confirmed the funds.
type Source string

const (
	SourceAdmin    Source = "admin"
	SourceCallback Source = "callback"
)

type CampaignPayment struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	InvoiceNo  string         `gorm:"column:invoice_no;uniqueIndex" json:"invoice_no"`
	CampaignID string         `gorm:"column:campaign_id;not null;index" json:"campaign_id"`
	ClientID   string         `gorm:"column:client_id;not null;index" json:"client_id"`
	Method     billing.Method `gorm:"column:method;type:varchar(20);not null" json:"method"`
	Status     Status         `gorm:"column:status;type:varchar(20);not null;index" json:"status"`

	RecruitCount     int64 `gorm:"column:recruit_count;not null" json:"recruit_count"`
	RewardPointTotal int64 `gorm:"column:reward_point_total;not null" json:"reward_point_total"`
	AgencyFeeTotal   int64 `gorm:"column:agency_fee_total;not null" json:"agency_fee_total"`
	BaseAmount       int64 `gorm:"column:base_amount;not null" json:"base_amount"`
	SurchargeAmount  int64 `gorm:"column:surcharge_amount;not null" json:"surcharge_amount"`
	SupplyPrice      int64 `gorm:"column:supply_price;not null" json:"supply_price"`
	VATAmount        int64 `gorm:"column:vat_amount;not null" json:"vat_amount"`
	TotalAmount      int64 `gorm:"column:total_amount;not null" json:"total_amount"`

	VirtualAccountBank   string     `gorm:"column:va_bank" json:"va_bank,omitempty"`
	VirtualAccountNumber string     `gorm:"column:va_number" json:"va_number,omitempty"`
	VirtualAccountHolder string     `gorm:"column:va_holder" json:"va_holder,omitempty"`
	VirtualAccountDueAt  *time.Time `gorm:"column:va_due_at;index" json:"va_due_at,omitempty"`

	ConfirmSource Source     `gorm:"column:confirm_source;type:varchar(20)" json:"confirm_source,omitempty"`
	ConfirmedBy   string     `gorm:"column:confirmed_by" json:"confirmed_by,omitempty"`
	ExternalRef   string     `gorm:"column:external_ref" json:"external_ref,omitempty"`
	PaidAt        *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CancelReason  string     `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundReason  string     `gorm:"column:refund_reason" json:"refund_reason,omitempty"`
	RefundedAt    *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (p *CampaignPayment) Breakdown() billing.Breakdown {
	return billing.Breakdown{
		Method:           p.Method,
		RecruitCount:     p.RecruitCount,
		RewardPointTotal: p.RewardPointTotal,
		AgencyFeeTotal:   p.AgencyFeeTotal,
		BaseAmount:       p.BaseAmount,
		SurchargeAmount:  p.SurchargeAmount,
		SupplyPrice:      p.SupplyPrice,
		VATAmount:        p.VATAmount,
		TotalAmount:      p.TotalAmount,
	}
}

type CreateInput struct {
	CampaignID string         `json:"campaign_id"`
	Method     billing.Method `json:"method"`
}

type VirtualAccount struct {
	Bank   string    `json:"bank"`
	Number string    `json:"number"`
	Holder string    `json:"holder"`
	DueAt  time.Time `json:"due_at"`
}

// CallbackPayload is the signed body a payment provider posts when funds
// arrive.
type CallbackPayload struct {
	PaymentID     string    `json:"payment_id"`
	Amount        int64     `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}
