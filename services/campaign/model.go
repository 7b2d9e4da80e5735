package campaign

import (
	"time"

	"reviewcamp/pkg/fsm"
	"reviewcamp/services/billing"
)

type Platform string

const (
	PlatformNaver   Platform = "naver"
	PlatformCoupang Platform = "coupang"
	PlatformBoth    Platform = "both"
)

func (p Platform) Valid() bool {
	switch p {
	case PlatformNaver, PlatformCoupang, PlatformBoth:
		return true
	}
	return false
}

// Offers reports whether a campaign on p recruits reviewers for target.
func (p Platform) Offers(target Platform) bool {
	if target != PlatformNaver && target != PlatformCoupang {
		return false
	}
	return p == PlatformBoth || p == target
}

// Marketplaces expands p into the concrete marketplaces it covers.
func (p Platform) Marketplaces() []Platform {
	switch p {
	case PlatformBoth:
		return []Platform{PlatformNaver, PlatformCoupang}
	case PlatformNaver, PlatformCoupang:
		return []Platform{p}
	}
	return nil
}

type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusRecruiting Status = "recruiting"
	StatusClosed     Status = "closed"
	StatusInProgress Status = "in_progress"
	StatusReviewing  Status = "reviewing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var Machine = fsm.New("campaign", map[Status][]Status{
	StatusDraft:      {StatusPending, StatusCancelled},
	StatusPending:    {StatusRecruiting, StatusDraft, StatusCancelled},
	StatusRecruiting: {StatusClosed, StatusCancelled},
	StatusClosed:     {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusReviewing, StatusCancelled},
	StatusReviewing:  {StatusCompleted, StatusCancelled},
})

type ApprovalSource string

const (
	ApprovalByAdmin   ApprovalSource = "admin"
	ApprovalByPayment ApprovalSource = "payment"
)

type Campaign struct {
	ID                  string         `gorm:"column:id;primaryKey" json:"id"`
	Code                string         `gorm:"column:code;uniqueIndex" json:"code"`
	Slug                string         `gorm:"column:slug;index" json:"slug"`
	ClientID            string         `gorm:"column:client_id;index;not null" json:"client_id"`
	Title               string         `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description         string         `gorm:"column:description;type:text" json:"description"`
	ProductName         string         `gorm:"column:product_name" json:"product_name"`
	ProductURL          string         `gorm:"column:product_url" json:"product_url"`
	ProductPrice        int64          `gorm:"column:product_price;not null;default:0" json:"product_price"`
	Platform            Platform       `gorm:"column:platform;type:varchar(20);not null" json:"platform"`
	NaverRecruitCount   *int64         `gorm:"column:naver_recruit_count" json:"naver_recruit_count,omitempty"`
	CoupangRecruitCount *int64         `gorm:"column:coupang_recruit_count" json:"coupang_recruit_count,omitempty"`
	NaverRewardPoint    int64          `gorm:"column:naver_reward_point;not null;default:0" json:"naver_reward_point"`
	CoupangRewardPoint  int64          `gorm:"column:coupang_reward_point;not null;default:0" json:"coupang_reward_point"`
	PaybackProductPrice bool           `gorm:"column:payback_product_price;not null;default:false" json:"payback_product_price"`
	BonusPoint          int64          `gorm:"column:bonus_point;not null;default:0" json:"bonus_point"`
	RecruitStartAt      *time.Time     `gorm:"column:recruit_start_at" json:"recruit_start_at,omitempty"`
	RecruitEndAt        *time.Time     `gorm:"column:recruit_end_at;index" json:"recruit_end_at,omitempty"`
	AnnounceAt          *time.Time     `gorm:"column:announce_at" json:"announce_at,omitempty"`
	ReviewDeadlineAt    *time.Time     `gorm:"column:review_deadline_at" json:"review_deadline_at,omitempty"`
	Status              Status         `gorm:"column:status;type:varchar(20);not null;index" json:"status"`
	RejectionReason     string         `gorm:"column:rejection_reason" json:"rejection_reason,omitempty"`
	CancelReason        string         `gorm:"column:cancel_reason" json:"cancel_reason,omitempty"`
	ApprovalSource      ApprovalSource `gorm:"column:approval_source;type:varchar(20)" json:"approval_source,omitempty"`
	ApprovedBy          string         `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt          *time.Time     `gorm:"column:approved_at" json:"approved_at,omitempty"`
	SubmittedAt         *time.Time     `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	ClosedAt            *time.Time     `gorm:"column:closed_at" json:"closed_at,omitempty"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt         *time.Time     `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

// RecruitCountFor returns the seats for one marketplace, 0 when it is not offered.
func (c *Campaign) RecruitCountFor(p Platform) int64 {
	if !c.Platform.Offers(p) {
		return 0
	}
	switch p {
	case PlatformNaver:
		if c.NaverRecruitCount != nil {
			return *c.NaverRecruitCount
		}
	case PlatformCoupang:
		if c.CoupangRecruitCount != nil {
			return *c.CoupangRecruitCount
		}
	}
	return 0
}

func (c *Campaign) TotalRecruitCount() int64 {
	var total int64
	for _, p := range c.Platform.Marketplaces() {
		total += c.RecruitCountFor(p)
	}
	return total
}

// RewardFor is the number of points credited for one approved review on p:
// the marketplace fee, the product price when it is paid back, and the bonus.
func (c *Campaign) RewardFor(p Platform) int64 {
	var fee int64
	switch p {
	case PlatformNaver:
		fee = c.NaverRewardPoint
	case PlatformCoupang:
		fee = c.CoupangRewardPoint
	}
	if c.PaybackProductPrice {
		fee += c.ProductPrice
	}
	return fee + c.BonusPoint
}

// BillingLines prices every offered marketplace as its own line.
func (c *Campaign) BillingLines() []billing.Line {
	var lines []billing.Line
	for _, p := range c.Platform.Marketplaces() {
		lines = append(lines, billing.Line{
			RecruitCount:         c.RecruitCountFor(p),
			RewardPointPerPerson: c.RewardFor(p),
		})
	}
	return lines
}

func (c *Campaign) IsTerminal() bool {
	return Machine.IsTerminal(c.Status)
}

type Input struct {
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	ProductName         string     `json:"product_name"`
	ProductURL          string     `json:"product_url"`
	ProductPrice        int64      `json:"product_price"`
	Platform            Platform   `json:"platform"`
	NaverRecruitCount   *int64     `json:"naver_recruit_count"`
	CoupangRecruitCount *int64     `json:"coupang_recruit_count"`
	NaverRewardPoint    int64      `json:"naver_reward_point"`
	CoupangRewardPoint  int64      `json:"coupang_reward_point"`
	PaybackProductPrice bool       `json:"payback_product_price"`
	BonusPoint          int64      `json:"bonus_point"`
	RecruitStartAt      *time.Time `json:"recruit_start_at"`
	RecruitEndAt        *time.Time `json:"recruit_end_at"`
	AnnounceAt          *time.Time `json:"announce_at"`
	ReviewDeadlineAt    *time.Time `json:"review_deadline_at"`
}

type ListFilter struct {
	ClientID string
	Status   Status
}
