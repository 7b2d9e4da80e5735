package billing

type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCreditCard   Method = "credit_card"
)

func (m Method) Valid() bool {
	return m == MethodBankTransfer || m == MethodCreditCard
}

type Input struct {
	RecruitCount         int64  `json:"recruit_count"`
	RewardPointPerPerson int64  `json:"reward_point_per_person"`
	Method               Method `json:"method"`
}

// Line is one priced segment of a campaign, e.g. the naver seats.
type Line struct {
	RecruitCount         int64 `json:"recruit_count"`
	RewardPointPerPerson int64 `json:"reward_point_per_person"`
}

type Breakdown struct {
	Method           Method `json:"method"`
	RecruitCount     int64  `json:"recruit_count"`
	RewardPointTotal int64  `json:"reward_point_total"`
	AgencyFeeTotal   int64  `json:"agency_fee_total"`
	BaseAmount       int64  `json:"base_amount"`
	SurchargeAmount  int64  `json:"surcharge_amount"`
	SupplyPrice      int64  `json:"supply_price"`
	VATAmount        int64  `json:"vat_amount"`
	TotalAmount      int64  `json:"total_amount"`
}

type Comparison struct {
	BankTransfer Breakdown `json:"bank_transfer"`
	CreditCard   Breakdown `json:"credit_card"`
	// Savings is what the client saves by paying with bank transfer.
	Savings int64 `json:"savings"`
}
