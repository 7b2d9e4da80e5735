package billing

import (
	"reviewcamp/pkg/config"
	"reviewcamp/pkg/errutil"

	"go.uber.org/fx"
)

const bpsDenominator = 10000

// Rates are fixed point basis points.
type Rates struct {
	FlatFeePerPerson int64
	CardSurchargeBps int64
	VATBps           int64
}

var DefaultRates = Rates{
	FlatFeePerPerson: 3000,
	CardSurchargeBps: 230,
	VATBps:           1000,
}

type Service struct {
	rates Rates
}

type ServiceParams struct {
	fx.In

	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	rates := DefaultRates
	if p.Config != nil {
		b := p.Config.Billing
		if b.FlatFeePerPerson > 0 {
			rates.FlatFeePerPerson = b.FlatFeePerPerson
		}
		if b.CardSurchargeBps > 0 {
			rates.CardSurchargeBps = b.CardSurchargeBps
		}
		if b.VATBps > 0 {
			rates.VATBps = b.VATBps
		}
	}
	return &Service{rates: rates}
}

func NewWithRates(r Rates) *Service {
	return &Service{rates: r}
}

func (s *Service) Rates() Rates {
	return s.rates
}

// Calculate prices a single line campaign.
func (s *Service) Calculate(in Input) (Breakdown, error) {
	return s.CalculateLines([]Line{{RecruitCount: in.RecruitCount, RewardPointPerPerson: in.RewardPointPerPerson}}, in.Method)
}

// CalculateLines prices a campaign whose seats carry different rewards. Only
// the base amount is rounded, so the result equals Calculate whenever all
// lines share one reward.
func (s *Service) CalculateLines(lines []Line, method Method) (Breakdown, error) {
	if !method.Valid() {
		return Breakdown{}, errutil.Validation("unknown payment method",
			errutil.WithDetails(errutil.Detail{Field: "method", Message: string(method)}))
	}
	if len(lines) == 0 {
		return Breakdown{}, errutil.Validation("at least one billing line is required")
	}

	b := Breakdown{Method: method}
	for _, l := range lines {
		if l.RecruitCount < 0 {
			return Breakdown{}, errutil.Validation("recruit count must not be negative",
				errutil.WithDetails(errutil.Detail{Field: "recruit_count", Message: "must be >= 0"}))
		}
		if l.RewardPointPerPerson < 0 {
			return Breakdown{}, errutil.Validation("reward point must not be negative",
				errutil.WithDetails(errutil.Detail{Field: "reward_point_per_person", Message: "must be >= 0"}))
		}
		b.RecruitCount += l.RecruitCount
		b.RewardPointTotal += l.RecruitCount * l.RewardPointPerPerson
		b.AgencyFeeTotal += l.RecruitCount * s.rates.FlatFeePerPerson
	}

	b.BaseAmount = b.RewardPointTotal + b.AgencyFeeTotal
	if method == MethodCreditCard {
		b.SurchargeAmount = RoundBps(b.BaseAmount, s.rates.CardSurchargeBps)
	}
	b.SupplyPrice = b.BaseAmount + b.SurchargeAmount
	b.VATAmount = RoundBps(b.SupplyPrice, s.rates.VATBps)
	b.TotalAmount = b.SupplyPrice + b.VATAmount

	return b, nil
}

// Compare prices the input under both methods.
func (s *Service) Compare(in Input) (Comparison, error) {
	transfer, err := s.Calculate(Input{RecruitCount: in.RecruitCount, RewardPointPerPerson: in.RewardPointPerPerson, Method: MethodBankTransfer})
	if err != nil {
		return Comparison{}, err
	}
	card, err := s.Calculate(Input{RecruitCount: in.RecruitCount, RewardPointPerPerson: in.RewardPointPerPerson, Method: MethodCreditCard})
	if err != nil {
		return Comparison{}, err
	}
	return Comparison{
		BankTransfer: transfer,
		CreditCard:   card,
		Savings:      card.TotalAmount - transfer.TotalAmount,
	}, nil
}

// RoundBps returns amount*bps/10000 rounded half up. Amounts are never negative.
func RoundBps(amount, bps int64) int64 {
	return (amount*bps + bpsDenominator/2) / bpsDenominator
}
