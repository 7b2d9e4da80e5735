package billing

import (
	"errors"
	"testing"

	"reviewcamp/pkg/errutil"

	"github.com/stretchr/testify/require"
)

func TestCalculateBankTransfer(t *testing.T) {
	svc := NewWithRates(DefaultRates)

	b, err := svc.Calculate(Input{RecruitCount: 10, RewardPointPerPerson: 5000, Method: MethodBankTransfer})
	require.NoError(t, err)
	require.Equal(t, Breakdown{
		Method:           MethodBankTransfer,
		RecruitCount:     10,
		RewardPointTotal: 50000,
		AgencyFeeTotal:   30000,
		BaseAmount:       80000,
		SurchargeAmount:  0,
		SupplyPrice:      80000,
		VATAmount:        8000,
		TotalAmount:      88000,
	}, b)
}

func TestCalculateCreditCard(t *testing.T) {
	svc := NewWithRates(DefaultRates)

	b, err := svc.Calculate(Input{RecruitCount: 10, RewardPointPerPerson: 5000, Method: MethodCreditCard})
	require.NoError(t, err)
	require.EqualValues(t, 80000, b.BaseAmount)
	require.EqualValues(t, 1840, b.SurchargeAmount)
	require.EqualValues(t, 81840, b.SupplyPrice)
	require.EqualValues(t, 8184, b.VATAmount)
	require.EqualValues(t, 90024, b.TotalAmount)
}

func TestCompare(t *testing.T) {
	svc := NewWithRates(DefaultRates)

	c, err := svc.Compare(Input{RecruitCount: 10, RewardPointPerPerson: 5000})
	require.NoError(t, err)
	require.EqualValues(t, 88000, c.BankTransfer.TotalAmount)
	require.EqualValues(t, 90024, c.CreditCard.TotalAmount)
	require.EqualValues(t, 2024, c.Savings)
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		amount, bps, want int64
	}{
		{amount: 50, bps: 1000, want: 5},
		{amount: 15, bps: 1000, want: 2},  // 1.5 rounds up
		{amount: 14, bps: 1000, want: 1},  // 1.4 rounds down
		{amount: 100, bps: 230, want: 2},  // 2.3
		{amount: 250, bps: 230, want: 6},  // 5.75
		{amount: 0, bps: 230, want: 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, RoundBps(tt.amount, tt.bps), "amount=%d bps=%d", tt.amount, tt.bps)
	}
}

func TestCalculateLinesMatchesSingleLine(t *testing.T) {
	svc := NewWithRates(DefaultRates)

	single, err := svc.Calculate(Input{RecruitCount: 7, RewardPointPerPerson: 12345, Method: MethodCreditCard})
	require.NoError(t, err)
	split, err := svc.CalculateLines([]Line{{3, 12345}, {4, 12345}}, MethodCreditCard)
	require.NoError(t, err)
	require.Equal(t, single, split)

	mixed, err := svc.CalculateLines([]Line{{5, 5000}, {5, 8000}}, MethodBankTransfer)
	require.NoError(t, err)
	require.EqualValues(t, 65000, mixed.RewardPointTotal)
	require.EqualValues(t, 30000, mixed.AgencyFeeTotal)
	require.EqualValues(t, 104500, mixed.TotalAmount)
}

func TestCalculateValidation(t *testing.T) {
	svc := NewWithRates(DefaultRates)

	_, err := svc.Calculate(Input{RecruitCount: -1, RewardPointPerPerson: 5000, Method: MethodBankTransfer})
	require.True(t, errors.Is(err, errutil.ErrValidation))

	_, err = svc.Calculate(Input{RecruitCount: 1, RewardPointPerPerson: 5000, Method: "cash"})
	require.True(t, errors.Is(err, errutil.ErrValidation))

	b, err := svc.Calculate(Input{RecruitCount: 0, RewardPointPerPerson: 5000, Method: MethodCreditCard})
	require.NoError(t, err)
	require.Zero(t, b.TotalAmount)
}

func TestNewServiceUsesConfiguredRates(t *testing.T) {
	svc := NewService(ServiceParams{})
	require.Equal(t, DefaultRates, svc.Rates())
}
