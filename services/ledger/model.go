package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TypeEarn     TransactionType = "earn"
	TypeWithdraw TransactionType = "withdraw"
	TypeCancel   TransactionType = "cancel"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeEarn, TypeWithdraw, TypeCancel:
		return true
	}
	return false
}

// Sign is +1 for credits and -1 for debits.
func (t TransactionType) Sign() int64 {
	if t == TypeEarn {
		return 1
	}
	return -1
}

const GenesisHash = "GENESIS"

// Reference types used by the services posting to the ledger.
const (
	ReferenceReview      = "review_submission"
	ReferenceWithdrawal  = "withdrawal_request"
	ReferenceTransaction = "point_transaction"
)

// PointTransaction is an immutable ledger row. Amount is signed; BalanceAfter
// is the reviewer's balance once this row is applied.
type PointTransaction struct {
	ID            string          `gorm:"column:id;primaryKey" json:"id"`
	ReviewerID    string          `gorm:"column:reviewer_id;not null;uniqueIndex:idx_point_tx_reviewer_seq,priority:1" json:"reviewer_id"`
	Seq           int64           `gorm:"column:seq;not null;uniqueIndex:idx_point_tx_reviewer_seq,priority:2" json:"seq"`
	Type          TransactionType `gorm:"column:type;type:varchar(20);not null;uniqueIndex:idx_point_tx_reference,priority:3" json:"type"`
	Amount        int64           `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter  int64           `gorm:"column:balance_after;not null" json:"balance_after"`
	ReferenceType string          `gorm:"column:reference_type;type:varchar(40);not null;uniqueIndex:idx_point_tx_reference,priority:1" json:"reference_type"`
	ReferenceID   string          `gorm:"column:reference_id;not null;uniqueIndex:idx_point_tx_reference,priority:2" json:"reference_id"`
	Description   string          `gorm:"column:description" json:"description"`
	PreviousHash  string          `gorm:"column:previous_hash" json:"previous_hash"`
	Hash          string          `gorm:"column:hash" json:"hash"`
	Metadata      datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
}

// ReviewerPointBalance is the cached projection of a reviewer's ledger plus
// the amount held by open withdrawal requests.
type ReviewerPointBalance struct {
	ReviewerID        string    `gorm:"column:reviewer_id;primaryKey" json:"reviewer_id"`
	Balance           int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	Reserved          int64     `gorm:"column:reserved;not null;default:0" json:"reserved"`
	LastSeq           int64     `gorm:"column:last_seq;not null;default:0" json:"last_seq"`
	LastTransactionID string    `gorm:"column:last_transaction_id" json:"last_transaction_id"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (b *ReviewerPointBalance) Available() int64 {
	return b.Balance - b.Reserved
}

func (m *PointTransaction) HashFields() map[string]string {
	return map[string]string{
		"id":             m.ID,
		"reviewer_id":    m.ReviewerID,
		"seq":            fmt.Sprintf("%d", m.Seq),
		"type":           string(m.Type),
		"amount":         fmt.Sprintf("%d", m.Amount),
		"balance_after":  fmt.Sprintf("%d", m.BalanceAfter),
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceID,
		"description":    m.Description,
		"created_at":     m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  m.PreviousHash,
	}
}

func (m *PointTransaction) GenerateHash() string {
	fields := m.HashFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// PostParams describes one ledger posting. Amount is the magnitude and the
// sign follows Type. ConsumeReserved releases that much reservation together
// with a withdraw debit.
type PostParams struct {
	ReviewerID      string
	Type            TransactionType
	Amount          int64
	ReferenceType   string
	ReferenceID     string
	Description     string
	Metadata        map[string]any
	ConsumeReserved int64
}

type BalanceView struct {
	ReviewerID string    `json:"reviewer_id"`
	Balance    int64     `json:"balance"`
	Reserved   int64     `json:"reserved"`
	Available  int64     `json:"available"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AuditReport struct {
	ReviewerID    string `json:"reviewer_id"`
	Entries       int    `json:"entries"`
	ChainValid    bool   `json:"chain_valid"`
	LedgerBalance int64  `json:"ledger_balance"`
	SumOfAmounts  int64  `json:"sum_of_amounts"`
	CachedBalance int64  `json:"cached_balance"`
	Consistent    bool   `json:"consistent"`
}
