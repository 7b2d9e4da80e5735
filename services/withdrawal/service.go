package withdrawal

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"
	"reviewcamp/pkg/secure"
	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/billing"
	"reviewcamp/services/ledger"
	"reviewcamp/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	seq    sequence.Generator
	ledger *ledger.Service
	cipher *secure.Cipher
	notify *notification.Dispatcher
	fees   FeeSchedule

	withdrawal repository.Repository[WithdrawalRequest]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Ledger   *ledger.Service
	Cipher   *secure.Cipher
	Dispatch *notification.Dispatcher
	Config   *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	fees := DefaultFeeSchedule
	if p.Config != nil {
		w := p.Config.Withdrawal
		if w.MinAmount > 0 {
			fees.MinAmount = w.MinAmount
		}
		fees.FeeFlat = w.FeeFlat
		fees.FeeBps = w.FeeBps
	}
	return &Service{
		db:     p.DB,
		node:   p.Node,
		seq:    p.Seq,
		ledger: p.Ledger,
		cipher: p.Cipher,
		notify: p.Dispatch,
		fees:   fees,

		withdrawal: repository.ProvideStore[WithdrawalRequest](p.DB),
	}
}

// Fee returns the fee the current schedule charges on amount.
func (s *Service) Fee(amount int64) int64 {
	return s.fees.FeeFlat + billing.RoundBps(amount, s.fees.FeeBps)
}

// Create opens a payout request and reserves its amount on the reviewer's
// balance. The ledger is debited only on completion.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*WithdrawalRequest, error) {
	if actor.Role != access.RoleReviewer {
		return nil, errutil.Forbidden("only reviewers request withdrawals", nil)
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	fee := s.Fee(in.Amount)
	net := in.Amount - fee
	if net <= 0 {
		return nil, errutil.Validation("amount does not cover the withdrawal fee",
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: fmt.Sprintf("fee is %d", fee)}))
	}

	accountNumber := strings.TrimSpace(in.AccountNumber)
	enc, err := s.cipher.Encrypt(accountNumber)
	if err != nil {
		zap.L().Error("failed to encrypt account number", zap.Error(err))
		return nil, errutil.Internal("failed to secure account number", err)
	}
	code, err := s.seq.NextWithdrawalCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	w := &WithdrawalRequest{
		ID:                  s.node.Generate().String(),
		Code:                code,
		ReviewerID:          actor.ID,
		Amount:              in.Amount,
		Fee:                 fee,
		NetAmount:           net,
		BankName:            strings.TrimSpace(in.BankName),
		AccountHolder:       strings.TrimSpace(in.AccountHolder),
		AccountNumberEnc:    enc,
		AccountNumberMasked: secure.Mask(accountNumber),
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.ReserveTx(ctx, tx, actor.ID, in.Amount); err != nil {
			return err
		}
		return s.withdrawal.WithTrx(tx).Create(ctx, w)
	})
	if err != nil {
		zap.L().Warn("withdrawal request refused", zap.String("reviewer_id", actor.ID), zap.Int64("amount", in.Amount), zap.Error(err))
		return nil, err
	}
	return w, nil
}

func (s *Service) validate(in CreateInput) error {
	var details []errutil.Detail
	if in.Amount < s.fees.MinAmount {
		details = append(details, errutil.Detail{Field: "amount", Message: fmt.Sprintf("minimum is %d", s.fees.MinAmount)})
	}
	if strings.TrimSpace(in.BankName) == "" {
		details = append(details, errutil.Detail{Field: "bank_name", Message: "required"})
	}
	if strings.TrimSpace(in.AccountHolder) == "" {
		details = append(details, errutil.Detail{Field: "account_holder", Message: "required"})
	}
	if !validAccountNumber(strings.TrimSpace(in.AccountNumber)) {
		details = append(details, errutil.Detail{Field: "account_number", Message: "digits and hyphens only"})
	}
	if len(details) > 0 {
		return errutil.Validation("invalid withdrawal request", errutil.WithDetails(details...))
	}
	return nil
}

func validAccountNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-':
		default:
			return false
		}
	}
	return digits >= 6
}

func (s *Service) Approve(ctx context.Context, actor access.Actor, id string) (*WithdrawalRequest, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	w, _, err := s.move(ctx, s.db, id, StatusApproved, func(now time.Time) map[string]any {
		return map[string]any{"approved_by": actor.ID, "approved_at": now}
	})
	return w, err
}

// Reject closes a pending request and releases its reservation.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id, reason string) (*WithdrawalRequest, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("rejection reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	var (
		w     *WithdrawalRequest
		fired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		w, fired, err = s.move(ctx, tx, id, StatusRejected, func(now time.Time) map[string]any {
			return map[string]any{"rejection_reason": reason, "rejected_at": now}
		})
		if err != nil || !fired {
			return err
		}
		return s.ledger.ReleaseTx(ctx, tx, w.ReviewerID, w.Amount)
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, w.ReviewerID, notification.KindWithdrawalRejected, map[string]any{
			"withdrawal_id": w.ID,
			"code":          w.Code,
			"reason":        reason,
		})
	}
	return w, nil
}

// Complete records the payout and posts the withdraw entry, consuming the
// reservation in the same transaction.
func (s *Service) Complete(ctx context.Context, actor access.Actor, id string) (*WithdrawalRequest, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var (
		w     *WithdrawalRequest
		fired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		w, fired, err = s.move(ctx, tx, id, StatusCompleted, func(now time.Time) map[string]any {
			return map[string]any{"completed_by": actor.ID, "completed_at": now}
		})
		if err != nil || !fired {
			return err
		}

		entry, _, err := s.ledger.PostTx(ctx, tx, ledger.PostParams{
			ReviewerID:      w.ReviewerID,
			Type:            ledger.TypeWithdraw,
			Amount:          w.Amount,
			ReferenceType:   ledger.ReferenceWithdrawal,
			ReferenceID:     w.ID,
			Description:     "withdrawal " + w.Code,
			ConsumeReserved: w.Amount,
			Metadata: map[string]any{
				"fee":        w.Fee,
				"net_amount": w.NetAmount,
			},
		})
		if err != nil {
			return err
		}
		w.PointTransactionID = entry.ID
		return tx.WithContext(ctx).Model(&WithdrawalRequest{}).
			Where("id = ?", w.ID).
			Update("point_transaction_id", entry.ID).Error
	})
	if err != nil {
		zap.L().Error("failed to complete withdrawal", zap.String("withdrawal_id", id), zap.Error(err))
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, w.ReviewerID, notification.KindWithdrawalCompleted, map[string]any{
			"withdrawal_id": w.ID,
			"code":          w.Code,
			"net_amount":    w.NetAmount,
		})
	}
	return w, nil
}

// move applies one guarded transition. Re-driving the current status is a
// no-op.
func (s *Service) move(ctx context.Context, db *gorm.DB, id string, to Status, fields func(time.Time) map[string]any) (*WithdrawalRequest, bool, error) {
	cur, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if cur.Status == to {
		return cur, false, nil
	}
	if err := Machine.Check(cur.Status, to); err != nil {
		return nil, false, err
	}

	ok, err := repository.Transition[WithdrawalRequest](ctx, db, id, cur.Status, to, fields(time.Now()))
	if err != nil {
		return nil, false, err
	}
	updated, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if updated.Status == to {
			return updated, false, nil
		}
		return nil, false, errutil.ConflictRetry(
			fmt.Sprintf("withdrawal moved from %s to %s concurrently", cur.Status, updated.Status))
	}
	return updated, true, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*WithdrawalRequest, error) {
	w, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(w.ReviewerID, "withdrawal"); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) getTx(ctx context.Context, db *gorm.DB, id string) (*WithdrawalRequest, error) {
	w, err := s.withdrawal.WithTrx(db).FindOne(ctx, &WithdrawalRequest{ID: id})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.NotFound(fmt.Sprintf("withdrawal %s not found", id), nil)
	}
	return w, nil
}

// AccountNumber decrypts the destination account for the operator paying
// the request out.
func (s *Service) AccountNumber(ctx context.Context, actor access.Actor, id string) (string, error) {
	if err := actor.RequireAdmin(); err != nil {
		return "", err
	}
	w, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return "", err
	}
	return s.cipher.Decrypt(w.AccountNumberEnc)
}

func (s *Service) List(ctx context.Context, reviewerID string, status Status, page pagination.Pagination) ([]*WithdrawalRequest, pagination.PageInfo, error) {
	items, err := s.withdrawal.Find(ctx, &WithdrawalRequest{ReviewerID: reviewerID, Status: status}, option.ApplyPagination(page))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	out, info := pagination.Page(items, page.Limit, func(w *WithdrawalRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: w.CreatedAt, ID: w.ID}
	})
	return out, info, nil
}

// CheckReservation verifies that open requests add up to the reserved amount
// and never exceed the balance.
func (s *Service) CheckReservation(ctx context.Context, reviewerID string) (*ReservationReport, error) {
	if reviewerID == "" {
		return nil, errutil.Validation("reviewer_id is required",
			errutil.WithDetails(errutil.Detail{Field: "reviewer_id", Message: "required"}))
	}

	var open int64
	err := s.db.WithContext(ctx).Model(&WithdrawalRequest{}).
		Where("reviewer_id = ? AND status IN ?", reviewerID, Open).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&open).Error
	if err != nil {
		return nil, err
	}

	bal, err := s.ledger.GetBalance(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	return &ReservationReport{
		ReviewerID: reviewerID,
		Balance:    bal.Balance,
		Reserved:   bal.Reserved,
		OpenAmount: open,
		Consistent: open == bal.Reserved && open <= bal.Balance,
	}, nil
}
