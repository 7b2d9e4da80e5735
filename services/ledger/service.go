package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("reviewcamp/services/ledger")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	ledger  repository.Repository[PointTransaction]
	balance repository.Repository[ReviewerPointBalance]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		ledger:  repository.ProvideStore[PointTransaction](p.DB),
		balance: repository.ProvideStore[ReviewerPointBalance](p.DB),
	}
}

func logFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// Post records a ledger entry in its own transaction.
func (s *Service) Post(ctx context.Context, p PostParams) (*PointTransaction, error) {
	var out *PointTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, _, err = s.PostTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PostTx records a ledger entry inside the caller's transaction. The
// reviewer's balance row is locked for the rest of tx, so postings for one
// reviewer are applied one at a time. When an entry with the same reference
// already exists it is returned with created=false and nothing is written.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, p PostParams) (entry *PointTransaction, created bool, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Post", trace.WithAttributes(
		attribute.String("reviewer_id", p.ReviewerID),
		attribute.String("type", string(p.Type)),
	))
	defer span.End()
	log := zap.L().With(logFields(ctx)...)

	if err := validatePost(p); err != nil {
		return nil, false, err
	}

	ledgerTx := s.ledger.WithTrx(tx)

	bal, err := s.LockBalanceTx(ctx, tx, p.ReviewerID)
	if err != nil {
		return nil, false, err
	}

	existing, err := ledgerTx.FindOne(ctx, &PointTransaction{
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		Type:          p.Type,
	})
	if err != nil {
		log.Error("failed to query existing entry", zap.Error(err))
		return nil, false, err
	}
	if existing != nil {
		if existing.ReviewerID != p.ReviewerID {
			return nil, false, errutil.Validation("reference already posted for another reviewer")
		}
		log.Info("ledger reference already posted", zap.String("reference_id", p.ReferenceID))
		return existing, false, nil
	}

	last, err := s.lastEntry(ctx, tx, p.ReviewerID)
	if err != nil {
		log.Error("failed to query last entry", zap.Error(err))
		return nil, false, err
	}

	var (
		previousHash          = GenesisHash
		previousBalance int64 = 0
		seq             int64 = 1
	)
	if last != nil {
		previousHash = last.Hash
		previousBalance = last.BalanceAfter
		seq = last.Seq + 1
	}
	if bal.Balance != previousBalance {
		log.Warn("balance cache differs from ledger, using ledger",
			zap.String("reviewer_id", p.ReviewerID),
			zap.Int64("cached", bal.Balance),
			zap.Int64("ledger", previousBalance))
	}

	signed := p.Type.Sign() * p.Amount
	newBalance := previousBalance + signed
	if newBalance < 0 {
		return nil, false, errutil.InsufficientBalance(
			fmt.Sprintf("balance %d cannot cover %d", previousBalance, p.Amount))
	}

	reserved := bal.Reserved
	if p.ConsumeReserved > 0 {
		if p.ConsumeReserved > reserved {
			return nil, false, errutil.Internal("reservation smaller than consumed amount", nil)
		}
		reserved -= p.ConsumeReserved
	}
	if newBalance < reserved {
		return nil, false, errutil.OverdraftRisk(
			fmt.Sprintf("balance %d would fall below reserved %d", newBalance, reserved))
	}

	var meta datatypes.JSON
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, false, errutil.Validation("metadata is not serializable")
		}
		meta = datatypes.JSON(b)
	}

	entry = &PointTransaction{
		ID:            s.node.Generate().String(),
		ReviewerID:    p.ReviewerID,
		Seq:           seq,
		Type:          p.Type,
		Amount:        signed,
		BalanceAfter:  newBalance,
		ReferenceType: p.ReferenceType,
		ReferenceID:   p.ReferenceID,
		Description:   p.Description,
		PreviousHash:  previousHash,
		Metadata:      meta,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	entry.Hash = entry.GenerateHash()

	if err := ledgerTx.Create(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, errutil.ConflictRetry("ledger entry was posted concurrently")
		}
		log.Error("failed to create ledger entry", zap.Error(err))
		return nil, false, err
	}

	res := tx.WithContext(ctx).Model(&ReviewerPointBalance{}).
		Where("reviewer_id = ?", p.ReviewerID).
		Updates(map[string]any{
			"balance":             newBalance,
			"reserved":            reserved,
			"last_seq":            seq,
			"last_transaction_id": entry.ID,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		log.Error("failed to update balance cache", zap.Error(res.Error))
		return nil, false, res.Error
	}

	log.Info("ledger entry posted",
		zap.String("reviewer_id", p.ReviewerID),
		zap.String("entry_id", entry.ID),
		zap.Int64("amount", signed),
		zap.Int64("balance_after", newBalance))

	return entry, true, nil
}

func validatePost(p PostParams) error {
	var details []errutil.Detail
	if p.ReviewerID == "" {
		details = append(details, errutil.Detail{Field: "reviewer_id", Message: "required"})
	}
	if !p.Type.Valid() {
		details = append(details, errutil.Detail{Field: "type", Message: "must be earn, withdraw or cancel"})
	}
	if p.Amount <= 0 {
		details = append(details, errutil.Detail{Field: "amount", Message: "must be > 0"})
	}
	if p.ReferenceType == "" || p.ReferenceID == "" {
		details = append(details, errutil.Detail{Field: "reference", Message: "required"})
	}
	if p.ConsumeReserved < 0 || (p.ConsumeReserved > 0 && p.Type != TypeWithdraw) {
		details = append(details, errutil.Detail{Field: "consume_reserved", Message: "only withdraw entries consume reservations"})
	}
	if len(details) > 0 {
		return errutil.Validation("invalid ledger posting", errutil.WithDetails(details...))
	}
	return nil
}

func (s *Service) lastEntry(ctx context.Context, tx *gorm.DB, reviewerID string) (*PointTransaction, error) {
	return s.ledger.WithTrx(tx).FindOne(ctx, &PointTransaction{ReviewerID: reviewerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "desc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
}

// LockBalanceTx creates the reviewer's balance row when missing and locks it
// for the rest of tx.
func (s *Service) LockBalanceTx(ctx context.Context, tx *gorm.DB, reviewerID string) (*ReviewerPointBalance, error) {
	if err := requireReviewer(reviewerID); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ReviewerPointBalance{ReviewerID: reviewerID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return nil, err
	}

	bal, err := s.balance.WithTrx(tx).FindOne(ctx, &ReviewerPointBalance{ReviewerID: reviewerID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, errutil.Internal("balance row missing after upsert", nil)
	}
	return bal, nil
}

// ReserveTx holds amount for an open withdrawal request. The sum of holds
// never exceeds the balance.
func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, reviewerID string, amount int64) (*ReviewerPointBalance, error) {
	if amount <= 0 {
		return nil, errutil.Validation("reserved amount must be > 0")
	}

	bal, err := s.LockBalanceTx(ctx, tx, reviewerID)
	if err != nil {
		return nil, err
	}
	if amount > bal.Balance {
		return nil, errutil.InsufficientBalance(fmt.Sprintf("balance %d cannot cover %d", bal.Balance, amount))
	}
	if bal.Reserved+amount > bal.Balance {
		return nil, errutil.OverdraftRisk(
			fmt.Sprintf("open withdrawals hold %d of balance %d", bal.Reserved, bal.Balance),
			errutil.WithDetails(errutil.Detail{Field: "available", Message: fmt.Sprintf("%d", bal.Available())}))
	}

	bal.Reserved += amount
	bal.UpdatedAt = time.Now()
	if err := tx.WithContext(ctx).Model(&ReviewerPointBalance{}).
		Where("reviewer_id = ?", reviewerID).
		Updates(map[string]any{"reserved": bal.Reserved, "updated_at": bal.UpdatedAt}).Error; err != nil {
		return nil, err
	}
	return bal, nil
}

// ReleaseTx drops a hold placed by ReserveTx.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, reviewerID string, amount int64) error {
	bal, err := s.LockBalanceTx(ctx, tx, reviewerID)
	if err != nil {
		return err
	}

	if amount <= 0 {
		return errutil.Validation("released amount must be > 0")
	}
	reserved := bal.Reserved - amount
	if reserved < 0 {
		zap.L().With(logFields(ctx)...).Error("released more than reserved",
			zap.String("reviewer_id", reviewerID),
			zap.Int64("reserved", bal.Reserved),
			zap.Int64("amount", amount))
		return errutil.Internal(fmt.Sprintf("release of %d exceeds reserved %d", amount, bal.Reserved), nil)
	}

	return tx.WithContext(ctx).Model(&ReviewerPointBalance{}).
		Where("reviewer_id = ?", reviewerID).
		Updates(map[string]any{"reserved": reserved, "updated_at": time.Now()}).Error
}

// Cancel reverses an earn entry with a cancel entry of the same amount.
// Cancelling twice returns the first reversal.
func (s *Service) Cancel(ctx context.Context, transactionID, reason string) (*PointTransaction, error) {
	if reason == "" {
		return nil, errutil.Validation("cancel reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	original, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if original.Type != TypeEarn {
		return nil, errutil.InvalidTransition("only earn entries can be cancelled")
	}

	return s.Post(ctx, PostParams{
		ReviewerID:    original.ReviewerID,
		Type:          TypeCancel,
		Amount:        original.Amount,
		ReferenceType: ReferenceTransaction,
		ReferenceID:   original.ID,
		Description:   reason,
		Metadata:      map[string]any{"cancelled_reference_type": original.ReferenceType, "cancelled_reference_id": original.ReferenceID},
	})
}

func (s *Service) GetBalance(ctx context.Context, reviewerID string) (*BalanceView, error) {
	if err := requireReviewer(reviewerID); err != nil {
		return nil, err
	}
	bal, err := s.balance.FindOne(ctx, &ReviewerPointBalance{ReviewerID: reviewerID})
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query balance", zap.Error(err))
		return nil, err
	}

	view := &BalanceView{ReviewerID: reviewerID}
	if bal != nil {
		view.Balance = bal.Balance
		view.Reserved = bal.Reserved
		view.Available = bal.Available()
		view.UpdatedAt = bal.UpdatedAt
	}
	return view, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*PointTransaction, error) {
	if id == "" {
		return nil, errutil.NotFound("point transaction not found", nil)
	}
	entry, err := s.ledger.FindOne(ctx, &PointTransaction{ID: id})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errutil.NotFound("point transaction not found", nil)
	}
	return entry, nil
}

// ListTransactions pages a reviewer's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, reviewerID string, page pagination.Pagination) ([]*PointTransaction, pagination.PageInfo, error) {
	if err := requireReviewer(reviewerID); err != nil {
		return nil, pagination.PageInfo{}, err
	}
	entries, err := s.ledger.Find(ctx, &PointTransaction{ReviewerID: reviewerID}, option.ApplyPagination(page))
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query list entries", zap.Error(err))
		return nil, pagination.PageInfo{}, err
	}

	items, info := pagination.Page(entries, page.Limit, func(e *PointTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return items, info, nil
}

func (s *Service) history(ctx context.Context, db *gorm.DB, reviewerID string) ([]*PointTransaction, error) {
	if err := requireReviewer(reviewerID); err != nil {
		return nil, err
	}
	return s.ledger.WithTrx(db).Find(ctx, &PointTransaction{ReviewerID: reviewerID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "seq",
			OrderBy: "asc",
			Allow:   map[string]bool{"seq": true},
		}),
	)
}

// VerifyChain recomputes every hash of a reviewer's ledger in order.
func (s *Service) VerifyChain(ctx context.Context, reviewerID string) (bool, error) {
	entries, err := s.history(ctx, s.db, reviewerID)
	if err != nil {
		zap.L().With(logFields(ctx)...).Error("failed to query Find entries", zap.Error(err))
		return false, err
	}
	return verifyChain(entries), nil
}

func verifyChain(entries []*PointTransaction) bool {
	lastHash := GenesisHash
	for _, entry := range entries {
		if entry.PreviousHash != lastHash || entry.Hash != entry.GenerateHash() {
			return false
		}
		lastHash = entry.Hash
	}
	return true
}

// Audit checks that the cached balance, the latest balance_after and the sum
// of all amounts agree, and that the hash chain is intact.
func (s *Service) Audit(ctx context.Context, reviewerID string) (*AuditReport, error) {
	entries, err := s.history(ctx, s.db, reviewerID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{ReviewerID: reviewerID, Entries: len(entries), ChainValid: verifyChain(entries)}
	running := int64(0)
	stepsValid := true
	for _, e := range entries {
		running += e.Amount
		report.SumOfAmounts += e.Amount
		if e.BalanceAfter != running || e.BalanceAfter < 0 {
			stepsValid = false
		}
	}
	if n := len(entries); n > 0 {
		report.LedgerBalance = entries[n-1].BalanceAfter
	}

	bal, err := s.balance.FindOne(ctx, &ReviewerPointBalance{ReviewerID: reviewerID})
	if err != nil {
		return nil, err
	}
	if bal != nil {
		report.CachedBalance = bal.Balance
	}

	report.Consistent = report.ChainValid && stepsValid &&
		report.LedgerBalance == report.SumOfAmounts &&
		report.LedgerBalance == report.CachedBalance
	return report, nil
}

// Rebuild recomputes the cached balance from the ledger.
func (s *Service) Rebuild(ctx context.Context, reviewerID string) (*BalanceView, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.LockBalanceTx(ctx, tx, reviewerID); err != nil {
			return err
		}

		last, err := s.lastEntry(ctx, tx, reviewerID)
		if err != nil {
			return err
		}

		updates := map[string]any{"balance": int64(0), "last_seq": int64(0), "last_transaction_id": "", "updated_at": time.Now()}
		if last != nil {
			updates["balance"] = last.BalanceAfter
			updates["last_seq"] = last.Seq
			updates["last_transaction_id"] = last.ID
		}
		return tx.Model(&ReviewerPointBalance{}).Where("reviewer_id = ?", reviewerID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetBalance(ctx, reviewerID)
}

func requireReviewer(reviewerID string) error {
	if reviewerID == "" {
		return errutil.Validation("reviewer_id is required",
			errutil.WithDetails(errutil.Detail{Field: "reviewer_id", Message: "required"}))
	}
	return nil
}
