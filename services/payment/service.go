package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"
	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/billing"
	"reviewcamp/services/campaign"
	"reviewcamp/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/go-jose/go-jose/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	billing   *billing.Service
	campaigns *campaign.Service
	notify    *notification.Dispatcher
	cfg       config.Payment

	payment repository.Repository[CampaignPayment]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Seq       sequence.Generator
	Billing   *billing.Service
	Campaigns *campaign.Service
	Dispatch  *notification.Dispatcher
	Config    *config.Config `optional:"true"`
}

// MinCallbackSecretLen is the shortest HS256 key the JWS library accepts.
const MinCallbackSecretLen = 32

func NewService(p ServiceParams) (*Service, error) {
	cfg := config.Payment{
		VirtualAccountBank:   "KB",
		VirtualAccountHolder: "reviewcamp",
		VirtualAccountPrefix: "9001",
		VirtualAccountTTL:    72 * time.Hour,
	}
	if p.Config != nil {
		cfg = p.Config.Payment
	}
	if n := len(cfg.CallbackSecret); n > 0 && n < MinCallbackSecretLen {
		return nil, fmt.Errorf("payment: CALLBACK_SECRET must be at least %d bytes, got %d", MinCallbackSecretLen, n)
	}
	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		billing:   p.Billing,
		campaigns: p.Campaigns,
		notify:    p.Dispatch,
		cfg:       cfg,

		payment: repository.ProvideStore[CampaignPayment](p.DB),
	}, nil
}

// Create opens a payment for a campaign awaiting approval. The price is
// computed once here and never recomputed.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (*CampaignPayment, error) {
	if !in.Method.Valid() {
		return nil, errutil.Validation("unknown payment method",
			errutil.WithDetails(errutil.Detail{Field: "method", Message: string(in.Method)}))
	}
	invoiceNo, err := s.seq.NextInvoiceNo(ctx)
	if err != nil {
		return nil, err
	}

	var p *CampaignPayment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.campaigns.LockTx(ctx, tx, in.CampaignID)
		if err != nil {
			return err
		}
		if err := actor.RequireOwner(c.ClientID, "campaign"); err != nil {
			return err
		}
		if c.Status != campaign.StatusPending {
			return errutil.InvalidTransition(fmt.Sprintf("payment requires a campaign awaiting approval, campaign is %s", c.Status))
		}

		open, err := s.payment.WithTrx(tx).Count(ctx, &CampaignPayment{CampaignID: c.ID, Status: StatusPending})
		if err != nil {
			return err
		}
		if open > 0 {
			return errutil.Conflict("campaign already has a pending payment", nil)
		}

		b, err := s.billing.CalculateLines(c.BillingLines(), in.Method)
		if err != nil {
			return err
		}

		now := time.Now()
		p = &CampaignPayment{
			ID:               s.node.Generate().String(),
			InvoiceNo:        invoiceNo,
			CampaignID:       c.ID,
			ClientID:         c.ClientID,
			Method:           in.Method,
			Status:           StatusPending,
			RecruitCount:     b.RecruitCount,
			RewardPointTotal: b.RewardPointTotal,
			AgencyFeeTotal:   b.AgencyFeeTotal,
			BaseAmount:       b.BaseAmount,
			SurchargeAmount:  b.SurchargeAmount,
			SupplyPrice:      b.SupplyPrice,
			VATAmount:        b.VATAmount,
			TotalAmount:      b.TotalAmount,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if in.Method == billing.MethodBankTransfer {
			number, err := s.accountNumber()
			if err != nil {
				return err
			}
			due := now.Add(s.cfg.VirtualAccountTTL)
			p.VirtualAccountBank = s.cfg.VirtualAccountBank
			p.VirtualAccountHolder = s.cfg.VirtualAccountHolder
			p.VirtualAccountNumber = number
			p.VirtualAccountDueAt = &due
		}
		return s.payment.WithTrx(tx).Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("campaign payment created",
		zap.String("payment_id", p.ID),
		zap.String("campaign_id", p.CampaignID),
		zap.String("method", string(p.Method)),
		zap.Int64("total_amount", p.TotalAmount))
	return p, nil
}

func (s *Service) accountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1e10))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%010d", s.cfg.VirtualAccountPrefix, n.Int64()), nil
}

// AttachVirtualAccount replaces the deposit account of a bank transfer. The
// account is fixed once funds have been confirmed.
func (s *Service) AttachVirtualAccount(ctx context.Context, actor access.Actor, id string, va VirtualAccount) (*CampaignPayment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	var details []errutil.Detail
	if strings.TrimSpace(va.Bank) == "" {
		details = append(details, errutil.Detail{Field: "bank", Message: "required"})
	}
	if strings.TrimSpace(va.Number) == "" {
		details = append(details, errutil.Detail{Field: "number", Message: "required"})
	}
	if va.DueAt.IsZero() {
		details = append(details, errutil.Detail{Field: "due_at", Message: "required"})
	}
	if len(details) > 0 {
		return nil, errutil.Validation("invalid virtual account", errutil.WithDetails(details...))
	}

	cur, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if cur.Method != billing.MethodBankTransfer {
		return nil, errutil.Validation("virtual accounts apply to bank transfers only")
	}
	if cur.Status != StatusPending {
		return nil, errutil.InvalidTransition(fmt.Sprintf("virtual account is fixed once the payment is %s", cur.Status))
	}

	ok, err := repository.Transition[CampaignPayment](ctx, s.db, id, StatusPending, StatusPending, map[string]any{
		"va_bank":   strings.TrimSpace(va.Bank),
		"va_number": strings.TrimSpace(va.Number),
		"va_holder": strings.TrimSpace(va.Holder),
		"va_due_at": va.DueAt,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errutil.ConflictRetry("payment changed while attaching the virtual account")
	}
	return s.getTx(ctx, s.db, id)
}

// Confirm marks the payment paid and activates its campaign in the same
// transaction. Confirming twice, or racing an operator approval, activates
// the campaign once.
func (s *Service) Confirm(ctx context.Context, actor access.Actor, id string, source Source, externalRef string) (*CampaignPayment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var (
		p         *CampaignPayment
		c         *campaign.Campaign
		fired     bool
		activated bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status == StatusPaid {
			p = cur
			return nil
		}
		if err := Machine.Check(cur.Status, StatusPaid); err != nil {
			return err
		}

		ok, err := repository.Transition[CampaignPayment](ctx, tx, id, StatusPending, StatusPaid, map[string]any{
			"paid_at":        time.Now(),
			"confirmed_by":   actor.ID,
			"confirm_source": source,
			"external_ref":   externalRef,
		})
		if err != nil {
			return err
		}
		if p, err = s.getTx(ctx, tx, id); err != nil {
			return err
		}
		if !ok {
			if p.Status == StatusPaid {
				return nil
			}
			return errutil.ConflictRetry(fmt.Sprintf("payment moved to %s concurrently", p.Status))
		}
		fired = true

		c, activated, err = s.campaigns.ActivateTx(ctx, tx, p.CampaignID, campaign.ApprovalByPayment, actor.ID)
		if errors.Is(err, errutil.ErrInvalidTransition) {
			zap.L().Warn("payment confirmed for a campaign that cannot be activated",
				zap.String("payment_id", p.ID),
				zap.String("campaign_id", p.CampaignID),
				zap.Error(err))
			return nil
		}
		return err
	})
	if err != nil {
		zap.L().Error("failed to confirm payment", zap.String("payment_id", id), zap.Error(err))
		return nil, err
	}

	if fired {
		s.notify.Send(ctx, p.ClientID, notification.KindPaymentConfirmed, map[string]any{
			"payment_id":   p.ID,
			"invoice_no":   p.InvoiceNo,
			"total_amount": p.TotalAmount,
		})
	}
	if activated {
		s.campaigns.NotifyActivated(ctx, c)
	}
	return p, nil
}

// ConfirmCallback verifies a provider callback signed as a compact JWS with
// HS256 and confirms the payment it names.
func (s *Service) ConfirmCallback(ctx context.Context, token string) (*CampaignPayment, error) {
	if s.cfg.CallbackSecret == "" {
		return nil, errutil.ServiceUnavailable("payment callbacks are not configured", nil)
	}

	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errutil.Unauthorized("malformed payment callback", err)
	}
	body, err := jws.Verify([]byte(s.cfg.CallbackSecret))
	if err != nil {
		return nil, errutil.Unauthorized("payment callback signature mismatch", err)
	}

	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errutil.BadRequest("invalid payment callback payload", err)
	}

	p, err := s.getTx(ctx, s.db, payload.PaymentID)
	if err != nil {
		return nil, err
	}
	if payload.Amount != p.TotalAmount {
		return nil, errutil.Validation("paid amount does not match the invoice",
			errutil.WithDetails(errutil.Detail{
				Field:   "amount",
				Message: fmt.Sprintf("expected %d, got %d", p.TotalAmount, payload.Amount),
			}))
	}
	return s.Confirm(ctx, access.System, p.ID, SourceCallback, payload.TransactionID)
}

// SignCallback produces the token ConfirmCallback accepts.
func SignCallback(secret string, payload CallbackPayload) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)}, nil)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	obj, err := signer.Sign(body)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// Cancel voids a pending payment. The campaign stays pending.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id, reason string) (*CampaignPayment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	p, fired, err := s.move(ctx, id, StatusCancelled, map[string]any{
		"cancel_reason": strings.TrimSpace(reason),
		"cancelled_at":  time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, p.ClientID, notification.KindPaymentCancelled, map[string]any{
			"payment_id": p.ID,
			"invoice_no": p.InvoiceNo,
			"reason":     p.CancelReason,
		})
	}
	return p, nil
}

func (s *Service) Refund(ctx context.Context, actor access.Actor, id, reason string) (*CampaignPayment, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("refund reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}
	p, _, err := s.move(ctx, id, StatusRefunded, map[string]any{
		"refund_reason": reason,
		"refunded_at":   time.Now(),
	})
	return p, err
}

// ExpireOverdue cancels bank transfers whose deposit deadline has passed.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.payment.Find(ctx, &CampaignPayment{Method: billing.MethodBankTransfer, Status: StatusPending},
		option.ApplyOperator(option.Condition{Field: "va_due_at", Operator: option.LT, Value: now}),
	)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range due {
		ok, err := repository.Transition[CampaignPayment](ctx, s.db, p.ID, StatusPending, StatusCancelled, map[string]any{
			"cancel_reason": "virtual account expired",
			"cancelled_at":  now,
		})
		if err != nil {
			zap.L().Warn("failed to expire payment", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if ok {
			expired++
			s.notify.Send(ctx, p.ClientID, notification.KindPaymentCancelled, map[string]any{
				"payment_id": p.ID,
				"invoice_no": p.InvoiceNo,
				"reason":     "virtual account expired",
			})
		}
	}
	return expired, nil
}

func (s *Service) move(ctx context.Context, id string, to Status, fields map[string]any) (*CampaignPayment, bool, error) {
	cur, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return nil, false, err
	}
	if cur.Status == to {
		return cur, false, nil
	}
	if err := Machine.Check(cur.Status, to); err != nil {
		return nil, false, err
	}

	ok, err := repository.Transition[CampaignPayment](ctx, s.db, id, cur.Status, to, fields)
	if err != nil {
		return nil, false, err
	}
	updated, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if updated.Status == to {
			return updated, false, nil
		}
		return nil, false, errutil.ConflictRetry(
			fmt.Sprintf("payment moved from %s to %s concurrently", cur.Status, updated.Status))
	}
	return updated, true, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (*CampaignPayment, error) {
	p, err := s.getTx(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(p.ClientID, "payment"); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) getTx(ctx context.Context, db *gorm.DB, id string) (*CampaignPayment, error) {
	p, err := s.payment.WithTrx(db).FindOne(ctx, &CampaignPayment{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound(fmt.Sprintf("payment %s not found", id), nil)
	}
	return p, nil
}

func (s *Service) ListByCampaign(ctx context.Context, actor access.Actor, campaignID string) ([]*CampaignPayment, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(c.ClientID, "campaign"); err != nil {
		return nil, err
	}
	return s.payment.Find(ctx, &CampaignPayment{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
}

// Quote prices a campaign under both methods without creating anything.
func (s *Service) Quote(ctx context.Context, actor access.Actor, campaignID string) (*billing.Comparison, error) {
	c, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(c.ClientID, "campaign"); err != nil {
		return nil, err
	}
	transfer, err := s.billing.CalculateLines(c.BillingLines(), billing.MethodBankTransfer)
	if err != nil {
		return nil, err
	}
	card, err := s.billing.CalculateLines(c.BillingLines(), billing.MethodCreditCard)
	if err != nil {
		return nil, err
	}
	return &billing.Comparison{
		BankTransfer: transfer,
		CreditCard:   card,
		Savings:      card.TotalAmount - transfer.TotalAmount,
	}, nil
}
