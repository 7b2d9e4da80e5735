package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/evidence"
	"reviewcamp/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db           *gorm.DB
	node         *snowflake.Node
	applications *application.Service
	evidence     evidence.Store
	notify       *notification.Dispatcher

	verification repository.Repository[PurchaseVerification]
}

type ServiceParams struct {
	fx.In

	DB           *gorm.DB
	Node         *snowflake.Node
	Applications *application.Service
	Evidence     evidence.Store
	Dispatch     *notification.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		applications: p.Applications,
		evidence:     p.Evidence,
		notify:       p.Dispatch,

		verification: repository.ProvideStore[PurchaseVerification](p.DB),
	}
}

// Submit records the reviewer's proof of purchase for a selected
// application. Each application gets exactly one verification.
func (s *Service) Submit(ctx context.Context, actor access.Actor, applicationID string, in SubmitInput) (*PurchaseVerification, error) {
	app, err := s.applications.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ReviewerID != actor.ID {
		return nil, errutil.Forbidden("application belongs to another reviewer", nil)
	}
	if app.Status != application.StatusSelected {
		return nil, errutil.InvalidTransition(fmt.Sprintf("purchase cannot be verified for a %s application", app.Status))
	}

	orderNumber := strings.TrimSpace(in.OrderNumber)
	var details []errutil.Detail
	if orderNumber == "" {
		details = append(details, errutil.Detail{Field: "order_number", Message: "required"})
	}
	if len(in.Files)+len(in.URLs) == 0 {
		details = append(details, errutil.Detail{Field: "evidence", Message: "at least one image is required"})
	}
	if len(details) > 0 {
		return nil, errutil.Validation("invalid purchase verification", errutil.WithDetails(details...))
	}

	existing, err := s.verification.FindOne(ctx, &PurchaseVerification{ApplicationID: app.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.Conflict("purchase verification already submitted", nil)
	}

	refs, err := evidence.StoreAll(ctx, s.evidence, in.Files)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	v := &PurchaseVerification{
		ID:            s.node.Generate().String(),
		ApplicationID: app.ID,
		CampaignID:    app.CampaignID,
		ReviewerID:    app.ReviewerID,
		OrderNumber:   orderNumber,
		EvidenceURLs:  datatypes.JSONSlice[string](append(append([]string{}, in.URLs...), refs...)),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.verification.Create(ctx, v); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("purchase verification already submitted", nil)
		}
		zap.L().Error("failed to create purchase verification", zap.String("application_id", app.ID), zap.Error(err))
		return nil, err
	}
	return v, nil
}

func (s *Service) Approve(ctx context.Context, actor access.Actor, id string) (*PurchaseVerification, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	v, fired, err := s.move(ctx, s.db, id, StatusApproved, true, map[string]any{"reviewed_by": actor.ID})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, v.ReviewerID, notification.KindVerificationApproved, map[string]any{
			"verification_id": v.ID,
			"application_id":  v.ApplicationID,
		})
	}
	return v, nil
}

func (s *Service) Reject(ctx context.Context, actor access.Actor, id, reason string) (*PurchaseVerification, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("rejection reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	var (
		v     *PurchaseVerification
		fired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		v, fired, err = s.move(ctx, tx, id, StatusRejected, true, map[string]any{
			"reviewed_by":      actor.ID,
			"rejection_reason": reason,
		})
		if err != nil {
			return err
		}
		_, err = s.applications.ReleaseTx(ctx, tx, v.ApplicationID, "purchase verification rejected: "+reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, v.ReviewerID, notification.KindVerificationRejected, map[string]any{
			"verification_id": v.ID,
			"application_id":  v.ApplicationID,
			"reason":          reason,
		})
	}
	return v, nil
}

func (s *Service) move(ctx context.Context, db *gorm.DB, id string, to Status, allowSame bool, fields map[string]any) (*PurchaseVerification, bool, error) {
	cur, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if allowSame && cur.Status == to {
		return cur, false, nil
	}
	if err := Machine.Check(cur.Status, to); err != nil {
		return nil, false, err
	}

	fields["reviewed_at"] = time.Now()
	ok, err := repository.Transition[PurchaseVerification](ctx, db, id, cur.Status, to, fields)
	if err != nil {
		zap.L().Error("failed to update purchase verification", zap.String("verification_id", id), zap.Error(err))
		return nil, false, err
	}
	updated, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if allowSame && updated.Status == to {
			return updated, false, nil
		}
		return nil, false, errutil.ConflictRetry(
			fmt.Sprintf("purchase verification moved from %s to %s concurrently", cur.Status, updated.Status))
	}
	return updated, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (*PurchaseVerification, error) {
	return s.getTx(ctx, s.db, id)
}

func (s *Service) getTx(ctx context.Context, db *gorm.DB, id string) (*PurchaseVerification, error) {
	v, err := s.verification.WithTrx(db).FindOne(ctx, &PurchaseVerification{ID: id})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errutil.NotFound(fmt.Sprintf("purchase verification %s not found", id), nil)
	}
	return v, nil
}

// ForApplicationTx returns the application's verification, or nil when the
// reviewer has not submitted one yet.
func (s *Service) ForApplicationTx(ctx context.Context, tx *gorm.DB, applicationID string) (*PurchaseVerification, error) {
	return s.verification.WithTrx(tx).FindOne(ctx, &PurchaseVerification{ApplicationID: applicationID})
}

// RequireApproved fails with VerificationRequired unless the application's
// purchase has been approved.
func (s *Service) RequireApproved(ctx context.Context, tx *gorm.DB, applicationID string) error {
	v, err := s.ForApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	if v == nil {
		return errutil.VerificationRequired("purchase verification has not been submitted")
	}
	if v.Status != StatusApproved {
		return errutil.VerificationRequired(fmt.Sprintf("purchase verification is %s", v.Status))
	}
	return nil
}

func (s *Service) ListByStatus(ctx context.Context, status Status, page pagination.Pagination) ([]*PurchaseVerification, pagination.PageInfo, error) {
	items, err := s.verification.Find(ctx, &PurchaseVerification{Status: status}, option.ApplyPagination(page))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	out, info := pagination.Page(items, page.Limit, func(v *PurchaseVerification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	})
	return out, info, nil
}
