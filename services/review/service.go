package review

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"
	"reviewcamp/services/access"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/contentcheck"
	"reviewcamp/services/evidence"
	"reviewcamp/services/ledger"
	"reviewcamp/services/notification"
	"reviewcamp/services/verification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db            *gorm.DB
	node          *snowflake.Node
	campaigns     *campaign.Service
	applications  *application.Service
	verifications *verification.Service
	ledger        *ledger.Service
	evidence      evidence.Store
	checker       contentcheck.Checker
	notify        *notification.Dispatcher

	submission repository.Repository[ReviewSubmission]
}

type ServiceParams struct {
	fx.In

	DB            *gorm.DB
	Node          *snowflake.Node
	Campaigns     *campaign.Service
	Applications  *application.Service
	Verifications *verification.Service
	Ledger        *ledger.Service
	Evidence      evidence.Store
	Checker       contentcheck.Checker `optional:"true"`
	Dispatch      *notification.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:            p.DB,
		node:          p.Node,
		campaigns:     p.Campaigns,
		applications:  p.Applications,
		verifications: p.Verifications,
		ledger:        p.Ledger,
		evidence:      p.Evidence,
		checker:       p.Checker,
		notify:        p.Dispatch,

		submission: repository.ProvideStore[ReviewSubmission](p.DB),
	}
}

// Submit records the review for a selected application whose purchase has
// been verified. After a revision request the same record is reused and
// goes back to pending.
func (s *Service) Submit(ctx context.Context, actor access.Actor, applicationID string, in SubmitInput) (*ReviewSubmission, error) {
	app, err := s.applications.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.ReviewerID != actor.ID {
		return nil, errutil.Forbidden("application belongs to another reviewer", nil)
	}
	if app.Status != application.StatusSelected {
		return nil, errutil.InvalidTransition(fmt.Sprintf("a review cannot be submitted for a %s application", app.Status))
	}
	if err := s.verifications.RequireApproved(ctx, s.db, app.ID); err != nil {
		return nil, err
	}
	reviewURL, err := validateURL(in.ReviewURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.submission.FindOne(ctx, &ReviewSubmission{ApplicationID: app.ID})
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status != StatusRevisionRequested {
		return nil, errutil.InvalidTransition(fmt.Sprintf("review already submitted and is %s", existing.Status))
	}

	refs, err := evidence.StoreAll(ctx, s.evidence, in.Files)
	if err != nil {
		return nil, err
	}
	evidenceURLs := append(append([]string{}, in.URLs...), refs...)
	now := time.Now()

	var sub *ReviewSubmission
	if existing == nil {
		sub = &ReviewSubmission{
			ID:              s.node.Generate().String(),
			ApplicationID:   app.ID,
			CampaignID:      app.CampaignID,
			ReviewerID:      app.ReviewerID,
			Platform:        app.Platform,
			ReviewURL:       reviewURL,
			EvidenceURLs:    datatypes.JSONSlice[string](evidenceURLs),
			Status:          StatusPending,
			SubmissionCount: 1,
			SubmittedAt:     now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.submission.Create(ctx, sub); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, errutil.ConflictRetry("review was submitted concurrently")
			}
			zap.L().Error("failed to create review submission", zap.String("application_id", app.ID), zap.Error(err))
			return nil, err
		}
	} else {
		ok, err := repository.Transition[ReviewSubmission](ctx, s.db, existing.ID, StatusRevisionRequested, StatusPending, map[string]any{
			"review_url":       reviewURL,
			"evidence_urls":    datatypes.JSONSlice[string](evidenceURLs),
			"submission_count": gorm.Expr("submission_count + 1"),
			"submitted_at":     now,
			"checked_at":       nil,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errutil.ConflictRetry("review changed while resubmitting")
		}
		if sub, err = s.Get(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	return s.runCheck(ctx, sub), nil
}

// runCheck asks the content checker for a verdict on a pending submission.
// The check is advisory: failures land in needs_review and never fail the
// submission itself.
func (s *Service) runCheck(ctx context.Context, sub *ReviewSubmission) *ReviewSubmission {
	if s.checker == nil {
		return sub
	}

	verdict, err := s.checker.Check(ctx, contentcheck.Submission{
		ReviewURL:       sub.ReviewURL,
		Platform:        string(sub.Platform),
		EvidenceCount:   len(sub.EvidenceURLs),
		SubmissionCount: sub.SubmissionCount,
	})
	if err != nil {
		zap.L().Warn("content check failed, falling back to manual review", zap.String("review_id", sub.ID), zap.Error(err))
		verdict = contentcheck.VerdictNeedsReview
	}
	if verdict == contentcheck.VerdictSkipped {
		return sub
	}

	to := Status(verdict)
	ok, err := repository.Transition[ReviewSubmission](ctx, s.db, sub.ID, StatusPending, to, map[string]any{"checked_at": time.Now()})
	if err != nil || !ok {
		// an operator got to it first
		zap.L().Info("content check verdict not applied", zap.String("review_id", sub.ID), zap.Bool("applied", ok), zap.Error(err))
		return sub
	}
	if updated, err := s.Get(ctx, sub.ID); err == nil {
		return updated
	}
	return sub
}

// Approve accepts the review and credits the reward. It is the only path
// that posts a point transaction, and approving twice credits once.
func (s *Service) Approve(ctx context.Context, actor access.Actor, id string) (*ReviewSubmission, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var (
		sub   *ReviewSubmission
		fired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status == StatusApproved {
			sub = cur
			return nil
		}
		if err := Machine.Check(cur.Status, StatusApproved); err != nil {
			return err
		}

		app, err := s.applications.GetTx(ctx, tx, cur.ApplicationID)
		if err != nil {
			return err
		}
		c, err := s.campaigns.GetTx(ctx, tx, app.CampaignID)
		if err != nil {
			return err
		}
		reward := c.RewardFor(app.Platform)

		now := time.Now()
		ok, err := repository.Transition[ReviewSubmission](ctx, tx, id, cur.Status, StatusApproved, map[string]any{
			"reviewed_by":  actor.ID,
			"reviewed_at":  now,
			"reward_point": reward,
		})
		if err != nil {
			return err
		}
		if !ok {
			latest, err := s.getTx(ctx, tx, id)
			if err != nil {
				return err
			}
			if latest.Status == StatusApproved {
				sub = latest
				return nil
			}
			return errutil.ConflictRetry(fmt.Sprintf("review moved from %s to %s concurrently", cur.Status, latest.Status))
		}

		entry, _, err := s.ledger.PostTx(ctx, tx, ledger.PostParams{
			ReviewerID:    cur.ReviewerID,
			Type:          ledger.TypeEarn,
			Amount:        reward,
			ReferenceType: ledger.ReferenceReview,
			ReferenceID:   cur.ID,
			Description:   fmt.Sprintf("review reward %s (%s)", c.Code, app.Platform),
			Metadata: map[string]any{
				"campaign_id":    c.ID,
				"application_id": app.ID,
				"platform":       app.Platform,
			},
		})
		if err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(&ReviewSubmission{}).
			Where("id = ?", id).
			Update("point_transaction_id", entry.ID).Error; err != nil {
			return err
		}
		if _, err := s.applications.SettleTx(ctx, tx, app.ID); err != nil {
			return err
		}

		fired = true
		sub, err = s.getTx(ctx, tx, id)
		return err
	})
	if err != nil {
		zap.L().Error("failed to approve review", zap.String("review_id", id), zap.Error(err))
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, sub.ReviewerID, notification.KindReviewApproved, map[string]any{
			"review_id":            sub.ID,
			"campaign_id":          sub.CampaignID,
			"reward_point":         sub.RewardPoint,
			"point_transaction_id": sub.PointTransactionID,
		})
	}
	return sub, nil
}

// RequestRevision sends the review back to the reviewer with a comment.
func (s *Service) RequestRevision(ctx context.Context, actor access.Actor, id, comment string) (*ReviewSubmission, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, errutil.Validation("revision comment is required",
			errutil.WithDetails(errutil.Detail{Field: "comment", Message: "required"}))
	}

	sub, err := s.moderate(ctx, actor, id, StatusRevisionRequested, map[string]any{"revision_comment": comment})
	if err != nil {
		return nil, err
	}
	s.notify.Send(ctx, sub.ReviewerID, notification.KindReviewRevisionRequested, map[string]any{
		"review_id": sub.ID,
		"comment":   comment,
	})
	return sub, nil
}

func (s *Service) Reject(ctx context.Context, actor access.Actor, id, reason string) (*ReviewSubmission, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("rejection reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	sub, err := s.moderate(ctx, actor, id, StatusRejected, map[string]any{"rejection_reason": reason})
	if err != nil {
		return nil, err
	}
	s.notify.Send(ctx, sub.ReviewerID, notification.KindReviewRejected, map[string]any{
		"review_id": sub.ID,
		"reason":    reason,
	})
	return sub, nil
}

func (s *Service) moderate(ctx context.Context, actor access.Actor, id string, to Status, fields map[string]any) (*ReviewSubmission, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Machine.Check(cur.Status, to); err != nil {
		return nil, err
	}

	fields["reviewed_by"] = actor.ID
	fields["reviewed_at"] = time.Now()
	ok, err := repository.Transition[ReviewSubmission](ctx, s.db, id, cur.Status, to, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errutil.ConflictRetry("review changed during moderation")
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*ReviewSubmission, error) {
	return s.getTx(ctx, s.db, id)
}

func (s *Service) getTx(ctx context.Context, db *gorm.DB, id string) (*ReviewSubmission, error) {
	sub, err := s.submission.WithTrx(db).FindOne(ctx, &ReviewSubmission{ID: id})
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errutil.NotFound(fmt.Sprintf("review %s not found", id), nil)
	}
	return sub, nil
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID string, status Status, page pagination.Pagination) ([]*ReviewSubmission, pagination.PageInfo, error) {
	items, err := s.submission.Find(ctx, &ReviewSubmission{CampaignID: campaignID, Status: status}, option.ApplyPagination(page))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	out, info := pagination.Page(items, page.Limit, func(r *ReviewSubmission) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return out, info, nil
}

// PendingReminders returns the selected applications of a campaign that
// still owe a review: none submitted yet, or sent back for revision.
func (s *Service) PendingReminders(ctx context.Context, campaignID string) ([]*application.Application, error) {
	apps, err := s.applications.SelectedInCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, nil
	}

	subs, err := s.submission.Find(ctx, &ReviewSubmission{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(subs))
	for _, sub := range subs {
		done[sub.ApplicationID] = sub.Status != StatusRevisionRequested
	}

	var owed []*application.Application
	for _, a := range apps {
		if !done[a.ID] {
			owed = append(owed, a)
		}
	}
	return owed, nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", errutil.Validation("review url must be an http(s) link",
			errutil.WithDetails(errutil.Detail{Field: "review_url", Message: "invalid url"}))
	}
	return raw, nil
}
