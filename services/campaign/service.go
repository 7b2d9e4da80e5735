package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reviewcamp/pkg/db/option"
	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/pkg/repository"
	"reviewcamp/pkg/sequence"
	"reviewcamp/services/access"
	"reviewcamp/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	seq    sequence.Generator
	notify *notification.Dispatcher

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Seq      sequence.Generator
	Dispatch *notification.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		seq:    p.Seq,
		notify: p.Dispatch,

		campaign: repository.ProvideStore[Campaign](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, actor access.Actor, in Input) (*Campaign, error) {
	if actor.Role != access.RoleClient && !actor.IsAdmin() {
		return nil, errutil.Forbidden("only clients create campaigns", nil)
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		zap.L().Error("failed to generate campaign code", zap.Error(err))
		return nil, err
	}

	now := time.Now()
	c := &Campaign{
		ID:        s.node.Generate().String(),
		Code:      code,
		Slug:      slug.Make(in.Title + " " + code),
		ClientID:  actor.ID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(c, in)

	if err := s.campaign.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, err
	}
	return c, nil
}

// Update replaces the editable fields of a draft campaign.
func (s *Service) Update(ctx context.Context, actor access.Actor, id string, in Input) (*Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(c.ClientID, "campaign"); err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, errutil.InvalidTransition("only draft campaigns can be edited")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	updated := *c
	apply(&updated, in)
	updated.Slug = slug.Make(in.Title + " " + c.Code)

	fields := map[string]any{
		"title":                 updated.Title,
		"slug":                  updated.Slug,
		"description":           updated.Description,
		"product_name":          updated.ProductName,
		"product_url":           updated.ProductURL,
		"product_price":         updated.ProductPrice,
		"platform":              updated.Platform,
		"naver_recruit_count":   updated.NaverRecruitCount,
		"coupang_recruit_count": updated.CoupangRecruitCount,
		"naver_reward_point":    updated.NaverRewardPoint,
		"coupang_reward_point":  updated.CoupangRewardPoint,
		"payback_product_price": updated.PaybackProductPrice,
		"bonus_point":           updated.BonusPoint,
		"recruit_start_at":      updated.RecruitStartAt,
		"recruit_end_at":        updated.RecruitEndAt,
		"announce_at":           updated.AnnounceAt,
		"review_deadline_at":    updated.ReviewDeadlineAt,
		"rejection_reason":      "",
	}
	ok, err := repository.Transition[Campaign](ctx, s.db, id, StatusDraft, StatusDraft, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errutil.ConflictRetry("campaign changed while editing")
	}
	return s.Get(ctx, id)
}

// Submit sends a draft for operator review.
func (s *Service) Submit(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	c, _, err := s.move(ctx, s.db, id, step{
		to:    StatusPending,
		owner: &actor,
		guard: validateSubmission,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"submitted_at": now, "rejection_reason": ""}
		},
	})
	return c, err
}

// Approve opens recruitment on operator approval.
func (s *Service) Approve(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var (
		c     *Campaign
		fired bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, fired, err = s.ActivateTx(ctx, tx, id, ApprovalByAdmin, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notifyApproved(ctx, c)
	}
	return c, nil
}

// ActivateTx moves a pending campaign to recruiting inside tx. Operator
// approval and payment confirmation both land here; whichever commits first
// performs the transition and the other observes fired=false.
func (s *Service) ActivateTx(ctx context.Context, tx *gorm.DB, id string, source ApprovalSource, actorID string) (*Campaign, bool, error) {
	return s.move(ctx, tx, id, step{
		to:        StatusRecruiting,
		allowSame: true,
		fields: func(now time.Time) map[string]any {
			return map[string]any{
				"approval_source": source,
				"approved_by":     actorID,
				"approved_at":     now,
			}
		},
	})
}

// NotifyActivated is called by collaborators that ran ActivateTx in their
// own transaction, after it committed.
func (s *Service) NotifyActivated(ctx context.Context, c *Campaign) {
	s.notifyApproved(ctx, c)
}

func (s *Service) notifyApproved(ctx context.Context, c *Campaign) {
	s.notify.Send(ctx, c.ClientID, notification.KindCampaignApproved, map[string]any{
		"campaign_id":     c.ID,
		"code":            c.Code,
		"title":           c.Title,
		"approval_source": c.ApprovalSource,
	})
}

// Reject returns a pending campaign to draft with a reason.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id, reason string) (*Campaign, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("rejection reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	c, _, err := s.move(ctx, s.db, id, step{
		to: StatusDraft,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"rejection_reason": reason}
		},
	})
	if err != nil {
		return nil, err
	}
	s.notify.Send(ctx, c.ClientID, notification.KindCampaignRejected, map[string]any{
		"campaign_id": c.ID,
		"reason":      reason,
	})
	return c, nil
}

// Close ends recruitment before the recruit end date.
func (s *Service) Close(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	c, fired, err := s.move(ctx, s.db, id, step{
		to:        StatusClosed,
		owner:     &actor,
		allowSame: true,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"closed_at": now}
		},
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, c.ClientID, notification.KindCampaignClosed, map[string]any{"campaign_id": c.ID})
	}
	return c, nil
}

// StartProgress moves a closed campaign into the purchase and review phase.
func (s *Service) StartProgress(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	c, _, err := s.move(ctx, s.db, id, step{to: StatusInProgress, allowSame: true})
	return c, err
}

// StartReviewing moves a campaign into the final moderation phase.
func (s *Service) StartReviewing(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	c, _, err := s.move(ctx, s.db, id, step{to: StatusReviewing, allowSame: true})
	return c, err
}

func (s *Service) Complete(ctx context.Context, actor access.Actor, id string) (*Campaign, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	c, _, err := s.move(ctx, s.db, id, step{
		to:        StatusCompleted,
		allowSame: true,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"completed_at": now}
		},
	})
	return c, err
}

// Cancel ends a campaign from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id, reason string) (*Campaign, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errutil.Validation("cancel reason is required",
			errutil.WithDetails(errutil.Detail{Field: "reason", Message: "required"}))
	}

	c, fired, err := s.move(ctx, s.db, id, step{
		to:        StatusCancelled,
		owner:     &actor,
		allowSame: true,
		fields: func(now time.Time) map[string]any {
			return map[string]any{"cancel_reason": reason, "cancelled_at": now}
		},
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, c.ClientID, notification.KindCampaignCancelled, map[string]any{
			"campaign_id": c.ID,
			"reason":      reason,
		})
	}
	return c, nil
}

// CloseExpired closes every recruiting campaign whose recruit end date has
// passed and returns the ids it closed.
func (s *Service) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	due, err := s.campaign.Find(ctx, &Campaign{Status: StatusRecruiting},
		option.ApplyOperator(option.Condition{Field: "recruit_end_at", Operator: option.LT, Value: now}),
	)
	if err != nil {
		return nil, err
	}

	var closed []string
	for _, c := range due {
		updated, fired, err := s.move(ctx, s.db, c.ID, step{
			to: StatusClosed,
			guard: func(cur *Campaign) error {
				if cur.RecruitEndAt == nil || !cur.RecruitEndAt.Before(now) {
					return errutil.InvalidTransition("recruitment has not ended")
				}
				return nil
			},
			fields: func(time.Time) map[string]any {
				return map[string]any{"closed_at": now}
			},
		})
		if err != nil {
			zap.L().Warn("auto close skipped", zap.String("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if fired {
			closed = append(closed, c.ID)
			s.notify.Send(ctx, updated.ClientID, notification.KindCampaignClosed, map[string]any{"campaign_id": c.ID, "auto": true})
		}
	}
	return closed, nil
}

// AdvanceSchedule moves closed campaigns to in_progress once the winners are
// announced, and in_progress campaigns to reviewing once the review deadline
// has passed.
func (s *Service) AdvanceSchedule(ctx context.Context, now time.Time) (int, error) {
	moved := 0

	announced, err := s.campaign.Find(ctx, &Campaign{Status: StatusClosed},
		option.ApplyOperator(option.Condition{Field: "announce_at", Operator: option.LTE, Value: now}),
	)
	if err != nil {
		return 0, err
	}
	for _, c := range announced {
		if _, fired, err := s.move(ctx, s.db, c.ID, step{to: StatusInProgress}); err != nil {
			zap.L().Warn("advance to in_progress skipped", zap.String("campaign_id", c.ID), zap.Error(err))
		} else if fired {
			moved++
		}
	}

	overdue, err := s.campaign.Find(ctx, &Campaign{Status: StatusInProgress},
		option.ApplyOperator(option.Condition{Field: "review_deadline_at", Operator: option.LT, Value: now}),
	)
	if err != nil {
		return moved, err
	}
	for _, c := range overdue {
		if _, fired, err := s.move(ctx, s.db, c.ID, step{to: StatusReviewing}); err != nil {
			zap.L().Warn("advance to reviewing skipped", zap.String("campaign_id", c.ID), zap.Error(err))
		} else if fired {
			moved++
		}
	}
	return moved, nil
}

// ReviewWindow lists in_progress campaigns whose review deadline falls in
// [now, now+window).
func (s *Service) ReviewWindow(ctx context.Context, now time.Time, window time.Duration) ([]*Campaign, error) {
	return s.campaign.Find(ctx, &Campaign{Status: StatusInProgress},
		option.ApplyOperator(
			option.Condition{Field: "review_deadline_at", Operator: option.GTE, Value: now},
			option.Condition{Field: "review_deadline_at", Operator: option.LT, Value: now.Add(window)},
		),
	)
}

func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.getTx(ctx, s.db, id)
}

func (s *Service) getTx(ctx context.Context, db *gorm.DB, id string, opts ...option.QueryOption) (*Campaign, error) {
	c, err := s.campaign.WithTrx(db).FindOne(ctx, &Campaign{ID: id}, opts...)
	if err != nil {
		zap.L().Error("failed to query campaign", zap.String("campaign_id", id), zap.Error(err))
		return nil, err
	}
	if c == nil {
		return nil, errutil.NotFound(fmt.Sprintf("campaign %s not found", id), nil)
	}
	return c, nil
}

// LockTx loads the campaign with a row lock held for the rest of tx.
func (s *Service) LockTx(ctx context.Context, tx *gorm.DB, id string) (*Campaign, error) {
	return s.getTx(ctx, tx, id, option.WithLockingUpdate())
}

// GetTx loads the campaign through tx without locking it.
func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, id string) (*Campaign, error) {
	return s.getTx(ctx, tx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, page pagination.Pagination) ([]*Campaign, pagination.PageInfo, error) {
	items, err := s.campaign.Find(ctx, &Campaign{ClientID: f.ClientID, Status: f.Status}, option.ApplyPagination(page))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	out, info := pagination.Page(items, page.Limit, func(c *Campaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return out, info, nil
}

type step struct {
	to Status
	// owner, when set, must own the campaign unless it is an operator.
	owner *access.Actor
	guard func(*Campaign) error
	// allowSame turns a repeat of an already applied transition into a no-op.
	allowSame bool
	fields    func(now time.Time) map[string]any
}

// move applies one guarded transition: the row is updated only while it
// still holds the status that was read. fired is false when nothing changed.
func (s *Service) move(ctx context.Context, db *gorm.DB, id string, st step) (*Campaign, bool, error) {
	cur, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if st.owner != nil {
		if err := st.owner.RequireOwner(cur.ClientID, "campaign"); err != nil {
			return nil, false, err
		}
	}
	if st.allowSame && cur.Status == st.to {
		return cur, false, nil
	}
	if err := Machine.Check(cur.Status, st.to); err != nil {
		return nil, false, err
	}
	if st.guard != nil {
		if err := st.guard(cur); err != nil {
			return nil, false, err
		}
	}

	now := time.Now()
	var fields map[string]any
	if st.fields != nil {
		fields = st.fields(now)
	}

	ok, err := repository.Transition[Campaign](ctx, db, id, cur.Status, st.to, fields)
	if err != nil {
		zap.L().Error("failed to update campaign status", zap.String("campaign_id", id), zap.Error(err))
		return nil, false, err
	}

	updated, err := s.getTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if st.allowSame && updated.Status == st.to {
			return updated, false, nil
		}
		return nil, false, errutil.ConflictRetry(
			fmt.Sprintf("campaign moved from %s to %s concurrently", cur.Status, updated.Status))
	}

	zap.L().Info("campaign status changed",
		zap.String("campaign_id", id),
		zap.String("from", string(cur.Status)),
		zap.String("to", string(st.to)))
	return updated, true, nil
}

func apply(c *Campaign, in Input) {
	c.Title = strings.TrimSpace(in.Title)
	c.Description = in.Description
	c.ProductName = in.ProductName
	c.ProductURL = in.ProductURL
	c.ProductPrice = in.ProductPrice
	c.Platform = in.Platform
	c.NaverRecruitCount = nil
	c.CoupangRecruitCount = nil
	c.NaverRewardPoint = 0
	c.CoupangRewardPoint = 0
	if in.Platform.Offers(PlatformNaver) {
		c.NaverRecruitCount = in.NaverRecruitCount
		c.NaverRewardPoint = in.NaverRewardPoint
	}
	if in.Platform.Offers(PlatformCoupang) {
		c.CoupangRecruitCount = in.CoupangRecruitCount
		c.CoupangRewardPoint = in.CoupangRewardPoint
	}
	c.PaybackProductPrice = in.PaybackProductPrice
	c.BonusPoint = in.BonusPoint
	c.RecruitStartAt = in.RecruitStartAt
	c.RecruitEndAt = in.RecruitEndAt
	c.AnnounceAt = in.AnnounceAt
	c.ReviewDeadlineAt = in.ReviewDeadlineAt
}

func validateInput(in Input) error {
	var details []errutil.Detail
	add := func(field, msg string) { details = append(details, errutil.Detail{Field: field, Message: msg}) }

	if strings.TrimSpace(in.Title) == "" {
		add("title", "required")
	}
	if !in.Platform.Valid() {
		add("platform", "must be naver, coupang or both")
	}
	if in.ProductPrice < 0 {
		add("product_price", "must be >= 0")
	}
	if in.BonusPoint < 0 {
		add("bonus_point", "must be >= 0")
	}
	if in.PaybackProductPrice && in.ProductPrice <= 0 {
		add("product_price", "required when the product price is paid back")
	}
	if in.Platform.Offers(PlatformNaver) {
		if in.NaverRecruitCount == nil {
			add("naver_recruit_count", "required for naver campaigns")
		} else if *in.NaverRecruitCount < 0 {
			add("naver_recruit_count", "must be >= 0")
		}
		if in.NaverRewardPoint < 0 {
			add("naver_reward_point", "must be >= 0")
		}
	}
	if in.Platform.Offers(PlatformCoupang) {
		if in.CoupangRecruitCount == nil {
			add("coupang_recruit_count", "required for coupang campaigns")
		} else if *in.CoupangRecruitCount < 0 {
			add("coupang_recruit_count", "must be >= 0")
		}
		if in.CoupangRewardPoint < 0 {
			add("coupang_reward_point", "must be >= 0")
		}
	}
	details = append(details, scheduleOrder(in.RecruitStartAt, in.RecruitEndAt, in.AnnounceAt, in.ReviewDeadlineAt)...)

	if len(details) > 0 {
		return errutil.Validation("invalid campaign", errutil.WithDetails(details...))
	}
	return nil
}

// scheduleOrder checks recruit_start <= recruit_end <= announce <= review_deadline
// over the dates that are set.
func scheduleOrder(dates ...*time.Time) []errutil.Detail {
	names := []string{"recruit_start_at", "recruit_end_at", "announce_at", "review_deadline_at"}
	var (
		details []errutil.Detail
		prev    *time.Time
		prevIdx int
	)
	for i, d := range dates {
		if d == nil {
			continue
		}
		if prev != nil && d.Before(*prev) {
			details = append(details, errutil.Detail{Field: names[i], Message: "must not be before " + names[prevIdx]})
		}
		prev, prevIdx = d, i
	}
	return details
}

func validateSubmission(c *Campaign) error {
	var details []errutil.Detail
	dates := map[string]*time.Time{
		"recruit_start_at":   c.RecruitStartAt,
		"recruit_end_at":     c.RecruitEndAt,
		"announce_at":        c.AnnounceAt,
		"review_deadline_at": c.ReviewDeadlineAt,
	}
	for _, name := range []string{"recruit_start_at", "recruit_end_at", "announce_at", "review_deadline_at"} {
		if dates[name] == nil {
			details = append(details, errutil.Detail{Field: name, Message: "required before submission"})
		}
	}
	if c.TotalRecruitCount() <= 0 {
		details = append(details, errutil.Detail{Field: "recruit_count", Message: "at least one seat is required"})
	}
	for _, p := range c.Platform.Marketplaces() {
		if c.RecruitCountFor(p) > 0 && c.RewardFor(p) <= 0 {
			details = append(details, errutil.Detail{Field: string(p) + "_reward_point", Message: "must be > 0"})
		}
	}
	if len(details) > 0 {
		return errutil.Validation("campaign is not ready for submission", errutil.WithDetails(details...))
	}
	return nil
}
