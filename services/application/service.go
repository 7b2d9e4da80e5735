package application

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
	"reviewcamp/services/campaign"
	"reviewcamp/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/sets"
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	campaigns *campaign.Service
	notify    *notification.Dispatcher

	application repository.Repository[Application]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Campaigns *campaign.Service
	Dispatch  *notification.Dispatcher
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:        p.DB,
		node:      p.Node,
		campaigns: p.Campaigns,
		notify:    p.Dispatch,

		application: repository.ProvideStore[Application](p.DB),
	}
}

// Apply claims one platform slot of a recruiting campaign for the reviewer.
func (s *Service) Apply(ctx context.Context, actor access.Actor, in ApplyInput) (*Application, error) {
	if actor.Role != access.RoleReviewer {
		return nil, errutil.Forbidden("only reviewers apply to campaigns", nil)
	}

	c, err := s.campaigns.Get(ctx, in.CampaignID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if c.Status != campaign.StatusRecruiting || (c.RecruitEndAt != nil && now.After(*c.RecruitEndAt)) {
		return nil, errutil.CampaignNotOpen(fmt.Sprintf("campaign %s is not recruiting", c.Code))
	}
	if c.RecruitCountFor(in.Platform) <= 0 {
		return nil, errutil.Validation("platform is not offered by this campaign",
			errutil.WithDetails(errutil.Detail{Field: "platform", Message: "not offered"}))
	}

	existing, err := s.application.FindOne(ctx, &Application{
		CampaignID: c.ID,
		ReviewerID: actor.ID,
		Platform:   in.Platform,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errutil.DuplicateApplication("already applied to this campaign on " + string(in.Platform))
	}

	app := &Application{
		ID:         s.node.Generate().String(),
		CampaignID: c.ID,
		ReviewerID: actor.ID,
		Platform:   in.Platform,
		Status:     StatusApplied,
		Message:    strings.TrimSpace(in.Message),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.application.Create(ctx, app); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.DuplicateApplication("already applied to this campaign on " + string(in.Platform))
		}
		zap.L().Error("failed to create application", zap.String("campaign_id", c.ID), zap.Error(err))
		return nil, err
	}
	return app, nil
}

// Select moves one application to selected.
func (s *Service) Select(ctx context.Context, actor access.Actor, id string) (*Application, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.BulkSelect(ctx, actor, app.CampaignID, []string{id})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// BulkSelect selects the given applications of one campaign. The batch is
// applied as a whole or not at all; applications already selected are left
// as they are.
func (s *Service) BulkSelect(ctx context.Context, actor access.Actor, campaignID string, ids []string) ([]*Application, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	wanted := sets.New[string](ids...)
	if wanted.Len() == 0 {
		return nil, errutil.Validation("no applications to select",
			errutil.WithDetails(errutil.Detail{Field: "application_ids", Message: "required"}))
	}

	var out, fired []*Application
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockForSelection(ctx, tx, campaignID)
		if err != nil {
			return err
		}

		apps, err := s.application.WithTrx(tx).Find(ctx, &Application{CampaignID: campaignID},
			option.ApplyOperator(option.Condition{Field: "id", Operator: option.IN, Value: sets.List(wanted)}),
		)
		if err != nil {
			return err
		}
		found := sets.New[string]()
		for _, a := range apps {
			found.Insert(a.ID)
		}
		if missing := wanted.Difference(found); missing.Len() > 0 {
			return errutil.NotFound(fmt.Sprintf("applications not found in campaign: %s", strings.Join(sets.List(missing), ", ")), nil)
		}

		out, fired, err = s.selectTx(ctx, tx, c, apps, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifySelected(ctx, fired)
	return out, nil
}

// AutoSelect fills the remaining seats of each offered platform with the
// earliest applicants.
func (s *Service) AutoSelect(ctx context.Context, actor access.Actor, campaignID string) ([]*Application, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	var fired []*Application
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockForSelection(ctx, tx, campaignID)
		if err != nil {
			return err
		}

		var picked []*Application
		for _, p := range c.Platform.Marketplaces() {
			taken, err := s.seated(ctx, tx, c.ID, p)
			if err != nil {
				return err
			}
			remaining := c.RecruitCountFor(p) - taken
			if remaining <= 0 {
				continue
			}
			apps, err := s.application.WithTrx(tx).Find(ctx,
				&Application{CampaignID: c.ID, Platform: p, Status: StatusApplied},
				option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
				option.WithLimit(int(remaining)),
			)
			if err != nil {
				return err
			}
			picked = append(picked, apps...)
		}
		if len(picked) == 0 {
			return nil
		}

		_, fired, err = s.selectTx(ctx, tx, c, picked, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifySelected(ctx, fired)
	return fired, nil
}

func (s *Service) lockForSelection(ctx context.Context, tx *gorm.DB, campaignID string) (*campaign.Campaign, error) {
	c, err := s.campaigns.LockTx(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}
	switch c.Status {
	case campaign.StatusRecruiting, campaign.StatusClosed:
		return c, nil
	}
	return nil, errutil.InvalidTransition(fmt.Sprintf("selection is not open for a %s campaign", c.Status))
}

// selectTx runs under the campaign row lock, so seat counts cannot change
// underneath it.
func (s *Service) selectTx(ctx context.Context, tx *gorm.DB, c *campaign.Campaign, apps []*Application, actorID string) ([]*Application, []*Application, error) {
	perPlatform := map[campaign.Platform]int64{}
	for _, a := range apps {
		switch a.Status {
		case StatusSelected:
		case StatusApplied:
			perPlatform[a.Platform]++
		default:
			return nil, nil, Machine.Check(a.Status, StatusSelected)
		}
	}

	var details []errutil.Detail
	for p, n := range perPlatform {
		taken, err := s.seated(ctx, tx, c.ID, p)
		if err != nil {
			return nil, nil, err
		}
		limit := c.RecruitCountFor(p)
		if taken+n > limit {
			details = append(details, errutil.Detail{
				Field:   string(p),
				Message: fmt.Sprintf("%d of %d seats taken, %d requested", taken, limit, n),
			})
		}
	}
	if len(details) > 0 {
		return nil, nil, errutil.CapacityExceeded("recruit count exceeded", errutil.WithDetails(details...))
	}

	now := time.Now()
	var out, fired []*Application
	for _, a := range apps {
		if a.Status == StatusSelected {
			out = append(out, a)
			continue
		}
		ok, err := repository.Transition[Application](ctx, tx, a.ID, StatusApplied, StatusSelected, map[string]any{
			"selected_at": now,
			"selected_by": actorID,
		})
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, errutil.ConflictRetry("application " + a.ID + " changed during selection")
		}
		a.Status = StatusSelected
		a.SelectedAt = &now
		a.SelectedBy = actorID
		out = append(out, a)
		fired = append(fired, a)
	}
	return out, fired, nil
}

func (s *Service) seated(ctx context.Context, tx *gorm.DB, campaignID string, p campaign.Platform) (int64, error) {
	return s.application.WithTrx(tx).Count(ctx, &Application{CampaignID: campaignID, Platform: p},
		option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: Seated}),
	)
}

func (s *Service) notifySelected(ctx context.Context, apps []*Application) {
	for _, a := range apps {
		s.notify.Send(ctx, a.ReviewerID, notification.KindApplicationSelected, map[string]any{
			"application_id": a.ID,
			"campaign_id":    a.CampaignID,
			"platform":       a.Platform,
		})
	}
}

func (s *Service) Reject(ctx context.Context, actor access.Actor, id, reason string) (*Application, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	app, fired, err := s.move(ctx, s.db, id, StatusRejected, false, func(now time.Time) map[string]any {
		return map[string]any{"rejected_at": now, "rejection_reason": strings.TrimSpace(reason)}
	})
	if err != nil {
		return nil, err
	}
	if fired {
		s.notify.Send(ctx, app.ReviewerID, notification.KindApplicationRejected, map[string]any{
			"application_id": app.ID,
			"campaign_id":    app.CampaignID,
		})
	}
	return app, nil
}

// Cancel withdraws an application that has not been settled.
func (s *Service) Cancel(ctx context.Context, actor access.Actor, id string) (*Application, error) {
	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(app.ReviewerID, "application"); err != nil {
		return nil, err
	}

	app, _, err = s.move(ctx, s.db, id, StatusCancelled, true, func(now time.Time) map[string]any {
		return map[string]any{"cancelled_at": now}
	})
	return app, err
}

// ReleaseTx cancels a selected application whose purchase was rejected,
// freeing its recruit seat. Already cancelled applications are left as is.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, id, reason string) (bool, error) {
	_, fired, err := s.move(ctx, tx, id, StatusCancelled, true, func(now time.Time) map[string]any {
		return map[string]any{"cancelled_at": now, "rejection_reason": reason}
	})
	return fired, err
}

// SettleTx marks a selected application settled once its review reward has
// been posted in the same transaction.
func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, id string) (bool, error) {
	_, fired, err := s.move(ctx, tx, id, StatusSettled, true, func(now time.Time) map[string]any {
		return map[string]any{"settled_at": now}
	})
	return fired, err
}

func (s *Service) move(ctx context.Context, db *gorm.DB, id string, to Status, allowSame bool, fields func(time.Time) map[string]any) (*Application, bool, error) {
	cur, err := s.GetTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if allowSame && cur.Status == to {
		return cur, false, nil
	}
	if err := Machine.Check(cur.Status, to); err != nil {
		return nil, false, err
	}

	ok, err := repository.Transition[Application](ctx, db, id, cur.Status, to, fields(time.Now()))
	if err != nil {
		zap.L().Error("failed to update application status", zap.String("application_id", id), zap.Error(err))
		return nil, false, err
	}
	updated, err := s.GetTx(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if allowSame && updated.Status == to {
			return updated, false, nil
		}
		return nil, false, errutil.ConflictRetry(
			fmt.Sprintf("application moved from %s to %s concurrently", cur.Status, updated.Status))
	}
	return updated, true, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Application, error) {
	return s.GetTx(ctx, s.db, id)
}

func (s *Service) GetTx(ctx context.Context, db *gorm.DB, id string) (*Application, error) {
	app, err := s.application.WithTrx(db).FindOne(ctx, &Application{ID: id})
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, errutil.NotFound(fmt.Sprintf("application %s not found", id), nil)
	}
	return app, nil
}

// Authorize allows the applicant, the campaign's client and operators.
func (s *Service) Authorize(ctx context.Context, actor access.Actor, app *Application) error {
	if actor.Owns(app.ReviewerID) {
		return nil
	}
	c, err := s.campaigns.Get(ctx, app.CampaignID)
	if err != nil {
		return err
	}
	return actor.RequireOwner(c.ClientID, "application")
}

func (s *Service) ListByCampaign(ctx context.Context, campaignID string, status Status, page pagination.Pagination) ([]*Application, pagination.PageInfo, error) {
	return s.list(ctx, ListFilter{CampaignID: campaignID, Status: status}, page)
}

func (s *Service) ListByReviewer(ctx context.Context, reviewerID string, page pagination.Pagination) ([]*Application, pagination.PageInfo, error) {
	return s.list(ctx, ListFilter{ReviewerID: reviewerID}, page)
}

func (s *Service) list(ctx context.Context, f ListFilter, page pagination.Pagination) ([]*Application, pagination.PageInfo, error) {
	items, err := s.application.Find(ctx, &Application{
		CampaignID: f.CampaignID,
		ReviewerID: f.ReviewerID,
		Status:     f.Status,
		Platform:   f.Platform,
	}, option.ApplyPagination(page))
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	out, info := pagination.Page(items, page.Limit, func(a *Application) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return out, info, nil
}

// SelectedInCampaign lists selected applications of the campaign, used by the
// scanner for review reminders.
func (s *Service) SelectedInCampaign(ctx context.Context, campaignID string) ([]*Application, error) {
	return s.application.Find(ctx, &Application{CampaignID: campaignID, Status: StatusSelected})
}
