package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reviewcamp/pkg/db/pagination"
	"reviewcamp/pkg/errutil"
	"reviewcamp/services/application"
	"reviewcamp/services/campaign"
	"reviewcamp/services/contentcheck"
	"reviewcamp/services/evidence"
	"reviewcamp/services/internal/scenario"
	"reviewcamp/services/ledger"
	"reviewcamp/services/verification"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var screenshot = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR review")

type checkerFunc func(ctx context.Context, s contentcheck.Submission) (contentcheck.Verdict, error)

func (f checkerFunc) Check(ctx context.Context, s contentcheck.Submission) (contentcheck.Verdict, error) {
	return f(ctx, s)
}

type fixture struct {
	*scenario.World
	svc           *Service
	ledger        *ledger.Service
	verifications *verification.Service
}

func newFixture(t *testing.T, checker contentcheck.Checker) *fixture {
	t.Helper()
	models := append(append(Models(), verification.Models()...), ledger.Models()...)
	w := scenario.New(t, nil, models...)
	store := evidence.NewMemoryStore()

	led := ledger.NewService(ledger.ServiceParams{DB: w.DB, Node: w.Node})
	verifications := verification.NewService(verification.ServiceParams{
		DB:           w.DB,
		Node:         w.Node,
		Applications: w.Applications,
		Evidence:     store,
		Dispatch:     w.Dispatch,
	})
	return &fixture{
		World:         w,
		ledger:        led,
		verifications: verifications,
		svc: NewService(ServiceParams{
			DB:            w.DB,
			Node:          w.Node,
			Campaigns:     w.Campaigns,
			Applications:  w.Applications,
			Verifications: verifications,
			Ledger:        led,
			Evidence:      store,
			Checker:       checker,
			Dispatch:      w.Dispatch,
		}),
	}
}

// verified returns a selected application whose purchase was approved.
func (f *fixture) verified(t *testing.T, c *campaign.Campaign, reviewerID string, p campaign.Platform) *application.Application {
	t.Helper()
	ctx := context.Background()

	app := f.Selected(t, c, reviewerID, p)
	v, err := f.verifications.Submit(ctx, scenario.Reviewer(reviewerID), app.ID, verification.SubmitInput{
		OrderNumber: "ORD-" + reviewerID,
		URLs:        []string{"https://cdn.example.com/receipt.png"},
	})
	require.NoError(t, err)
	_, err = f.verifications.Approve(ctx, scenario.Admin, v.ID)
	require.NoError(t, err)
	return app
}

func naverReview() SubmitInput {
	return SubmitInput{
		ReviewURL: "https://blog.naver.com/rv/100",
		Files:     []evidence.File{{Name: "shot.png", Data: screenshot}},
	}
}

func TestSubmitRequiresApprovedVerification(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.Selected(t, c, "rv-1", campaign.PlatformNaver)

	_, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.ErrorIs(t, err, errutil.ErrVerificationRequired)

	v, err := f.verifications.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, verification.SubmitInput{
		OrderNumber: "ORD-1",
		URLs:        []string{"https://cdn.example.com/receipt.png"},
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.ErrorIs(t, err, errutil.ErrVerificationRequired)

	_, err = f.verifications.Approve(ctx, scenario.Admin, v.ID)
	require.NoError(t, err)

	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)
	require.Equal(t, 1, sub.SubmissionCount)
	require.Len(t, sub.EvidenceURLs, 1)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	_, err := f.svc.Submit(ctx, scenario.Reviewer("rv-2"), app.ID, naverReview())
	require.ErrorIs(t, err, errutil.ErrForbidden)

	_, err = f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, SubmitInput{ReviewURL: "not a url"})
	require.ErrorIs(t, err, errutil.ErrValidation)

	_, err = f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)
}

func TestContentCheckVerdicts(t *testing.T) {
	checker, err := contentcheck.NewCELChecker(`review_url.contains("naver.") && evidence_count >= 1`, nil, "")
	require.NoError(t, err)

	f := newFixture(t, checker)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))

	passing := f.verified(t, c, "rv-1", campaign.PlatformNaver)
	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), passing.ID, naverReview())
	require.NoError(t, err)
	require.Equal(t, StatusAIPassed, sub.Status)
	require.NotNil(t, sub.CheckedAt)

	failing := f.verified(t, c, "rv-2", campaign.PlatformNaver)
	sub, err = f.svc.Submit(ctx, scenario.Reviewer("rv-2"), failing.ID, SubmitInput{ReviewURL: "https://example.com/post"})
	require.NoError(t, err)
	require.Equal(t, StatusNeedsReview, sub.Status)
}

func TestContentCheckFailureFallsBackToNeedsReview(t *testing.T) {
	broken := checkerFunc(func(context.Context, contentcheck.Submission) (contentcheck.Verdict, error) {
		return "", errors.New("model unavailable")
	})
	f := newFixture(t, broken)
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	sub, err := f.svc.Submit(context.Background(), scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)
	require.Equal(t, StatusNeedsReview, sub.Status)
}

func TestContentCheckSkippedKeepsPending(t *testing.T) {
	skip := checkerFunc(func(context.Context, contentcheck.Submission) (contentcheck.Verdict, error) {
		return contentcheck.VerdictSkipped, nil
	})
	f := newFixture(t, skip)
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	sub, err := f.svc.Submit(context.Background(), scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)
	require.Equal(t, StatusPending, sub.Status)
}

func TestApproveCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, scenario.Admin, sub.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	// naver fee 3000 plus the 500 bonus
	require.EqualValues(t, 3500, approved.RewardPoint)
	require.NotEmpty(t, approved.PointTransactionID)

	again, err := f.svc.Approve(ctx, scenario.Admin, sub.ID)
	require.NoError(t, err)
	require.Equal(t, approved.PointTransactionID, again.PointTransactionID)

	bal, err := f.ledger.GetBalance(ctx, "rv-1")
	require.NoError(t, err)
	require.EqualValues(t, 3500, bal.Balance)

	settled, err := f.Applications.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Equal(t, application.StatusSettled, settled.Status)
}

func TestConcurrentApproveCreditsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	in := scenario.Input(time.Now().UTC())
	in.PaybackProductPrice = true
	c := f.RecruitingCampaign(t, in)
	app := f.verified(t, c, "rv-1", campaign.PlatformCoupang)

	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, SubmitInput{ReviewURL: "https://www.coupang.com/vp/1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.Approve(ctx, scenario.Admin, sub.ID)
		}()
	}
	wg.Wait()

	entries, _, err := f.ledger.ListTransactions(ctx, "rv-1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// coupang fee 2000, product payback 15000, bonus 500
	require.EqualValues(t, 17500, entries[0].Amount)

	report, err := f.ledger.Audit(ctx, "rv-1")
	require.NoError(t, err)
	require.True(t, report.Consistent)
}

func TestRevisionLoopReusesRecord(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)

	_, err = f.svc.RequestRevision(ctx, scenario.Admin, sub.ID, " ")
	require.ErrorIs(t, err, errutil.ErrValidation)

	revision, err := f.svc.RequestRevision(ctx, scenario.Admin, sub.ID, "add a photo of the product in use")
	require.NoError(t, err)
	require.Equal(t, StatusRevisionRequested, revision.Status)

	_, err = f.svc.Approve(ctx, scenario.Admin, sub.ID)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	resubmitted, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, SubmitInput{
		ReviewURL: "https://blog.naver.com/rv/101",
		URLs:      []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
	})
	require.NoError(t, err)
	require.Equal(t, sub.ID, resubmitted.ID)
	require.Equal(t, StatusPending, resubmitted.Status)
	require.Equal(t, 2, resubmitted.SubmissionCount)
	require.Equal(t, "https://blog.naver.com/rv/101", resubmitted.ReviewURL)
	require.Len(t, resubmitted.EvidenceURLs, 2)

	var count int64
	require.NoError(t, f.DB.Model(&ReviewSubmission{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRejectIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))
	app := f.verified(t, c, "rv-1", campaign.PlatformNaver)

	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), app.ID, naverReview())
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, scenario.Reviewer("rv-1"), sub.ID, "spam")
	require.ErrorIs(t, err, errutil.ErrForbidden)

	rejected, err := f.svc.Reject(ctx, scenario.Admin, sub.ID, "copied content")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	_, err = f.svc.Approve(ctx, scenario.Admin, sub.ID)
	require.ErrorIs(t, err, errutil.ErrInvalidTransition)

	bal, err := f.ledger.GetBalance(ctx, "rv-1")
	require.NoError(t, err)
	require.Zero(t, bal.Balance)
}

func TestPendingReminders(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c := f.RecruitingCampaign(t, scenario.Input(time.Now().UTC()))

	done := f.verified(t, c, "rv-1", campaign.PlatformNaver)
	owing := f.verified(t, c, "rv-2", campaign.PlatformNaver)
	revising := f.verified(t, c, "rv-3", campaign.PlatformCoupang)

	_, err := f.svc.Submit(ctx, scenario.Reviewer("rv-1"), done.ID, naverReview())
	require.NoError(t, err)
	sub, err := f.svc.Submit(ctx, scenario.Reviewer("rv-3"), revising.ID, SubmitInput{ReviewURL: "https://www.coupang.com/vp/3"})
	require.NoError(t, err)
	_, err = f.svc.RequestRevision(ctx, scenario.Admin, sub.ID, "too short")
	require.NoError(t, err)

	owed, err := f.svc.PendingReminders(ctx, c.ID)
	require.NoError(t, err)

	var ids []string
	for _, a := range owed {
		ids = append(ids, a.ID)
	}
	require.ElementsMatch(t, []string{owing.ID, revising.ID}, ids)
}
