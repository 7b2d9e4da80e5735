package contentcheck

import (
	"context"
	"errors"
	"testing"

	"reviewcamp/pkg/config"
	"reviewcamp/pkg/featureflags"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type flagStub struct {
	enabled bool
	err     error
}

func (f flagStub) IsEnabled(context.Context, string, string) (bool, error) {
	return f.enabled, f.err
}

func TestDefaultExpression(t *testing.T) {
	c, err := NewCELChecker(config.DefaultContentCheckExpression, nil, "")
	require.NoError(t, err)
	ctx := context.Background()

	cases := []struct {
		name string
		in   Submission
		want Verdict
	}{
		{"naver blog", Submission{ReviewURL: "https://blog.naver.com/me/1", Platform: "naver", EvidenceCount: 1}, VerdictPassed},
		{"coupang review", Submission{ReviewURL: "https://www.coupang.com/vp/products/1", Platform: "coupang", EvidenceCount: 2}, VerdictPassed},
		{"wrong marketplace", Submission{ReviewURL: "https://blog.naver.com/me/1", Platform: "coupang", EvidenceCount: 1}, VerdictNeedsReview},
		{"no evidence", Submission{ReviewURL: "https://blog.naver.com/me/1", Platform: "naver"}, VerdictNeedsReview},
		{"plain http", Submission{ReviewURL: "http://blog.naver.com/me/1", Platform: "naver", EvidenceCount: 1}, VerdictNeedsReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Check(ctx, tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestInvalidExpression(t *testing.T) {
	_, err := NewCELChecker(`review_url.size()`, nil, "")
	require.Error(t, err)

	_, err = NewCELChecker(`rating > 3`, nil, "")
	require.Error(t, err)
}

func TestFlagGatesCheck(t *testing.T) {
	ctx := context.Background()
	in := Submission{ReviewURL: "https://blog.naver.com/me/1", Platform: "naver", EvidenceCount: 1}

	off, err := NewCELChecker(config.DefaultContentCheckExpression, featureflags.Static(false), "review_content_check")
	require.NoError(t, err)
	got, err := off.Check(ctx, in)
	require.NoError(t, err)
	require.Equal(t, VerdictSkipped, got)

	broken, err := NewCELChecker(config.DefaultContentCheckExpression, flagStub{err: errors.New("timeout")}, "review_content_check")
	require.NoError(t, err)
	got, err = broken.Check(ctx, in)
	require.NoError(t, err)
	require.Equal(t, VerdictSkipped, got)

	on, err := NewCELChecker(config.DefaultContentCheckExpression, flagStub{enabled: true}, "review_content_check")
	require.NoError(t, err)
	got, err = on.Check(ctx, in)
	require.NoError(t, err)
	require.Equal(t, VerdictPassed, got)
}
