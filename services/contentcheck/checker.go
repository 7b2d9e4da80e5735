package contentcheck

import (
	"context"
	"fmt"

	"reviewcamp/pkg/celengine"
	"reviewcamp/pkg/featureflags"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

type Verdict string

const (
	VerdictPassed      Verdict = "ai_passed"
	VerdictNeedsReview Verdict = "needs_review"
	// VerdictSkipped means the check is switched off and the submission
	// waits for an operator as submitted.
	VerdictSkipped Verdict = ""
)

type Submission struct {
	ReviewURL       string
	Platform        string
	EvidenceCount   int
	SubmissionCount int
}

func (s Submission) attributes() map[string]any {
	return map[string]any{
		"review_url":       s.ReviewURL,
		"platform":         s.Platform,
		"evidence_count":   int64(s.EvidenceCount),
		"submission_count": int64(s.SubmissionCount),
	}
}

// Checker is advisory. An error is read by callers as needs_review.
type Checker interface {
	Check(ctx context.Context, s Submission) (Verdict, error)
}

var variables = map[string]*cel.Type{
	"review_url":       cel.StringType,
	"platform":         cel.StringType,
	"evidence_count":   cel.IntType,
	"submission_count": cel.IntType,
}

type CELChecker struct {
	engine *celengine.Engine
	expr   string
	flags  featureflags.FeatureFlag
	flag   string
}

// NewCELChecker compiles expr up front so a bad expression fails at startup.
func NewCELChecker(expr string, flags featureflags.FeatureFlag, flag string) (*CELChecker, error) {
	engine, err := celengine.NewEngine(variables)
	if err != nil {
		return nil, err
	}
	if err := engine.Validate(expr); err != nil {
		return nil, fmt.Errorf("invalid content check expression: %w", err)
	}
	if flags == nil {
		flags = featureflags.Static(true)
	}
	return &CELChecker{engine: engine, expr: expr, flags: flags, flag: flag}, nil
}

func (c *CELChecker) Check(ctx context.Context, s Submission) (Verdict, error) {
	if c.flag != "" {
		enabled, err := c.flags.IsEnabled(ctx, "", c.flag)
		if err != nil {
			zap.L().Warn("content check flag lookup failed, skipping check", zap.String("flag", c.flag), zap.Error(err))
			return VerdictSkipped, nil
		}
		if !enabled {
			return VerdictSkipped, nil
		}
	}

	passed, err := c.engine.Evaluate(c.expr, s.attributes())
	if err != nil {
		return VerdictNeedsReview, err
	}
	if passed {
		return VerdictPassed, nil
	}
	return VerdictNeedsReview, nil
}
