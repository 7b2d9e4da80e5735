package contentcheck

import (
	"reviewcamp/pkg/config"
	"reviewcamp/pkg/featureflags"

	"go.uber.org/fx"
)

var Module = fx.Module("contentcheck",
	fx.Provide(provideChecker),
)

type checkerParams struct {
	fx.In

	Config *config.Config
	Flags  featureflags.FeatureFlag `optional:"true"`
}

func provideChecker(p checkerParams) (Checker, error) {
	expr := p.Config.ContentCheck.Expression
	if expr == "" {
		expr = config.DefaultContentCheckExpression
	}
	return NewCELChecker(expr, p.Flags, p.Config.ContentCheck.Flag)
}
