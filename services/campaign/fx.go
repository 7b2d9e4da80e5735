package campaign

import "go.uber.org/fx"

var Module = fx.Module("campaign.service",
	fx.Provide(NewService),
)

func Models() []any {
	return []any{&Campaign{}}
}
