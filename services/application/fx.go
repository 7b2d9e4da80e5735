package application

import "go.uber.org/fx"

var Module = fx.Module("application.service",
	fx.Provide(NewService),
)

func Models() []any {
	return []any{&Application{}}
}
