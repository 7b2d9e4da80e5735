package verification

import "go.uber.org/fx"

var Module = fx.Module("verification.service",
	fx.Provide(NewService),
)

func Models() []any {
	return []any{&PurchaseVerification{}}
}
