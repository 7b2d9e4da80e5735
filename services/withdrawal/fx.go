package withdrawal

import (
	"reviewcamp/pkg/config"
	"reviewcamp/pkg/secure"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("withdrawal.service",
	fx.Provide(provideCipher, NewService),
)

func Models() []any {
	return []any{&WithdrawalRequest{}}
}

const cipherPurpose = "withdrawal.account_number"

// provideCipher refuses to start production without SECRET_AES.
func provideCipher(cfg *config.Config) (*secure.Cipher, error) {
	secret := cfg.SecretAES
	if secret == "" && cfg.AppEnv != "production" {
		zap.L().Warn("SECRET_AES not set, using a development key for account numbers")
		secret = cfg.AppName + "-development"
	}
	return secure.NewCipher(secret, cipherPurpose)
}
