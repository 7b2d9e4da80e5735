package evidence

import (
	"fmt"

	"reviewcamp/pkg/config"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("evidence.store",
	fx.Provide(provideStore),
)

type storeParams struct {
	fx.In

	Config *config.Config
	Client *minio.Client `optional:"true"`
}

func provideStore(p storeParams) Store {
	if p.Client == nil {
		zap.L().Warn("evidence store running in memory")
		return NewMemoryStore()
	}
	base := p.Config.Minio.PublicURL
	if base == "" {
		scheme := "http"
		if p.Config.Minio.Secure {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, p.Config.Minio.Endpoint)
	}
	return NewMinioStore(p.Client, p.Config.Minio.BucketName, base)
}
