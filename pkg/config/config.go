package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	NodeID     int64  `mapstructure:"NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Kafka struct {
		Addrs             string `mapstructure:"ADDR"`
		NotificationTopic string `mapstructure:"NOTIFICATION_TOPIC"`
	} `mapstructure:"KAFKA"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	SecretAES string `mapstructure:"SECRET_AES"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
		PublicURL  string `mapstructure:"PUBLIC_URL"`
	} `mapstructure:"MINIO"`
	Consul struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"CONSUL"`
	Billing      Billing      `mapstructure:"BILLING"`
	Withdrawal   Withdrawal   `mapstructure:"WITHDRAWAL"`
	Payment      Payment      `mapstructure:"PAYMENT"`
	ContentCheck ContentCheck `mapstructure:"CONTENT_CHECK"`
	Scheduler    Scheduler    `mapstructure:"SCHEDULER"`
}

// Billing rates are basis points (1/10000).
type Billing struct {
	FlatFeePerPerson int64 `mapstructure:"FLAT_FEE_PER_PERSON"`
	CardSurchargeBps int64 `mapstructure:"CARD_SURCHARGE_BPS"`
	VATBps           int64 `mapstructure:"VAT_BPS"`
}

type Withdrawal struct {
	MinAmount int64 `mapstructure:"MIN_AMOUNT"`
	FeeFlat   int64 `mapstructure:"FEE_FLAT"`
	FeeBps    int64 `mapstructure:"FEE_BPS"`
}

type Payment struct {
	VirtualAccountBank   string        `mapstructure:"VA_BANK"`
	VirtualAccountHolder string        `mapstructure:"VA_HOLDER"`
	VirtualAccountPrefix string        `mapstructure:"VA_PREFIX"`
	VirtualAccountTTL    time.Duration `mapstructure:"VA_TTL"`
	CallbackSecret       string        `mapstructure:"CALLBACK_SECRET"`
}

type ContentCheck struct {
	Expression string `mapstructure:"EXPRESSION"`
	Flag       string `mapstructure:"FLAG"`
}

type Scheduler struct {
	Interval       time.Duration `mapstructure:"INTERVAL"`
	ReminderWindow time.Duration `mapstructure:"REMINDER_WINDOW"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "reviewcamp")
	v.SetDefault("NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("GRPC_SERVER.ADDR", ":9090")
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("KAFKA.NOTIFICATION_TOPIC", "reviewcamp.notifications")
	v.SetDefault("MINIO.BUCKET_NAME", "evidence")

	v.SetDefault("BILLING.FLAT_FEE_PER_PERSON", 3000)
	v.SetDefault("BILLING.CARD_SURCHARGE_BPS", 230)
	v.SetDefault("BILLING.VAT_BPS", 1000)

	v.SetDefault("WITHDRAWAL.MIN_AMOUNT", 10000)
	v.SetDefault("WITHDRAWAL.FEE_FLAT", 500)
	v.SetDefault("WITHDRAWAL.FEE_BPS", 0)

	v.SetDefault("PAYMENT.VA_BANK", "KB")
	v.SetDefault("PAYMENT.VA_HOLDER", "reviewcamp")
	v.SetDefault("PAYMENT.VA_PREFIX", "9001")
	v.SetDefault("PAYMENT.VA_TTL", 72*time.Hour)

	v.SetDefault("CONTENT_CHECK.EXPRESSION", DefaultContentCheckExpression)
	v.SetDefault("CONTENT_CHECK.FLAG", "review_content_check")

	v.SetDefault("SCHEDULER.INTERVAL", time.Minute)
	v.SetDefault("SCHEDULER.REMINDER_WINDOW", 24*time.Hour)
}

// DefaultContentCheckExpression passes a submission whose link points at the
// marketplace it was written for and which carries at least one evidence file.
const DefaultContentCheckExpression = `review_url.startsWith("https://") &&
evidence_count >= 1 &&
(platform == "naver" ? review_url.contains("naver.") : review_url.contains("coupang."))`

func LoadConfig(p Params) *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config.yaml not found, using defaults and environment")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
			zap.L().Error("failed get secret from vault", zap.Error(err))
			os.Exit(1)
		}
	}

	return &cfg
}

// Current returns the latest remote config snapshot, or nil when the
// process was started with LoadConfig.
func Current() *Config {
	if cfg, ok := configHolder.Load().(*Config); ok {
		return cfg
	}
	return nil
}

func LoadRemote(p Params) *Config {
	if p.Vault == nil {
		zap.L().Error("vault can't provide")
		os.Exit(1)
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	setDefaults(config)
	config.SetConfigType(configType)
	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote provider", zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if err := applySecrets(context.Background(), p.Vault, &cfg); err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5)

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			var newcfg Config
			if err := config.Unmarshal(&newcfg); err != nil {
				zap.L().Error("unable to unmarshal remote config", zap.Error(err))
				continue
			}
			// secrets are not part of the remote document
			newcfg.Database.User = cfg.Database.User
			newcfg.Database.Password = cfg.Database.Password
			newcfg.Redis.Password = cfg.Redis.Password
			newcfg.SecretAES = cfg.SecretAES
			newcfg.Flagsmith.ApiKey = cfg.Flagsmith.ApiKey
			newcfg.Payment.CallbackSecret = cfg.Payment.CallbackSecret
			configHolder.Store(&newcfg)
		}
	}()

	return &cfg
}

func applySecrets(ctx context.Context, client *vault.Client, cfg *Config) error {
	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		return err
	}
	zap.L().Info("Success Get Secret")

	get := func(key string) string {
		if val, ok := secret.Data.Data[key].(string); ok {
			return val
		}
		return ""
	}

	cfg.Database.User = get("postgres_user")
	cfg.Database.Password = get("postgres_password")
	cfg.Redis.Password = get("redis_password")
	cfg.SecretAES = get("secret_aes")
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key")
	cfg.Payment.CallbackSecret = get("payment_callback_secret")
	return nil
}
