package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Escrow       EscrowConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"EVENTPRIZE_APP_ENV" required:"true"`
	Port         string   `envconfig:"EVENTPRIZE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"EVENTPRIZE_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"EVENTPRIZE_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"EVENTPRIZE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"EVENTPRIZE_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, AppEnvProduction)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTPRIZE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTPRIZE_DB_DSN"`
	Driver string `envconfig:"EVENTPRIZE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTPRIZE_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTPRIZE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTPRIZE_DB_USER"`
	LegacyPassword string `envconfig:"EVENTPRIZE_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTPRIZE_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTPRIZE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTPRIZE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTPRIZE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTPRIZE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTPRIZE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn. Zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"EVENTPRIZE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// UsesSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) UsesSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTPRIZE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTPRIZE_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTPRIZE_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTPRIZE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTPRIZE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTPRIZE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTPRIZE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTPRIZE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTPRIZE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"EVENTPRIZE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTPRIZE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTPRIZE_JWT_EXPIRATION_MINUTES" required:"true"`
	// Audience is checked only when set.
	Audience string        `envconfig:"EVENTPRIZE_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"EVENTPRIZE_JWT_LEEWAY" default:"30s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"EVENTPRIZE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"EVENTPRIZE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTPRIZE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"EVENTPRIZE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVENTPRIZE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EscrowTopic string `envconfig:"EVENTPRIZE_PUBSUB_ESCROW_TOPIC" default:"escrow-events"`
	AuditTopic  string `envconfig:"EVENTPRIZE_PUBSUB_AUDIT_TOPIC" default:"escrow-audit"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVENTPRIZE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVENTPRIZE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVENTPRIZE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"EVENTPRIZE_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"EVENTPRIZE_CRON_LOCK_TTL" default:"10m"`
	OutboxRetention time.Duration `envconfig:"EVENTPRIZE_CRON_OUTBOX_RETENTION" default:"720h"`
	// OutboxRetentionBatch caps rows deleted per transaction.
	OutboxRetentionBatch int `envconfig:"EVENTPRIZE_CRON_OUTBOX_RETENTION_BATCH" default:"1000"`
}

type EscrowConfig struct {
	EarlySelectionWarning bool          `envconfig:"EVENTPRIZE_ESCROW_EARLY_SELECTION_WARNING" default:"true"`
	WriteRateLimit        int           `envconfig:"EVENTPRIZE_ESCROW_WRITE_RATE_LIMIT" default:"30"`
	WriteRateWindow       time.Duration `envconfig:"EVENTPRIZE_ESCROW_WRITE_RATE_WINDOW" default:"1m"`
	WalletHistoryLimit    int           `envconfig:"EVENTPRIZE_ESCROW_WALLET_HISTORY_LIMIT" default:"20"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.UsesSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
