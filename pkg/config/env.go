package config

const (
	EnvPrefix = "EVENTPRIZE"

	AppEnvDev        = "dev"
	AppEnvProd       = "prod"
	AppEnvProduction = "production"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:eventprize.db?_busy_timeout=5000"

	EnvAppEnv       = "EVENTPRIZE_APP_ENV"
	EnvPort         = "EVENTPRIZE_APP_PORT"
	EnvLogLevel     = "EVENTPRIZE_LOG_LEVEL"
	EnvServiceKind  = "EVENTPRIZE_SERVICE_KIND"
	EnvDBDSN        = "EVENTPRIZE_DB_DSN"
	EnvDBDriver     = "EVENTPRIZE_DB_DRIVER"
	EnvDBHost       = "EVENTPRIZE_DB_HOST"
	EnvDBPort       = "EVENTPRIZE_DB_PORT"
	EnvDBUser       = "EVENTPRIZE_DB_USER"
	EnvDBPassword   = "EVENTPRIZE_DB_PASSWORD"
	EnvDBName       = "EVENTPRIZE_DB_NAME"
	EnvRedisURL     = "EVENTPRIZE_REDIS_URL"
	EnvJWTSecret    = "EVENTPRIZE_JWT_SECRET"
	EnvJWTIssuer    = "EVENTPRIZE_JWT_ISSUER"
	EnvJWTExpMins   = "EVENTPRIZE_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite    = "EVENTPRIZE_USE_SQLITE"
	EnvGCPProjectID = "EVENTPRIZE_GCP_PROJECT_ID"
	EnvEscrowTopic  = "EVENTPRIZE_PUBSUB_ESCROW_TOPIC"
	EnvCronInterval = "EVENTPRIZE_CRON_INTERVAL"
)

// legacyDBEnvVars are the parts needed to assemble a DSN when EVENTPRIZE_DB_DSN is unset.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
