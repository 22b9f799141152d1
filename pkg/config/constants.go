package config

const (
	EnvPrefix = "NURSECALL"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultSQLitePath = "nursecall.db"

	EnvAppEnv    = "NURSECALL_APP_ENV"
	EnvPort      = "NURSECALL_APP_PORT"
	EnvUseSQLite = "NURSECALL_USE_SQLITE"
	EnvCORS      = "NURSECALL_CORS_ORIGINS"

	EnvDBDSN  = "NURSECALL_DB_DSN"
	EnvDBHost = "NURSECALL_DB_HOST"
	EnvDBUser = "NURSECALL_DB_USER"
	EnvDBName = "NURSECALL_DB_NAME"

	EnvRedisURL = "NURSECALL_REDIS_URL"

	EnvJWTSecret              = "NURSECALL_JWT_SECRET"
	EnvJWTIssuer              = "NURSECALL_JWT_ISSUER"
	EnvJWTExpMins             = "NURSECALL_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "NURSECALL_REFRESH_TOKEN_TTL_MINUTES"

	EnvResetCooldown     = "NURSECALL_RESET_COOLDOWN"
	EnvAlertHistoryLimit = "NURSECALL_ALERT_HISTORY_LIMIT"
	EnvMQTTTopic         = "NURSECALL_MQTT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
