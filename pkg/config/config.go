package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Store         StoreConfig
	Reset         ResetConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Media         MediaConfig
	PubSub        PubSubConfig
	MQTT          MQTTConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = "sqlite"
		if cfg.DB.SQLitePath == "" {
			cfg.DB.SQLitePath = DefaultSQLitePath
		}
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NURSECALL_APP_ENV" required:"true"`
	Port         string `envconfig:"NURSECALL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NURSECALL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NURSECALL_LOG_WARN_STACK" default:"false"`
	Locale       string `envconfig:"NURSECALL_APP_LOCALE" default:"fr"`
	CORSOrigins  string `envconfig:"NURSECALL_CORS_ORIGINS" default:"*"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// AllowedOrigins splits the comma separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(a.CORSOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"NURSECALL_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"NURSECALL_DB_DSN"`
	Driver     string `envconfig:"NURSECALL_DB_DRIVER" default:"postgres"`
	SQLitePath string `envconfig:"NURSECALL_SQLITE_PATH"`

	LegacyHost     string `envconfig:"NURSECALL_DB_HOST"`
	LegacyPort     int    `envconfig:"NURSECALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NURSECALL_DB_USER"`
	LegacyPassword string `envconfig:"NURSECALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"NURSECALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"NURSECALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NURSECALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NURSECALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NURSECALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NURSECALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"NURSECALL_DB_SLOW_QUERY" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NURSECALL_REDIS_URL"`
	Address      string        `envconfig:"NURSECALL_REDIS_ADDR"`
	Password     string        `envconfig:"NURSECALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"NURSECALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NURSECALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NURSECALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NURSECALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NURSECALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NURSECALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"NURSECALL_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"NURSECALL_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"NURSECALL_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"NURSECALL_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"NURSECALL_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"NURSECALL_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"NURSECALL_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"NURSECALL_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"NURSECALL_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"NURSECALL_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"NURSECALL_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"NURSECALL_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"NURSECALL_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"NURSECALL_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"NURSECALL_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite       bool `envconfig:"NURSECALL_USE_SQLITE" default:"false"`
	AutoMigrate     bool `envconfig:"NURSECALL_AUTO_MIGRATE" default:"false"`
	RedisNotify     bool `envconfig:"NURSECALL_REDIS_NOTIFY" default:"true"`
	PublishAlerts   bool `envconfig:"NURSECALL_PUBLISH_ALERTS" default:"false"`
	CallButtonsMQTT bool `envconfig:"NURSECALL_CALL_BUTTONS_MQTT" default:"false"`
}

// StoreConfig tunes the document store and its live feeds.
type StoreConfig struct {
	NotifyChannel     string        `envconfig:"NURSECALL_STORE_NOTIFY_CHANNEL" default:"docstore"`
	AlertHistoryLimit int           `envconfig:"NURSECALL_ALERT_HISTORY_LIMIT" default:"100"`
	StreamHeartbeat   time.Duration `envconfig:"NURSECALL_STREAM_HEARTBEAT" default:"25s"`
}

// ResetConfig drives password reset and recent-login checks.
type ResetConfig struct {
	Cooldown          time.Duration `envconfig:"NURSECALL_RESET_COOLDOWN" default:"30s"`
	TokenTTL          time.Duration `envconfig:"NURSECALL_RESET_TOKEN_TTL" default:"1h"`
	RecentLoginWindow time.Duration `envconfig:"NURSECALL_RECENT_LOGIN_WINDOW" default:"5m"`
	ContinueURL       string        `envconfig:"NURSECALL_RESET_CONTINUE_URL" default:"http://localhost:8080/reset-password"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NURSECALL_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NURSECALL_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NURSECALL_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"NURSECALL_GCS_BUCKET_NAME"`
}

type MediaConfig struct {
	Backend       string `envconfig:"NURSECALL_MEDIA_BACKEND" default:"local"`
	LocalPath     string `envconfig:"NURSECALL_MEDIA_LOCAL_PATH" default:"./data/media"`
	PublicBaseURL string `envconfig:"NURSECALL_MEDIA_PUBLIC_BASE_URL" default:"/media"`
	MaxUploadMB   int    `envconfig:"NURSECALL_MAX_UPLOAD_MB" default:"10"`
}

// MaxUploadBytes converts the configured upload limit to bytes.
func (m MediaConfig) MaxUploadBytes() int64 {
	if m.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(m.MaxUploadMB) << 20
}

type PubSubConfig struct {
	AlertsTopic string `envconfig:"NURSECALL_PUBSUB_ALERTS_TOPIC" default:"nursecall-alert-events"`
	MailTopic   string `envconfig:"NURSECALL_PUBSUB_MAIL_TOPIC" default:"nursecall-mail"`
}

type MQTTConfig struct {
	BrokerURL string `envconfig:"NURSECALL_MQTT_BROKER_URL" default:"tcp://localhost:1883"`
	ClientID  string `envconfig:"NURSECALL_MQTT_CLIENT_ID" default:"nursecall-callbuttons"`
	Username  string `envconfig:"NURSECALL_MQTT_USERNAME"`
	Password  string `envconfig:"NURSECALL_MQTT_PASSWORD"`
	Topic     string `envconfig:"NURSECALL_MQTT_TOPIC" default:"nursecall/buttons/+/press"`
	QoS       byte   `envconfig:"NURSECALL_MQTT_QOS" default:"1"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
