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
	DB           DBConfig
	Redis        RedisConfig
	Chat         ChatConfig
	Interactions InteractionsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARPOOL_APP_ENV" required:"true"`
	Port         string `envconfig:"CARPOOL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARPOOL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARPOOL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CARPOOL_DB_DSN"`
	Driver string `envconfig:"CARPOOL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARPOOL_DB_HOST"`
	LegacyPort     int    `envconfig:"CARPOOL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARPOOL_DB_USER"`
	LegacyPassword string `envconfig:"CARPOOL_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARPOOL_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARPOOL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARPOOL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARPOOL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARPOOL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARPOOL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARPOOL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARPOOL_REDIS_ADDR"`
	Password     string        `envconfig:"CARPOOL_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARPOOL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARPOOL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARPOOL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARPOOL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARPOOL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARPOOL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ChatConfig points at the chat platform's web API used for DMs, channel
// announcements, and channel-membership lookups.
type ChatConfig struct {
	BaseURL  string        `envconfig:"CARPOOL_CHAT_BASE_URL"`
	BotToken string        `envconfig:"CARPOOL_CHAT_BOT_TOKEN"`
	Timeout  time.Duration `envconfig:"CARPOOL_CHAT_TIMEOUT" default:"10s"`
}

// Enabled reports whether a real chat client can be constructed; without it
// the service falls back to a log-only dispatcher.
func (c ChatConfig) Enabled() bool {
	return c.BaseURL != "" && c.BotToken != ""
}

type InteractionsConfig struct {
	DedupeTTL time.Duration `envconfig:"CARPOOL_INTERACTIONS_DEDUPE_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARPOOL_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARPOOL_AUTO_MIGRATE" default:"false"`
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
