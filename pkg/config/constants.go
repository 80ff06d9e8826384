package config

// EnvPrefix is the envconfig prefix shared by every variable.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags (tests, error
// messages).
const (
	EnvAppEnv   = "CARPOOL_APP_ENV"
	EnvPort     = "CARPOOL_APP_PORT"
	EnvDBDSN    = "CARPOOL_DB_DSN"
	EnvDBHost   = "CARPOOL_DB_HOST"
	EnvDBUser   = "CARPOOL_DB_USER"
	EnvDBName   = "CARPOOL_DB_NAME"
	EnvRedisURL = "CARPOOL_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
