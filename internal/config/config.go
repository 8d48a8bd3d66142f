package config // package config loads application configuration from environment variables

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Required variables are enforced by must() and
// optional ones fall back to the defaults below.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTAccessSecret  string // signs access tokens
	JWTRefreshSecret string // signs refresh tokens; must differ from the access secret
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	BcryptCost       int    // bcrypt cost for password hashing

	Steam   SteamConfig
	Catalog CatalogConfig
	SMTP    SMTPConfig
	Log     LogConfig

	RabbitURL         string        // AMQP url; empty disables the async queues
	HTTPClientTimeout time.Duration // timeout for every outbound HTTP call
	ShutdownTimeout   time.Duration // grace period for in-flight requests
}

// SteamConfig configures the Steam Web API and OpenID login.
type SteamConfig struct {
	APIKey    string // STEAM_API_KEY; empty disables profile and library calls
	RealmURL  string // openid.realm sent with the login redirect
	ReturnURL string // openid.return_to sent with the login redirect
	APIBase   string // Web API base url
	OpenIDURL string // OpenID 2.0 endpoint
}

// CatalogConfig configures the RAWG client and the catalog bootstrap.
type CatalogConfig struct {
	APIKey             string
	BaseURL            string
	BootstrapOnStart   bool
	BootstrapThreshold int           // bootstrap runs when the catalog has fewer rows
	BootstrapTarget    int           // stop once the catalog holds this many rows
	PageSize           int           // provider page size during bootstrap
	MaxPagesPerTier    int           // page cap for each metacritic band
	PageDelay          time.Duration // pause between provider pages
	SearchPages        int           // remote pages consulted to supplement a search
	SearchPageSize     int
}

// SMTPConfig configures outgoing verification mail. When Host is empty
// mail is written to OutboxPath instead.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	OutboxPath string
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
}

// Load reads an optional .env file and then the environment and returns a
// Config. Missing required variables terminate the process.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}
	return Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: must("DB_NAME"),

		JWTAccessSecret:  must("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: must("JWT_REFRESH_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 60),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 30),
		BcryptCost:       envInt("BCRYPT_COST", 10),

		Steam: SteamConfig{
			APIKey:    os.Getenv("STEAM_API_KEY"),
			RealmURL:  envStr("STEAM_REALM_URL", "http://localhost:8080"),
			ReturnURL: envStr("STEAM_RETURN_URL", "http://localhost:8080/v1/auth/steam/return"),
			APIBase:   envStr("STEAM_API_BASE_URL", "https://api.steampowered.com"),
			OpenIDURL: envStr("STEAM_OPENID_URL", "https://steamcommunity.com/openid/login"),
		},
		Catalog: CatalogConfig{
			APIKey:             os.Getenv("RAWG_API_KEY"),
			BaseURL:            envStr("RAWG_BASE_URL", "https://api.rawg.io/api"),
			BootstrapOnStart:   envBool("CATALOG_BOOTSTRAP_ON_START", true),
			BootstrapThreshold: envInt("CATALOG_BOOTSTRAP_THRESHOLD", 20),
			BootstrapTarget:    envInt("CATALOG_BOOTSTRAP_TARGET", 200),
			PageSize:           envInt("CATALOG_PAGE_SIZE", 40),
			MaxPagesPerTier:    envInt("CATALOG_MAX_PAGES_PER_TIER", 5),
			PageDelay:          envDur("CATALOG_PAGE_DELAY", time.Second),
			SearchPages:        envInt("CATALOG_SEARCH_PAGES", 2),
			SearchPageSize:     envInt("CATALOG_SEARCH_PAGE_SIZE", 20),
		},
		SMTP: SMTPConfig{
			Host:       os.Getenv("SMTP_HOST"),
			Port:       envInt("SMTP_PORT", 587),
			Username:   os.Getenv("SMTP_USERNAME"),
			Password:   os.Getenv("SMTP_PASSWORD"),
			From:       envStr("SMTP_FROM", "no-reply@game-tracker.local"),
			OutboxPath: envStr("MAIL_OUTBOX_PATH", "logs/mail.log"),
		},
		Log: LogConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
		},

		RabbitURL:         os.Getenv("RABBITMQ_URL"),
		HTTPClientTimeout: envDur("HTTP_CLIENT_TIMEOUT", 10*time.Second),
		ShutdownTimeout:   envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// IsDev reports whether the process runs in the development environment.
func (c Config) IsDev() bool { return c.Env == "dev" }

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}
