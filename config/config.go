package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Guardian GuardianConfig
	Intel    IntelConfig
	Poller   PollerConfig
	Auth     AuthConfig
	Frontend FrontendConfig
}

// ServerConfig holds the dashboard HTTP server configuration
type ServerConfig struct {
	ListenAddr string
	LogDir     string
	// Optional YAML file with simulation scenarios, seeds the scenario
	// table on first start instead of the built-ins
	ScenarioFile string
}

// DatabaseConfig holds the SQLite database configuration
type DatabaseConfig struct {
	Path string
}

// GuardianConfig holds the connection settings for the SSH Guardian
// core service (detection/blocking engine, simulation injector)
type GuardianConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// IntelConfig holds the threat-intelligence service settings
type IntelConfig struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// Optional local MaxMind database used to fill in country
	// when the remote endpoints return none
	GeoIPPath string
}

// PollerConfig holds the simulation status-polling policy
type PollerConfig struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// AuthConfig holds JWT settings
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// FrontendConfig holds static asset serving settings
type FrontendConfig struct {
	Path string
}

// Load reads configuration from the environment. A .env file is
// loaded first if present (development convenience, like production
// systemd environment files).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			ListenAddr:   getEnv("GUARDIAN_DASH_LISTEN", ":8080"),
			LogDir:       getEnv("GUARDIAN_DASH_LOG_DIR", "./logs"),
			ScenarioFile: getEnv("GUARDIAN_DASH_SCENARIOS", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("GUARDIAN_DASH_DB", "guardian-dashboard.db"),
		},
		Guardian: GuardianConfig{
			BaseURL: getEnv("GUARDIAN_CORE_URL", "http://127.0.0.1:9600"),
			APIKey:  getEnv("GUARDIAN_CORE_API_KEY", ""),
			Timeout: getDuration("GUARDIAN_CORE_TIMEOUT_SEC", 10) * time.Second,
		},
		Intel: IntelConfig{
			BaseURL:   getEnv("THREAT_INTEL_URL", "http://127.0.0.1:9600"),
			Timeout:   getDuration("THREAT_INTEL_TIMEOUT_SEC", 8) * time.Second,
			CacheSize: getInt("THREAT_INTEL_CACHE_SIZE", 512),
			CacheTTL:  getDuration("THREAT_INTEL_CACHE_TTL_SEC", 300) * time.Second,
			GeoIPPath: getEnv("GEOIP_DB_PATH", ""),
		},
		Poller: PollerConfig{
			InitialDelay: getDuration("SIM_POLL_INITIAL_DELAY_SEC", 3) * time.Second,
			Interval:     getDuration("SIM_POLL_INTERVAL_SEC", 2) * time.Second,
			MaxAttempts:  getInt("SIM_POLL_MAX_ATTEMPTS", 60),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("GUARDIAN_DASH_JWT_SECRET", "super-secret-key-change-me"),
			TokenTTL:  getDuration("GUARDIAN_DASH_TOKEN_TTL_HOURS", 24) * time.Hour,
		},
		Frontend: FrontendConfig{
			Path: getEnv("GUARDIAN_DASH_FRONTEND", "./frontend/dist"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback))
}
