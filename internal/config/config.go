package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-sniper/internal/executor"
	"github.com/example/resy-sniper/internal/ratelimit"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/scheduler"
	"github.com/example/resy-sniper/internal/secret"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ListenAddr  string
	Store       string
	DBPath      string
	DatabaseURL string

	LogLevel  string
	LogPretty bool
	LogFile   string

	LeadTime       time.Duration
	MaxPoll        time.Duration
	PollInterval   time.Duration
	MatchTolerance time.Duration
	AcquireTimeout time.Duration
	SyncInterval   time.Duration

	ResyAPIKey         string
	ResyAuthToken      string
	OpenTableToken     string
	OpenTableQueryHash string

	// CredEncKey opens platform credentials given in sealed form.
	CredEncKey []byte

	CookieHashKey     []byte
	CookieBlockKey    []byte
	AdminUsername     string
	AdminPasswordHash string

	RedisAddr     string
	RedisPassword string
	RedisChannel  string
	KafkaBrokers  []string
	KafkaTopic    string

	RateLimits   map[string]ratelimit.Budget
	RateFallback ratelimit.Budget
}

func Defaults() Config {
	return Config{
		ListenAddr:     ":8080",
		Store:          StoreSQLite,
		DBPath:         "data/snipes.db",
		LogLevel:       "info",
		LeadTime:       scheduler.DefaultLeadTime,
		MaxPoll:        executor.DefaultMaxPoll,
		PollInterval:   executor.DefaultPollInterval,
		MatchTolerance: reservation.DefaultTolerance,
		AcquireTimeout: executor.DefaultAcquireTimeout,
		SyncInterval:   15 * time.Second,
		AdminUsername:  "admin",
		RedisChannel:   "resy-sniper.snipes",
		KafkaTopic:     "resy-sniper.snipes",
		RateLimits:     ratelimit.DefaultBudgets(),
		RateFallback:   ratelimit.DefaultBudget,
	}
}

// FromEnv builds the config from defaults, then the YAML file named by
// SNIPER_CONFIG if set, then environment variables.
func FromEnv() (Config, error) {
	cfg := Defaults()
	if path := getenv("SNIPER_CONFIG", ""); path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		f.apply(&cfg)
	}

	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.Store = strings.ToLower(getenv("SNIPER_STORE", cfg.Store))
	cfg.DBPath = getenv("SNIPER_DB_PATH", cfg.DBPath)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)
	cfg.ResyAPIKey = getenv("RESY_API_KEY", cfg.ResyAPIKey)
	cfg.ResyAuthToken = getenv("RESY_AUTH_TOKEN", cfg.ResyAuthToken)
	cfg.OpenTableToken = getenv("OPENTABLE_TOKEN", cfg.OpenTableToken)
	cfg.OpenTableQueryHash = getenv("OPENTABLE_PQ_HASH", cfg.OpenTableQueryHash)
	cfg.AdminUsername = getenv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPasswordHash = getenv("ADMIN_PASSWORD_BCRYPT", cfg.AdminPasswordHash)
	cfg.RedisAddr = getenv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisChannel = getenv("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.KafkaTopic = getenv("KAFKA_TOPIC", cfg.KafkaTopic)
	if v := getenv("KAFKA_BROKERS", ""); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}

	if v := getenv("LOG_PRETTY", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = b
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SNIPER_LEAD_TIME", &cfg.LeadTime},
		{"SNIPER_MAX_POLL", &cfg.MaxPoll},
		{"SNIPER_POLL_INTERVAL", &cfg.PollInterval},
		{"SNIPER_MATCH_TOLERANCE", &cfg.MatchTolerance},
		{"SNIPER_ACQUIRE_TIMEOUT", &cfg.AcquireTimeout},
		{"SNIPER_SYNC_INTERVAL", &cfg.SyncInterval},
	}
	for _, d := range durations {
		v := getenv(d.key, "")
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := getenv("COOKIE_HASH_KEY", ""); v != "" {
		b, err := decodeB64(v)
		if err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
		cfg.CookieHashKey = b
	}
	if v := getenv("COOKIE_BLOCK_KEY", ""); v != "" {
		b, err := decodeB64(v)
		if err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
		cfg.CookieBlockKey = b
	}

	if v := getenv("CRED_ENC_KEY", ""); v != "" {
		b, err := decodeB64(v)
		if err != nil {
			return Config{}, fmt.Errorf("CRED_ENC_KEY: %w", err)
		}
		cfg.CredEncKey = b
	}
	if err := cfg.revealCredentials(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// revealCredentials opens any platform credential given in sealed form.
func (c *Config) revealCredentials() error {
	var box *secret.Box
	if len(c.CredEncKey) > 0 {
		b, err := secret.New(c.CredEncKey)
		if err != nil {
			return fmt.Errorf("CRED_ENC_KEY: %w", err)
		}
		box = b
	}
	fields := []struct {
		key string
		dst *string
	}{
		{"RESY_API_KEY", &c.ResyAPIKey},
		{"RESY_AUTH_TOKEN", &c.ResyAuthToken},
		{"OPENTABLE_TOKEN", &c.OpenTableToken},
	}
	for _, f := range fields {
		v, err := secret.Reveal(box, *f.dst)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("SNIPER_DB_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("invalid SNIPER_STORE %q (want sqlite, postgres or memory)", c.Store)
	}
	if c.LeadTime < 0 {
		return fmt.Errorf("SNIPER_LEAD_TIME must not be negative")
	}
	if c.MaxPoll <= 0 || c.PollInterval <= 0 || c.AcquireTimeout <= 0 {
		return fmt.Errorf("SNIPER_MAX_POLL, SNIPER_POLL_INTERVAL and SNIPER_ACQUIRE_TIMEOUT must be positive")
	}
	if c.MatchTolerance < 0 {
		return fmt.Errorf("SNIPER_MATCH_TOLERANCE must not be negative")
	}
	if c.SyncInterval < time.Second {
		return fmt.Errorf("SNIPER_SYNC_INTERVAL must be at least 1s")
	}
	return nil
}

// RequireSession checks the settings only the HTTP server needs.
func (c Config) RequireSession() error {
	if len(c.CookieHashKey) == 0 || len(c.CookieBlockKey) == 0 {
		return fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY are required (base64, 32 and 16/24/32 bytes)")
	}
	switch len(c.CookieBlockKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must decode to 16, 24 or 32 bytes (got %d)", len(c.CookieBlockKey))
	}
	if c.AdminPasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_BCRYPT is required (see the hash-password command)")
	}
	return nil
}

func (c Config) ExecutorConfig() executor.Config {
	return executor.Config{
		MaxPoll:        c.MaxPoll,
		PollInterval:   c.PollInterval,
		Tolerance:      c.MatchTolerance,
		AcquireTimeout: c.AcquireTimeout,
	}
}

// decodeB64 accepts the value itself or a path to a file holding it, for
// secret mounts.
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
