package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/resy-sniper/internal/ratelimit"
)

// File is the optional YAML config. Values may reference ${VAR}s.
//
//	listen_addr: ":8080"
//	store: postgres
//	database_url: ${DATABASE_URL}
//	rate_limits:
//	  fallback: {max_tokens: 10, refill_rate: 10, refill_interval: 1m}
//	  platforms:
//	    resy: {max_tokens: 30, refill_rate: 30, refill_interval: 1m}
//	notify:
//	  redis: {addr: "localhost:6379", channel: snipes}
//	  kafka: {brokers: ["localhost:9092"], topic: snipes}
type File struct {
	ListenAddr  string `yaml:"listen_addr"`
	Store       string `yaml:"store"`
	DBPath      string `yaml:"db_path"`
	DatabaseURL string `yaml:"database_url"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
		File   string `yaml:"file"`
	} `yaml:"log"`

	Sniper struct {
		LeadTime       time.Duration `yaml:"lead_time"`
		MaxPoll        time.Duration `yaml:"max_poll"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		MatchTolerance time.Duration `yaml:"match_tolerance"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
		SyncInterval   time.Duration `yaml:"sync_interval"`
	} `yaml:"sniper"`

	RateLimits struct {
		Fallback  *ratelimit.Budget           `yaml:"fallback"`
		Platforms map[string]ratelimit.Budget `yaml:"platforms"`
	} `yaml:"rate_limits"`

	Notify struct {
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			Channel  string `yaml:"channel"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"notify"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &f, nil
}

// apply copies every value set in f over cfg.
func (f *File) apply(cfg *Config) {
	setString(&cfg.ListenAddr, f.ListenAddr)
	setString(&cfg.Store, f.Store)
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.DatabaseURL, f.DatabaseURL)
	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.LogFile, f.Log.File)
	if f.Log.Pretty {
		cfg.LogPretty = true
	}

	setDuration(&cfg.LeadTime, f.Sniper.LeadTime)
	setDuration(&cfg.MaxPoll, f.Sniper.MaxPoll)
	setDuration(&cfg.PollInterval, f.Sniper.PollInterval)
	setDuration(&cfg.MatchTolerance, f.Sniper.MatchTolerance)
	setDuration(&cfg.AcquireTimeout, f.Sniper.AcquireTimeout)
	setDuration(&cfg.SyncInterval, f.Sniper.SyncInterval)

	if f.RateLimits.Fallback != nil {
		cfg.RateFallback = *f.RateLimits.Fallback
	}
	for name, b := range f.RateLimits.Platforms {
		cfg.RateLimits[name] = b
	}

	setString(&cfg.RedisAddr, f.Notify.Redis.Addr)
	setString(&cfg.RedisPassword, f.Notify.Redis.Password)
	setString(&cfg.RedisChannel, f.Notify.Redis.Channel)
	if len(f.Notify.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Notify.Kafka.Brokers
	}
	setString(&cfg.KafkaTopic, f.Notify.Kafka.Topic)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
