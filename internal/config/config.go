// Package config holds the song bot configuration on top of the core settings.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/songbot/core/config"
	coredatabase "github.com/m3rciful/songbot/core/database"
	"github.com/m3rciful/songbot/internal/journal"
	"github.com/m3rciful/songbot/internal/session"
)

const (
	defaultDownloadDir      = "downloads"
	defaultCookiesFile      = "cookiex.txt"
	defaultMaxParallel      = 2
	defaultSessionTTL       = 24 * time.Hour
	defaultSessionMax       = 10000
	defaultJanitorInterval  = time.Hour
	defaultMaxFileAge       = 6 * time.Hour
	defaultJournalKeep      = 200
	defaultMongoDatabase    = "songbot"
	defaultRedisAddr        = "localhost:6379"
	defaultSendTimeout      = 5 * time.Minute
	defaultProgressInterval = time.Second
)

// DownloadConfig tunes the download orchestrator and the fetcher.
type DownloadConfig struct {
	Dir         string `yaml:"dir" envconfig:"DOWNLOAD_DIR"`
	CookiesFile string `yaml:"cookies_file" envconfig:"COOKIES_FILE"`
	MaxParallel int    `yaml:"max_parallel" envconfig:"DOWNLOAD_MAX_PARALLEL"`
	// Timeout bounds a single fetch; 0 disables the limit.
	Timeout          time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	ProgressInterval time.Duration `yaml:"progress_interval" envconfig:"DOWNLOAD_PROGRESS_INTERVAL"`
	JanitorInterval  time.Duration `yaml:"janitor_interval" envconfig:"DOWNLOAD_JANITOR_INTERVAL"`
	MaxFileAge       time.Duration `yaml:"max_file_age" envconfig:"DOWNLOAD_MAX_FILE_AGE"`
	YTDLPBinary      string        `yaml:"ytdlp_binary" envconfig:"YTDLP_BINARY"`
	// SendTimeout bounds the upload of a finished file to Telegram.
	SendTimeout time.Duration `yaml:"send_timeout" envconfig:"DOWNLOAD_SEND_TIMEOUT"`
}

// SessionConfig selects and tunes the session store.
type SessionConfig struct {
	Driver        string        `yaml:"driver" envconfig:"SESSION_DRIVER"`
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
	MaxEntries    int           `yaml:"max_entries" envconfig:"SESSION_MAX_ENTRIES"`
	RedisAddr     string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" envconfig:"REDIS_DB"`
}

// JournalConfig selects the job journal backend.
type JournalConfig struct {
	Driver        string `yaml:"driver" envconfig:"JOURNAL_DRIVER"`
	Keep          int    `yaml:"keep" envconfig:"JOURNAL_KEEP"`
	MongoURI      string `yaml:"mongo_uri" envconfig:"MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" envconfig:"MONGO_DATABASE"`
}

// Config is the full song bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Download DownloadConfig      `yaml:"download"`
	Session  SessionConfig       `yaml:"session"`
	Journal  JournalConfig       `yaml:"journal"`
	Database coredatabase.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// SessionOptions maps the session section onto session.Options.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		Driver:        c.Session.Driver,
		TTL:           c.Session.TTL,
		MaxEntries:    c.Session.MaxEntries,
		RedisAddr:     c.Session.RedisAddr,
		RedisPassword: c.Session.RedisPassword,
		RedisDB:       c.Session.RedisDB,
	}
}

// Load reads path and the environment, then applies defaults and validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	d := &cfg.Download
	if strings.TrimSpace(d.Dir) == "" {
		d.Dir = defaultDownloadDir
	}
	if strings.TrimSpace(d.CookiesFile) == "" {
		d.CookiesFile = defaultCookiesFile
	}
	if d.MaxParallel <= 0 {
		d.MaxParallel = defaultMaxParallel
	}
	if d.Timeout < 0 {
		return fmt.Errorf("download.timeout must be >= 0")
	}
	if d.ProgressInterval <= 0 {
		d.ProgressInterval = defaultProgressInterval
	}
	if d.JanitorInterval <= 0 {
		d.JanitorInterval = defaultJanitorInterval
	}
	if d.MaxFileAge <= 0 {
		d.MaxFileAge = defaultMaxFileAge
	}
	if d.SendTimeout <= 0 {
		d.SendTimeout = defaultSendTimeout
	}

	s := &cfg.Session
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "":
		s.Driver = session.DriverMemory
	case session.DriverMemory:
	case session.DriverRedis:
		if strings.TrimSpace(s.RedisAddr) == "" {
			s.RedisAddr = defaultRedisAddr
		}
	default:
		return fmt.Errorf("invalid session.driver %q; allowed: memory, redis", cfg.Session.Driver)
	}
	if s.TTL <= 0 {
		s.TTL = defaultSessionTTL
	}
	if s.MaxEntries <= 0 {
		s.MaxEntries = defaultSessionMax
	}

	j := &cfg.Journal
	driver, err := journal.NormalizeDriver(j.Driver)
	if err != nil {
		return err
	}
	j.Driver = driver
	if j.Keep <= 0 {
		j.Keep = defaultJournalKeep
	}
	if j.Driver == journal.DriverMongo {
		if strings.TrimSpace(j.MongoURI) == "" {
			return fmt.Errorf("journal.mongo_uri is required when journal.driver is 'mongo'")
		}
		if strings.TrimSpace(j.MongoDatabase) == "" {
			j.MongoDatabase = defaultMongoDatabase
		}
	}
	if j.Driver == journal.DriverPostgres && strings.TrimSpace(cfg.Database.Host) == "" {
		return fmt.Errorf("database.host is required when journal.driver is 'postgres'")
	}
	return nil
}
