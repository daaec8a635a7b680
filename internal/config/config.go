// Package config centralizes how esubmit reads its settings. Values start from
// defaults, are overlaid by an optional YAML file named in ESUBMIT_CONFIG and
// finally by ESUBMIT_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dharsanguruparan/esubmit/internal/logging"
	"github.com/dharsanguruparan/esubmit/internal/model"
)

// Config represents runtime configuration for every binary.
type Config struct {
	Address       string         `yaml:"address"`
	CORSOrigins   []string       `yaml:"corsOrigins"`
	DataDir       string         `yaml:"dataDir"`
	LegacyDBFile  string         `yaml:"legacyDBFile"`
	ShardBytes    int            `yaml:"shardBytes"`
	Database      DatabaseConfig `yaml:"database"`
	Storage       StorageConfig  `yaml:"storage"`
	Auth          AuthConfig     `yaml:"auth"`
	SigningSecret string         `yaml:"signingSecret"`
	SignedURLTTL  time.Duration  `yaml:"signedURLTTL"`
	Redis         RedisConfig    `yaml:"redis"`
	Log           logging.Config `yaml:"log"`
}

// DatabaseConfig describes the optional SQL backend. An empty DSN runs the
// service on JSON files only.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	ConnectTimeout   time.Duration `yaml:"connectTimeout"`
	StatementTimeout time.Duration `yaml:"statementTimeout"`
	MaxOpenConns     int           `yaml:"maxOpenConns"`
	LogQueries       bool          `yaml:"logQueries"`
}

// StorageConfig controls uploaded file storage.
type StorageConfig struct {
	Provider          model.StorageLocation `yaml:"provider"`
	UploadDir         string                `yaml:"uploadDir"`
	MaxFileSize       int64                 `yaml:"maxFileSize"`
	AllowedExtensions []string              `yaml:"allowedExtensions"`
}

// AuthConfig controls session tokens and login throttling.
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwtSecret"`
	SessionTTL     time.Duration `yaml:"sessionTTL"`
	LoginRate      float64       `yaml:"loginRate"`
	LoginBurst     int           `yaml:"loginBurst"`
	SweepSchedule  string        `yaml:"sweepSchedule"`
	BcryptCost     int           `yaml:"bcryptCost"`
	AllowRegister  bool          `yaml:"allowRegister"`
	SeedSampleForm bool          `yaml:"seedSampleForm"`
}

// RedisConfig points at the asynq broker. Empty Addr delivers notifications
// inline.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	Concurrency int    `yaml:"concurrency"`
}

const (
	defaultAddress      = ":8080"
	defaultDataDir      = "data"
	defaultLegacyDBFile = "database.json"
	defaultShardBytes   = 800 * 1024
	defaultUploadDir    = "uploads"
	defaultMaxFileSize  = 10 << 20 // 10 MiB
	defaultExtensions   = ".pdf,.jpg,.jpeg,.png,.doc,.docx,.xls,.xlsx"
	defaultCORSOrigins  = "http://localhost:3000,http://localhost:5173"
	defaultSessionTTL   = 7 * 24 * time.Hour
	defaultSignedTTL    = 5 * time.Minute
	defaultConnTimeout  = 10 * time.Second
	defaultStmtTimeout  = 30 * time.Second
	defaultSweep        = "@every 1h"
)

// Defaults returns the configuration used when nothing is supplied.
func Defaults() *Config {
	return &Config{
		Address:      defaultAddress,
		CORSOrigins:  splitList(defaultCORSOrigins),
		DataDir:      defaultDataDir,
		LegacyDBFile: defaultLegacyDBFile,
		ShardBytes:   defaultShardBytes,
		Database: DatabaseConfig{
			ConnectTimeout:   defaultConnTimeout,
			StatementTimeout: defaultStmtTimeout,
			MaxOpenConns:     8,
		},
		Storage: StorageConfig{
			Provider:          model.StorageLocal,
			UploadDir:         defaultUploadDir,
			MaxFileSize:       defaultMaxFileSize,
			AllowedExtensions: splitList(defaultExtensions),
		},
		Auth: AuthConfig{
			SessionTTL:    defaultSessionTTL,
			LoginRate:     1,
			LoginBurst:    10,
			SweepSchedule: defaultSweep,
			AllowRegister: true,
		},
		SignedURLTTL: defaultSignedTTL,
		Redis:        RedisConfig{Concurrency: 4},
		Log:          logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads the optional YAML file then the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("ESUBMIT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Address = readEnv("ESUBMIT_ADDRESS", c.Address)
	c.CORSOrigins = parseList("ESUBMIT_CORS_ORIGINS", c.CORSOrigins)
	c.DataDir = readEnv("ESUBMIT_DATA_DIR", c.DataDir)
	c.LegacyDBFile = readEnv("ESUBMIT_LEGACY_DB_FILE", c.LegacyDBFile)
	c.ShardBytes = parseInt("ESUBMIT_SHARD_BYTES", c.ShardBytes)

	c.Database.DSN = readEnv("ESUBMIT_DATABASE_URL", c.Database.DSN)
	c.Database.ConnectTimeout = parseDuration("ESUBMIT_DATABASE_CONNECT_TIMEOUT", c.Database.ConnectTimeout)
	c.Database.StatementTimeout = parseDuration("ESUBMIT_DATABASE_STATEMENT_TIMEOUT", c.Database.StatementTimeout)
	c.Database.MaxOpenConns = parseInt("ESUBMIT_DATABASE_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.LogQueries = parseBool("ESUBMIT_DATABASE_LOG_QUERIES", c.Database.LogQueries)

	c.Storage.Provider = model.StorageLocation(readEnv("ESUBMIT_STORAGE_PROVIDER", string(c.Storage.Provider)))
	c.Storage.UploadDir = readEnv("ESUBMIT_UPLOAD_DIR", c.Storage.UploadDir)
	c.Storage.MaxFileSize = parseInt64("ESUBMIT_MAX_FILE_BYTES", c.Storage.MaxFileSize)
	c.Storage.AllowedExtensions = parseList("ESUBMIT_ALLOWED_EXTENSIONS", c.Storage.AllowedExtensions)

	c.Auth.JWTSecret = readEnv("ESUBMIT_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.SessionTTL = parseDuration("ESUBMIT_SESSION_TTL", c.Auth.SessionTTL)
	c.Auth.SweepSchedule = readEnv("ESUBMIT_SESSION_SWEEP", c.Auth.SweepSchedule)
	c.Auth.LoginBurst = parseInt("ESUBMIT_LOGIN_BURST", c.Auth.LoginBurst)
	c.Auth.AllowRegister = parseBool("ESUBMIT_ALLOW_REGISTER", c.Auth.AllowRegister)
	c.Auth.SeedSampleForm = parseBool("ESUBMIT_SEED_SAMPLE_FORM", c.Auth.SeedSampleForm)

	c.SigningSecret = readEnv("ESUBMIT_SIGNING_SECRET", c.SigningSecret)
	c.SignedURLTTL = parseDuration("ESUBMIT_SIGNED_TTL", c.SignedURLTTL)

	c.Redis.Addr = readEnv("ESUBMIT_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = readEnv("ESUBMIT_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseInt("ESUBMIT_REDIS_DB", c.Redis.DB)
	c.Redis.Concurrency = parseInt("ESUBMIT_WORKERS", c.Redis.Concurrency)

	c.Log.Level = readEnv("ESUBMIT_LOG_LEVEL", c.Log.Level)
	c.Log.Format = readEnv("ESUBMIT_LOG_FORMAT", c.Log.Format)
	c.Log.File = readEnv("ESUBMIT_LOG_FILE", c.Log.File)
}

func (c *Config) finalize() error {
	switch c.Storage.Provider {
	case model.StorageLocal, model.StorageS3, model.StorageAzure, model.StorageGCS:
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	if c.Storage.MaxFileSize <= 0 {
		c.Storage.MaxFileSize = defaultMaxFileSize
	}
	if c.ShardBytes <= 0 {
		c.ShardBytes = defaultShardBytes
	}
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = defaultSessionTTL
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = defaultSignedTTL
	}
	if c.Redis.Concurrency <= 0 {
		c.Redis.Concurrency = 4
	}
	// Without a configured secret tokens only survive until restart.
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = randomSecret()
	}
	if c.SigningSecret == "" {
		c.SigningSecret = randomSecret()
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	return splitList(v)
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte("fallbacksecret"))
	}
	return hex.EncodeToString(buf)
}
