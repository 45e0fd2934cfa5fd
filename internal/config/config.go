package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	SFU      SFUConfig      `yaml:"sfu"`
}

type SFUConfig struct {
	PublicIP string     `yaml:"publicIP"`
	MinPort  uint16     `yaml:"minPort"`
	MaxPort  uint16     `yaml:"maxPort"`
	TURN     TURNConfig `yaml:"turn"`
}

type TURNConfig struct {
	Host   string        `yaml:"host"`
	Port   int           `yaml:"port"`
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

type ServerConfig struct {
	Name        string          `yaml:"name"`
	BindAddr    string          `yaml:"bind_addr"`
	BaseURL     string          `yaml:"base_url"`
	CORSOrigins []string        `yaml:"cors_origins"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
}

type WebSocketConfig struct {
	MaxUnauthenticatedPerIP  int           `yaml:"max_unauthenticated_per_ip"`
	MaxUnauthenticatedGlobal int           `yaml:"max_unauthenticated_global"`
	UnauthenticatedTimeout   time.Duration `yaml:"unauthenticated_timeout"`
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type StorageConfig struct {
	Backend        string   `yaml:"backend"` // "local" or "s3"
	Path           string   `yaml:"path"`    // local backend root dir
	UploadMaxBytes int64    `yaml:"upload_max_bytes"`
	S3             S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file — continue with env vars + defaults
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envUint16(key string, dst *uint16) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(i)
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		*dst = origins
	}
}

// applyEnvOverrides maps the external interface's env vars onto Config,
// taking precedence over any config file value.
func (c *Config) applyEnvOverrides() {
	envString("BIND_ADDR", &c.Server.BindAddr)
	envString("SERVER_BASE_URL", &c.Server.BaseURL)
	envStringSlice("CORS_ORIGINS", &c.Server.CORSOrigins)
	envDuration("WS_HEARTBEAT_INTERVAL", &c.Server.WebSocket.HeartbeatInterval)

	envString("DATABASE_URL", &c.Database.URL)

	envString("STORAGE_BACKEND", &c.Storage.Backend)
	envString("STORAGE_PATH", &c.Storage.Path)
	envInt64("UPLOAD_MAX_BYTES", &c.Storage.UploadMaxBytes)
	envString("S3_BUCKET", &c.Storage.S3.Bucket)
	envString("S3_REGION", &c.Storage.S3.Region)
	envString("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	envString("AWS_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID)
	envString("AWS_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey)

	envString("JWT_SECRET", &c.Auth.JWTSecret)
	envDuration("ACCESS_TOKEN_TTL", &c.Auth.AccessTokenTTL)
	envDuration("REFRESH_TOKEN_TTL", &c.Auth.RefreshTokenTTL)

	envString("SFU_PUBLIC_IP", &c.SFU.PublicIP)
	envUint16("SFU_MIN_PORT", &c.SFU.MinPort)
	envUint16("SFU_MAX_PORT", &c.SFU.MaxPort)
	envString("TURN_HOST", &c.SFU.TURN.Host)
	envString("TURN_SECRET", &c.SFU.TURN.Secret)
	envDuration("TURN_TTL", &c.SFU.TURN.TTL)
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("STORAGE_BACKEND must be \"local\" or \"s3\", got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" || c.Storage.S3.AccessKeyID == "" || c.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("S3_BUCKET, S3_REGION, AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY are required when STORAGE_BACKEND=s3")
		}
	}
	if c.Server.WebSocket.MaxUnauthenticatedPerIP < 0 {
		return fmt.Errorf("server.websocket.max_unauthenticated_per_ip must be >= 0")
	}
	if c.Storage.UploadMaxBytes < 0 {
		return fmt.Errorf("storage.upload_max_bytes must be >= 0")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" || origin == "null" {
			continue
		}
		if _, err := url.ParseRequestURI(origin); err != nil {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q: %w", origin, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = "127.0.0.1:3000"
	}
	if c.Server.Name == "" {
		c.Server.Name = "Relay Server"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://" + c.Server.BindAddr
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.WebSocket.MaxUnauthenticatedPerIP == 0 {
		c.Server.WebSocket.MaxUnauthenticatedPerIP = 20
	}
	if c.Server.WebSocket.MaxUnauthenticatedGlobal == 0 {
		c.Server.WebSocket.MaxUnauthenticatedGlobal = 200
	}
	if c.Server.WebSocket.UnauthenticatedTimeout == 0 {
		c.Server.WebSocket.UnauthenticatedTimeout = 10 * time.Second
	}
	if c.Server.WebSocket.HeartbeatInterval == 0 {
		c.Server.WebSocket.HeartbeatInterval = 30 * time.Second
	}
	if c.Database.URL == "" {
		c.Database.URL = "./data/relay.db"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/blobs"
	}
	if c.Storage.UploadMaxBytes == 0 {
		c.Storage.UploadMaxBytes = 10 * 1024 * 1024
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.SFU.MinPort == 0 {
		c.SFU.MinPort = 50000
	}
	if c.SFU.MaxPort == 0 {
		c.SFU.MaxPort = 50100
	}
	if c.SFU.TURN.Port == 0 {
		c.SFU.TURN.Port = 3478
	}
	if c.SFU.TURN.TTL == 0 {
		c.SFU.TURN.TTL = 24 * time.Hour
	}
}
