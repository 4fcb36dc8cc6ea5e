package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Workspace WorkspaceConfig
	Extract   ExtractConfig
	Render    RenderConfig
	Registry  RegistryConfig
	R2        R2Config
}

type ServerConfig struct {
	Port        string `validate:"required"`
	Env         string
	LogLevel    string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat   string `validate:"omitempty,oneof=json text"`
	BodyLimitMB int    `validate:"min=1"`
	CORSOrigins string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type AuthConfig struct {
	Enabled         bool
	Gateway         bool
	ZitadelIssuer   string `validate:"omitempty,url"`
	ZitadelClientID string
}

type RateLimitConfig struct {
	SubmitPerHour   int `validate:"min=0"`
	GeneratePerHour int `validate:"min=0"`
}

type WorkspaceConfig struct {
	Root string `validate:"required"`
}

type ExtractConfig struct {
	Strategy         string `validate:"oneof=auto text metadata"`
	AllowEmbedded    bool
	BrandKey         string `validate:"required"`
	CodeKey          string `validate:"required"`
	OrchestrationKey string `validate:"required"`
}

type RenderConfig struct {
	NPMBinary        string        `validate:"required"`
	InstallTimeout   time.Duration `validate:"gt=0"`
	RenderTimeout    time.Duration `validate:"gt=0"`
	KillGrace        time.Duration `validate:"gte=0"`
	OutputTail       int           `validate:"min=1"`
	MaxConcurrent    int64         `validate:"min=1"`
	MarkerFile       string        `validate:"required"`
	BrowserPaths     []string
	BrowserFlags     []string
	OutputExtensions []string `validate:"min=1,dive,startswith=."`
	Env              map[string]string
	Async            bool
	Packages         PackagesConfig
}

// PackagesConfig holds the version ranges written into the project manifest
type PackagesConfig struct {
	Remotion string `validate:"required"`
	CLI      string `validate:"required"`
	React    string `validate:"required"`
	ReactDOM string `validate:"required"`
}

type RegistryConfig struct {
	Backend string        `validate:"oneof=memory redis"`
	TTL     time.Duration `validate:"gte=0"`
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	URLExpiry       time.Duration
}

// Configured reports whether bundles should be published to object storage
func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.cors_origins", "CORS_ORIGINS")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("auth.enabled", "AUTH_ENABLED")
	_ = v.BindEnv("auth.gateway", "GATEWAY_ENABLED")
	_ = v.BindEnv("auth.zitadel_issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("auth.zitadel_client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("workspace.root", "WORKSPACE_ROOT")
	_ = v.BindEnv("extract.strategy", "EXTRACT_STRATEGY")
	_ = v.BindEnv("extract.allow_embedded", "EXTRACT_ALLOW_EMBEDDED")
	_ = v.BindEnv("render.npm_binary", "NPM_BINARY")
	_ = v.BindEnv("render.install_timeout", "RENDER_INSTALL_TIMEOUT")
	_ = v.BindEnv("render.render_timeout", "RENDER_TIMEOUT")
	_ = v.BindEnv("render.max_concurrent", "RENDER_MAX_CONCURRENT")
	_ = v.BindEnv("render.async", "RENDER_ASYNC")
	_ = v.BindEnv("registry.backend", "REGISTRY_BACKEND")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    strings.ToLower(v.GetString("server.log_level")),
			LogFormat:   strings.ToLower(v.GetString("server.log_format")),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
			CORSOrigins: v.GetString("server.cors_origins"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Auth: AuthConfig{
			Enabled:         v.GetBool("auth.enabled"),
			Gateway:         v.GetBool("auth.gateway"),
			ZitadelIssuer:   v.GetString("auth.zitadel_issuer"),
			ZitadelClientID: v.GetString("auth.zitadel_client_id"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour:   v.GetInt("ratelimit.submit_per_hour"),
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
		},
		Workspace: WorkspaceConfig{
			Root: v.GetString("workspace.root"),
		},
		Extract: ExtractConfig{
			Strategy:         strings.ToLower(v.GetString("extract.strategy")),
			AllowEmbedded:    v.GetBool("extract.allow_embedded"),
			BrandKey:         v.GetString("extract.brand_key"),
			CodeKey:          v.GetString("extract.code_key"),
			OrchestrationKey: v.GetString("extract.orchestration_key"),
		},
		Render: RenderConfig{
			NPMBinary:        v.GetString("render.npm_binary"),
			InstallTimeout:   v.GetDuration("render.install_timeout"),
			RenderTimeout:    v.GetDuration("render.render_timeout"),
			KillGrace:        v.GetDuration("render.kill_grace"),
			OutputTail:       v.GetInt("render.output_tail"),
			MaxConcurrent:    v.GetInt64("render.max_concurrent"),
			MarkerFile:       v.GetString("render.marker_file"),
			BrowserPaths:     v.GetStringSlice("render.browser_paths"),
			BrowserFlags:     v.GetStringSlice("render.browser_flags"),
			OutputExtensions: v.GetStringSlice("render.output_extensions"),
			Env:              v.GetStringMapString("render.env"),
			Async:            v.GetBool("render.async"),
			Packages: PackagesConfig{
				Remotion: v.GetString("render.packages.remotion"),
				CLI:      v.GetString("render.packages.cli"),
				React:    v.GetString("render.packages.react"),
				ReactDOM: v.GetString("render.packages.react_dom"),
			},
		},
		Registry: RegistryConfig{
			Backend: strings.ToLower(v.GetString("registry.backend")),
			TTL:     v.GetDuration("registry.ttl"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			URLExpiry:       v.GetDuration("r2.url_expiry"),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.body_limit_mb", 50)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.gateway", false)
	v.SetDefault("ratelimit.submit_per_hour", 30)
	v.SetDefault("ratelimit.generate_per_hour", 10)

	v.SetDefault("workspace.root", "temp_processing")

	v.SetDefault("extract.strategy", "auto")
	v.SetDefault("extract.allow_embedded", true)
	v.SetDefault("extract.brand_key", "BrandData")
	v.SetDefault("extract.code_key", "RemotionCode")
	v.SetDefault("extract.orchestration_key", "OrchestrationCode")

	v.SetDefault("render.npm_binary", "npm")
	v.SetDefault("render.install_timeout", 3*time.Minute)
	v.SetDefault("render.render_timeout", 10*time.Minute)
	v.SetDefault("render.kill_grace", 5*time.Second)
	v.SetDefault("render.output_tail", 4000)
	v.SetDefault("render.max_concurrent", 2)
	v.SetDefault("render.marker_file", "node_modules/.package-lock.json")
	v.SetDefault("render.browser_paths", []string{
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
	})
	v.SetDefault("render.browser_flags", []string{"--no-sandbox", "--disable-dev-shm-usage"})
	v.SetDefault("render.output_extensions", []string{".mp4"})
	v.SetDefault("render.async", false)
	v.SetDefault("render.packages.remotion", "^4.0.0")
	v.SetDefault("render.packages.cli", "^4.0.0")
	v.SetDefault("render.packages.react", "^18.2.0")
	v.SetDefault("render.packages.react_dom", "^18.2.0")

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.ttl", 24*time.Hour)

	v.SetDefault("r2.url_expiry", 24*time.Hour)
}

// Validate checks the loaded configuration
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
