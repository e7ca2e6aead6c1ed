package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/buymart/dealflow-api/internal/secrets"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Escrow    EscrowConfig
	Timeline  TimelineConfig
	Jobs      JobsConfig
	Storage   StorageConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite"
	Driver          string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	AutoMigrate     bool
}

// AuthConfig configures request authentication.
// Bearer tokens are HS256 JWTs signed with JWTSecret.
type AuthConfig struct {
	APIKey      string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// EscrowConfig configures the external escrow provider client
type EscrowConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	// TimeoutSeconds bounds every provider call
	TimeoutSeconds int
	// ReconcileAttempts is the number of status polls made when reconciling
	ReconcileAttempts int
	// ReconcileBackoffMillis is the base delay between reconcile polls
	ReconcileBackoffMillis int
	Platform               string
	UserAgent              string
}

// TimelineConfig configures the milestone and required-document tables
type TimelineConfig struct {
	// TablePath points at an optional YAML table; empty uses the built-in 34-day table
	TablePath string
	// LookaheadDays is the upcoming-deadline window
	LookaheadDays int
}

type JobsConfig struct {
	Enabled                bool
	AlertSweepCron         string
	AlertSweepTimeout      int
	EscrowReconcileCron    string
	EscrowReconcileTimeout int
	RunOnStartup           bool
}

type StorageConfig struct {
	Mode                  string
	LocalBasePath         string
	CloudConnectionString string
	CloudContainer        string
	MaxUploadSizeMB       int64
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int
	EnableSwagger  bool
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins for CORS requests
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the max age (in seconds) for preflight cache
	MaxAge int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	// FrameOptions sets the X-Frame-Options header (DENY, SAMEORIGIN, or empty to disable)
	FrameOptions       string
	ContentTypeNosniff bool
	ReferrerPolicy     string
	PermissionsPolicy  string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	// RequestsPerMinute is the per-IP limit
	RequestsPerMinute int
	// RequestsPerMinuteAuth is the per-user limit for authenticated requests
	RequestsPerMinuteAuth int
	WhitelistIPs          []string
	WhitelistPaths        []string
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

func (e *EscrowConfig) TimeoutDuration() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e *EscrowConfig) ReconcileBackoffDuration() time.Duration {
	return time.Duration(e.ReconcileBackoffMillis) * time.Millisecond
}

// MaxUploadBytes returns the document upload limit in bytes
func (s *StorageConfig) MaxUploadBytes() int64 {
	return s.MaxUploadSizeMB << 20
}

func (j *JobsConfig) AlertSweepTimeoutDuration() time.Duration {
	return time.Duration(j.AlertSweepTimeout) * time.Second
}

func (j *JobsConfig) EscrowReconcileTimeoutDuration() time.Duration {
	return time.Duration(j.EscrowReconcileTimeout) * time.Second
}

// Load loads configuration from file and environment variables.
// Secrets are not resolved from the vault; use LoadWithSecrets for that.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = v.GetString("ADMIN_API_KEY")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	}
	if cfg.Escrow.APIKey == "" {
		cfg.Escrow.APIKey = v.GetString("ESCROW_API_KEY")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves secrets from the configured source.
//
// Key Vault is used when USE_AZURE_KEY_VAULT=true and the environment is
// staging or production. Otherwise secrets come from environment variables
// already picked up by Load.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	useKeyVault := strings.ToLower(os.Getenv("USE_AZURE_KEY_VAULT")) == "true"
	isValidEnv := cfg.App.Environment == "staging" || cfg.App.Environment == "production"

	if !useKeyVault {
		logger.Info("USE_AZURE_KEY_VAULT not enabled, using environment variables for secrets",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if !isValidEnv {
		logger.Warn("USE_AZURE_KEY_VAULT is enabled but environment is not staging or production, using environment variables",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if cfg.Secrets.KeyVaultName == "" {
		return nil, fmt.Errorf("AZURE_KEY_VAULT_NAME is required when USE_AZURE_KEY_VAULT=true")
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SourceVault,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}

	logger.Info("Loading secrets from Azure Key Vault",
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)

	bindings := []secrets.Binding{
		{Name: secrets.DatabaseHost, EnvName: "DATABASE_HOST", Target: &cfg.Database.Host},
		{Name: secrets.DatabaseUser, EnvName: "DATABASE_USER", Target: &cfg.Database.User},
		{Name: secrets.DatabasePassword, EnvName: "DATABASE_PASSWORD", Target: &cfg.Database.Password},
		{Name: secrets.EscrowAPIKey, EnvName: "ESCROW_API_KEY", Target: &cfg.Escrow.APIKey},
		{Name: secrets.JWTSecret, EnvName: "JWT_SECRET", Target: &cfg.Auth.JWTSecret},
		{Name: secrets.AdminAPIKey, EnvName: "ADMIN_API_KEY", Target: &cfg.Auth.APIKey},
		{Name: secrets.StorageConnectionString, EnvName: "STORAGE_CLOUDCONNECTIONSTRING", Target: &cfg.Storage.CloudConnectionString},
	}
	resolved := provider.Resolve(ctx, bindings)

	// SSL mode from env var (Azure PostgreSQL requires "require")
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		cfg.Database.SSLMode = sslMode
	}

	logger.Info("Secrets loaded from vault",
		zap.Int("resolved", resolved),
		zap.Int("requested", len(bindings)),
	)
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Dealflow API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "dealflow")
	v.SetDefault("database.user", "dealflow_user")
	v.SetDefault("database.password", "dealflow_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.sqlitePath", "./dealflow.db")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)
	v.SetDefault("database.autoMigrate", false)

	v.SetDefault("auth.jwtIssuer", "")
	v.SetDefault("auth.jwtAudience", "authenticated")

	v.SetDefault("escrow.provider", "escrow.com")
	v.SetDefault("escrow.baseURL", "https://api.escrow.com/2017-09-01")
	v.SetDefault("escrow.timeoutSeconds", 15)
	v.SetDefault("escrow.reconcileAttempts", 3)
	v.SetDefault("escrow.reconcileBackoffMillis", 500)
	v.SetDefault("escrow.platform", "BuyMart")
	v.SetDefault("escrow.userAgent", "dealflow-api/1.0")

	v.SetDefault("timeline.tablePath", "")
	v.SetDefault("timeline.lookaheadDays", 7)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.alertSweepCron", "0 */15 * * * *")
	v.SetDefault("jobs.alertSweepTimeout", 300)
	v.SetDefault("jobs.escrowReconcileCron", "0 */5 * * * *")
	v.SetDefault("jobs.escrowReconcileTimeout", 120)
	v.SetDefault("jobs.runOnStartup", false)

	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300)

	v.SetDefault("storage.mode", "local")
	v.SetDefault("storage.localBasePath", "./storage")
	v.SetDefault("storage.cloudContainer", "deal-documents")
	v.SetDefault("storage.maxUploadSizeMB", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.enableSwagger", true)

	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 120)
	v.SetDefault("rateLimit.requestsPerMinuteAuth", 600)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db"})
}
