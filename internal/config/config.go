// Package config provides application configuration management using Viper.
// Values are read from an optional config.yaml, an optional .env file and
// APP_-prefixed environment variables, in increasing order of precedence.
// The database section carries the connection pool, transaction and
// migration settings consumed by the repository/db package.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only acceptable outside production.
const DefaultJWTSecret = "change-me-development-only-secret"

// Config holds all application configuration / Contient toute la configuration de l'application
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Environment string            `mapstructure:"environment"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Backup      BackupConfig      `mapstructure:"backup"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Security    SecurityConfig    `mapstructure:"security"`
	Cors        CorsConfig        `mapstructure:"cors"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Docs        DocsConfig        `mapstructure:"docs"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds server configuration / Configuration serveur
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds connection pool, transaction and migration settings.
type DatabaseConfig struct {
	Type                    string        `mapstructure:"type" validate:"required,oneof=sqlite mysql postgres postgresql"`
	URL                     string        `mapstructure:"url" validate:"required"`
	User                    string        `mapstructure:"user"`
	Password                string        `mapstructure:"password"`
	MaxPoolSize             int           `mapstructure:"max_pool_size" validate:"min=1"`
	MinIdle                 int           `mapstructure:"min_idle" validate:"min=0"` // 0 keeps max_pool_size idle connections
	AutoCommit              bool          `mapstructure:"auto_commit"`
	IsolationLevel          string        `mapstructure:"isolation_level" validate:"isolation"`
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout" validate:"min=250ms"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout" validate:"min=0s"`
	MaxLifetime             time.Duration `mapstructure:"max_lifetime" validate:"min=0s"`
	CachePreparedStatements bool          `mapstructure:"cache_prepared_statements"`
	MigrationsPath          string        `mapstructure:"migrations_path"` // empty uses the migrations embedded in the binary
	RunMigrations           bool          `mapstructure:"run_migrations"`
}

// BackupConfig holds database backup configuration / Configuration des sauvegardes de la base de données
type BackupConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Schedule      string `mapstructure:"schedule"` // cron expression or descriptor such as @daily
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// AuthConfig holds JWT verification settings / Configuration JWT
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience"`
	JWTRealm    string `mapstructure:"jwt_realm"`
}

// SecurityConfig holds security settings / Paramètres de sécurité
type SecurityConfig struct {
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// CorsConfig holds CORS configuration / Configuration CORS
type CorsConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimiterConfig holds rate limiter configuration / Configuration limiteur de débit
type RateLimiterConfig struct {
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
	Enabled bool    `mapstructure:"enabled"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DocsConfig controls the OpenAPI document and the Swagger UI page.
type DocsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Title   string `mapstructure:"title"`
}

// LoggingConfig holds logging configuration / Configuration logging
type LoggingConfig struct {
	Level         string            `mapstructure:"level"`
	Format        string            `mapstructure:"format"`
	FilePath      string            `mapstructure:"file_path"`
	MaxSize       int               `mapstructure:"max_size"` // megabytes
	MaxBackups    int               `mapstructure:"max_backups"`
	MaxAge        int               `mapstructure:"max_age"` // days
	LokiEnabled   bool              `mapstructure:"loki_enabled"`
	LokiURL       string            `mapstructure:"loki_url"`
	LokiLabels    map[string]string `mapstructure:"loki_labels"`
	LokiBatchSize int               `mapstructure:"loki_batch_size"`
}

// IdleConns returns the number of idle connections kept in the pool.
func (d DatabaseConfig) IdleConns() int {
	if d.MinIdle <= 0 || d.MinIdle > d.MaxPoolSize {
		return d.MaxPoolSize
	}
	return d.MinIdle
}

// IsProduction checks if environment is production / Vérifie si l'environnement est production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment checks if environment is development / Vérifie si l'environnement est development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig loads configuration from YAML, .env and env vars / Charge la config depuis YAML, .env et variables d'env
func LoadConfig() (*Config, error) {
	return Load(".")
}

// Load reads config.yaml and .env from dir, then applies environment overrides.
func Load(dir string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load(dir + "/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by container platforms
	_ = v.BindEnv("auth.jwt_secret", "APP_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("database.url", "APP_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.user", "APP_DATABASE_USER", "DATABASE_USER")
	_ = v.BindEnv("database.password", "APP_DATABASE_PASSWORD", "DATABASE_PASSWORD")

	var cfg Config
	err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("environment", "development")

	// Pool defaults match a HikariCP-style setup: 30s connect, 10m idle, 30m lifetime
	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.url", "postgres://localhost:5432/app?sslmode=disable")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_pool_size", 10)
	v.SetDefault("database.min_idle", 0)
	v.SetDefault("database.auto_commit", false)
	v.SetDefault("database.isolation_level", "REPEATABLE_READ")
	v.SetDefault("database.connection_timeout", "30s")
	v.SetDefault("database.idle_timeout", "10m")
	v.SetDefault("database.max_lifetime", "30m")
	v.SetDefault("database.cache_prepared_statements", true)
	v.SetDefault("database.migrations_path", "")
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.jwt_issuer", "go-microservice")
	v.SetDefault("auth.jwt_audience", "go-microservice-api")
	v.SetDefault("auth.jwt_realm", "go-microservice")

	v.SetDefault("security.trusted_proxies", []string{})

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.allow_credentials", true)

	v.SetDefault("rate_limiter.rps", 10)
	v.SetDefault("rate_limiter.burst", 20)
	v.SetDefault("rate_limiter.enabled", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("docs.enabled", true)
	v.SetDefault("docs.title", "go-microservice API")

	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.schedule", "@daily")
	v.SetDefault("backup.path", "./backups")
	v.SetDefault("backup.retention_days", 7)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.loki_enabled", false)
	v.SetDefault("logging.loki_url", "http://localhost:3100")
	v.SetDefault("logging.loki_labels", map[string]string{
		"app":         "go-microservice",
		"environment": "development",
	})
	v.SetDefault("logging.loki_batch_size", 10)
}

// Validate validates configuration / Valide la configuration
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.Database.Validate(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateRateLimiter(); err != nil {
		return err
	}

	return nil
}

// validateServer validates server configuration
func (c *Config) validateServer() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	return nil
}

// IsolationLevels lists the accepted database.isolation_level values.
var IsolationLevels = []string{"READ_UNCOMMITTED", "READ_COMMITTED", "REPEATABLE_READ", "SERIALIZABLE"}

// NormalizeIsolation upper-cases a level name and drops the JDBC style TRANSACTION_ prefix.
func NormalizeIsolation(level string) string {
	level = strings.ToUpper(strings.TrimSpace(level))
	level = strings.ReplaceAll(level, " ", "_")
	return strings.TrimPrefix(level, "TRANSACTION_")
}

var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("isolation", func(fl validator.FieldLevel) bool {
		level := fl.Field().String()
		return level == "" || slices.Contains(IsolationLevels, NormalizeIsolation(level))
	})
	return v
}()

// Validate checks the pool settings before any connection is attempted.
func (d DatabaseConfig) Validate() error {
	d.Type = strings.ToLower(d.Type)
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("database.%s is invalid (%s=%s)", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("database: %w", err)
	}
	if d.MinIdle > d.MaxPoolSize {
		return errors.New("database.min_idle must not exceed database.max_pool_size")
	}
	return nil
}

// validateAuth validates authentication and JWT configuration
func (c *Config) validateAuth() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return errors.New("auth.jwt_secret must be ≥32 chars in production")
		}
		if c.Auth.JWTSecret == DefaultJWTSecret {
			return errors.New("auth.jwt_secret cannot use default value in production - set JWT_SECRET environment variable")
		}
	}
	return nil
}

// validateRateLimiter validates rate limiter configuration
func (c *Config) validateRateLimiter() error {
	if !c.RateLimiter.Enabled {
		return nil
	}

	if c.RateLimiter.RPS <= 0 {
		return errors.New("rate_limiter.rps must be positive when enabled")
	}

	if c.RateLimiter.Burst <= 0 {
		return errors.New("rate_limiter.burst must be positive when enabled")
	}

	return nil
}
