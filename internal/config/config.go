package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Staging      StagingConfig      `mapstructure:"staging"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Onboarding   OnboardingConfig   `mapstructure:"onboarding"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MetricsPrefix  string        `mapstructure:"metrics_prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

const (
	StagingBackendMemory = "memory"
	StagingBackendRedis  = "redis"
)

// StagingConfig selects where pending doctors are kept and under which keys.
type StagingConfig struct {
	Backend       string `mapstructure:"backend"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	PendingKey    string `mapstructure:"pending_key"`
	RegisteredKey string `mapstructure:"registered_key"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	VerificationTTL time.Duration `mapstructure:"verification_ttl"`
	RecoveryTTL     time.Duration `mapstructure:"recovery_ttl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type OnboardingConfig struct {
	// VerificationURL is where the emailed verification link points.
	VerificationURL string `mapstructure:"verification_url"`
	// RecoveryRedirectURL is the page a doctor lands on from a recovery email.
	RecoveryRedirectURL  string        `mapstructure:"recovery_redirect_url"`
	GeneratedPasswordLen int           `mapstructure:"generated_password_length"`
	NotificationDuration time.Duration `mapstructure:"notification_duration"`
	WarningDuration      time.Duration `mapstructure:"warning_duration"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	StepTimeout          time.Duration `mapstructure:"step_timeout"`
}

type ConnectivityConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WorkerConfig struct {
	OperatorMailbox string `mapstructure:"operator_mailbox"`
	HealthPort      int    `mapstructure:"health_port"`
}

// secrets are overlaid from HOSPITAL_* environment variables after the file is read.
type secrets struct {
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.metrics_prefix", "hospital_admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("staging.backend", StagingBackendRedis)
	v.SetDefault("staging.key_prefix", "hospital:")
	v.SetDefault("staging.pending_key", "pending_doctors")
	v.SetDefault("staging.registered_key", "registered_doctors")
	v.SetDefault("jwt.issuer", "hospital-admin")
	v.SetDefault("jwt.verification_ttl", "48h")
	v.SetDefault("jwt.recovery_ttl", "1h")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("onboarding.generated_password_length", 12)
	v.SetDefault("onboarding.notification_duration", "3s")
	v.SetDefault("onboarding.warning_duration", "8s")
	v.SetDefault("onboarding.bcrypt_cost", 12)
	v.SetDefault("onboarding.step_timeout", "15s")
	v.SetDefault("connectivity.timeout", "2s")
	v.SetDefault("connectivity.cache_ttl", "5s")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("worker.health_port", 8081)
}

// LoadConfig reads config.yaml from the given paths (default "." and
// "./config"), then applies HOSPITAL_* overrides. A .env file in the working
// directory is loaded first when present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	v.SetEnvPrefix("HOSPITAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process("HOSPITAL", &s); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	s.apply(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (s secrets) apply(c *Config) {
	if s.DatabaseHost != "" {
		c.Database.Host = s.DatabaseHost
	}
	if s.DatabasePassword != "" {
		c.Database.Password = s.DatabasePassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (HOSPITAL_JWT_SECRET)")
	}
	switch c.Staging.Backend {
	case StagingBackendMemory, StagingBackendRedis:
	default:
		return fmt.Errorf("unknown staging backend %q", c.Staging.Backend)
	}
	if c.Onboarding.RecoveryRedirectURL == "" {
		return errors.New("onboarding.recovery_redirect_url is required")
	}
	return nil
}
