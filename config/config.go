package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Escalation   EscalationConfig
	Dispatcher   DispatcherConfig
	Notification NotificationConfig
	Rewards      RewardsConfig
	LogLevel     string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	DatabaseURL string // DATABASE_URL, a full DSN; takes precedence over individual vars
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// AuthConfig holds JWT and system token settings
type AuthConfig struct {
	JWTSecret     string
	SystemToken   string
	TokenTTLHours int
}

// EscalationConfig holds sweep settings
type EscalationConfig struct {
	Interval     time.Duration
	BatchSize    int
	SweepTimeout time.Duration
	Workers      int
	PolicyFile   string
	DedupWindow  time.Duration
}

// DispatcherConfig holds side-effect dispatcher settings
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	JobTimeout     time.Duration
	MaxElapsedTime time.Duration
}

// NotificationConfig holds outbox and channel settings
type NotificationConfig struct {
	Channel        string
	WorkerInterval time.Duration
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	ShadowAddress  string
	// RoleMailboxes maps a role (DEPT_HEAD, ADMIN, ...) to a shared address.
	RoleMailboxes map[string]string
}

// RewardsConfig holds the citizen points policy
type RewardsConfig struct {
	PointsPerClosure int
}

const insecureDefaultSecret = "change-me-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", "3306")
	v.SetDefault("db.user", "root")
	v.SetDefault("db.name", "civicflow")
	v.SetDefault("jwt.secret", insecureDefaultSecret)
	v.SetDefault("jwt.ttl_hours", 24)
	v.SetDefault("escalation.interval", time.Hour)
	v.SetDefault("escalation.batch_size", 500)
	v.SetDefault("escalation.sweep_timeout", 2*time.Minute)
	v.SetDefault("escalation.workers", 4)
	v.SetDefault("escalation.dedup_window", 24*time.Hour)
	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.queue_size", 1024)
	v.SetDefault("dispatcher.job_timeout", 10*time.Second)
	v.SetDefault("dispatcher.max_elapsed", 30*time.Second)
	v.SetDefault("notification.channel", "in_app")
	v.SetDefault("notification.worker_interval", 30*time.Second)
	v.SetDefault("notification.from_name", "Civic Complaints")
	v.SetDefault("rewards.points_per_closure", 10)
	v.SetDefault("log.level", "info")
}

// LoadConfig loads .env (if present), then reads settings from the environment.
// Keys map to upper-case env names with dots as underscores, e.g. escalation.batch_size
// is ESCALATION_BATCH_SIZE. configFile, when set, is a YAML/TOML/JSON file read first.
func LoadConfig(envFile, configFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Hosting platforms set PORT and DATABASE_URL.
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("db.name", "DB_NAME")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("system.token", "SYSTEM_TOKEN")
	_ = v.BindEnv("notification.sendgrid_api_key", "SENDGRID_API_KEY")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			DatabaseURL: v.GetString("database_url"),
			Host:        v.GetString("db.host"),
			Port:        v.GetString("db.port"),
			User:        v.GetString("db.user"),
			Password:    v.GetString("db.password"),
			DBName:      v.GetString("db.name"),
		},
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetString("server.port"),
		},
		Auth: AuthConfig{
			JWTSecret:     v.GetString("jwt.secret"),
			SystemToken:   v.GetString("system.token"),
			TokenTTLHours: v.GetInt("jwt.ttl_hours"),
		},
		Escalation: EscalationConfig{
			Interval:     v.GetDuration("escalation.interval"),
			BatchSize:    v.GetInt("escalation.batch_size"),
			SweepTimeout: v.GetDuration("escalation.sweep_timeout"),
			Workers:      v.GetInt("escalation.workers"),
			PolicyFile:   v.GetString("escalation.policy_file"),
			DedupWindow:  v.GetDuration("escalation.dedup_window"),
		},
		Dispatcher: DispatcherConfig{
			Workers:        v.GetInt("dispatcher.workers"),
			QueueSize:      v.GetInt("dispatcher.queue_size"),
			JobTimeout:     v.GetDuration("dispatcher.job_timeout"),
			MaxElapsedTime: v.GetDuration("dispatcher.max_elapsed"),
		},
		Notification: NotificationConfig{
			Channel:        v.GetString("notification.channel"),
			WorkerInterval: v.GetDuration("notification.worker_interval"),
			SendGridAPIKey: v.GetString("notification.sendgrid_api_key"),
			FromEmail:      v.GetString("notification.from_email"),
			FromName:       v.GetString("notification.from_name"),
			ShadowAddress:  v.GetString("notification.shadow_address"),
			RoleMailboxes:  v.GetStringMapString("notification.role_mailboxes"),
		},
		Rewards: RewardsConfig{
			PointsPerClosure: v.GetInt("rewards.points_per_closure"),
		},
		LogLevel: v.GetString("log.level"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.Escalation.Interval <= 0 {
		return errors.New("ESCALATION_INTERVAL must be positive")
	}
	if c.Notification.WorkerInterval <= 0 {
		return errors.New("NOTIFICATION_WORKER_INTERVAL must be positive")
	}
	switch c.Notification.Channel {
	case "in_app", "email", "sms":
	default:
		return fmt.Errorf("NOTIFICATION_CHANNEL %q is not one of in_app, email, sms", c.Notification.Channel)
	}
	return nil
}

// InsecureSecret reports whether the JWT secret is still the shipped default
func (c *Config) InsecureSecret() bool {
	return c.Auth.JWTSecret == insecureDefaultSecret
}

// DSN returns the MySQL DSN. Times are parsed as UTC.
func (c *DatabaseConfig) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Addr returns host:port for the HTTP server
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}
