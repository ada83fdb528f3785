package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database    DatabaseConfig    `yaml:"database"`
	DocStore    DocStoreConfig    `yaml:"docstore"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Collections CollectionsConfig `yaml:"collections"`
	Redis       RedisConfig       `yaml:"redis"`
	Web         WebConfig         `yaml:"web"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Report      ReportConfig      `yaml:"report"`
	Log         LogConfig         `yaml:"log"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DocStoreConfig selects where the users/tasks/category documents live.
// "sql" keeps them in the database above; "mongo" reads them from MongoDB.
type DocStoreConfig struct {
	Backend      string        `yaml:"backend"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type MongoConfig struct {
	URI      string        `yaml:"uri"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CollectionsConfig struct {
	Users      string `yaml:"users"`
	Tasks      string `yaml:"tasks"`
	Categories string `yaml:"categories"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	SecureCookies bool   `yaml:"secure_cookies"`
	AdminEmail    string `yaml:"admin_email"`
	AdminName     string `yaml:"admin_name"`
	AdminPassword string `yaml:"admin_password"`
}

type MessagingConfig struct {
	Backend             string        `yaml:"backend"` // "kafka", "mqtt" or "none"
	Kafka               KafkaConfig   `yaml:"kafka"`
	MQTT                MQTTConfig    `yaml:"mqtt"`
	EventsTopic         string        `yaml:"events_topic"`
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout"`
	BreakerMaxFailures  uint32        `yaml:"breaker_max_failures"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type ReportConfig struct {
	TimeZone        string `yaml:"time_zone"`
	RefreshSchedule string `yaml:"refresh_schedule"`
	OverdueLimit    int    `yaml:"overdue_limit"`
	LeaderboardSize int    `yaml:"leaderboard_size"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`   // empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "taskadmin.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "taskadmin",
				User:     "taskadmin",
				Password: "",
				SSLMode:  "disable",
			},
		},
		DocStore: DocStoreConfig{
			Backend:      "sql",
			PollInterval: 5 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "taskapp",
			Timeout:  10 * time.Second,
		},
		Collections: CollectionsConfig{
			Users:      "users",
			Tasks:      "tasks",
			Categories: "category",
		},
		Redis: RedisConfig{
			Address:   "localhost:6379",
			Password:  "",
			DB:        0,
			KeyPrefix: "taskadmin",
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			SessionSecret: "change-me-in-production",
			AdminEmail:    "admin@example.com",
			AdminName:     "Administrator",
			AdminPassword: "admin",
		},
		Messaging: MessagingConfig{
			Backend: "kafka",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "taskadmin",
			},
			EventsTopic:         "taskadmin.events",
			OutboxDrainInterval: 5 * time.Second,
			BreakerTimeout:      30 * time.Second,
			BreakerMaxFailures:  5,
		},
		Report: ReportConfig{
			TimeZone:        "Local",
			RefreshSchedule: "@every 1m",
			OverdueLimit:    20,
			LeaderboardSize: 5,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides secrets and connection strings from TASKADMIN_* variables.
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("TASKADMIN_SESSION_SECRET", &c.Web.SessionSecret)
	setString("TASKADMIN_ADMIN_EMAIL", &c.Web.AdminEmail)
	setString("TASKADMIN_ADMIN_PASSWORD", &c.Web.AdminPassword)
	setString("TASKADMIN_DB_DRIVER", &c.Database.Driver)
	setString("TASKADMIN_SQLITE_PATH", &c.Database.SQLite.Path)
	setString("TASKADMIN_POSTGRES_PASSWORD", &c.Database.Postgres.Password)
	setString("TASKADMIN_DOCSTORE", &c.DocStore.Backend)
	setString("TASKADMIN_MONGO_URI", &c.Mongo.URI)
	setString("TASKADMIN_REDIS_ADDRESS", &c.Redis.Address)
	setString("TASKADMIN_REDIS_PASSWORD", &c.Redis.Password)
	setString("TASKADMIN_MESSAGING", &c.Messaging.Backend)
	setString("TASKADMIN_TIME_ZONE", &c.Report.TimeZone)
	setString("TASKADMIN_LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("TASKADMIN_KAFKA_BROKERS"); v != "" {
		c.Messaging.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TASKADMIN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Web.Port = p
		}
	}
}

// Location resolves the report time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	switch c.Report.TimeZone {
	case "", "Local", "local":
		return time.Local
	}
	loc, err := time.LoadLocation(c.Report.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
