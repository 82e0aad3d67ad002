package config

import (
	"errors"
	"fmt"
	"os"

	"hostelcart/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Logging LoggingConfig `yaml:"logging"`
	Backend BackendConfig `yaml:"backend"`
	Redis   RedisConfig   `yaml:"redis"`
	Journal JournalConfig `yaml:"journal"`
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Rooms   []models.Room `yaml:"rooms"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// BackendConfig points at the external booking backend the checkout core
// orchestrates against.
type BackendConfig struct {
	BaseURL             string  `yaml:"base_url"`
	APIKey              string  `yaml:"api_key"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	RPS                 float64 `yaml:"rps"`
	Burst               int     `yaml:"burst"`
	AvailabilityCacheTTL int    `yaml:"availability_cache_ttl"` // seconds
	MaxRetries          int     `yaml:"max_retries"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type JournalConfig struct {
	Path       string `yaml:"path"`
	ExportPath string `yaml:"export_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`

	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SessionConfig struct {
	TTLSeconds         int `yaml:"ttl_seconds"`
	SnapshotTTLSeconds int `yaml:"snapshot_ttl_seconds"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base_url is required")
	}

	if c.Journal.Path == "" {
		return errors.New("journal path is required")
	}

	return ValidateRooms(c.Rooms)
}

func ValidateRooms(rooms []models.Room) error {
	// Check for duplicate room IDs and impossible capacities
	roomIDs := make(map[int64]bool)
	for _, room := range rooms {
		if room.ID == 0 {
			return fmt.Errorf("room '%s' has invalid ID 0", room.Name)
		}
		if roomIDs[room.ID] {
			return fmt.Errorf("duplicate room ID found: %d", room.ID)
		}
		if room.BedCount <= 0 {
			return fmt.Errorf("room '%s' has non-positive bed count", room.Name)
		}
		roomIDs[room.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.PrometheusEnabled && c.API.PrometheusPort == 0 {
		c.API.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled && c.API.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = models.DefaultBackendTimeout
	}
	if c.Backend.RPS == 0 {
		c.Backend.RPS = models.DefaultRateLimitRPS
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = models.DefaultRateLimitBurst
	}
	if c.Backend.AvailabilityCacheTTL == 0 {
		c.Backend.AvailabilityCacheTTL = models.DefaultAvailabilityCacheTTL
	}

	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = models.DefaultSessionTTL
	}
	if c.Session.SnapshotTTLSeconds == 0 {
		c.Session.SnapshotTTLSeconds = models.DefaultSnapshotTTL
	}
}
