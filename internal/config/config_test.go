package config

import (
	"os"
	"path/filepath"
	"testing"

	"hostelcart/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
backend:
  base_url: "http://localhost:9000"
  api_key: "test_key"
journal:
  path: "test.db"
rooms:
  - id: 1
    name: "Dorm A"
    bed_count: 6
    short_term_price: 1000
    long_term_price: 800
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:9000" {
		t.Errorf("expected base_url http://localhost:9000, got %s", cfg.Backend.BaseURL)
	}

	if len(cfg.Rooms) != 1 || cfg.Rooms[0].ID != 1 {
		t.Errorf("expected 1 room with ID 1")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("BACKEND_KEY", "secret-from-env")

	yamlContent := `
backend:
  base_url: "http://localhost:9000"
  api_key: "${BACKEND_KEY}"
journal:
  path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backend.APIKey != "secret-from-env" {
		t.Errorf("expected env-expanded api key, got %s", cfg.Backend.APIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Backend: BackendConfig{BaseURL: "http://localhost"},
				Journal: JournalConfig{Path: "journal.db"},
			},
			wantErr: false,
		},
		{
			name: "missing backend url",
			cfg: Config{
				Journal: JournalConfig{Path: "journal.db"},
			},
			wantErr: true,
		},
		{
			name: "missing journal path",
			cfg: Config{
				Backend: BackendConfig{BaseURL: "http://localhost"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRooms(t *testing.T) {
	tests := []struct {
		name    string
		rooms   []models.Room
		wantErr bool
	}{
		{
			name:    "valid rooms",
			rooms:   []models.Room{{ID: 1, Name: "A", BedCount: 4}, {ID: 2, Name: "B", BedCount: 8}},
			wantErr: false,
		},
		{
			name:    "zero id",
			rooms:   []models.Room{{ID: 0, Name: "A", BedCount: 4}},
			wantErr: true,
		},
		{
			name:    "duplicate id",
			rooms:   []models.Room{{ID: 1, Name: "A", BedCount: 4}, {ID: 1, Name: "B", BedCount: 2}},
			wantErr: true,
		},
		{
			name:    "non-positive bed count",
			rooms:   []models.Room{{ID: 3, Name: "C", BedCount: 0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRooms(tt.rooms)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRooms() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{API: APIConfig{Enabled: true, PrometheusEnabled: true}}
	cfg.applyDefaults()

	if cfg.API.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.PrometheusPort != 9090 {
		t.Errorf("expected default prometheus port 9090, got %d", cfg.API.PrometheusPort)
	}
	if !cfg.API.Auth.Enabled {
		t.Errorf("expected auth enabled by default when API is enabled")
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
	if cfg.Backend.TimeoutSeconds != models.DefaultBackendTimeout {
		t.Errorf("expected default backend timeout, got %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Session.TTLSeconds != models.DefaultSessionTTL {
		t.Errorf("expected default session ttl, got %d", cfg.Session.TTLSeconds)
	}
}
