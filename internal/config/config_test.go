package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"hairstudio/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("STUDIO_SMTP_HOST", "smtp.example.com")

	yamlContent := `
database:
  path: "test.db"
notifications:
  smtp:
    host: "${STUDIO_SMTP_HOST}"
schedule:
  day_start: "09:00"
  lock_ttl: 5s
services:
  - id: "haircut"
    name: "Haircut"
    duration: 60
    price: 1500
    is_active: true
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected default driver sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Notifications.SMTP.Host != "smtp.example.com" {
		t.Errorf("expected expanded smtp host, got %s", cfg.Notifications.SMTP.Host)
	}
	if cfg.Schedule.DayStart != "09:00" || cfg.Schedule.DayEnd != models.DefaultDayEnd {
		t.Errorf("unexpected schedule window %s-%s", cfg.Schedule.DayStart, cfg.Schedule.DayEnd)
	}
	if cfg.Schedule.LockTTL != 5*time.Second {
		t.Errorf("expected lock ttl 5s, got %s", cfg.Schedule.LockTTL)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].ID != "haircut" {
		t.Errorf("expected 1 service with ID haircut")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("database:\n  driver: cassandra\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected validation error for unknown driver")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "memory driver", mutate: func(c *Config) { c.Database.Driver = DriverMemory; c.Database.Path = "" }, wantErr: false},
		{name: "missing sqlite path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "mongo without uri", mutate: func(c *Config) { c.Database.Driver = DriverMongo }, wantErr: true},
		{name: "mongo with uri", mutate: func(c *Config) {
			c.Database.Driver = DriverMongo
			c.Database.Mongo.URI = "mongodb://localhost:27017"
		}, wantErr: false},
		{name: "malformed hours", mutate: func(c *Config) { c.Schedule.DayEnd = "5pm" }, wantErr: true},
		{name: "start after end", mutate: func(c *Config) { c.Schedule.DayStart = "18:00" }, wantErr: true},
		{name: "negative buffer", mutate: func(c *Config) { c.Schedule.BufferMinutes = -5 }, wantErr: true},
		{name: "duplicate service id", mutate: func(c *Config) {
			c.Services = []models.Service{{ID: "cut", Duration: 30}, {ID: "cut", Duration: 60}}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Schedule.BufferMinutes != models.BufferMinutes {
		t.Errorf("expected default buffer %d, got %d", models.BufferMinutes, cfg.Schedule.BufferMinutes)
	}
	if cfg.Schedule.BookingDuration != 60 || cfg.Schedule.ListingDuration != 30 {
		t.Errorf("unexpected default durations %d/%d", cfg.Schedule.BookingDuration, cfg.Schedule.ListingDuration)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestValidateServices(t *testing.T) {
	tests := []struct {
		name     string
		services []models.Service
		wantErr  bool
	}{
		{
			name:     "Valid services",
			services: []models.Service{{ID: "cut", Name: "Cut", Duration: 45}, {ID: "color", Name: "Color", Duration: 120}},
			wantErr:  false,
		},
		{
			name:     "Empty ID",
			services: []models.Service{{Name: "Cut", Duration: 45}},
			wantErr:  true,
		},
		{
			name:     "Zero duration",
			services: []models.Service{{ID: "cut", Name: "Cut"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServices(tt.services)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServices() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
