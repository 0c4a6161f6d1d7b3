// This test file verifies the configuration loading logic using Viper.

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		// Ensure no config file exists for this test
		os.Remove("config.yml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if default values are set
		if cfg.ERP.BaseURL != "http://localhost:8000" {
			t.Errorf("Expected default ERP base URL, got '%s'", cfg.ERP.BaseURL)
		}
		if cfg.Socket.Path != "/socket.io" {
			t.Errorf("Expected default socket path '/socket.io', got '%s'", cfg.Socket.Path)
		}
		if cfg.Poll.Interval != 1500*time.Millisecond {
			t.Errorf("Expected default poll interval 1.5s, got %v", cfg.Poll.Interval)
		}
		if cfg.Tracker.MaxDuration != 0 {
			t.Errorf("Expected tracking to be unbounded by default, got %v", cfg.Tracker.MaxDuration)
		}
	})

	t.Run("Loads from config file", func(t *testing.T) {
		// Create a temporary config file for this test
		configContent := `
erp:
  base_url: "https://erp.example.com"
socket:
  origin: "https://erp.example.com:9000"
poll:
  interval: 3s
tracker:
  max_duration: 10m
unknown_setting: "should be ignored"
`
		// Create the config file in the current directory so Viper can find it.
		// Note: `t.TempDir()` is not used here because Viper looks in the CWD.
		configPath := "config.yml"
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}
		// Clean up the file after the test
		defer os.Remove(configPath)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if values from the file were loaded
		if cfg.ERP.BaseURL != "https://erp.example.com" {
			t.Errorf("Expected base URL from file, got '%s'", cfg.ERP.BaseURL)
		}
		if cfg.Socket.Origin != "https://erp.example.com:9000" {
			t.Errorf("Expected socket origin from file, got '%s'", cfg.Socket.Origin)
		}
		if cfg.Poll.Interval != 3*time.Second {
			t.Errorf("Expected poll interval 3s, got %v", cfg.Poll.Interval)
		}
		if cfg.Tracker.MaxDuration != 10*time.Minute {
			t.Errorf("Expected max duration 10m, got %v", cfg.Tracker.MaxDuration)
		}
		if cfg.HTTP.Timeout != 20*time.Second {
			t.Errorf("Expected default http timeout of 20s, got %v", cfg.HTTP.Timeout)
		}
	})

	t.Run("Environment overrides file", func(t *testing.T) {
		t.Setenv("BOM_ERP_BASE_URL", "http://env-erp:8000")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}
		if cfg.ERP.BaseURL != "http://env-erp:8000" {
			t.Errorf("Expected env override, got '%s'", cfg.ERP.BaseURL)
		}
	})
}
