// This file defines the configuration structure for the application.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	ERP struct {
		BaseURL  string `mapstructure:"base_url"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"erp"`
	Socket struct {
		Origin string `mapstructure:"origin"`
		Path   string `mapstructure:"path"`
	} `mapstructure:"socket"`
	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"poll"`
	Tracker struct {
		// MaxDuration of 0 lets a job be tracked indefinitely.
		MaxDuration time.Duration `mapstructure:"max_duration"`
	} `mapstructure:"tracker"`
	HTTP struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	Watch struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"watch"`
	Mock struct {
		Port int           `mapstructure:"port"`
		Step time.Duration `mapstructure:"step"`
	} `mapstructure:"mock"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	// A .env file is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")    // or "yaml"
	v.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// e.g., BOM_ERP_BASE_URL will override the `erp.base_url` key.
	v.SetEnvPrefix("BOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("erp.base_url", "http://localhost:8000")
	v.SetDefault("erp.username", "")
	v.SetDefault("erp.password", "")
	v.SetDefault("socket.origin", "http://localhost:9000")
	v.SetDefault("socket.path", "/socket.io")
	v.SetDefault("poll.interval", 1500*time.Millisecond)
	v.SetDefault("tracker.max_duration", time.Duration(0))
	v.SetDefault("http.timeout", 20*time.Second)
	v.SetDefault("watch.dir", "./inbox")
	v.SetDefault("mock.port", 8000)
	v.SetDefault("mock.step", 500*time.Millisecond)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
