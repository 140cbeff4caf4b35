// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yshino/melodeck/internal/app/player"
)

// Config represents the application configuration.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Player PlayerConfig `yaml:"player"`
	Audio  AudioConfig  `yaml:"audio"`
	Log    LogConfig    `yaml:"log"`
}

// APIConfig represents the music backend connection.
type APIConfig struct {
	BaseURL    string `yaml:"base_url" validate:"required,url"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
}

// PlayerConfig represents playback defaults.
type PlayerConfig struct {
	Volume             float64 `yaml:"volume" default:"0.8" validate:"gte=0,lte=1"`
	Mode               string  `yaml:"mode" default:"sequential" validate:"oneof=sequential shuffle repeat_one repeat_all"`
	ProgressIntervalMs int     `yaml:"progress_interval_ms" default:"1000" validate:"gte=100,lte=10000"`
}

// AudioConfig represents the audio output backend selection.
type AudioConfig struct {
	Backend  string         `yaml:"backend" default:"beep" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Output string `yaml:"output" default:"stdout"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MELODECK_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("MELODECK_USERNAME"); v != "" {
		c.API.Username = v
	}
	if v := os.Getenv("MELODECK_PASSWORD"); v != "" {
		c.API.Password = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// PlayMode returns the configured default play mode.
func (c *Config) PlayMode() (player.PlayMode, error) {
	return player.ParsePlayMode(c.Player.Mode)
}
