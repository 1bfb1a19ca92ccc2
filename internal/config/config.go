package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the top-level engine.yaml configuration.
type EngineConfig struct {
	Version int `yaml:"version"`
	Engine  struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	} `yaml:"engine"`
	Settings struct {
		// Variant selects the styled body-imagery asset family.
		Variant string  `yaml:"variant"`
		Theme   string  `yaml:"theme"`
		Volume  float64 `yaml:"volume"`
	} `yaml:"settings"`
	Network struct {
		APIPort  int `yaml:"api_port"`
		MQTTPort int `yaml:"mqtt_port"`
		DBPort   int `yaml:"db_port"`
	} `yaml:"network"`
	Assets struct {
		PathsDir   string `yaml:"paths_dir"`
		ScriptsDir string `yaml:"scripts_dir"`
	} `yaml:"assets"`
}

// APIPort returns the configured API port, defaulting to 8080 if not set.
func (c *EngineConfig) APIPort() int {
	if c.Network.APIPort == 0 {
		return 8080
	}
	return c.Network.APIPort
}

// PathsDir returns the path-asset directory, defaulting to assets/paths.
func (c *EngineConfig) PathsDir() string {
	if c.Assets.PathsDir == "" {
		return "assets/paths"
	}
	return c.Assets.PathsDir
}

// ScriptsDir returns the script directory, defaulting to assets/scripts.
func (c *EngineConfig) ScriptsDir() string {
	if c.Assets.ScriptsDir == "" {
		return "assets/scripts"
	}
	return c.Assets.ScriptsDir
}

// Volume returns the configured default volume, defaulting to 0.8.
func (c *EngineConfig) Volume() float64 {
	if c.Settings.Volume == 0 {
		return 0.8
	}
	return c.Settings.Volume
}

// LoadEngineConfig reads and validates engine.yaml.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported engine.yaml version: %d", cfg.Version)
	}

	return &cfg, nil
}
