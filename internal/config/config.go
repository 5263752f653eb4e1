package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the meter definition file: which meters are known, under which
// name, and which driver decodes them.
type Config struct {
	Meters []Meter `yaml:"meters"`
}

// Meter is one configured meter.
type Meter struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	ID     string `yaml:"id"`
}

// Load reads and validates a YAML meter definition file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	for i, m := range cfg.Meters {
		if m.ID == "" {
			return Config{}, fmt.Errorf("config: meter %d (%q) has no id", i, m.Name)
		}
		cfg.Meters[i].ID = strings.ToUpper(m.ID)
	}
	return cfg, nil
}

// Lookup returns the configured meter for an EN 13757 display-format ID.
func (c Config) Lookup(id string) (Meter, bool) {
	id = strings.ToUpper(id)
	for _, m := range c.Meters {
		if m.ID == id {
			return m, true
		}
	}
	return Meter{}, false
}
