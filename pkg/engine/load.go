package engine

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file on top of the defaults.
// ${VAR} references are expanded from the environment, which keeps
// credentials such as the insight API key out of the file. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	if path == "" {
		return config, nil
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(yamlFile))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	config.ClickHouse.SetDefaults()

	return config, nil
}
