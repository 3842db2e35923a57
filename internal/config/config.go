package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blacklanternsecurity/trevorproxy/internal/platform"
)

// Load reads ~/.trevorproxy/config.yaml and returns the seeded Defaults. A
// missing file is not an error: it yields the built-in defaults.
func Load() (Defaults, error) {
	defaults := DefaultValues()

	data, err := os.ReadFile(platform.ConfigFile())
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("parse config: %w", err)
	}
	return defaults, nil
}
