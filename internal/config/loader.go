package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches ${NAME} and ${NAME:-fallback} references in raw
// config text.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Default is the configuration for a host started without a config
// file: default approval mode, prompts enabled, no persisted rules, no
// audit trail, no HTTP surface.
func Default() *Config {
	return &Config{Version: "1"}
}

// Load reads a YAML config file, substitutes environment references,
// and decodes it. Substitution happens on the raw bytes before YAML
// decoding, so references work in any field.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, missing := substituteEnv(raw)
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: %s references undefined variables: %s",
			path, strings.Join(missing, ", "))
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// substituteEnv resolves ${NAME} and ${NAME:-fallback} references
// against the process environment. A reference without a fallback
// whose variable is unset is left in place and its name reported in
// missing.
func substituteEnv(raw []byte) (out []byte, missing []string) {
	out = envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		groups := envRef.FindSubmatch(ref)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if fallback := groups[2]; fallback != nil {
			return fallback
		}

		missing = append(missing, name)
		return ref
	})
	return out, missing
}
