package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/user/myreplicate/pkg/etlerr"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{(\w+)(?::-([^}]*))?\}`)

// substituteEnvVars expands ${VAR} / ${VAR:-default} references against
// the process environment, leaving an unresolved reference with no
// default untouched so a missing required variable surfaces as a YAML
// parse or validation error further down rather than silently vanishing.
func substituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(m string) string {
		groups := envVarPattern.FindStringSubmatch(m)
		name := groups[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if strings.Contains(m, ":-") {
			return groups[2]
		}
		return m
	})
}

// Load reads path, applies environment substitution, decodes the YAML
// tree, and validates it. The returned Config is ready for the
// supervisor to build workers from.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &etlerr.ConfigurationError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}

	expanded := substituteEnvVars(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, &etlerr.ConfigurationError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
