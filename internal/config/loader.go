package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and tokens can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Backend.Private.Password = expandEnvVars(cfg.Backend.Private.Password)
	cfg.Backend.Livechat.Token = expandEnvVars(cfg.Backend.Livechat.Token)
}

// applyEnvOverrides lets the environment win over file values for the
// fields most often set per-deployment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATBRIDGE_BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("CHATBRIDGE_MODE"); v != "" {
		cfg.Backend.Mode = v
	}
	if v := os.Getenv("CHATBRIDGE_PASSWORD"); v != "" {
		cfg.Backend.Private.Password = v
	}
	if v := os.Getenv("CHATBRIDGE_VISITOR_TOKEN"); v != "" {
		cfg.Backend.Livechat.Token = v
	}
	if v := os.Getenv("CHATBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. A missing file produces defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}
