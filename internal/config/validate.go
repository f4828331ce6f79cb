package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
// Mode is checked first: an unsupported mode must fail before anything
// touches the network.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	validModes := []string{ModePrivate, ModeLivechat}
	if !slices.Contains(validModes, cfg.Backend.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "backend.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validModes, cfg.Backend.Mode),
		})
	}

	if cfg.Backend.URL == "" {
		issues = append(issues, ValidationIssue{
			Path:    "backend.url",
			Message: "backend URL is required",
		})
	}

	switch cfg.Backend.Mode {
	case ModePrivate:
		if cfg.Backend.Private.Username == "" {
			issues = append(issues, ValidationIssue{
				Path:    "backend.private.username",
				Message: "username is required in private mode",
			})
		}
		if cfg.Backend.Private.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "backend.private.password",
				Message: "password is required in private mode",
			})
		}
		if cfg.Backend.Private.Channel == "" {
			issues = append(issues, ValidationIssue{
				Path:    "backend.private.channel",
				Message: "channel id is required in private mode",
			})
		}
	case ModeLivechat:
		if cfg.Backend.Livechat.Token == "" {
			issues = append(issues, ValidationIssue{
				Path:    "backend.livechat.token",
				Message: "visitor token is required in livechat mode",
			})
		}
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace", ""}
	if !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("unknown log level %q", cfg.Logging.Level),
		})
	}

	return issues
}
