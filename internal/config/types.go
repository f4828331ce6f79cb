// Package config loads and validates the chatbridge configuration.
package config

// Operating modes for the backend session.
const (
	ModePrivate  = "private"
	ModeLivechat = "livechat"
)

// Config is the root configuration for chatbridge.
type Config struct {
	Backend BackendConfig `yaml:"backend,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Archive ArchiveConfig `yaml:"archive,omitempty"`
}

// BackendConfig describes the remote chat backend and the session mode.
type BackendConfig struct {
	URL                string         `yaml:"url"`
	Mode               string         `yaml:"mode"` // "private" | "livechat"
	CallTimeoutSeconds int            `yaml:"callTimeoutSeconds,omitempty"`
	Private            PrivateConfig  `yaml:"private,omitempty"`
	Livechat           LivechatConfig `yaml:"livechat,omitempty"`
}

// PrivateConfig carries credentials for private mode: an existing user
// and a fixed channel to bridge.
type PrivateConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel,omitempty"` // fixed room id
}

// LivechatConfig carries the anonymous visitor identity for livechat mode.
type LivechatConfig struct {
	// Token is the device/visitor identifier. It persists across sessions
	// and doubles as the room id until a livechat room exists.
	Token      string `yaml:"token,omitempty"`
	Department string `yaml:"department,omitempty"`
	Name       string `yaml:"name,omitempty"`
	Email      string `yaml:"email,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// ArchiveConfig controls the local transcript archive. An empty path
// disables archiving.
type ArchiveConfig struct {
	Path string `yaml:"path,omitempty"`
}
