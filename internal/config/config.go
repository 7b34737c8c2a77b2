package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabasePath  string `mapstructure:"database_path" yaml:"database_path"`
	FilesDir      string `mapstructure:"files_dir" yaml:"files_dir"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// ClientQueueSize bounds per-connection event queues; events to clients
	// that fall behind are dropped rather than blocking the hub.
	ClientQueueSize int `mapstructure:"client_queue_size" yaml:"client_queue_size"`

	// AdminFanout selects how the team-inbox aggregate and typing
	// notifications treat multiple admin accounts: "first" or "all".
	AdminFanout string `mapstructure:"admin_fanout" yaml:"admin_fanout"`

	// MessageHistoryLimit caps the initial message listing.
	MessageHistoryLimit int `mapstructure:"message_history_limit" yaml:"message_history_limit"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                ":8080",
		ReadHeaderTimeout:   5 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		DatabasePath:        "tis.db",
		FilesDir:            "files",
		PublicBaseURL:       "http://localhost:8080",
		JWTSecret:           "",
		JWTIssuer:           "tis-server",
		JWTAudience:         "tis-client",
		TokenTTL:            24 * time.Hour,
		LogLevel:            "info",
		ClientQueueSize:     64,
		AdminFanout:         "first",
		MessageHistoryLimit: 200,
	}
}

// AllAdmins reports whether admin-targeted fan-out addresses every admin
// account instead of only the first one found by role.
func (c Config) AllAdmins() bool {
	return c.AdminFanout == "all"
}
