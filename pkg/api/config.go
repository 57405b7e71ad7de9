package api

import "time"

// Config holds the HTTP server settings.
type Config struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port" validate:"min=0,max=65535"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" json:"idle_timeout"`

	// RequestTimeout bounds handler execution for the JSON API. Upload and
	// download routes are exempt; they stream for as long as the body lasts.
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// CORSAllowOrigin enables cross-origin responses for browser clients.
	// Empty disables CORS entirely. WebDAV verbs are included in the
	// advertised method list so browser-based DAV clients can preflight.
	CORSAllowOrigin string `mapstructure:"cors_allow_origin" json:"cors_allow_origin"`
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		// Streaming uploads and proxied downloads can run long.
		c.WriteTimeout = 30 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15 * time.Second
	}
}
