package connection

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/boardsync/pkg/domain/model"
)

// Config holds the timing of the connection state machine
type Config struct {
	// BaseURL is the server root; the socket path and filter query are
	// appended per connection
	BaseURL string
	// User is sent as the authorization query parameter
	User string

	ConnectTimeout time.Duration
	PingInterval   time.Duration
	// IdleTimeout presumes the connection dead when no frame arrived for
	// this long. Zero disables it.
	IdleTimeout time.Duration

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	MaxAttempts int
}

// DefaultConfig returns the timing used by the web client
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		PingInterval:   15 * time.Second,
		IdleTimeout:    45 * time.Second,
		BaseDelay:      3 * time.Second,
		MaxDelay:       60 * time.Second,
		Multiplier:     1.5,
		MaxAttempts:    10,
	}
}

// Validate checks that every timer has a usable duration
func (c Config) Validate() error {
	if _, err := model.ClientsURL(c.BaseURL, c.User, model.FilterContext{}); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "invalid base URL", goerr.V("cause", err.Error()))
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"ping_interval":   c.PingInterval,
		"base_delay":      c.BaseDelay,
		"max_delay":       c.MaxDelay,
	} {
		if d <= 0 {
			return goerr.Wrap(ErrInvalidConfig, "duration must be positive", goerr.V("field", name), goerr.V("value", d))
		}
	}
	if c.IdleTimeout < 0 {
		return goerr.Wrap(ErrInvalidConfig, "idle timeout must not be negative", goerr.V("value", c.IdleTimeout))
	}
	if c.MaxDelay < c.BaseDelay {
		return goerr.Wrap(ErrInvalidConfig, "max delay is shorter than base delay",
			goerr.V("base_delay", c.BaseDelay), goerr.V("max_delay", c.MaxDelay))
	}
	if c.Multiplier < 1 {
		return goerr.Wrap(ErrInvalidConfig, "multiplier must be at least 1", goerr.V("value", c.Multiplier))
	}
	if c.MaxAttempts < 1 {
		return goerr.Wrap(ErrInvalidConfig, "max attempts must be at least 1", goerr.V("value", c.MaxAttempts))
	}
	return nil
}
