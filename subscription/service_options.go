package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger routes the service's structured logs through the given logger.
// By default the service logs to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithConfig applies environment-derived settings, see LoadConfig.
func WithConfig(cfg Config) ServiceOption {
	return func(s *service) {
		if cfg.DefaultActivator != "" {
			s.defaultActivator = cfg.DefaultActivator
		}
		if cfg.TestToken != "" {
			s.testToken = cfg.TestToken
		}
	}
}

// WithDefaultActivator overrides the identity recorded when Activate is
// called with an empty actor. Defaults to DefaultActivator.
func WithDefaultActivator(actor string) ServiceOption {
	return func(s *service) {
		if actor != "" {
			s.defaultActivator = actor
		}
	}
}

// WithClock replaces the time source. Tests use this to make timestamps
// deterministic; the default is time.Now in UTC.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}
