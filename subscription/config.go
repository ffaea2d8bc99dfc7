package subscription

import "github.com/dmitrymomot/marketkit/pkg/config"

// DefaultActivator is recorded as the activating identity when Activate is
// called without one. External provisioning callbacks activate on behalf of
// the platform, hence "system".
const DefaultActivator = "system"

// DefaultTestToken is the fixed landing-page token that short-circuits
// ResolveLayout into the canned test layout. Meant for local and offline
// verification only.
const DefaultTestToken = "foo"

// Config carries the tunable settings of the lifecycle service.
type Config struct {
	// DefaultActivator overrides the identity recorded when Activate is
	// called with an empty actor.
	DefaultActivator string `env:"SUBSCRIPTION_DEFAULT_ACTIVATOR" envDefault:"system"`

	// TestToken is the literal landing-page token routed to the canned
	// layout instead of the marketplace gateway.
	TestToken string `env:"SUBSCRIPTION_TEST_TOKEN" envDefault:"foo"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
