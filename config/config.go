package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - api.go: Backend API endpoint configuration
//   - health.go: Health coordinator and observer configuration
//   - session.go: Session, refresh watcher, lockout and 2FA configuration
//   - store.go: Client state store and Redis configuration
//   - services.go: Components run by the watch command
type AppConfig struct {
	// IsDev controls development mode behavior (debug logging, relaxed defaults).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Backend API configuration
	API APIConfig

	// Reachability configuration
	Health   HealthConfig   `envPrefix:"HEALTH_"`
	Observer ObserverConfig `envPrefix:"OBSERVER_"`

	// Platform link monitor
	Connectivity ConnectivityConfig `envPrefix:"CONNECTIVITY_"`

	// Session lifecycle configuration
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	Lockout   LockoutConfig   `envPrefix:"LOGIN_LOCKOUT_"`
	TwoFactor TwoFactorConfig `envPrefix:"TWO_FACTOR_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`

	// Client state storage
	Store StoreConfig
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Components started by the watch command
	Components string `env:"WATCH_COMPONENTS" envDefault:"health,observer,recovery,refresh"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.API.Sanitize()

	c.Health.Sanitize()
	c.Observer.Sanitize()
	c.Connectivity.Sanitize()

	c.Refresh.Sanitize()
	c.Lockout.Sanitize()
	c.TwoFactor.Sanitize()
	c.Session.Sanitize()

	c.Store.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledComponents returns the components enabled for the watch command.
func (c *AppConfig) GetEnabledComponents() (map[Component]bool, error) {
	return ParseComponents(c.Components)
}

// IsComponentEnabled reports whether the named watch component is enabled.
func (c *AppConfig) IsComponentEnabled(component Component) bool {
	components, err := c.GetEnabledComponents()
	if err != nil {
		return false
	}
	return components[component]
}
