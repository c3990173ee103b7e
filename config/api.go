package config

import (
	"strings"
	"time"
)

const defaultHealthPath = "/health"

// APIConfig contains the backend REST API configuration.
type APIConfig struct {
	// BaseURL is the API base, e.g. "https://app.example.com/api". Paths such as
	// /auth/login are appended to it.
	BaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8080/api"`

	// Timeout bounds every request made by the client.
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"15s"`

	// HealthPath is the reachability endpoint relative to BaseURL.
	HealthPath string `env:"API_HEALTH_PATH" envDefault:"/health"`

	// UserAgent is sent with every request and reported in security info.
	UserAgent string `env:"API_USER_AGENT" envDefault:"authsession"`
}

// Sanitize applies guardrails to API configuration values.
func (a *APIConfig) Sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.Timeout <= 0 {
		a.Timeout = 15 * time.Second
	}
	a.HealthPath = strings.TrimSpace(a.HealthPath)
	if a.HealthPath == "" {
		a.HealthPath = defaultHealthPath
	}
	if !strings.HasPrefix(a.HealthPath, "/") {
		a.HealthPath = "/" + a.HealthPath
	}
	if a.UserAgent = strings.TrimSpace(a.UserAgent); a.UserAgent == "" {
		a.UserAgent = "authsession"
	}
}
