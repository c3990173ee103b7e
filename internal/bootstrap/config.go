package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nguyenhoangdanh/dnsecure-sub000/config"
)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateComponentConfig validates that at least one watch component is enabled.
func ValidateComponentConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("component config is required")
	}
	components, err := cfg.GetEnabledComponents()
	if err != nil {
		return fmt.Errorf("invalid component configuration: %w", err)
	}

	if len(components) == 0 {
		return errors.New("no components enabled")
	}

	return nil
}

// GetEnabledComponents returns the enabled watch component names in a stable order.
func GetEnabledComponents(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	components, err := cfg.GetEnabledComponents()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	names := make([]string, 0, len(components))
	for c := range components {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}
