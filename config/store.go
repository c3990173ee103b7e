package config

import (
	"fmt"
	"strings"
)

// StoreBackend selects where client state (token, lockout counters, throttle timestamps)
// is persisted.
type StoreBackend string

const (
	// StoreBackendMemory keeps state for the life of the process only.
	StoreBackendMemory StoreBackend = "memory"
	// StoreBackendFile persists state to a JSON file in the user's home directory.
	StoreBackendFile StoreBackend = "file"
	// StoreBackendRedis persists state in Redis, shared across processes.
	StoreBackendRedis StoreBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for StoreBackend.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "file", "redis":
		*b = StoreBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid StoreBackend: %q (valid options: memory, file, redis)", v)
	}
}

// StoreConfig contains client state store configuration.
type StoreConfig struct {
	Backend StoreBackend `env:"STORE_BACKEND" envDefault:"file"`

	// FilePath is the JSON state file; empty means $HOME/.authsession/state.json.
	FilePath string `env:"STORE_FILE_PATH"`

	// KeyPrefix namespaces keys in Redis.
	KeyPrefix string `env:"STORE_KEY_PREFIX" envDefault:"authsession:"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Backend == "" {
		s.Backend = StoreBackendFile
	}
	s.FilePath = strings.TrimSpace(s.FilePath)
	if s.KeyPrefix = strings.TrimSpace(s.KeyPrefix); s.KeyPrefix == "" {
		s.KeyPrefix = "authsession:"
	}
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
