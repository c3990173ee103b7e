package config

import (
	"errors"
	"fmt"
	"strings"
)

// Component is a long-running part of the client started by the watch command.
type Component string

const (
	// ComponentHealth runs the coordinator's periodic health checks.
	ComponentHealth Component = "health"
	// ComponentObserver runs an observer with its own polling cadence and reconnect checks.
	ComponentObserver Component = "observer"
	// ComponentRecovery runs offline recovery, reconnection backoff and status notices.
	ComponentRecovery Component = "recovery"
	// ComponentRefresh keeps the token refresh watcher armed for a restored session.
	ComponentRefresh Component = "refresh"
	// ComponentConnectivity runs the dial-based platform connectivity monitor.
	ComponentConnectivity Component = "connectivity"
)

// ValidComponents returns all valid component names.
func ValidComponents() []Component {
	return []Component{
		ComponentHealth,
		ComponentObserver,
		ComponentRecovery,
		ComponentRefresh,
		ComponentConnectivity,
	}
}

// ParseComponents parses a comma-delimited string of component names and returns the enabled
// components. It returns an error for unknown names.
func ParseComponents(componentsStr string) (map[Component]bool, error) {
	components := make(map[Component]bool)

	if componentsStr == "" {
		return components, errors.New("at least one component must be specified")
	}

	for part := range strings.SplitSeq(componentsStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}

		c := Component(name)
		switch c {
		case ComponentHealth,
			ComponentObserver,
			ComponentRecovery,
			ComponentRefresh,
			ComponentConnectivity:
			components[c] = true
		default:
			return nil, fmt.Errorf(
				"invalid component name: %q (valid options: health, observer, recovery, refresh, connectivity)",
				name,
			)
		}
	}

	if len(components) == 0 {
		return nil, errors.New("at least one valid component must be specified")
	}

	return components, nil
}
