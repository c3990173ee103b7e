package session

import (
	"runtime"

	"github.com/google/uuid"

	domainauth "github.com/nguyenhoangdanh/dnsecure-sub000/internal/domain/auth"
)

// NewDeviceFingerprint returns a random identifier for this client installation. Callers
// persist it themselves when they want it stable across runs.
func NewDeviceFingerprint() string {
	return uuid.NewString()
}

// DefaultSecurityInfo describes the running process.
func DefaultSecurityInfo(userAgent, fingerprint string) domainauth.SecurityInfo {
	return domainauth.SecurityInfo{
		DeviceFingerprint: fingerprint,
		UserAgent:         userAgent,
		Platform:          runtime.GOOS + "/" + runtime.GOARCH,
	}
}
