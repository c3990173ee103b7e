// Package mocks provides mock implementations of the hexagonal ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	prober := mocks.NewMockHealthProber(ctrl)
//	prober.EXPECT().Probe(gomock.Any()).Return(nil)
package mocks

// Generate mock for HealthProber interface from internal/ports package.
// This creates MockHealthProber with methods for all HealthProber interface methods:
// Probe
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=health_prober_mock.go github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports HealthProber

// Generate mock for TwoFactorAPI interface from internal/ports package.
// This creates MockTwoFactorAPI with methods for all TwoFactorAPI interface methods:
// Enable, Verify, Disable, BackupCodes, RegenerateBackupCodes, Status, VerifyLogin
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=two_factor_api_mock.go github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports TwoFactorAPI

// Generate mock for KeyValueStore interface from internal/ports package.
// This creates MockKeyValueStore with methods for all KeyValueStore interface methods:
// Get, Set, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=key_value_store_mock.go github.com/nguyenhoangdanh/dnsecure-sub000/internal/ports KeyValueStore
