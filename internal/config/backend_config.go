package config

import "time"

// BackendConfig describes how to reach the application backend, the
// authoritative owner of user records, roles and bearer tokens.
type BackendConfig interface {
	GetBackendBaseURL() string
	GetBackendTimeout() time.Duration
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetBackendBaseURL() string {
	return GetEnv("BACKEND_BASE_URL", "http://localhost:9090")
}

func (Backend) GetBackendTimeout() time.Duration {
	return 10 * time.Second
}
