package config

import "sync"

// UpstreamBase holds the upstream base URL, which is mutable at runtime
// through the management API. Safe for concurrent use.
type UpstreamBase struct {
	mu   sync.RWMutex
	base string
}

// NewUpstreamBase creates a holder seeded with the given base URL. An empty
// initial value is allowed; forwarding is unavailable until one is set.
func NewUpstreamBase(initial string) *UpstreamBase {
	return &UpstreamBase{base: initial}
}

// Get returns the current base URL, or empty if none is configured.
func (u *UpstreamBase) Get() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.base
}

// Set replaces the base URL. Takes effect for subsequent requests only.
func (u *UpstreamBase) Set(base string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.base = base
}
