package config

import "sync"

// Holder provides goroutine-safe access to the current *Config and the
// immutable path it was loaded from. The session provider, the orchestrator
// and the scheduler all read through one Holder, so a reload is a single
// Update call.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config. Callers must treat it as read-only;
// Update swaps the pointer rather than mutating it.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config. Runs already in progress keep the snapshot
// they started with.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
