package memory

import (
	"github.com/custodia-labs/sercha-media/internal/adapters/driven/config"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore holds settings in memory only. It backs tests and runs
// started with an empty config directory.
type ConfigStore struct {
	*config.Values
}

// NewConfigStore returns an empty store. Optional seed values are copied.
func NewConfigStore(seed ...map[string]any) *ConfigStore {
	var initial map[string]any
	if len(seed) > 0 {
		initial = seed[0]
	}
	return &ConfigStore{Values: config.NewValues(initial)}
}

// Set stores value; nothing is persisted.
func (s *ConfigStore) Set(key string, value any) error {
	s.Put(key, value)
	return nil
}

// Save is a no-op.
func (s *ConfigStore) Save() error { return nil }

// Load is a no-op; values live for the lifetime of the store.
func (s *ConfigStore) Load() error { return nil }

// Path reports the pseudo-location ":memory:".
func (s *ConfigStore) Path() string { return ":memory:" }
