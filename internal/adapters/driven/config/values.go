// Package config holds the key space shared by the ConfigStore adapters.
//
// Keys use dot notation ("embedding.visual.model"). Values keep whatever Go
// type they were stored with; TOML decoding contributes int64 for integers
// and []any for arrays, so the typed getters coerce both.
package config

import (
	"maps"
	"sync"
	"time"
)

// Values is a concurrency-safe flat configuration map. It provides every
// typed getter of driven.ConfigStore so adapters only add persistence.
type Values struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewValues returns a Values seeded with a copy of initial.
func NewValues(initial map[string]any) *Values {
	v := &Values{m: make(map[string]any, len(initial))}
	maps.Copy(v.m, initial)
	return v
}

// Get returns the raw value for key.
func (v *Values) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.m[key]
	return val, ok
}

// Put stores value under key.
func (v *Values) Put(key string, value any) {
	v.mu.Lock()
	v.m[key] = value
	v.mu.Unlock()
}

// Replace swaps the whole key space, e.g. after re-reading a file.
func (v *Values) Replace(m map[string]any) {
	fresh := make(map[string]any, len(m))
	maps.Copy(fresh, m)
	v.mu.Lock()
	v.m = fresh
	v.mu.Unlock()
}

// Snapshot returns a copy safe to encode without holding the lock.
func (v *Values) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.m)
}

// GetString returns "" for missing or non-string values.
func (v *Values) GetString(key string) string {
	val, _ := v.Get(key)
	s, _ := val.(string)
	return s
}

// GetInt truncates floats and returns 0 for non-numeric values.
func (v *Values) GetInt(key string) int {
	val, _ := v.Get(key)
	switch n := val.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// GetFloat widens integers, so "face_boost = 1" reads as 1.0.
func (v *Values) GetFloat(key string) float64 {
	val, _ := v.Get(key)
	switch n := val.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// GetBool returns false for missing or non-bool values.
func (v *Values) GetBool(key string) bool {
	val, _ := v.Get(key)
	b, _ := val.(bool)
	return b
}

// GetDuration accepts a time.Duration or a Go duration string ("45s").
func (v *Values) GetDuration(key string) time.Duration {
	val, _ := v.Get(key)
	switch d := val.(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(d)
		if err == nil {
			return parsed
		}
	}
	return 0
}

// GetStringSlice drops non-string elements of decoded arrays.
func (v *Values) GetStringSlice(key string) []string {
	val, _ := v.Get(key)
	switch items := val.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
