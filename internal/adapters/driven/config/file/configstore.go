package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/config"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// FileName is the settings file inside the config directory.
const FileName = "config.toml"

// ConfigStore keeps settings in a TOML file. Dotted keys map to nested
// tables, so "embedding.visual.model" is written under [embedding.visual].
type ConfigStore struct {
	*config.Values

	// writeMu serialises mutations with the file write that follows them.
	writeMu sync.Mutex
	path    string
}

// NewConfigStore opens dir/config.toml, creating dir with owner-only
// permissions. An empty dir selects ~/.sercha-media.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		dir = filepath.Join(home, ".sercha-media")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	s := &ConfigStore{Values: config.NewValues(nil), path: filepath.Join(dir, FileName)}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Set stores value and rewrites the file. Durations are kept as strings so
// the file stays hand-editable.
func (s *ConfigStore) Set(key string, value any) error {
	if d, ok := value.(time.Duration); ok {
		value = d.String()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.Put(key, value)
	return s.write()
}

// Save rewrites the file from the current values.
func (s *ConfigStore) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write()
}

func (s *ConfigStore) write() error {
	encoded, err := toml.Marshal(nestMap(s.Snapshot()))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

// Load re-reads the file, discarding unsaved values. A missing file is an
// empty configuration.
func (s *ConfigStore) Load() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.Replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var tables map[string]any
	if err := toml.Unmarshal(raw, &tables); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}
	flat := make(map[string]any)
	flatten(tables, "", flat)
	s.Replace(flat)
	return nil
}

// Path returns the TOML file location.
func (s *ConfigStore) Path() string {
	return s.path
}

func flatten(tables map[string]any, prefix string, into map[string]any) {
	for key, value := range tables {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			flatten(nested, key, into)
			continue
		}
		into[key] = value
	}
}

// nestMap rebuilds tables from dotted keys. A key that is both a scalar and
// a table prefix ("a" and "a.b") keeps the table.
func nestMap(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, value := range flat {
		parts := strings.Split(key, ".")
		table := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := table[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				table[p] = child
			}
			table = child
		}
		leaf := parts[len(parts)-1]
		if _, isTable := table[leaf].(map[string]any); !isTable {
			table[leaf] = value
		}
	}
	return root
}
