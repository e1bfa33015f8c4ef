package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, "config.toml"), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "deep")

	store, err := NewConfigStore(nestedPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(nestedPath, "config.toml"), store.Path())

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	store, err := NewConfigStore("/dev/null/cannot/create/dirs")

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewConfigStore_CorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("this is not valid TOML {{{[["), 0600)
	require.NoError(t, err)

	store, err := NewConfigStore(tmpDir)

	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestConfigStore_DurationsStoredAsStrings(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set("watch.debounce", 750*time.Millisecond))

	raw, ok := store.Get("watch.debounce")
	require.True(t, ok)
	assert.Equal(t, "750ms", raw)
	assert.Equal(t, 750*time.Millisecond, store.GetDuration("watch.debounce"))

	reopened, err := NewConfigStore(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, reopened.GetDuration("watch.debounce"))
}

func TestConfigStore_LoadDiscardsUnsavedValues(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("storage.backend", "sqlite"))

	store.Put("storage.backend", "milvus")
	require.NoError(t, store.Load())

	assert.Equal(t, "sqlite", store.GetString("storage.backend"))
}

func TestConfigStore_PersistenceWritesTables(t *testing.T) {
	tmpDir := t.TempDir()
	store1, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store1.Set("embedding.visual.model", "clip-vit-b-32"))
	require.NoError(t, store1.Set("embedding.visual.provider", "inference"))
	require.NoError(t, store1.Set("ingest.max_workers", 4))
	require.NoError(t, store1.Set("debug", true))

	raw, err := os.ReadFile(store1.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[embedding.visual]")
	assert.Contains(t, string(raw), "[ingest]")

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "clip-vit-b-32", store2.GetString("embedding.visual.model"))
	assert.Equal(t, "inference", store2.GetString("embedding.visual.provider"))
	assert.Equal(t, 4, store2.GetInt("ingest.max_workers"))
	assert.True(t, store2.GetBool("debug"))
}

func TestConfigStore_LoadsHandWrittenFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[search]
default_limit = 20
face_boost = 0.3

[search.profiles.smart]
visual = 0.8
audio_speech = 1

[watch]
paths = ["/srv/media"]
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 20, store.GetInt("search.default_limit"))
	assert.InDelta(t, 0.3, store.GetFloat("search.face_boost"), 1e-9)
	assert.InDelta(t, 0.8, store.GetFloat("search.profiles.smart.visual"), 1e-9)
	assert.InDelta(t, 1.0, store.GetFloat("search.profiles.smart.audio_speech"), 1e-9)
	assert.Equal(t, []string{"/srv/media"}, store.GetStringSlice("watch.paths"))
}

func TestConfigStore_EmptyAndCommentOnlyFiles(t *testing.T) {
	for name, content := range map[string]string{"empty": "", "comment": "# nothing here\n\n"} {
		t.Run(name, func(t *testing.T) {
			tmpDir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(content), 0600))

			store, err := NewConfigStore(tmpDir)
			require.NoError(t, err)
			_, ok := store.Get("any")
			assert.False(t, ok)
		})
	}
}

func TestConfigStore_FilePermissionsAndNoTempLeft(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("k", "v"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestConfigStore_Save_Explicit(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	store.Put("manual_key", "manual_value")
	require.NoError(t, store.Save())

	store2, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "manual_value", store2.GetString("manual_key"))
}

func TestConfigStore_SaveFailsWhenPathIsDirectory(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("test", "value"))

	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, os.Mkdir(store.Path(), 0700))

	assert.Error(t, store.Set("another", "value"))
}

func TestConfigStore_SetUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, store.Set("channel", make(chan int)))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	done := make(chan bool)
	for i := range 10 {
		go func(id int) {
			key := "worker.k" + string(rune('0'+id))
			_ = store.Set(key, id)
			_ = store.GetInt(key)
			_ = store.GetFloat(key)
			_, _ = store.Get(key)
			done <- true
		}(i)
	}
	for range 10 {
		<-done
	}
}

func TestFlatten(t *testing.T) {
	flat := make(map[string]any)
	flatten(map[string]any{
		"embedding": map[string]any{
			"visual": map[string]any{"model": "clip", "dims": int64(512)},
		},
		"debug": true,
	}, "", flat)

	assert.Equal(t, map[string]any{
		"embedding.visual.model": "clip",
		"embedding.visual.dims":  int64(512),
		"debug":                  true,
	}, flat)
}

func TestNestMap(t *testing.T) {
	nested := nestMap(map[string]any{
		"a.b.c": 1,
		"a.d":   "x",
		"e":     true,
		"f":     "scalar",
		"f.g":   2,
	})

	assert.Equal(t, map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1}, "d": "x"},
		"e": true,
		"f": map[string]any{"g": 2},
	}, nested)
}
