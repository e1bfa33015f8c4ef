package config

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValues_TypedGetters(t *testing.T) {
	v := NewValues(map[string]any{
		"embedding.visual.model":  "clip-vit-b-32",
		"ingest.max_workers":      8,
		"ingest.queue_size":       int64(256),
		"search.face_boost":       0.25,
		"segment.sensitivity":     int64(1),
		"modality.audio_speech":   true,
		"embedding.timeout":       "45s",
		"watch.debounce":          500 * time.Millisecond,
		"watch.paths":             []string{"/media/a", "/media/b"},
		"watch.paths_decoded":     []any{"/media/c", 3, "/media/d"},
		"segment.scene_threshold": float32(0.5),
	})

	assert.Equal(t, "clip-vit-b-32", v.GetString("embedding.visual.model"))
	assert.Equal(t, 8, v.GetInt("ingest.max_workers"))
	assert.Equal(t, 256, v.GetInt("ingest.queue_size"))
	assert.Equal(t, 0, v.GetInt("search.face_boost"), "floats truncate")
	assert.InDelta(t, 0.25, v.GetFloat("search.face_boost"), 1e-9)
	assert.InDelta(t, 1.0, v.GetFloat("segment.sensitivity"), 1e-9, "integers widen")
	assert.InDelta(t, 8.0, v.GetFloat("ingest.max_workers"), 1e-9)
	assert.InDelta(t, 0.5, v.GetFloat("segment.scene_threshold"), 1e-6)
	assert.True(t, v.GetBool("modality.audio_speech"))
	assert.Equal(t, 45*time.Second, v.GetDuration("embedding.timeout"))
	assert.Equal(t, 500*time.Millisecond, v.GetDuration("watch.debounce"))
	assert.Equal(t, []string{"/media/a", "/media/b"}, v.GetStringSlice("watch.paths"))
	assert.Equal(t, []string{"/media/c", "/media/d"}, v.GetStringSlice("watch.paths_decoded"))
}

func TestValues_MismatchedTypesReturnZero(t *testing.T) {
	v := NewValues(map[string]any{"s": "soon", "n": 42})

	assert.Equal(t, 0, v.GetInt("s"))
	assert.Zero(t, v.GetFloat("s"))
	assert.Zero(t, v.GetDuration("s"), "unparseable duration")
	assert.Zero(t, v.GetDuration("n"), "bare integers are not durations")
	assert.Empty(t, v.GetString("n"))
	assert.False(t, v.GetBool("n"))
	assert.Nil(t, v.GetStringSlice("s"))

	val, ok := v.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestValues_SeedAndSnapshotAreCopies(t *testing.T) {
	seed := map[string]any{"a": 1}
	v := NewValues(seed)
	seed["a"] = 2
	assert.Equal(t, 1, v.GetInt("a"))

	snap := v.Snapshot()
	snap["a"] = 3
	assert.Equal(t, 1, v.GetInt("a"))
}

func TestValues_PutAndReplace(t *testing.T) {
	v := NewValues(nil)
	v.Put("ingest.max_workers", 4)
	v.Put("ingest.max_workers", 6)
	assert.Equal(t, 6, v.GetInt("ingest.max_workers"))

	v.Replace(map[string]any{"storage.backend": "sqlite"})
	_, ok := v.Get("ingest.max_workers")
	assert.False(t, ok)
	assert.Equal(t, "sqlite", v.GetString("storage.backend"))
}

func TestValues_Concurrency(t *testing.T) {
	v := NewValues(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v.Put(fmt.Sprintf("k%d", i), i)
		}()
		go func() {
			defer wg.Done()
			_ = v.Snapshot()
			_ = v.GetInt(fmt.Sprintf("k%d", i))
		}()
	}
	wg.Wait()

	for i := range 50 {
		assert.Equal(t, i, v.GetInt(fmt.Sprintf("k%d", i)))
	}
}
