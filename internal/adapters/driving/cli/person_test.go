package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

func TestPersonAddCmd(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(a, []byte("A"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0644))

	out, err := execute(t, "person", "add", "Alice Smith", "--photo", a, "--photo", b, "--alias", "Al")

	require.NoError(t, err)
	assert.Contains(t, out, "Registered Alice Smith (p-Alice Smith) from 2 photo(s).")
	require.Len(t, ts.person.persons, 1)
	assert.Equal(t, []string{"Al"}, ts.person.persons[0].Aliases)
	assert.Equal(t, [][]byte{[]byte("A"), []byte("B")}, ts.person.photos)
}

func TestPersonAddCmd_RequiresPhoto(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "person", "add", "Bob")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestPersonAddCmd_ServiceError(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()
	ts.person.err = domain.ErrNoFace
	photo := filepath.Join(t.TempDir(), "wall.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("W"), 0644))

	_, err := execute(t, "person", "add", "Nobody", "--photo", photo)

	assert.ErrorIs(t, err, domain.ErrNoFace)
}

func TestPersonListCmd(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()

	out, err := execute(t, "person", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No people registered.")

	ts.person.persons = []domain.PersonIdentity{
		{ID: "p1", Name: "Alice", Aliases: []string{"Al", "Ali"}, FaceVectors: [][]float32{{1}, {2}}},
	}
	out, err = execute(t, "person", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "p1  Alice (Al, Ali)  2 photo(s)")

	out, err = execute(t, "person", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"photos": 2`)
	assert.False(t, strings.Contains(out, "FaceVectors"))
}

func TestPersonRemoveCmd(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()
	ts.person.persons = []domain.PersonIdentity{{ID: "p1", Name: "Alice"}}

	out, err := execute(t, "person", "remove", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed p1.")
	assert.Empty(t, ts.person.persons)

	_, err = execute(t, "person", "remove", "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResetCmd_WithYes(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()

	out, err := execute(t, "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset the whole index.")

	out, err = execute(t, "reset", "-y", "--file", "f1")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset file f1.")

	assert.Equal(t, []string{"", "f1"}, ts.maint.resets)
}

func TestResetCmd_Confirmation(t *testing.T) {
	ts, cleanup := installTestServices()
	defer cleanup()

	rootCmd.SetIn(strings.NewReader("n\n"))
	out, err := execute(t, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
	assert.Empty(t, ts.maint.resets)

	rootCmd.SetIn(strings.NewReader("yes\n"))
	out, err = execute(t, "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Delete the whole index? [y/N]")
	assert.Equal(t, []string{""}, ts.maint.resets)
}
