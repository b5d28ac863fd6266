package walker

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCandidate(t *testing.T) {
	for _, name := range []string{"a.jpg", "B.JPG", "c.Jpeg", "d.png", "E.PNG", "/abs/path/f.jpeg"} {
		assert.True(t, IsCandidate(name), name)
	}
	for _, name := range []string{"a.gif", "b.webp", "c", "jpg", ".hidden.jpg", "d.jpg.txt", "e.tiff"} {
		assert.False(t, IsCandidate(name), name)
	}
}

func TestCandidatesFiltersEntries(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"one.jpg", "two.PNG", "three.jpeg", "notes.txt", "anim.gif"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.jpg", "deep.jpg"), []byte("x"), 0o644))

	got, err := Collect(dir)
	require.NoError(t, err)

	var names []string
	for _, c := range got {
		names = append(names, c.Name)
		assert.Equal(t, filepath.Join(dir, c.Name), c.Path)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"one.jpg", "three.jpeg", "two.PNG"}, names)
}

func TestCandidatesSpansReadBatches(t *testing.T) {
	dir := t.TempDir()
	const n = readBatch*2 + 5
	for i := 0; i < n; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepathName(i)), []byte("x"), 0o644))
	}

	got, err := Collect(dir)
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func TestCandidatesStopsEarly(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepathName(i)), []byte("x"), 0o644))
	}

	seen := 0
	for _, err := range Candidates(dir) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestCandidatesMissingDir(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func filepathName(i int) string {
	return fmt.Sprintf("img-%03d.jpg", i)
}
