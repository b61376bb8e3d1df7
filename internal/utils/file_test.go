package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("leaf.JPG"))
	assert.True(t, IsImageFile("a/b/leaf.webp"))
	assert.True(t, IsImageFile("scan.tif"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestGenerateOutputFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "leaf_256.jpg"),
		GenerateOutputFilename("/tmp/leaf.png", "out", "", "_256", "jpg"))
	assert.Equal(t, filepath.Join("out", "x-leaf.png"),
		GenerateOutputFilename("leaf.png", "out", "x-", "", ""))
	assert.Equal(t, filepath.Join("out", "a_b.jpg"),
		GenerateOutputFilename("a:b", "out", "", "", ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	for _, name := range []string{"b.png", "a.jpg", "sub/c.webp", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.webp"),
	}, files)

	_, err = ListImageFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))
	assert.False(t, FileExists(filepath.Join(dir, "nope")))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "USB_ Camera _1_", SanitizeFilename(" USB: Camera <1>. "))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatFileSize(0))
	assert.Equal(t, "1.0 kB", FormatFileSize(1000))
	assert.Equal(t, "12 kB", FormatFileSize(12345))
	assert.Equal(t, "0 B", FormatFileSize(-5))
}
