package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_MissingFile_StartsEmpty(t *testing.T) {
	c, err := New(t.TempDir(), "cloudinary")
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())
}

func TestNew_ExistingDirectory_IsNotAnError(t *testing.T) {
	dir := t.TempDir()

	_, err := New(dir, "cloudinary")
	require.NoError(t, err)
	_, err = New(dir, "cloudinary")
	require.NoError(t, err)
}

func TestPut_PersistsImmediately(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, "cloudinary")
	require.NoError(t, err)

	require.NoError(t, c.Put("./images/a.jpg", "https://res.cloudinary.com/demo/image/upload/a.jpg"))

	// A fresh load must already see the entry, without an explicit Save.
	reloaded, err := New(dir, "cloudinary")
	require.NoError(t, err)
	url, ok := reloaded.Get("./images/a.jpg")
	require.True(t, ok)
	require.Equal(t, "https://res.cloudinary.com/demo/image/upload/a.jpg", url)
}

func TestGet_ExactStringKeys_NoNormalization(t *testing.T) {
	c, err := New(t.TempDir(), "cloudinary")
	require.NoError(t, err)

	require.NoError(t, c.Put("./images/a.jpg", "https://example.test/a"))

	_, ok := c.Get("images/a.jpg")
	require.False(t, ok, "differently spelled path must be a distinct key")
}

func TestRoundTrip_ReproducesMapping(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, "cloudinary")
	require.NoError(t, err)

	want := map[string]string{
		"a.jpg":          "https://res.cloudinary.com/demo/image/upload/a.jpg",
		"/abs/b.png":     "https://res.cloudinary.com/demo/image/upload/b.png",
		"./images/c.jpg": "https://res.cloudinary.com/demo/image/upload/c.jpg",
	}
	for k, v := range want {
		require.NoError(t, c.Put(k, v))
	}

	reloaded, err := New(dir, "cloudinary")
	require.NoError(t, err)
	require.Equal(t, want, reloaded.Snapshot())
}

func TestNew_CorruptFile_Fails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cloudinary.json"), []byte("{not json"), 0644))

	_, err := New(dir, "cloudinary")
	require.Error(t, err)
}
