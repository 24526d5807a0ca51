package fsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init()
	os.Exit(m.Run())
}

func TestCheckFolder(t *testing.T) {
	t.Parallel()

	local := &Local{}
	ctx := context.Background()
	dir := t.TempDir()

	assert.NoError(t, local.CheckFolder(ctx, dir))

	err := local.CheckFolder(ctx, "relative/path")
	assert.ErrorIs(t, err, errors.ErrInvalidFolder)

	file := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = local.CheckFolder(ctx, file)
	assert.ErrorIs(t, err, errors.ErrInvalidFolder)

	err = local.CheckFolder(ctx, filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, errors.ErrInvalidFolder)
}

func TestWalkFiltersByExtensionAndSize(t *testing.T) {
	t.Parallel()

	local := &Local{}
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "album"), 0o755))

	files := map[string][]byte{
		"album/one.flac":  []byte("flac content here"),
		"album/two.mp3":   []byte("mp3 content here"),
		"album/cover.jpg": []byte("not audio"),
		"album/notes.txt": []byte("not audio"),
		"album/tiny.flac": []byte("x"),
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	var got []Entry
	err := local.Walk(context.Background(), dir, 8, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byPath := map[string]format.Audio{}
	for _, e := range got {
		rel, err := filepath.Rel(dir, e.Path)
		require.NoError(t, err)
		byPath[rel] = e.Format
		assert.False(t, e.LastModified.IsZero())
	}
	assert.Equal(t, format.AudioFlac, byPath[filepath.Join("album", "one.flac")])
	assert.Equal(t, format.AudioMp3, byPath[filepath.Join("album", "two.mp3")])
}

func TestWalkMissingRootFails(t *testing.T) {
	t.Parallel()

	local := &Local{}
	err := local.Walk(context.Background(), filepath.Join(t.TempDir(), "gone"), 0, func(Entry) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	local := &Local{}
	_, err := local.Read(context.Background(), filepath.Join(t.TempDir(), "missing.flac"))
	assert.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestRegistryDispatch(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(testS3Settings())
	local, err := registry.For(context.Background(), BackendLocal)
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, local.Backend())

	_, err = registry.For(context.Background(), Backend("ftp"))
	assert.Error(t, err)
}
