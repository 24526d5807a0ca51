package blobstore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathForLayout(t *testing.T) {
	t.Parallel()

	s := New("/cache")
	hash := uint64(0x0123456789abcdef)
	path := s.PathFor(hash, 42, "cover.png")

	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], hash)
	want := filepath.Join("/cache",
		hex.EncodeToString(raw[:1]),
		hex.EncodeToString(raw[1:]),
		"42", "cover.png")
	assert.Equal(t, want, path)

	// first level is a single byte, two hex chars
	rel, err := filepath.Rel("/cache", path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(rel, string(filepath.Separator))[0], 2)
}

func TestWriteReadRoundtrip(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	data := []byte("front cover bytes")

	path, hash, err := s.WriteBytes("cover.png", data)
	require.NoError(t, err)
	assert.Equal(t, Sum64(data), hash)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	exists, err := s.Exists(hash, uint32(len(data)), "cover.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpenMissingIsCacheMiss(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	_, err := s.Open(1234, 56, "transcode.opus")
	assert.ErrorIs(t, err, os.ErrNotExist)

	exists, err := s.Exists(1234, 56, "transcode.opus")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIdenticalContentConverges(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	data := []byte("identical cover art")

	first, _, err := s.WriteBytes("cover.png", data)
	require.NoError(t, err)
	second, _, err := s.WriteBytes("cover.png", data)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// only one artifact on disk
	var files int
	err = filepath.Walk(s.Root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, files)
}

func TestConcurrentWriters(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	data := []byte("raced artifact content")
	hash := Sum64(data)
	size := uint32(len(data))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Write(hash, size, "transcode.opus", bytes.NewReader(data))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := os.ReadFile(s.PathFor(hash, size, "transcode.opus"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestAbortLeavesNothingBehind(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	w, err := s.Writer(99, 10, "transcode.mp3")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	w.Abort()

	_, err = os.Stat(w.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(filepath.Dir(w.Path()))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
