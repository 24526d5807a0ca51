// Package blobstore stores derived binary artifacts under content-addressed paths.
//
// An artifact is identified by the 64-bit xxHash of its bytes together with its
// size. The pair maps to a deterministic directory layout, so identical content
// written from different call sites converges on a single file.
package blobstore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/subsona/subsona/internal/errors"
)

// Store writes and reads content-addressed artifacts below Root.
type Store struct {
	Root string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{Root: dir}
}

// Sum64 returns the content hash used for addressing.
func Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// PathFor maps a content address to its artifact path. The first hash byte
// (little-endian) becomes the top-level directory, which bounds fan-out at 256
// entries; the remaining bytes and the decimal size form the next two levels.
func (s *Store) PathFor(hash uint64, size uint32, filename string) string {
	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], hash)
	first := hex.EncodeToString(raw[:1])
	second := hex.EncodeToString(raw[1:])
	return filepath.Join(s.Root, first, second, strconv.FormatUint(uint64(size), 10), filename)
}

// Exists reports whether the artifact for the given address has been committed.
func (s *Store) Exists(hash uint64, size uint32, filename string) (bool, error) {
	info, err := os.Stat(s.PathFor(hash, size, filename))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Build()
	}
	return !info.IsDir(), nil
}

// Open returns a reader over a committed artifact. A missing artifact is a
// cache miss: the raw fs.ErrNotExist is returned so callers can regenerate.
func (s *Store) Open(hash uint64, size uint32, filename string) (*os.File, error) {
	return os.Open(s.PathFor(hash, size, filename))
}

// Write commits the content of r under the given address. The bytes are
// written to a temporary file first and renamed into place, so a partially
// written artifact is never observable and concurrent writers of identical
// content converge safely.
func (s *Store) Write(hash uint64, size uint32, filename string, r io.Reader) (string, error) {
	w, err := s.Writer(hash, size, filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Abort()
		return "", errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("path", w.path).
			Build()
	}
	if err := w.Commit(); err != nil {
		return "", err
	}
	return w.path, nil
}

// WriteBytes is a convenience wrapper around Write for in-memory artifacts.
// The address is computed from the data itself.
func (s *Store) WriteBytes(filename string, data []byte) (string, uint64, error) {
	hash := Sum64(data)
	size := uint32(len(data))
	path, err := s.Write(hash, size, filename, bytes.NewReader(data))
	return path, hash, err
}

// Writer streams an artifact into the store. Bytes go to a temporary file
// until Commit renames it into its content-addressed location; Abort discards
// it. Exactly one of Commit or Abort must be called.
type Writer struct {
	file *os.File
	tmp  string
	path string
	done bool
}

// Writer opens a streaming writer for the given address.
func (s *Store) Writer(hash uint64, size uint32, filename string) (*Writer, error) {
	path := s.PathFor(hash, size, filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, errors.New(err).
			Component("blobstore").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}
	return &Writer{file: tmp, tmp: tmp.Name(), path: path}, nil
}

// Path returns the final artifact path the writer will commit to.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit flushes the temporary file and atomically renames it into place.
func (w *Writer) Commit() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		os.Remove(w.tmp)
		return commitError(err, w.path)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmp)
		return commitError(err, w.path)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		os.Remove(w.tmp)
		return commitError(err, w.path)
	}
	return nil
}

func commitError(err error, path string) error {
	return errors.New(err).
		Component("blobstore").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// Abort discards the temporary file.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.file.Close()
	os.Remove(w.tmp)
}
