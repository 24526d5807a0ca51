package fsys

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/logging"
)

// Local serves music folders on the local disk.
type Local struct{}

func (*Local) Backend() Backend {
	return BackendLocal
}

func (*Local) CheckFolder(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) {
		return errors.New(errors.ErrInvalidFolder).
			Component("fsys").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return errors.New(errors.ErrInvalidFolder).
			Component("fsys").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return nil
}

func (*Local) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("fsys").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return data, nil
}

func (*Local) TranscodeInput(ctx context.Context, path string) (string, error) {
	return path, nil
}

// Walk enumerates files below root. A broken entry (unreadable metadata) is
// logged and skipped; a failure of the walk itself aborts with an error.
func (*Local) Walk(ctx context.Context, root string, minimumSize int64, fn WalkFunc) error {
	logger := logging.ForService("fsys")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		audioFormat, ok := format.AudioFromExtension(ext)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if logger != nil {
				logger.Error("failed to stat file during walk", "path", path, "error", err)
			}
			return nil
		}
		if info.Size() < minimumSize {
			return nil
		}
		return fn(Entry{
			Path:         path,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			Format:       audioFormat,
		})
	})
	if err != nil {
		return errors.New(err).
			Component("fsys").
			Category(errors.CategoryFileIO).
			Context("root", root).
			Build()
	}
	return nil
}
