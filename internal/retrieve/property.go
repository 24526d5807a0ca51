// Package retrieve serves music file content: raw downloads, on-demand
// transcodes with a content-addressed cache, and cover art renditions.
package retrieve

import (
	"strconv"
	"strings"

	"github.com/subsona/subsona/internal/errors"
)

// Property describes the bytes a stream will deliver.
type Property struct {
	// Size is the total byte size, or -1 when unknown (live transcodes).
	Size int64
	MIME string
	// Seekable streams support byte offsets; live transcodes do not.
	Seekable bool
	// ETag is a content validator derived from the file hash, empty when
	// the content has no stable identity.
	ETag string
}

// CacheState reports how a transcode request interacted with the cache.
type CacheState int

const (
	// NoCache: transcoded live without touching the cache.
	NoCache CacheState = iota
	// WithCache: transcoded live while writing the output to the cache.
	WithCache
	// ServeCachedOutput: the cached output was served directly.
	ServeCachedOutput
	// UseCachedOutput: the cached output was used as transcoder input to
	// apply a time offset.
	UseCachedOutput
)

func (s CacheState) String() string {
	switch s {
	case NoCache:
		return "no-cache"
	case WithCache:
		return "with-cache"
	case ServeCachedOutput:
		return "serve-cached-output"
	case UseCachedOutput:
		return "use-cached-output"
	}
	return "unknown"
}

// ParseRangeOffset reduces a Range header to a single start offset. Only the
// first range matters: playback clients seek, they do not splice. An empty
// header means offset zero.
func ParseRangeOffset(header string, size int64) (int64, error) {
	if header == "" {
		return 0, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, rangeError(header)
	}
	first, _, _ := strings.Cut(spec, ",")
	start, _, ok := strings.Cut(strings.TrimSpace(first), "-")
	if !ok {
		return 0, rangeError(header)
	}

	if start == "" {
		// Suffix range: the last N bytes.
		length, err := strconv.ParseInt(strings.SplitN(first, "-", 2)[1], 10, 64)
		if err != nil || length <= 0 {
			return 0, rangeError(header)
		}
		if length > size {
			return 0, nil
		}
		return size - length, nil
	}

	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 {
		return 0, rangeError(header)
	}
	if offset >= size {
		return 0, errors.New(errors.ErrRangeNotSatisfiable).
			Component("retrieve").
			Category(errors.CategoryValidation).
			Context("offset", offset).
			Context("size", size).
			Build()
	}
	return offset, nil
}

func rangeError(header string) error {
	return errors.Newf("malformed range header %q", header).
		Component("retrieve").
		Category(errors.CategoryValidation).
		Build()
}
