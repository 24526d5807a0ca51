package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
)

// CoverArt serves cover art, optionally resized to fit a square of the given
// size. Resized renditions are JPEG and cached by (content, size).
func (s *Service) CoverArt(ctx context.Context, userID, coverArtID string, size int, rangeHeader string) (*Stream, CacheState, error) {
	if s.covers == nil {
		return nil, NoCache, errors.Newf("cover art directory is not configured").
			Component("retrieve").
			Category(errors.CategoryConfiguration).
			Build()
	}
	cover, err := s.store.ResolveCoverArt(userID, coverArtID)
	if err != nil {
		return nil, NoCache, err
	}

	img := format.Image(cover.Format)
	hash := uint64(cover.FileHash)
	originalName := "cover." + img.Extension()

	if size <= 0 {
		stream, err := s.serveCachedFile(s.covers.PathFor(hash, cover.FileSize, originalName), img.MIME(), rangeHeader)
		if err != nil {
			return nil, NoCache, err
		}
		stream.Property.ETag = etag(cover.FileHash)
		return stream, NoCache, nil
	}

	renditionName := fmt.Sprintf("%d.jpg", size)
	if s.coverCache != nil {
		if exists, err := s.coverCache.Exists(hash, cover.FileSize, renditionName); err == nil && exists {
			stream, err := s.serveCachedFile(s.coverCache.PathFor(hash, cover.FileSize, renditionName), format.ImageJpeg.MIME(), rangeHeader)
			if err != nil {
				return nil, ServeCachedOutput, err
			}
			return stream, ServeCachedOutput, nil
		}
	}

	original, err := s.covers.Open(hash, cover.FileSize, originalName)
	if err != nil {
		return nil, NoCache, err
	}
	defer original.Close()
	data, err := io.ReadAll(original)
	if err != nil {
		return nil, NoCache, errors.New(err).Component("retrieve").Category(errors.CategoryFileIO).Build()
	}

	resized, err := resizeToJPEG(data, size)
	if err != nil {
		return nil, NoCache, err
	}

	state := NoCache
	if s.coverCache != nil {
		state = WithCache
		if writer, err := s.coverCache.Writer(hash, cover.FileSize, renditionName); err != nil {
			s.log.Warn("cover cache writer not created", "error", err)
		} else if _, err := writer.Write(resized); err != nil {
			s.log.Warn("cover cache write failed", "error", err)
			writer.Abort()
		} else if err := writer.Commit(); err != nil {
			s.log.Warn("cover cache commit failed", "error", err)
		}
	}

	offset, err := ParseRangeOffset(rangeHeader, int64(len(resized)))
	if err != nil {
		return nil, state, err
	}
	return &Stream{
		ReadCloser: io.NopCloser(bytes.NewReader(resized[offset:])),
		Property: Property{
			Size:     int64(len(resized)),
			MIME:     format.ImageJpeg.MIME(),
			Seekable: true,
		},
	}, state, nil
}

// resizeToJPEG scales an image so its longest side equals target and encodes
// it as JPEG.
func resizeToJPEG(data []byte, target int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).Component("retrieve").Category(errors.CategoryImage).Build()
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("image has empty bounds").
			Component("retrieve").
			Category(errors.CategoryImage).
			Build()
	}
	var dstWidth, dstHeight int
	if width >= height {
		dstWidth = target
		dstHeight = max(1, height*target/width)
	} else {
		dstHeight = target
		dstWidth = max(1, width*target/height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, errors.New(err).Component("retrieve").Category(errors.CategoryImage).Build()
	}
	return out.Bytes(), nil
}
