package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/subsona/subsona/internal/blobstore"
	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/logging"
)

// Filesystems resolves a storage backend to its filesystem implementation.
type Filesystems interface {
	For(ctx context.Context, backend fsys.Backend) (fsys.Filesystem, error)
}

// Stream is a readable body plus the properties a transport layer needs to
// describe it.
type Stream struct {
	io.ReadCloser
	Property Property
}

// Service serves song and cover art content with permission checks applied
// through the catalog.
type Service struct {
	store       catalog.Interface
	filesystems Filesystems
	transcoder  Transcoder
	covers      *blobstore.Store
	cache       *blobstore.Store
	coverCache  *blobstore.Store
	log         *slog.Logger
}

func NewService(store catalog.Interface, filesystems Filesystems, transcoder Transcoder, transcode conf.TranscodeSettings, coverArt conf.CoverArtSettings) *Service {
	s := &Service{
		store:       store,
		filesystems: filesystems,
		transcoder:  transcoder,
		log:         logging.ForService("retrieve"),
	}
	if coverArt.Dir != "" {
		s.covers = blobstore.New(coverArt.Dir)
	}
	if transcode.CacheDir != "" {
		s.cache = blobstore.New(transcode.CacheDir)
	}
	if coverArt.CacheDir != "" {
		s.coverCache = blobstore.New(coverArt.CacheDir)
	}
	return s
}

// StreamRaw serves a song's bytes as stored, honoring a Range start offset.
func (s *Service) StreamRaw(ctx context.Context, userID, songID, rangeHeader string) (*Stream, error) {
	song, folder, fs, err := s.resolveSource(ctx, userID, songID)
	if err != nil {
		return nil, err
	}

	property := Property{
		Size:     int64(song.FileSize),
		MIME:     format.Audio(song.Format).MIME(),
		Seekable: true,
		ETag:     etag(song.FileHash),
	}
	offset, err := ParseRangeOffset(rangeHeader, property.Size)
	if err != nil {
		return nil, err
	}

	sourcePath := absolutePath(folder, song.RelativePath)
	if fs.Backend() == fsys.BackendLocal {
		reader, err := openLocalAt(sourcePath, offset)
		if err != nil {
			return nil, err
		}
		return &Stream{ReadCloser: reader, Property: property}, nil
	}

	data, err := fs.Read(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return &Stream{
		ReadCloser: io.NopCloser(bytes.NewReader(data[offset:])),
		Property:   property,
	}, nil
}

// StreamTranscode serves a song transcoded to the target format and bitrate.
// The returned cache state reports how the transcode cache participated.
func (s *Service) StreamTranscode(ctx context.Context, userID, songID string, target format.Transcode, maxBitRateK, timeOffset int, rangeHeader string) (*Stream, CacheState, error) {
	song, folder, fs, err := s.resolveSource(ctx, userID, songID)
	if err != nil {
		return nil, NoCache, err
	}
	if maxBitRateK <= 0 {
		maxBitRateK = 32
	}

	property := Property{Size: -1, MIME: target.MIME(), Seekable: false}
	liveArgs := func() (TranscodeArgs, error) {
		input, err := fs.TranscodeInput(ctx, absolutePath(folder, song.RelativePath))
		if err != nil {
			return TranscodeArgs{}, err
		}
		return TranscodeArgs{
			Input:      input,
			Format:     target,
			BitrateK:   maxBitRateK,
			TimeOffset: timeOffset,
		}, nil
	}

	if s.cache == nil {
		args, err := liveArgs()
		if err != nil {
			return nil, NoCache, err
		}
		return s.liveStream(ctx, args, property, nil, NoCache)
	}

	hash := uint64(song.FileHash)
	cacheName := fmt.Sprintf("%d.%s", maxBitRateK, target.Extension())
	exists, err := s.cache.Exists(hash, song.FileSize, cacheName)
	if err != nil {
		s.log.Warn("transcode cache unreadable", "error", err)
		exists = false
	}

	switch {
	case exists && timeOffset <= 0:
		// The cache is written atomically, so an existing file is complete.
		stream, err := s.serveCachedFile(s.cache.PathFor(hash, song.FileSize, cacheName), target.MIME(), rangeHeader)
		if err != nil {
			return nil, ServeCachedOutput, err
		}
		return stream, ServeCachedOutput, nil

	case exists:
		// Seek within the already transcoded output instead of redoing
		// the whole transcode.
		args := TranscodeArgs{
			Input:      s.cache.PathFor(hash, song.FileSize, cacheName),
			Format:     target,
			BitrateK:   maxBitRateK,
			TimeOffset: timeOffset,
		}
		return s.liveStream(ctx, args, property, nil, UseCachedOutput)

	case timeOffset > 0:
		// Partial output is useless to later requests.
		args, err := liveArgs()
		if err != nil {
			return nil, NoCache, err
		}
		return s.liveStream(ctx, args, property, nil, NoCache)

	default:
		args, err := liveArgs()
		if err != nil {
			return nil, NoCache, err
		}
		writer, werr := s.cache.Writer(hash, song.FileSize, cacheName)
		if werr != nil {
			s.log.Warn("transcode cache writer not created", "error", werr)
			return s.liveStream(ctx, args, property, nil, NoCache)
		}
		return s.liveStream(ctx, args, property, writer, WithCache)
	}
}

func (s *Service) liveStream(ctx context.Context, args TranscodeArgs, property Property, writer *blobstore.Writer, state CacheState) (*Stream, CacheState, error) {
	body, err := s.transcoder.Transcode(ctx, args)
	if err != nil {
		if writer != nil {
			writer.Abort()
		}
		return nil, state, err
	}
	if writer != nil {
		body = &teeStream{src: body, writer: writer, log: s.log}
	}
	return &Stream{ReadCloser: body, Property: property}, state, nil
}

// serveCachedFile streams a finished cache file, honoring a Range offset.
func (s *Service) serveCachedFile(path, mime, rangeHeader string) (*Stream, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).Component("retrieve").Category(errors.CategoryFileIO).Build()
	}
	offset, err := ParseRangeOffset(rangeHeader, info.Size())
	if err != nil {
		return nil, err
	}
	reader, err := openLocalAt(path, offset)
	if err != nil {
		return nil, err
	}
	return &Stream{
		ReadCloser: reader,
		Property:   Property{Size: info.Size(), MIME: mime, Seekable: true},
	}, nil
}

func (s *Service) resolveSource(ctx context.Context, userID, songID string) (*catalog.Song, *catalog.MusicFolder, fsys.Filesystem, error) {
	song, err := s.store.ResolveSong(userID, songID)
	if err != nil {
		return nil, nil, nil, err
	}
	folder, err := s.store.GetMusicFolder(song.MusicFolderID)
	if err != nil {
		return nil, nil, nil, err
	}
	fs, err := s.filesystems.For(ctx, fsys.Backend(folder.Backend))
	if err != nil {
		return nil, nil, nil, err
	}
	return song, folder, fs, nil
}

func openLocalAt(path string, offset int64) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("retrieve").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			_ = file.Close()
			return nil, errors.New(err).Component("retrieve").Category(errors.CategoryFileIO).Build()
		}
	}
	return file, nil
}

// absolutePath joins a folder root and a relative path using the separator
// convention of the folder's backend.
func absolutePath(folder *catalog.MusicFolder, relative string) string {
	if fsys.Backend(folder.Backend) == fsys.BackendS3 {
		return path.Join(folder.Path, relative)
	}
	return filepath.Join(folder.Path, filepath.FromSlash(relative))
}

func etag(hash int64) string {
	return fmt.Sprintf("%016x", uint64(hash))
}

// teeStream copies a live transcode into the cache while serving it. Cache
// failures degrade to plain streaming; an early Close discards the partial
// cache entry.
type teeStream struct {
	src    io.ReadCloser
	writer *blobstore.Writer
	log    *slog.Logger
}

func (t *teeStream) Read(buf []byte) (int, error) {
	n, err := t.src.Read(buf)
	if n > 0 && t.writer != nil {
		if _, werr := t.writer.Write(buf[:n]); werr != nil {
			t.log.Warn("transcode cache write failed", "error", werr)
			t.writer.Abort()
			t.writer = nil
		}
	}
	if err != nil && t.writer != nil {
		if err == io.EOF {
			if cerr := t.writer.Commit(); cerr != nil {
				t.log.Warn("transcode cache commit failed", "error", cerr)
			}
		} else {
			t.writer.Abort()
		}
		t.writer = nil
	}
	return n, err
}

func (t *teeStream) Close() error {
	if t.writer != nil {
		t.writer.Abort()
		t.writer = nil
	}
	return t.src.Close()
}
