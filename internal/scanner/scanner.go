// Package scanner walks music folders and reconciles the catalog with what
// is actually on disk or in the bucket.
package scanner

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subsona/subsona/internal/blobstore"
	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/logging"
	"github.com/subsona/subsona/internal/metatag"
)

// Filesystems resolves a storage backend to its filesystem implementation.
type Filesystems interface {
	For(ctx context.Context, backend fsys.Backend) (fsys.Filesystem, error)
}

// Extractor reads tag metadata from file content.
type Extractor interface {
	Extract(r io.ReadSeeker, filename string) (*metatag.Metadata, error)
}

// Prober reads audio stream properties from file content.
type Prober interface {
	ProbeBytes(ctx context.Context, data []byte, nameHint string) (*metatag.Properties, error)
}

// Result summarizes one scan pass.
type Result struct {
	Scanned  int64
	Upserted int64
	Deleted  int64
	Errors   int64
}

// Scanner drives full scan passes over music folders.
type Scanner struct {
	store          catalog.Interface
	filesystems    Filesystems
	extractor      Extractor
	prober         Prober
	covers         *blobstore.Store
	settings       conf.ScanSettings
	ignorePrefixes []string
	log            *slog.Logger
}

func New(store catalog.Interface, filesystems Filesystems, extractor Extractor, prober Prober, covers *blobstore.Store, settings conf.ScanSettings, index conf.IndexSettings) *Scanner {
	if settings.PoolSize <= 0 {
		settings.PoolSize = 1
	}
	if settings.ChannelSize <= 0 {
		settings.ChannelSize = 1
	}
	return &Scanner{
		store:          store,
		filesystems:    filesystems,
		extractor:      extractor,
		prober:         prober,
		covers:         covers,
		settings:       settings,
		ignorePrefixes: index.IgnorePrefixes,
		log:            logging.ForService("scanner"),
	}
}

// ScanFolder runs one full pass over a folder: walk, triage, upsert, then
// reconcile deletions. Per-file failures are counted and skipped; a failed
// walk aborts the pass before any deletion happens.
func (s *Scanner) ScanFolder(ctx context.Context, folderID string) (*Result, error) {
	folder, err := s.store.GetMusicFolder(folderID)
	if err != nil {
		return nil, err
	}
	fs, err := s.filesystems.For(ctx, fsys.Backend(folder.Backend))
	if err != nil {
		return nil, err
	}
	if err := fs.CheckFolder(ctx, folder.Path); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	record, err := s.store.BeginScan(folder.ID, startedAt)
	if err != nil {
		return nil, err
	}
	s.log.Info("scan started", "folder", folder.Name, "path", folder.Path, "backend", folder.Backend)

	var scanned, upserted, failed atomic.Int64
	entries := make(chan fsys.Entry, s.settings.ChannelSize)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(entries)
		return fs.Walk(groupCtx, folder.Path, s.settings.MinimumSize, func(entry fsys.Entry) error {
			select {
			case entries <- entry:
				return nil
			case <-groupCtx.Done():
				return groupCtx.Err()
			}
		})
	})
	for range s.settings.PoolSize {
		group.Go(func() error {
			for entry := range entries {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				scanned.Add(1)
				changed, err := s.processEntry(groupCtx, fs, folder, entry, startedAt)
				switch {
				case err != nil:
					failed.Add(1)
					s.log.Warn("entry failed", "path", entry.Path, "error", err)
				case changed:
					upserted.Add(1)
				}
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		// The walk or a cancellation died mid-pass. Deleting now would
		// sweep songs the pass never reached.
		record.ScannedCount = scanned.Load()
		record.UpsertedCount = upserted.Load()
		record.ErrorCount = failed.Load()
		if finishErr := s.store.FinishScan(record, true); finishErr != nil {
			s.log.Error("scan record not closed", "error", finishErr)
		}
		s.log.Error("scan aborted", "folder", folder.Name, "error", err)
		return nil, err
	}

	deleted, err := s.store.DeleteSongsNotScanned(folder.ID, startedAt)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.PruneAlbumsWithoutSongs(folder.ID); err != nil {
		return nil, err
	}

	result := &Result{
		Scanned:  scanned.Load(),
		Upserted: upserted.Load(),
		Deleted:  deleted,
		Errors:   failed.Load(),
	}
	record.ScannedCount = result.Scanned
	record.UpsertedCount = result.Upserted
	record.DeletedCount = result.Deleted
	record.ErrorCount = result.Errors
	if err := s.store.FinishScan(record, false); err != nil {
		return nil, err
	}
	s.log.Info("scan finished",
		"folder", folder.Name,
		"scanned", result.Scanned,
		"upserted", result.Upserted,
		"deleted", result.Deleted,
		"errors", result.Errors,
		"elapsed", time.Since(startedAt).Round(time.Millisecond))
	return result, nil
}

// processEntry reconciles one discovered file. It reports whether the
// catalog was modified.
func (s *Scanner) processEntry(ctx context.Context, fs fsys.Filesystem, folder *catalog.MusicFolder, entry fsys.Entry, startedAt time.Time) (bool, error) {
	data, err := fs.Read(ctx, entry.Path)
	if err != nil {
		return false, err
	}

	hash := int64(blobstore.Sum64(data))
	size := uint32(len(data))
	relPath := relativePath(folder.Path, entry.Path)
	scannedAt := time.Now()

	existing, err := s.store.SongByPath(folder.ID, relPath)
	if err != nil && !errors.IsNotFound(err) {
		return false, err
	}
	if existing != nil && existing.FileHash == hash && existing.FileSize == size {
		// Unchanged file, only mark it as seen.
		return false, s.store.TouchSongScanned(existing.ID, scannedAt)
	}

	md, err := s.extractor.Extract(bytes.NewReader(data), relPath)
	if err != nil {
		return false, err
	}
	props, err := s.prober.ProbeBytes(ctx, data, entry.Path)
	if err != nil {
		return false, err
	}

	bundle := s.buildBundle(folder, relPath, entry, md, props, hash, size, scannedAt)
	if existing != nil {
		bundle.Song.ID = existing.ID
	} else if moved, err := s.store.SongByContent(folder.ID, hash, size, startedAt); err == nil {
		// Same content under a new path keeps its identity. Rows already
		// seen by this pass are live duplicates, not moves.
		bundle.Song.ID = moved.ID
	} else if !errors.IsNotFound(err) {
		return false, err
	}

	if md.Picture != nil && s.covers != nil {
		if ref, err := s.storeCoverArt(md.Picture); err != nil {
			s.log.Warn("cover art not stored", "path", entry.Path, "error", err)
		} else {
			bundle.CoverArt = ref
		}
	}

	if _, err := s.store.ApplySongScan(ctx, bundle); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scanner) buildBundle(folder *catalog.MusicFolder, relPath string, entry fsys.Entry, md *metatag.Metadata, props *metatag.Properties, hash int64, size uint32, scannedAt time.Time) *catalog.SongScanBundle {
	song := &catalog.Song{
		Title:         md.Song.Title,
		MusicFolderID: folder.ID,
		RelativePath:  relPath,

		TrackNumber: md.Song.TrackDisc.TrackNumber,
		TrackTotal:  md.Song.TrackDisc.TrackTotal,
		DiscNumber:  md.Song.TrackDisc.DiscNumber,
		DiscTotal:   md.Song.TrackDisc.DiscTotal,

		Year:                 md.Song.Date.Year,
		Month:                md.Song.Date.Month,
		Day:                  md.Song.Date.Day,
		ReleaseYear:          md.Song.Release.Year,
		ReleaseMonth:         md.Song.Release.Month,
		ReleaseDay:           md.Song.Release.Day,
		OriginalReleaseYear:  md.Song.Original.Year,
		OriginalReleaseMonth: md.Song.Original.Month,
		OriginalReleaseDay:   md.Song.Original.Day,

		Languages: strings.Join(md.Languages, ","),

		Format:       string(entry.Format),
		Duration:     props.Duration,
		Bitrate:      props.Bitrate,
		BitDepth:     props.BitDepth,
		SampleRate:   props.SampleRate,
		ChannelCount: props.ChannelCount,

		FileHash: hash,
		FileSize: size,
		MbzID:    md.Song.MbzID,
	}

	return &catalog.SongScanBundle{
		Song: song,
		Album: catalog.AlbumRef{
			Name:                 md.Album.Name,
			Year:                 md.Album.Date.Year,
			Month:                md.Album.Date.Month,
			Day:                  md.Album.Date.Day,
			ReleaseYear:          md.Album.Release.Year,
			ReleaseMonth:         md.Album.Release.Month,
			ReleaseDay:           md.Album.Release.Day,
			OriginalReleaseYear:  md.Album.Original.Year,
			OriginalReleaseMonth: md.Album.Original.Month,
			OriginalReleaseDay:   md.Album.Original.Day,
			MbzID:                md.Album.MbzID,
		},
		SongArtists:    artistRefs(md.Artists.Song),
		AlbumArtists:   artistRefs(md.Artists.Album),
		Compilation:    md.Artists.Compilation,
		Genres:         md.Genres,
		ScannedAt:      scannedAt,
		IgnorePrefixes: s.ignorePrefixes,
	}
}

// storeCoverArt writes embedded artwork to the cover art blob store.
func (s *Scanner) storeCoverArt(pic *metatag.Picture) (*catalog.CoverArtRef, error) {
	img, ok := format.ImageFromMIME(pic.MIMEType)
	if !ok {
		return nil, errors.Newf("unsupported cover art type %q", pic.MIMEType).
			Component("scanner").
			Category(errors.CategoryMediaParsing).
			Build()
	}
	hash := blobstore.Sum64(pic.Data)
	size := uint32(len(pic.Data))
	name := "cover." + img.Extension()
	if exists, err := s.covers.Exists(hash, size, name); err == nil && exists {
		return &catalog.CoverArtRef{Format: string(img), Hash: int64(hash), Size: size}, nil
	}
	if _, _, err := s.covers.WriteBytes(name, pic.Data); err != nil {
		return nil, err
	}
	return &catalog.CoverArtRef{Format: string(img), Hash: int64(hash), Size: size}, nil
}

func artistRefs(artists []metatag.Artist) []catalog.ArtistRef {
	refs := make([]catalog.ArtistRef, 0, len(artists))
	for _, artist := range artists {
		refs = append(refs, catalog.ArtistRef{Name: artist.Name, MbzID: artist.MbzID})
	}
	return refs
}

// relativePath strips the folder root from an absolute entry path.
func relativePath(root, path string) string {
	rel := strings.TrimPrefix(path, root)
	return strings.TrimLeft(rel, "/\\")
}
