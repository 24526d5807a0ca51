package catalog

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subsona/subsona/internal/errors"
)

// ArtistRef names an artist as it appears in tags.
type ArtistRef struct {
	Name  string
	MbzID *string
}

// AlbumRef carries the album-level fields extracted from tags.
type AlbumRef struct {
	Name                 string
	Year                 *int16
	Month                *int16
	Day                  *int16
	ReleaseYear          *int16
	ReleaseMonth         *int16
	ReleaseDay           *int16
	OriginalReleaseYear  *int16
	OriginalReleaseMonth *int16
	OriginalReleaseDay   *int16
	MbzID                *string
}

// CoverArtRef identifies embedded artwork by content.
type CoverArtRef struct {
	Format string
	Hash   int64
	Size   uint32
}

// SongScanBundle is everything one scanned file contributes to the catalog.
// ApplySongScan writes the whole bundle in a single transaction.
type SongScanBundle struct {
	Song           *Song
	Album          AlbumRef
	SongArtists    []ArtistRef
	AlbumArtists   []ArtistRef
	Compilation    bool
	Genres         []string
	CoverArt       *CoverArtRef
	ScannedAt      time.Time
	IgnorePrefixes []string
}

// BeginScan records the start of a scan pass over one folder.
func (ds *DataStore) BeginScan(folderID string, startedAt time.Time) (*ScanRecord, error) {
	record := &ScanRecord{MusicFolderID: folderID, StartedAt: startedAt}
	if err := ds.DB.Create(record).Error; err != nil {
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return record, nil
}

// FinishScan closes out a scan record with its final counters.
func (ds *DataStore) FinishScan(record *ScanRecord, unrecoverable bool) error {
	now := time.Now()
	record.FinishedAt = &now
	record.Unrecoverable = unrecoverable
	if err := ds.DB.Save(record).Error; err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// LatestScan returns the most recently started scan record for a folder.
func (ds *DataStore) LatestScan(folderID string) (*ScanRecord, error) {
	var record ScanRecord
	err := ds.DB.Where("music_folder_id = ?", folderID).
		Order("started_at DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("scan record", folderID)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &record, nil
}

// SongByPath looks a song up by its scan identity.
func (ds *DataStore) SongByPath(folderID, relativePath string) (*Song, error) {
	var song Song
	err := ds.DB.Where("music_folder_id = ? AND relative_path = ?", folderID, relativePath).
		First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("song", relativePath)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &song, nil
}

// SongByContent looks a song up by content identity within a folder. Only
// songs the current pass has not yet seen qualify: a hit means the file was
// moved, while a row with scanned_at >= startedAt is a live duplicate whose
// path must keep its own identity.
func (ds *DataStore) SongByContent(folderID string, hash int64, size uint32, startedAt time.Time) (*Song, error) {
	var song Song
	err := ds.DB.Where("music_folder_id = ? AND file_hash = ? AND file_size = ? AND scanned_at < ?",
		folderID, hash, size, startedAt).
		First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("song", "by content")
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &song, nil
}

// TouchSongScanned marks an unchanged song as seen by the current pass so
// the deletion sweep keeps it.
func (ds *DataStore) TouchSongScanned(songID string, scannedAt time.Time) error {
	err := ds.DB.Model(&Song{}).Where("id = ?", songID).
		Update("scanned_at", scannedAt).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// ApplySongScan writes one song bundle atomically: album, artists, the song
// row, link rows and embedded cover art. Re-running it with identical input
// converges to the same catalog state.
func (ds *DataStore) ApplySongScan(ctx context.Context, bundle *SongScanBundle) (*Song, error) {
	if len(bundle.SongArtists) == 0 {
		return nil, errors.New(errors.ErrSongArtistEmpty).
			Component("catalog").
			Category(errors.CategoryValidation).
			Context("song_path", bundle.Song.RelativePath).
			Build()
	}

	song := bundle.Song
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		albumID, err := upsertAlbum(tx, song.MusicFolderID, &bundle.Album, bundle.ScannedAt)
		if err != nil {
			return err
		}
		song.AlbumID = albumID

		if bundle.CoverArt != nil {
			coverID, err := upsertCoverArt(tx, bundle.CoverArt)
			if err != nil {
				return err
			}
			song.CoverArtID = &coverID
		} else {
			song.CoverArtID = nil
		}

		song.ScannedAt = bundle.ScannedAt
		if err := upsertSong(tx, song); err != nil {
			return err
		}

		songArtistIDs, err := upsertArtists(tx, bundle.SongArtists, bundle.IgnorePrefixes, bundle.ScannedAt)
		if err != nil {
			return err
		}
		for _, artistID := range songArtistIDs {
			link := SongArtist{SongID: song.ID, ArtistID: artistID, UpsertedAt: bundle.ScannedAt}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "song_id"}, {Name: "artist_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"upserted_at"}),
			}).Create(&link).Error; err != nil {
				return err
			}
		}

		for ref, compilation := range albumArtistLinks(bundle) {
			ids, err := upsertArtists(tx, []ArtistRef{ref}, bundle.IgnorePrefixes, bundle.ScannedAt)
			if err != nil {
				return err
			}
			link := SongAlbumArtist{
				SongID:        song.ID,
				AlbumArtistID: ids[0],
				Compilation:   compilation,
				UpsertedAt:    bundle.ScannedAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "song_id"}, {Name: "album_artist_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"compilation", "upserted_at"}),
			}).Create(&link).Error; err != nil {
				return err
			}
		}

		for _, value := range bundle.Genres {
			genreID, err := upsertGenre(tx, value)
			if err != nil {
				return err
			}
			link := SongGenre{SongID: song.ID, GenreID: genreID, UpsertedAt: bundle.ScannedAt}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "song_id"}, {Name: "genre_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"upserted_at"}),
			}).Create(&link).Error; err != nil {
				return err
			}
		}

		// Links not refreshed by this pass belong to tags the file no
		// longer carries.
		if err := tx.Where("song_id = ? AND upserted_at < ?", song.ID, bundle.ScannedAt).
			Delete(&SongArtist{}).Error; err != nil {
			return err
		}
		if err := tx.Where("song_id = ? AND upserted_at < ?", song.ID, bundle.ScannedAt).
			Delete(&SongAlbumArtist{}).Error; err != nil {
			return err
		}
		return tx.Where("song_id = ? AND upserted_at < ?", song.ID, bundle.ScannedAt).
			Delete(&SongGenre{}).Error
	})
	if err != nil {
		if errors.Is(err, errors.ErrSongArtistEmpty) || errors.IsCategory(err, errors.CategoryValidation) {
			return nil, err
		}
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("song_path", song.RelativePath).
			Build()
	}
	return song, nil
}

// albumArtistLinks resolves the effective album artists for a song. Songs
// without explicit album artists fall back to their song artists. On
// compilation albums the song artists are additionally linked with the
// compilation flag set.
func albumArtistLinks(bundle *SongScanBundle) map[ArtistRef]bool {
	links := make(map[ArtistRef]bool, len(bundle.AlbumArtists)+len(bundle.SongArtists))
	if bundle.Compilation {
		for _, ref := range bundle.SongArtists {
			links[ref] = true
		}
	}
	if len(bundle.AlbumArtists) > 0 {
		for _, ref := range bundle.AlbumArtists {
			links[ref] = false
		}
	} else if !bundle.Compilation {
		for _, ref := range bundle.SongArtists {
			links[ref] = false
		}
	}
	return links
}

func upsertAlbum(tx *gorm.DB, folderID string, ref *AlbumRef, scannedAt time.Time) (string, error) {
	album := Album{
		Name:                 ref.Name,
		MusicFolderID:        folderID,
		Year:                 ref.Year,
		Month:                ref.Month,
		Day:                  ref.Day,
		ReleaseYear:          ref.ReleaseYear,
		ReleaseMonth:         ref.ReleaseMonth,
		ReleaseDay:           ref.ReleaseDay,
		OriginalReleaseYear:  ref.OriginalReleaseYear,
		OriginalReleaseMonth: ref.OriginalReleaseMonth,
		OriginalReleaseDay:   ref.OriginalReleaseDay,
		MbzID:                ref.MbzID,
		ScannedAt:            scannedAt,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "music_folder_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"year", "month", "day",
			"release_year", "release_month", "release_day",
			"original_release_year", "original_release_month", "original_release_day",
			"mbz_id", "scanned_at", "updated_at",
		}),
	}).Create(&album).Error
	if err != nil {
		return "", err
	}
	// OnConflict does not report back the surviving row id.
	var existing Album
	if err := tx.Select("id").
		Where("music_folder_id = ? AND name = ?", folderID, ref.Name).
		First(&existing).Error; err != nil {
		return "", err
	}
	return existing.ID, nil
}

func upsertArtists(tx *gorm.DB, refs []ArtistRef, ignorePrefixes []string, scannedAt time.Time) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		artist := Artist{
			Name:      ref.Name,
			Index:     IndexChar(ref.Name, ignorePrefixes),
			MbzID:     ref.MbzID,
			ScannedAt: scannedAt,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"index", "mbz_id", "scanned_at", "updated_at"}),
		}).Create(&artist).Error
		if err != nil {
			return nil, err
		}
		var existing Artist
		if err := tx.Select("id").Where("name = ?", ref.Name).First(&existing).Error; err != nil {
			return nil, err
		}
		ids = append(ids, existing.ID)
	}
	return ids, nil
}

func upsertGenre(tx *gorm.DB, value string) (string, error) {
	genre := Genre{Value: value}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "value"}},
		DoNothing: true,
	}).Create(&genre).Error
	if err != nil {
		return "", err
	}
	var existing Genre
	if err := tx.Select("id").Where("value = ?", value).First(&existing).Error; err != nil {
		return "", err
	}
	return existing.ID, nil
}

func upsertCoverArt(tx *gorm.DB, ref *CoverArtRef) (string, error) {
	cover := CoverArt{Format: ref.Format, FileHash: ref.Hash, FileSize: ref.Size}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_hash"}, {Name: "file_size"}},
		DoNothing: true,
	}).Create(&cover).Error
	if err != nil {
		return "", err
	}
	var existing CoverArt
	if err := tx.Select("id").
		Where("file_hash = ? AND file_size = ?", ref.Hash, ref.Size).
		First(&existing).Error; err != nil {
		return "", err
	}
	return existing.ID, nil
}

func upsertSong(tx *gorm.DB, song *Song) error {
	if song.ID != "" {
		// Known song, possibly under a new path after a move.
		return tx.Omit("created_at").Save(song).Error
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "music_folder_id"}, {Name: "relative_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "album_id",
			"track_number", "track_total", "disc_number", "disc_total",
			"year", "month", "day",
			"release_year", "release_month", "release_day",
			"original_release_year", "original_release_month", "original_release_day",
			"languages", "format", "duration", "bitrate", "bit_depth",
			"sample_rate", "channel_count",
			"file_hash", "file_size", "cover_art_id", "mbz_id",
			"scanned_at", "updated_at",
		}),
	}).Create(song).Error
	if err != nil {
		return err
	}
	var existing Song
	if err := tx.Select("id").
		Where("music_folder_id = ? AND relative_path = ?", song.MusicFolderID, song.RelativePath).
		First(&existing).Error; err != nil {
		return err
	}
	song.ID = existing.ID
	return nil
}

// DeleteSongsNotScanned removes songs the current pass never saw. Their
// files are gone from the folder.
func (ds *DataStore) DeleteSongsNotScanned(folderID string, startedAt time.Time) (int64, error) {
	songIDs := ds.DB.Model(&Song{}).Select("id").
		Where("music_folder_id = ? AND scanned_at < ?", folderID, startedAt)
	for _, link := range []any{&SongArtist{}, &SongAlbumArtist{}, &SongGenre{}} {
		if err := ds.DB.Where("song_id IN (?)", songIDs).Delete(link).Error; err != nil {
			return 0, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
		}
	}
	result := ds.DB.Where("music_folder_id = ? AND scanned_at < ?", folderID, startedAt).
		Delete(&Song{})
	if result.Error != nil {
		return 0, errors.New(result.Error).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return result.RowsAffected, nil
}

// PruneAlbumsWithoutSongs drops albums whose last song was deleted.
func (ds *DataStore) PruneAlbumsWithoutSongs(folderID string) (int64, error) {
	result := ds.DB.Where(
		"music_folder_id = ? AND id NOT IN (?)",
		folderID,
		ds.DB.Model(&Song{}).Select("album_id").Where("music_folder_id = ?", folderID),
	).Delete(&Album{})
	if result.Error != nil {
		return 0, errors.New(result.Error).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return result.RowsAffected, nil
}
