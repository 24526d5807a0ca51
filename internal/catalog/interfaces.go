// Package catalog manages the relational music catalog.
package catalog

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Interface is the catalog store contract used by the scanner and the
// retrieval engine.
type Interface interface {
	Open() error
	Close() error

	// Folders
	UpsertMusicFolder(folder *MusicFolder) error
	GetMusicFolder(id string) (*MusicFolder, error)
	ListMusicFolders() ([]MusicFolder, error)
	SetFolderAccess(folderID string, allow bool) error

	// Scan
	BeginScan(folderID string, startedAt time.Time) (*ScanRecord, error)
	FinishScan(record *ScanRecord, unrecoverable bool) error
	LatestScan(folderID string) (*ScanRecord, error)
	SongByPath(folderID, relativePath string) (*Song, error)
	SongByContent(folderID string, hash int64, size uint32, startedAt time.Time) (*Song, error)
	TouchSongScanned(songID string, scannedAt time.Time) error
	ApplySongScan(ctx context.Context, bundle *SongScanBundle) (*Song, error)
	DeleteSongsNotScanned(folderID string, startedAt time.Time) (int64, error)
	PruneAlbumsWithoutSongs(folderID string) (int64, error)

	// Retrieval
	ResolveSong(userID, songID string) (*Song, error)
	ResolveCoverArt(userID, coverArtID string) (*CoverArt, error)
	VisibleMusicFolders(userID string) ([]MusicFolder, error)

	// Accounts
	UpsertUser(user *User) error
	GrantPermission(userID, folderID string) error
	RevokePermission(userID, folderID string) error
	HasPermission(userID, folderID string) (bool, error)

	// Enrichment
	SaveArtistInfo(info *ArtistInfo) error
	GetArtistInfo(artistID string) (*ArtistInfo, error)
	GetArtist(id string) (*Artist, error)
	ArtistIDsInFolder(folderID string) ([]string, error)
}

// DataStore implements the catalog operations on a gorm handle. Concrete
// stores embed it and provide Open/Close.
type DataStore struct {
	DB *gorm.DB
}

// New returns the store for the configured database backend.
func New(dbPath string) Interface {
	return &SQLiteStore{Settings: SQLiteSettings{Path: dbPath}}
}

// createGormLogger returns a gorm logger that only surfaces slow queries
// and errors.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
}
