// model.go defines the relational catalog data model
package catalog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MusicFolder is the root of one scan scope.
type MusicFolder struct {
	ID          string `gorm:"primaryKey;size:36"`
	Name        string `gorm:"uniqueIndex;not null"`
	Path        string `gorm:"not null"`
	Backend     string `gorm:"not null;default:local"` // local or s3
	AllowAccess bool   `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (mf *MusicFolder) BeforeCreate(*gorm.DB) error {
	if mf.ID == "" {
		mf.ID = uuid.NewString()
	}
	return nil
}

// Artist is identified by its exact name. Rows are created lazily on first
// reference and never deleted by the scanner.
type Artist struct {
	ID        string  `gorm:"primaryKey;size:36"`
	Name      string  `gorm:"uniqueIndex;not null"`
	Index     string  `gorm:"not null"` // browsing index character
	MbzID     *string `gorm:"size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ScannedAt time.Time `gorm:"index"`
}

func (a *Artist) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Album groups songs within a music folder. Identity is (music_folder_id,
// name); release dates and MusicBrainz id are attributes, not identity.
type Album struct {
	ID                   string `gorm:"primaryKey;size:36"`
	Name                 string `gorm:"not null;uniqueIndex:idx_albums_folder_name,priority:2"`
	MusicFolderID        string `gorm:"size:36;not null;uniqueIndex:idx_albums_folder_name,priority:1;constraint:OnDelete:CASCADE"`
	Year                 *int16
	Month                *int16
	Day                  *int16
	ReleaseYear          *int16
	ReleaseMonth         *int16
	ReleaseDay           *int16
	OriginalReleaseYear  *int16
	OriginalReleaseMonth *int16
	OriginalReleaseDay   *int16
	MbzID                *string `gorm:"size:36"`
	CoverArtID           *string `gorm:"size:36"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ScannedAt            time.Time `gorm:"index"`
}

func (a *Album) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Genre is identified by its exact value.
type Genre struct {
	ID        string `gorm:"primaryKey;size:36"`
	Value     string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g *Genre) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// Song is one media file inside a music folder. Change detection identity is
// (music_folder_id, relative_path); content identity is (file_hash, file_size).
type Song struct {
	ID            string `gorm:"primaryKey;size:36"`
	Title         string `gorm:"not null"`
	AlbumID       string `gorm:"size:36;not null;index;constraint:OnDelete:CASCADE"`
	MusicFolderID string `gorm:"size:36;not null;uniqueIndex:idx_songs_folder_path,priority:1;constraint:OnDelete:CASCADE"`
	RelativePath  string `gorm:"not null;uniqueIndex:idx_songs_folder_path,priority:2"`

	TrackNumber *int
	TrackTotal  *int
	DiscNumber  *int
	DiscTotal   *int

	Year                 *int16
	Month                *int16
	Day                  *int16
	ReleaseYear          *int16
	ReleaseMonth         *int16
	ReleaseDay           *int16
	OriginalReleaseYear  *int16
	OriginalReleaseMonth *int16
	OriginalReleaseDay   *int16

	// Languages holds ISO 639-3 codes joined by commas.
	Languages string

	Format       string  `gorm:"not null"`
	Duration     float32 `gorm:"not null"`
	Bitrate      int     `gorm:"not null"`
	BitDepth     *int16
	SampleRate   int   `gorm:"not null"`
	ChannelCount int16 `gorm:"not null"`

	FileHash int64  `gorm:"not null;index:idx_songs_content,priority:1"`
	FileSize uint32 `gorm:"not null;index:idx_songs_content,priority:2"`

	CoverArtID *string `gorm:"size:36"`
	MbzID      *string `gorm:"size:36"`

	CreatedAt time.Time
	UpdatedAt time.Time
	ScannedAt time.Time `gorm:"index"`
}

func (s *Song) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// SongArtist links a song to one of its performing artists.
type SongArtist struct {
	SongID     string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	ArtistID   string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	UpsertedAt time.Time `gorm:"not null"`
}

// SongAlbumArtist links a song to an album-level artist. Compilation records
// whether the link was derived from the compilation fallback.
type SongAlbumArtist struct {
	SongID        string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	AlbumArtistID string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	Compilation   bool      `gorm:"not null"`
	UpsertedAt    time.Time `gorm:"not null"`
}

// SongGenre links a song to a genre.
type SongGenre struct {
	SongID     string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	GenreID    string    `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	UpsertedAt time.Time `gorm:"not null"`
}

// CoverArt is a content-addressed binary artifact extracted from tags.
type CoverArt struct {
	ID        string `gorm:"primaryKey;size:36"`
	Format    string `gorm:"not null"`
	FileHash  int64  `gorm:"not null;uniqueIndex:idx_cover_arts_content,priority:1"`
	FileSize  uint32 `gorm:"not null;uniqueIndex:idx_cover_arts_content,priority:2"`
	CreatedAt time.Time
}

func (c *CoverArt) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// User owns permissions. Only the subset of the account model the engine
// needs is kept here.
type User struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Permission is the per (user, music folder) allow-list. Absence of a row
// means no access.
type Permission struct {
	UserID        string `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	MusicFolderID string `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
}

// ArtistInfo stores best-effort enrichment data fetched from external
// integrations.
type ArtistInfo struct {
	ArtistID  string `gorm:"primaryKey;size:36;constraint:OnDelete:CASCADE"`
	Biography string
	ImageURL  string
	MbzID     *string `gorm:"size:36"`
	UpdatedAt time.Time
}

// ScanRecord summarizes one completed or failed scan pass.
type ScanRecord struct {
	ID            string    `gorm:"primaryKey;size:36"`
	MusicFolderID string    `gorm:"size:36;not null;index;constraint:OnDelete:CASCADE"`
	StartedAt     time.Time `gorm:"not null"`
	FinishedAt    *time.Time
	ScannedCount  int64
	UpsertedCount int64
	DeletedCount  int64
	ErrorCount    int64
	Unrecoverable bool
}

func (s *ScanRecord) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
