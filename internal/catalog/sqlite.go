package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteSettings configures the SQLite backed store.
type SQLiteSettings struct {
	Path string
}

// SQLiteStore implements Interface on a SQLite database.
type SQLiteStore struct {
	DataStore
	Settings SQLiteSettings
}

// Open connects to the SQLite database and migrates the schema.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Path
	if path == "" {
		return fmt.Errorf("sqlite database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Scan workers write concurrently; without a busy timeout SQLite
	// surfaces lock contention as hard errors.
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db)
}

func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// performAutoMigration keeps the schema in sync with the model structs.
func performAutoMigration(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&MusicFolder{},
		&Artist{},
		&Album{},
		&Genre{},
		&Song{},
		&SongArtist{},
		&SongAlbumArtist{},
		&SongGenre{},
		&CoverArt{},
		&User{},
		&Permission{},
		&ArtistInfo{},
		&ScanRecord{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
