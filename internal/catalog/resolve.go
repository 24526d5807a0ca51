package catalog

import (
	"gorm.io/gorm"

	"github.com/subsona/subsona/internal/errors"
)

// ResolveSong returns a song only when the user may access its folder.
// Denied access is indistinguishable from a missing song.
func (ds *DataStore) ResolveSong(userID, songID string) (*Song, error) {
	var song Song
	err := ds.DB.
		Joins("JOIN music_folders ON music_folders.id = songs.music_folder_id").
		Joins("JOIN permissions ON permissions.music_folder_id = songs.music_folder_id").
		Where("songs.id = ? AND permissions.user_id = ? AND music_folders.allow_access", songID, userID).
		First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("song", songID)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &song, nil
}

// ResolveCoverArt returns cover art only when the user may access at least
// one song referencing it.
func (ds *DataStore) ResolveCoverArt(userID, coverArtID string) (*CoverArt, error) {
	var cover CoverArt
	err := ds.DB.
		Joins("JOIN songs ON songs.cover_art_id = cover_arts.id").
		Joins("JOIN music_folders ON music_folders.id = songs.music_folder_id").
		Joins("JOIN permissions ON permissions.music_folder_id = songs.music_folder_id").
		Where("cover_arts.id = ? AND permissions.user_id = ? AND music_folders.allow_access", coverArtID, userID).
		First(&cover).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("cover art", coverArtID)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &cover, nil
}

// VisibleMusicFolders lists the accessible folders a user holds permissions
// for.
func (ds *DataStore) VisibleMusicFolders(userID string) ([]MusicFolder, error) {
	var folders []MusicFolder
	err := ds.DB.
		Joins("JOIN permissions ON permissions.music_folder_id = music_folders.id").
		Where("permissions.user_id = ? AND music_folders.allow_access", userID).
		Order("music_folders.name").
		Find(&folders).Error
	if err != nil {
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return folders, nil
}

// GetArtist fetches an artist by id.
func (ds *DataStore) GetArtist(id string) (*Artist, error) {
	var artist Artist
	if err := ds.DB.Where("id = ?", id).First(&artist).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("artist", id)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &artist, nil
}
