package catalog

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/subsona/subsona/internal/errors"
)

// UpsertMusicFolder creates or updates a folder by name.
func (ds *DataStore) UpsertMusicFolder(folder *MusicFolder) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"path", "backend", "allow_access", "updated_at"}),
	}).Create(folder).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	var existing MusicFolder
	if err := ds.DB.Select("id").Where("name = ?", folder.Name).First(&existing).Error; err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	folder.ID = existing.ID
	return nil
}

// SetFolderAccess opens or closes a folder for all users at once.
func (ds *DataStore) SetFolderAccess(folderID string, allow bool) error {
	result := ds.DB.Model(&MusicFolder{}).Where("id = ?", folderID).
		Update("allow_access", allow)
	if result.Error != nil {
		return errors.New(result.Error).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("music folder", folderID)
	}
	return nil
}

// GetMusicFolder fetches a folder by id.
func (ds *DataStore) GetMusicFolder(id string) (*MusicFolder, error) {
	var folder MusicFolder
	if err := ds.DB.Where("id = ?", id).First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("music folder", id)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &folder, nil
}

// ListMusicFolders returns every folder regardless of permissions.
func (ds *DataStore) ListMusicFolders() ([]MusicFolder, error) {
	var folders []MusicFolder
	if err := ds.DB.Order("name").Find(&folders).Error; err != nil {
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return folders, nil
}

// UpsertUser creates or updates a user by name.
func (ds *DataStore) UpsertUser(user *User) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(user).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	var existing User
	if err := ds.DB.Select("id").Where("name = ?", user.Name).First(&existing).Error; err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	user.ID = existing.ID
	return nil
}

// GrantPermission allows a user to access a music folder.
func (ds *DataStore) GrantPermission(userID, folderID string) error {
	perm := Permission{UserID: userID, MusicFolderID: folderID}
	err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&perm).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// RevokePermission removes a user's access to a music folder.
func (ds *DataStore) RevokePermission(userID, folderID string) error {
	err := ds.DB.Where("user_id = ? AND music_folder_id = ?", userID, folderID).
		Delete(&Permission{}).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// HasPermission reports whether a user may access a folder. A folder with
// access switched off is closed to everyone, permission row or not.
func (ds *DataStore) HasPermission(userID, folderID string) (bool, error) {
	var count int64
	err := ds.DB.Model(&Permission{}).
		Joins("JOIN music_folders ON music_folders.id = permissions.music_folder_id").
		Where("permissions.user_id = ? AND permissions.music_folder_id = ? AND music_folders.allow_access",
			userID, folderID).
		Count(&count).Error
	if err != nil {
		return false, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return count > 0, nil
}

// SaveArtistInfo stores fetched enrichment data for an artist.
func (ds *DataStore) SaveArtistInfo(info *ArtistInfo) error {
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "artist_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"biography", "image_url", "mbz_id", "updated_at"}),
	}).Create(info).Error
	if err != nil {
		return errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return nil
}

// GetArtistInfo fetches stored enrichment data for an artist.
func (ds *DataStore) GetArtistInfo(artistID string) (*ArtistInfo, error) {
	var info ArtistInfo
	if err := ds.DB.Where("artist_id = ?", artistID).First(&info).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("artist info", artistID)
		}
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
	return &info, nil
}

// ArtistIDsInFolder lists every artist credited on a folder's songs, in either
// the song or album artist role.
func (ds *DataStore) ArtistIDsInFolder(folderID string) ([]string, error) {
	var songArtists []string
	err := ds.DB.Model(&SongArtist{}).
		Distinct("song_artists.artist_id").
		Joins("JOIN songs ON songs.id = song_artists.song_id").
		Where("songs.music_folder_id = ?", folderID).
		Pluck("song_artists.artist_id", &songArtists).Error
	if err != nil {
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}

	var albumArtists []string
	err = ds.DB.Model(&SongAlbumArtist{}).
		Distinct("song_album_artists.album_artist_id").
		Joins("JOIN songs ON songs.id = song_album_artists.song_id").
		Where("songs.music_folder_id = ?", folderID).
		Pluck("song_album_artists.album_artist_id", &albumArtists).Error
	if err != nil {
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}

	seen := make(map[string]bool, len(songArtists)+len(albumArtists))
	ids := make([]string, 0, len(songArtists)+len(albumArtists))
	for _, id := range append(songArtists, albumArtists...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
