package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded configuration for values the engine
// cannot work with. It returns the first error encountered.
func ValidateSettings(settings *Settings) error {
	if settings.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if settings.Scan.PoolSize < 1 {
		return fmt.Errorf("scan.poolsize must be at least 1, got %d", settings.Scan.PoolSize)
	}
	if settings.Scan.ChannelSize < 0 {
		return fmt.Errorf("scan.channelsize must not be negative, got %d", settings.Scan.ChannelSize)
	}
	if settings.Scan.MinimumSize < 0 {
		return fmt.Errorf("scan.minimumsize must not be negative, got %d", settings.Scan.MinimumSize)
	}
	if settings.Transcode.Binary == "" {
		return errors.New("transcode.binary must not be empty")
	}
	if settings.Transcode.BufferSize < 1 {
		return fmt.Errorf("transcode.buffersize must be at least 1, got %d", settings.Transcode.BufferSize)
	}
	if settings.LastFM.Enabled && settings.LastFM.Key == "" {
		return errors.New("lastfm.key must be set when lastfm is enabled")
	}
	return nil
}
