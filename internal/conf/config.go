// Package conf loads and validates the server configuration.
package conf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// LogSettings contains log rotation configuration
type LogSettings struct {
	Enabled    bool   `yaml:"enabled"`    // true to enable file logging
	Path       string `yaml:"path"`       // path to log file
	MaxSize    int    `yaml:"maxsize"`    // rotate after this many megabytes
	MaxBackups int    `yaml:"maxbackups"` // number of rotated files to keep
	MaxAge     int    `yaml:"maxage"`     // days to keep rotated files
}

// MainSettings contains process level configuration
type MainSettings struct {
	Name string      `yaml:"name"` // name of the instance
	Log  LogSettings `yaml:"log"`  // log settings
}

// DatabaseSettings contains the relational catalog configuration
type DatabaseSettings struct {
	Path string `yaml:"path"` // path to the SQLite database file
}

// ScanSettings contains scan pipeline tuning
type ScanSettings struct {
	PoolSize    int   `yaml:"poolsize"`    // number of concurrent extract/upsert workers
	ChannelSize int   `yaml:"channelsize"` // entry channel capacity, 0 for unbounded
	MinimumSize int64 `yaml:"minimumsize"` // ignore files smaller than this many bytes
}

// IndexSettings controls how artist browsing indexes are derived
type IndexSettings struct {
	IgnorePrefixes []string `yaml:"ignoreprefixes"` // article prefixes stripped before indexing
}

// TranscodeSettings contains on-demand transcoding configuration
type TranscodeSettings struct {
	Binary      string `yaml:"binary"`      // ffmpeg binary name or path
	CacheDir    string `yaml:"cachedir"`    // transcode cache root, empty disables caching
	BufferSize  int    `yaml:"buffersize"`  // read buffer size for transcoder output
	ChannelSize int    `yaml:"channelsize"` // chunk channel capacity, 0 for unbounded
}

// CoverArtSettings contains cover art storage configuration
type CoverArtSettings struct {
	Dir      string `yaml:"dir"`      // extracted cover art root, empty disables extraction
	CacheDir string `yaml:"cachedir"` // resized rendition cache root, empty disables caching
}

// S3Settings contains the object storage backend configuration
type S3Settings struct {
	Endpoint       string `yaml:"endpoint"`       // custom endpoint, empty for AWS
	Region         string `yaml:"region"`         // bucket region
	AccessKey      string `yaml:"accesskey"`      // static access key id
	SecretKey      string `yaml:"secretkey"`      // static secret access key
	UsePathStyle   bool   `yaml:"usepathstyle"`   // force path-style bucket addressing
	ConnectTimeout int    `yaml:"connecttimeout"` // connect timeout in seconds
}

// LastFMSettings contains the artist enrichment collaborator configuration
type LastFMSettings struct {
	Enabled bool   `yaml:"enabled"` // true to enable artist info lookups
	Key     string `yaml:"key"`     // API key
}

// Settings contains all runtime settings
type Settings struct {
	Debug     bool              `yaml:"debug"` // true to enable debug logging
	Main      MainSettings      `yaml:"main"`
	Database  DatabaseSettings  `yaml:"database"`
	Scan      ScanSettings      `yaml:"scan"`
	Index     IndexSettings     `yaml:"index"`
	Transcode TranscodeSettings `yaml:"transcode"`
	CoverArt  CoverArtSettings  `yaml:"coverart"`
	S3        S3Settings        `yaml:"s3"`
	LastFM    LastFMSettings    `yaml:"lastfm"`
}

var settingsMutex sync.RWMutex

// Load reads the configuration file and environment variables into a Settings value.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/subsona")
	viper.AddConfigPath("/etc/subsona")

	viper.SetEnvPrefix("subsona")
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Missing config file is fine, defaults and env cover everything.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}
