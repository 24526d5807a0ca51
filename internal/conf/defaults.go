// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Subsona")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "subsona.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("database.path", "subsona.db")

	viper.SetDefault("scan.poolsize", 8)
	viper.SetDefault("scan.channelsize", 64)
	viper.SetDefault("scan.minimumsize", 64)

	viper.SetDefault("index.ignoreprefixes", []string{"The ", "A ", "An "})

	viper.SetDefault("transcode.binary", "ffmpeg")
	viper.SetDefault("transcode.cachedir", "")
	viper.SetDefault("transcode.buffersize", 32*1024)
	viper.SetDefault("transcode.channelsize", 16)

	viper.SetDefault("coverart.dir", "")
	viper.SetDefault("coverart.cachedir", "")

	viper.SetDefault("s3.endpoint", "")
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.usepathstyle", false)
	viper.SetDefault("s3.connecttimeout", 5)

	viper.SetDefault("lastfm.enabled", false)
	viper.SetDefault("lastfm.key", "")
}
