package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	return &Settings{
		Database:  DatabaseSettings{Path: "test.db"},
		Scan:      ScanSettings{PoolSize: 4, ChannelSize: 16, MinimumSize: 0},
		Transcode: TranscodeSettings{Binary: "ffmpeg", BufferSize: 4096},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "valid defaults", mutate: func(s *Settings) {}, wantErr: false},
		{name: "empty database path", mutate: func(s *Settings) { s.Database.Path = "" }, wantErr: true},
		{name: "zero pool size", mutate: func(s *Settings) { s.Scan.PoolSize = 0 }, wantErr: true},
		{name: "negative channel size", mutate: func(s *Settings) { s.Scan.ChannelSize = -1 }, wantErr: true},
		{name: "empty transcode binary", mutate: func(s *Settings) { s.Transcode.Binary = "" }, wantErr: true},
		{name: "lastfm enabled without key", mutate: func(s *Settings) { s.LastFM.Enabled = true }, wantErr: true},
		{name: "lastfm enabled with key", mutate: func(s *Settings) {
			s.LastFM.Enabled = true
			s.LastFM.Key = "k"
		}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
