package fsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsona/subsona/internal/conf"
)

func testS3Settings() conf.S3Settings {
	return conf.S3Settings{
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "test",
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{name: "bucket and key", path: "/music/artist/song.flac", wantBucket: "music", wantKey: "artist/song.flac"},
		{name: "bucket only", path: "/music", wantBucket: "music", wantKey: ""},
		{name: "bucket with trailing slash", path: "/music/", wantBucket: "music", wantKey: ""},
		{name: "relative path", path: "music/song.flac", wantErr: true},
		{name: "empty bucket", path: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bucket, key, err := splitPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
