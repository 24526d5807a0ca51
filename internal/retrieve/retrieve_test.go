package retrieve

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsona/subsona/internal/blobstore"
	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/format"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Init()
	m.Run()
}

// stubTranscoder returns a deterministic body derived from its arguments so
// tests can tell which input fed the transcode.
type stubTranscoder struct{}

func (stubTranscoder) Transcode(ctx context.Context, args TranscodeArgs) (io.ReadCloser, error) {
	body := fmt.Sprintf("transcoded|%s|%s|%d|%d", args.Input, args.Format, args.BitrateK, args.TimeOffset)
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

type fixture struct {
	store    *catalog.SQLiteStore
	service  *Service
	folder   *catalog.MusicFolder
	user     *catalog.User
	song     *catalog.Song
	content  []byte
	cacheDir string
}

func newFixture(t *testing.T, withCacheDir bool) *fixture {
	t.Helper()
	store := &catalog.SQLiteStore{
		Settings: catalog.SQLiteSettings{Path: filepath.Join(t.TempDir(), "catalog.db")},
	}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	musicDir := t.TempDir()
	folder := &catalog.MusicFolder{Name: "library", Path: musicDir, Backend: "local"}
	require.NoError(t, store.UpsertMusicFolder(folder))

	content := []byte("raw flac bytes for streaming tests")
	require.NoError(t, os.WriteFile(filepath.Join(musicDir, "song.flac"), content, 0o644))

	song, err := store.ApplySongScan(context.Background(), &catalog.SongScanBundle{
		Song: &catalog.Song{
			Title:         "Song",
			MusicFolderID: folder.ID,
			RelativePath:  "song.flac",
			Format:        "flac",
			Duration:      100,
			Bitrate:       900000,
			SampleRate:    44100,
			ChannelCount:  2,
			FileHash:      int64(blobstore.Sum64(content)),
			FileSize:      uint32(len(content)),
		},
		Album:       catalog.AlbumRef{Name: "Album"},
		SongArtists: []catalog.ArtistRef{{Name: "Artist"}},
		ScannedAt:   time.Now(),
	})
	require.NoError(t, err)

	user := &catalog.User{Name: "alice"}
	require.NoError(t, store.UpsertUser(user))
	require.NoError(t, store.GrantPermission(user.ID, folder.ID))

	transcode := conf.TranscodeSettings{}
	cacheDir := ""
	if withCacheDir {
		cacheDir = t.TempDir()
		transcode.CacheDir = cacheDir
	}
	coverArt := conf.CoverArtSettings{Dir: t.TempDir(), CacheDir: t.TempDir()}

	service := NewService(store, fsys.NewRegistry(conf.S3Settings{}), stubTranscoder{}, transcode, coverArt)
	return &fixture{
		store:    store,
		service:  service,
		folder:   folder,
		user:     user,
		song:     song,
		content:  content,
		cacheDir: cacheDir,
	}
}

func TestParseRangeOffset(t *testing.T) {
	cases := []struct {
		header  string
		size    int64
		want    int64
		wantErr bool
	}{
		{"", 100, 0, false},
		{"bytes=0-", 100, 0, false},
		{"bytes=42-", 100, 42, false},
		{"bytes=42-99", 100, 42, false},
		{"bytes=10-20, 30-40", 100, 10, false},
		{"bytes=-25", 100, 75, false},
		{"bytes=-200", 100, 0, false},
		{"bytes=100-", 100, 0, true},
		{"bytes=150-", 100, 0, true},
		{"chunks=1-2", 100, 0, true},
		{"bytes=abc-", 100, 0, true},
	}
	for _, tc := range cases {
		got, err := ParseRangeOffset(tc.header, tc.size)
		if tc.wantErr {
			assert.Error(t, err, "header %q", tc.header)
		} else {
			require.NoError(t, err, "header %q", tc.header)
			assert.Equal(t, tc.want, got, "header %q", tc.header)
		}
	}
}

func TestRangeNotSatisfiableIsTyped(t *testing.T) {
	_, err := ParseRangeOffset("bytes=500-", 100)
	assert.True(t, errors.Is(err, errors.ErrRangeNotSatisfiable))
}

func TestStreamRaw(t *testing.T) {
	fx := newFixture(t, true)

	stream, err := fx.service.StreamRaw(context.Background(), fx.user.ID, fx.song.ID, "")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, int64(len(fx.content)), stream.Property.Size)
	assert.Equal(t, "audio/flac", stream.Property.MIME)
	assert.True(t, stream.Property.Seekable)
	assert.NotEmpty(t, stream.Property.ETag)

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, fx.content, body)
}

func TestStreamRawWithRange(t *testing.T) {
	fx := newFixture(t, true)

	stream, err := fx.service.StreamRaw(context.Background(), fx.user.ID, fx.song.ID, "bytes=10-")
	require.NoError(t, err)
	defer stream.Close()

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, fx.content[10:], body)
}

func TestStreamRawDeniedReadsAsMissing(t *testing.T) {
	fx := newFixture(t, true)
	stranger := &catalog.User{Name: "mallory"}
	require.NoError(t, fx.store.UpsertUser(stranger))

	_, err := fx.service.StreamRaw(context.Background(), stranger.ID, fx.song.ID, "")
	assert.True(t, errors.IsNotFound(err))
}

func drain(t *testing.T, stream *Stream) []byte {
	t.Helper()
	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	return body
}

func TestStreamTranscodeCacheLifecycle(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()

	// First request transcodes live and fills the cache.
	stream, state, err := fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 0, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
	first := drain(t, stream)
	assert.Contains(t, string(first), "transcoded|")
	assert.False(t, stream.Property.Seekable)

	// Second request is served from the cache byte for byte.
	stream, state, err = fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 0, "")
	require.NoError(t, err)
	assert.Equal(t, ServeCachedOutput, state)
	assert.True(t, stream.Property.Seekable)
	assert.Equal(t, int64(len(first)), stream.Property.Size)
	assert.Equal(t, first, drain(t, stream))

	// A time offset against a warm cache transcodes from the cached file.
	stream, state, err = fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 30, "")
	require.NoError(t, err)
	assert.Equal(t, UseCachedOutput, state)
	body := drain(t, stream)
	assert.Contains(t, string(body), fx.cacheDir, "cached output feeds the transcoder")

	// A different bitrate is a different cache entry.
	stream, state, err = fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 64, 0, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
	drain(t, stream)
}

func TestStreamTranscodeTimeOffsetSkipsColdCache(t *testing.T) {
	fx := newFixture(t, true)

	stream, state, err := fx.service.StreamTranscode(context.Background(), fx.user.ID, fx.song.ID, format.TranscodeMp3, 128, 30, "")
	require.NoError(t, err)
	assert.Equal(t, NoCache, state)
	drain(t, stream)

	// Nothing was cached, the next plain request still transcodes.
	stream, state, err = fx.service.StreamTranscode(context.Background(), fx.user.ID, fx.song.ID, format.TranscodeMp3, 128, 0, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
	drain(t, stream)
}

func TestStreamTranscodeWithoutCacheDir(t *testing.T) {
	fx := newFixture(t, false)

	stream, state, err := fx.service.StreamTranscode(context.Background(), fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 0, "")
	require.NoError(t, err)
	assert.Equal(t, NoCache, state)
	drain(t, stream)
}

func TestStreamTranscodeAbandonedStreamDiscardsPartialCache(t *testing.T) {
	fx := newFixture(t, true)
	ctx := context.Background()

	stream, state, err := fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 0, "")
	require.NoError(t, err)
	require.Equal(t, WithCache, state)

	// Read a little, then walk away.
	buf := make([]byte, 4)
	_, err = stream.Read(buf)
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	// The partial output never became a cache entry.
	_, state, err = fx.service.StreamTranscode(ctx, fx.user.ID, fx.song.ID, format.TranscodeOpus, 128, 0, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var out bytes.Buffer
	require.NoError(t, png.Encode(&out, img))
	return out.Bytes()
}

func coverFixture(t *testing.T, fx *fixture, data []byte) string {
	t.Helper()
	_, hash, err := fx.service.covers.WriteBytes("cover.png", data)
	require.NoError(t, err)

	content := []byte("song with art")
	require.NoError(t, os.WriteFile(filepath.Join(fx.folder.Path, "art.flac"), content, 0o644))
	song, err := fx.store.ApplySongScan(context.Background(), &catalog.SongScanBundle{
		Song: &catalog.Song{
			Title:         "With Art",
			MusicFolderID: fx.folder.ID,
			RelativePath:  "art.flac",
			Format:        "flac",
			Duration:      10,
			Bitrate:       900000,
			SampleRate:    44100,
			ChannelCount:  2,
			FileHash:      int64(blobstore.Sum64(content)),
			FileSize:      uint32(len(content)),
		},
		Album:       catalog.AlbumRef{Name: "Album"},
		SongArtists: []catalog.ArtistRef{{Name: "Artist"}},
		CoverArt: &catalog.CoverArtRef{
			Format: string(format.ImagePng),
			Hash:   int64(hash),
			Size:   uint32(len(data)),
		},
		ScannedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, song.CoverArtID)
	return *song.CoverArtID
}

func TestCoverArtOriginal(t *testing.T) {
	fx := newFixture(t, true)
	data := testPNG(t, 600, 400)
	coverID := coverFixture(t, fx, data)

	stream, state, err := fx.service.CoverArt(context.Background(), fx.user.ID, coverID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, NoCache, state)
	assert.Equal(t, "image/png", stream.Property.MIME)
	assert.Equal(t, data, drain(t, stream))
}

func TestCoverArtResizeAndCache(t *testing.T) {
	fx := newFixture(t, true)
	coverID := coverFixture(t, fx, testPNG(t, 600, 400))
	ctx := context.Background()

	stream, state, err := fx.service.CoverArt(ctx, fx.user.ID, coverID, 128, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
	resized := drain(t, stream)
	assert.Equal(t, "image/jpeg", stream.Property.MIME)

	img, kind, err := image.Decode(bytes.NewReader(resized))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", kind)
	assert.Equal(t, 128, img.Bounds().Dx(), "longest side hits the target")
	assert.Equal(t, 85, img.Bounds().Dy(), "aspect ratio is kept")

	stream, state, err = fx.service.CoverArt(ctx, fx.user.ID, coverID, 128, "")
	require.NoError(t, err)
	assert.Equal(t, ServeCachedOutput, state)
	assert.Equal(t, resized, drain(t, stream))

	// A different size is a different rendition.
	stream, state, err = fx.service.CoverArt(ctx, fx.user.ID, coverID, 64, "")
	require.NoError(t, err)
	assert.Equal(t, WithCache, state)
	drain(t, stream)
}

func TestCoverArtDeniedReadsAsMissing(t *testing.T) {
	fx := newFixture(t, true)
	coverID := coverFixture(t, fx, testPNG(t, 64, 64))

	stranger := &catalog.User{Name: "mallory"}
	require.NoError(t, fx.store.UpsertUser(stranger))
	_, _, err := fx.service.CoverArt(context.Background(), stranger.ID, coverID, 0, "")
	assert.True(t, errors.IsNotFound(err))
}

func TestProcessStreamDeliversAllOutput(t *testing.T) {
	payload := bytes.Repeat([]byte("abc123"), 100)
	stream := newProcessStream(io.NopCloser(bytes.NewReader(payload)), func() {}, func() error { return nil }, 7, 2)

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, stream.Close())
}

func TestProcessStreamSurfacesExitError(t *testing.T) {
	wait := func() error { return fmt.Errorf("exit status 1") }
	stream := newProcessStream(io.NopCloser(bytes.NewReader([]byte("partial"))), func() {}, wait, 4, 0)

	got, err := io.ReadAll(stream)
	assert.Equal(t, []byte("partial"), got)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTranscode))
	require.NoError(t, stream.Close())
}

func TestProcessStreamCloseStopsPump(t *testing.T) {
	pr, pw := io.Pipe()
	var killed atomic.Bool
	kill := func() {
		killed.Store(true)
		_ = pw.CloseWithError(io.ErrClosedPipe)
	}
	stream := newProcessStream(pr, kill, func() error { return nil }, 8, 1)

	require.NoError(t, stream.Close())
	assert.True(t, killed.Load())

	_, err := stream.Read(make([]byte, 1))
	assert.Error(t, err)
}
