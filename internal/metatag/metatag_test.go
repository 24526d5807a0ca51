package metatag

import (
	"bytes"
	"testing"

	"github.com/dhowden/tag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subsona/subsona/internal/errors"
)

// fakeTag implements tag.Metadata for extractor tests.
type fakeTag struct {
	title, album, artist, albumArtist, genre string
	year                                     int
	track, trackTotal, disc, discTotal       int
	raw                                      map[string]any
	picture                                  *tag.Picture
}

func (f *fakeTag) Format() tag.Format     { return tag.VORBIS }
func (f *fakeTag) FileType() tag.FileType { return tag.FLAC }
func (f *fakeTag) Title() string          { return f.title }
func (f *fakeTag) Album() string          { return f.album }
func (f *fakeTag) Artist() string         { return f.artist }
func (f *fakeTag) AlbumArtist() string    { return f.albumArtist }
func (f *fakeTag) Composer() string       { return "" }
func (f *fakeTag) Genre() string          { return f.genre }
func (f *fakeTag) Year() int              { return f.year }
func (f *fakeTag) Track() (int, int)      { return f.track, f.trackTotal }
func (f *fakeTag) Disc() (int, int)       { return f.disc, f.discTotal }
func (f *fakeTag) Picture() *tag.Picture  { return f.picture }
func (f *fakeTag) Lyrics() string         { return "" }
func (f *fakeTag) Comment() string        { return "" }
func (f *fakeTag) Raw() map[string]any    { return f.raw }

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
	}{
		{"2001", Date{Year: int16Ptr(2001)}},
		{"2001-07", Date{Year: int16Ptr(2001), Month: int16Ptr(7)}},
		{"2001-07-04", Date{Year: int16Ptr(2001), Month: int16Ptr(7), Day: int16Ptr(4)}},
		{"2001-07-04T12:00:00", Date{Year: int16Ptr(2001), Month: int16Ptr(7), Day: int16Ptr(4)}},
		{"2001-13", Date{Year: int16Ptr(2001)}},
		{"2001-02-31", Date{Year: int16Ptr(2001), Month: int16Ptr(2), Day: int16Ptr(31)}},
		{"", Date{}},
		{"not a date", Date{}},
		{"0000", Date{}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseDate(tc.in), "input %q", tc.in)
	}
}

func TestExtractBasicFields(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	md := e.fromTag(&fakeTag{
		title:  "Paranoid Android",
		album:  "OK Computer",
		artist: "Radiohead",
		genre:  "Alternative Rock",
		year:   1997,
		track:  2, trackTotal: 12,
		disc: 1, discTotal: 1,
	}, "model/02 Paranoid Android.flac")

	assert.Equal(t, "Paranoid Android", md.Song.Title)
	assert.Equal(t, "OK Computer", md.Album.Name)
	require.Len(t, md.Artists.Song, 1)
	assert.Equal(t, "Radiohead", md.Artists.Song[0].Name)
	assert.Empty(t, md.Artists.Album)
	assert.False(t, md.Artists.Compilation)
	assert.Equal(t, []string{"Alternative Rock"}, md.Genres)
	require.NotNil(t, md.Song.Date.Year)
	assert.EqualValues(t, 1997, *md.Song.Date.Year)
	require.NotNil(t, md.Song.TrackDisc.TrackNumber)
	assert.Equal(t, 2, *md.Song.TrackDisc.TrackNumber)
	require.NotNil(t, md.Song.TrackDisc.TrackTotal)
	assert.Equal(t, 12, *md.Song.TrackDisc.TrackTotal)
}

func TestExtractFallsBackToFilename(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	md := e.fromTag(&fakeTag{artist: "Someone"}, "library/untitled demo.mp3")
	assert.Equal(t, "untitled demo", md.Song.Title)
	assert.Equal(t, "[Unknown Album]", md.Album.Name)
}

func TestExtractMultiValuedArtists(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	md := e.fromTag(&fakeTag{
		title:  "Duet",
		artist: "Alice; Bob",
		raw: map[string]any{
			"musicbrainz_artistid": "aaaa;bbbb",
		},
	}, "duet.flac")

	require.Len(t, md.Artists.Song, 2)
	assert.Equal(t, "Alice", md.Artists.Song[0].Name)
	assert.Equal(t, "Bob", md.Artists.Song[1].Name)
	require.NotNil(t, md.Artists.Song[0].MbzID)
	assert.Equal(t, "aaaa", *md.Artists.Song[0].MbzID)
	require.NotNil(t, md.Artists.Song[1].MbzID)
	assert.Equal(t, "bbbb", *md.Artists.Song[1].MbzID)
}

func TestExtractMbzIDCountMismatchDropsIDs(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	md := e.fromTag(&fakeTag{
		artist: "Alice; Bob",
		raw:    map[string]any{"musicbrainz_artistid": "aaaa"},
	}, "duet.flac")

	require.Len(t, md.Artists.Song, 2)
	assert.Nil(t, md.Artists.Song[0].MbzID)
	assert.Nil(t, md.Artists.Song[1].MbzID)
}

func TestExtractDatesAndCompilation(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	md := e.fromTag(&fakeTag{
		artist:      "Various",
		albumArtist: "Various Artists",
		raw: map[string]any{
			"date":         "1997-05-21",
			"originaldate": "1996",
			"releasedate":  "1997-06",
			"compilation":  "1",
			"language":     "eng;deu",
		},
	}, "x.flac")

	assert.Equal(t, Date{Year: int16Ptr(1997), Month: int16Ptr(5), Day: int16Ptr(21)}, md.Song.Date)
	assert.Equal(t, Date{Year: int16Ptr(1996)}, md.Song.Original)
	assert.Equal(t, Date{Year: int16Ptr(1997), Month: int16Ptr(6)}, md.Song.Release)
	assert.True(t, md.Artists.Compilation)
	assert.Equal(t, []string{"eng", "deu"}, md.Languages)
}

func TestExtractLanguageNamesNormalize(t *testing.T) {
	assert.Equal(t, []string{"eng"}, parseLanguages([]string{"en"}))
	assert.Equal(t, []string{"jpn"}, parseLanguages([]string{"ja"}))
	assert.Empty(t, parseLanguages([]string{"not-a-language-at-all", ""}))
}

func TestExtractPictureSizeLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPictureBytes = 4
	e := NewExtractor(cfg)

	md := e.fromTag(&fakeTag{
		artist:  "Alice",
		picture: &tag.Picture{MIMEType: "image/png", Data: []byte{1, 2, 3, 4, 5}},
	}, "x.flac")
	assert.Nil(t, md.Picture)

	md = e.fromTag(&fakeTag{
		artist:  "Alice",
		picture: &tag.Picture{MIMEType: "image/png", Data: []byte{1, 2, 3}},
	}, "x.flac")
	require.NotNil(t, md.Picture)
	assert.Equal(t, "image/png", md.Picture.MIMEType)
}

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "video"},
			{"codec_type": "audio", "sample_rate": "44100", "channels": 2, "bits_per_raw_sample": "16"}
		],
		"format": {"duration": "213.4", "bit_rate": "1024000"}
	}`)
	props, err := parseProbeOutput(data, "x.flac")
	require.NoError(t, err)
	assert.InDelta(t, 213.4, float64(props.Duration), 0.01)
	assert.Equal(t, 1024000, props.Bitrate)
	assert.Equal(t, 44100, props.SampleRate)
	assert.EqualValues(t, 2, props.ChannelCount)
	require.NotNil(t, props.BitDepth)
	assert.EqualValues(t, 16, *props.BitDepth)
}

func TestParseProbeOutputNoAudioStream(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams": [], "format": {}}`), "x.bin")
	assert.Error(t, err)
}

func TestExtractRejectsMissingArtist(t *testing.T) {
	// A bare ID3v2.4 header with an empty frame area carries no artist.
	untagged := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 0}
	e := NewExtractor(DefaultConfig())

	_, err := e.Extract(bytes.NewReader(untagged), "untagged.mp3")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSongArtistEmpty))
}
