package metatag

import (
	"io"
	"strings"

	"github.com/dhowden/tag"

	"github.com/subsona/subsona/internal/errors"
)

// Config controls how raw tag values are interpreted.
type Config struct {
	// Separators split multi-valued fields stored as one string.
	Separators []string
	// MaxPictureBytes drops embedded artwork larger than this.
	MaxPictureBytes int
}

// DefaultConfig mirrors the common tagger conventions.
func DefaultConfig() Config {
	return Config{
		Separators:      []string{";", "/", "\x00"},
		MaxPictureBytes: 10 * 1024 * 1024,
	}
}

// Extractor reads tags with dhowden/tag and normalizes them into Metadata.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if len(cfg.Separators) == 0 {
		cfg = DefaultConfig()
	}
	return &Extractor{cfg: cfg}
}

// Extract parses the tags of one media file. The title falls back to the
// file name and the album to a placeholder, but a file without any song
// artist is rejected.
func (e *Extractor) Extract(r io.ReadSeeker, filename string) (*Metadata, error) {
	raw, err := tag.ReadFrom(r)
	if err != nil {
		return nil, errors.New(err).
			Component("metatag").
			Category(errors.CategoryMediaParsing).
			FileContext(filename, 0).
			Build()
	}
	md := e.fromTag(raw, filename)
	if len(md.Artists.Song) == 0 {
		return nil, errors.New(errors.ErrSongArtistEmpty).
			Component("metatag").
			Category(errors.CategoryMediaParsing).
			FileContext(filename, 0).
			Build()
	}
	return md, nil
}

func (e *Extractor) fromTag(raw tag.Metadata, filename string) *Metadata {
	fields := indexRaw(raw)

	md := &Metadata{}
	md.Song.Title = clean(raw.Title())
	if md.Song.Title == "" {
		md.Song.Title = baseName(filename)
	}
	md.Album.Name = clean(raw.Album())
	if md.Album.Name == "" {
		md.Album.Name = "[Unknown Album]"
	}

	md.Song.Date = e.date(fields, "date", "tdrc", "tyer")
	if md.Song.Date.IsEmpty() && raw.Year() > 0 {
		md.Song.Date = Date{Year: int16Ptr(int16(raw.Year()))}
	}
	md.Song.Release = e.date(fields, "releasedate", "tdrl")
	md.Song.Original = e.date(fields, "originaldate", "tdor", "tory")
	md.Album.Date = md.Song.Date
	md.Album.Release = md.Song.Release
	md.Album.Original = md.Song.Original

	md.Song.MbzID = e.mbzID(fields, "musicbrainz_trackid", "musicbrainz release track id")
	md.Album.MbzID = e.mbzID(fields, "musicbrainz_albumid", "musicbrainz album id")

	trackNumber, trackTotal := raw.Track()
	discNumber, discTotal := raw.Disc()
	md.Song.TrackDisc = TrackDisc{
		TrackNumber: positive(trackNumber),
		TrackTotal:  positive(trackTotal),
		DiscNumber:  positive(discNumber),
		DiscTotal:   positive(discTotal),
	}

	md.Artists.Song = e.artists(
		firstNonEmpty(fields.join("artists"), raw.Artist()),
		fields.join("musicbrainz_artistid"),
	)
	md.Artists.Album = e.artists(
		firstNonEmpty(fields.join("albumartists"), raw.AlbumArtist()),
		fields.join("musicbrainz_albumartistid"),
	)
	md.Artists.Compilation = isTruthy(fields.first("compilation", "tcmp"))

	md.Genres = e.split(raw.Genre())
	md.Languages = parseLanguages(e.split(fields.first("language", "tlan")))

	if pic := raw.Picture(); pic != nil && len(pic.Data) > 0 &&
		(e.cfg.MaxPictureBytes <= 0 || len(pic.Data) <= e.cfg.MaxPictureBytes) {
		md.Picture = &Picture{MIMEType: pic.MIMEType, Data: pic.Data}
	}
	return md
}

// artists splits a joined credit string and pairs it positionally with
// MusicBrainz artist ids when the counts line up.
func (e *Extractor) artists(joined, mbzJoined string) []Artist {
	names := e.split(joined)
	mbzIDs := e.split(mbzJoined)
	artists := make([]Artist, 0, len(names))
	for i, name := range names {
		artist := Artist{Name: name}
		if len(mbzIDs) == len(names) {
			id := mbzIDs[i]
			artist.MbzID = &id
		}
		artists = append(artists, artist)
	}
	return artists
}

func (e *Extractor) split(value string) []string {
	if value == "" {
		return nil
	}
	parts := []string{value}
	for _, sep := range e.cfg.Separators {
		var next []string
		for _, part := range parts {
			next = append(next, strings.Split(part, sep)...)
		}
		parts = next
	}
	var out []string
	for _, part := range parts {
		if part = clean(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *Extractor) date(fields rawFields, keys ...string) Date {
	for _, key := range keys {
		if value := fields.first(key); value != "" {
			if date := ParseDate(value); !date.IsEmpty() {
				return date
			}
		}
	}
	return Date{}
}

func (e *Extractor) mbzID(fields rawFields, keys ...string) *string {
	if value := fields.first(keys...); value != "" {
		return &value
	}
	return nil
}

// rawFields indexes Raw() values by lower-cased key. ID3v2 TXXX frames are
// additionally indexed by their description.
type rawFields map[string][]string

func indexRaw(raw tag.Metadata) rawFields {
	fields := make(rawFields)
	for key, value := range raw.Raw() {
		var text string
		switch v := value.(type) {
		case string:
			text = v
		case *tag.Comm:
			if v.Description != "" {
				key = v.Description
			}
			text = v.Text
		default:
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		key = strings.TrimPrefix(key, "txxx:")
		// Null bytes join multiple values inside one frame.
		for _, part := range strings.Split(text, "\x00") {
			if part = clean(part); part != "" {
				fields[key] = append(fields[key], part)
			}
		}
	}
	return fields
}

func (f rawFields) first(keys ...string) string {
	for _, key := range keys {
		if values := f[key]; len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func (f rawFields) join(key string) string {
	return strings.Join(f[key], ";")
}

func clean(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "\x00", "")
	value = strings.ReplaceAll(value, "�", "")
	return value
}

func baseName(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
