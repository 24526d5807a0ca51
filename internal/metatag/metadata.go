// Package metatag extracts tag metadata and audio properties from media files.
package metatag

import (
	"strings"

	"golang.org/x/text/language"
)

// Date is a partial calendar date from a tag. Any component may be absent,
// but a month requires a year and a day requires a month.
type Date struct {
	Year  *int16
	Month *int16
	Day   *int16
}

// IsEmpty reports whether no component is set.
func (d Date) IsEmpty() bool {
	return d.Year == nil && d.Month == nil && d.Day == nil
}

// Artist is one artist credit as written in the tag.
type Artist struct {
	Name  string
	MbzID *string
}

// Artists holds the song-level and album-level artist credits of one file.
type Artists struct {
	Song        []Artist
	Album       []Artist
	Compilation bool
}

// TrackDisc is the position of a song within its album.
type TrackDisc struct {
	TrackNumber *int
	TrackTotal  *int
	DiscNumber  *int
	DiscTotal   *int
}

// Song carries the song-level fields of one file.
type Song struct {
	Title     string
	Date      Date
	Release   Date
	Original  Date
	MbzID     *string
	TrackDisc TrackDisc
}

// Album carries the album-level fields of one file.
type Album struct {
	Name     string
	Date     Date
	Release  Date
	Original Date
	MbzID    *string
}

// Picture is embedded artwork.
type Picture struct {
	MIMEType string
	Data     []byte
}

// Metadata is everything extracted from one file's tags.
type Metadata struct {
	Song      Song
	Album     Album
	Artists   Artists
	Genres    []string
	Languages []string
	Picture   *Picture
}

// parseLanguages maps tag language values to ISO 639-3 codes, dropping
// values that do not name a known language.
func parseLanguages(values []string) []string {
	var codes []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		tag, err := language.Parse(value)
		if err != nil {
			continue
		}
		base, confidence := tag.Base()
		if confidence < language.High {
			continue
		}
		codes = append(codes, base.ISO3())
	}
	return codes
}
