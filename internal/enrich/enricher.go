package enrich

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/logging"
)

// Enricher fetches and stores artist information. Lookups are memoized so
// repeated browsing does not hammer the external service.
type Enricher struct {
	store     catalog.Interface
	informant Informant
	memo      *gocache.Cache
	log       *slog.Logger
}

func NewEnricher(store catalog.Interface, informant Informant) *Enricher {
	return &Enricher{
		store:     store,
		informant: informant,
		memo:      gocache.New(24*time.Hour, time.Hour),
		log:       logging.ForService("enrich"),
	}
}

// EnrichArtist looks an artist up and stores what the informant returns.
// Failures leave existing information untouched.
func (e *Enricher) EnrichArtist(ctx context.Context, artistID string) (*catalog.ArtistInfo, error) {
	if cached, ok := e.memo.Get(artistID); ok {
		return cached.(*catalog.ArtistInfo), nil
	}

	artist, err := e.store.GetArtist(artistID)
	if err != nil {
		return nil, err
	}
	info, err := e.informant.ArtistInfo(ctx, artist.Name, artist.MbzID)
	if err != nil {
		e.log.Warn("artist lookup failed", "artist", artist.Name, "error", err)
		return nil, err
	}

	record := &catalog.ArtistInfo{
		ArtistID:  artistID,
		Biography: info.Biography,
		ImageURL:  info.ImageURL,
		MbzID:     info.MbzID,
	}
	if err := e.store.SaveArtistInfo(record); err != nil {
		return nil, err
	}
	e.memo.SetDefault(artistID, record)
	return record, nil
}

// ArtistInfo returns stored information, fetching it on a miss. A failed
// fetch degrades to whatever the catalog already has.
func (e *Enricher) ArtistInfo(ctx context.Context, artistID string) (*catalog.ArtistInfo, error) {
	if cached, ok := e.memo.Get(artistID); ok {
		return cached.(*catalog.ArtistInfo), nil
	}
	if stored, err := e.store.GetArtistInfo(artistID); err == nil {
		e.memo.SetDefault(artistID, stored)
		return stored, nil
	}
	return e.EnrichArtist(ctx, artistID)
}
