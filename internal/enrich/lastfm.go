// Package enrich pulls best-effort artist information from external
// services into the catalog.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/errors"
)

// Info is what an informant knows about an artist.
type Info struct {
	Biography string
	ImageURL  string
	MbzID     *string
}

// Informant answers artist lookups against an external service.
type Informant interface {
	ArtistInfo(ctx context.Context, name string, mbzID *string) (*Info, error)
}

const defaultLastFMRoot = "https://ws.audioscrobbler.com/2.0/"

// LastFM implements Informant against the Last.fm artist.getInfo API.
type LastFM struct {
	client *http.Client
	key    string
	root   string
}

func NewLastFM(cfg conf.LastFMSettings) *LastFM {
	return &LastFM{
		client: &http.Client{Timeout: 10 * time.Second},
		key:    cfg.Key,
		root:   defaultLastFMRoot,
	}
}

type lastFMResponse struct {
	Artist struct {
		MBID string `json:"mbid"`
		Bio  struct {
			Summary string `json:"summary"`
		} `json:"bio"`
		Image []struct {
			URL  string `json:"#text"`
			Size string `json:"size"`
		} `json:"image"`
	} `json:"artist"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

func (l *LastFM) ArtistInfo(ctx context.Context, name string, mbzID *string) (*Info, error) {
	params := url.Values{}
	params.Set("method", "artist.getInfo")
	params.Set("api_key", l.key)
	params.Set("format", "json")
	if mbzID != nil && *mbzID != "" {
		params.Set("mbid", *mbzID)
	} else {
		params.Set("artist", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.root+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, errors.New(err).Component("enrich").Category(errors.CategoryIntegration).Build()
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("enrich").
			Category(errors.CategoryNetwork).
			Context("artist", name).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("artist lookup returned status %d", resp.StatusCode).
			Component("enrich").
			Category(errors.CategoryIntegration).
			Context("artist", name).
			Build()
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.New(err).Component("enrich").Category(errors.CategoryNetwork).Build()
	}

	var parsed lastFMResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.New(err).Component("enrich").Category(errors.CategoryIntegration).Build()
	}
	if parsed.Error != 0 {
		return nil, errors.Newf("artist lookup failed: %s", parsed.Message).
			Component("enrich").
			Category(errors.CategoryIntegration).
			Context("artist", name).
			Context("code", fmt.Sprint(parsed.Error)).
			Build()
	}

	info := &Info{Biography: strings.TrimSpace(parsed.Artist.Bio.Summary)}
	if parsed.Artist.MBID != "" {
		mbid := parsed.Artist.MBID
		info.MbzID = &mbid
	}
	// Prefer the largest rendition Last.fm offers.
	for _, size := range []string{"mega", "extralarge", "large"} {
		for _, image := range parsed.Artist.Image {
			if image.Size == size && image.URL != "" {
				info.ImageURL = image.URL
				return info, nil
			}
		}
	}
	return info, nil
}
