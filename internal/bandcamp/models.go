package bandcamp

import (
	"encoding/json"
	"fmt"
)

// Band is a Bandcamp artist or label.
type Band struct {
	Name      string `json:"name,omitempty"`
	Subdomain string `json:"subdomain,omitempty"`
	URL       string `json:"url,omitempty"`
	ID        int64  `json:"band_id,omitempty"`
}

// Album is a release with its track listing.
type Album struct {
	ID     int64  `json:"album_id,omitempty"`
	BandID int64  `json:"band_id,omitempty"`
	Title  string `json:"title,omitempty"`
	// Unix seconds
	ReleaseDate int64 `json:"release_date,omitempty"`
	// 1: free, 2: paid
	Downloadable int      `json:"downloadable,omitempty"`
	URL          string   `json:"url,omitempty"`
	Tracks       []*Track `json:"tracks,omitempty"`
	About        string   `json:"about,omitempty"`
	Credits      string   `json:"credits,omitempty"`
	SmallArtURL  string   `json:"small_art_url,omitempty"`
	LargeArtURL  string   `json:"large_art_url,omitempty"`
	Artist       string   `json:"artist,omitempty"`
}

// Track is a single song, standalone or part of an album.
type Track struct {
	ID           int64  `json:"track_id,omitempty"`
	AlbumID      int64  `json:"album_id,omitempty"`
	BandID       int64  `json:"band_id,omitempty"`
	Number       int    `json:"number,omitempty"`
	Title        string `json:"title,omitempty"`
	About        string `json:"about,omitempty"`
	Credits      string `json:"credits,omitempty"`
	StreamingURL string `json:"streaming_url,omitempty"`
	// Seconds
	Duration     float64 `json:"duration,omitempty"`
	Downloadable int     `json:"downloadable,omitempty"`
	URL          string  `json:"url,omitempty"`
	Lyrics       string  `json:"lyrics,omitempty"`
}

// Discography lists the releases of a band.
type Discography struct {
	Albums []*Album `json:"albums,omitempty"`
	Tracks []*Track `json:"tracks,omitempty"`
}

// discographyEntry carries the ids used to tell albums from tracks
type discographyEntry struct {
	AlbumID int64 `json:"album_id"`
	TrackID int64 `json:"track_id"`
}

func decodeDiscography(data []byte) (*Discography, error) {
	var body struct {
		Discography []json.RawMessage `json:"discography"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to decode discography: %w", err)
	}

	result := &Discography{}
	for i, raw := range body.Discography {
		var ids discographyEntry
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("failed to decode discography entry %d: %w", i, err)
		}

		// An entry can describe both a track and the album it belongs to
		if ids.TrackID != 0 {
			var track Track
			if err := json.Unmarshal(raw, &track); err != nil {
				return nil, fmt.Errorf("failed to decode discography track %d: %w", i, err)
			}
			result.Tracks = append(result.Tracks, &track)
		}
		if ids.AlbumID != 0 {
			var album Album
			if err := json.Unmarshal(raw, &album); err != nil {
				return nil, fmt.Errorf("failed to decode discography album %d: %w", i, err)
			}
			result.Albums = append(result.Albums, &album)
		}
	}

	return result, nil
}
