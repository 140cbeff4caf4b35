// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/yshino/melodeck/internal/domain/song"
)

// Playlist represents a named, ordered collection of songs.
// Order is queue order; duplicate songs are allowed.
type Playlist struct {
	ID          string      // Server-assigned ID
	Name        string      // Playlist name
	Description string      // Playlist description
	CoverURL    string      // Cover image URL
	CreatedBy   string      // Owner display name
	Public      bool        // Visible to other users
	Songs       []song.Song // Songs in queue order
}

// SongIDs returns all song IDs in queue order.
func (p *Playlist) SongIDs() []string {
	ids := make([]string, len(p.Songs))
	for i, s := range p.Songs {
		ids[i] = s.ID
	}
	return ids
}

// TotalDuration returns the total duration of all songs.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, s := range p.Songs {
		total += s.Duration
	}
	return total
}
