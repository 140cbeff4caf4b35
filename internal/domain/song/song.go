// Package song provides the Song domain entity.
package song

import (
	"fmt"
	"time"
)

// Song represents a playable track from the music catalogue.
// Immutable once constructed; lists own their copies.
type Song struct {
	ID        string        // Server-assigned ID
	Title     string        // Song title
	Artist    string        // Artist display name
	Album     string        // Album name
	Duration  time.Duration // Track duration (0 until known)
	CoverURL  string        // Cover image URL
	AudioURL  string        // Audio source URL
	Lyrics    string        // Lyrics text (optional)
	DateAdded time.Time     // Time the song entered the catalogue (optional)
}

// HasAudio reports whether the song carries a resolvable audio source.
func (s *Song) HasAudio() bool {
	return s.AudioURL != ""
}

// Seconds returns the duration in seconds.
func (s *Song) Seconds() float64 {
	return s.Duration.Seconds()
}

// DurationLabel formats the duration the way the player bar renders it (m:ss).
func (s *Song) DurationLabel() string {
	total := int(s.Duration.Seconds())
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
