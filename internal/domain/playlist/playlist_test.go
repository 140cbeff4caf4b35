package playlist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yshino/melodeck/internal/domain/song"
)

func TestPlaylist_SongIDs(t *testing.T) {
	tests := []struct {
		name     string
		songs    []song.Song
		expected []string
	}{
		{
			name:     "empty playlist",
			songs:    []song.Song{},
			expected: []string{},
		},
		{
			name: "single song",
			songs: []song.Song{
				{ID: "song-1"},
			},
			expected: []string{"song-1"},
		},
		{
			name: "duplicates keep queue order",
			songs: []song.Song{
				{ID: "song-1"},
				{ID: "song-2"},
				{ID: "song-1"},
			},
			expected: []string{"song-1", "song-2", "song-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{
				ID:    "playlist-1",
				Songs: tt.songs,
			}

			result := p.SongIDs()
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPlaylist_TotalDuration(t *testing.T) {
	tests := []struct {
		name     string
		songs    []song.Song
		expected time.Duration
	}{
		{
			name:     "empty playlist",
			songs:    []song.Song{},
			expected: 0,
		},
		{
			name: "sums all songs",
			songs: []song.Song{
				{ID: "song-1", Duration: 3 * time.Minute},
				{ID: "song-2", Duration: 90 * time.Second},
			},
			expected: 4*time.Minute + 30*time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Playlist{Songs: tt.songs}
			assert.Equal(t, tt.expected, p.TotalDuration())
		})
	}
}
