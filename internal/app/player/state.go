// Package player provides the playback engine and its observable state.
package player

import (
	"github.com/cockroachdb/errors"

	"github.com/yshino/melodeck/internal/domain/song"
)

// PlayMode governs which track plays next.
type PlayMode int

const (
	ModeSequential PlayMode = iota // Play in order, stop at the end
	ModeShuffle                    // Random order, never the same track twice in a row
	ModeRepeatOne                  // Restart the current track
	ModeRepeatAll                  // Play in order, wrap at both ends
)

// String returns the string representation of the play mode.
func (m PlayMode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeShuffle:
		return "shuffle"
	case ModeRepeatOne:
		return "repeat_one"
	case ModeRepeatAll:
		return "repeat_all"
	default:
		return "unknown"
	}
}

// ParsePlayMode parses a play mode name as it appears in config and CLI input.
func ParsePlayMode(s string) (PlayMode, error) {
	switch s {
	case "sequential":
		return ModeSequential, nil
	case "shuffle":
		return ModeShuffle, nil
	case "repeat_one":
		return ModeRepeatOne, nil
	case "repeat_all":
		return ModeRepeatAll, nil
	default:
		return ModeSequential, errors.Newf("unknown play mode: %s", s)
	}
}

// Status represents the engine's position in the resource lifecycle.
type Status int

const (
	StatusIdle    Status = iota // No resource alive
	StatusLoading               // Resource created, media not ready yet
	StatusReady                 // Media loaded, output not started
	StatusPlaying               // Output running
	StatusPaused                // Output suspended
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// State is a snapshot of everything needed to render player UI.
// Values are copies; mutating a snapshot has no effect on the store.
type State struct {
	CurrentSong    *song.Song // Song bound to the active resource, nil when nothing is loaded
	IsPlaying      bool
	Volume         float64 // Effective output gain in [0,1]; 0 while muted
	IsMuted        bool
	PreviousVolume float64 // Gain to restore on unmute
	CurrentTime    float64 // Seconds
	Duration       float64 // Seconds, 0 until the resource reports it
	Playlist       []song.Song
	CurrentIndex   int // -1 when no playlist entry is selected
	PlayMode       PlayMode
	ShowPlaylist   bool
	Fullscreen     bool
}

// Default state values applied at store construction.
const (
	defaultVolume = 0.8
	noSelection   = -1
)
