package player

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/yshino/melodeck/internal/domain/song"
)

var errNoAudioURL = errors.New("song has no audio url")

// EventType represents a playback lifecycle event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Output started for a track
	EventTrackPaused                   // Output suspended
	EventTrackResumed                  // Output resumed after a pause
	EventTrackEnded                    // Track finished naturally
	EventStopped                       // Playback stopped and resource released
	EventLoadFailed                    // Resource could not be fetched or decoded
	EventPlayFailed                    // Resource loaded but output refused to start
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackPaused:
		return "track_paused"
	case EventTrackResumed:
		return "track_resumed"
	case EventTrackEnded:
		return "track_ended"
	case EventStopped:
		return "stopped"
	case EventLoadFailed:
		return "load_failed"
	case EventPlayFailed:
		return "play_failed"
	default:
		return "unknown"
	}
}

// Event represents a playback lifecycle event.
type Event struct {
	Type EventType
	Song *song.Song     // Song the event refers to (nil for some events)
	Err  *PlaybackError // Set for load/play failures
}

// ErrorKind distinguishes fetch/decode failures from output failures.
type ErrorKind int

const (
	LoadError ErrorKind = iota // Resource could not be fetched or decoded
	PlayError                  // Output device refused to start
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case LoadError:
		return "load"
	case PlayError:
		return "play"
	default:
		return "unknown"
	}
}

// PlaybackError reports a failed load or play for a specific song.
// Errors are not retried and never advance the playlist.
type PlaybackError struct {
	Kind   ErrorKind
	SongID string
	URL    string
	Cause  error
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s error for song %s (%s): %v", e.Kind, e.SongID, e.URL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PlaybackError) Unwrap() error {
	return e.Cause
}
