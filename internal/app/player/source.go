package player

import "github.com/yshino/melodeck/internal/domain/song"

// Callbacks receive lifecycle events from a resource. Implementations must
// deliver them asynchronously, never from inside a Resource method call; the
// engine serializes their effects and discards events from superseded
// resources.
type Callbacks struct {
	OnLoad      func(durationSec float64) // Media ready, duration known
	OnPlay      func()                    // Output started or resumed
	OnPause     func()                    // Output suspended
	OnEnd       func()                    // Track finished naturally
	OnLoadError func(err error)           // Fetch/decode failed; resource is dead
	OnPlayError func(err error)           // Output refused to start; resource is dead
}

// Resource is one active audio decode/output stream bound to a single song.
type Resource interface {
	// Play starts (or resumes) output. If media is still loading, output
	// starts as soon as the load completes.
	Play()
	// Pause suspends output without releasing the stream.
	Pause()
	// Stop halts output and rewinds to the beginning.
	Stop()
	// Seek moves the playback position. Positions beyond the media length
	// are clamped.
	Seek(positionSec float64)
	// Position returns the current playback position in seconds.
	Position() float64
	// Duration returns the media length in seconds, 0 while loading.
	Duration() float64
	// Playing reports whether output is currently running.
	Playing() bool
	// SetVolume sets the output gain in [0,1].
	SetVolume(v float64)
	// Close detaches callbacks and releases the stream. No callback fires
	// after Close returns.
	Close()
}

// Factory creates resources. Implementations live in internal/infra/audio;
// at most one resource created by the engine is alive at any time.
type Factory interface {
	New(s song.Song, cb Callbacks) (Resource, error)
}
