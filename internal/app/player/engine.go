package player

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/domain/song"
)

// Config holds engine configuration.
type Config struct {
	ProgressInterval time.Duration // Position sampling cadence while playing
}

// DefaultProgressInterval matches the 1 Hz cadence the player bar expects.
const DefaultProgressInterval = time.Second

// Engine owns the single active audio resource and keeps the store
// synchronized with its real status. Exactly one engine exists for the
// lifetime of the application; no two resources are ever concurrently alive.
type Engine struct {
	mu sync.Mutex

	store   *Store
	factory Factory

	resource Resource
	gen      uint64 // Incremented on every resource swap; callbacks from older generations are discarded
	seekSeq  uint64 // Incremented on every seek; in-flight progress samples from before the seek are discarded
	status   Status

	tickerCancel context.CancelFunc

	progressInterval time.Duration

	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates the playback engine bound to a store and a source factory.
func NewEngine(store *Store, factory Factory, cfg Config) *Engine {
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:            store,
		factory:          factory,
		status:           StatusIdle,
		progressInterval: interval,
		eventCh:          make(chan Event, 16),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Events returns the lifecycle event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Store returns the state container the engine publishes into.
func (e *Engine) Store() *Store {
	return e.store
}

// Status returns the engine's position in the resource lifecycle.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// PlaySong plays a song outside playlist context (e.g. from search results).
// Any active resource is fully released first. The song is bound to the state
// optimistically; duration and playing status follow the resource's reports.
func (e *Engine) PlaySong(sg song.Song) {
	e.store.SetCurrentSong(sg)
	e.startResource(sg)
}

// PlayAt plays the playlist entry at index. Out-of-range indexes are ignored.
func (e *Engine) PlayAt(index int) {
	sg, ok := e.store.SelectIndex(index)
	if !ok {
		return
	}
	e.startResource(sg)
}

// PlayNext skips forward under the current play mode.
func (e *Engine) PlayNext() {
	if sg, ok := e.store.Advance(DirectionNext); ok {
		e.startResource(sg)
	}
}

// PlayPrevious skips backward under the current play mode.
func (e *Engine) PlayPrevious() {
	if sg, ok := e.store.Advance(DirectionPrevious); ok {
		e.startResource(sg)
	}
}

// TogglePlayPause pauses or resumes based on the resource's actual playing
// report, not the cached flag. With no resource it is a no-op.
func (e *Engine) TogglePlayPause() {
	e.mu.Lock()
	res := e.resource
	e.mu.Unlock()
	if res == nil {
		return
	}
	if res.Playing() {
		e.Pause()
	} else {
		e.Resume()
	}
}

// Pause suspends output. Pausing while already paused is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	res := e.resource
	e.mu.Unlock()
	if res == nil || !res.Playing() {
		return
	}
	res.Pause()
}

// Resume restarts output. Resuming while already playing is a no-op.
func (e *Engine) Resume() {
	e.mu.Lock()
	res := e.resource
	e.mu.Unlock()
	if res == nil || res.Playing() {
		return
	}
	res.Play()
}

// Stop releases the active resource so it can emit no further events, and
// resets the playing flag and position.
func (e *Engine) Stop() {
	e.mu.Lock()
	hadResource := e.resource != nil
	e.releaseLocked()
	e.mu.Unlock()

	e.store.SetIsPlaying(false)
	e.store.SetCurrentTime(0)
	if hadResource {
		e.sendEvent(Event{Type: EventStopped, Song: e.store.CurrentSong()})
	}
}

// Seek moves the playback position and publishes the new position
// synchronously, so a pending stale progress sample can never win over it.
// With no resource it is a silent no-op.
func (e *Engine) Seek(positionSec float64) {
	if positionSec < 0 {
		positionSec = 0
	}
	e.mu.Lock()
	res := e.resource
	if res != nil {
		e.seekSeq++
	}
	e.mu.Unlock()
	if res == nil {
		return
	}
	res.Seek(positionSec)
	e.store.SetCurrentTime(positionSec)
}

// SetVolume sets the output gain, clamped to [0,1]. While muted only the
// stored restore value changes; the output stays silent.
func (e *Engine) SetVolume(v float64) {
	st := e.store.SetVolume(v)
	e.mu.Lock()
	res := e.resource
	e.mu.Unlock()
	if res != nil && !st.IsMuted {
		res.SetVolume(st.Volume)
	}
}

// ToggleMute mutes or unmutes the output, restoring the pre-mute gain.
func (e *Engine) ToggleMute() {
	st := e.store.ToggleMute()
	e.mu.Lock()
	res := e.resource
	e.mu.Unlock()
	if res != nil {
		res.SetVolume(st.Volume)
	}
}

// SetPlayMode sets the navigation policy.
func (e *Engine) SetPlayMode(mode PlayMode) {
	e.store.SetPlayMode(mode)
}

// Close releases the resource and the event channel. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	e.releaseLocked()
	e.mu.Unlock()
	close(e.eventCh)
}

// startResource tears down any active resource and binds a new one to the
// song's audio URL. This is the only place resources are created, which is
// what enforces the single-resource invariant.
func (e *Engine) startResource(sg song.Song) {
	if !sg.HasAudio() {
		e.store.SetIsPlaying(false)
		e.reportError(LoadError, sg, errNoAudioURL)
		return
	}

	volume := e.store.Snapshot().Volume

	e.mu.Lock()
	e.releaseLocked()
	gen := e.gen

	cb := Callbacks{
		OnLoad:      func(d float64) { e.onLoad(gen, d) },
		OnPlay:      func() { e.onPlay(gen) },
		OnPause:     func() { e.onPause(gen) },
		OnEnd:       func() { e.onEnd(gen) },
		OnLoadError: func(err error) { e.onResourceError(gen, LoadError, sg, err) },
		OnPlayError: func(err error) { e.onResourceError(gen, PlayError, sg, err) },
	}

	res, err := e.factory.New(sg, cb)
	if err != nil {
		e.status = StatusIdle
		e.mu.Unlock()
		e.store.SetIsPlaying(false)
		e.reportError(LoadError, sg, err)
		return
	}

	e.resource = res
	e.status = StatusLoading
	res.SetVolume(volume)
	res.Play()
	e.mu.Unlock()

	zlog.Debug().Msgf("player: starting resource: song=%s url=%s", sg.Title, sg.AudioURL)
}

// releaseLocked stops and closes the active resource and cancels the progress
// ticker. Bumping the generation guarantees that callbacks already in flight
// from the outgoing resource are discarded. Must be called with mu held.
func (e *Engine) releaseLocked() {
	e.stopTickerLocked()
	if e.resource != nil {
		e.resource.Stop()
		e.resource.Close()
		e.resource = nil
	}
	e.gen++
	e.status = StatusIdle
}

// onLoad publishes the media duration once the resource reports it.
func (e *Engine) onLoad(gen uint64, durationSec float64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	if e.status == StatusLoading {
		e.status = StatusReady
	}
	e.mu.Unlock()
	e.store.SetDuration(durationSec)
}

// onPlay marks playback running and starts the progress sampling loop.
func (e *Engine) onPlay(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.resource == nil {
		e.mu.Unlock()
		return
	}
	resumed := e.status == StatusPaused
	e.status = StatusPlaying
	e.startTickerLocked(e.resource, gen)
	e.mu.Unlock()

	e.store.SetIsPlaying(true)
	if resumed {
		e.sendEvent(Event{Type: EventTrackResumed, Song: e.store.CurrentSong()})
	} else {
		e.sendEvent(Event{Type: EventTrackStarted, Song: e.store.CurrentSong()})
	}
}

// onPause marks playback suspended and tears down the sampling loop.
func (e *Engine) onPause(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.status = StatusPaused
	e.stopTickerLocked()
	e.mu.Unlock()

	e.store.SetIsPlaying(false)
	e.sendEvent(Event{Type: EventTrackPaused, Song: e.store.CurrentSong()})
}

// onEnd handles natural end-of-track: release the resource, then advance the
// playlist. When navigation is a no-op (sequential at end of list) playback
// simply stops.
func (e *Engine) onEnd(gen uint64) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.releaseLocked()
	e.mu.Unlock()

	ended := e.store.CurrentSong()
	e.store.SetIsPlaying(false)
	e.sendEvent(Event{Type: EventTrackEnded, Song: ended})

	if sg, ok := e.store.Advance(DirectionNext); ok {
		e.startResource(sg)
	}
}

// onResourceError handles a terminal load or play failure: the resource is
// discarded, the current song stays bound so UI can show what failed, and no
// retry or auto-advance happens.
func (e *Engine) onResourceError(gen uint64, kind ErrorKind, sg song.Song, err error) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.releaseLocked()
	e.mu.Unlock()

	e.store.SetIsPlaying(false)
	e.reportError(kind, sg, err)
}

// reportError logs a playback failure and emits it as an event.
func (e *Engine) reportError(kind ErrorKind, sg song.Song, err error) {
	perr := &PlaybackError{Kind: kind, SongID: sg.ID, URL: sg.AudioURL, Cause: err}
	zlog.Warn().Msgf("player: %v", perr)

	evType := EventLoadFailed
	if kind == PlayError {
		evType = EventPlayFailed
	}
	s := sg
	e.sendEvent(Event{Type: evType, Song: &s, Err: perr})
}

// startTickerLocked starts the periodic position sampling loop for the given
// resource generation. Must be called with mu held.
func (e *Engine) startTickerLocked(res Resource, gen uint64) {
	e.stopTickerLocked()

	ctx, cancel := context.WithCancel(e.ctx)
	e.tickerCancel = cancel

	go func() {
		ticker := time.NewTicker(e.progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.mu.Lock()
				stale := gen != e.gen || e.resource == nil
				seq := e.seekSeq
				e.mu.Unlock()
				if stale {
					return
				}
				if !res.Playing() {
					continue
				}
				pos := res.Position()
				// A seek that lands while this sample is in flight must
				// win; publishing under mu orders the sample before any
				// later seek, and the sequence check drops it after an
				// earlier one.
				e.mu.Lock()
				if gen == e.gen && seq == e.seekSeq {
					e.store.SetCurrentTime(pos)
				}
				e.mu.Unlock()
			}
		}
	}()
}

// stopTickerLocked cancels the sampling loop. Must be called with mu held.
func (e *Engine) stopTickerLocked() {
	if e.tickerCancel != nil {
		e.tickerCancel()
		e.tickerCancel = nil
	}
}

// sendEvent emits an event without blocking.
func (e *Engine) sendEvent(ev Event) {
	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
		// Channel full, drop event (shouldn't happen with buffered channel)
	}
}
