package player

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yshino/melodeck/internal/domain/song"
)

// Listener receives a state snapshot after every mutation.
type Listener func(State)

// Direction selects which way a navigation moves through the playlist.
type Direction int

const (
	DirectionNext Direction = iota
	DirectionPrevious
)

// Store is the shared observable playback state container. It is created once
// at application start and lives for the application's lifetime. All writes go
// through named operations so every mutation is observable; readers get copies
// via Snapshot. Only the engine and the navigation operations mutate it.
type Store struct {
	mu sync.RWMutex

	currentSong    *song.Song
	isPlaying      bool
	volume         float64
	isMuted        bool
	previousVolume float64
	currentTime    float64
	duration       float64
	playlist       []song.Song
	currentIndex   int
	playMode       PlayMode
	showPlaylist   bool
	fullscreen     bool

	rng *rand.Rand

	subMu     sync.RWMutex
	listeners map[string]Listener
}

// NewStore creates a store with default values: no song, volume 0.8,
// sequential mode, no selection.
func NewStore() *Store {
	return &Store{
		volume:         defaultVolume,
		previousVolume: defaultVolume,
		playlist:       make([]song.Song, 0),
		currentIndex:   noSelection,
		playMode:       ModeSequential,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		listeners:      make(map[string]Listener),
	}
}

// Subscribe registers a listener and returns its subscription ID.
// The listener is called synchronously after every mutation.
func (s *Store) Subscribe(l Listener) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := uuid.New().String()
	s.listeners[id] = l
	return id
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.listeners, id)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// snapshotLocked builds a State copy. Must be called with mu held.
func (s *Store) snapshotLocked() State {
	st := State{
		IsPlaying:      s.isPlaying,
		Volume:         s.volume,
		IsMuted:        s.isMuted,
		PreviousVolume: s.previousVolume,
		CurrentTime:    s.currentTime,
		Duration:       s.duration,
		Playlist:       make([]song.Song, len(s.playlist)),
		CurrentIndex:   s.currentIndex,
		PlayMode:       s.playMode,
		ShowPlaylist:   s.showPlaylist,
		Fullscreen:     s.fullscreen,
	}
	copy(st.Playlist, s.playlist)
	if s.currentSong != nil {
		sg := *s.currentSong
		st.CurrentSong = &sg
	}
	return st
}

// publish sends a snapshot to every listener. Called after the state lock is
// released so listeners may issue commands without deadlocking.
func (s *Store) publish(st State) {
	s.subMu.RLock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.subMu.RUnlock()

	for _, l := range ls {
		l(st)
	}
}

// CurrentSong returns a copy of the current song, or nil when nothing is loaded.
func (s *Store) CurrentSong() *song.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentSong == nil {
		return nil
	}
	sg := *s.currentSong
	return &sg
}

// SetCurrentSong binds a song played outside playlist context. The selection
// index is cleared unless the song is the currently selected playlist entry,
// so a later skip never navigates relative to a song that is not playing.
func (s *Store) SetCurrentSong(sg song.Song) {
	s.mu.Lock()
	s.currentSong = &sg
	if s.currentIndex < 0 || s.currentIndex >= len(s.playlist) || s.playlist[s.currentIndex].ID != sg.ID {
		s.currentIndex = noSelection
	}
	s.currentTime = 0
	s.duration = sg.Seconds()
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SetIsPlaying records the decoder's actual playing status.
func (s *Store) SetIsPlaying(playing bool) {
	s.mu.Lock()
	s.isPlaying = playing
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SetCurrentTime publishes a playback position sample.
func (s *Store) SetCurrentTime(sec float64) {
	if sec < 0 {
		sec = 0
	}
	s.mu.Lock()
	s.currentTime = sec
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SetDuration publishes the media duration reported on load.
func (s *Store) SetDuration(sec float64) {
	if sec < 0 {
		sec = 0
	}
	s.mu.Lock()
	s.duration = sec
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SetVolume sets the output gain, clamped to [0,1]. While muted it overwrites
// the stored restore value without unmuting: the slider position takes effect
// on the next unmute.
func (s *Store) SetVolume(v float64) State {
	v = clampVolume(v)
	s.mu.Lock()
	if s.isMuted {
		s.previousVolume = v
	} else {
		s.volume = v
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
	return st
}

// ToggleMute mutes or unmutes the output. The pre-mute volume is captured
// exactly once, on the mute transition; unmuting restores it.
func (s *Store) ToggleMute() State {
	s.mu.Lock()
	if s.isMuted {
		s.isMuted = false
		s.volume = s.previousVolume
	} else {
		s.isMuted = true
		s.previousVolume = s.volume
		s.volume = 0
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
	return st
}

// SetPlaylist replaces the playlist. startIndex selects the initial entry;
// pass a negative value for no selection. The current song is left untouched
// so an active track keeps playing while the queue changes underneath it.
func (s *Store) SetPlaylist(songs []song.Song, startIndex int) {
	s.mu.Lock()
	s.playlist = make([]song.Song, len(songs))
	copy(s.playlist, songs)
	if startIndex >= 0 && startIndex < len(s.playlist) {
		s.currentIndex = startIndex
		sg := s.playlist[startIndex]
		s.currentSong = &sg
	} else {
		s.currentIndex = noSelection
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// RemoveAt deletes the playlist entry at index. Removing an entry before the
// selection shifts the selection down; removing the selected entry clears the
// selection while the song keeps playing.
func (s *Store) RemoveAt(index int) {
	s.mu.Lock()
	if index < 0 || index >= len(s.playlist) {
		s.mu.Unlock()
		return
	}
	s.playlist = append(s.playlist[:index], s.playlist[index+1:]...)
	switch {
	case index < s.currentIndex:
		s.currentIndex--
	case index == s.currentIndex:
		s.currentIndex = noSelection
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SelectIndex sets the selection to a playlist entry, updating index and
// current song together. Reports the resolved song and false when the index
// is out of range.
func (s *Store) SelectIndex(index int) (song.Song, bool) {
	s.mu.Lock()
	if index < 0 || index >= len(s.playlist) {
		s.mu.Unlock()
		return song.Song{}, false
	}
	sg := s.playlist[index]
	s.currentIndex = index
	s.currentSong = &sg
	s.currentTime = 0
	s.duration = sg.Seconds()
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
	return sg, true
}

// Advance moves the selection under the current play mode and reports the
// resolved song and whether playback should (re)start. An empty playlist, a
// sequential boundary, and a single-song shuffle are silent no-ops.
func (s *Store) Advance(dir Direction) (song.Song, bool) {
	s.mu.Lock()
	length := len(s.playlist)
	if length == 0 {
		s.mu.Unlock()
		return song.Song{}, false
	}

	var next int
	if dir == DirectionNext {
		next = NextIndex(length, s.currentIndex, s.playMode, s.rng.Intn)
	} else {
		next = PreviousIndex(length, s.currentIndex, s.playMode, s.rng.Intn)
	}

	if !shouldRestart(next, s.currentIndex, s.playMode) || next < 0 || next >= length {
		s.mu.Unlock()
		return song.Song{}, false
	}

	sg := s.playlist[next]
	s.currentIndex = next
	s.currentSong = &sg
	s.currentTime = 0
	s.duration = sg.Seconds()
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
	return sg, true
}

// SetPlayMode sets the navigation policy.
func (s *Store) SetPlayMode(mode PlayMode) {
	s.mu.Lock()
	s.playMode = mode
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// SetShowPlaylist sets the playlist panel visibility flag.
func (s *Store) SetShowPlaylist(show bool) {
	s.mu.Lock()
	s.showPlaylist = show
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

// ToggleFullscreen flips the fullscreen flag.
func (s *Store) ToggleFullscreen() {
	s.mu.Lock()
	s.fullscreen = !s.fullscreen
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.publish(st)
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
