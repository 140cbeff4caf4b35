package player

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshino/melodeck/internal/domain/song"
)

// fakeResource records commands and lets the test fire decoder callbacks.
type fakeResource struct {
	mu sync.Mutex

	song song.Song
	cb   Callbacks

	playing bool
	pos     float64
	dur     float64
	volume  float64
	closed  bool

	playCalls  int
	pauseCalls int
	seeks      []float64

	// When set, Position blocks between reading the value and returning:
	// it signals posEntered, then waits for posRelease.
	posEntered chan struct{}
	posRelease chan struct{}
}

func (r *fakeResource) Play() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playCalls++
	r.playing = true
}

func (r *fakeResource) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseCalls++
	r.playing = false
}

func (r *fakeResource) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = false
	r.pos = 0
}

func (r *fakeResource) Seek(p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seeks = append(r.seeks, p)
	r.pos = p
}

func (r *fakeResource) Position() float64 {
	r.mu.Lock()
	pos := r.pos
	entered := r.posEntered
	release := r.posRelease
	r.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return pos
}

func (r *fakeResource) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dur
}

func (r *fakeResource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

func (r *fakeResource) SetVolume(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = v
}

func (r *fakeResource) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *fakeResource) fireLoad(d float64) {
	r.mu.Lock()
	r.dur = d
	cb := r.cb
	r.mu.Unlock()
	cb.OnLoad(d)
}

func (r *fakeResource) firePlay() { r.cb.OnPlay() }

func (r *fakeResource) firePause() { r.cb.OnPause() }

func (r *fakeResource) fireEnd() {
	r.mu.Lock()
	r.playing = false
	cb := r.cb
	r.mu.Unlock()
	cb.OnEnd()
}

func (r *fakeResource) fireLoadError(err error) { r.cb.OnLoadError(err) }

func (r *fakeResource) firePlayError(err error) { r.cb.OnPlayError(err) }

type fakeFactory struct {
	mu        sync.Mutex
	resources []*fakeResource
}

func (f *fakeFactory) New(sg song.Song, cb Callbacks) (Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeResource{song: sg, cb: cb}
	f.resources = append(f.resources, r)
	return r, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources)
}

func (f *fakeFactory) at(i int) *fakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[i]
}

func (f *fakeFactory) last() *fakeResource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[len(f.resources)-1]
}

func newTestEngine(t *testing.T) (*Engine, *Store, *fakeFactory) {
	t.Helper()
	store := NewStore()
	factory := &fakeFactory{}
	engine := NewEngine(store, factory, Config{})
	t.Cleanup(engine.Close)
	return engine, store, factory
}

func waitEvent(t *testing.T, e *Engine, expected EventType) Event {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-e.Events():
			if ev.Type == expected {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", expected)
		}
	}
}

func TestEngine_PlaySong_SetsCurrentSongImmediately(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	sg := testSongs("1")[0]

	engine.PlaySong(sg)

	st := store.Snapshot()
	require.NotNil(t, st.CurrentSong)
	assert.Equal(t, "1", st.CurrentSong.ID)
	require.Equal(t, 1, factory.count())
	assert.Equal(t, sg.AudioURL, factory.last().song.AudioURL)
	assert.Equal(t, 1, factory.last().playCalls)
}

func TestEngine_PlaySong_NoAudioURL(t *testing.T) {
	engine, _, factory := newTestEngine(t)

	engine.PlaySong(song.Song{ID: "broken"})

	ev := waitEvent(t, engine, EventLoadFailed)
	require.NotNil(t, ev.Err)
	assert.Equal(t, LoadError, ev.Err.Kind)
	assert.Equal(t, "broken", ev.Err.SongID)
	assert.Equal(t, 0, factory.count())
}

func TestEngine_LoadPublishesDuration(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	factory.last().fireLoad(247.5)

	assert.Equal(t, 247.5, store.Snapshot().Duration)
	assert.Equal(t, StatusReady, engine.Status())
}

func TestEngine_PlayEventMarksPlaying(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	factory.last().firePlay()

	assert.True(t, store.Snapshot().IsPlaying)
	assert.Equal(t, StatusPlaying, engine.Status())
	ev := waitEvent(t, engine, EventTrackStarted)
	assert.Equal(t, "1", ev.Song.ID)
}

func TestEngine_RapidPlaySong_StaleCallbacksIgnored(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	songs := testSongs("A", "B")

	engine.PlaySong(songs[0])
	engine.PlaySong(songs[1])

	require.Equal(t, 2, factory.count())
	resA := factory.at(0)
	resB := factory.at(1)
	assert.True(t, resA.closed)
	assert.False(t, resB.closed)

	// A's late callbacks arrive after it was superseded; they must not
	// mutate state or trigger an advance.
	resA.fireLoad(111)
	resA.firePlay()
	resA.fireEnd()

	st := store.Snapshot()
	assert.Equal(t, "B", st.CurrentSong.ID)
	assert.NotEqual(t, 111.0, st.Duration)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 2, factory.count())

	// B's callbacks still apply.
	resB.fireLoad(222)
	resB.firePlay()
	st = store.Snapshot()
	assert.Equal(t, 222.0, st.Duration)
	assert.True(t, st.IsPlaying)
}

func TestEngine_EndOfTrack_SequentialAdvance(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	store.SetPlaylist(testSongs("1", "2", "3"), -1)

	engine.PlayAt(0)
	require.Equal(t, 1, factory.count())
	factory.last().firePlay()

	// S1 ends: S2 starts.
	factory.at(0).fireEnd()
	require.Equal(t, 2, factory.count())
	st := store.Snapshot()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "2", st.CurrentSong.ID)
	factory.last().firePlay()

	// S2 ends: S3 starts.
	factory.at(1).fireEnd()
	require.Equal(t, 3, factory.count())
	st = store.Snapshot()
	assert.Equal(t, 2, st.CurrentIndex)
	assert.Equal(t, "3", st.CurrentSong.ID)
	factory.last().firePlay()

	// S3 ends: end of list, playback stops, nothing new starts.
	factory.at(2).fireEnd()
	assert.Equal(t, 3, factory.count())
	st = store.Snapshot()
	assert.Equal(t, 2, st.CurrentIndex)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, StatusIdle, engine.Status())
}

func TestEngine_EndOfTrack_RepeatOneRestarts(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	store.SetPlaylist(testSongs("1", "2"), -1)
	store.SetPlayMode(ModeRepeatOne)

	engine.PlayAt(1)
	require.Equal(t, 1, factory.count())

	factory.at(0).fireEnd()
	require.Equal(t, 2, factory.count())
	st := store.Snapshot()
	assert.Equal(t, 1, st.CurrentIndex)
	assert.Equal(t, "2", st.CurrentSong.ID)
	assert.Equal(t, "2", factory.last().song.ID)
}

func TestEngine_Seek(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	// With nothing loaded, seek is a silent no-op.
	engine.Seek(30)
	assert.Equal(t, 0.0, store.Snapshot().CurrentTime)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()

	// The new position is published synchronously.
	engine.Seek(42.5)
	assert.Equal(t, 42.5, store.Snapshot().CurrentTime)
	assert.Equal(t, []float64{42.5}, res.seeks)

	// Negative positions clamp to zero.
	engine.Seek(-10)
	assert.Equal(t, 0.0, store.Snapshot().CurrentTime)
}

func TestEngine_SeekWinsOverInFlightSample(t *testing.T) {
	store := NewStore()
	factory := &fakeFactory{}
	engine := NewEngine(store, factory, Config{ProgressInterval: 5 * time.Millisecond})
	t.Cleanup(engine.Close)

	store.SetPlaylist(testSongs("1"), 0)
	engine.PlayAt(0)

	res := factory.last()
	res.fireLoad(120)
	res.firePlay()
	waitEvent(t, engine, EventTrackStarted)

	// Park the sampler inside Position holding the pre-seek value.
	entered := make(chan struct{})
	release := make(chan struct{})
	res.mu.Lock()
	res.pos = 10
	res.posEntered = entered
	res.posRelease = release
	res.mu.Unlock()
	<-entered
	res.mu.Lock()
	res.posEntered = nil
	res.mu.Unlock()

	engine.Seek(50)
	assert.Equal(t, 50.0, store.Snapshot().CurrentTime)

	// Releasing the parked sample must not publish the stale position.
	close(release)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 50.0, store.Snapshot().CurrentTime)
}

func TestEngine_PauseResume_Idempotent(t *testing.T) {
	engine, _, factory := newTestEngine(t)

	// No resource: all transport commands are no-ops.
	engine.Pause()
	engine.Resume()
	engine.TogglePlayPause()
	assert.Equal(t, 0, factory.count())

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()
	res.firePlay()

	engine.Pause()
	assert.Equal(t, 1, res.pauseCalls)

	// Already paused on the resource side: second pause is a no-op.
	engine.Pause()
	assert.Equal(t, 1, res.pauseCalls)

	res.firePause()
	engine.Resume()
	assert.Equal(t, 2, res.playCalls)

	// Already playing: resume is a no-op.
	res.firePlay()
	engine.Resume()
	assert.Equal(t, 2, res.playCalls)
}

func TestEngine_Toggle_UsesActualResourceStatus(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()

	// The resource reports playing even though the cached flag lags behind.
	require.False(t, store.Snapshot().IsPlaying)
	require.True(t, res.Playing())

	engine.TogglePlayPause()
	assert.Equal(t, 1, res.pauseCalls)
}

func TestEngine_Stop(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()
	res.firePlay()
	engine.Seek(30)

	engine.Stop()

	st := store.Snapshot()
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 0.0, st.CurrentTime)
	assert.True(t, res.closed)
	assert.Equal(t, StatusIdle, engine.Status())

	// The released resource can no longer mutate state.
	res.fireEnd()
	assert.Equal(t, 1, factory.count())
}

func TestEngine_LoadError(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()
	res.fireLoadError(errors.New("404 not found"))

	ev := waitEvent(t, engine, EventLoadFailed)
	require.NotNil(t, ev.Err)
	assert.Equal(t, LoadError, ev.Err.Kind)
	assert.Equal(t, "1", ev.Err.SongID)

	st := store.Snapshot()
	assert.False(t, st.IsPlaying)
	// The song stays bound so UI can show what failed.
	require.NotNil(t, st.CurrentSong)
	assert.Equal(t, "1", st.CurrentSong.ID)
	// No retry, no auto-advance.
	assert.Equal(t, 1, factory.count())
	assert.True(t, res.closed)
}

func TestEngine_PlayError(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	store.SetPlaylist(testSongs("1", "2"), -1)

	engine.PlayAt(0)
	res := factory.last()
	res.fireLoad(180)
	res.firePlayError(errors.New("output device busy"))

	ev := waitEvent(t, engine, EventPlayFailed)
	require.NotNil(t, ev.Err)
	assert.Equal(t, PlayError, ev.Err.Kind)

	st := store.Snapshot()
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 0, st.CurrentIndex)
	assert.Equal(t, 1, factory.count())
}

func TestEngine_VolumeAndMute(t *testing.T) {
	engine, store, factory := newTestEngine(t)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()

	engine.SetVolume(0.5)
	assert.Equal(t, 0.5, res.volume)

	engine.ToggleMute()
	assert.Equal(t, 0.0, res.volume)

	// Volume changes while muted update the restore value, not the output.
	engine.SetVolume(0.9)
	assert.Equal(t, 0.0, res.volume)
	assert.Equal(t, 0.9, store.Snapshot().PreviousVolume)

	engine.ToggleMute()
	assert.Equal(t, 0.9, res.volume)
	st := store.Snapshot()
	assert.False(t, st.IsMuted)
	assert.Equal(t, 0.9, st.Volume)
}

func TestEngine_ManualSkip(t *testing.T) {
	engine, store, factory := newTestEngine(t)
	store.SetPlaylist(testSongs("1", "2", "3"), -1)

	engine.PlayAt(0)
	engine.PlayNext()
	require.Equal(t, 2, factory.count())
	assert.True(t, factory.at(0).closed)
	assert.Equal(t, "2", store.Snapshot().CurrentSong.ID)

	engine.PlayPrevious()
	require.Equal(t, 3, factory.count())
	assert.Equal(t, "1", store.Snapshot().CurrentSong.ID)

	// Sequential start-of-list: previous is a no-op.
	engine.PlayPrevious()
	assert.Equal(t, 3, factory.count())
}

func TestEngine_ProgressSampling(t *testing.T) {
	store := NewStore()
	factory := &fakeFactory{}
	engine := NewEngine(store, factory, Config{ProgressInterval: 10 * time.Millisecond})
	t.Cleanup(engine.Close)

	engine.PlaySong(testSongs("1")[0])
	res := factory.last()
	res.firePlay()

	res.mu.Lock()
	res.pos = 12.5
	res.mu.Unlock()

	assert.Eventually(t, func() bool {
		return store.Snapshot().CurrentTime == 12.5
	}, time.Second, 5*time.Millisecond)

	// The ticker dies with the resource.
	engine.Stop()
	res.mu.Lock()
	res.pos = 99
	res.playing = true
	res.mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0.0, store.Snapshot().CurrentTime)
}
