package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshino/melodeck/internal/app/player"
	"github.com/yshino/melodeck/internal/domain/song"
)

// recorder collects callback deliveries on channels so tests can wait on
// them without polling.
type recorder struct {
	loads  chan float64
	plays  chan struct{}
	pauses chan struct{}
	ends   chan struct{}
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		loads:  make(chan float64, 8),
		plays:  make(chan struct{}, 8),
		pauses: make(chan struct{}, 8),
		ends:   make(chan struct{}, 8),
		errs:   make(chan error, 8),
	}
}

func (r *recorder) callbacks() player.Callbacks {
	return player.Callbacks{
		OnLoad:      func(d float64) { r.loads <- d },
		OnPlay:      func() { r.plays <- struct{}{} },
		OnPause:     func() { r.pauses <- struct{}{} },
		OnEnd:       func() { r.ends <- struct{}{} },
		OnLoadError: func(err error) { r.errs <- err },
		OnPlayError: func(err error) { r.errs <- err },
	}
}

func waitSignal(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNewFactoryFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		settings map[string]any
		wantErr  string
	}{
		{
			name:    "beep with defaults",
			backend: "beep",
		},
		{
			name:    "timer with defaults",
			backend: "timer",
		},
		{
			name:     "timer with scale",
			backend:  "timer",
			settings: map[string]any{"time_scale": 60.0},
		},
		{
			name:    "unknown backend",
			backend: "portaudio",
			wantErr: "unsupported audio backend",
		},
		{
			name:     "negative time scale",
			backend:  "timer",
			settings: map[string]any{"time_scale": -1.0},
			wantErr:  "validation failed",
		},
		{
			name:     "sample rate below range",
			backend:  "beep",
			settings: map[string]any{"sample_rate": 4000},
			wantErr:  "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := NewFactoryFromConfig(tt.backend, tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, factory)
		})
	}
}

func TestTimerResourcePlaysToEnd(t *testing.T) {
	factory, err := NewTimerFactory(map[string]any{"time_scale": 1000.0})
	require.NoError(t, err)

	rec := newRecorder()
	sg := song.Song{ID: "s1", Title: "First", Duration: 2 * time.Second}
	res, err := factory.New(sg, rec.callbacks())
	require.NoError(t, err)
	defer res.Close()

	select {
	case d := <-rec.loads:
		assert.InDelta(t, 2.0, d, 0.001)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load")
	}
	assert.InDelta(t, 2.0, res.Duration(), 0.001)

	res.Play()
	waitSignal(t, rec.plays, "play")
	assert.True(t, res.Playing())

	waitSignal(t, rec.ends, "end")
	assert.False(t, res.Playing())
	assert.InDelta(t, 2.0, res.Position(), 0.001)
}

func TestTimerResourcePauseFreezesPosition(t *testing.T) {
	factory, err := NewTimerFactory(map[string]any{"time_scale": 10.0})
	require.NoError(t, err)

	rec := newRecorder()
	sg := song.Song{ID: "s1", Title: "First", Duration: time.Hour}
	res, err := factory.New(sg, rec.callbacks())
	require.NoError(t, err)
	defer res.Close()
	<-rec.loads

	res.Play()
	waitSignal(t, rec.plays, "play")
	time.Sleep(20 * time.Millisecond)

	res.Pause()
	waitSignal(t, rec.pauses, "pause")
	assert.False(t, res.Playing())

	frozen := res.Position()
	assert.Greater(t, frozen, 0.0)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, res.Position())

	res.Play()
	waitSignal(t, rec.plays, "resume")
	assert.True(t, res.Playing())
}

func TestTimerResourceSeekClamps(t *testing.T) {
	factory, err := NewTimerFactory(nil)
	require.NoError(t, err)

	rec := newRecorder()
	sg := song.Song{ID: "s1", Title: "First", Duration: 100 * time.Second}
	res, err := factory.New(sg, rec.callbacks())
	require.NoError(t, err)
	defer res.Close()
	<-rec.loads

	res.Seek(30)
	assert.InDelta(t, 30.0, res.Position(), 0.001)

	res.Seek(-5)
	assert.InDelta(t, 0.0, res.Position(), 0.001)

	res.Seek(500)
	assert.InDelta(t, 100.0, res.Position(), 0.001)
}

func TestTimerResourceStopRewinds(t *testing.T) {
	factory, err := NewTimerFactory(map[string]any{"time_scale": 10.0})
	require.NoError(t, err)

	rec := newRecorder()
	sg := song.Song{ID: "s1", Title: "First", Duration: time.Hour}
	res, err := factory.New(sg, rec.callbacks())
	require.NoError(t, err)
	defer res.Close()
	<-rec.loads

	res.Play()
	waitSignal(t, rec.plays, "play")
	time.Sleep(20 * time.Millisecond)

	res.Stop()
	assert.False(t, res.Playing())
	assert.InDelta(t, 0.0, res.Position(), 0.001)
}

func TestTimerResourceFallbackDuration(t *testing.T) {
	factory, err := NewTimerFactory(nil)
	require.NoError(t, err)

	rec := newRecorder()
	res, err := factory.New(song.Song{ID: "s1", Title: "No Length"}, rec.callbacks())
	require.NoError(t, err)
	defer res.Close()

	d := <-rec.loads
	assert.InDelta(t, defaultSimulatedSec, d, 0.001)
}

func TestGainToVolume(t *testing.T) {
	assert.InDelta(t, 0.0, gainToVolume(1), 0.001)
	assert.InDelta(t, -1.0, gainToVolume(0.5), 0.001)
	assert.InDelta(t, -2.0, gainToVolume(0.25), 0.001)
}
