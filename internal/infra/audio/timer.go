package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/app/player"
	"github.com/yshino/melodeck/internal/domain/song"
)

// TimerSettings configures the timer backend.
type TimerSettings struct {
	// TimeScale compresses simulated playback: 60 plays a 3 minute song
	// in 3 seconds.
	TimeScale float64 `yaml:"time_scale" mapstructure:"time_scale" default:"1.0" validate:"gt=0,lte=1000"`
}

// fallback length when the catalogue has no duration for a song.
const defaultSimulatedSec = 180.0

// TimerFactory creates resources that simulate playback on wall-clock
// timers without touching an audio device. It backs headless setups and
// smoke runs against catalogues whose audio is unreachable.
type TimerFactory struct {
	settings TimerSettings
}

// NewTimerFactory creates the timer backend factory from raw settings.
func NewTimerFactory(settings map[string]any) (*TimerFactory, error) {
	var config TimerSettings
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &TimerFactory{settings: config}, nil
}

// New creates a simulated resource for the song.
func (f *TimerFactory) New(sg song.Song, cb player.Callbacks) (player.Resource, error) {
	duration := sg.Seconds()
	if duration <= 0 {
		duration = defaultSimulatedSec
	}
	r := &timerResource{
		sg:       sg,
		cb:       cb,
		scale:    f.settings.TimeScale,
		duration: duration,
		events:   make(chan func(), 32),
		quit:     make(chan struct{}),
	}
	go r.dispatch()
	r.emit(func() { cb.OnLoad(duration) })
	r.mu.Lock()
	r.loaded = true
	start := r.wantPlay
	r.mu.Unlock()
	if start {
		r.start()
	}
	return r, nil
}

// timerResource tracks a simulated position: an accumulated offset in song
// time plus, while running, the scaled wall-clock time since start.
type timerResource struct {
	mu sync.Mutex

	sg song.Song
	cb player.Callbacks

	scale    float64
	duration float64

	offset    float64
	startedAt time.Time
	running   bool
	loaded    bool
	wantPlay  bool
	ended     bool
	closed    bool
	endTimer  *time.Timer

	events chan func()
	quit   chan struct{}
}

func (r *timerResource) dispatch() {
	for {
		select {
		case f := <-r.events:
			f()
		case <-r.quit:
			return
		}
	}
}

func (r *timerResource) emit(f func()) {
	select {
	case r.events <- f:
	case <-r.quit:
	}
}

func (r *timerResource) Play() {
	r.mu.Lock()
	if r.closed || r.ended || r.running {
		r.mu.Unlock()
		return
	}
	if !r.loaded {
		r.wantPlay = true
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.start()
}

func (r *timerResource) start() {
	r.mu.Lock()
	if r.closed || r.ended || r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.startedAt = time.Now()
	remaining := time.Duration((r.duration - r.offset) / r.scale * float64(time.Second))
	if remaining < 0 {
		remaining = 0
	}
	r.endTimer = time.AfterFunc(remaining, r.onTimerEnd)
	r.mu.Unlock()

	zlog.Debug().Msgf("audio: simulating %s for %s", r.sg.Title, time.Duration(r.duration/r.scale*float64(time.Second)).Round(time.Millisecond))

	cb := r.cb
	r.emit(func() { cb.OnPlay() })
}

func (r *timerResource) onTimerEnd() {
	r.mu.Lock()
	if r.closed || !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.ended = true
	r.offset = r.duration
	r.mu.Unlock()

	cb := r.cb
	r.emit(func() { cb.OnEnd() })
}

func (r *timerResource) Pause() {
	r.mu.Lock()
	if r.closed || !r.running {
		r.mu.Unlock()
		return
	}
	r.haltLocked()
	r.mu.Unlock()

	cb := r.cb
	r.emit(func() { cb.OnPause() })
}

func (r *timerResource) Stop() {
	r.mu.Lock()
	r.haltLocked()
	r.offset = 0
	r.wantPlay = false
	r.mu.Unlock()
}

// haltLocked stops the clock and folds elapsed time into the offset.
func (r *timerResource) haltLocked() {
	if r.endTimer != nil {
		r.endTimer.Stop()
		r.endTimer = nil
	}
	if r.running {
		r.offset += time.Since(r.startedAt).Seconds() * r.scale
		if r.offset > r.duration {
			r.offset = r.duration
		}
		r.running = false
	}
}

func (r *timerResource) Seek(positionSec float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.loaded {
		return
	}
	if positionSec < 0 {
		positionSec = 0
	}
	if positionSec > r.duration {
		positionSec = r.duration
	}
	r.offset = positionSec
	r.ended = false
	if r.running {
		r.startedAt = time.Now()
		if r.endTimer != nil {
			r.endTimer.Stop()
		}
		remaining := time.Duration((r.duration - r.offset) / r.scale * float64(time.Second))
		r.endTimer = time.AfterFunc(remaining, r.onTimerEnd)
	}
}

func (r *timerResource) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return r.offset
	}
	pos := r.offset + time.Since(r.startedAt).Seconds()*r.scale
	if pos > r.duration {
		pos = r.duration
	}
	return pos
}

func (r *timerResource) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return 0
	}
	return r.duration
}

func (r *timerResource) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SetVolume is accepted and ignored; simulated playback has no output.
func (r *timerResource) SetVolume(v float64) {}

func (r *timerResource) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.haltLocked()
	r.mu.Unlock()
	close(r.quit)
}
