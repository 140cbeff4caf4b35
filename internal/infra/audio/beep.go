// Package audio provides audio output backends for the playback engine.
package audio

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/app/player"
	"github.com/yshino/melodeck/internal/domain/song"
)

// BeepSettings configures the beep output backend.
type BeepSettings struct {
	SampleRate     int `yaml:"sample_rate" mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs       int `yaml:"buffer_ms" mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=1000"`
	HTTPTimeoutSec int `yaml:"http_timeout_sec" mapstructure:"http_timeout_sec" default:"30" validate:"gte=1,lte=300"`
}

// The speaker is a process-wide device; it is initialized once with the
// first factory's rate and shared by every resource.
var (
	speakerOnce sync.Once
	speakerErr  error

	// outputMu serializes appending a stream against clearing it, so a
	// resource that has been closed can never reach the speaker. The
	// speaker goroutine never takes it, so holding it across speaker
	// calls cannot deadlock with stream callbacks.
	outputMu sync.Mutex
)

// BeepFactory creates resources that decode over HTTP and play through the
// system speaker using beep.
type BeepFactory struct {
	settings   BeepSettings
	sampleRate beep.SampleRate
	client     *http.Client
}

// NewBeepFactory creates the beep backend factory from raw settings.
func NewBeepFactory(settings map[string]any) (*BeepFactory, error) {
	var config BeepSettings
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &BeepFactory{
		settings:   config,
		sampleRate: beep.SampleRate(config.SampleRate),
		client: &http.Client{
			Timeout: time.Duration(config.HTTPTimeoutSec) * time.Second,
		},
	}, nil
}

// New creates a resource bound to the song's audio URL. Fetch and decode run
// asynchronously; progress is reported through the callbacks.
func (f *BeepFactory) New(sg song.Song, cb player.Callbacks) (player.Resource, error) {
	r := &beepResource{
		sg:      sg,
		cb:      cb,
		factory: f,
		gain:    1,
		events:  make(chan func(), 32),
		quit:    make(chan struct{}),
	}
	go r.dispatch()
	go r.load()
	return r, nil
}

func (f *BeepFactory) ensureSpeaker() error {
	speakerOnce.Do(func() {
		buffer := f.sampleRate.N(time.Duration(f.settings.BufferMs) * time.Millisecond)
		speakerErr = speaker.Init(f.sampleRate, buffer)
	})
	return speakerErr
}

// beepResource is one decoded stream routed through the global speaker.
type beepResource struct {
	mu sync.Mutex

	sg      song.Song
	cb      player.Callbacks
	factory *BeepFactory

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	gain     float64
	loaded   bool
	wantPlay bool
	started  bool
	ended    bool
	closed   bool

	events chan func()
	quit   chan struct{}
}

// dispatch delivers callbacks on a dedicated goroutine so no handler ever
// runs inside a Resource method call.
func (r *beepResource) dispatch() {
	for {
		select {
		case f := <-r.events:
			f()
		case <-r.quit:
			return
		}
	}
}

func (r *beepResource) emit(f func()) {
	select {
	case r.events <- f:
	case <-r.quit:
	}
}

// load fetches the audio URL into memory and decodes it. Streams must be
// fully buffered because seeking requires a random-access reader.
func (r *beepResource) load() {
	data, err := r.fetch()
	if err != nil {
		r.failLoad(err)
		return
	}

	streamer, format, err := decode(r.sg.AudioURL, data)
	if err != nil {
		r.failLoad(err)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = streamer.Close()
		return
	}
	r.streamer = streamer
	r.format = format
	r.loaded = true
	duration := format.SampleRate.D(streamer.Len()).Seconds()
	start := r.wantPlay
	r.mu.Unlock()

	zlog.Debug().Msgf("audio: decoded %s (%.1fs, %d Hz)", r.sg.Title, duration, format.SampleRate)

	cb := r.cb
	r.emit(func() { cb.OnLoad(duration) })

	if start {
		r.startOutput()
	}
}

func (r *beepResource) fetch() ([]byte, error) {
	resp, err := r.factory.client.Get(r.sg.AudioURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch audio")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status %d fetching audio", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audio body")
	}
	return data, nil
}

func (r *beepResource) failLoad(err error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	cb := r.cb
	r.emit(func() { cb.OnLoadError(err) })
}

// startOutput pushes the decoded stream into the speaker.
func (r *beepResource) startOutput() {
	r.mu.Lock()
	if r.closed || !r.loaded || r.started {
		r.mu.Unlock()
		return
	}
	resampled := beep.Resample(4, r.format.SampleRate, r.factory.sampleRate, r.streamer)
	r.ctrl = &beep.Ctrl{Streamer: resampled}
	volume := &effects.Volume{
		Streamer: r.ctrl,
		Base:     2,
		Volume:   gainToVolume(r.gain),
		Silent:   r.gain <= 0,
	}
	r.volume = volume
	r.mu.Unlock()

	if err := r.factory.ensureSpeaker(); err != nil {
		cb := r.cb
		wrapped := errors.Wrap(err, "failed to initialize speaker")
		r.emit(func() { cb.OnPlayError(wrapped) })
		return
	}

	// Close may have raced the build above; the closed re-check and the
	// append run as one unit so a superseded stream never plays alongside
	// its successor.
	outputMu.Lock()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		outputMu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	speaker.Play(beep.Seq(volume, beep.Callback(r.onStreamEnd)))
	outputMu.Unlock()

	cb := r.cb
	r.emit(func() { cb.OnPlay() })
}

// onStreamEnd fires from the speaker goroutine when the stream drains
// naturally. speaker.Clear never triggers it.
func (r *beepResource) onStreamEnd() {
	r.mu.Lock()
	if r.closed || r.ended {
		r.mu.Unlock()
		return
	}
	r.ended = true
	r.started = false
	r.mu.Unlock()

	cb := r.cb
	r.emit(func() { cb.OnEnd() })
}

// Play starts output, or resumes it after a pause. Before the media is
// loaded it only records the intent; output starts when the load completes.
func (r *beepResource) Play() {
	r.mu.Lock()
	if r.closed || r.ended {
		r.mu.Unlock()
		return
	}
	if !r.loaded {
		r.wantPlay = true
		r.mu.Unlock()
		return
	}
	if !r.started {
		r.mu.Unlock()
		r.startOutput()
		return
	}
	ctrl := r.ctrl
	r.mu.Unlock()

	speaker.Lock()
	resumed := ctrl.Paused
	ctrl.Paused = false
	speaker.Unlock()

	if resumed {
		cb := r.cb
		r.emit(func() { cb.OnPlay() })
	}
}

// Pause suspends output without releasing the stream.
func (r *beepResource) Pause() {
	r.mu.Lock()
	ctrl := r.ctrl
	active := r.started && !r.closed
	r.mu.Unlock()
	if !active || ctrl == nil {
		return
	}

	speaker.Lock()
	paused := !ctrl.Paused
	ctrl.Paused = true
	speaker.Unlock()

	if paused {
		cb := r.cb
		r.emit(func() { cb.OnPause() })
	}
}

// Stop halts output and rewinds to the beginning.
func (r *beepResource) Stop() {
	r.mu.Lock()
	wasStarted := r.started
	r.started = false
	r.wantPlay = false
	streamer := r.streamer
	r.mu.Unlock()

	if wasStarted {
		outputMu.Lock()
		speaker.Clear()
		outputMu.Unlock()
	}
	if streamer != nil {
		speaker.Lock()
		_ = streamer.Seek(0)
		speaker.Unlock()
	}
}

// Seek moves the playback position, clamped to the media length.
func (r *beepResource) Seek(positionSec float64) {
	r.mu.Lock()
	streamer := r.streamer
	format := r.format
	loaded := r.loaded
	r.mu.Unlock()
	if !loaded || streamer == nil {
		return
	}

	n := format.SampleRate.N(time.Duration(positionSec * float64(time.Second)))
	if n < 0 {
		n = 0
	}
	if max := streamer.Len(); n > max {
		n = max
	}

	speaker.Lock()
	if err := streamer.Seek(n); err != nil {
		zlog.Warn().Msgf("audio: seek failed: %v", err)
	}
	speaker.Unlock()
}

// Position returns the current playback position in seconds.
func (r *beepResource) Position() float64 {
	r.mu.Lock()
	streamer := r.streamer
	format := r.format
	loaded := r.loaded
	r.mu.Unlock()
	if !loaded || streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := streamer.Position()
	speaker.Unlock()
	return format.SampleRate.D(pos).Seconds()
}

// Duration returns the media length in seconds, 0 while loading.
func (r *beepResource) Duration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded || r.streamer == nil {
		return 0
	}
	return r.format.SampleRate.D(r.streamer.Len()).Seconds()
}

// Playing reports whether output is currently running.
func (r *beepResource) Playing() bool {
	r.mu.Lock()
	started := r.started
	ctrl := r.ctrl
	r.mu.Unlock()
	if !started || ctrl == nil {
		return false
	}

	speaker.Lock()
	paused := ctrl.Paused
	speaker.Unlock()
	return !paused
}

// SetVolume sets the output gain in [0,1].
func (r *beepResource) SetVolume(v float64) {
	r.mu.Lock()
	r.gain = v
	vol := r.volume
	r.mu.Unlock()
	if vol == nil {
		return
	}

	speaker.Lock()
	vol.Volume = gainToVolume(v)
	vol.Silent = v <= 0
	speaker.Unlock()
}

// Close detaches callbacks and releases the stream. No callback fires after
// Close returns the resource to the engine.
func (r *beepResource) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	wasStarted := r.started
	r.started = false
	streamer := r.streamer
	r.streamer = nil
	r.mu.Unlock()

	close(r.quit)
	if wasStarted {
		outputMu.Lock()
		speaker.Clear()
		outputMu.Unlock()
	}
	if streamer != nil {
		_ = streamer.Close()
	}
}

// gainToVolume maps linear gain in (0,1] onto beep's exponential volume scale.
func gainToVolume(gain float64) float64 {
	if gain <= 0 {
		return 0
	}
	return math.Log2(gain)
}

// readSeekCloser adapts an in-memory buffer to the decoder interfaces.
type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error { return nil }

// decode picks a decoder from the URL's file extension, defaulting to MP3,
// which is what the reference catalogue serves.
func decode(rawURL string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(rawURL))
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		ext = strings.ToLower(path.Ext(u.Path))
	}

	rc := readSeekCloser{bytes.NewReader(data)}
	switch ext {
	case ".wav":
		return wav.Decode(rc)
	case ".flac":
		return flac.Decode(rc)
	case ".ogg", ".oga":
		return vorbis.Decode(rc)
	default:
		return mp3.Decode(rc)
	}
}
