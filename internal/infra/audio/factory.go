package audio

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/yshino/melodeck/internal/app/player"
)

// NewFactoryFromConfig creates an audio backend factory by type name.
func NewFactoryFromConfig(backend string, settings map[string]any) (player.Factory, error) {
	zlog.Debug().Msgf("creating audio backend: type=%s settings=%+v", backend, settings)

	var factory player.Factory
	var err error
	switch backend {
	case "beep":
		factory, err = NewBeepFactory(settings)

	case "timer":
		factory, err = NewTimerFactory(settings)

	default:
		return nil, errors.Newf("unsupported audio backend: %s", backend)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to create audio backend (type %s)", backend)
	}

	zlog.Info().Msgf("registered audio backend: type=%s", backend)
	return factory, nil
}
