package factor

import (
	"math/rand"
	"time"

	"github.com/lestrrat-go/option"
	"go.uber.org/zap"

	"github.com/openfluke/geofactor/nn"
)

// Option configures factor construction.
type Option = option.Interface

type identBackend struct{}
type identRand struct{}
type identLogger struct{}
type identMode struct{}

// WithBackend runs the factor's dense layers on b. Defaults to nn.DefaultBackend;
// a nil b keeps the default.
func WithBackend(b nn.Backend) Option {
	return option.New(identBackend{}, b)
}

// WithRand supplies the source used for parameter initialization.
func WithRand(rng *rand.Rand) Option {
	return option.New(identRand{}, rng)
}

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return option.New(identLogger{}, l)
}

// WithMode sets the initial processing mode. Defaults to nn.Inference.
func WithMode(m nn.Mode) Option {
	return option.New(identMode{}, m)
}

type settings struct {
	backend nn.Backend
	rng     *rand.Rand
	logger  *zap.Logger
	mode    nn.Mode
}

func applyOptions(opts []Option) settings {
	s := settings{mode: nn.Inference}
	for _, o := range opts {
		switch o.Ident() {
		case identBackend{}:
			if b, ok := o.Value().(nn.Backend); ok && b != nil {
				s.backend = b
			}
		case identRand{}:
			if rng, ok := o.Value().(*rand.Rand); ok && rng != nil {
				s.rng = rng
			}
		case identLogger{}:
			if l, ok := o.Value().(*zap.Logger); ok && l != nil {
				s.logger = l
			}
		case identMode{}:
			if m, ok := o.Value().(nn.Mode); ok {
				s.mode = m
			}
		}
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.logger == nil {
		s.logger = zap.L()
	}
	return s
}
