package factor

import (
	"github.com/pkg/errors"

	"github.com/openfluke/geofactor/nn"
)

// BoxKey is the Features entry holding the [B, BoxFeatSize] box features.
const BoxKey = "box"

// ErrMissingFeature is returned when a required Features entry is absent.
var ErrMissingFeature = errors.New("missing feature")

// Features maps feature names to batched tensors.
type Features map[string]*nn.Tensor

// Box returns the box feature tensor after checking it is [B, width].
func (f Features) Box(width int) (*nn.Tensor, error) {
	box, ok := f[BoxKey]
	if !ok || box == nil {
		return nil, errors.Wrapf(ErrMissingFeature, "%q", BoxKey)
	}
	_, cols, err := box.Dims2()
	if err != nil {
		return nil, errors.Wrapf(err, "%q", BoxKey)
	}
	if cols != width {
		return nil, errors.Wrapf(nn.ErrShapeMismatch, "%q has %d features per box, want %d", BoxKey, cols, width)
	}
	return box, nil
}

// Scorer maps features to relation class scores.
type Scorer interface {
	Forward(feats Features) (*nn.Tensor, error)
}

// Persistable exposes a module's parameters and stores them in safetensors
// files.
type Persistable interface {
	Params() []nn.Param
	SaveWeights(path string) error
	LoadWeights(path string) error
}
