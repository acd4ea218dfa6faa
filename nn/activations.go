package nn

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// activate applies the activation function to a single value
func activate(v float32, activation ActivationType) float32 {
	switch activation {
	case ActivationReLU:
		if v < 0 {
			return 0
		}
		return v
	case ActivationSigmoid:
		return 1.0 / (1.0 + float32(math.Exp(float64(-v))))
	case ActivationTanh:
		return float32(math.Tanh(float64(v)))
	default:
		return v
	}
}

// Activate applies the activation in place and returns t.
func Activate(t *Tensor, activation ActivationType) *Tensor {
	if activation == ActivationIdentity {
		return t
	}
	for i, v := range t.Data {
		t.Data[i] = activate(v, activation)
	}
	return t
}

// ParseActivation maps a layer-constant name such as "ReLU" or "Identity"
// to its ActivationType. Matching is case-insensitive.
func ParseActivation(name string) (ActivationType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity", "none", "linear":
		return ActivationIdentity, nil
	case "relu":
		return ActivationReLU, nil
	case "sigmoid":
		return ActivationSigmoid, nil
	case "tanh":
		return ActivationTanh, nil
	}
	return ActivationIdentity, errors.Errorf("unknown activation %q", name)
}

func (a ActivationType) String() string {
	switch a {
	case ActivationReLU:
		return "ReLU"
	case ActivationSigmoid:
		return "Sigmoid"
	case ActivationTanh:
		return "Tanh"
	default:
		return "Identity"
	}
}
