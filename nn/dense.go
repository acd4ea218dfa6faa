package nn

import (
	"math"
	"math/rand"
)

// Linear is a dense (fully-connected) layer computing y = x·Wᵀ + b.
type Linear struct {
	In  int
	Out int

	// Weight matrix [Out * In], one row per output unit
	Weight []float32
	// Bias vector [Out]
	Bias []float32

	backend Backend
}

// NewLinear initializes a dense layer the way torch.nn.Linear does:
// weights and biases drawn from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1.0 / math.Sqrt(float64(in))

	weight := make([]float32, out*in)
	for i := range weight {
		weight[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	bias := make([]float32, out)
	for i := range bias {
		bias[i] = float32((rng.Float64()*2 - 1) * bound)
	}

	return &Linear{In: in, Out: out, Weight: weight, Bias: bias}
}

// SetBackend selects the backend used by Forward. nil restores DefaultBackend.
func (l *Linear) SetBackend(b Backend) {
	l.backend = b
}

func (l *Linear) getBackend() Backend {
	if l.backend == nil {
		return DefaultBackend
	}
	return l.backend
}

// Forward maps x [B, In] to [B, Out].
func (l *Linear) Forward(x *Tensor) (*Tensor, error) {
	batch, in, err := x.Dims2()
	if err != nil {
		return nil, err
	}
	if in != l.In {
		return nil, shapeErrorf("linear: input width %d, want %d", in, l.In)
	}

	y, err := l.getBackend().Linear(x.Data, batch, l.In, l.Weight, l.Bias, l.Out)
	if err != nil {
		return nil, err
	}
	return NewTensorFromSlice(y, batch, l.Out), nil
}

// Params lists the layer's parameters under prefix (e.g. "agg_linear.").
func (l *Linear) Params(prefix string) []Param {
	return []Param{
		{Name: prefix + "weight", Shape: []int{l.Out, l.In}, Data: l.Weight},
		{Name: prefix + "bias", Shape: []int{l.Out}, Data: l.Bias},
	}
}
