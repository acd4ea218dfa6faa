package nn

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
)

// MLPConfig describes a feed-forward network. Field names follow the layer
// constant records the models are configured with.
type MLPConfig struct {
	InDim         int    `json:"in_dim" yaml:"in_dim"`
	OutDim        int    `json:"out_dim" yaml:"out_dim"`
	OutActivation string `json:"out_activation" yaml:"out_activation"`
	LayerUnits    []int  `json:"layer_units" yaml:"layer_units"`
	Activation    string `json:"activation" yaml:"activation"`
	UseOutBN      bool   `json:"use_out_bn" yaml:"use_out_bn"`
	UseBN         bool   `json:"use_bn" yaml:"use_bn"`
}

// mlpLayer is one Linear -> (BatchNorm) -> activation block
type mlpLayer struct {
	linear     *Linear
	bn         *BatchNorm // nil when disabled
	activation ActivationType
}

// MLP is a stack of dense blocks. Hidden blocks use Activation and UseBN, the
// output block uses OutActivation and UseOutBN. With no LayerUnits the MLP is a
// single linear projection.
type MLP struct {
	layers []mlpLayer
	inDim  int
	outDim int
}

// NewMLP builds the network described by cfg.
func NewMLP(cfg MLPConfig, rng *rand.Rand) (*MLP, error) {
	if cfg.InDim <= 0 || cfg.OutDim <= 0 {
		return nil, errors.Errorf("mlp: invalid dims in=%d out=%d", cfg.InDim, cfg.OutDim)
	}
	hiddenAct, err := ParseActivation(cfg.Activation)
	if err != nil {
		return nil, errors.Wrap(err, "mlp: hidden activation")
	}
	outAct, err := ParseActivation(cfg.OutActivation)
	if err != nil {
		return nil, errors.Wrap(err, "mlp: output activation")
	}

	dims := append([]int{cfg.InDim}, cfg.LayerUnits...)
	m := &MLP{inDim: cfg.InDim, outDim: cfg.OutDim}
	for i := 1; i < len(dims); i++ {
		if dims[i] <= 0 {
			return nil, errors.Errorf("mlp: hidden layer %d has %d units", i-1, dims[i])
		}
		m.layers = append(m.layers, newMLPLayer(dims[i-1], dims[i], cfg.UseBN, hiddenAct, rng))
	}
	m.layers = append(m.layers, newMLPLayer(dims[len(dims)-1], cfg.OutDim, cfg.UseOutBN, outAct, rng))
	return m, nil
}

func newMLPLayer(in, out int, useBN bool, act ActivationType, rng *rand.Rand) mlpLayer {
	l := mlpLayer{linear: NewLinear(in, out, rng), activation: act}
	if useBN {
		l.bn = NewBatchNorm(out)
	}
	return l
}

// InDim returns the expected input width.
func (m *MLP) InDim() int { return m.inDim }

// OutDim returns the output width.
func (m *MLP) OutDim() int { return m.outDim }

// NumLayers returns the number of dense blocks, including the output block.
func (m *MLP) NumLayers() int { return len(m.layers) }

// Forward maps x [B, InDim] to [B, OutDim].
func (m *MLP) Forward(x *Tensor) (*Tensor, error) {
	h := x
	for i, l := range m.layers {
		var err error
		if h, err = l.linear.Forward(h); err != nil {
			return nil, errors.Wrapf(err, "mlp layer %d", i)
		}
		if l.bn != nil {
			if h, err = l.bn.Forward(h); err != nil {
				return nil, errors.Wrapf(err, "mlp layer %d", i)
			}
		}
		Activate(h, l.activation)
	}
	return h, nil
}

// SetMode propagates the processing mode to every batch normalization layer.
func (m *MLP) SetMode(mode Mode) {
	for _, l := range m.layers {
		if l.bn != nil {
			l.bn.SetMode(mode)
		}
	}
}

// SetBackend selects the backend of every dense layer.
func (m *MLP) SetBackend(b Backend) {
	for _, l := range m.layers {
		l.linear.SetBackend(b)
	}
}

// Params lists parameters as <prefix>mlp.<i>.linear.* and <prefix>mlp.<i>.bn.*.
func (m *MLP) Params(prefix string) []Param {
	var params []Param
	for i, l := range m.layers {
		block := fmt.Sprintf("%smlp.%d.", prefix, i)
		params = append(params, l.linear.Params(block+"linear.")...)
		if l.bn != nil {
			params = append(params, l.bn.Params(block+"bn.")...)
		}
	}
	return params
}
