package nn

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boxFactorConfig() MLPConfig {
	return MLPConfig{
		InDim:         24,
		OutDim:        117,
		OutActivation: "Identity",
		LayerUnits:    []int{},
		Activation:    "ReLU",
		UseOutBN:      false,
		UseBN:         true,
	}
}

// With no hidden layers the MLP is a single linear projection
func TestMLPNoHiddenLayers(t *testing.T) {
	mlp, err := NewMLP(boxFactorConfig(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, 1, mlp.NumLayers())
	assert.Equal(t, 24, mlp.InDim())
	assert.Equal(t, 117, mlp.OutDim())

	x := NewTensor(4, 24)
	for i := range x.Data {
		x.Data[i] = float32(i%7) - 3
	}
	y, err := mlp.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 117}, y.Shape)

	want, err := mlp.layers[0].linear.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data, y.Data)

	params := mlp.Params("box_feature_factor.")
	require.Len(t, params, 2)
	assert.Equal(t, "box_feature_factor.mlp.0.linear.weight", params[0].Name)
	assert.Equal(t, "box_feature_factor.mlp.0.linear.bias", params[1].Name)
}

func TestMLPHiddenLayers(t *testing.T) {
	cfg := boxFactorConfig()
	cfg.LayerUnits = []int{8, 6}
	cfg.OutDim = 3
	mlp, err := NewMLP(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.Equal(t, 3, mlp.NumLayers())

	var names []string
	for _, p := range mlp.Params("") {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "mlp.0.bn.running_mean")
	assert.Contains(t, names, "mlp.1.bn.weight")
	assert.NotContains(t, names, "mlp.2.bn.weight", "output block has no batch norm")
	assert.Contains(t, names, "mlp.2.linear.weight")

	y, err := mlp.Forward(NewTensor(1, 24))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, y.Shape)
}

// Hidden blocks apply ReLU, so a hidden layer driven negative outputs zeros
func TestMLPHiddenActivation(t *testing.T) {
	cfg := MLPConfig{InDim: 2, OutDim: 1, LayerUnits: []int{2}, Activation: "ReLU", OutActivation: "Identity"}
	mlp, err := NewMLP(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	hidden := mlp.layers[0].linear
	copy(hidden.Weight, []float32{-1, 0, 0, -1})
	copy(hidden.Bias, []float32{0, 0})
	out := mlp.layers[1].linear
	copy(out.Weight, []float32{1, 1})
	out.Bias[0] = 0.5

	y, err := mlp.Forward(NewTensorFromSlice([]float32{3, 4}, 1, 2))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, y.Data[0], 1e-6)
}

func TestMLPModePropagates(t *testing.T) {
	cfg := boxFactorConfig()
	cfg.LayerUnits = []int{4}
	mlp, err := NewMLP(cfg, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	mlp.SetMode(Training)
	assert.Equal(t, Training, mlp.layers[0].bn.Mode())

	_, err = mlp.Forward(NewTensor(1, 24))
	assert.True(t, errors.Is(err, ErrBatchTooSmall))
}

func TestMLPInvalidConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	_, err := NewMLP(MLPConfig{InDim: 0, OutDim: 2}, rng)
	assert.Error(t, err)

	_, err = NewMLP(MLPConfig{InDim: 2, OutDim: 2, Activation: "Gelu"}, rng)
	assert.Error(t, err)

	_, err = NewMLP(MLPConfig{InDim: 2, OutDim: 2, LayerUnits: []int{0}}, rng)
	assert.Error(t, err)
}

func TestMLPShapeMismatch(t *testing.T) {
	mlp, err := NewMLP(boxFactorConfig(), rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	_, err = mlp.Forward(NewTensor(2, 23))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}
