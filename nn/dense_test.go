package nn

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestLinearForwardKnownValues checks y = x·Wᵀ + b on a hand-written layer
func TestLinearForwardKnownValues(t *testing.T) {
	lin := &Linear{
		In:  2,
		Out: 3,
		Weight: []float32{
			1, 0,
			0, 1,
			0, 0,
		},
		Bias: []float32{0.1, 0.2, 0.3},
	}

	y, err := lin.Forward(NewTensorFromSlice([]float32{1, 2}, 1, 2))
	require.NoError(t, err)

	// Expected: [1*1 + 2*0 + 0.1, 1*0 + 2*1 + 0.2, 0.3]
	require.Equal(t, []int{1, 3}, y.Shape)
	assert.InDelta(t, 1.1, y.Data[0], 1e-5)
	assert.InDelta(t, 2.2, y.Data[1], 1e-5)
	assert.InDelta(t, 0.3, y.Data[2], 1e-5)
}

// TestLinearMatchesGonum compares the BLAS path with a float64 mat.Dense product
func TestLinearMatchesGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const batch, in, out = 5, 13, 9
	lin := NewLinear(in, out, rng)

	x := NewTensor(batch, in)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}

	y, err := lin.Forward(x)
	require.NoError(t, err)
	require.Equal(t, []int{batch, out}, y.Shape)

	xm := mat.NewDense(batch, in, toFloat64(x.Data))
	wm := mat.NewDense(out, in, toFloat64(lin.Weight))
	var want mat.Dense
	want.Mul(xm, wm.T())

	for b := 0; b < batch; b++ {
		for o := 0; o < out; o++ {
			expected := want.At(b, o) + float64(lin.Bias[o])
			assert.InDelta(t, expected, y.Data[b*out+o], 1e-4, "b=%d o=%d", b, o)
		}
	}
}

func TestNewLinearInitBounds(t *testing.T) {
	lin := NewLinear(16, 4, rand.New(rand.NewSource(1)))
	assert.Len(t, lin.Weight, 64)
	assert.Len(t, lin.Bias, 4)
	for _, w := range append(append([]float32{}, lin.Weight...), lin.Bias...) {
		assert.LessOrEqual(t, w, float32(0.25))
		assert.GreaterOrEqual(t, w, float32(-0.25))
	}
}

func TestLinearShapeMismatch(t *testing.T) {
	lin := NewLinear(4, 2, rand.New(rand.NewSource(1)))

	_, err := lin.Forward(NewTensor(3, 5))
	assert.True(t, errors.Is(err, ErrShapeMismatch))

	_, err = lin.Forward(NewTensor(12))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestLinearEmptyBatch(t *testing.T) {
	lin := NewLinear(4, 2, rand.New(rand.NewSource(1)))
	y, err := lin.Forward(NewTensor(0, 4))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, y.Shape)
	assert.Equal(t, 0, y.Size())
}

// recordingBackend wraps the CPU backend and counts calls
type recordingBackend struct {
	CPUBackend
	calls int
}

func (r *recordingBackend) Linear(x []float32, batch, in int, w, b []float32, out int) ([]float32, error) {
	r.calls++
	return r.CPUBackend.Linear(x, batch, in, w, b, out)
}

func TestLinearUsesBackend(t *testing.T) {
	lin := NewLinear(3, 2, rand.New(rand.NewSource(1)))
	rec := &recordingBackend{}
	lin.SetBackend(rec)

	_, err := lin.Forward(NewTensor(2, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)

	lin.SetBackend(nil)
	_, err = lin.Forward(NewTensor(2, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
}

func TestCheckLinearArgs(t *testing.T) {
	w := make([]float32, 6)
	b := make([]float32, 3)
	assert.NoError(t, CheckLinearArgs(make([]float32, 4), 2, 2, w, b, 3))
	assert.True(t, errors.Is(CheckLinearArgs(make([]float32, 5), 2, 2, w, b, 3), ErrShapeMismatch))
	assert.True(t, errors.Is(CheckLinearArgs(make([]float32, 4), 2, 2, w[:5], b, 3), ErrShapeMismatch))
	assert.True(t, errors.Is(CheckLinearArgs(make([]float32, 4), 2, 2, w, b[:2], 3), ErrShapeMismatch))
	assert.True(t, errors.Is(CheckLinearArgs(nil, 0, 0, nil, nil, 3), ErrShapeMismatch))
}

func TestLinearParams(t *testing.T) {
	lin := NewLinear(3, 2, rand.New(rand.NewSource(1)))
	params := lin.Params("agg_linear.")
	require.Len(t, params, 2)
	assert.Equal(t, "agg_linear.weight", params[0].Name)
	assert.Equal(t, []int{2, 3}, params[0].Shape)
	assert.Equal(t, "agg_linear.bias", params[1].Name)

	// Params alias layer storage
	params[1].Data[0] = 42
	assert.Equal(t, float32(42), lin.Bias[0])
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
