package nn

import (
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafetensorsRoundTrip(t *testing.T) {
	tensors := map[string]TensorWithShape{
		"f32":  {Values: []float32{1.5, -2, 3.25, 0}, Shape: []int{2, 2}, DType: "F32"},
		"f16":  {Values: []float32{0.5, -2, 1.25}, Shape: []int{3}, DType: "F16"},
		"bf16": {Values: []float32{1, -3.5, 0.15625}, Shape: []int{3}, DType: "BF16"},
		"f64":  {Values: []float32{0.1}, Shape: []int{1}, DType: "F64"},
		"dflt": {Values: []float32{7}, Shape: []int{1}},
	}

	data, err := SerializeSafetensors(tensors)
	require.NoError(t, err)

	loaded, err := LoadSafetensorsFromBytes(data)
	require.NoError(t, err)
	require.Len(t, loaded, len(tensors))

	for name, want := range tensors {
		got := loaded[name]
		assert.Equal(t, want.Shape, got.Shape, name)
		assert.Equal(t, want.Values, got.Values, name)
	}
	assert.Equal(t, "F32", loaded["dflt"].DType)
}

func TestSerializeSafetensorsErrors(t *testing.T) {
	_, err := SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{1}, Shape: []int{1}, DType: "I8"},
	})
	assert.Error(t, err)

	_, err = SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{1, 2, 3}, Shape: []int{2}},
	})
	assert.Error(t, err)

	_, err = SerializeSafetensors(map[string]TensorWithShape{
		"x": {Values: []float32{}, Shape: []int{-1, 0}},
	})
	assert.Error(t, err)
}

// PyTorch exports carry an int64 num_batches_tracked next to batch norm
// parameters; it is skipped rather than rejected.
func TestLoadSafetensorsSkipsIntegerTensors(t *testing.T) {
	header := []byte(`{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},` +
		`"bn.num_batches_tracked":{"dtype":"I64","shape":[],"data_offsets":[8,16]},` +
		`"__metadata__":{"format":"pt"}}`)
	data := make([]byte, 8+len(header)+16)
	binary.LittleEndian.PutUint64(data, uint64(len(header)))
	copy(data[8:], header)
	payload := data[8+len(header):]
	binary.LittleEndian.PutUint32(payload[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(payload[4:], math.Float32bits(-4))
	binary.LittleEndian.PutUint64(payload[8:], 12)

	loaded, err := LoadSafetensorsFromBytes(data)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, []float32{1.5, -4}, loaded["a"].Values)
}

func TestLoadSafetensorsCorrupt(t *testing.T) {
	_, err := LoadSafetensorsFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, 1000)
	_, err = LoadSafetensorsFromBytes(data)
	assert.Error(t, err)

	header := []byte(`{"a":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`)
	short := make([]byte, 8+len(header)+8)
	binary.LittleEndian.PutUint64(short, uint64(len(header)))
	copy(short[8:], header)
	_, err = LoadSafetensorsFromBytes(short)
	assert.Error(t, err)
}

func safetensorsWithHeader(header string, payload int) []byte {
	data := make([]byte, 8+len(header)+payload)
	binary.LittleEndian.PutUint64(data, uint64(len(header)))
	copy(data[8:], header)
	return data
}

func TestLoadSafetensorsRejectsBadHeaders(t *testing.T) {
	headers := map[string]string{
		"negative shape":    `{"w":{"dtype":"F32","shape":[-1],"data_offsets":[4,0]}}`,
		"reversed offsets":  `{"w":{"dtype":"F32","shape":[1],"data_offsets":[4,0]}}`,
		"offsets past data": `{"w":{"dtype":"F32","shape":[2],"data_offsets":[0,8]}}`,
		"size mismatch":     `{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,4]}}`,
		"not json":          `{"w":`,
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			var err error
			assert.NotPanics(t, func() {
				_, err = LoadSafetensorsFromBytes(safetensorsWithHeader(header, 4))
			})
			assert.Error(t, err)
		})
	}
}

func TestSaveLoadParams(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	src := NewLinear(4, 3, rng)
	srcBN := NewBatchNorm(3)
	srcBN.RunningMean[1] = 0.75

	path := filepath.Join(t.TempDir(), "weights.safetensors")
	params := append(src.Params("lin."), srcBN.Params("bn.")...)
	require.NoError(t, SaveParams(path, params))

	dst := NewLinear(4, 3, rand.New(rand.NewSource(12)))
	dstBN := NewBatchNorm(3)
	require.NoError(t, LoadParams(path, append(dst.Params("lin."), dstBN.Params("bn.")...)))

	assert.Equal(t, src.Weight, dst.Weight)
	assert.Equal(t, src.Bias, dst.Bias)
	assert.Equal(t, float32(0.75), dstBN.RunningMean[1])
}

func TestLoadParamsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.safetensors")
	require.NoError(t, SaveParams(path, NewLinear(4, 3, rand.New(rand.NewSource(1))).Params("lin.")))

	wrongShape := NewLinear(5, 3, rand.New(rand.NewSource(1)))
	before := append([]float32{}, wrongShape.Bias...)
	err := LoadParams(path, wrongShape.Params("lin."))
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	assert.Equal(t, before, wrongShape.Bias, "failed load must not write partial results")

	err = LoadParams(path, NewLinear(4, 3, rand.New(rand.NewSource(1))).Params("other."))
	assert.True(t, errors.Is(err, ErrMissingParam))

	err = LoadParams(filepath.Join(t.TempDir(), "missing.safetensors"), nil)
	assert.Error(t, err)
}

func TestSaveParamsRejectsDuplicates(t *testing.T) {
	lin := NewLinear(2, 2, rand.New(rand.NewSource(1)))
	params := append(lin.Params("x."), lin.Params("x.")...)
	err := SaveParams(filepath.Join(t.TempDir(), "w.safetensors"), params)
	assert.Error(t, err)
}
