package nn

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/nlpodyssey/safetensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// SaveSafetensors writes tensors to a safetensors file
func SaveSafetensors(filepath string, tensors map[string]TensorWithShape) error {
	data, err := SerializeSafetensors(tensors)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(filepath, data, 0644), "failed to write safetensors file")
}

// SerializeSafetensors converts tensors to safetensors format bytes.
// An empty DType defaults to F32.
func SerializeSafetensors(tensors map[string]TensorWithShape) ([]byte, error) {
	views := make(map[string]safetensors.TensorView, len(tensors))
	for name, tensor := range tensors {
		dtype := tensor.DType
		if dtype == "" {
			dtype = "F32"
		}
		dt, ok := parseDType(dtype)
		if !ok {
			return nil, errors.Errorf("tensor %s: unsupported dtype %s", name, dtype)
		}
		if n := numElements(tensor.Shape); n != len(tensor.Values) {
			return nil, errors.Errorf("tensor %s: shape %v needs %d values, got %d", name, tensor.Shape, n, len(tensor.Values))
		}

		shape := make([]uint64, len(tensor.Shape))
		for i, d := range tensor.Shape {
			if d < 0 {
				return nil, errors.Errorf("tensor %s: negative dimension in shape %v", name, tensor.Shape)
			}
			shape[i] = uint64(d)
		}
		buf := make([]byte, len(tensor.Values)*bytesPerElement(dtype))
		writeTensorData(buf, dtype, tensor.Values)

		view, err := safetensors.NewTensorView(dt, shape, buf)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %s", name)
		}
		views[name] = view
	}

	data, err := safetensors.Serialize(views, nil)
	return data, errors.Wrap(err, "failed to serialize safetensors")
}

// writeTensorData encodes values in the given dtype into dest
func writeTensorData(dest []byte, dtype string, values []float32) {
	switch dtype {
	case "F32":
		for i, val := range values {
			binary.LittleEndian.PutUint32(dest[i*4:], math.Float32bits(val))
		}
	case "F64":
		for i, val := range values {
			binary.LittleEndian.PutUint64(dest[i*8:], math.Float64bits(float64(val)))
		}
	case "F16":
		for i, val := range values {
			binary.LittleEndian.PutUint16(dest[i*2:], float16.Fromfloat32(val).Bits())
		}
	case "BF16":
		for i, val := range values {
			binary.LittleEndian.PutUint16(dest[i*2:], float32ToBFloat16(val))
		}
	}
}
