package nn

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/nlpodyssey/safetensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"go.uber.org/zap"
)

// maxDim bounds a single tensor dimension read from a file header
const maxDim = math.MaxInt32

// TensorWithShape is a decoded (or to-be-encoded) safetensors entry.
type TensorWithShape struct {
	Values []float32
	Shape  []int
	DType  string // "F32", "F16", "BF16" or "F64"
}

// LoadSafetensors reads a safetensors file and returns tensors by name
func LoadSafetensors(filepath string) (map[string]TensorWithShape, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read safetensors file")
	}
	return LoadSafetensorsFromBytes(data)
}

// LoadSafetensorsFromBytes decodes safetensors data. Floating point tensors are
// widened or narrowed to float32; tensors of other dtypes are skipped.
func LoadSafetensorsFromBytes(data []byte) (map[string]TensorWithShape, error) {
	st, err := safetensors.Deserialize(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse safetensors")
	}

	views := st.Tensors()
	tensors := make(map[string]TensorWithShape, len(views))
	for _, named := range views {
		name, view := named.Name, named.TensorView

		dtype, ok := dtypeName(view.DType())
		if !ok {
			zap.L().Warn("skipping tensor with unsupported dtype",
				zap.String("tensor", name), zap.Uint8("dtype", uint8(view.DType())))
			continue
		}

		shape, n, err := tensorShape(view.Shape())
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %s", name)
		}
		raw := view.Data()
		if size := bytesPerElement(dtype); len(raw) != n*size {
			return nil, errors.Errorf("tensor %s: %d bytes of data for %d %s values", name, len(raw), n, dtype)
		}

		tensors[name] = TensorWithShape{Values: decodeFloats(dtype, raw, n), Shape: shape, DType: dtype}
	}
	return tensors, nil
}

// tensorShape converts a header shape to ints and returns its element count
func tensorShape(dims []uint64) ([]int, int, error) {
	shape := make([]int, len(dims))
	n := 1
	for i, d := range dims {
		if d > maxDim || (d > 0 && uint64(n) > maxDim/d) {
			return nil, 0, errors.Errorf("shape %v too large", dims)
		}
		shape[i] = int(d)
		n *= int(d)
	}
	return shape, n, nil
}

func decodeFloats(dtype string, buf []byte, n int) []float32 {
	values := make([]float32, n)
	switch dtype {
	case "F32":
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	case "F64":
		for i := range values {
			values[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:])))
		}
	case "F16":
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(buf[i*2:])).Float32()
		}
	case "BF16":
		for i := range values {
			values[i] = bfloat16ToFloat32(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	}
	return values
}

// dtypeName maps the floating point dtypes to their header names
func dtypeName(dt safetensors.DType) (string, bool) {
	switch dt {
	case safetensors.F64:
		return "F64", true
	case safetensors.F32:
		return "F32", true
	case safetensors.F16:
		return "F16", true
	case safetensors.BF16:
		return "BF16", true
	default:
		return "", false
	}
}

// parseDType is the inverse of dtypeName
func parseDType(name string) (safetensors.DType, bool) {
	switch name {
	case "F64":
		return safetensors.F64, true
	case "F32":
		return safetensors.F32, true
	case "F16":
		return safetensors.F16, true
	case "BF16":
		return safetensors.BF16, true
	default:
		return 0, false
	}
}

// bytesPerElement returns the encoded width of the supported floating point
// dtypes, or 0 for anything else
func bytesPerElement(dtype string) int {
	switch dtype {
	case "F64":
		return 8
	case "F32":
		return 4
	case "F16", "BF16":
		return 2
	default:
		return 0
	}
}

// bfloat16ToFloat32 converts a bfloat16 to float32
func bfloat16ToFloat32(bf16 uint16) float32 {
	// bfloat16 is just the top 16 bits of float32
	return math.Float32frombits(uint32(bf16) << 16)
}

// float32ToBFloat16 truncates a float32 to bfloat16 with round-to-nearest-even
func float32ToBFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	if f != f { // NaN
		return uint16(bits>>16) | 0x40
	}
	rounding := uint32(0x7FFF) + ((bits >> 16) & 1)
	return uint16((bits + rounding) >> 16)
}
