package nn

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Backend defines the matrix kernel layers run on.
// This abstraction allows swapping implementations (CPU, GPU)
// without changing layer code.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Linear computes y = x·Wᵀ + b.
	// x: [batch * in], w: [out * in] (row-major, one row per output), b: [out]
	// result: [batch * out]
	Linear(x []float32, batch, in int, w, b []float32, out int) ([]float32, error)
}

// CPUBackend runs dense products through gonum's float32 BLAS.
type CPUBackend struct{}

// NewCPUBackend creates a new CPU backend.
func NewCPUBackend() *CPUBackend {
	return &CPUBackend{}
}

// DefaultBackend is used by layers that were not given one explicitly.
var DefaultBackend Backend = NewCPUBackend()

func (*CPUBackend) Name() string { return "cpu" }

// Linear implements Backend.
func (*CPUBackend) Linear(x []float32, batch, in int, w, b []float32, out int) ([]float32, error) {
	if err := CheckLinearArgs(x, batch, in, w, b, out); err != nil {
		return nil, err
	}
	y := make([]float32, batch*out)
	if batch == 0 {
		return y, nil
	}
	for r := 0; r < batch; r++ {
		copy(y[r*out:(r+1)*out], b)
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: batch, Cols: in, Stride: in, Data: x},
		blas32.General{Rows: out, Cols: in, Stride: in, Data: w},
		1,
		blas32.General{Rows: batch, Cols: out, Stride: out, Data: y},
	)
	return y, nil
}

// CheckLinearArgs validates the argument sizes of Backend.Linear.
// Backends outside this package use it to report the same errors as the CPU backend.
func CheckLinearArgs(x []float32, batch, in int, w, b []float32, out int) error {
	if in <= 0 || out <= 0 {
		return shapeErrorf("linear: invalid dims in=%d out=%d", in, out)
	}
	if len(x) != batch*in {
		return shapeErrorf("linear: input has %d values, want %d (batch=%d, in=%d)", len(x), batch*in, batch, in)
	}
	if len(w) != out*in {
		return shapeErrorf("linear: weight has %d values, want %d", len(w), out*in)
	}
	if len(b) != out {
		return shapeErrorf("linear: bias has %d values, want %d", len(b), out)
	}
	return nil
}
