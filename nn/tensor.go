package nn

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor allocates a zero-filled tensor with the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float32, numElements(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewTensorFromSlice wraps data with the given shape. The data is not copied.
// With no shape the tensor is one-dimensional.
func NewTensorFromSlice(data []float32, shape ...int) *Tensor {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}
}

// NewMatrix builds a [rows, cols] tensor from a slice of equally sized rows.
func NewMatrix(rows [][]float32) (*Tensor, error) {
	if len(rows) == 0 {
		return NewTensor(0, 0), nil
	}
	cols := len(rows[0])
	t := NewTensor(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, shapeErrorf("row %d has %d values, want %d", r, len(row), cols)
		}
		copy(t.Data[r*cols:], row)
	}
	return t, nil
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float32(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a view with a new shape over the same data, or nil if the
// element count does not match.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if numElements(shape) != len(t.Data) {
		return nil
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}
}

// Dims2 returns the rows and columns of a rank-2 tensor.
func (t *Tensor) Dims2() (rows, cols int, err error) {
	if t == nil {
		return 0, 0, shapeErrorf("nil tensor")
	}
	if len(t.Shape) != 2 {
		return 0, 0, shapeErrorf("want rank 2, got shape %v", t.Shape)
	}
	if t.Shape[0]*t.Shape[1] != len(t.Data) {
		return 0, 0, shapeErrorf("shape %v does not cover %d values", t.Shape, len(t.Data))
	}
	return t.Shape[0], t.Shape[1], nil
}

// Rows returns the tensor as a slice of row slices sharing its storage.
func (t *Tensor) Rows() [][]float32 {
	rows, cols, err := t.Dims2()
	if err != nil {
		return nil
	}
	out := make([][]float32, rows)
	for r := range out {
		out[r] = t.Data[r*cols : (r+1)*cols]
	}
	return out
}

func numElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
