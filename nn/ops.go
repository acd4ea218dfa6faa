package nn

// Square returns a new tensor holding the element-wise square of t.
func Square(t *Tensor) *Tensor {
	out := &Tensor{Data: make([]float32, len(t.Data)), Shape: append([]int(nil), t.Shape...)}
	for i, v := range t.Data {
		out.Data[i] = v * v
	}
	return out
}

// Concat joins rank-2 tensors along the feature axis. All inputs must share
// the same batch size.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return NewTensor(0, 0), nil
	}
	batch, _, err := ts[0].Dims2()
	if err != nil {
		return nil, err
	}
	widths := make([]int, len(ts))
	total := 0
	for i, t := range ts {
		rows, cols, err := t.Dims2()
		if err != nil {
			return nil, err
		}
		if rows != batch {
			return nil, shapeErrorf("concat: input %d has batch %d, want %d", i, rows, batch)
		}
		widths[i] = cols
		total += cols
	}

	out := NewTensor(batch, total)
	for b := 0; b < batch; b++ {
		offset := b * total
		for i, t := range ts {
			w := widths[i]
			copy(out.Data[offset:offset+w], t.Data[b*w:(b+1)*w])
			offset += w
		}
	}
	return out, nil
}
