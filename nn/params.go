package nn

import (
	"github.com/pkg/errors"
)

// SaveParams writes params to a safetensors file as F32 tensors.
func SaveParams(filepath string, params []Param) error {
	tensors := make(map[string]TensorWithShape, len(params))
	for _, p := range params {
		if _, dup := tensors[p.Name]; dup {
			return errors.Errorf("duplicate parameter name %s", p.Name)
		}
		tensors[p.Name] = TensorWithShape{Values: p.Data, Shape: p.Shape, DType: "F32"}
	}
	return SaveSafetensors(filepath, tensors)
}

// LoadParams reads a safetensors file and copies every named tensor into the
// matching param. Tensors in the file that no param asks for are ignored.
func LoadParams(filepath string, params []Param) error {
	tensors, err := LoadSafetensors(filepath)
	if err != nil {
		return err
	}
	return AssignParams(tensors, params)
}

// AssignParams copies tensors into params by name. Shapes must match exactly.
// Nothing is written unless every param can be assigned.
func AssignParams(tensors map[string]TensorWithShape, params []Param) error {
	for _, p := range params {
		t, ok := tensors[p.Name]
		if !ok {
			return errors.Wrapf(ErrMissingParam, "%s", p.Name)
		}
		if !sameShape(t.Shape, p.Shape) || len(t.Values) != len(p.Data) {
			return shapeErrorf("param %s: file has shape %v, want %v", p.Name, t.Shape, p.Shape)
		}
	}
	for _, p := range params {
		copy(p.Data, tensors[p.Name].Values)
	}
	return nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
