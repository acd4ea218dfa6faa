package nn

// ActivationType defines the element-wise function applied after a layer
type ActivationType int

const (
	ActivationIdentity ActivationType = 0 // v
	ActivationReLU     ActivationType = 1 // max(0, v)
	ActivationSigmoid  ActivationType = 2 // 1 / (1 + exp(-v))
	ActivationTanh     ActivationType = 3 // tanh(v)
)

// Mode selects how stateful layers behave during a forward pass
type Mode int

const (
	// Inference normalizes with running statistics and never mutates layer state.
	Inference Mode = iota
	// Training normalizes with batch statistics and updates running statistics.
	Training
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "training"
	default:
		return "inference"
	}
}

// Param is a named parameter tensor. Data aliases the owning layer's storage,
// so writing into it updates the layer.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}
