// Package nn provides the small set of CPU/GPU neural network primitives used by
// the geometric factor scorers: dense (linear) layers, batch normalization,
// element-wise activations and a configurable multi-layer perceptron.
//
// All tensors are row-major float32 buffers. A batch of B vectors of width F is
// stored as a Tensor of shape [B, F] with element (b, f) at Data[b*F+f].
//
// Layers run their matrix products through a Backend. The default CPUBackend
// uses gonum's BLAS; the gpu package provides a WebGPU implementation.
//
// Example usage:
//
//	lin := nn.NewLinear(24, 117, rng)
//	scores, err := lin.Forward(boxes) // boxes: [B, 24] -> scores: [B, 117]
//
// Parameters of every layer can be listed with Params and persisted with
// SaveParams / LoadParams in the safetensors format.
package nn
