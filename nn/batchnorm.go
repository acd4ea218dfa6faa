package nn

import (
	"math"

	"github.com/pkg/errors"
)

// BatchNorm normalizes each of Channels features across the batch and applies
// a learned affine transform. Input shape: [batchSize][Channels] (flattened).
type BatchNorm struct {
	Channels int
	Eps      float64
	Momentum float64

	Gamma       []float32 // scale [Channels]
	Beta        []float32 // shift [Channels]
	RunningMean []float32 // [Channels]
	RunningVar  []float32 // [Channels]

	// NumBatchesTracked counts training-mode forward passes.
	NumBatchesTracked int64

	mode Mode
}

// NewBatchNorm creates a batch normalization layer with unit scale, zero
// shift and running statistics initialised to mean 0, variance 1.
func NewBatchNorm(channels int) *BatchNorm {
	bn := &BatchNorm{
		Channels:    channels,
		Eps:         1e-5,
		Momentum:    0.1,
		Gamma:       make([]float32, channels),
		Beta:        make([]float32, channels),
		RunningMean: make([]float32, channels),
		RunningVar:  make([]float32, channels),
	}
	for i := 0; i < channels; i++ {
		bn.Gamma[i] = 1
		bn.RunningVar[i] = 1
	}
	return bn
}

// SetMode switches between batch statistics (Training) and running
// statistics (Inference).
func (bn *BatchNorm) SetMode(m Mode) {
	bn.mode = m
}

// Mode reports the current processing mode.
func (bn *BatchNorm) Mode() Mode {
	return bn.mode
}

// Forward normalizes x [B, Channels]. In Training mode the running statistics
// are updated as a side effect.
func (bn *BatchNorm) Forward(x *Tensor) (*Tensor, error) {
	batch, channels, err := x.Dims2()
	if err != nil {
		return nil, err
	}
	if channels != bn.Channels {
		return nil, shapeErrorf("batchnorm: input has %d channels, want %d", channels, bn.Channels)
	}

	mean := make([]float64, channels)
	variance := make([]float64, channels)

	if bn.mode == Training {
		if batch < 2 {
			return nil, errors.Wrapf(ErrBatchTooSmall, "batchnorm: got %d rows", batch)
		}
		for b := 0; b < batch; b++ {
			row := x.Data[b*channels : (b+1)*channels]
			for c, v := range row {
				mean[c] += float64(v)
			}
		}
		for c := range mean {
			mean[c] /= float64(batch)
		}
		for b := 0; b < batch; b++ {
			row := x.Data[b*channels : (b+1)*channels]
			for c, v := range row {
				diff := float64(v) - mean[c]
				variance[c] += diff * diff
			}
		}
		// Normalization uses the biased estimate, running stats the unbiased one.
		for c := range variance {
			unbiased := variance[c] / float64(batch-1)
			variance[c] /= float64(batch)
			bn.RunningMean[c] = float32((1-bn.Momentum)*float64(bn.RunningMean[c]) + bn.Momentum*mean[c])
			bn.RunningVar[c] = float32((1-bn.Momentum)*float64(bn.RunningVar[c]) + bn.Momentum*unbiased)
		}
		bn.NumBatchesTracked++
	} else {
		for c := 0; c < channels; c++ {
			mean[c] = float64(bn.RunningMean[c])
			variance[c] = float64(bn.RunningVar[c])
		}
	}

	// Fold normalization and affine transform into one scale and shift per channel
	scale := make([]float64, channels)
	shift := make([]float64, channels)
	for c := 0; c < channels; c++ {
		scale[c] = float64(bn.Gamma[c]) / math.Sqrt(variance[c]+bn.Eps)
		shift[c] = float64(bn.Beta[c]) - mean[c]*scale[c]
	}

	out := NewTensor(batch, channels)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			idx := b*channels + c
			out.Data[idx] = float32(float64(x.Data[idx])*scale[c] + shift[c])
		}
	}
	return out, nil
}

// Params lists the layer's parameters and running statistics under prefix.
func (bn *BatchNorm) Params(prefix string) []Param {
	shape := []int{bn.Channels}
	return []Param{
		{Name: prefix + "weight", Shape: shape, Data: bn.Gamma},
		{Name: prefix + "bias", Shape: shape, Data: bn.Beta},
		{Name: prefix + "running_mean", Shape: shape, Data: bn.RunningMean},
		{Name: prefix + "running_var", Shape: shape, Data: bn.RunningVar},
	}
}
