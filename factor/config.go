package factor

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/openfluke/geofactor/nn"
)

const (
	// DefaultBoxFeatSize is the width of a box's geometric feature vector.
	DefaultBoxFeatSize = 24
	// DefaultOutDim is the number of relation classes scored.
	DefaultOutDim = 117
	// DefaultPairwiseOutDim is the width of the pairwise projection.
	DefaultPairwiseOutDim = 2000
)

// Constants configures GeometricFactor.
type Constants struct {
	BoxFeatSize int `json:"box_feat_size" yaml:"box_feat_size"`
	OutDim      int `json:"out_dim" yaml:"out_dim"`
}

// DefaultConstants returns the standard 24-feature, 117-class configuration.
func DefaultConstants() Constants {
	return Constants{BoxFeatSize: DefaultBoxFeatSize, OutDim: DefaultOutDim}
}

// Validate reports non-positive dimensions.
func (c Constants) Validate() error {
	if c.BoxFeatSize <= 0 {
		return errors.Errorf("box_feat_size must be positive, got %d", c.BoxFeatSize)
	}
	if c.OutDim <= 0 {
		return errors.Errorf("out_dim must be positive, got %d", c.OutDim)
	}
	return nil
}

// PairwiseConstants configures GeometricFactorPairwise.
type PairwiseConstants struct {
	Constants `yaml:",inline"`
	PairwiseOutDim int `json:"pairwise_out_dim" yaml:"pairwise_out_dim"`
}

// DefaultPairwiseConstants returns DefaultConstants with a 2000-wide pairwise
// projection.
func DefaultPairwiseConstants() PairwiseConstants {
	return PairwiseConstants{Constants: DefaultConstants(), PairwiseOutDim: DefaultPairwiseOutDim}
}

// Validate reports non-positive dimensions.
func (c PairwiseConstants) Validate() error {
	if err := c.Constants.Validate(); err != nil {
		return err
	}
	if c.PairwiseOutDim <= 0 {
		return errors.Errorf("pairwise_out_dim must be positive, got %d", c.PairwiseOutDim)
	}
	return nil
}

// LinearDims is the input and output width of a dense layer.
type LinearDims struct {
	InDim  int `json:"in_dim" yaml:"in_dim"`
	OutDim int `json:"out_dim" yaml:"out_dim"`
}

// BoxFeatureFactorConst derives the MLP that maps box features straight to
// scores: no hidden layers, ReLU/batch-norm on any hidden layers that are
// added, identity output.
func BoxFeatureFactorConst(c Constants) nn.MLPConfig {
	return nn.MLPConfig{
		InDim:         c.BoxFeatSize,
		OutDim:        c.OutDim,
		OutActivation: "Identity",
		LayerUnits:    []int{},
		Activation:    "ReLU",
		UseOutBN:      false,
		UseBN:         true,
	}
}

// PairwiseLayerDims derives the pairwise projection: F² -> PairwiseOutDim.
func PairwiseLayerDims(c PairwiseConstants) LinearDims {
	return LinearDims{
		InDim:  c.BoxFeatSize * c.BoxFeatSize,
		OutDim: c.PairwiseOutDim,
	}
}

// AggLayerDims derives the aggregation layer: PairwiseOutDim + F -> OutDim.
func AggLayerDims(c PairwiseConstants) LinearDims {
	return LinearDims{
		InDim:  PairwiseLayerDims(c).OutDim + c.BoxFeatSize,
		OutDim: c.OutDim,
	}
}

// SaveConstants writes a configuration record as indented JSON.
func SaveConstants(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal constants")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write constants")
}

// LoadConstants reads a configuration record written by SaveConstants into v.
func LoadConstants(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read constants")
	}
	return errors.Wrapf(json.Unmarshal(data, v), "parse constants %s", path)
}
