package factor

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openfluke/geofactor/nn"
)

// GeometricFactorPairwise scores relations from box features together with
// the pairwise differences between each box's feature scalars.
type GeometricFactorPairwise struct {
	consts PairwiseConstants

	boxFeatBN      *nn.BatchNorm
	pairwiseLinear *nn.Linear
	pairwiseBN     *nn.BatchNorm
	aggLinear      *nn.Linear

	log *zap.Logger
}

var (
	_ Scorer      = (*GeometricFactorPairwise)(nil)
	_ Persistable = (*GeometricFactorPairwise)(nil)
)

// NewPairwise builds a GeometricFactorPairwise sized from c.
func NewPairwise(c PairwiseConstants, opts ...Option) (*GeometricFactorPairwise, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := applyOptions(opts)

	pairwiseDims := PairwiseLayerDims(c)
	aggDims := AggLayerDims(c)

	f := &GeometricFactorPairwise{
		consts:         c,
		boxFeatBN:      nn.NewBatchNorm(c.BoxFeatSize),
		pairwiseLinear: nn.NewLinear(pairwiseDims.InDim, pairwiseDims.OutDim, s.rng),
		pairwiseBN:     nn.NewBatchNorm(pairwiseDims.OutDim),
		aggLinear:      nn.NewLinear(aggDims.InDim, aggDims.OutDim, s.rng),
		log:            s.logger.Named("geometric_factor_pairwise"),
	}
	if s.backend != nil {
		f.pairwiseLinear.SetBackend(s.backend)
		f.aggLinear.SetBackend(s.backend)
	}
	f.SetMode(s.mode)

	f.log.Debug("built pairwise geometric factor",
		zap.Int("box_feat_size", c.BoxFeatSize),
		zap.Int("out_dim", c.OutDim),
		zap.Int("pairwise_in_dim", pairwiseDims.InDim),
		zap.Int("pairwise_out_dim", pairwiseDims.OutDim),
		zap.Int("agg_in_dim", aggDims.InDim),
		zap.Stringer("mode", s.mode))
	return f, nil
}

// PairwiseDifferences turns x [B, F] into [B, F*F] where element (b, i*F+j)
// is x[b, j] - x[b, i]: the row-major flattening of the F×F matrix of signed
// differences between every ordered pair of a box's features.
func PairwiseDifferences(x *nn.Tensor) (*nn.Tensor, error) {
	batch, width, err := x.Dims2()
	if err != nil {
		return nil, err
	}

	y := nn.NewTensor(batch, width*width)
	for b := 0; b < batch; b++ {
		row := x.Data[b*width : (b+1)*width]
		out := y.Data[b*width*width : (b+1)*width*width]
		for i, xi := range row {
			for j, xj := range row {
				out[i*width+j] = xj - xi
			}
		}
	}
	return y, nil
}

// Constants returns the configuration the factor was built with.
func (f *GeometricFactorPairwise) Constants() PairwiseConstants {
	return f.consts
}

// Forward maps feats["box"] [B, BoxFeatSize] to scores [B, OutDim].
func (f *GeometricFactorPairwise) Forward(feats Features) (*nn.Tensor, error) {
	agg, err := f.fuse(feats)
	if err != nil {
		return nil, err
	}
	scores, err := f.aggLinear.Forward(agg)
	return scores, errors.Wrap(err, "agg_linear")
}

// fuse builds the aggregation layer input:
// [box_feat_bn(box) ‖ pairwise_bn(pairwise_linear(diffs(box)))²]
func (f *GeometricFactorPairwise) fuse(feats Features) (*nn.Tensor, error) {
	box, err := feats.Box(f.consts.BoxFeatSize)
	if err != nil {
		return nil, err
	}

	pairwise, err := PairwiseDifferences(box)
	if err != nil {
		return nil, err
	}
	if pairwise, err = f.pairwiseLinear.Forward(pairwise); err != nil {
		return nil, errors.Wrap(err, "pairwise_linear")
	}
	if pairwise, err = f.pairwiseBN.Forward(pairwise); err != nil {
		return nil, errors.Wrap(err, "pairwise_bn")
	}

	boxFeat, err := f.boxFeatBN.Forward(box)
	if err != nil {
		return nil, errors.Wrap(err, "box_feat_bn")
	}

	return nn.Concat(boxFeat, nn.Square(pairwise))
}

// SetMode switches both batch normalization layers.
func (f *GeometricFactorPairwise) SetMode(m nn.Mode) {
	f.boxFeatBN.SetMode(m)
	f.pairwiseBN.SetMode(m)
}

// Params lists the parameters of the four sublayers.
func (f *GeometricFactorPairwise) Params() []nn.Param {
	var params []nn.Param
	params = append(params, f.boxFeatBN.Params("box_feat_bn.")...)
	params = append(params, f.pairwiseLinear.Params("pairwise_linear.")...)
	params = append(params, f.pairwiseBN.Params("pairwise_bn.")...)
	params = append(params, f.aggLinear.Params("agg_linear.")...)
	return params
}

// SaveWeights writes the parameters to a safetensors file.
func (f *GeometricFactorPairwise) SaveWeights(path string) error {
	return saveWeights(f.log, path, f.Params())
}

// LoadWeights replaces the parameters with those stored at path.
func (f *GeometricFactorPairwise) LoadWeights(path string) error {
	return loadWeights(f.log, path, f.Params())
}
