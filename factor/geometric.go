package factor

import (
	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openfluke/geofactor/nn"
)

// GeometricFactor scores relations from box features with a single
// feed-forward network.
type GeometricFactor struct {
	consts    Constants
	mlpConfig nn.MLPConfig

	boxFeatureFactor *nn.MLP

	log *zap.Logger
}

var (
	_ Scorer      = (*GeometricFactor)(nil)
	_ Persistable = (*GeometricFactor)(nil)
)

// New builds a GeometricFactor from c using BoxFeatureFactorConst(c).
func New(c Constants, opts ...Option) (*GeometricFactor, error) {
	return NewFromMLPConfig(c, BoxFeatureFactorConst(c), opts...)
}

// NewFromMLPConfig builds a GeometricFactor whose network is described by cfg,
// for example to add hidden layers. cfg must map BoxFeatSize to OutDim.
// cfg is deep-copied, so the caller may reuse it.
func NewFromMLPConfig(c Constants, cfg nn.MLPConfig, opts ...Option) (*GeometricFactor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if cfg.InDim != c.BoxFeatSize || cfg.OutDim != c.OutDim {
		return nil, errors.Errorf("mlp config maps %d -> %d, want %d -> %d",
			cfg.InDim, cfg.OutDim, c.BoxFeatSize, c.OutDim)
	}

	copied, err := copystructure.Copy(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "copy mlp config")
	}
	cfg = copied.(nn.MLPConfig)

	s := applyOptions(opts)
	mlp, err := nn.NewMLP(cfg, s.rng)
	if err != nil {
		return nil, errors.Wrap(err, "box feature factor")
	}
	if s.backend != nil {
		mlp.SetBackend(s.backend)
	}
	mlp.SetMode(s.mode)

	f := &GeometricFactor{
		consts:           c,
		mlpConfig:        cfg,
		boxFeatureFactor: mlp,
		log:              s.logger.Named("geometric_factor"),
	}
	f.log.Debug("built geometric factor",
		zap.Int("box_feat_size", c.BoxFeatSize),
		zap.Int("out_dim", c.OutDim),
		zap.Ints("layer_units", cfg.LayerUnits),
		zap.Stringer("mode", s.mode))
	return f, nil
}

// Constants returns the configuration the factor was built with.
func (f *GeometricFactor) Constants() Constants {
	return f.consts
}

// MLPConfig returns a copy of the network configuration.
func (f *GeometricFactor) MLPConfig() nn.MLPConfig {
	cfg := f.mlpConfig
	cfg.LayerUnits = append([]int{}, f.mlpConfig.LayerUnits...)
	return cfg
}

// Forward maps feats["box"] [B, BoxFeatSize] to scores [B, OutDim].
func (f *GeometricFactor) Forward(feats Features) (*nn.Tensor, error) {
	box, err := feats.Box(f.consts.BoxFeatSize)
	if err != nil {
		return nil, err
	}
	return f.boxFeatureFactor.Forward(box)
}

// SetMode switches the network's batch normalization layers.
func (f *GeometricFactor) SetMode(m nn.Mode) {
	f.boxFeatureFactor.SetMode(m)
}

// Params lists the parameters under "box_feature_factor.".
func (f *GeometricFactor) Params() []nn.Param {
	return f.boxFeatureFactor.Params("box_feature_factor.")
}

// SaveWeights writes the parameters to a safetensors file.
func (f *GeometricFactor) SaveWeights(path string) error {
	return saveWeights(f.log, path, f.Params())
}

// LoadWeights replaces the parameters with those stored at path.
func (f *GeometricFactor) LoadWeights(path string) error {
	return loadWeights(f.log, path, f.Params())
}

func saveWeights(log *zap.Logger, path string, params []nn.Param) error {
	if err := nn.SaveParams(path, params); err != nil {
		return errors.Wrapf(err, "save weights to %s", path)
	}
	log.Debug("saved weights", zap.String("path", path), zap.Int("params", len(params)))
	return nil
}

func loadWeights(log *zap.Logger, path string, params []nn.Param) error {
	if err := nn.LoadParams(path, params); err != nil {
		return errors.Wrapf(err, "load weights from %s", path)
	}
	log.Debug("loaded weights", zap.String("path", path), zap.Int("params", len(params)))
	return nil
}
