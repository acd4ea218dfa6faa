package main

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/openfluke/geofactor/factor"
	"github.com/openfluke/geofactor/gpu"
	"github.com/openfluke/geofactor/internal/config"
	"github.com/openfluke/geofactor/nn"
)

// model is what both factor variants provide
type model interface {
	factor.Scorer
	factor.Persistable
}

// modelRecord is the configuration stored next to a weights file
type modelRecord struct {
	Variant          string                    `json:"variant"`
	Geometric        *factor.Constants         `json:"geometric,omitempty"`
	BoxFeatureFactor *nn.MLPConfig             `json:"box_feature_factor,omitempty"`
	Pairwise         *factor.PairwiseConstants `json:"pairwise,omitempty"`
}

func recordPath(weightsPath string) string {
	return weightsPath + ".json"
}

func newBackend(device string) (nn.Backend, error) {
	if device != config.DeviceGPU {
		return nn.DefaultBackend, nil
	}
	b, err := gpu.NewBackend()
	if err != nil {
		return nil, errors.Wrap(err, "gpu backend")
	}
	return b, nil
}

func buildModel(cfg *config.AppConfig, opts ...factor.Option) (model, modelRecord, error) {
	backend, err := newBackend(cfg.Device)
	if err != nil {
		return nil, modelRecord{}, err
	}
	opts = append(opts, factor.WithBackend(backend), factor.WithLogger(zap.L()))

	rec := modelRecord{Variant: cfg.Factor.Variant}
	switch cfg.Factor.Variant {
	case config.VariantGeometric:
		c := cfg.Factor.Constants()
		mlp := cfg.Factor.MLPConfig()
		rec.Geometric, rec.BoxFeatureFactor = &c, &mlp
		m, err := factor.NewFromMLPConfig(c, mlp, opts...)
		if err != nil {
			return nil, rec, err
		}
		return m, rec, nil
	default:
		c := cfg.Factor.PairwiseConstants()
		rec.Pairwise = &c
		m, err := factor.NewPairwise(c, opts...)
		if err != nil {
			return nil, rec, err
		}
		return m, rec, nil
	}
}

// applyRecord overrides cfg's factor settings with the record saved next to
// weightsPath, if there is one.
func applyRecord(cfg *config.AppConfig, weightsPath string) error {
	path := recordPath(weightsPath)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var rec modelRecord
	if err := factor.LoadConstants(path, &rec); err != nil {
		return err
	}
	switch {
	case rec.Variant == config.VariantPairwise && rec.Pairwise != nil:
		cfg.Factor.Variant = rec.Variant
		cfg.Factor.BoxFeatSize = rec.Pairwise.BoxFeatSize
		cfg.Factor.OutDim = rec.Pairwise.OutDim
		cfg.Factor.PairwiseOutDim = rec.Pairwise.PairwiseOutDim
	case rec.Variant == config.VariantGeometric && rec.Geometric != nil:
		cfg.Factor.Variant = rec.Variant
		cfg.Factor.BoxFeatSize = rec.Geometric.BoxFeatSize
		cfg.Factor.OutDim = rec.Geometric.OutDim
		if mlp := rec.BoxFeatureFactor; mlp != nil {
			cfg.Factor.LayerUnits = mlp.LayerUnits
			cfg.Factor.Activation = mlp.Activation
			cfg.Factor.UseBN = mlp.UseBN
		}
	default:
		return errors.Errorf("%s: unrecognised model record for variant %q", path, rec.Variant)
	}
	zap.L().Debug("applied model record", zap.String("path", path), zap.String("variant", rec.Variant))
	return cfg.Validate()
}
