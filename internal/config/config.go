package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/openfluke/geofactor/factor"
	"github.com/openfluke/geofactor/nn"
)

// EnvPrefix is the prefix of environment variables overriding config keys.
// GEOFACTOR_FACTOR_OUTDIM=50 sets factor.outdim.
const EnvPrefix = "GEOFACTOR_"

const (
	VariantGeometric = "geometric"
	VariantPairwise  = "pairwise"

	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// FactorConfig defines which geometric factor to build and its dimensions
type FactorConfig struct {
	Variant        string `koanf:"variant"`
	BoxFeatSize    int    `koanf:"boxfeatsize"`
	OutDim         int    `koanf:"outdim"`
	PairwiseOutDim int    `koanf:"pairwiseoutdim"`
	// Hidden layers of the geometric variant's network
	LayerUnits []int  `koanf:"layerunits"`
	Activation string `koanf:"activation"`
	UseBN      bool   `koanf:"usebn"`
}

// AppConfig defines the tool configuration
type AppConfig struct {
	Factor FactorConfig `koanf:"factor"`
	Device string       `koanf:"device"`
	Debug  bool         `koanf:"debug"`
}

// Defaults mirrors the standard factor constants.
var Defaults = map[string]interface{}{
	"factor.variant":        VariantPairwise,
	"factor.boxfeatsize":    factor.DefaultBoxFeatSize,
	"factor.outdim":         factor.DefaultOutDim,
	"factor.pairwiseoutdim": factor.DefaultPairwiseOutDim,
	"factor.layerunits":     []int{},
	"factor.activation":     "ReLU",
	"factor.usebn":          true,
	"device":                DeviceCPU,
	"debug":                 false,
}

// Load layers defaults, the YAML file at filePath (skipped when empty) and
// GEOFACTOR_ environment variables, then validates the result.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", filePath)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(s string, v string) (string, interface{}) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the variant, device and dimensions.
func (c *AppConfig) Validate() error {
	switch c.Factor.Variant {
	case VariantGeometric:
		if err := c.Factor.Constants().Validate(); err != nil {
			return err
		}
		if _, err := nn.ParseActivation(c.Factor.Activation); err != nil {
			return err
		}
	case VariantPairwise:
		if err := c.Factor.PairwiseConstants().Validate(); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown factor variant %q (want %s or %s)", c.Factor.Variant, VariantGeometric, VariantPairwise)
	}

	switch c.Device {
	case DeviceCPU, DeviceGPU:
	default:
		return errors.Errorf("unknown device %q (want %s or %s)", c.Device, DeviceCPU, DeviceGPU)
	}
	return nil
}

// Constants returns the geometric variant's constants.
func (f FactorConfig) Constants() factor.Constants {
	return factor.Constants{BoxFeatSize: f.BoxFeatSize, OutDim: f.OutDim}
}

// PairwiseConstants returns the pairwise variant's constants.
func (f FactorConfig) PairwiseConstants() factor.PairwiseConstants {
	return factor.PairwiseConstants{Constants: f.Constants(), PairwiseOutDim: f.PairwiseOutDim}
}

// MLPConfig returns the geometric variant's network: the standard box
// feature factor with the configured hidden layers.
func (f FactorConfig) MLPConfig() nn.MLPConfig {
	cfg := factor.BoxFeatureFactorConst(f.Constants())
	cfg.LayerUnits = append([]int{}, f.LayerUnits...)
	cfg.Activation = f.Activation
	cfg.UseBN = f.UseBN
	return cfg
}
