package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, VariantPairwise, cfg.Factor.Variant)
	assert.Equal(t, 24, cfg.Factor.BoxFeatSize)
	assert.Equal(t, 117, cfg.Factor.OutDim)
	assert.Equal(t, 2000, cfg.Factor.PairwiseOutDim)
	assert.Empty(t, cfg.Factor.LayerUnits)
	assert.True(t, cfg.Factor.UseBN)
	assert.Equal(t, DeviceCPU, cfg.Device)
	assert.False(t, cfg.Debug)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeFile(t, `
factor:
  variant: geometric
  boxfeatsize: 12
  layerunits: [32, 16]
debug: true
`)
	t.Setenv("GEOFACTOR_FACTOR_OUTDIM", "50")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, VariantGeometric, cfg.Factor.Variant)
	assert.Equal(t, 12, cfg.Factor.BoxFeatSize)
	assert.Equal(t, 50, cfg.Factor.OutDim)
	assert.Equal(t, []int{32, 16}, cfg.Factor.LayerUnits)
	assert.True(t, cfg.Debug)

	mlp := cfg.Factor.MLPConfig()
	assert.Equal(t, 12, mlp.InDim)
	assert.Equal(t, 50, mlp.OutDim)
	assert.Equal(t, []int{32, 16}, mlp.LayerUnits)
	assert.Equal(t, "Identity", mlp.OutActivation)
}

func TestLoadEnvList(t *testing.T) {
	t.Setenv("GEOFACTOR_FACTOR_LAYERUNITS", "8,4")
	t.Setenv("GEOFACTOR_FACTOR_VARIANT", "geometric")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []int{8, 4}, cfg.Factor.LayerUnits)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"variant":    "factor:\n  variant: triangular\n",
		"device":     "device: tpu\n",
		"dims":       "factor:\n  outdim: 0\n",
		"pairwise":   "factor:\n  pairwiseoutdim: -3\n",
		"activation": "factor:\n  variant: geometric\n  activation: swish\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPairwiseConstants(t *testing.T) {
	f := FactorConfig{BoxFeatSize: 3, OutDim: 2, PairwiseOutDim: 7}
	c := f.PairwiseConstants()
	assert.Equal(t, 3, c.BoxFeatSize)
	assert.Equal(t, 2, c.OutDim)
	assert.Equal(t, 7, c.PairwiseOutDim)
}
