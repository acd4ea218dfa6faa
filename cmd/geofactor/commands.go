package main

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/openfluke/geofactor/factor"
	"github.com/openfluke/geofactor/internal/config"
	"github.com/openfluke/geofactor/nn"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

const (
	weightsFlag = "weights"
	seedFlag    = "seed"
	inputFlag   = "input"
	formatFlag  = "format"
)

// Commands and flags are built per app so repeated runs do not share parse state.

func newDimsCmd() *cli.Command {
	return &cli.Command{
		Name:   "dims",
		Usage:  "Print the layer dimensions derived from the configuration",
		Action: cmdDims,
	}
}

func newInitCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Build the configured factor with random parameters and save it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     weightsFlag,
				Usage:    "Path to the safetensors weights file",
				Required: true,
			},
			&cli.Int64Flag{
				Name:  seedFlag,
				Usage: "Seed for parameter initialisation (optional, default: time based)",
			},
		},
		Action: cmdInit,
	}
}

func newScoreCmd() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Score box features with a saved factor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     weightsFlag,
				Usage:    "Path to the safetensors weights file",
				Required: true,
			},
			&cli.StringFlag{
				Name:     inputFlag,
				Usage:    "JSON or YAML file holding {box: [[...], ...]}",
				Required: true,
			},
			&cli.StringFlag{
				Name:  formatFlag,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Action: cmdScore,
	}
}

// dimsReport is printed by the dims command
type dimsReport struct {
	Variant          string             `yaml:"variant"`
	BoxFeatureFactor *nn.MLPConfig      `yaml:"box_feature_factor,omitempty"`
	PairwiseLinear   *factor.LinearDims `yaml:"pairwise_linear,omitempty"`
	AggLinear        *factor.LinearDims `yaml:"agg_linear,omitempty"`
}

func cmdDims(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	report := dimsReport{Variant: cfg.Factor.Variant}
	if cfg.Factor.Variant == config.VariantGeometric {
		mlp := cfg.Factor.MLPConfig()
		report.BoxFeatureFactor = &mlp
	} else {
		c := cfg.Factor.PairwiseConstants()
		pairwise, agg := factor.PairwiseLayerDims(c), factor.AggLayerDims(c)
		report.PairwiseLinear, report.AggLinear = &pairwise, &agg
	}
	return printResult(cmd.Root().Writer, report, formatYAML)
}

func cmdInit(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)

	seed := cmd.Int64(seedFlag)
	if !cmd.IsSet(seedFlag) {
		seed = time.Now().UnixNano()
	}

	m, rec, err := buildModel(cfg, factor.WithRand(rand.New(rand.NewSource(seed))))
	if err != nil {
		return err
	}

	weightsPath := cmd.String(weightsFlag)
	if err := m.SaveWeights(weightsPath); err != nil {
		return err
	}
	if err := factor.SaveConstants(recordPath(weightsPath), rec); err != nil {
		return err
	}

	zap.L().Info("initialised factor",
		zap.String("variant", rec.Variant),
		zap.String("weights", weightsPath),
		zap.Int64("seed", seed),
		zap.Int("params", len(m.Params())))
	return nil
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	weightsPath := cmd.String(weightsFlag)
	if err := applyRecord(cfg, weightsPath); err != nil {
		return err
	}

	format := strings.ToLower(cmd.String(formatFlag))
	if format != formatJSON && format != formatYAML {
		return errors.Errorf("unsupported format %q", format)
	}

	m, _, err := buildModel(cfg, factor.WithMode(nn.Inference))
	if err != nil {
		return err
	}
	if err := m.LoadWeights(weightsPath); err != nil {
		return err
	}

	feats, err := readFeatures(cmd.String(inputFlag))
	if err != nil {
		return err
	}
	scores, err := m.Forward(feats)
	if err != nil {
		return err
	}
	zap.L().Debug("scored boxes", zap.Ints("shape", scores.Shape))

	return printResult(cmd.Root().Writer, map[string][][]float32{"scores": scores.Rows()}, format)
}

// readFeatures loads {name: [[...], ...]} from a JSON or YAML file, picking
// the decoder from the file extension.
func readFeatures(path string) (factor.Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read features")
	}

	var raw map[string][][]float32
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse features %s", path)
	}

	feats := make(factor.Features, len(raw))
	for name, rows := range raw {
		t, err := nn.NewMatrix(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "feature %q", name)
		}
		feats[name] = t
	}
	return feats, nil
}

func printResult(w io.Writer, v interface{}, format string) error {
	if w == nil {
		w = os.Stdout
	}
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "encode json")
	}
}
