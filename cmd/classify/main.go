// snn-classify: spiking MobileNetV2 classification on a random input batch
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"snnssd/snn"
	"snnssd/tensor"
	"snnssd/utils"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

var (
	configFile  = flag.String("config", "", "Model config JSON file (overrides the model flags)")
	weightsFile = flag.String("weights", "", "Weights JSON file")
	saveWeights = flag.String("save-weights", "", "Write the model weights to this file")
	saveConfig  = flag.String("save-config", "", "Write the model config to this file")
	batch       = flag.Int("batch", 8, "Batch size")
	size        = flag.Int("size", 32, "Input height and width")
	width       = flag.Float64("width", 0.5, "Width multiplier")
	classes     = flag.Int("classes", 10, "Number of classes")
	timeSteps   = flag.Int("T", 4, "Time steps")
	levels      = flag.Int("levels", 4, "Firing levels per neuron")
	stages      = flag.String("stages", "", "Stage table, e.g. \"6,32,1,1 6,64,1,1\"")
	seed        = flag.Uint64("seed", 0, "Seed for weights and input")
	topK        = flag.Int("topk", 3, "Top predictions to show")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              Spiking MobileNetV2 Classification              ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var stats utils.TimingStats
	total := time.Now()

	cfg, err := modelConfig()
	if err != nil {
		return err
	}
	runCfg := newRunConfig(cfg, *batch)
	if err := utils.ValidateRunConfig(&runCfg); err != nil {
		return err
	}

	start := time.Now()
	model, err := snn.NewClassifier(cfg)
	if err != nil {
		return err
	}
	if *weightsFile != "" {
		weights, err := utils.LoadWeights(*weightsFile)
		if err != nil {
			return err
		}
		if err := snn.LoadStateDict(model, weights); err != nil {
			return err
		}
		logf("Loaded %d tensors from %s", len(weights.Params), *weightsFile)
	}
	stats.ModelInitTime = time.Since(start)
	fmt.Printf("Model: %s, %d parameters\n", model.Tag(), snn.NumParameters(model))

	start = time.Now()
	x := randomInput(runCfg)
	stats.InputTime = time.Since(start)
	fmt.Printf("Input: %v\n", x.Shape)

	start = time.Now()
	logits, err := model.Forward(x)
	if err != nil {
		return err
	}
	stats.ForwardPassTime = time.Since(start)
	stats.Samples = runCfg.Batch
	fmt.Printf("Output: %v\n", logits.Shape)

	showResults(logits.Data[:logits.Shape[1]], *topK)

	if *saveWeights != "" {
		if err := utils.SaveWeights(*saveWeights, snn.StateDict(model, model.Tag())); err != nil {
			return err
		}
		logf("Weights written to %s", *saveWeights)
	}
	if *saveConfig != "" {
		if err := utils.SaveModelConfig(*saveConfig, cfg); err != nil {
			return err
		}
		logf("Config written to %s", *saveConfig)
	}

	stats.TotalTime = time.Since(total)
	utils.PrintTimingStats(&stats, 1)
	return nil
}

func modelConfig() (snn.Config, error) {
	cfg := snn.DefaultConfig()
	if *configFile != "" {
		err := utils.LoadModelConfig(*configFile, &cfg)
		return cfg, err
	}
	cfg.NumClasses = *classes
	cfg.InputSize = *size
	cfg.WidthMult = *width
	cfg.Neuron.TimeSteps = *timeSteps
	cfg.Neuron.NumThresholds = *levels
	cfg.Seed = *seed
	if *stages != "" {
		rows, err := utils.ParseStages(*stages)
		if err != nil {
			return cfg, err
		}
		cfg.Stages = cfg.Stages[:0]
		for _, r := range rows {
			cfg.Stages = append(cfg.Stages, snn.StageSetting{Expansion: r[0], Channels: r[1], Repeats: r[2], Stride: r[3]})
		}
	}
	return cfg, nil
}

// newRunConfig sizes the demo input from the model config so that a config
// file and the input it is run on always agree.
func newRunConfig(cfg snn.Config, batch int) utils.RunConfig {
	return utils.RunConfig{
		Batch:     batch,
		InputSize: cfg.InputSize,
		TimeSteps: cfg.TimeSteps(),
		Seed:      cfg.Seed,
		HEMode:    utils.HEModeNone,
	}
}

func randomInput(rc utils.RunConfig) *tensor.Tensor {
	rng := rand.New(rand.NewSource(rc.Seed + 1))
	x := tensor.New(rc.TimeSteps, rc.Batch, snn.InputChannels, rc.InputSize, rc.InputSize)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

func showResults(logits []float64, k int) {
	lse := floats.LogSumExp(logits)
	indices := topKIndices(logits, k)

	fmt.Printf("\nTop %d predictions (sample 0):\n", len(indices))
	for i, idx := range indices {
		fmt.Printf("  %d. Class %d: %.4f\n", i+1, idx, math.Exp(logits[idx]-lse))
	}
}

func topKIndices(vals []float64, k int) []int {
	if k > len(vals) {
		k = len(vals)
	}
	if k < 0 {
		k = 0
	}
	indices := make([]int, k)
	used := make(map[int]bool)
	for i := 0; i < k; i++ {
		maxIdx, maxVal := -1, math.Inf(-1)
		for j, v := range vals {
			if !used[j] && v > maxVal {
				maxVal, maxIdx = v, j
			}
		}
		indices[i] = maxIdx
		used[maxIdx] = true
	}
	return indices
}

func logf(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[classify] "+format+"\n", args...)
	}
}
