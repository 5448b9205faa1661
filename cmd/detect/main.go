// snn-detect: spiking SSD-Lite shape report and a forward pass on random input
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"snnssd/snn"
	"snnssd/tensor"
	"snnssd/utils"

	"golang.org/x/exp/rand"
)

var (
	configFile  = flag.String("config", "", "Detector config JSON file (overrides the model flags)")
	weightsFile = flag.String("weights", "", "Weights JSON file")
	classes     = flag.Int("classes", 5, "Number of classes")
	batch       = flag.Int("batch", 8, "Batch size")
	size        = flag.Int("size", 64, "Input height and width for the forward pass (0 skips it)")
	timeSteps   = flag.Int("T", 4, "Time steps")
	levels      = flag.Int("levels", 4, "Firing levels per neuron")
	seed        = flag.Uint64("seed", 0, "Seed for weights and input")
	stats       = flag.Bool("stats", false, "Print per-parameter statistics")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                  Spiking SSD-Lite Detection                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var timing utils.TimingStats
	total := time.Now()

	cfg := snn.DefaultDetectorConfig()
	if *configFile != "" {
		if err := utils.LoadModelConfig(*configFile, &cfg); err != nil {
			return err
		}
	} else {
		cfg.NumClasses = *classes
		cfg.Neuron.TimeSteps = *timeSteps
		cfg.Neuron.NumThresholds = *levels
		cfg.Seed = *seed
	}

	start := time.Now()
	det, err := snn.NewDetector(cfg)
	if err != nil {
		return err
	}
	if *weightsFile != "" {
		weights, err := utils.LoadWeights(*weightsFile)
		if err != nil {
			return err
		}
		if err := snn.LoadStateDict(det, weights); err != nil {
			return err
		}
		logf("Loaded %d tensors from %s", len(weights.Params), *weightsFile)
	}
	timing.ModelInitTime = time.Since(start)

	fmt.Printf("Model: %s, %d parameters\n", det.Tag(), snn.NumParameters(det))
	for _, t := range det.Taps() {
		fmt.Printf("  tap %-12s layer %2d, %d channels\n", t.Name, t.Index, t.Channels)
	}
	fmt.Printf("  head channels %v\n", det.Schedule())

	ref := []int{cfg.TimeSteps(), *batch, snn.InputChannels, cfg.InputSize, cfg.InputSize}
	if err := printShapes("Reference", det, ref); err != nil {
		return err
	}

	if *stats {
		for _, s := range snn.ParamStats(det.Parameters("")) {
			fmt.Printf("  %-40s %8d  mean %+.4f  std %.4f\n", s.Name, s.Count, s.Mean, s.Std)
		}
	}

	if *size > 0 {
		rc := utils.RunConfig{Batch: *batch, InputSize: *size, TimeSteps: cfg.TimeSteps(), Seed: *seed, HEMode: utils.HEModeNone}
		if err := utils.ValidateRunConfig(&rc); err != nil {
			return err
		}
		start = time.Now()
		x := randomInput(rc)
		timing.InputTime = time.Since(start)

		start = time.Now()
		preds, err := det.Predict(x)
		if err != nil {
			return err
		}
		timing.ForwardPassTime = time.Since(start)
		timing.Samples = rc.Batch

		fmt.Printf("\nForward pass on %v:\n", x.Shape)
		for i, p := range preds {
			fmt.Printf("  scale %d: loc %v conf %v\n", i, p.Loc.Shape, p.Conf.Shape)
		}
	}

	timing.TotalTime = time.Since(total)
	utils.PrintTimingStats(&timing, 1)
	return nil
}

func printShapes(title string, det *snn.Detector, in []int) error {
	locs, confs, err := det.OutputShapes(in)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s input %v:\n", title, in)
	for i := range locs {
		fmt.Printf("  scale %d: loc %v conf %v\n", i, locs[i], confs[i])
	}
	return nil
}

func randomInput(rc utils.RunConfig) *tensor.Tensor {
	rng := rand.New(rand.NewSource(rc.Seed + 1))
	x := tensor.New(rc.TimeSteps, rc.Batch, snn.InputChannels, rc.InputSize, rc.InputSize)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

func logf(format string, args ...interface{}) {
	if *verbose {
		fmt.Fprintf(os.Stderr, "[detect] "+format+"\n", args...)
	}
}
