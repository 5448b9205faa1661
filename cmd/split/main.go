// snn-split: split inference with the classifier's last layer evaluated
// under CKKS by a server that never sees the features or the logits
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"snnssd/core/ckkswrapper"
	"snnssd/snn"
	"snnssd/split"
	"snnssd/tensor"
	"snnssd/utils"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

var (
	logN        = flag.Int("logN", ckkswrapper.DefaultLogN, "Ring dimension log2")
	weightsFile = flag.String("weights", "", "Weights JSON file")
	classes     = flag.Int("classes", 10, "Number of classes")
	batch       = flag.Int("batch", 4, "Batch size")
	size        = flag.Int("size", 32, "Input height and width")
	width       = flag.Float64("width", 0.5, "Width multiplier")
	timeSteps   = flag.Int("T", 4, "Time steps")
	levels      = flag.Int("levels", 4, "Firing levels per neuron")
	seed        = flag.Uint64("seed", 0, "Seed for weights and input")
	verbose     = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	logf("Split inference starting (logN=%d)", *logN)
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var stats utils.TimingStats
	total := time.Now()

	rc := utils.RunConfig{Batch: *batch, InputSize: *size, TimeSteps: *timeSteps, Seed: *seed, HEMode: utils.HEModeSplit}
	if err := utils.ValidateRunConfig(&rc); err != nil {
		return err
	}

	cfg := snn.DefaultConfig()
	cfg.NumClasses = *classes
	cfg.InputSize = *size
	cfg.WidthMult = *width
	cfg.Neuron.TimeSteps = *timeSteps
	cfg.Neuron.NumThresholds = *levels
	cfg.Seed = *seed

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
	}
	stats.ModelInitTime = time.Since(start)
	logf("Model ready: %s", model.Tag())

	start = time.Now()
	he, err := ckkswrapper.NewHeContextWithLogN(*logN)
	if err != nil {
		return err
	}
	kit := he.GenServerKit(split.HeadRotations(model.Head.InDim(), model.Head.OutDim()))
	head, err := split.NewEncryptedHead(kit, model.Head)
	if err != nil {
		return err
	}
	stats.HEInitTime = time.Since(start)
	logf("HE context ready (%d slots)", he.Params.MaxSlots())

	start = time.Now()
	x := randomInput(rc)
	stats.InputTime = time.Since(start)

	start = time.Now()
	feats, err := model.Features(x)
	if err != nil {
		return err
	}
	stats.ForwardPassTime = time.Since(start)
	stats.Samples = rc.Batch
	logf("Features %v", feats.Shape)

	toServer, fromClient := io.Pipe()
	toClient, fromServer := io.Pipe()
	server := split.NewServer(head, split.NewProtocol(toServer, fromServer))
	client := split.NewClient(he, split.NewProtocol(toClient, fromClient))

	done := make(chan error, 1)
	go func() { done <- server.Serve() }()

	logits, err := client.Infer(0, feats)
	if err != nil {
		return err
	}
	if err := client.Close(); err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	stats.EncryptionTime = client.EncryptTime
	stats.DecryptionTime = client.DecryptTime
	stats.ServerTime = server.Busy

	plain, err := model.Head.Forward(feats)
	if err != nil {
		return err
	}
	fmt.Printf("Encrypted logits %v, max deviation from plaintext %.2e\n", logits.Shape, floats.Distance(logits.Data, plain.Data, math.Inf(1)))
	for b := 0; b < logits.Shape[0]; b++ {
		row := logits.Data[b*cfg.NumClasses : (b+1)*cfg.NumClasses]
		fmt.Printf("  sample %d: class %d\n", b, floats.MaxIdx(row))
	}

	stats.TotalTime = time.Since(total)
	utils.PrintTimingStats(&stats, 1)
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
		fmt.Fprintf(os.Stderr, "[split] "+format+"\n", args...)
	}
}
