package utils

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats holds timing information for the phases of an inference run.
type TimingStats struct {
	TotalTime       time.Duration
	ModelInitTime   time.Duration
	HEInitTime      time.Duration
	InputTime       time.Duration
	ForwardPassTime time.Duration
	EncryptionTime  time.Duration
	ServerTime      time.Duration
	DecryptionTime  time.Duration

	// Samples is the number of inputs per batch; zero skips the
	// per-sample line.
	Samples int
}

func percent(part, whole time.Duration) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// PrintTimingStats prints detailed timing statistics for runs batches.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, runs int) {
	if !Verbose {
		return
	}
	if runs <= 0 {
		runs = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Batches: %d\n", runs)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  Model initialization: %v (%.1f%%)\n", stats.ModelInitTime, percent(stats.ModelInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Input generation: %v (%.1f%%)\n", stats.InputTime, percent(stats.InputTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Forward pass: %v (%.1f%%)\n", stats.ForwardPassTime, percent(stats.ForwardPassTime, stats.TotalTime))
	if stats.HEInitTime > 0 {
		fmt.Fprintf(Output, "  HE initialization: %v (%.1f%%)\n", stats.HEInitTime, percent(stats.HEInitTime, stats.TotalTime))
		fmt.Fprintf(Output, "  Encryption: %v (%.1f%%)\n", stats.EncryptionTime, percent(stats.EncryptionTime, stats.TotalTime))
		fmt.Fprintf(Output, "  Server head: %v (%.1f%%)\n", stats.ServerTime, percent(stats.ServerTime, stats.TotalTime))
		fmt.Fprintf(Output, "  Decryption: %v (%.1f%%)\n", stats.DecryptionTime, percent(stats.DecryptionTime, stats.TotalTime))
	}
	fmt.Fprintln(Output, "\nPerformance metrics:")
	fmt.Fprintf(Output, "  Average forward pass time: %v\n", stats.ForwardPassTime/time.Duration(runs))
	if stats.Samples > 0 {
		perSample := DurationUS(stats.ForwardPassTime) / float64(runs*stats.Samples)
		fmt.Fprintf(Output, "  Forward pass per sample: %.1fµs\n", perSample)
	}
	if stats.HEInitTime > 0 {
		fmt.Fprintf(Output, "  Average encrypted head time: %v\n", (stats.EncryptionTime+stats.ServerTime+stats.DecryptionTime)/time.Duration(runs))
	}
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
