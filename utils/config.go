package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RunConfig holds the settings shared by the inference binaries.
type RunConfig struct {
	Batch     int
	InputSize int
	TimeSteps int
	Seed      uint64
	HEMode    string
}

// HE modes understood by the binaries.
const (
	HEModeNone  = "none"
	HEModeSplit = "split"
)

// ValidateRunConfig validates inference configuration
func ValidateRunConfig(config *RunConfig) error {
	if config.Batch <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if config.InputSize <= 0 {
		return fmt.Errorf("input size must be positive")
	}
	if config.TimeSteps <= 0 {
		return fmt.Errorf("time steps must be positive")
	}
	if config.HEMode != HEModeNone && config.HEMode != HEModeSplit {
		return fmt.Errorf("HE mode must be %q or %q, got %q", HEModeNone, HEModeSplit, config.HEMode)
	}
	return nil
}

// ParseStages parses a stage table such as "6,32,1,1 6,64,1,1" into rows of
// (expansion, channels, repeats, stride).
func ParseStages(s string) ([][4]int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty stage table")
	}
	rows := make([][4]int, len(fields))
	for i, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("stage %d: want t,c,n,s, got %q", i+1, f)
		}
		for j, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i+1, err)
			}
			rows[i][j] = n
		}
	}
	return rows, nil
}

// SaveModelConfig writes any model configuration struct as indented JSON.
func SaveModelConfig(path string, cfg any) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModelConfig reads JSON from path into cfg. Fields absent from the
// file keep the values cfg already holds, so callers pass defaults in.
func LoadModelConfig(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}
