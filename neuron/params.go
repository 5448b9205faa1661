// Package neuron implements the quantized integrate-and-fire activation used
// between every conv+norm stage of the spiking network.
package neuron

import (
	"errors"
	"fmt"
)

// ErrInvalidParams reports a neuron configuration that cannot be simulated.
var ErrInvalidParams = errors.New("neuron: invalid parameters")

// ResetMode selects what happens to the membrane after it fires.
type ResetMode int

const (
	// ResetSoft subtracts the emitted amount from the membrane.
	ResetSoft ResetMode = iota
	// ResetHard sets the membrane back to VInit whenever it fires.
	ResetHard
)

func (r ResetMode) String() string {
	switch r {
	case ResetSoft:
		return "soft"
	case ResetHard:
		return "hard"
	}
	return fmt.Sprintf("ResetMode(%d)", int(r))
}

// ParseResetMode maps "soft" / "hard" to a ResetMode.
func ParseResetMode(s string) (ResetMode, error) {
	switch s {
	case "soft", "":
		return ResetSoft, nil
	case "hard":
		return ResetHard, nil
	}
	return ResetSoft, fmt.Errorf("%w: unknown reset mode %q", ErrInvalidParams, s)
}

// Params are the fixed-at-construction settings of a MultiThresholdLIF.
type Params struct {
	// Threshold is the base firing threshold; the largest per-step output.
	Threshold float64 `json:"threshold"`

	// TimeSteps is the number of simulation ticks T the input carries.
	TimeSteps int `json:"time_steps"`

	// Leakage in [0,1): fraction of membrane lost per step. 0 is a pure integrator.
	Leakage float64 `json:"leakage"`

	// NumThresholds is the number of firing levels above zero.
	NumThresholds int `json:"num_thresholds"`

	Reset ResetMode `json:"reset"`

	// VInit is the membrane value at the start of every call.
	VInit float64 `json:"v_init"`

	// Alpha is the surrogate gradient steepness.
	Alpha float64 `json:"alpha"`

	// Surrogate names the surrogate gradient family, see Surrogates.
	Surrogate string `json:"surrogate"`
}

// Defaults sets the values used throughout the reference network.
func (p *Params) Defaults() {
	p.Threshold = 1.0
	p.TimeSteps = 4
	p.Leakage = 0
	p.NumThresholds = 2
	p.Reset = ResetSoft
	p.VInit = 0
	p.Alpha = 1.0
	p.Surrogate = SurrogateSTE
}

// Quantum is the membrane amount per output level.
func (p *Params) Quantum() float64 {
	return p.Threshold / float64(p.NumThresholds)
}

func (p *Params) Validate() error {
	if p.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %g", ErrInvalidParams, p.Threshold)
	}
	if p.TimeSteps <= 0 {
		return fmt.Errorf("%w: time steps must be positive, got %d", ErrInvalidParams, p.TimeSteps)
	}
	if p.NumThresholds <= 0 {
		return fmt.Errorf("%w: num thresholds must be positive, got %d", ErrInvalidParams, p.NumThresholds)
	}
	if p.Leakage < 0 || p.Leakage >= 1 {
		return fmt.Errorf("%w: leakage must be in [0,1), got %g", ErrInvalidParams, p.Leakage)
	}
	if p.Reset != ResetSoft && p.Reset != ResetHard {
		return fmt.Errorf("%w: reset mode %v", ErrInvalidParams, p.Reset)
	}
	if p.Alpha <= 0 {
		return fmt.Errorf("%w: alpha must be positive, got %g", ErrInvalidParams, p.Alpha)
	}
	if _, ok := Surrogates[p.Surrogate]; !ok {
		return fmt.Errorf("%w: unsupported surrogate %q", ErrInvalidParams, p.Surrogate)
	}
	return nil
}

func (r ResetMode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ResetMode) UnmarshalText(b []byte) error {
	m, err := ParseResetMode(string(b))
	if err != nil {
		return err
	}
	*r = m
	return nil
}
