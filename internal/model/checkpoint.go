package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Task distinguishes classification heads from regression heads.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

// Checkpoint is the persisted model artifact: the trainable head weights
// over the frozen feature backbone, the class-index-to-label mapping, and
// (for regression) the scale/shift calibration constants discovered during
// calibration. The backbone itself is deterministic and carries no weights.
type Checkpoint struct {
	Task       Task        `json:"task"`
	FeatureDim int         `json:"feature_dim"`
	Labels     []string    `json:"labels,omitempty"`
	Weights    [][]float64 `json:"weights"` // rows: outputs, cols: features
	Bias       []float64   `json:"bias"`

	// Regression calibration, applied at inference as raw*scale + shift.
	ScaleFactor *float64 `json:"scale_factor,omitempty"`
	ShiftFactor *float64 `json:"shift_factor,omitempty"`
}

// Default calibration used when a regression checkpoint predates the
// scale-corrected export format.
const (
	defaultScaleFactor = 5.5185
	defaultShiftFactor = 35.9938
)

// LoadCheckpoint reads and validates a checkpoint artifact from disk.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	if err := ckpt.validate(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint %s: %w", path, err)
	}
	return &ckpt, nil
}

func (c *Checkpoint) validate() error {
	if c.FeatureDim != FeatureDim {
		return fmt.Errorf("feature_dim %d does not match backbone dimension %d", c.FeatureDim, FeatureDim)
	}
	if len(c.Weights) == 0 {
		return fmt.Errorf("empty weight matrix")
	}
	for i, row := range c.Weights {
		if len(row) != c.FeatureDim {
			return fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), c.FeatureDim)
		}
	}
	if len(c.Bias) != len(c.Weights) {
		return fmt.Errorf("bias length %d does not match %d outputs", len(c.Bias), len(c.Weights))
	}
	switch c.Task {
	case TaskClassification:
		if len(c.Labels) != len(c.Weights) {
			return fmt.Errorf("%d labels for %d outputs", len(c.Labels), len(c.Weights))
		}
	case TaskRegression:
		if len(c.Weights) != 1 {
			return fmt.Errorf("regression checkpoint must have exactly one output, got %d", len(c.Weights))
		}
	default:
		return fmt.Errorf("unknown task %q", c.Task)
	}
	return nil
}

// Calibration returns the scale/shift constants, falling back to the
// defaults for checkpoints that do not carry them.
func (c *Checkpoint) Calibration() (scale, shift float64) {
	if c.ScaleFactor != nil && c.ShiftFactor != nil {
		return *c.ScaleFactor, *c.ShiftFactor
	}
	return defaultScaleFactor, defaultShiftFactor
}
