package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/luna-health/triage-go/internal/errors"
	"github.com/luna-health/triage-go/pkg/models"
)

func writeCheckpoint(t *testing.T, dir, name string, ckpt *Checkpoint) {
	t.Helper()
	data, err := json.Marshal(ckpt)
	if err != nil {
		t.Fatalf("marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}
}

func testRegistryConfig(dir string) RegistryConfig {
	return RegistryConfig{
		ModelsDir:           dir,
		SkinModelFile:       "skin_head.json",
		DischargeModelFile:  "discharge_head.json",
		PatternModelFile:    "pattern_head.json",
		HemoglobinModelFile: "hemoglobin_head.json",
	}
}

func TestRegistryLoadsClassifierOnce(t *testing.T) {
	dir := t.TempDir()
	writeCheckpoint(t, dir, "skin_head.json", classificationCheckpoint(
		[]string{"acne", "normal"}, []float64{0, 1},
	))

	r := NewRegistry(testRegistryConfig(dir))

	first, err := r.Classifier(models.AnalysisSkin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Classifier(models.AnalysisSkin)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if first != second {
		t.Error("expected the cached classifier instance on the second call")
	}
}

func TestRegistryMissingArtifact(t *testing.T) {
	r := NewRegistry(testRegistryConfig(t.TempDir()))

	_, err := r.Classifier(models.AnalysisSkin)
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeResourceUnavailable) {
		t.Errorf("expected resource-unavailable error, got %v", err)
	}
}

func TestRegistryRejectsTaskMismatch(t *testing.T) {
	dir := t.TempDir()
	// A classification head stored where the regressor is expected.
	writeCheckpoint(t, dir, "hemoglobin_head.json", classificationCheckpoint(
		[]string{"a", "b"}, []float64{0, 0},
	))

	r := NewRegistry(testRegistryConfig(dir))
	if _, err := r.HemoglobinRegressor(); err == nil {
		t.Fatal("expected error loading a classification head as regressor")
	}
}

func TestRegistryLoadsRegressor(t *testing.T) {
	dir := t.TempDir()
	scale, shift := 1.0, 0.0
	writeCheckpoint(t, dir, "hemoglobin_head.json", &Checkpoint{
		Task:        TaskRegression,
		FeatureDim:  FeatureDim,
		Weights:     [][]float64{make([]float64, FeatureDim)},
		Bias:        []float64{130},
		ScaleFactor: &scale,
		ShiftFactor: &shift,
	})

	r := NewRegistry(testRegistryConfig(dir))
	reg, err := r.HemoglobinRegressor()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotScale, gotShift := reg.Calibration()
	if gotScale != 1.0 || gotShift != 0.0 {
		t.Errorf("calibration = (%f, %f), want (1, 0)", gotScale, gotShift)
	}
}

func TestRegistryStatus(t *testing.T) {
	dir := t.TempDir()
	writeCheckpoint(t, dir, "skin_head.json", classificationCheckpoint(
		[]string{"a", "b"}, []float64{0, 0},
	))

	r := NewRegistry(testRegistryConfig(dir))
	status := r.Status()

	if status.Ready {
		t.Error("status should not be ready with three artifacts missing")
	}
	if len(status.Artifacts) != 4 {
		t.Fatalf("got %d artifact entries, want 4", len(status.Artifacts))
	}

	byName := make(map[string]models.ArtifactStatus)
	for _, a := range status.Artifacts {
		byName[a.Name] = a
	}
	if !byName["skin"].Available {
		t.Error("skin artifact should report available")
	}
	if byName["hemoglobin"].Available {
		t.Error("hemoglobin artifact should report unavailable")
	}
}

func TestRegistryStatusAllPresent(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"skin_head.json", "discharge_head.json", "pattern_head.json"} {
		writeCheckpoint(t, dir, name, classificationCheckpoint([]string{"a", "b"}, []float64{0, 0}))
	}
	writeCheckpoint(t, dir, "hemoglobin_head.json", &Checkpoint{
		Task:       TaskRegression,
		FeatureDim: FeatureDim,
		Weights:    [][]float64{make([]float64, FeatureDim)},
		Bias:       []float64{0},
	})

	r := NewRegistry(testRegistryConfig(dir))
	if status := r.Status(); !status.Ready {
		t.Errorf("expected ready status with all artifacts present: %+v", status)
	}
}

func TestLoadCheckpointValidation(t *testing.T) {
	dir := t.TempDir()

	// Feature dimension mismatch must be rejected at load time.
	bad := &Checkpoint{
		Task:       TaskClassification,
		FeatureDim: 7,
		Labels:     []string{"a"},
		Weights:    [][]float64{make([]float64, 7)},
		Bias:       []float64{0},
	}
	writeCheckpoint(t, dir, "bad.json", bad)

	if _, err := LoadCheckpoint(filepath.Join(dir, "bad.json")); err == nil {
		t.Error("expected error for mismatched feature dimension")
	}
}
