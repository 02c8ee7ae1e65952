package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luna-health/triage-go/pkg/models"
)

func TestRemoteDetectorFiltersAndConverts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				// kept: foreground, above threshold
				{"box": []float64{10, 20, 60, 80}, "score": 0.9, "label": 1},
				// dropped: below threshold
				{"box": []float64{0, 0, 30, 30}, "score": 0.2, "label": 1},
				// dropped: background class
				{"box": []float64{5, 5, 50, 50}, "score": 0.95, "label": 0},
			},
		})
	}))
	defer server.Close()

	d := NewRemoteDetector(DefaultRemoteConfig(server.URL))
	detections, raw, err := d.DetectRegions(context.Background(), blackImage(100, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != 3 {
		t.Errorf("raw count = %d, want 3", raw)
	}
	if len(detections) != 1 {
		t.Fatalf("kept detections = %d, want 1", len(detections))
	}

	det := detections[0]
	want := models.BoundingBox{X: 10, Y: 20, Width: 50, Height: 60}
	if det.Box != want {
		t.Errorf("box = %+v, want %+v", det.Box, want)
	}
	if det.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", det.Confidence)
	}
	if det.Label != models.RegionNail {
		t.Errorf("label = %q, want %q", det.Label, models.RegionNail)
	}
}

func TestRemoteDetectorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewRemoteDetector(DefaultRemoteConfig(server.URL))
	if _, _, err := d.DetectRegions(context.Background(), blackImage(50, 50)); err == nil {
		t.Fatal("expected error from failing model server")
	}
}

func TestRemoteDetectorClampsOutOfBoundsBoxes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{"box": []float64{-10, -10, 120, 130}, "score": 0.8, "label": 1},
			},
		})
	}))
	defer server.Close()

	d := NewRemoteDetector(DefaultRemoteConfig(server.URL))
	detections, _, err := d.DetectRegions(context.Background(), blackImage(100, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected one clamped detection, got %d", len(detections))
	}
	b := detections[0].Box
	if b.X < 0 || b.Y < 0 || b.X+b.Width > 100 || b.Y+b.Height > 100 {
		t.Errorf("box %+v not clamped to 100x100", b)
	}
}
