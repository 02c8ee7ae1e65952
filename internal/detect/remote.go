package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/luna-health/triage-go/pkg/models"
)

// RemoteConfig holds the learned-detector client configuration.
type RemoteConfig struct {
	BaseURL             string
	Timeout             time.Duration
	ConfidenceThreshold float64
	ForegroundClass     int
	Label               models.RegionLabel
}

// DefaultRemoteConfig returns the client defaults for the nail detector.
func DefaultRemoteConfig(baseURL string) RemoteConfig {
	return RemoteConfig{
		BaseURL:             baseURL,
		Timeout:             15 * time.Second,
		ConfidenceThreshold: 0.5,
		ForegroundClass:     1,
		Label:               models.RegionNail,
	}
}

// RemoteDetector is the learned strategy: a two-stage object detector served
// by a model server over HTTP. The client uploads the image and filters the
// raw outputs by confidence and foreground class.
type RemoteDetector struct {
	cfg    RemoteConfig
	client *http.Client
}

// NewRemoteDetector creates the learned-detector client with a transport
// sized for single-image round trips.
func NewRemoteDetector(cfg RemoteConfig) *RemoteDetector {
	transport := &http.Transport{
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &RemoteDetector{
		cfg: cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

func (d *RemoteDetector) Name() string { return "learned" }

// rawDetection mirrors the model server's wire format: corner-coordinate
// boxes with a score and an integer class label.
type rawDetection struct {
	Box   [4]float64 `json:"box"` // x1, y1, x2, y2
	Score float64    `json:"score"`
	Label int        `json:"label"`
}

// DetectRegions uploads the image and converts the server's raw outputs into
// clamped, confidence-filtered detections. Sub-threshold and background
// detections are discarded entirely rather than returned with low scores.
func (d *RemoteDetector) DetectRegions(ctx context.Context, img image.Image) ([]models.Detection, int, error) {
	raw, err := d.infer(ctx, img)
	if err != nil {
		return nil, 0, err
	}

	bounds := img.Bounds()
	detections := make([]models.Detection, 0, len(raw))
	for _, r := range raw {
		if r.Score < d.cfg.ConfidenceThreshold || r.Label != d.cfg.ForegroundClass {
			continue
		}
		box := models.BoundingBox{
			X:      int(r.Box[0]),
			Y:      int(r.Box[1]),
			Width:  int(r.Box[2] - r.Box[0]),
			Height: int(r.Box[3] - r.Box[1]),
		}
		clamped, ok := clampBox(box, bounds)
		if !ok {
			continue
		}
		detections = append(detections, models.Detection{
			Box:        clamped,
			Confidence: r.Score,
			Label:      d.cfg.Label,
		})
	}
	return detections, len(raw), nil
}

func (d *RemoteDetector) infer(ctx context.Context, img image.Image) ([]rawDetection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detector responded with status %d", resp.StatusCode)
	}

	var result struct {
		Detections []rawDetection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	return result.Detections, nil
}

// CheckHealth probes the model server, used by the models-ready status query.
func (d *RemoteDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
