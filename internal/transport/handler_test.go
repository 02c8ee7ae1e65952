package transport

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luna-health/triage-go/internal/analysis"
	"github.com/luna-health/triage-go/internal/config"
	"github.com/luna-health/triage-go/internal/ensemble"
	apperrors "github.com/luna-health/triage-go/internal/errors"
	"github.com/luna-health/triage-go/internal/imaging"
	"github.com/luna-health/triage-go/internal/model"
	"github.com/luna-health/triage-go/internal/vlm"
	"github.com/luna-health/triage-go/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedClassifier struct{}

func (fixedClassifier) Classify(img image.Image) models.ClassificationResult {
	preds := []models.Prediction{
		{Label: "normal", Confidence: 0.8},
		{Label: "acne", Confidence: 0.2},
	}
	return models.ClassificationResult{Predictions: preds, Top: preds[0]}
}

type fixedModels struct{}

func (fixedModels) Classifier(t models.AnalysisType) (analysis.ImageClassifier, error) {
	return fixedClassifier{}, nil
}

func (fixedModels) HemoglobinRegressor() (analysis.ValueRegressor, error) {
	return nil, nil
}

type fixedVLM struct{}

func (fixedVLM) Analyze(ctx context.Context, img image.Image, t models.AnalysisType, userCtx vlm.UserContext) vlm.Outcome {
	return vlm.Outcome{
		Success: true,
		RawText: "ok",
		Assessment: &models.HealthAssessment{
			ConditionOverview: "Nothing unusual.",
			Severity:          "low",
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Host:           "127.0.0.1",
		Port:           "8080",
		RequestTimeout: 10 * time.Second,
		MaxUploadSize:  10 << 20,
	}
}

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	return testHandlerWithDetector(t, nil)
}

func testHandlerWithDetector(t *testing.T, detector DetectorHealth) http.Handler {
	t.Helper()

	pool := analysis.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Close)

	orch := analysis.NewOrchestrator(analysis.Deps{
		Validator:    imaging.NewValidator(10 << 20),
		Preprocessor: imaging.NewPreprocessor(),
		Quality:      imaging.NewQualityAssessor(),
		Registry:     fixedModels{},
		Analyzer:     fixedVLM{},
		Scorer:       ensemble.NewScorer(ensemble.DefaultConfig()),
		Pool:         pool,
	})
	registry := model.NewRegistry(model.RegistryConfig{
		ModelsDir:           t.TempDir(),
		SkinModelFile:       "skin_head.json",
		DischargeModelFile:  "discharge_head.json",
		PatternModelFile:    "pattern_head.json",
		HemoglobinModelFile: "hemoglobin_head.json",
	})
	return NewHandler(orch, registry, detector, testConfig())
}

type stubDetectorHealth struct {
	err error
}

func (s stubDetectorHealth) CheckHealth(ctx context.Context) error { return s.err }

func (s stubDetectorHealth) Name() string { return "remote-nail" }

func multipartImageRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, color.RGBA{130, 110, 100, 255})
		}
	}
	var imgBuf bytes.Buffer
	if err := png.Encode(&imgBuf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	partHeader := make(map[string][]string)
	partHeader["Content-Disposition"] = []string{`form-data; name="file"; filename="photo.png"`}
	partHeader["Content-Type"] = []string{"image/png"}
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(imgBuf.Bytes())

	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	handler := testHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "available" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestModelsStatusEndpoint(t *testing.T) {
	handler := testHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status models.ModelsStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Ready {
		t.Error("empty models dir must report not ready")
	}
	if len(status.Artifacts) != 4 {
		t.Errorf("got %d artifacts, want 4", len(status.Artifacts))
	}
	if status.Detector != nil {
		t.Errorf("no detector configured, but status reports %+v", status.Detector)
	}
}

func TestModelsStatusReportsDetectorHealthy(t *testing.T) {
	handler := testHandlerWithDetector(t, stubDetectorHealth{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/status", nil))

	var status models.ModelsStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Detector == nil {
		t.Fatal("detector status missing from response")
	}
	if !status.Detector.Healthy {
		t.Errorf("healthy detector reported unhealthy: %+v", status.Detector)
	}
	if status.Detector.Name != "remote-nail" {
		t.Errorf("detector name = %q", status.Detector.Name)
	}
}

func TestModelsStatusReportsDetectorDown(t *testing.T) {
	handler := testHandlerWithDetector(t, stubDetectorHealth{err: stderrors.New("connection refused")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models/status", nil))

	var status models.ModelsStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Detector == nil {
		t.Fatal("detector status missing from response")
	}
	if status.Detector.Healthy {
		t.Error("unreachable detector reported healthy")
	}
	if status.Detector.Error == "" {
		t.Error("detector error message missing")
	}
	if status.Ready {
		t.Error("unreachable detector must hold models_ready false")
	}
}

func TestInternalErrorHidesCauseFromClient(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/analyze", nil)

	cause := stderrors.New("dial tcp 10.0.0.8:5432: connection refused")
	appErr := apperrors.NewInternalError("analysis failed", cause)
	respondError(c, http.StatusInternalServerError, "request processing failed", appErr)

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Message != "analysis failed" {
		t.Errorf("message = %q, want the bare internal message", resp.Message)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("internal cause leaked to client: %s", rec.Body.String())
	}
}

func TestInputErrorKeepsDetailForClient(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/analyze", nil)

	appErr := apperrors.NewInputError("user_age must be an integer", stderrors.New("strconv.Atoi: parsing \"abc\": invalid syntax"))
	respondError(c, http.StatusBadRequest, "invalid request", appErr)

	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(resp.Message, "user_age must be an integer") {
		t.Errorf("input error detail missing: %q", resp.Message)
	}
}

func TestAnalyzeEndpointHappyPath(t *testing.T) {
	handler := testHandler(t)

	req := multipartImageRequest(t, map[string]string{
		"analysis_type": "skin",
		"user_age":      "27",
		"symptoms":      `["redness","itching"]`,
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.AnalysisType != models.AnalysisSkin {
		t.Errorf("analysis type = %q", result.AnalysisType)
	}
	if result.ImageAnalysis.Classification == nil {
		t.Error("classification missing from response")
	}
	if len(result.Disclaimers) != 3 {
		t.Errorf("got %d disclaimers, want 3", len(result.Disclaimers))
	}
}

func TestAnalyzeEndpointMissingFile(t *testing.T) {
	handler := testHandler(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("analysis_type", "skin")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeEndpointUnknownType(t *testing.T) {
	handler := testHandler(t)

	req := multipartImageRequest(t, map[string]string{"analysis_type": "xray"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyzeEndpointBadSymptomsJSON(t *testing.T) {
	handler := testHandler(t)

	req := multipartImageRequest(t, map[string]string{
		"analysis_type": "skin",
		"symptoms":      "not json",
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
