package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/luna-health/triage-go/internal/analysis"
	"github.com/luna-health/triage-go/internal/config"
	apperrors "github.com/luna-health/triage-go/internal/errors"
	"github.com/luna-health/triage-go/internal/logger"
	"github.com/luna-health/triage-go/internal/model"
	"github.com/luna-health/triage-go/pkg/models"
)

// detectorProbeTimeout bounds the remote detector health probe so a hung
// model server cannot stall the readiness endpoint.
const detectorProbeTimeout = 3 * time.Second

// DetectorHealth reports reachability of the remote region-detection model
// server. A nil value is valid when no remote detector is configured.
type DetectorHealth interface {
	CheckHealth(ctx context.Context) error
	Name() string
}

// NewHandler builds the HTTP surface: image analysis, health, and model
// readiness.
func NewHandler(orchestrator *analysis.Orchestrator, registry *model.Registry, detector DetectorHealth, cfg *config.Config) http.Handler {
	r := gin.Default()

	r.Use(
		requestSizeLimiter(cfg.MaxUploadSize),
		errorHandler(),
	)

	r.GET("/health", healthCheck)
	r.GET("/models/status", modelsStatus(registry, detector))
	r.POST("/analyze", analyzeImage(orchestrator, cfg))

	return r
}

func analyzeImage(orchestrator *analysis.Orchestrator, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.RequestTimeout)
		defer cancel()

		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing image analysis request")

		req, err := parseAnalysisRequest(c)
		if err != nil {
			respondError(c, apperrors.GetStatusCode(err), "invalid request", err)
			return
		}

		result, err := orchestrator.Analyze(ctx, *req)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = apperrors.NewTimeoutError("analysis timed out", err)
			}
			respondError(c, apperrors.GetStatusCode(err), "analysis failed", err)
			return
		}

		logger.WithFields(logrus.Fields{
			"analysis_id":        result.ID,
			"analysis_type":      result.AnalysisType,
			"confidence_score":   result.ConfidenceScore,
			"processing_time_ms": int64(result.ProcessingTimeSec * 1000),
		}).Info("Image analysis completed successfully")

		c.JSON(http.StatusOK, result)
	}
}

// parseAnalysisRequest reads the multipart form: the image file plus the
// analysis type and optional user context fields.
func parseAnalysisRequest(c *gin.Context) (*models.AnalysisRequest, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, apperrors.NewInputError("missing image file upload", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.NewInputError("failed to read image upload", err)
	}

	analysisType := models.AnalysisType(c.PostForm("analysis_type"))
	if !analysisType.Valid() {
		return nil, apperrors.NewInputError(fmt.Sprintf("unsupported analysis type %q", analysisType), nil)
	}

	req := &models.AnalysisRequest{
		ImageBytes:   data,
		MimeType:     header.Header.Get("Content-Type"),
		AnalysisType: analysisType,
		CyclePhase:   c.PostForm("cycle_phase"),
	}

	if ageStr := c.PostForm("user_age"); ageStr != "" {
		age, err := strconv.Atoi(ageStr)
		if err != nil {
			return nil, apperrors.NewInputError("user_age must be an integer", err)
		}
		req.UserAge = &age
	}

	// Symptoms arrive as a JSON array string, matching the mobile client.
	if symptomsStr := c.PostForm("symptoms"); symptomsStr != "" {
		if err := json.Unmarshal([]byte(symptomsStr), &req.Symptoms); err != nil {
			return nil, apperrors.NewInputError("symptoms must be a JSON string array", err)
		}
	}

	return req, nil
}

func modelsStatus(registry *model.Registry, detector DetectorHealth) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := registry.Status()

		if detector != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), detectorProbeTimeout)
			err := detector.CheckHealth(ctx)
			cancel()

			ds := &models.DetectorStatus{Name: detector.Name(), Healthy: err == nil}
			if err != nil {
				ds.Error = err.Error()
				status.Ready = false
			}
			status.Detector = ds
		}

		c.JSON(http.StatusOK, status)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err), "request processing failed", err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	}).Error("Request failed")

	// Internal causes stay in the logs; clients only see the message.
	detail := fmt.Sprintf("%s: %v", message, err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeInternal {
		detail = appErr.Message
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: detail,
	})
}
