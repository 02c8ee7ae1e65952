package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries all process configuration, loaded from the environment with
// sane defaults. A .env file in the working directory is honored if present.
type Config struct {
	Host           string
	Port           string
	RequestTimeout time.Duration
	MaxUploadSize  int64

	// Model artifacts
	ModelsDir           string
	SkinModelFile       string
	DischargeModelFile  string
	PatternModelFile    string
	HemoglobinModelFile string

	// Region detector
	DetectorURL           string
	DetectorTimeout       time.Duration
	DetectionConfidence   float64
	DetectorMinArea       int
	DetectorMaxArea       int
	DetectorExpandRatio   float64
	DetectorMergeDistance int

	// Quality gate
	BlurThreshold     float64
	QualityThreshold  float64
	MinImageSize      int
	MaxImageDimension int

	// Vision-language model
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	VLMTimeout    time.Duration
	PromptFile    string

	// Ensemble heuristics (empirical defaults, tunable)
	EnsembleVLMBase     float64
	EnsembleVLMDetailed float64
	EnsembleFloor       float64
	VLMDetailLength     int
}

// ServerAddress joins host and port for http.Server.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(strings.TrimSpace(c.Host), strings.TrimSpace(c.Port))
}

// LoadFromEnv builds a Config from environment variables, loading .env first
// when one exists.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "8080"),
		RequestTimeout: parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		MaxUploadSize:  parseIntOrDefault("MAX_UPLOAD_SIZE", 10*1024*1024),

		ModelsDir:           getEnvOrDefault("MODELS_DIR", "models"),
		SkinModelFile:       getEnvOrDefault("SKIN_MODEL_FILE", "skin_head.json"),
		DischargeModelFile:  getEnvOrDefault("DISCHARGE_MODEL_FILE", "discharge_head.json"),
		PatternModelFile:    getEnvOrDefault("PATTERN_MODEL_FILE", "pattern_head.json"),
		HemoglobinModelFile: getEnvOrDefault("HEMOGLOBIN_MODEL_FILE", "hemoglobin_head.json"),

		DetectorURL:           os.Getenv("DETECTOR_URL"),
		DetectorTimeout:       parseDurationOrDefault("DETECTOR_TIMEOUT", 15*time.Second),
		DetectionConfidence:   parseFloatOrDefault("DETECTION_CONFIDENCE", 0.5),
		DetectorMinArea:       int(parseIntOrDefault("DETECTOR_MIN_AREA", 50)),
		DetectorMaxArea:       int(parseIntOrDefault("DETECTOR_MAX_AREA", 5000)),
		DetectorExpandRatio:   parseFloatOrDefault("DETECTOR_EXPAND_RATIO", 0.4),
		DetectorMergeDistance: int(parseIntOrDefault("DETECTOR_MERGE_DISTANCE", 30)),

		BlurThreshold:     parseFloatOrDefault("BLUR_THRESHOLD", 100.0),
		QualityThreshold:  parseFloatOrDefault("QUALITY_THRESHOLD", 0.7),
		MinImageSize:      int(parseIntOrDefault("MIN_IMAGE_SIZE", 100)),
		MaxImageDimension: int(parseIntOrDefault("MAX_IMAGE_DIMENSION", 2048)),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		VLMTimeout:    parseDurationOrDefault("VLM_TIMEOUT", 20*time.Second),
		PromptFile:    os.Getenv("PROMPT_FILE"),

		EnsembleVLMBase:     parseFloatOrDefault("ENSEMBLE_VLM_BASE", 0.8),
		EnsembleVLMDetailed: parseFloatOrDefault("ENSEMBLE_VLM_DETAILED", 0.9),
		EnsembleFloor:       parseFloatOrDefault("ENSEMBLE_FLOOR", 0.3),
		VLMDetailLength:     int(parseIntOrDefault("VLM_DETAIL_LENGTH", 100)),
	}

	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_SIZE must be > 0 (got %d)", cfg.MaxUploadSize)
	}
	if cfg.RequestTimeout <= 0 || cfg.DetectorTimeout <= 0 || cfg.VLMTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be > 0 (got request=%s, detector=%s, vlm=%s)",
			cfg.RequestTimeout, cfg.DetectorTimeout, cfg.VLMTimeout)
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return nil, fmt.Errorf("QUALITY_THRESHOLD must be in [0,1] (got %g)", cfg.QualityThreshold)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
