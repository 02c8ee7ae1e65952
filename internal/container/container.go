package container

import (
	"fmt"
	"net/http"

	"github.com/luna-health/triage-go/internal/analysis"
	"github.com/luna-health/triage-go/internal/config"
	"github.com/luna-health/triage-go/internal/detect"
	"github.com/luna-health/triage-go/internal/ensemble"
	"github.com/luna-health/triage-go/internal/imaging"
	"github.com/luna-health/triage-go/internal/knowledge"
	"github.com/luna-health/triage-go/internal/logger"
	"github.com/luna-health/triage-go/internal/model"
	"github.com/luna-health/triage-go/internal/observer"
	"github.com/luna-health/triage-go/internal/transport"
	"github.com/luna-health/triage-go/internal/vlm"
	"github.com/luna-health/triage-go/pkg/models"
)

// registryProvider narrows the registry's concrete model heads to the
// interfaces the pipeline consumes.
type registryProvider struct {
	registry *model.Registry
}

func (p registryProvider) Classifier(t models.AnalysisType) (analysis.ImageClassifier, error) {
	c, err := p.registry.Classifier(t)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p registryProvider) HemoglobinRegressor() (analysis.ValueRegressor, error) {
	r, err := p.registry.HemoglobinRegressor()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Container holds all application dependencies
type Container struct {
	config       *config.Config
	registry     *model.Registry
	orchestrator *analysis.Orchestrator
	pool         *analysis.WorkerPool
	handler      http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry := model.NewRegistry(model.RegistryConfig{
		ModelsDir:           cfg.ModelsDir,
		SkinModelFile:       cfg.SkinModelFile,
		DischargeModelFile:  cfg.DischargeModelFile,
		PatternModelFile:    cfg.PatternModelFile,
		HemoglobinModelFile: cfg.HemoglobinModelFile,
	})

	contourCfg := detect.DefaultContourConfig()
	if cfg.DetectorMinArea > 0 {
		contourCfg.MinArea = cfg.DetectorMinArea
	}
	if cfg.DetectorMaxArea > 0 {
		contourCfg.MaxArea = cfg.DetectorMaxArea
	}
	if cfg.DetectorExpandRatio > 0 {
		contourCfg.ExpandRatio = cfg.DetectorExpandRatio
	}
	if cfg.DetectorMergeDistance > 0 {
		contourCfg.MergeDistance = float64(cfg.DetectorMergeDistance)
	}

	detectors := detect.NewFactory(detect.FactoryConfig{
		DetectorURL:         cfg.DetectorURL,
		DetectorTimeout:     cfg.DetectorTimeout,
		ConfidenceThreshold: cfg.DetectionConfidence,
		Contour:             contourCfg,
	})

	prompts, err := vlm.LoadPrompts(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	analyzer := vlm.NewAnalyzer(vlm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.VLMTimeout,
	}, prompts)

	scorer := ensemble.NewScorer(ensemble.Config{
		VLMBase:      cfg.EnsembleVLMBase,
		VLMDetailed:  cfg.EnsembleVLMDetailed,
		Floor:        cfg.EnsembleFloor,
		DetailLength: cfg.VLMDetailLength,
	})

	pool := analysis.NewWorkerPool(0)
	pool.Start()

	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(observer.NewMetricsObserver())

	orchestrator := analysis.NewOrchestrator(analysis.Deps{
		Validator:    imaging.NewValidator(cfg.MaxUploadSize),
		Preprocessor: imaging.NewPreprocessor(),
		Quality: imaging.NewQualityAssessorWithConfig(imaging.QualityConfig{
			BlurThreshold:     cfg.BlurThreshold,
			QualityThreshold:  cfg.QualityThreshold,
			MinImageSize:      cfg.MinImageSize,
			MaxImageDimension: cfg.MaxImageDimension,
			MinAspectRatio:    0.75,
			MaxAspectRatio:    1.33,
		}),
		Detectors: detectors,
		Registry:  registryProvider{registry},
		Analyzer:  analyzer,
		Scorer:    scorer,
		Augmenter: knowledge.NewKeywordAugmenter(),
		Pool:      pool,
		Events:    events,
	})

	// The remote nail detector is a model resource too; surface its
	// reachability on the readiness endpoint when one is configured.
	var detectorProbe transport.DetectorHealth
	if cfg.DetectorURL != "" {
		det, err := detectors.Create(detect.StrategyLearned, models.RegionNail)
		if err != nil {
			return nil, fmt.Errorf("failed to build detector probe: %w", err)
		}
		if probe, ok := det.(transport.DetectorHealth); ok {
			detectorProbe = probe
		}
	}

	handler := transport.NewHandler(orchestrator, registry, detectorProbe, cfg)

	return &Container{
		config:       cfg,
		registry:     registry,
		orchestrator: orchestrator,
		pool:         pool,
		handler:      handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close releases pooled resources.
func (c *Container) Close() {
	c.pool.Close()
}
