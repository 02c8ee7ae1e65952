// Package analysis runs the triage pipeline: validate, preprocess, quality
// gate, detect regions where needed, run the models, and assemble the final
// result.
package analysis

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/luna-health/triage-go/internal/detect"
	"github.com/luna-health/triage-go/internal/ensemble"
	apperrors "github.com/luna-health/triage-go/internal/errors"
	"github.com/luna-health/triage-go/internal/imaging"
	"github.com/luna-health/triage-go/internal/knowledge"
	"github.com/luna-health/triage-go/internal/logger"
	"github.com/luna-health/triage-go/internal/observer"
	"github.com/luna-health/triage-go/internal/vlm"
	"github.com/luna-health/triage-go/pkg/models"
)

// hemoglobin risk tiers in g/L
const (
	hemoglobinHighRiskBelow     = 120.0
	hemoglobinModerateRiskBelow = 140.0
)

const knowledgeSnippets = 3

// ImageClassifier produces ranked class predictions for an image.
type ImageClassifier interface {
	Classify(img image.Image) models.ClassificationResult
}

// ValueRegressor predicts a scalar value for an image crop.
type ValueRegressor interface {
	Predict(img image.Image) float64
}

// ModelProvider hands out the model heads the pipeline needs. The registry
// satisfies this; tests substitute stubs.
type ModelProvider interface {
	Classifier(t models.AnalysisType) (ImageClassifier, error)
	HemoglobinRegressor() (ValueRegressor, error)
}

// DetectorProvider selects a region detector per analysis type.
type DetectorProvider interface {
	ForAnalysisType(t models.AnalysisType) (detect.RegionDetector, error)
}

// Orchestrator wires the pipeline stages together. It is safe for
// concurrent use; every Analyze call is independent.
type Orchestrator struct {
	validator    *imaging.Validator
	preprocessor *imaging.Preprocessor
	quality      *imaging.QualityAssessor
	detectors    DetectorProvider
	registry     ModelProvider
	analyzer     vlm.Analyzer
	scorer       *ensemble.Scorer
	augmenter    knowledge.Augmenter
	pool         *WorkerPool
	events       observer.Subject
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Validator    *imaging.Validator
	Preprocessor *imaging.Preprocessor
	Quality      *imaging.QualityAssessor
	Detectors    DetectorProvider
	Registry     ModelProvider
	Analyzer     vlm.Analyzer
	Scorer       *ensemble.Scorer
	Augmenter    knowledge.Augmenter
	Pool         *WorkerPool
	Events       observer.Subject
}

// NewOrchestrator assembles the pipeline from its dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		validator:    deps.Validator,
		preprocessor: deps.Preprocessor,
		quality:      deps.Quality,
		detectors:    deps.Detectors,
		registry:     deps.Registry,
		analyzer:     deps.Analyzer,
		scorer:       deps.Scorer,
		augmenter:    deps.Augmenter,
		pool:         deps.Pool,
		events:       deps.Events,
	}
}

// Analyze runs one image through the pipeline for the requested analysis
// type. The image is held in memory only; nothing is persisted.
func (o *Orchestrator) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	start := time.Now()
	id := uuid.New().String()

	o.publish(ctx, observer.PipelineEvent{
		EventType:    observer.AnalysisStarted,
		AnalysisID:   id,
		AnalysisType: req.AnalysisType,
		Timestamp:    start,
	})

	result, err := o.run(ctx, id, req)
	elapsed := time.Since(start)

	if err != nil {
		o.publish(ctx, observer.PipelineEvent{
			EventType:      observer.AnalysisFailed,
			AnalysisID:     id,
			AnalysisType:   req.AnalysisType,
			Timestamp:      time.Now(),
			ProcessingTime: elapsed,
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	result.ProcessingTimeSec = elapsed.Seconds()
	o.publish(ctx, observer.PipelineEvent{
		EventType:      observer.AnalysisCompleted,
		AnalysisID:     id,
		AnalysisType:   req.AnalysisType,
		Timestamp:      time.Now(),
		ProcessingTime: elapsed,
		Success:        true,
		Metadata: map[string]interface{}{
			"confidence_score": result.ConfidenceScore,
		},
	})
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, id string, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if !req.AnalysisType.Valid() {
		return nil, apperrors.NewInputError(fmt.Sprintf("unsupported analysis type %q", req.AnalysisType), nil)
	}
	if err := imaging.ValidateAge(req.UserAge); err != nil {
		return nil, err
	}

	img, err := o.validator.Validate(req.ImageBytes, req.MimeType)
	if err != nil {
		return nil, err
	}

	processed := o.preprocessor.Preprocess(img)
	quality := o.quality.Assess(processed)

	snippets := o.lookupKnowledge(ctx, req)

	userCtx := vlm.UserContext{
		Age:        req.UserAge,
		Symptoms:   req.Symptoms,
		CyclePhase: req.CyclePhase,
		Knowledge:  snippets,
	}

	var analysis models.ImageAnalysis
	var vlmOutcome vlm.Outcome
	var confidence float64

	switch req.AnalysisType {
	case models.AnalysisSkin, models.AnalysisDischarge:
		analysis, vlmOutcome, confidence, err = o.runClassification(ctx, id, req.AnalysisType, processed, userCtx)
	case models.AnalysisHemoglobin:
		analysis, vlmOutcome, confidence, err = o.runHemoglobin(ctx, id, processed, userCtx)
	case models.AnalysisPattern:
		analysis, vlmOutcome, confidence, err = o.runPattern(ctx, id, processed, userCtx)
	}
	if err != nil {
		return nil, err
	}

	assessment := vlmOutcome.Assessment
	if assessment == nil {
		assessment = &models.HealthAssessment{
			ConditionOverview: "Automated visual analysis was unavailable for this image.",
			Severity:          "moderate",
			SelfCare:          []string{"Monitor the area and note any changes"},
			SeekCareIf:        []string{"Symptoms persist or worsen"},
			Fallback:          true,
			Error:             vlmOutcome.Err,
		}
	}
	if len(vlmOutcome.Concerns) > 0 {
		assessment.Concerns = vlmOutcome.Concerns
	}

	return &models.AnalysisResult{
		ID:                id,
		AnalysisType:      req.AnalysisType,
		ImageAnalysis:     analysis,
		HealthAssessment:  assessment,
		Quality:           quality,
		ConfidenceScore:   confidence,
		Recommendations:   buildRecommendations(&quality, &analysis, req.AnalysisType),
		Disclaimers:       Disclaimers(),
		KnowledgeSnippets: snippets,
		Timestamp:         time.Now().UTC(),
	}, nil
}

// runClassification handles the whole-image types: the direct classifier and
// the vision-language model run concurrently, and either may fail without
// aborting the pipeline.
func (o *Orchestrator) runClassification(ctx context.Context, id string, t models.AnalysisType, img image.Image, userCtx vlm.UserContext) (models.ImageAnalysis, vlm.Outcome, float64, error) {
	var (
		classification *models.ClassificationResult
		vlmOutcome     vlm.Outcome
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		classifier, err := o.registry.Classifier(t)
		if err != nil {
			o.degraded(gctx, id, t, "classifier", err)
			return nil
		}
		res := classifier.Classify(img)
		classification = &res
		return nil
	})
	g.Go(func() error {
		vlmOutcome = o.analyzer.Analyze(gctx, img, t, userCtx)
		if !vlmOutcome.Success {
			o.degraded(gctx, id, t, "vlm", fmt.Errorf("%s", vlmOutcome.Err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, err
	}
	if err := ctx.Err(); err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewTimeoutError("analysis cancelled", err)
	}

	analysis := models.ImageAnalysis{Classification: classification}
	if t == models.AnalysisDischarge {
		color := imaging.AnalyzeColor(img)
		analysis.Color = &color
	}

	return analysis, vlmOutcome, o.scorer.Score(classification, vlmOutcome), nil
}

// runHemoglobin detects nail regions, regresses hemoglobin per region
// concurrently, and averages. Zero detected regions is a hard failure for
// this type; the estimate would be meaningless without nails in frame.
func (o *Orchestrator) runHemoglobin(ctx context.Context, id string, img image.Image, userCtx vlm.UserContext) (models.ImageAnalysis, vlm.Outcome, float64, error) {
	detector, err := o.detectors.ForAnalysisType(models.AnalysisHemoglobin)
	if err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewResourceUnavailableError("nail detector unavailable", err)
	}

	detections, raw, err := detector.DetectRegions(ctx, img)
	if err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewResourceUnavailableError("nail detection failed", err)
	}
	o.publish(ctx, observer.PipelineEvent{
		EventType:    observer.RegionsDetected,
		AnalysisID:   id,
		AnalysisType: models.AnalysisHemoglobin,
		Timestamp:    time.Now(),
		Metadata: map[string]interface{}{
			"detector":   detector.Name(),
			"raw_count":  raw,
			"kept_count": len(detections),
		},
	})
	if len(detections) == 0 {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewNoRegionsError("no nail regions found in image")
	}

	regressor, err := o.registry.HemoglobinRegressor()
	if err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, err
	}

	var vlmOutcome vlm.Outcome
	var vlmWg sync.WaitGroup
	vlmWg.Add(1)
	go func() {
		defer vlmWg.Done()
		vlmOutcome = o.analyzer.Analyze(ctx, img, models.AnalysisHemoglobin, userCtx)
		if !vlmOutcome.Success {
			o.degraded(ctx, id, models.AnalysisHemoglobin, "vlm", fmt.Errorf("%s", vlmOutcome.Err))
		}
	}()

	perRegion := make([]models.RegionRegression, len(detections))
	jobs := make([]func(), len(detections))
	for i, det := range detections {
		i, det := i, det
		jobs[i] = func() {
			crop := detect.CropRegion(img, det.Box)
			perRegion[i] = models.RegionRegression{
				RegionID:   i,
				Value:      regressor.Predict(crop),
				Confidence: det.Confidence,
				Box:        det.Box,
			}
		}
	}
	o.pool.RunAll(jobs)
	vlmWg.Wait()

	if err := ctx.Err(); err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewTimeoutError("analysis cancelled", err)
	}

	var sum, confSum float64
	for _, r := range perRegion {
		sum += r.Value
		confSum += r.Confidence
	}
	average := sum / float64(len(perRegion))

	aggregate := &models.AggregateRegression{
		AverageValue: average,
		NumRegions:   len(perRegion),
		PerRegion:    perRegion,
	}
	interpretation := interpretHemoglobin(average)

	analysis := models.ImageAnalysis{
		Hemoglobin:     aggregate,
		Interpretation: &interpretation,
		AnemiaRisk:     anemiaRisk(average),
		Detections:     detections,
	}

	meanConf := confSum / float64(len(perRegion))
	confidence := o.scorer.ScoreValues([]float64{meanConf}, vlmOutcome)
	return analysis, vlmOutcome, confidence, nil
}

// runPattern finds droplet candidates with the classical detector and
// classifies each crop. Zero candidates is a valid outcome here; the summary
// just reports zero patterns.
func (o *Orchestrator) runPattern(ctx context.Context, id string, img image.Image, userCtx vlm.UserContext) (models.ImageAnalysis, vlm.Outcome, float64, error) {
	detector, err := o.detectors.ForAnalysisType(models.AnalysisPattern)
	if err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewInternalError("pattern detector unavailable", err)
	}

	detections, raw, err := detector.DetectRegions(ctx, img)
	if err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewInternalError("pattern detection failed", err)
	}
	o.publish(ctx, observer.PipelineEvent{
		EventType:    observer.RegionsDetected,
		AnalysisID:   id,
		AnalysisType: models.AnalysisPattern,
		Timestamp:    time.Now(),
		Metadata: map[string]interface{}{
			"detector":   detector.Name(),
			"raw_count":  raw,
			"kept_count": len(detections),
		},
	})

	var vlmOutcome vlm.Outcome
	var vlmWg sync.WaitGroup
	vlmWg.Add(1)
	go func() {
		defer vlmWg.Done()
		vlmOutcome = o.analyzer.Analyze(ctx, img, models.AnalysisPattern, userCtx)
		if !vlmOutcome.Success {
			o.degraded(ctx, id, models.AnalysisPattern, "vlm", fmt.Errorf("%s", vlmOutcome.Err))
		}
	}()

	summary := models.PatternSummary{
		TotalDetected: len(detections),
		Counts:        make(map[string]int),
	}
	var topConfidences []float64

	classifier, cerr := o.registry.Classifier(models.AnalysisPattern)
	if cerr != nil {
		o.degraded(ctx, id, models.AnalysisPattern, "classifier", cerr)
	} else if len(detections) > 0 {
		results := make([]models.ClassificationResult, len(detections))
		jobs := make([]func(), len(detections))
		for i, det := range detections {
			i, det := i, det
			jobs[i] = func() {
				results[i] = classifier.Classify(detect.CropRegion(img, det.Box))
			}
		}
		o.pool.RunAll(jobs)

		for _, res := range results {
			if len(res.Predictions) == 0 {
				continue
			}
			top := res.Predictions[0]
			topConfidences = append(topConfidences, top.Confidence)
			// Low-confidence crops go into an explicit uncertain bucket
			// rather than skewing the class counts.
			if top.Confidence < 0.5 {
				summary.Uncertain++
				summary.Counts["uncertain"]++
				continue
			}
			summary.Counts[top.Label]++
			switch {
			case strings.Contains(top.Label, "circular"), strings.Contains(top.Label, "bipolar"):
				summary.CircularPatterns++
			case strings.Contains(top.Label, "cross"), strings.Contains(top.Label, "radial"):
				summary.CrossPatterns++
			}
		}
	}

	vlmWg.Wait()
	if err := ctx.Err(); err != nil {
		return models.ImageAnalysis{}, vlm.Outcome{}, 0, apperrors.NewTimeoutError("analysis cancelled", err)
	}

	analysis := models.ImageAnalysis{
		Patterns:   &summary,
		Detections: detections,
	}

	var contributions []float64
	if len(topConfidences) > 0 {
		var s float64
		for _, c := range topConfidences {
			s += c
		}
		contributions = append(contributions, s/float64(len(topConfidences)))
	}
	return analysis, vlmOutcome, o.scorer.ScoreValues(contributions, vlmOutcome), nil
}

// lookupKnowledge retrieves reference snippets for the prompt. Lookup
// failures are logged and ignored; knowledge is an enhancement, not a
// dependency.
func (o *Orchestrator) lookupKnowledge(ctx context.Context, req models.AnalysisRequest) []string {
	if o.augmenter == nil {
		return nil
	}
	query := string(req.AnalysisType)
	if len(req.Symptoms) > 0 {
		query += " " + strings.Join(req.Symptoms, " ")
	}
	snippets, err := o.augmenter.Lookup(ctx, query, knowledgeSnippets)
	if err != nil {
		logger.WithError(err).Warn("knowledge lookup failed")
		return nil
	}
	return snippets
}

func interpretHemoglobin(value float64) models.HemoglobinInterpretation {
	switch {
	case value < hemoglobinHighRiskBelow:
		return models.HemoglobinInterpretation{
			Status:         "low",
			Interpretation: "The estimated hemoglobin level is below the typical range, which may indicate anemia.",
			Color:          "red",
		}
	case value < hemoglobinModerateRiskBelow:
		return models.HemoglobinInterpretation{
			Status:         "borderline",
			Interpretation: "The estimated hemoglobin level is slightly below the optimal range.",
			Color:          "yellow",
		}
	default:
		return models.HemoglobinInterpretation{
			Status:         "normal",
			Interpretation: "The estimated hemoglobin level appears to be within the typical range.",
			Color:          "green",
		}
	}
}

func anemiaRisk(value float64) string {
	switch {
	case value < hemoglobinHighRiskBelow:
		return "high"
	case value < hemoglobinModerateRiskBelow:
		return "moderate"
	default:
		return "low"
	}
}

func (o *Orchestrator) degraded(ctx context.Context, id string, t models.AnalysisType, component string, err error) {
	o.publish(ctx, observer.PipelineEvent{
		EventType:    observer.ModelDegraded,
		AnalysisID:   id,
		AnalysisType: t,
		Timestamp:    time.Now(),
		ErrorMessage: err.Error(),
		Metadata: map[string]interface{}{
			"component": component,
		},
	})
}

func (o *Orchestrator) publish(ctx context.Context, event observer.PipelineEvent) {
	if o.events != nil {
		o.events.NotifyObservers(ctx, event)
	}
}
