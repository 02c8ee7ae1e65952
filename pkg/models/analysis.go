package models

import "time"

// AnalysisType selects which triage pipeline an uploaded image runs through.
type AnalysisType string

const (
	AnalysisSkin       AnalysisType = "skin"
	AnalysisDischarge  AnalysisType = "discharge"
	AnalysisHemoglobin AnalysisType = "hemoglobin"
	AnalysisPattern    AnalysisType = "pattern"
)

// Valid reports whether t is one of the supported analysis types.
func (t AnalysisType) Valid() bool {
	switch t {
	case AnalysisSkin, AnalysisDischarge, AnalysisHemoglobin, AnalysisPattern:
		return true
	}
	return false
}

// RequiresRegions reports whether the analysis cannot proceed without at
// least one detected region of interest.
func (t AnalysisType) RequiresRegions() bool {
	return t == AnalysisHemoglobin
}

// QualityAssessment is the advisory quality verdict for a preprocessed image.
// It never blocks analysis; it feeds recommendations and ensemble confidence.
type QualityAssessment struct {
	BlurScore           float64 `json:"blur_score"`
	MeetsMinResolution  bool    `json:"meets_min_resolution"`
	WithinMaxDimension  bool    `json:"within_max_dimension"`
	AspectRatioOk       bool    `json:"aspect_ratio_ok"`
	OverallQuality      float64 `json:"overall_quality"`
	SuitableForAnalysis bool    `json:"suitable_for_analysis"`
}

// BoundingBox is an axis-aligned region in pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RegionLabel classifies what a detected region is believed to contain.
type RegionLabel string

const (
	RegionNail    RegionLabel = "nail"
	RegionPattern RegionLabel = "pattern"
	RegionOther   RegionLabel = "other"
)

// Detection is one region of interest located within an image. The box is
// always inside image bounds and has positive area.
type Detection struct {
	Box        BoundingBox `json:"bounding_box"`
	Confidence float64     `json:"confidence"`
	Label      RegionLabel `json:"label"`
}

// Prediction is one ranked class prediction.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ClassificationResult holds the top-K predictions of the direct classifier,
// ordered by non-increasing confidence.
type ClassificationResult struct {
	Predictions []Prediction `json:"predictions"`
	Top         Prediction   `json:"top_prediction"`
}

// RegionRegression is the hemoglobin estimate for a single nail crop.
type RegionRegression struct {
	RegionID   int         `json:"region_id"`
	Value      float64     `json:"hemoglobin_g_per_l"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bounding_box"`
}

// AggregateRegression is the per-image hemoglobin estimate, the arithmetic
// mean over all detected regions. It is never produced with zero regions.
type AggregateRegression struct {
	AverageValue float64            `json:"average_hemoglobin_g_per_l"`
	NumRegions   int                `json:"num_regions"`
	PerRegion    []RegionRegression `json:"individual_predictions"`
}

// HemoglobinInterpretation is a human-readable reading of an aggregate
// hemoglobin estimate.
type HemoglobinInterpretation struct {
	Status         string `json:"status"`
	Interpretation string `json:"interpretation"`
	Color          string `json:"color"`
}

// ColorAnalysis summarizes the dominant color of a discharge image.
type ColorAnalysis struct {
	DominantColor string     `json:"dominant_color"`
	RGB           [3]float64 `json:"rgb_values"`
	Brightness    float64    `json:"brightness"`
	Indicators    []string   `json:"health_indicators"`
}

// PatternSummary aggregates pattern detections by predicted class.
type PatternSummary struct {
	TotalDetected    int            `json:"total_patterns_detected"`
	Counts           map[string]int `json:"pattern_counts"`
	CircularPatterns int            `json:"circular_patterns"`
	CrossPatterns    int            `json:"cross_patterns"`
	Uncertain        int            `json:"uncertain_patterns"`
}

// HealthAssessment is the structured form of the vision-language model's
// free-text analysis. When strict parsing fails the raw text lands in
// ConditionOverview and the list fields carry generic guidance.
type HealthAssessment struct {
	ConditionOverview string   `json:"condition_overview"`
	Severity          string   `json:"severity"`
	PossibleCauses    []string `json:"possible_causes"`
	SelfCare          []string `json:"self_care"`
	SeekCareIf        []string `json:"seek_care_if"`
	AdditionalNotes   string   `json:"additional_notes,omitempty"`
	Concerns          []string `json:"detected_concerns,omitempty"`
	Fallback          bool     `json:"fallback"`
	Error             string   `json:"error,omitempty"`
}

// ImageAnalysis is the classifier/regression payload of an AnalysisResult.
// Exactly one of Classification, Hemoglobin or Patterns is set, depending on
// the analysis type; Color accompanies discharge analyses.
type ImageAnalysis struct {
	Classification *ClassificationResult     `json:"classification,omitempty"`
	Hemoglobin     *AggregateRegression      `json:"nail_analysis,omitempty"`
	Interpretation *HemoglobinInterpretation `json:"interpretation,omitempty"`
	AnemiaRisk     string                    `json:"anemia_risk,omitempty"`
	Patterns       *PatternSummary           `json:"pattern_analysis,omitempty"`
	Detections     []Detection               `json:"detections,omitempty"`
	Color          *ColorAnalysis            `json:"color_analysis,omitempty"`
}

// AnalysisResult is the top-level structured assessment returned for one
// uploaded image. It is immutable once assembled and is not persisted.
type AnalysisResult struct {
	ID                string            `json:"id"`
	AnalysisType      AnalysisType      `json:"analysis_type"`
	ImageAnalysis     ImageAnalysis     `json:"image_analysis"`
	HealthAssessment  *HealthAssessment `json:"health_assessment,omitempty"`
	Quality           QualityAssessment `json:"quality_assessment"`
	ConfidenceScore   float64           `json:"confidence_score"`
	Recommendations   []string          `json:"recommendations"`
	Disclaimers       []string          `json:"disclaimers"`
	KnowledgeSnippets []string          `json:"knowledge_snippets,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
	ProcessingTimeSec float64           `json:"processing_time_sec"`
}
