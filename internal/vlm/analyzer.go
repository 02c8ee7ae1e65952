package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/jpeg"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/luna-health/triage-go/internal/logger"
	"github.com/luna-health/triage-go/pkg/models"
)

// Outcome carries the result of one vision-language call. A failed or
// unparseable call still produces a usable Outcome so the pipeline can
// degrade instead of aborting.
type Outcome struct {
	Success    bool
	RawText    string
	Assessment *models.HealthAssessment
	Concerns   []string
	Err        string
}

// Analyzer produces a structured health assessment from an image.
type Analyzer interface {
	Analyze(ctx context.Context, img image.Image, t models.AnalysisType, userCtx UserContext) Outcome
}

// Config holds the vision-language client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
	MaxTokens   int
}

type openAIAnalyzer struct {
	client  *openai.Client
	prompts *Prompts
	cfg     Config
}

// NewAnalyzer builds an Analyzer backed by an OpenAI-compatible vision
// endpoint.
func NewAnalyzer(cfg Config, prompts *Prompts) Analyzer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 800
	}
	return &openAIAnalyzer{
		client:  openai.NewClientWithConfig(clientConfig),
		prompts: prompts,
		cfg:     cfg,
	}
}

func (a *openAIAnalyzer) Analyze(ctx context.Context, img image.Image, t models.AnalysisType, userCtx UserContext) Outcome {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return Outcome{Err: "encode image: " + err.Error()}
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: a.prompts.System(),
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: a.prompts.Build(t, userCtx),
					},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		logger.WithError(err).WithField("analysis_type", string(t)).Warn("vision analysis call failed")
		return Outcome{Err: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return Outcome{Err: "empty completion response"}
	}

	raw := resp.Choices[0].Message.Content
	outcome := Outcome{
		Success:    true,
		RawText:    raw,
		Assessment: ParseAssessment(raw),
	}
	if t == models.AnalysisSkin {
		outcome.Concerns = ExtractSkinConcerns(raw)
	}
	return outcome
}

// ParseAssessment decodes the model response into a structured assessment.
// When strict JSON parsing fails the raw text is wrapped in a fallback
// assessment so the caller always receives something presentable.
func ParseAssessment(raw string) *models.HealthAssessment {
	cleaned := stripCodeFences(raw)

	var assessment models.HealthAssessment
	if err := json.Unmarshal([]byte(cleaned), &assessment); err == nil && assessment.ConditionOverview != "" {
		if assessment.Severity == "" {
			assessment.Severity = "moderate"
		}
		return &assessment
	}

	return &models.HealthAssessment{
		ConditionOverview: raw,
		Severity:          "moderate",
		SelfCare:          []string{"Monitor the area and note any changes"},
		SeekCareIf:        []string{"Symptoms persist or worsen"},
		Fallback:          true,
	}
}

// stripCodeFences removes a surrounding markdown code block and trims to the
// outermost JSON object, tolerating prose before or after it.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// skinKeywords maps observation keywords to the concern they indicate.
var skinKeywords = map[string]string{
	"redness":       "redness",
	"red":           "redness",
	"inflamed":      "redness",
	"acne":          "acne",
	"pimple":        "acne",
	"breakout":      "acne",
	"dry":           "dryness",
	"flaky":         "dryness",
	"scaly":         "dryness",
	"discoloration": "discoloration",
	"pigmentation":  "discoloration",
	"dark spot":     "discoloration",
	"rash":          "rash",
	"itchy":         "irritation",
	"irritat":       "irritation",
}

// ExtractSkinConcerns scans free text for skin concern keywords.
func ExtractSkinConcerns(text string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var concerns []string
	for keyword, concern := range skinKeywords {
		if strings.Contains(lower, keyword) && !seen[concern] {
			seen[concern] = true
			concerns = append(concerns, concern)
		}
	}
	sort.Strings(concerns)
	return concerns
}
