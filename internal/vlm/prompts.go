package vlm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/luna-health/triage-go/pkg/models"
)

// systemPrompt frames every vision request.
const systemPrompt = "You are a helpful women's health education assistant. " +
	"You provide educational information only, never medical diagnoses."

// responseFormat is appended to every template so the model answers in the
// structure the orchestrator parses.
const responseFormat = `
Format your response as JSON with these keys:
- condition_overview: Brief explanation
- severity: low/moderate/high
- possible_causes: List of common causes
- self_care: List of self-care recommendations
- seek_care_if: List of warning signs
- additional_notes: Any other relevant information

Remember: This is educational information only, not medical advice.`

// defaultTemplates are the analysis-type-specific prompt bodies. A YAML file
// may override any of them per deployment.
var defaultTemplates = map[models.AnalysisType]string{
	models.AnalysisSkin: `Examine this photograph of a skin region.
Describe what you observe: texture, color, any lesions, redness, dryness or
irregular pigmentation. Assess a severity tier, list common causes for what
you see, suggest self-care steps, and name red-flag signs that warrant seeing
a healthcare provider.`,

	models.AnalysisDischarge: `Examine this photograph of vaginal discharge.
Describe the color and consistency you observe and what they commonly
indicate. Assess a severity tier, list possible causes, suggest self-care
steps, and name red-flag signs (odor changes, unusual color, accompanying
symptoms) that warrant professional care.`,

	models.AnalysisHemoglobin: `Examine this photograph of fingernails.
Describe nail bed color and pallor, which can correlate with hemoglobin
levels. Assess a severity tier for possible anemia indicators, list common
causes of low hemoglobin, suggest dietary self-care, and name signs that
warrant a blood test or professional care.`,

	models.AnalysisPattern: `Examine this microscopy photograph of liquid
crystal droplet patterns. Describe the pattern structures you observe
(circular/bipolar versus cross/radial configurations), assess how clearly
the patterns are formed, and note anything unusual about their distribution.`,
}

// UserContext is the optional request context folded into a prompt.
type UserContext struct {
	Age        *int
	Symptoms   []string
	CyclePhase string
	Knowledge  []string
}

// Prompts builds analysis-type-specific prompts, with optional YAML
// overrides layered over the defaults.
type Prompts struct {
	templates map[models.AnalysisType]string
}

// LoadPrompts returns the default prompt set, overridden by the YAML file at
// path when one is given.
func LoadPrompts(path string) (*Prompts, error) {
	templates := make(map[models.AnalysisType]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		templates[k] = v
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt file: %w", err)
		}
		var overrides map[string]string
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("parse prompt file: %w", err)
		}
		for k, v := range overrides {
			templates[models.AnalysisType(k)] = v
		}
	}

	return &Prompts{templates: templates}, nil
}

// System returns the framing system prompt.
func (p *Prompts) System() string { return systemPrompt }

// Build assembles the full user prompt for one request.
func (p *Prompts) Build(t models.AnalysisType, userCtx UserContext) string {
	var sb strings.Builder
	sb.WriteString(p.templates[t])

	if len(userCtx.Symptoms) > 0 {
		sb.WriteString("\n\nUser reported symptoms: ")
		sb.WriteString(strings.Join(userCtx.Symptoms, ", "))
	}
	if userCtx.Age != nil {
		fmt.Fprintf(&sb, "\nUser age: %d", *userCtx.Age)
	}
	if userCtx.CyclePhase != "" {
		sb.WriteString("\nMenstrual cycle phase: ")
		sb.WriteString(userCtx.CyclePhase)
	}
	if len(userCtx.Knowledge) > 0 {
		sb.WriteString("\n\nMedical knowledge context:\n")
		sb.WriteString(strings.Join(userCtx.Knowledge, "\n"))
	}

	sb.WriteString("\n")
	sb.WriteString(responseFormat)
	return sb.String()
}
