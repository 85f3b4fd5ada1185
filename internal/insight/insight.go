// Package insight generates the translated, web-grounded commentary for a
// feed item.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/TobiSchelling/adhara/internal/llm"
	"github.com/TobiSchelling/adhara/internal/model"
)

// ErrEnrichmentFailed wraps every failure to produce an Insight.
var ErrEnrichmentFailed = errors.New("enrichment failed")

// MaxCitations is the hard cap on citations attached to an Insight.
const MaxCitations = 3

const systemPrompt = `You are an astrophysicist and science communicator. Your job is to translate and analyse NASA astronomy picture data. CRITICAL RULE: every field of your answer MUST be written in %s, without exception. Follow the provided JSON schema strictly.`

const analysisPrompt = `Analyse this astronomical phenomenon:
Original title: %q
Original technical description: %q

Additional instructions:
1. Translate faithfully into %s.
2. Give a deep, philosophical reflection on what the image shows.
3. Search for recent scientific news (from the last three years) about this object.

Respond with ONLY this JSON:
{
    "translatedTitle": "the title in %s",
    "translatedExplanation": "the full description in %s",
    "reflection": "a short personal reflection",
    "scientificContext": "what science currently knows about the object",
    "philosophicalPerspective": "what it means for our place in the cosmos",
    "suggestedReading": ["book or article", "..."]
}`

// responseSchema is the structured output contract. Citations are not part
// of it; they come from the provider's grounding sources.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"translatedTitle":          map[string]any{"type": "string"},
		"translatedExplanation":    map[string]any{"type": "string"},
		"reflection":               map[string]any{"type": "string"},
		"scientificContext":        map[string]any{"type": "string"},
		"philosophicalPerspective": map[string]any{"type": "string"},
		"suggestedReading": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{
		"translatedTitle",
		"translatedExplanation",
		"reflection",
		"scientificContext",
		"philosophicalPerspective",
		"suggestedReading",
	},
}

// Analyzer turns a title and explanation into an Insight.
type Analyzer struct {
	provider     llm.Provider
	language     string
	maxCitations int
	maxTokens    int
}

// NewAnalyzer creates an analyzer. provider may be nil, in which case every
// call fails with ErrEnrichmentFailed.
func NewAnalyzer(provider llm.Provider, language string, maxCitations, maxTokens int) *Analyzer {
	if language == "" {
		language = "Spanish"
	}
	if maxCitations < 0 || maxCitations > MaxCitations {
		maxCitations = MaxCitations
	}
	return &Analyzer{
		provider:     provider,
		language:     language,
		maxCitations: maxCitations,
		maxTokens:    maxTokens,
	}
}

// Language is the output language every insight is written in.
func (a *Analyzer) Language() string { return a.language }

// Analyze makes a single grounded, schema-constrained call. No retry.
func (a *Analyzer) Analyze(ctx context.Context, title, explanation string) (model.Insight, error) {
	if a.provider == nil {
		return model.Insight{}, fmt.Errorf("%w: no LLM provider available", ErrEnrichmentFailed)
	}

	resp, err := a.provider.Generate(ctx, llm.Request{
		SystemPrompt: fmt.Sprintf(systemPrompt, a.language),
		UserPrompt:   fmt.Sprintf(analysisPrompt, title, explanation, a.language, a.language, a.language),
		Schema:       responseSchema,
		MaxTokens:    a.maxTokens,
		Grounded:     true,
	})
	if err != nil {
		return model.Insight{}, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}

	var parsed model.Insight
	if err := llm.ParseJSONResponse(resp.Content, &parsed); err != nil {
		return model.Insight{}, fmt.Errorf("%w: %w", ErrEnrichmentFailed, err)
	}
	parsed.SuggestedReadings = cleanReadings(parsed.SuggestedReadings)
	if err := validate(parsed); err != nil {
		return model.Insight{}, fmt.Errorf("%w: response violates schema: %w", ErrEnrichmentFailed, err)
	}

	parsed.Citations = FilterCitations(resp.Sources, a.maxCitations)

	log.Info("Insight generated", "provider", a.provider.Name(), "model", resp.Model, "citations", len(parsed.Citations))
	return parsed, nil
}

func validate(in model.Insight) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.TranslatedTitle, validation.Required),
		validation.Field(&in.TranslatedExplanation, validation.Required),
		validation.Field(&in.Reflection, validation.Required),
		validation.Field(&in.ScientificContext, validation.Required),
		validation.Field(&in.PhilosophicalPerspective, validation.Required),
		validation.Field(&in.SuggestedReadings, validation.NotNil),
	)
}

func cleanReadings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// FilterCitations keeps sources in order, drops entries missing a title or
// URI, removes duplicate URIs and caps the result at limit.
func FilterCitations(sources []llm.Source, limit int) []model.Citation {
	if limit > MaxCitations {
		limit = MaxCitations
	}
	var out []model.Citation
	seen := make(map[string]bool)
	for _, s := range sources {
		if len(out) >= limit {
			break
		}
		title, uri := strings.TrimSpace(s.Title), strings.TrimSpace(s.URI)
		if title == "" || uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		out = append(out, model.Citation{Title: title, URI: uri})
	}
	return out
}
