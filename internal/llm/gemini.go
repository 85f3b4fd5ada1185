package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultGeminiURL is the Generative Language REST endpoint.
const DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls Gemini generateContent over REST.
type GeminiProvider struct {
	Model   string
	BaseURL string
	apiKey  string
	client  *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	return &GeminiProvider{
		Model:   model,
		BaseURL: DefaultGeminiURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.apiKey != ""
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		FinishReason      string        `json:"finishReason"`
		GroundingMetadata struct {
			GroundingChunks []struct {
				Web *struct {
					Title string `json:"title"`
					URI   string `json:"uri"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Generate sends a structured generation request to Gemini.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	if g.apiKey == "" {
		return Response{}, fmt.Errorf("gemini API key not configured")
	}

	genConfig := map[string]any{
		"temperature": 0.7,
	}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if req.Schema != nil {
		genConfig["responseMimeType"] = "application/json"
		genConfig["responseSchema"] = geminiSchema(req.Schema)
	}

	body := map[string]any{
		"contents": []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}},
		},
		"generationConfig": genConfig,
	}
	if req.SystemPrompt != "" {
		body["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if req.Grounded {
		body["tools"] = []map[string]any{{"google_search": map[string]any{}}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.BaseURL, "/"), g.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	log.Debug("Gemini request", "model", g.Model, "grounded", req.Grounded)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("gemini API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Error("Gemini API error", "status", resp.StatusCode, "body", string(respBody))
		return Response{}, fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return Response{}, fmt.Errorf("no candidates in gemini response")
	}

	cand := result.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}

	var sources []Source
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk.Web == nil {
			continue
		}
		sources = append(sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}

	model := g.Model
	if result.ModelVersion != "" {
		model = result.ModelVersion
	}
	if cand.FinishReason == "MAX_TOKENS" {
		log.Warn("Gemini response truncated", "model", model, "max_tokens", req.MaxTokens)
	}

	return Response{
		Content:      text.String(),
		Model:        model,
		FinishReason: cand.FinishReason,
		Sources:      sources,
	}, nil
}

// geminiSchema converts a JSON schema with lower-case type names into the
// upper-case OpenAPI subset generateContent expects.
func geminiSchema(schema map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		switch k {
		case "type":
			if t, ok := v.(string); ok {
				v = strings.ToUpper(t)
			}
		case "items":
			if m, ok := v.(map[string]any); ok {
				v = geminiSchema(m)
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				converted := make(map[string]any, len(props))
				for name, p := range props {
					if m, ok := p.(map[string]any); ok {
						converted[name] = geminiSchema(m)
					} else {
						converted[name] = p
					}
				}
				v = converted
			}
		}
		out[k] = v
	}
	return out
}
