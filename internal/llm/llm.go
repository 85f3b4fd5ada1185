package llm

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Request is a single structured generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	// Schema is a JSON schema object the response must follow.
	Schema    map[string]any
	MaxTokens int
	// Grounded asks the provider to consult web search when it can.
	Grounded bool
}

// Source is a web page the provider consulted while answering.
type Source struct {
	Title string
	URI   string
}

// Response is the raw model output plus any grounding sources.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Sources      []Source
}

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	IsConfigured() bool
}

// Options selects and configures a provider. Timeout bounds each
// generation request; zero leaves requests bounded only by the caller's
// context.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	OllamaURL   string
	OllamaModel string
	Timeout     time.Duration
}

// CreateProvider creates an LLM provider based on configuration. The
// configured provider is tried first and the other one is the fallback.
// It returns nil when neither is usable.
func CreateProvider(opts Options) Provider {
	gemini := NewGeminiProvider(opts.APIKey, opts.Model)
	gemini.client.Timeout = opts.Timeout
	ollama := NewOllamaProvider(opts.OllamaModel, opts.OllamaURL)
	ollama.client.Timeout = opts.Timeout

	order := []Provider{gemini, ollama}
	if strings.ToLower(opts.Provider) == "ollama" {
		order = []Provider{ollama, gemini}
	}

	for i, p := range order {
		if p.IsConfigured() {
			if i > 0 {
				log.Warn("Preferred LLM provider unavailable, using fallback", "preferred", opts.Provider, "fallback", p.Name())
			}
			log.Info("Using LLM provider", "provider", p.Name())
			return p
		}
	}

	log.Warn("No LLM provider available. Set GEMINI_API_KEY or start Ollama.")
	return nil
}
