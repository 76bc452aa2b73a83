package condense

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Backend is any synchronous text-generation service with a bounded input
// size. Failures surface as errors; the reducer decides continuation.
type Backend interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// BackendFunc adapts a plain function to the Backend interface.
type BackendFunc func(ctx context.Context, model, prompt string) (string, error)

// Generate implements Backend.
func (f BackendFunc) Generate(ctx context.Context, model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// Template placeholders, interpolated literally.
const (
	queryPlaceholder   = "{query}"
	contentPlaceholder = "{content}"
)

// defaultConfidence is assigned when the backend response carries no usable
// confidence of its own.
const defaultConfidence = 0.5

// Extraction is the outcome of one backend call for one batch.
type Extraction struct {
	Content    string
	Confidence float64
	// Raw preserves the unparsed backend response.
	Raw string
}

// extract issues the backend call for a single batch. The consolidation
// template is selected for any level above zero; raw chunks get the
// extraction template. Backend errors are wrapped and returned, never
// swallowed here.
func (p *Processor) extract(ctx context.Context, b Batch, query string) (*Extraction, error) {
	tmpl := p.cfg.ExtractionPrompt
	if b.Level > 0 {
		tmpl = p.cfg.ConsolidationPrompt
	}
	prompt := strings.NewReplacer(
		queryPlaceholder, query,
		contentPlaceholder, b.Content,
	).Replace(tmpl)

	callCtx := ctx
	if p.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
	}

	resp, err := p.backend.Generate(callCtx, p.cfg.Model, prompt)
	if err != nil {
		return nil, eris.Wrapf(err, "condense: extract batch %d at level %d", b.Index, b.Level)
	}

	if !p.cfg.StructuredOutput {
		return &Extraction{Content: resp, Confidence: defaultConfidence, Raw: resp}, nil
	}
	return parseStructured(resp), nil
}

// parseStructured interprets a response as {"extracted_content": ...,
// "confidence": ...}, tolerating markdown code fences. A response that is
// not valid JSON is kept verbatim under the default confidence: degraded
// output beats a lost batch, so parse failure is soft, not an error.
func parseStructured(resp string) *Extraction {
	var out struct {
		Content    string   `json:"extracted_content"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp)), &out); err != nil || out.Content == "" {
		return &Extraction{Content: resp, Confidence: defaultConfidence, Raw: resp}
	}
	conf := defaultConfidence
	if out.Confidence != nil {
		conf = clamp01(*out.Confidence)
	}
	return &Extraction{Content: out.Content, Confidence: conf, Raw: resp}
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or surrounding prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
