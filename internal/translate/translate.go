// Package translate is the Korean-to-English helper pipeline: a single
// provider call with structural validation, no rewrite loop.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"elites/internal/provider"
)

type Request struct {
	SystemRole string
	TextKo     string
}

type Response struct {
	TranslationEn string
}

// ParseResponse validates the provider's raw JSON object.
func ParseResponse(raw map[string]any) (*Response, error) {
	if raw == nil {
		return nil, fmt.Errorf("response must be a JSON object")
	}
	val, _ := raw["translation_en"].(string)
	if strings.TrimSpace(val) == "" {
		return nil, fmt.Errorf("translation_en must be a non-empty string")
	}
	return &Response{TranslationEn: strings.TrimSpace(val)}, nil
}

type Provider interface {
	Translate(ctx context.Context, req *Request) (map[string]any, error)
}

// OpenAIProvider appends the translation task to the system role and
// sends the text as a small JSON document.
type OpenAIProvider struct {
	Client *provider.OpenAI
}

const translateTask = `Task: Translate Korean to natural English. Return ONLY JSON like {"translation_en":"..."}.`

func (p *OpenAIProvider) Translate(ctx context.Context, req *Request) (map[string]any, error) {
	user, err := json.Marshal(map[string]string{"text_ko": req.TextKo})
	if err != nil {
		return nil, err
	}
	return p.Client.RequestJSON(ctx, req.SystemRole+"\n\n"+translateTask, string(user))
}

// LocalProvider is the offline placeholder.
type LocalProvider struct {
	Placeholder string
}

func (p *LocalProvider) Translate(_ context.Context, _ *Request) (map[string]any, error) {
	text := p.Placeholder
	if text == "" {
		text = "(translation unavailable offline)"
	}
	return map[string]any{"translation_en": text}, nil
}

type Gateway struct {
	Provider Provider
}

func (g *Gateway) Run(ctx context.Context, req *Request) (*Response, error) {
	raw, err := g.Provider.Translate(ctx, req)
	if err != nil {
		return nil, err
	}
	return ParseResponse(raw)
}
