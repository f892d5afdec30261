package planreply

import (
	"context"
	"sync"

	"elites/internal/provider"
)

// OpenAIProvider sends the rendered prompt through the shared Responses
// client.
type OpenAIProvider struct {
	Client *provider.OpenAI
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (map[string]any, error) {
	return p.Client.RequestJSON(ctx, req.SystemRole, req.PromptText())
}

// Fake replays scripted outputs; once the script runs out it settles on a
// safe canned option.
type Fake struct {
	mu       sync.Mutex
	scripted []map[string]any
}

func NewFake(scripted ...map[string]any) *Fake {
	return &Fake{scripted: scripted}
}

func (f *Fake) Generate(_ context.Context, _ *Request) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scripted) == 0 {
		return map[string]any{
			"options_ko":        []any{"네, 알겠어요."},
			"notes_en":          nil,
			"unexpected_tokens": []any{},
		}, nil
	}
	out := f.scripted[0]
	f.scripted = f.scripted[1:]
	return out, nil
}
