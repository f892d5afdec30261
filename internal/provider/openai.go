// Package provider holds the conversation providers: a raw HTTP client
// for the OpenAI Responses API, a deterministic offline provider, and a
// scripted fake for tests.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"elites/internal/gateway"
	"elites/internal/types"
)

const defaultAPIURL = "https://api.openai.com/v1/responses"

// OpenAI calls the Responses API and extracts the model's JSON object.
// The underlying http.Client is shared across calls and lazily built
// under a mutex.
type OpenAI struct {
	APIKey          string
	Model           string
	APIURL          string
	Timeout         time.Duration
	MaxOutputTokens int
	Retry           RetryPolicy
	Log             *zap.Logger

	mu     sync.Mutex
	client *http.Client
}

func NewOpenAI(apiKey, model string, log *zap.Logger) *OpenAI {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAI{
		APIKey:          apiKey,
		Model:           model,
		APIURL:          defaultAPIURL,
		Timeout:         60 * time.Second,
		MaxOutputTokens: 256,
		Retry:           DefaultRetryPolicy(),
		Log:             log,
	}
}

func (o *OpenAI) httpClient() *http.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.client == nil {
		o.client = &http.Client{Timeout: o.Timeout}
	}
	return o.client
}

type apiResponse struct {
	Status            string          `json:"status"`
	Error             json.RawMessage `json:"error"`
	OutputText        string          `json:"output_text"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Output []struct {
		Content []struct {
			Type string          `json:"type"`
			Text json.RawMessage `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// Generate posts the conversation request and returns the parsed JSON
// object from the model's output.
func (o *OpenAI) Generate(ctx context.Context, req *types.ConversationRequest) (map[string]any, error) {
	return o.RequestJSON(ctx, req.SystemRole, req.PromptText())
}

// RequestJSON sends one system/user message pair and extracts the model's
// JSON object. Structural failures come back as *gateway.ParseError so
// the caller can rewrite; transport failures are returned as-is after the
// retry budget.
func (o *OpenAI) RequestJSON(ctx context.Context, systemRole, userText string) (map[string]any, error) {
	payload := map[string]any{
		"model": o.Model,
		"input": []map[string]any{
			{"role": "system", "content": systemRole},
			{"role": "user", "content": userText},
		},
		"text":              map[string]any{"format": map[string]any{"type": "json_object"}, "verbosity": "low"},
		"reasoning":         map[string]any{"effort": "low"},
		"max_output_tokens": o.MaxOutputTokens,
	}

	data, err := o.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if len(data.Error) > 0 && string(data.Error) != "null" {
		return nil, fmt.Errorf("openai error: %s", data.Error)
	}

	// An incomplete status usually means the budget went to reasoning;
	// retry once with a larger one.
	if data.Status == "incomplete" && data.IncompleteDetails != nil &&
		data.IncompleteDetails.Reason == "max_output_tokens" {
		budget := o.MaxOutputTokens
		if budget < 256 {
			budget = 256
		}
		payload["max_output_tokens"] = budget * 4
		if data, err = o.post(ctx, payload); err != nil {
			return nil, err
		}
	}

	text := data.OutputText
	if text == "" {
		if text, err = extractOutputText(data); err != nil {
			return nil, &gateway.ParseError{Reason: err.Error()}
		}
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &gateway.ParseError{Reason: "invalid JSON: " + err.Error()}
	}
	if parsed == nil {
		return nil, &gateway.ParseError{Reason: "model returned non-object JSON"}
	}
	return parsed, nil
}

func (o *OpenAI) post(ctx context.Context, payload map[string]any) (*apiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	client := o.httpClient()

	var lastErr error
	for attempt := 0; attempt <= o.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := o.Retry.Sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.APIURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+o.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			o.Log.Debug("provider request failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("openai http %d: %s", resp.StatusCode, truncate(respBody, 200))
			if RetryableStatus(resp.StatusCode) {
				o.Log.Debug("provider retryable status",
					zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
				continue
			}
			return nil, lastErr
		}
		var data apiResponse
		if err := json.Unmarshal(respBody, &data); err != nil {
			return nil, &gateway.ParseError{Reason: "invalid response body: " + err.Error()}
		}
		return &data, nil
	}
	return nil, lastErr
}

func extractOutputText(data *apiResponse) (string, error) {
	for _, item := range data.Output {
		for _, content := range item.Content {
			if content.Type != "output_text" || len(content.Text) == 0 {
				continue
			}
			var s string
			if err := json.Unmarshal(content.Text, &s); err == nil && s != "" {
				return s, nil
			}
			var obj struct {
				Value string `json:"value"`
			}
			if err := json.Unmarshal(content.Text, &obj); err == nil && obj.Value != "" {
				return obj.Value, nil
			}
		}
	}
	return "", fmt.Errorf("unable to extract text from model response")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
