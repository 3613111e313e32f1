package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"llmgateway/internal/billing"
	"llmgateway/internal/model"
)

// customContentFields is the ordered list of response fields tried when
// extracting the completion text from an unknown server's response.
var customContentFields = []string{
	"content",
	"text",
	"response",
	"output",
	"choices.0.message.content",
}

// customStreamFields additionally covers OpenAI-style stream deltas.
var customStreamFields = append([]string{"choices.0.delta.content"}, customContentFields...)

// customAdapter speaks an open-bag wire format for self-hosted or otherwise
// unknown servers: the request is a loose JSON object plus caller-supplied
// extra fields merged verbatim, and response parsing probes a list of known
// field names.
type customAdapter struct {
	backend *model.Backend
	client  *http.Client
}

func (a *customAdapter) buildRequest(m *model.Model, req *model.CompletionRequest, stream bool) (*wireRequest, error) {
	body := map[string]interface{}{
		"model":       m.Name,
		"prompt":      req.UserText(),
		"temperature": effectiveTemperature(req),
	}
	if system := req.SystemText(); system != "" {
		body["system_prompt"] = system
	}
	if maxTokens := effectiveMaxTokens(m, req); maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if stream {
		body["stream"] = true
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	// caller-supplied extra fields are merged in as-is and may override
	// anything built above
	for key, value := range req.Extra {
		raw, err = sjson.SetBytes(raw, key, value)
		if err != nil {
			return nil, fmt.Errorf("merge extra field %q: %w", key, err)
		}
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	applyAuth(headers, a.backend, "Authorization", "Bearer ")
	applyExtraHeaders(headers, a.backend)

	return &wireRequest{
		// for custom backends the base URL is the complete endpoint
		URL:     strings.TrimSuffix(a.backend.BaseURL, "/"),
		Headers: headers,
		Body:    raw,
	}, nil
}

// extractField probes the ordered field list and returns the first match.
func extractField(raw []byte, fields []string) (string, bool) {
	for _, field := range fields {
		if value := gjson.GetBytes(raw, field); value.Exists() && value.Type == gjson.String {
			return value.String(), true
		}
	}
	return "", false
}

func (a *customAdapter) parse(m *model.Model, raw []byte, elapsedMs int64) (*model.CompletionResponse, error) {
	content, ok := extractField(raw, customContentFields)
	if !ok {
		return nil, fmt.Errorf("%w: no known content field in response", ErrInvalidResponse)
	}

	usage := model.TokenUsage{
		PromptTokens:     int(gjson.GetBytes(raw, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(raw, "usage.completion_tokens").Int()),
		TotalTokens:      int(gjson.GetBytes(raw, "usage.total_tokens").Int()),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	return a.normalized(m, content, mapOpenAIFinishReason(gjson.GetBytes(raw, "choices.0.finish_reason").String()), usage, elapsedMs), nil
}

func (a *customAdapter) normalized(m *model.Model, content, finishReason string, usage model.TokenUsage, elapsedMs int64) *model.CompletionResponse {
	return &model.CompletionResponse{
		Content:      content,
		Model:        m.Name,
		ModelID:      m.ID,
		BackendID:    a.backend.ID,
		BackendName:  a.backend.Name,
		Usage:        usage,
		LatencyMs:    elapsedMs,
		FinishReason: finishReason,
		Cost:         billing.EstimateCost(m, usage),
	}
}

func (a *customAdapter) Complete(ctx context.Context, m *model.Model, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	wr, err := a.buildRequest(m, req, false)
	if err != nil {
		return nil, err
	}
	raw, elapsed, err := doRequest(ctx, a.client, wr, completionTimeout)
	if err != nil {
		return nil, err
	}
	return a.parse(m, raw, elapsed)
}

func (a *customAdapter) CompleteStream(ctx context.Context, m *model.Model, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
	wr, err := a.buildRequest(m, req, true)
	if err != nil {
		return nil, err
	}

	body, cancel, err := doStreamRequest(ctx, a.client, wr, streamTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer body.Close()

	start := time.Now()
	var content strings.Builder
	finishReason := model.FinishReasonStop
	var usage model.TokenUsage

	err = scanSSE(body, func(ev sseEvent) error {
		if token, ok := extractField(ev.Data, customStreamFields); ok && token != "" {
			content.WriteString(token)
			if onToken != nil {
				onToken(token)
			}
		}
		if fr := gjson.GetBytes(ev.Data, "choices.0.finish_reason"); fr.Exists() && fr.Type != gjson.Null {
			finishReason = mapOpenAIFinishReason(fr.String())
		}
		if u := gjson.GetBytes(ev.Data, "usage"); u.Exists() && u.IsObject() {
			usage.PromptTokens = int(u.Get("prompt_tokens").Int())
			usage.CompletionTokens = int(u.Get("completion_tokens").Int())
			usage.TotalTokens = int(u.Get("total_tokens").Int())
		}
		return nil
	})
	if err != nil {
		return nil, wrapStreamErr(err, streamTimeout)
	}

	return a.normalized(m, content.String(), finishReason, usage, time.Since(start).Milliseconds()), nil
}
