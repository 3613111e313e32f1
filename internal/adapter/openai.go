package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"llmgateway/internal/billing"
	"llmgateway/internal/model"
)

// openAIAdapter speaks the OpenAI chat-completions wire format, which most
// aggregators and self-hosted servers also accept.
type openAIAdapter struct {
	backend *model.Backend
	client  *http.Client
}

func (a *openAIAdapter) buildRequest(m *model.Model, req *model.CompletionRequest, stream bool) (*wireRequest, error) {
	var messages []map[string]string
	if system := req.SystemText(); system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserText()})

	body := map[string]interface{}{
		"model":       m.Name,
		"messages":    messages,
		"temperature": effectiveTemperature(req),
	}
	if maxTokens := effectiveMaxTokens(m, req); maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		body["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		body["presence_penalty"] = *req.PresencePenalty
	}
	if len(req.Stop) > 0 {
		body["stop"] = req.Stop
	}
	if stream {
		body["stream"] = true
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	applyAuth(headers, a.backend, "Authorization", "Bearer ")
	applyExtraHeaders(headers, a.backend)

	return &wireRequest{
		URL:     strings.TrimSuffix(a.backend.BaseURL, "/") + "/chat/completions",
		Headers: headers,
		Body:    raw,
	}, nil
}

func (a *openAIAdapter) parse(m *model.Model, raw []byte, elapsedMs int64) (*model.CompletionResponse, error) {
	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return nil, fmt.Errorf("%w: missing choices[0].message.content", ErrInvalidResponse)
	}

	usage := model.TokenUsage{
		PromptTokens:     int(gjson.GetBytes(raw, "usage.prompt_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(raw, "usage.completion_tokens").Int()),
		TotalTokens:      int(gjson.GetBytes(raw, "usage.total_tokens").Int()),
	}

	return a.normalized(m, content.String(), mapOpenAIFinishReason(gjson.GetBytes(raw, "choices.0.finish_reason").String()), usage, elapsedMs), nil
}

func (a *openAIAdapter) normalized(m *model.Model, content, finishReason string, usage model.TokenUsage, elapsedMs int64) *model.CompletionResponse {
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

func (a *openAIAdapter) Complete(ctx context.Context, m *model.Model, req *model.CompletionRequest) (*model.CompletionResponse, error) {
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

func (a *openAIAdapter) CompleteStream(ctx context.Context, m *model.Model, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
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
		if delta := gjson.GetBytes(ev.Data, "choices.0.delta.content"); delta.Exists() && delta.String() != "" {
			content.WriteString(delta.String())
			if onToken != nil {
				onToken(delta.String())
			}
		}
		if fr := gjson.GetBytes(ev.Data, "choices.0.finish_reason"); fr.Exists() && fr.Type != gjson.Null {
			finishReason = mapOpenAIFinishReason(fr.String())
		}
		// some servers attach usage to the terminal chunk
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

func mapOpenAIFinishReason(reason string) string {
	switch reason {
	case "length", "max_tokens":
		return model.FinishReasonLength
	case "content_filter":
		return model.FinishReasonContentFilter
	case "", "stop":
		return model.FinishReasonStop
	default:
		return model.FinishReasonStop
	}
}
