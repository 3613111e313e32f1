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

const anthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens is used when neither the request nor the model
// configures a cap; the messages API rejects requests without max_tokens.
const anthropicDefaultMaxTokens = 4096

// anthropicAdapter speaks the Anthropic messages wire format: API key in a
// custom header, system prompt as a top-level field, mandatory max_tokens.
type anthropicAdapter struct {
	backend *model.Backend
	client  *http.Client
}

func (a *anthropicAdapter) buildRequest(m *model.Model, req *model.CompletionRequest, stream bool) (*wireRequest, error) {
	// only user/assistant turns go into messages
	var messages []map[string]string
	for _, msg := range req.Messages {
		if msg.Role == "user" || msg.Role == "assistant" {
			messages = append(messages, map[string]string{"role": msg.Role, "content": msg.Content})
		}
	}
	if len(messages) == 0 {
		messages = append(messages, map[string]string{"role": "user", "content": req.UserText()})
	}

	maxTokens := effectiveMaxTokens(m, req)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	body := map[string]interface{}{
		"model":       m.Name,
		"messages":    messages,
		"max_tokens":  maxTokens,
		"temperature": effectiveTemperature(req),
	}
	if system := req.SystemText(); system != "" {
		body["system"] = system
	}
	if req.TopP != nil {
		body["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		body["stop_sequences"] = req.Stop
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
	headers.Set("anthropic-version", anthropicVersion)
	applyAuth(headers, a.backend, "x-api-key", "")
	applyExtraHeaders(headers, a.backend)

	return &wireRequest{
		URL:     strings.TrimSuffix(a.backend.BaseURL, "/") + "/v1/messages",
		Headers: headers,
		Body:    raw,
	}, nil
}

func (a *anthropicAdapter) parse(m *model.Model, raw []byte, elapsedMs int64) (*model.CompletionResponse, error) {
	content := gjson.GetBytes(raw, "content.0.text")
	if !content.Exists() {
		return nil, fmt.Errorf("%w: missing content[0].text", ErrInvalidResponse)
	}

	usage := model.TokenUsage{
		PromptTokens:     int(gjson.GetBytes(raw, "usage.input_tokens").Int()),
		CompletionTokens: int(gjson.GetBytes(raw, "usage.output_tokens").Int()),
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return a.normalized(m, content.String(), mapAnthropicStopReason(gjson.GetBytes(raw, "stop_reason").String()), usage, elapsedMs), nil
}

func (a *anthropicAdapter) normalized(m *model.Model, content, finishReason string, usage model.TokenUsage, elapsedMs int64) *model.CompletionResponse {
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

func (a *anthropicAdapter) Complete(ctx context.Context, m *model.Model, req *model.CompletionRequest) (*model.CompletionResponse, error) {
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

func (a *anthropicAdapter) CompleteStream(ctx context.Context, m *model.Model, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
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

	// typed SSE events: message_start carries input tokens, content_block_delta
	// the text pieces, message_delta the output tokens and stop reason
	err = scanSSE(body, func(ev sseEvent) error {
		eventType := ev.Name
		if eventType == "" {
			eventType = gjson.GetBytes(ev.Data, "type").String()
		}

		switch eventType {
		case "message_start":
			usage.PromptTokens = int(gjson.GetBytes(ev.Data, "message.usage.input_tokens").Int())
		case "content_block_delta":
			if delta := gjson.GetBytes(ev.Data, "delta.text"); delta.Exists() && delta.String() != "" {
				content.WriteString(delta.String())
				if onToken != nil {
					onToken(delta.String())
				}
			}
		case "message_delta":
			if out := gjson.GetBytes(ev.Data, "usage.output_tokens"); out.Exists() {
				usage.CompletionTokens = int(out.Int())
			}
			if sr := gjson.GetBytes(ev.Data, "delta.stop_reason"); sr.Exists() && sr.Type != gjson.Null {
				finishReason = mapAnthropicStopReason(sr.String())
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStreamErr(err, streamTimeout)
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return a.normalized(m, content.String(), finishReason, usage, time.Since(start).Milliseconds()), nil
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "max_tokens":
		return model.FinishReasonLength
	case "refusal":
		return model.FinishReasonContentFilter
	default:
		return model.FinishReasonStop
	}
}
