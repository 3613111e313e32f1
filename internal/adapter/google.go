package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"llmgateway/internal/billing"
	"llmgateway/internal/model"
)

// googleHarmCategories are the four harm categories whose thresholds the
// gateway explicitly relaxes; filtering decisions belong to the caller, not
// the transport.
var googleHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// googleAdapter speaks the Gemini generateContent wire format: credential in
// the URL query string, single concatenated prompt, permissive safety
// settings.
type googleAdapter struct {
	backend *model.Backend
	client  *http.Client
}

func (a *googleAdapter) buildRequest(m *model.Model, req *model.CompletionRequest, stream bool) (*wireRequest, error) {
	// system and user text are concatenated into a single prompt part
	prompt := req.UserText()
	if system := req.SystemText(); system != "" {
		prompt = system + "\n\n" + prompt
	}

	generationConfig := map[string]interface{}{
		"temperature": effectiveTemperature(req),
	}
	if maxTokens := effectiveMaxTokens(m, req); maxTokens > 0 {
		generationConfig["maxOutputTokens"] = maxTokens
	}
	if req.TopP != nil {
		generationConfig["topP"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		generationConfig["stopSequences"] = req.Stop
	}

	var safetySettings []map[string]string
	for _, category := range googleHarmCategories {
		safetySettings = append(safetySettings, map[string]string{
			"category":  category,
			"threshold": "BLOCK_NONE",
		})
	}

	body := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": generationConfig,
		"safetySettings":   safetySettings,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	action := ":generateContent"
	query := "?key=" + url.QueryEscape(a.backend.APIKey)
	if stream {
		action = ":streamGenerateContent"
		query = "?alt=sse&key=" + url.QueryEscape(a.backend.APIKey)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	applyExtraHeaders(headers, a.backend)

	return &wireRequest{
		URL:     strings.TrimSuffix(a.backend.BaseURL, "/") + "/v1beta/models/" + m.Name + action + query,
		Headers: headers,
		Body:    raw,
	}, nil
}

func (a *googleAdapter) parse(m *model.Model, raw []byte, elapsedMs int64) (*model.CompletionResponse, error) {
	finishReason := gjson.GetBytes(raw, "candidates.0.finishReason").String()
	if finishReason == "SAFETY" || gjson.GetBytes(raw, "promptFeedback.blockReason").Exists() {
		return nil, fmt.Errorf("%w: finish reason SAFETY", ErrContentBlocked)
	}

	content := gjson.GetBytes(raw, "candidates.0.content.parts.0.text")
	if !content.Exists() {
		return nil, fmt.Errorf("%w: missing candidates[0].content.parts[0].text", ErrInvalidResponse)
	}

	usage := model.TokenUsage{
		PromptTokens:     int(gjson.GetBytes(raw, "usageMetadata.promptTokenCount").Int()),
		CompletionTokens: int(gjson.GetBytes(raw, "usageMetadata.candidatesTokenCount").Int()),
		TotalTokens:      int(gjson.GetBytes(raw, "usageMetadata.totalTokenCount").Int()),
	}

	return a.normalized(m, content.String(), mapGoogleFinishReason(finishReason), usage, elapsedMs), nil
}

func (a *googleAdapter) normalized(m *model.Model, content, finishReason string, usage model.TokenUsage, elapsedMs int64) *model.CompletionResponse {
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

func (a *googleAdapter) Complete(ctx context.Context, m *model.Model, req *model.CompletionRequest) (*model.CompletionResponse, error) {
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

func (a *googleAdapter) CompleteStream(ctx context.Context, m *model.Model, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
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
		if fr := gjson.GetBytes(ev.Data, "candidates.0.finishReason"); fr.Exists() {
			if fr.String() == "SAFETY" {
				return fmt.Errorf("%w: finish reason SAFETY", ErrContentBlocked)
			}
			finishReason = mapGoogleFinishReason(fr.String())
		}
		if text := gjson.GetBytes(ev.Data, "candidates.0.content.parts.0.text"); text.Exists() && text.String() != "" {
			content.WriteString(text.String())
			if onToken != nil {
				onToken(text.String())
			}
		}
		if meta := gjson.GetBytes(ev.Data, "usageMetadata"); meta.Exists() {
			usage.PromptTokens = int(meta.Get("promptTokenCount").Int())
			usage.CompletionTokens = int(meta.Get("candidatesTokenCount").Int())
			usage.TotalTokens = int(meta.Get("totalTokenCount").Int())
		}
		return nil
	})
	if err != nil {
		return nil, wrapStreamErr(err, streamTimeout)
	}

	return a.normalized(m, content.String(), finishReason, usage, time.Since(start).Milliseconds()), nil
}

func mapGoogleFinishReason(reason string) string {
	switch reason {
	case "MAX_TOKENS":
		return model.FinishReasonLength
	case "SAFETY":
		return model.FinishReasonContentFilter
	default:
		return model.FinishReasonStop
	}
}
