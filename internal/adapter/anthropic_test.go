package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"llmgateway/internal/model"
)

func TestAnthropicBuildRequest(t *testing.T) {
	a := &anthropicAdapter{backend: testBackend(model.WireFormatAnthropic, "https://api.anthropic.example")}

	wr, err := a.buildRequest(testModel(), &model.CompletionRequest{
		Messages: []model.ChatMessage{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "and now?"},
		},
	}, false)
	if err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}

	if wr.URL != "https://api.anthropic.example/v1/messages" {
		t.Errorf("unexpected url: %s", wr.URL)
	}
	if got := wr.Headers.Get("x-api-key"); got != "sk-test" {
		t.Errorf("unexpected api key header: %s", got)
	}
	if got := wr.Headers.Get("anthropic-version"); got != anthropicVersion {
		t.Errorf("unexpected version header: %s", got)
	}
	if got := wr.Headers.Get("Authorization"); got != "" {
		t.Errorf("anthropic must not send Authorization, got %s", got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(wr.Body, &body); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	// system turn is lifted out of messages into the top-level field
	if body["system"] != "be terse" {
		t.Errorf("unexpected system field: %v", body["system"])
	}
	messages := body["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for _, m := range messages {
		role := m.(map[string]interface{})["role"]
		if role != "user" && role != "assistant" {
			t.Errorf("unexpected role in messages: %v", role)
		}
	}
	if body["max_tokens"].(float64) != 256 {
		t.Errorf("unexpected max_tokens: %v", body["max_tokens"])
	}
}

func TestAnthropicDefaultMaxTokens(t *testing.T) {
	a := &anthropicAdapter{backend: testBackend(model.WireFormatAnthropic, "https://api.anthropic.example")}
	m := testModel()
	m.MaxTokens = 0

	wr, err := a.buildRequest(m, &model.CompletionRequest{Prompt: "hi"}, false)
	if err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(wr.Body, &body); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	if body["max_tokens"].(float64) != anthropicDefaultMaxTokens {
		t.Errorf("expected fallback max_tokens, got %v", body["max_tokens"])
	}
}

func TestAnthropicParse(t *testing.T) {
	a := &anthropicAdapter{backend: testBackend(model.WireFormatAnthropic, "https://api.anthropic.example")}

	raw := []byte(`{
		"content": [{"type": "text", "text": "answer"}],
		"stop_reason": "max_tokens",
		"usage": {"input_tokens": 12, "output_tokens": 8}
	}`)

	resp, err := a.parse(testModel(), raw, 50)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if resp.Content != "answer" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.FinishReason != model.FinishReasonLength {
		t.Errorf("unexpected finish reason: %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Errorf("total tokens should be derived, got %d", resp.Usage.TotalTokens)
	}
}

func TestAnthropicParseMissingContent(t *testing.T) {
	a := &anthropicAdapter{backend: testBackend(model.WireFormatAnthropic, "https://api.anthropic.example")}
	_, err := a.parse(testModel(), []byte(`{"type":"message","content":[]}`), 1)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestAnthropicCompleteStream(t *testing.T) {
	events := []string{
		"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":9}}}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"foo\"}}\n\n",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"bar\"}}\n\n",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":4}}\n\n",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			_, _ = w.Write([]byte(ev))
		}
	}))
	defer server.Close()

	a := &anthropicAdapter{backend: testBackend(model.WireFormatAnthropic, server.URL), client: server.Client()}

	resp, err := a.CompleteStream(context.Background(), testModel(), &model.CompletionRequest{Prompt: "hi"}, nil)
	if err != nil {
		t.Fatalf("CompleteStream failed: %v", err)
	}
	if resp.Content != "foobar" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 9 || resp.Usage.CompletionTokens != 4 || resp.Usage.TotalTokens != 13 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}
