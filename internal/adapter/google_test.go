package adapter

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"llmgateway/internal/model"
)

func TestGoogleBuildRequest(t *testing.T) {
	a := &googleAdapter{backend: testBackend(model.WireFormatGoogle, "https://generativelanguage.example")}

	wr, err := a.buildRequest(testModel(), &model.CompletionRequest{
		Prompt:       "question",
		SystemPrompt: "context",
	}, false)
	if err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}

	want := "https://generativelanguage.example/v1beta/models/test-model:generateContent?key=sk-test"
	if wr.URL != want {
		t.Errorf("unexpected url: %s", wr.URL)
	}
	// credential travels in the query string, never in headers
	if got := wr.Headers.Get("Authorization"); got != "" {
		t.Errorf("google must not send Authorization, got %s", got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(wr.Body, &body); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	contents := body["contents"].([]interface{})
	part := contents[0].(map[string]interface{})["parts"].([]interface{})[0].(map[string]interface{})
	if part["text"] != "context\n\nquestion" {
		t.Errorf("system prompt not prepended: %v", part["text"])
	}
	safety := body["safetySettings"].([]interface{})
	if len(safety) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(safety))
	}
	for _, s := range safety {
		if s.(map[string]interface{})["threshold"] != "BLOCK_NONE" {
			t.Errorf("unexpected threshold: %v", s)
		}
	}
}

func TestGoogleBuildStreamURL(t *testing.T) {
	a := &googleAdapter{backend: testBackend(model.WireFormatGoogle, "https://generativelanguage.example/")}

	wr, err := a.buildRequest(testModel(), &model.CompletionRequest{Prompt: "hi"}, true)
	if err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}
	if !strings.Contains(wr.URL, ":streamGenerateContent?alt=sse&key=sk-test") {
		t.Errorf("unexpected stream url: %s", wr.URL)
	}
}

func TestGoogleParse(t *testing.T) {
	a := &googleAdapter{backend: testBackend(model.WireFormatGoogle, "https://generativelanguage.example")}

	raw := []byte(`{
		"candidates": [{"content": {"parts": [{"text": "result"}]}, "finishReason": "MAX_TOKENS"}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
	}`)

	resp, err := a.parse(testModel(), raw, 10)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if resp.Content != "result" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.FinishReason != model.FinishReasonLength {
		t.Errorf("unexpected finish reason: %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
}

func TestGoogleParseSafetyBlocked(t *testing.T) {
	a := &googleAdapter{backend: testBackend(model.WireFormatGoogle, "https://generativelanguage.example")}

	raw := []byte(`{"candidates": [{"finishReason": "SAFETY"}]}`)
	_, err := a.parse(testModel(), raw, 1)
	if !errors.Is(err, ErrContentBlocked) {
		t.Fatalf("expected ErrContentBlocked, got %v", err)
	}

	raw = []byte(`{"promptFeedback": {"blockReason": "SAFETY"}}`)
	_, err = a.parse(testModel(), raw, 1)
	if !errors.Is(err, ErrContentBlocked) {
		t.Fatalf("expected ErrContentBlocked for prompt feedback, got %v", err)
	}
}
