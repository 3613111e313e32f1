package adapter

import (
	"encoding/json"
	"errors"
	"testing"

	"llmgateway/internal/model"
)

func TestCustomBuildRequestMergesExtra(t *testing.T) {
	a := &customAdapter{backend: testBackend(model.WireFormatCustom, "https://selfhosted.example/generate")}

	wr, err := a.buildRequest(testModel(), &model.CompletionRequest{
		Prompt: "hi",
		Extra: map[string]interface{}{
			"repetition_penalty": 1.2,
			"temperature":        0.9, // overrides the built-in default
		},
	}, false)
	if err != nil {
		t.Fatalf("buildRequest failed: %v", err)
	}

	if wr.URL != "https://selfhosted.example/generate" {
		t.Errorf("base url must be used as the complete endpoint, got %s", wr.URL)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(wr.Body, &body); err != nil {
		t.Fatalf("body is not valid json: %v", err)
	}
	if body["repetition_penalty"].(float64) != 1.2 {
		t.Errorf("extra field not merged: %v", body["repetition_penalty"])
	}
	if body["temperature"].(float64) != 0.9 {
		t.Errorf("extra field should override built-in value: %v", body["temperature"])
	}
}

func TestCustomParseFieldFallback(t *testing.T) {
	a := &customAdapter{backend: testBackend(model.WireFormatCustom, "https://selfhosted.example/generate")}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"content", `{"content": "a"}`, "a"},
		{"text", `{"text": "b"}`, "b"},
		{"response", `{"response": "c"}`, "c"},
		{"output", `{"output": "d"}`, "d"},
		{"openai shape", `{"choices": [{"message": {"content": "e"}}]}`, "e"},
		{"content wins over text", `{"text": "lose", "content": "win"}`, "win"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := a.parse(testModel(), []byte(tc.raw), 1)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if resp.Content != tc.want {
				t.Errorf("got %q, want %q", resp.Content, tc.want)
			}
		})
	}
}

func TestCustomParseNoKnownField(t *testing.T) {
	a := &customAdapter{backend: testBackend(model.WireFormatCustom, "https://selfhosted.example/generate")}

	_, err := a.parse(testModel(), []byte(`{"status": "ok", "content": 5}`), 1)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
}
