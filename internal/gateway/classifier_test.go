package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"llmgateway/internal/adapter"
	"llmgateway/internal/model"
)

func TestClassifyFailureTyped(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.FailureReason
	}{
		{"429 status", &adapter.StatusError{StatusCode: 429, Body: "slow down"}, model.FailureReasonRateLimit},
		{"wrapped 429", fmt.Errorf("call failed: %w", &adapter.StatusError{StatusCode: 429}), model.FailureReasonRateLimit},
		{"content blocked", fmt.Errorf("%w: SAFETY", adapter.ErrContentBlocked), model.FailureReasonContentFilter},
		{"invalid response", fmt.Errorf("%w: missing field", adapter.ErrInvalidResponse), model.FailureReasonInvalidResponse},
		{"timeout error", &adapter.TimeoutError{Timeout: 30 * time.Second}, model.FailureReasonTimeout},
		{"deadline exceeded", context.DeadlineExceeded, model.FailureReasonTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailure(tc.err); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyFailureSubstrings(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want model.FailureReason
	}{
		{"rate limit text", errors.New("Rate limit exceeded for requests"), model.FailureReasonRateLimit},
		{"too many requests", errors.New("too many requests"), model.FailureReasonRateLimit},
		{"quota", errors.New("You exceeded your current quota"), model.FailureReasonQuotaExceeded},
		{"billing", errors.New("billing hard limit reached"), model.FailureReasonQuotaExceeded},
		{"timed out", errors.New("request timed out"), model.FailureReasonTimeout},
		{"model missing", errors.New("the model `gpt-x` does not exist"), model.FailureReasonModelNotFound},
		{"not found", errors.New("model not found"), model.FailureReasonModelNotFound},
		{"generic", errors.New("connection reset by peer"), model.FailureReasonError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailure(tc.err); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyFailurePriority(t *testing.T) {
	// 同时命中多类关键字时按固定优先级归类
	err := errors.New("rate limit reached because quota exhausted, request timed out")
	if got := ClassifyFailure(err); got != model.FailureReasonRateLimit {
		t.Errorf("rate_limit must win, got %s", got)
	}

	err = errors.New("quota exhausted, request timed out")
	if got := ClassifyFailure(err); got != model.FailureReasonQuotaExceeded {
		t.Errorf("quota_exceeded must beat timeout, got %s", got)
	}

	err = errors.New("timed out while checking if model exists; model not found")
	if got := ClassifyFailure(err); got != model.FailureReasonTimeout {
		t.Errorf("timeout must beat model_not_found, got %s", got)
	}
}
