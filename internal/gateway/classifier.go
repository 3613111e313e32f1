package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"llmgateway/internal/adapter"
	"llmgateway/internal/model"
)

// ClassifyFailure 将一次失败归类到封闭的原因枚举
// 先做类型判断，再按固定优先级做小写子串匹配：
// rate_limit → quota_exceeded → timeout → model_not_found → 兜底 error
func ClassifyFailure(err error) model.FailureReason {
	if err == nil {
		return model.FailureReasonError
	}

	var statusErr *adapter.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return model.FailureReasonRateLimit
	}
	if errors.Is(err, adapter.ErrContentBlocked) {
		return model.FailureReasonContentFilter
	}
	if errors.Is(err, adapter.ErrInvalidResponse) {
		return model.FailureReasonInvalidResponse
	}
	var timeoutErr *adapter.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return model.FailureReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return model.FailureReasonRateLimit
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing") ||
		strings.Contains(msg, "insufficient credit"):
		return model.FailureReasonQuotaExceeded
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return model.FailureReasonTimeout
	case strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist"):
		return model.FailureReasonModelNotFound
	default:
		return model.FailureReasonError
	}
}
