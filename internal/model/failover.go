package model

import "time"

// FailureReason 故障转移原因的封闭枚举
type FailureReason string

const (
	FailureReasonRateLimit       FailureReason = "rate_limit"
	FailureReasonQuotaExceeded   FailureReason = "quota_exceeded"
	FailureReasonTimeout         FailureReason = "timeout"
	FailureReasonModelNotFound   FailureReason = "model_not_found"
	FailureReasonContentFilter   FailureReason = "content_filter"
	FailureReasonInvalidResponse FailureReason = "invalid_response"
	FailureReasonError           FailureReason = "error"
)

// FailoverEvent 故障转移事件，只追加不修改
type FailoverEvent struct {
	ID           string        `json:"id"`
	FromModelID  *string       `json:"fromModelId,omitempty"`
	ToModelID    *string       `json:"toModelId,omitempty"`
	Reason       FailureReason `json:"reason"`
	ErrorMessage string        `json:"errorMessage"`
	LatencyMs    *int64        `json:"latencyMs,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
