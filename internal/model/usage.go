package model

import "time"

// EntityType 用量计数的归属实体类型
type EntityType string

const (
	EntityBackend EntityType = "backend"
	EntityModel   EntityType = "model"
)

// Usage 滚动用量计数，后端和模型各一行
// 热路径上唯一被修改的实体，内存缓存与持久层之间最终一致
type Usage struct {
	EntityType         EntityType `json:"entityType"`
	EntityID           string     `json:"entityId"`
	RequestsToday      int64      `json:"requestsToday"`
	RequestsThisMinute int64      `json:"requestsThisMinute"`
	LastRequestAt      *time.Time `json:"lastRequestAt,omitempty"`
	MinuteWindowStart  time.Time  `json:"minuteWindowStart"`
	DayWindowStart     time.Time  `json:"dayWindowStart"`
	TotalTokens        int64      `json:"totalTokens"`
	TotalCalls         int64      `json:"totalCalls"`
	TotalSuccesses     int64      `json:"totalSuccesses"`
	TotalFailures      int64      `json:"totalFailures"`
}

// UTCMidnight 返回 t 所在日期的 UTC 零点
func UTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
