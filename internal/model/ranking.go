package model

import "time"

// DefaultQualityScore 未收到人工反馈时的默认质量分
const DefaultQualityScore = 0.5

// Ranking 模型的综合排名，与 Model 一一对应
// 首次重算时惰性创建，模型存在期间只更新不删除
type Ranking struct {
	ModelID      string    `json:"modelId"`
	SuccessRate  float64   `json:"successRate"`
	AvgLatencyMs float64   `json:"avgLatencyMs"`
	QualityScore float64   `json:"qualityScore"`
	Score        float64   `json:"score"`
	SampleSize   int64     `json:"sampleSize"`
	CalculatedAt time.Time `json:"calculatedAt"`
}
