package model

import "time"

// Model 后端提供的某个具体模型
// BackendID 创建后不可变更
type Model struct {
	ID              string    `json:"id"`
	BackendID       string    `json:"backendId"`
	Name            string    `json:"name"`
	DisplayName     string    `json:"displayName,omitempty"`
	RPMLimit        *int      `json:"rpmLimit,omitempty"`
	RPDLimit        *int      `json:"rpdLimit,omitempty"`
	InputCostPer1K  float64   `json:"inputCostPer1k"`
	OutputCostPer1K float64   `json:"outputCostPer1k"`
	MaxTokens       int       `json:"maxTokens"`
	ContextWindow   int       `json:"contextWindow"`
	Enabled         bool      `json:"enabled"`
	IsDefault       bool      `json:"isDefault"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ModelDetail 模型 + 所属后端 + 排名的联合读取结果
// 由仓储层一次性联表查出，供选择器使用
type ModelDetail struct {
	Model   *Model
	Backend *Backend
	Ranking *Ranking
}

// Score 返回排名分数，无排名记录视为 0
func (d *ModelDetail) Score() float64 {
	if d.Ranking == nil {
		return 0
	}
	return d.Ranking.Score
}
