// Package ranking 根据观测到的成功率、延迟和人工质量分计算模型的综合得分。
package ranking

import (
	"fmt"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"llmgateway/internal/model"
	"llmgateway/internal/repository"
)

const (
	// latencyCapMs 参与打分的延迟上限
	latencyCapMs = 10000
	// recalcInterval 每记录多少次调用触发一次完整重算
	recalcInterval = 100
)

// Weights 打分权重，可调整，不要求和为 1
type Weights struct {
	Success float64 `json:"success"`
	Latency float64 `json:"latency"`
	Quality float64 `json:"quality"`
}

func DefaultWeights() Weights {
	return Weights{Success: 0.4, Latency: 0.3, Quality: 0.3}
}

// modelStats 进程内的延迟累计与重算触发计数
type modelStats struct {
	latencySumMs int64
	latencyCount int64
	sinceRecalc  int
}

type Engine struct {
	rankingRepo repository.RankingRepositoryInterface
	usageRepo   repository.UsageRepositoryInterface
	modelRepo   repository.ModelRepositoryInterface

	mu      sync.Mutex
	weights Weights
	stats   map[string]*modelStats

	now func() time.Time
}

func NewEngine(
	rankingRepo repository.RankingRepositoryInterface,
	usageRepo repository.UsageRepositoryInterface,
	modelRepo repository.ModelRepositoryInterface,
) *Engine {
	return &Engine{
		rankingRepo: rankingRepo,
		usageRepo:   usageRepo,
		modelRepo:   modelRepo,
		weights:     DefaultWeights(),
		stats:       make(map[string]*modelStats),
		now:         time.Now,
	}
}

func (e *Engine) Weights() Weights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

func (e *Engine) SetWeights(w Weights) {
	e.mu.Lock()
	e.weights = w
	e.mu.Unlock()
}

// ComputeScore 综合得分，保留三位小数以便稳定比较和展示
func (e *Engine) ComputeScore(successRate, avgLatencyMs, qualityScore float64) float64 {
	w := e.Weights()

	latencyRatio := avgLatencyMs / latencyCapMs
	if latencyRatio > 1 {
		latencyRatio = 1
	}

	score := successRate*w.Success + (1-latencyRatio)*w.Latency + qualityScore*w.Quality
	return math.Round(score*1000) / 1000
}

// TrackCall 记录一次调用样本，每 recalcInterval 次触发一次完整重算
func (e *Engine) TrackCall(modelID string, success bool, latencyMs int64) {
	e.mu.Lock()
	st, ok := e.stats[modelID]
	if !ok {
		st = &modelStats{}
		e.stats[modelID] = st
	}
	st.latencySumMs += latencyMs
	st.latencyCount++
	st.sinceRecalc++
	trigger := st.sinceRecalc >= recalcInterval
	if trigger {
		st.sinceRecalc = 0
	}
	e.mu.Unlock()

	if trigger {
		if err := e.RecalculateForModel(modelID); err != nil {
			log.Warnf("ranking: periodic recalculation for model %s failed: %v", modelID, err)
		}
	}
}

// avgLatency 返回进程内累计的平均延迟，无样本时返回 fallback
func (e *Engine) avgLatency(modelID string, fallback float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.stats[modelID]; ok && st.latencyCount > 0 {
		return float64(st.latencySumMs) / float64(st.latencyCount)
	}
	return fallback
}

// RecalculateForModel 从累计用量重算模型排名
// 无调用记录时不做任何事：未使用的模型永远不会产生排名
func (e *Engine) RecalculateForModel(modelID string) error {
	usage, err := e.usageRepo.Get(model.EntityModel, modelID)
	if err != nil {
		return fmt.Errorf("load usage for model %s: %w", modelID, err)
	}
	if usage == nil || usage.TotalCalls == 0 {
		return nil
	}

	existing, err := e.rankingRepo.GetByModelID(modelID)
	if err != nil {
		return fmt.Errorf("load ranking for model %s: %w", modelID, err)
	}

	quality := model.DefaultQualityScore
	var latencyFallback float64
	if existing != nil {
		quality = existing.QualityScore
		latencyFallback = existing.AvgLatencyMs
	}

	successRate := float64(usage.TotalSuccesses) / float64(usage.TotalCalls)
	avgLatencyMs := e.avgLatency(modelID, latencyFallback)

	ranking := &model.Ranking{
		ModelID:      modelID,
		SuccessRate:  successRate,
		AvgLatencyMs: avgLatencyMs,
		QualityScore: quality,
		Score:        e.ComputeScore(successRate, avgLatencyMs, quality),
		SampleSize:   usage.TotalCalls,
		CalculatedAt: e.now(),
	}
	if err := e.rankingRepo.Upsert(ranking); err != nil {
		return fmt.Errorf("upsert ranking for model %s: %w", modelID, err)
	}

	log.Debugf("ranking: model %s -> score %.3f (success=%.3f latency=%.0fms quality=%.2f samples=%d)",
		modelID, ranking.Score, successRate, avgLatencyMs, quality, usage.TotalCalls)
	return nil
}

// RecalculateAll 遍历所有启用且有用量的模型重算排名
func (e *Engine) RecalculateAll() error {
	details, err := e.modelRepo.ListEnabledDetailed()
	if err != nil {
		return err
	}
	for _, detail := range details {
		if err := e.RecalculateForModel(detail.Model.ID); err != nil {
			log.Warnf("ranking: recalculation for model %s failed: %v", detail.Model.ID, err)
		}
	}
	return nil
}

// SetQualityScore 写入人工质量分并立即重算综合得分
// 使用已存储的成功率和样本量，不需要新流量
func (e *Engine) SetQualityScore(modelID string, quality float64) error {
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}

	existing, err := e.rankingRepo.GetByModelID(modelID)
	if err != nil {
		return err
	}
	if existing == nil {
		existing = &model.Ranking{ModelID: modelID}
	}

	existing.QualityScore = quality
	existing.Score = e.ComputeScore(existing.SuccessRate, existing.AvgLatencyMs, quality)
	existing.CalculatedAt = e.now()
	return e.rankingRepo.Upsert(existing)
}
