// Package gateway 实现补全请求的调度与故障转移。
// 每个请求独立运行一个有界重试循环：向选择器要下一个未尝试过的候选，
// 通过协议适配层发起调用，把结果记入限流计数和排名引擎，失败则分类后继续。
package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"llmgateway/internal/adapter"
	"llmgateway/internal/model"
	"llmgateway/internal/ranking"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/repository"
	"llmgateway/internal/selector"
)

// defaultMaxAttempts 单个请求的故障转移尝试上限
const defaultMaxAttempts = 30

// ModelSelector 候选选择，由 selector.Selector 实现
type ModelSelector interface {
	NextModel(excludeIDs map[string]bool) (*selector.Candidate, error)
	SelectBestModel(backendID, modelID string) (*selector.Candidate, error)
}

// AdapterFactory 按后端取协议适配器，由 adapter.Factory 实现
type AdapterFactory interface {
	For(b *model.Backend) adapter.Adapter
}

// UsageTracker 用量记录，由 ratelimit.Tracker 实现
type UsageTracker interface {
	Track(o ratelimit.Outcome)
}

// RankingFeed 排名样本记录，由 ranking.Engine 实现
type RankingFeed interface {
	TrackCall(modelID string, success bool, latencyMs int64)
}

var _ ModelSelector = (*selector.Selector)(nil)
var _ AdapterFactory = (*adapter.Factory)(nil)
var _ UsageTracker = (*ratelimit.Tracker)(nil)
var _ RankingFeed = (*ranking.Engine)(nil)

// ExhaustionError 候选穷尽或尝试次数用完时返回的聚合错误
// Attempts 区分"完全无候选"（1，无实际网络调用）和"所有候选都失败"（实际次数）
type ExhaustionError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("补全在 %d 次尝试后失败: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustionError) Unwrap() error {
	return e.LastErr
}

type Orchestrator struct {
	selector    ModelSelector
	adapters    AdapterFactory
	tracker     UsageTracker
	ranking     RankingFeed
	events      repository.FailoverEventRepositoryInterface
	maxAttempts int
}

func NewOrchestrator(
	sel ModelSelector,
	adapters AdapterFactory,
	tracker UsageTracker,
	rankingFeed RankingFeed,
	events repository.FailoverEventRepositoryInterface,
) *Orchestrator {
	return &Orchestrator{
		selector:    sel,
		adapters:    adapters,
		tracker:     tracker,
		ranking:     rankingFeed,
		events:      events,
		maxAttempts: defaultMaxAttempts,
	}
}

// Complete 自由选择入口：运行完整的故障转移循环
func (o *Orchestrator) Complete(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	return o.run(ctx, req, nil)
}

// CompleteStream 流式入口：同样的故障转移循环，逐 token 转发给 onToken
func (o *Orchestrator) CompleteStream(ctx context.Context, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
	return o.run(ctx, req, onToken)
}

// CompleteWithBackend 指定后端入口：单次尝试，失败立即上抛
func (o *Orchestrator) CompleteWithBackend(ctx context.Context, backendID string, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	ensureRequestID(req)

	cand, err := o.selector.SelectBestModel(backendID, "")
	if err != nil {
		return nil, fmt.Errorf("后端 %s: %w", backendID, err)
	}
	resp, err := o.attempt(ctx, cand, req, nil)
	if err != nil {
		o.recordOutcome(cand, false, 0, 0)
		return nil, fmt.Errorf("后端 %s: %w", cand.Backend.Name, err)
	}
	o.recordOutcome(cand, true, int64(resp.Usage.TotalTokens), resp.LatencyMs)
	resp.RequestID = req.RequestID
	return resp, nil
}

// CompleteWithModel 指定模型入口：单次尝试，失败立即上抛
func (o *Orchestrator) CompleteWithModel(ctx context.Context, modelID string, req *model.CompletionRequest) (*model.CompletionResponse, error) {
	ensureRequestID(req)

	cand, err := o.selector.SelectBestModel("", modelID)
	if err != nil {
		return nil, fmt.Errorf("模型 %s: %w", modelID, err)
	}
	resp, err := o.attempt(ctx, cand, req, nil)
	if err != nil {
		o.recordOutcome(cand, false, 0, 0)
		return nil, fmt.Errorf("模型 %s: %w", cand.Model.Name, err)
	}
	o.recordOutcome(cand, true, int64(resp.Usage.TotalTokens), resp.LatencyMs)
	resp.RequestID = req.RequestID
	return resp, nil
}

// run 有界重试状态机
func (o *Orchestrator) run(ctx context.Context, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
	ensureRequestID(req)

	attempted := make(map[string]bool)
	var lastErr error
	var prevModelID string
	attempts := 0

	for attempts < o.maxAttempts {
		// 调用方取消时跳过后续尝试
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}

		cand, err := o.selector.NextModel(attempted)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			break
		}

		attempts++
		attempted[cand.Model.ID] = true

		resp, err := o.attempt(ctx, cand, req, onToken)
		if err == nil {
			o.recordOutcome(cand, true, int64(resp.Usage.TotalTokens), resp.LatencyMs)
			resp.RequestID = req.RequestID
			return resp, nil
		}

		lastErr = err
		o.recordOutcome(cand, false, 0, 0)
		o.recordFailover(prevModelID, cand, err)
		prevModelID = cand.Model.ID
	}

	if attempts == 0 {
		// 一个候选都没有：也算一次尝试计量，但没有发生任何网络调用
		if lastErr == nil {
			lastErr = selector.ErrNoAvailableModels
		}
		return nil, &ExhaustionError{Attempts: 1, LastErr: lastErr}
	}
	return nil, &ExhaustionError{Attempts: attempts, LastErr: lastErr}
}

func (o *Orchestrator) attempt(ctx context.Context, cand *selector.Candidate, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error) {
	a := o.adapters.For(cand.Backend)
	if onToken != nil {
		return a.CompleteStream(ctx, cand.Model, req, onToken)
	}
	return a.Complete(ctx, cand.Model, req)
}

// recordOutcome 成功失败都消耗后端与模型的配额；失败样本延迟记 0
func (o *Orchestrator) recordOutcome(cand *selector.Candidate, success bool, tokens, latencyMs int64) {
	o.tracker.Track(ratelimit.Outcome{
		BackendID: cand.Backend.ID,
		ModelID:   cand.Model.ID,
		Success:   success,
		Tokens:    tokens,
	})
	o.ranking.TrackCall(cand.Model.ID, success, latencyMs)
}

func (o *Orchestrator) recordFailover(prevModelID string, cand *selector.Candidate, err error) {
	reason := ClassifyFailure(err)

	event := &model.FailoverEvent{
		Reason:       reason,
		ErrorMessage: err.Error(),
	}
	if prevModelID != "" {
		event.FromModelID = &prevModelID
	}
	toModelID := cand.Model.ID
	event.ToModelID = &toModelID

	if appendErr := o.events.Append(event); appendErr != nil {
		log.Errorf("gateway: failed to append failover event: %v", appendErr)
	}
	log.Warnf("gateway: attempt on model %s (%s) failed, reason=%s: %v",
		cand.Model.Name, cand.Backend.Name, reason, err)
}

func ensureRequestID(req *model.CompletionRequest) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
}
