// Package selector 从后端/模型目录中产出当前可用的候选列表。
// 过滤禁用、无密钥或已限流的条目，按排名得分排序。
package selector

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"llmgateway/internal/model"
	"llmgateway/internal/repository"
)

var (
	ErrModelNotFound     = errors.New("模型不存在")
	ErrBackendNotFound   = errors.New("后端不存在")
	ErrModelNotAvailable = errors.New("模型当前不可用")
	ErrNoAvailableModels = errors.New("没有可用的模型")
)

// Gate 限流准入检查，由 ratelimit.Tracker 实现
type Gate interface {
	CanUse(entityType model.EntityType, entityID string, rpmLimit, rpdLimit *int) bool
}

// Candidate 某一时刻可被选择的（模型, 后端）组合
type Candidate struct {
	Model   *model.Model
	Backend *model.Backend
	Score   float64
}

type Selector struct {
	backendRepo repository.BackendRepositoryInterface
	modelRepo   repository.ModelRepositoryInterface
	gate        Gate
}

func New(
	backendRepo repository.BackendRepositoryInterface,
	modelRepo repository.ModelRepositoryInterface,
	gate Gate,
) *Selector {
	return &Selector{
		backendRepo: backendRepo,
		modelRepo:   modelRepo,
		gate:        gate,
	}
}

// AvailableModels 返回全部可用候选，按得分降序
// 平分时先看模型的默认标记，再看后端优先级数值（小者优先）
func (s *Selector) AvailableModels() ([]*Candidate, error) {
	details, err := s.modelRepo.ListEnabledDetailed()
	if err != nil {
		return nil, err
	}

	var candidates []*Candidate
	for _, detail := range details {
		b := detail.Backend
		m := detail.Model
		if !b.HasCredential() {
			continue
		}
		if !s.gate.CanUse(model.EntityBackend, b.ID, b.RPMLimit, b.RPDLimit) {
			continue
		}
		if !s.gate.CanUse(model.EntityModel, m.ID, m.RPMLimit, m.RPDLimit) {
			continue
		}
		candidates = append(candidates, &Candidate{Model: m, Backend: b, Score: detail.Score()})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Model.IsDefault != candidates[j].Model.IsDefault {
			return candidates[i].Model.IsDefault
		}
		return candidates[i].Backend.Priority < candidates[j].Backend.Priority
	})

	return candidates, nil
}

// NextModel 返回排序列表中第一个不在排除集里的候选，穷尽时返回 nil
func (s *Selector) NextModel(excludeIDs map[string]bool) (*Candidate, error) {
	candidates, err := s.AvailableModels()
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if !excludeIDs[c.Model.ID] {
			return c, nil
		}
	}
	return nil, nil
}

// SelectBestModel 按指定条件选择候选：
// 给定 modelID 时直接解析并校验，不参考排名列表；
// 给定 backendID 时在该后端内选择；否则取全局排名首位。
func (s *Selector) SelectBestModel(backendID, modelID string) (*Candidate, error) {
	if modelID != "" {
		return s.selectByModelRef(modelID)
	}
	if backendID != "" {
		return s.selectWithinBackend(backendID)
	}

	candidates, err := s.AvailableModels()
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoAvailableModels
	}
	return candidates[0], nil
}

// resolveModelRef 解析模型引用：裸内部 id、"slug:model" 或 "slug/model"
// 冒号与斜杠同时出现且冒号在前时，按冒号拆分
func (s *Selector) resolveModelRef(ref string) (*model.Model, error) {
	colon := strings.Index(ref, ":")
	slash := strings.Index(ref, "/")

	var slug, name string
	switch {
	case colon >= 0 && (slash < 0 || colon < slash):
		slug, name = ref[:colon], ref[colon+1:]
	case slash >= 0:
		slug, name = ref[:slash], ref[slash+1:]
	default:
		return s.modelRepo.GetByID(ref)
	}

	backend, err := s.backendRepo.GetBySlug(slug)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, nil
	}
	return s.modelRepo.GetByName(backend.ID, name)
}

func (s *Selector) selectByModelRef(ref string) (*Candidate, error) {
	m, err := s.resolveModelRef(ref)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, ref)
	}
	if !m.Enabled {
		return nil, fmt.Errorf("%w: 模型 %s 已禁用", ErrModelNotAvailable, m.Name)
	}

	backend, err := s.backendRepo.GetByID(m.BackendID)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, m.BackendID)
	}
	if !backend.Enabled || !backend.HasCredential() {
		return nil, fmt.Errorf("%w: 后端 %s 已禁用或未配置密钥", ErrModelNotAvailable, backend.Name)
	}
	if !s.gate.CanUse(model.EntityBackend, backend.ID, backend.RPMLimit, backend.RPDLimit) ||
		!s.gate.CanUse(model.EntityModel, m.ID, m.RPMLimit, m.RPDLimit) {
		return nil, fmt.Errorf("%w: 模型 %s 已限流", ErrModelNotAvailable, m.Name)
	}

	return &Candidate{Model: m, Backend: backend}, nil
}

func (s *Selector) selectWithinBackend(backendID string) (*Candidate, error) {
	backend, err := s.backendRepo.GetByID(backendID)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		// 兼容按 slug 指定后端
		backend, err = s.backendRepo.GetBySlug(backendID)
		if err != nil {
			return nil, err
		}
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, backendID)
	}
	if !backend.Enabled || !backend.HasCredential() {
		return nil, fmt.Errorf("%w: 后端 %s 已禁用或未配置密钥", ErrModelNotAvailable, backend.Name)
	}
	if !s.gate.CanUse(model.EntityBackend, backend.ID, backend.RPMLimit, backend.RPDLimit) {
		return nil, fmt.Errorf("%w: 后端 %s 已限流", ErrModelNotAvailable, backend.Name)
	}

	// 默认模型排在前面
	models, err := s.modelRepo.ListEnabledByBackend(backend.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if s.gate.CanUse(model.EntityModel, m.ID, m.RPMLimit, m.RPDLimit) {
			return &Candidate{Model: m, Backend: backend}, nil
		}
	}
	return nil, fmt.Errorf("%w: 后端 %s", ErrNoAvailableModels, backend.Name)
}
