// Package bootstrap 在进程启动时从目录文件播种后端与模型配置。
// 文件是声明式的：按 slug/name 比对，已存在则更新，不存在则创建。
// 文件中未出现的条目保持原样，不做删除。
package bootstrap

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"llmgateway/internal/model"
	"llmgateway/internal/repository"
)

// AdapterInvalidator 配置变更后丢弃缓存的适配器，由 adapter.Factory 实现
type AdapterInvalidator interface {
	Invalidate(backendID string)
}

// Catalog 目录文件的顶层结构
type Catalog struct {
	Backends []BackendEntry `json:"backends"`
}

type BackendEntry struct {
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	BaseURL    string            `json:"baseUrl"`
	APIKey     string            `json:"apiKey"`
	APIKeyEnv  string            `json:"apiKeyEnv"`
	Format     string            `json:"format"`
	AuthHeader string            `json:"authHeader"`
	AuthPrefix string            `json:"authPrefix"`
	Headers    map[string]string `json:"headers"`
	RPMLimit   *int              `json:"rpmLimit"`
	RPDLimit   *int              `json:"rpdLimit"`
	Priority   int               `json:"priority"`
	Disabled   bool              `json:"disabled"`
	Models     []ModelEntry      `json:"models"`
}

type ModelEntry struct {
	Name            string  `json:"name"`
	DisplayName     string  `json:"displayName"`
	RPMLimit        *int    `json:"rpmLimit"`
	RPDLimit        *int    `json:"rpdLimit"`
	InputCostPer1K  float64 `json:"inputCostPer1k"`
	OutputCostPer1K float64 `json:"outputCostPer1k"`
	MaxTokens       int     `json:"maxTokens"`
	ContextWindow   int     `json:"contextWindow"`
	IsDefault       bool    `json:"isDefault"`
	Disabled        bool    `json:"disabled"`
}

// apiKey 密钥优先取自环境变量引用，便于把目录文件提交进版本库
func (e *BackendEntry) apiKey() string {
	if e.APIKeyEnv != "" {
		if v := os.Getenv(e.APIKeyEnv); v != "" {
			return v
		}
	}
	return e.APIKey
}

func (e *BackendEntry) headersJSON() (string, error) {
	if len(e.Headers) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(e.Headers)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// LoadFile 读取并校验目录文件
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var catalog Catalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	for i, b := range catalog.Backends {
		if b.Slug == "" || b.BaseURL == "" {
			return nil, fmt.Errorf("catalog backend %d: slug 与 baseUrl 必填", i)
		}
		for j, m := range b.Models {
			if m.Name == "" {
				return nil, fmt.Errorf("catalog backend %s model %d: name 必填", b.Slug, j)
			}
		}
	}
	return &catalog, nil
}

type Seeder struct {
	backendRepo repository.BackendRepositoryInterface
	modelRepo   repository.ModelRepositoryInterface
	invalidator AdapterInvalidator
}

func NewSeeder(
	backendRepo repository.BackendRepositoryInterface,
	modelRepo repository.ModelRepositoryInterface,
	invalidator AdapterInvalidator,
) *Seeder {
	return &Seeder{
		backendRepo: backendRepo,
		modelRepo:   modelRepo,
		invalidator: invalidator,
	}
}

// Apply 把目录内容合入持久层，返回创建与更新的条目数
func (s *Seeder) Apply(catalog *Catalog) (created, updated int, err error) {
	for i := range catalog.Backends {
		entry := &catalog.Backends[i]
		c, u, err := s.applyBackend(entry)
		if err != nil {
			return created, updated, err
		}
		created += c
		updated += u
	}
	return created, updated, nil
}

func (s *Seeder) applyBackend(entry *BackendEntry) (created, updated int, err error) {
	headersJSON, err := entry.headersJSON()
	if err != nil {
		return 0, 0, fmt.Errorf("backend %s: marshal headers: %w", entry.Slug, err)
	}

	existing, err := s.backendRepo.GetBySlug(entry.Slug)
	if err != nil {
		return 0, 0, fmt.Errorf("backend %s: %w", entry.Slug, err)
	}

	b := existing
	if b == nil {
		b = &model.Backend{Slug: entry.Slug}
	}
	b.Name = entry.Name
	if b.Name == "" {
		b.Name = entry.Slug
	}
	b.BaseURL = entry.BaseURL
	b.APIKey = entry.apiKey()
	b.Format = model.WireFormat(entry.Format)
	if b.Format == "" {
		b.Format = model.WireFormatOpenAI
	}
	b.AuthHeader = entry.AuthHeader
	b.AuthPrefix = entry.AuthPrefix
	b.HeadersJSON = headersJSON
	b.RPMLimit = entry.RPMLimit
	b.RPDLimit = entry.RPDLimit
	b.Priority = entry.Priority
	b.Enabled = !entry.Disabled

	if existing == nil {
		if err := s.backendRepo.Create(b); err != nil {
			return 0, 0, fmt.Errorf("backend %s: %w", entry.Slug, err)
		}
		created++
		log.Infof("bootstrap: 创建后端 %s (%s)", b.Slug, b.Format)
	} else {
		if err := s.backendRepo.Update(b); err != nil {
			return created, updated, fmt.Errorf("backend %s: %w", entry.Slug, err)
		}
		updated++
		// 配置可能已变化，丢弃缓存的适配器
		s.invalidator.Invalidate(b.ID)
		log.Infof("bootstrap: 更新后端 %s", b.Slug)
	}

	for j := range entry.Models {
		c, u, err := s.applyModel(b.ID, &entry.Models[j])
		if err != nil {
			return created, updated, fmt.Errorf("backend %s: %w", entry.Slug, err)
		}
		created += c
		updated += u
	}
	return created, updated, nil
}

func (s *Seeder) applyModel(backendID string, entry *ModelEntry) (created, updated int, err error) {
	existing, err := s.modelRepo.GetByName(backendID, entry.Name)
	if err != nil {
		return 0, 0, fmt.Errorf("model %s: %w", entry.Name, err)
	}

	m := existing
	if m == nil {
		m = &model.Model{BackendID: backendID, Name: entry.Name}
	}
	m.DisplayName = entry.DisplayName
	m.RPMLimit = entry.RPMLimit
	m.RPDLimit = entry.RPDLimit
	m.InputCostPer1K = entry.InputCostPer1K
	m.OutputCostPer1K = entry.OutputCostPer1K
	m.MaxTokens = entry.MaxTokens
	m.ContextWindow = entry.ContextWindow
	m.IsDefault = entry.IsDefault
	m.Enabled = !entry.Disabled

	if existing == nil {
		if err := s.modelRepo.Create(m); err != nil {
			return 0, 0, fmt.Errorf("model %s: %w", entry.Name, err)
		}
		return 1, 0, nil
	}
	if err := s.modelRepo.Update(m); err != nil {
		return 0, 0, fmt.Errorf("model %s: %w", entry.Name, err)
	}
	return 0, 1, nil
}

// Run 读取目录文件并应用，path 为空时跳过
func Run(path string, seeder *Seeder) error {
	if path == "" {
		return nil
	}
	catalog, err := LoadFile(path)
	if err != nil {
		return err
	}
	created, updated, err := seeder.Apply(catalog)
	if err != nil {
		return err
	}
	log.Infof("bootstrap: 目录播种完成，创建 %d 条，更新 %d 条", created, updated)
	return nil
}
