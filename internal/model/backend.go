package model

import (
	"encoding/json"
	"time"
)

// WireFormat 后端的线路协议类型
type WireFormat string

const (
	WireFormatOpenAI    WireFormat = "openai-compatible"
	WireFormatAnthropic WireFormat = "anthropic"
	WireFormatGoogle    WireFormat = "google"
	WireFormatCustom    WireFormat = "custom"
)

// Backend 已配置的上游 AI 提供商
type Backend struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	BaseURL     string     `json:"baseUrl"`
	APIKey      string     `json:"-"`
	Format      WireFormat `json:"format"`
	AuthHeader  string     `json:"authHeader"`
	AuthPrefix  string     `json:"authPrefix"`
	HeadersJSON string     `json:"-"`
	RPMLimit    *int       `json:"rpmLimit,omitempty"`
	RPDLimit    *int       `json:"rpdLimit,omitempty"`
	Enabled     bool       `json:"enabled"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ExtraHeaders 解析 HeadersJSON 为 map，解析失败返回空 map
func (b *Backend) ExtraHeaders() map[string]string {
	headers := map[string]string{}
	if b.HeadersJSON == "" {
		return headers
	}
	_ = json.Unmarshal([]byte(b.HeadersJSON), &headers)
	return headers
}

// HasCredential 后端是否配置了密钥
// 没有密钥的后端永远不可被选择
func (b *Backend) HasCredential() bool {
	return b.APIKey != ""
}

// BackendResponse 对外返回的后端信息（不暴露密钥）
type BackendResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	BaseURL   string     `json:"baseUrl"`
	Format    WireFormat `json:"format"`
	APIKeySet bool       `json:"apiKeySet"`
	RPMLimit  *int       `json:"rpmLimit,omitempty"`
	RPDLimit  *int       `json:"rpdLimit,omitempty"`
	Enabled   bool       `json:"enabled"`
	Priority  int        `json:"priority"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ToResponse 转换为对外响应
func (b *Backend) ToResponse() *BackendResponse {
	return &BackendResponse{
		ID:        b.ID,
		Name:      b.Name,
		Slug:      b.Slug,
		BaseURL:   b.BaseURL,
		Format:    b.Format,
		APIKeySet: b.APIKey != "",
		RPMLimit:  b.RPMLimit,
		RPDLimit:  b.RPDLimit,
		Enabled:   b.Enabled,
		Priority:  b.Priority,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
