package model

// ChatMessage 多轮对话中的一条消息
type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content" binding:"required"`
}

// CompletionRequest 调用方提交的补全请求（不持久化）
// Prompt 与 Messages 二选一；SystemPrompt 优先于 Messages 中的 system 消息
type CompletionRequest struct {
	Prompt           string                 `json:"prompt,omitempty"`
	Messages         []ChatMessage          `json:"messages,omitempty"`
	SystemPrompt     string                 `json:"systemPrompt,omitempty"`
	Temperature      *float64               `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	MaxTokens        *int                   `json:"maxTokens,omitempty" binding:"omitempty,gt=0"`
	TopP             *float64               `json:"topP,omitempty"`
	FrequencyPenalty *float64               `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64               `json:"presencePenalty,omitempty"`
	Stop             []string               `json:"stop,omitempty"`
	BackendID        string                 `json:"backendId,omitempty"`
	ModelID          string                 `json:"modelId,omitempty"`
	Stream           bool                   `json:"stream,omitempty"`
	RequestID        string                 `json:"requestId,omitempty"`
	Extra            map[string]interface{} `json:"extra,omitempty"`
}

// UserText 取出用户侧文本：优先 Prompt，否则拼接 Messages 中的 user 消息
func (r *CompletionRequest) UserText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	text := ""
	for _, m := range r.Messages {
		if m.Role == "user" {
			if text != "" {
				text += "\n"
			}
			text += m.Content
		}
	}
	return text
}

// SystemText 取出系统提示：SystemPrompt 优先，其次 Messages 里的第一条 system 消息
func (r *CompletionRequest) SystemText() string {
	if r.SystemPrompt != "" {
		return r.SystemPrompt
	}
	for _, m := range r.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// FinishReason 补全终止原因
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
)

// TokenUsage token 计量
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CompletionResponse 归一化后的补全响应（不持久化）
type CompletionResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	ModelID      string     `json:"modelId"`
	BackendID    string     `json:"backendId"`
	BackendName  string     `json:"backendName"`
	Usage        TokenUsage `json:"usage"`
	LatencyMs    int64      `json:"latencyMs"`
	FinishReason string     `json:"finishReason"`
	Cost         *float64   `json:"cost,omitempty"`
	RequestID    string     `json:"requestId"`
}
