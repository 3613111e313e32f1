package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"llmgateway/internal/gateway"
	"llmgateway/internal/model"
	"llmgateway/internal/selector"
)

// Completer 调度编排入口，由 gateway.Orchestrator 实现
type Completer interface {
	Complete(ctx context.Context, req *model.CompletionRequest) (*model.CompletionResponse, error)
	CompleteWithBackend(ctx context.Context, backendID string, req *model.CompletionRequest) (*model.CompletionResponse, error)
	CompleteWithModel(ctx context.Context, modelID string, req *model.CompletionRequest) (*model.CompletionResponse, error)
	CompleteStream(ctx context.Context, req *model.CompletionRequest, onToken func(string)) (*model.CompletionResponse, error)
}

var _ Completer = (*gateway.Orchestrator)(nil)

type CompletionHandler struct {
	orchestrator Completer
}

func NewCompletionHandler(orchestrator Completer) *CompletionHandler {
	return &CompletionHandler{orchestrator: orchestrator}
}

// Complete POST /v1/completions
func (h *CompletionHandler) Complete(c *gin.Context) {
	var req model.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// prompt 与 messages 二选一
	if req.Prompt == "" && len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt 或 messages 必须提供其一"})
		return
	}
	if req.Prompt != "" && len(req.Messages) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt 与 messages 不能同时提供"})
		return
	}

	if req.Stream {
		// 流式路径只支持自由选择，不支持指定后端/模型
		if req.ModelID != "" || req.BackendID != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "流式请求不支持 backendId/modelId"})
			return
		}
		h.stream(c, &req)
		return
	}

	ctx := c.Request.Context()
	var resp *model.CompletionResponse
	var err error
	switch {
	case req.ModelID != "":
		resp, err = h.orchestrator.CompleteWithModel(ctx, req.ModelID, &req)
	case req.BackendID != "":
		resp, err = h.orchestrator.CompleteWithBackend(ctx, req.BackendID, &req)
	default:
		resp, err = h.orchestrator.Complete(ctx, &req)
	}

	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "requestId": req.RequestID})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// stream SSE 输出：每个 token 一条 data 行，最后一条携带完整响应元数据，
// 以 [DONE] 哨兵结束
func (h *CompletionHandler) stream(c *gin.Context, req *model.CompletionRequest) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	writeEvent := func(payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Errorf("completion handler: failed to marshal sse payload: %v", err)
			return
		}
		_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
		c.Writer.Flush()
	}

	resp, err := h.orchestrator.CompleteStream(c.Request.Context(), req, func(token string) {
		writeEvent(gin.H{"content": token})
	})
	if err != nil {
		writeEvent(gin.H{"error": err.Error(), "requestId": req.RequestID})
	} else {
		writeEvent(resp)
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}

func statusForError(err error) int {
	var exhaustion *gateway.ExhaustionError
	switch {
	case errors.Is(err, selector.ErrModelNotFound) || errors.Is(err, selector.ErrBackendNotFound):
		return http.StatusNotFound
	case errors.Is(err, selector.ErrModelNotAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, selector.ErrNoAvailableModels):
		return http.StatusServiceUnavailable
	case errors.As(err, &exhaustion):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
