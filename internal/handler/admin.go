package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"llmgateway/internal/database"
	"llmgateway/internal/ranking"
	"llmgateway/internal/repository"
)

// AdminHandler 只读的观测接口与质量分反馈入口
// 后端/模型目录的增删改由外部配置层负责，不在此暴露
type AdminHandler struct {
	events   repository.FailoverEventRepositoryInterface
	rankings repository.RankingRepositoryInterface
	usage    repository.UsageRepositoryInterface
	engine   *ranking.Engine
}

func NewAdminHandler(
	events repository.FailoverEventRepositoryInterface,
	rankings repository.RankingRepositoryInterface,
	usage repository.UsageRepositoryInterface,
	engine *ranking.Engine,
) *AdminHandler {
	return &AdminHandler{
		events:   events,
		rankings: rankings,
		usage:    usage,
		engine:   engine,
	}
}

// ListFailoverEvents GET /api/failover-events?limit=50
func (h *AdminHandler) ListFailoverEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.events.List(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ListRankings GET /api/rankings
func (h *AdminHandler) ListRankings(c *gin.Context) {
	rankings, err := h.rankings.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rankings": rankings})
}

// ListUsage GET /api/usage
func (h *AdminHandler) ListUsage(c *gin.Context) {
	usage, err := h.usage.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

type qualityRequest struct {
	Score float64 `json:"score" binding:"min=0,max=1"`
}

// SetQualityScore PUT /api/models/:id/quality
// 人工质量反馈，立即重算综合得分，不需要新流量
func (h *AdminHandler) SetQualityScore(c *gin.Context) {
	var req qualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.SetQualityScore(c.Param("id"), req.Score); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RecalculateRankings POST /api/rankings/recalculate
func (h *AdminHandler) RecalculateRankings(c *gin.Context) {
	if err := h.engine.RecalculateAll(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health GET /health
func (h *AdminHandler) Health(c *gin.Context) {
	if err := database.GetDB().Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
