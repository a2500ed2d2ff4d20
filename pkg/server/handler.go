package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meilibridge/pkg/engine"
	"meilibridge/pkg/util"
)

// StatusProvider 同步状态查询接口（由连接器的结果登记表实现）
type StatusProvider interface {
	Summaries() []engine.CycleSummary
	Summary(table string) (engine.CycleSummary, bool)
}

// Handler 状态查询 API 处理器
type Handler struct {
	provider StatusProvider
}

func NewHandler(provider StatusProvider) *Handler {
	return &Handler{provider: provider}
}

// GetStatus 返回全部表最近一次同步周期的结果
func (h *Handler) GetStatus(c *gin.Context) {
	util.Ok(c, h.provider.Summaries())
}

// GetTableStatus 返回指定表最近一次同步周期的结果
func (h *Handler) GetTableStatus(c *gin.Context) {
	table := c.Param("table")
	summary, ok := h.provider.Summary(table)
	if !ok {
		util.Err(c, gin.H{"error": "该表尚未执行过同步", "code": http.StatusNotFound})
		return
	}
	util.Ok(c, summary)
}

// Healthz 探活
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
