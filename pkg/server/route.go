package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIHandler 定义API处理器接口
type APIHandler interface {
	GetStatus(c *gin.Context)
	GetTableStatus(c *gin.Context)
	Healthz(c *gin.Context)
}

// InitRouter 初始化路由配置
func InitRouter(engine *gin.Engine, handler APIHandler) *gin.RouterGroup {
	// API路由组
	apiGroup := engine.Group("/api/v1")
	if handler != nil {
		sync := apiGroup.Group("/sync")
		{
			sync.GET("/status", handler.GetStatus)
			sync.GET("/status/:table", handler.GetTableStatus)
			zap.S().Info("路由注册成功: GET /api/v1/sync/status")
		}
		engine.GET("/healthz", handler.Healthz)
	} else {
		zap.S().Warn("Handler为nil，路由未注册")
	}

	return apiGroup
}
