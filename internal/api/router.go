package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hotswap-labs/hotswapd/internal/api/handlers"
	"github.com/hotswap-labs/hotswapd/internal/engine"
	"github.com/hotswap-labs/hotswapd/internal/store"
)

func NewRouter(eng *engine.Engine, st store.Store) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.GET("/healthz", handlers.Healthz)
		api.POST("/deployments", func(c *gin.Context) { handlers.SubmitDeployment(c, eng) })
		api.GET("/deployments", func(c *gin.Context) { handlers.ListDeployments(c, st) })
		api.GET("/deployments/:id", func(c *gin.Context) { handlers.GetDeployment(c, st) })
		api.POST("/deployments/:id/approve", func(c *gin.Context) { handlers.ApproveDeployment(c, eng) })
		api.POST("/deployments/:id/reject", func(c *gin.Context) { handlers.RejectDeployment(c, eng) })
		api.POST("/deployments/:id/cancel", func(c *gin.Context) { handlers.CancelDeployment(c, eng) })
	}

	return r
}
