package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kowsik11/abhivan/internal/auth/delivery"
	authUsecase "github.com/kowsik11/abhivan/internal/auth/usecase"
)

// RouteRegistrar is a delivery handler that mounts its routes on a group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, handlers ...RouteRegistrar) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		protected := api.Group("")
		protected.Use(delivery.AuthMiddleware(authUsecase))
		for _, h := range handlers {
			h.RegisterRoutes(protected)
		}
	}
}
