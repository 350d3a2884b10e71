package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kowsik11/abhivan/internal/connection/domain"
	"github.com/kowsik11/abhivan/internal/connection/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

type ConnectionHandler struct {
	connectionUsecase usecase.ConnectionUsecase
}

func NewConnectionHandler(connectionUsecase usecase.ConnectionUsecase) *ConnectionHandler {
	return &ConnectionHandler{
		connectionUsecase: connectionUsecase,
	}
}

func (h *ConnectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/connections", h.List)
	rg.PUT("/connections/:provider", h.Connect)
	rg.DELETE("/connections/:provider", h.Disconnect)
}

func (h *ConnectionHandler) List(c *gin.Context) {
	summaries, err := h.connectionUsecase.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": summaries})
}

func (h *ConnectionHandler) Connect(c *gin.Context) {
	var req domain.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.connectionUsecase.Connect(c.Request.Context(), c.GetString("userID"), domain.Provider(c.Param("provider")), &req)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	if err := h.connectionUsecase.Disconnect(c.Request.Context(), c.GetString("userID"), domain.Provider(c.Param("provider"))); err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "disconnected"})
}
