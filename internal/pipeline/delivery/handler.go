package delivery

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	crmdomain "github.com/kowsik11/abhivan/internal/crm/domain"
	ingestusecase "github.com/kowsik11/abhivan/internal/ingest/usecase"
	"github.com/kowsik11/abhivan/internal/pipeline/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

type Runner interface {
	Run(ctx context.Context, req usecase.RunRequest) (*usecase.RunResult, error)
}

type PipelineHandler struct {
	runner     Runner
	defaultCRM crmdomain.Target
	defaultMax int
}

func NewPipelineHandler(runner Runner, defaultCRM crmdomain.Target, defaultMax int) *PipelineHandler {
	return &PipelineHandler{
		runner:     runner,
		defaultCRM: defaultCRM,
		defaultMax: defaultMax,
	}
}

func (h *PipelineHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/pipeline/run", h.Run)
}

type RunRequest struct {
	MaxMessages int      `json:"max_messages"`
	Query       string   `json:"query"`
	LabelIDs    []string `json:"label_ids"`
	// CRM selects the write target; "none" runs without writing. Omitted
	// means the configured default.
	CRM *string `json:"crm"`
}

func (h *PipelineHandler) Run(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	target := h.defaultCRM
	if req.CRM != nil {
		parsed, err := crmdomain.ParseTarget(*req.CRM)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		target = parsed
	}
	if req.MaxMessages > ingestusecase.MaxPollCount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_messages must not exceed 500"})
		return
	}
	if req.MaxMessages <= 0 {
		req.MaxMessages = h.defaultMax
	}

	result, err := h.runner.Run(c.Request.Context(), usecase.RunRequest{
		UserID:      c.GetString("userID"),
		MaxMessages: req.MaxMessages,
		Query:       req.Query,
		LabelIDs:    req.LabelIDs,
		CRM:         target,
	})
	if err != nil {
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["result"] = result
		}
		c.JSON(apperr.HTTPStatus(err), body)
		return
	}
	c.JSON(http.StatusOK, result)
}
