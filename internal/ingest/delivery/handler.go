package delivery

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/internal/ingest/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

const maxListLimit = 200

type MailboxHandler struct {
	mailboxUsecase usecase.MailboxUsecase
	defaultMax     int
}

func NewMailboxHandler(mailboxUsecase usecase.MailboxUsecase, defaultMax int) *MailboxHandler {
	return &MailboxHandler{
		mailboxUsecase: mailboxUsecase,
		defaultMax:     defaultMax,
	}
}

func (h *MailboxHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/gmail/status", h.GetStatus)
	rg.POST("/gmail/sync", h.Sync)
	rg.GET("/inbox/summary", h.GetSummary)
	rg.GET("/inbox/messages", h.ListMessages)
	rg.GET("/inbox/messages/:id", h.GetMessage)
}

type SyncRequest struct {
	MaxMessages int      `json:"max_messages"`
	Query       string   `json:"query"`
	LabelIDs    []string `json:"label_ids"`
}

func (h *MailboxHandler) GetStatus(c *gin.Context) {
	status, err := h.mailboxUsecase.Status(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *MailboxHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.MaxMessages > usecase.MaxPollCount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_messages must not exceed 500"})
		return
	}
	if req.MaxMessages <= 0 {
		req.MaxMessages = h.defaultMax
	}

	messages, err := h.mailboxUsecase.Sync(c.Request.Context(), c.GetString("userID"), usecase.PollOptions{
		MaxCount: req.MaxMessages,
		Query:    req.Query,
		LabelIDs: req.LabelIDs,
	})
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}
	c.JSON(http.StatusOK, gin.H{"fetched": len(messages), "message_ids": ids})
}

func (h *MailboxHandler) GetSummary(c *gin.Context) {
	summary, err := h.mailboxUsecase.Summary(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *MailboxHandler) ListMessages(c *gin.Context) {
	filter := domain.ListFilter{Query: c.Query("query")}

	switch status := c.DefaultQuery("status", string(domain.StatusNew)); status {
	case "all":
	default:
		if !domain.MessageStatus(status).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of new, processed, error, all"})
			return
		}
		filter.Status = domain.MessageStatus(status)
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		filter.Limit = limit
	}

	records, err := h.mailboxUsecase.ListMessages(c.Request.Context(), c.GetString("userID"), filter)
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": records, "count": len(records)})
}

func (h *MailboxHandler) GetMessage(c *gin.Context) {
	record, err := h.mailboxUsecase.GetMessage(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		c.JSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
