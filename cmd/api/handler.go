package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authUsecase "github.com/kowsik11/abhivan/internal/auth/usecase"
	connectionDelivery "github.com/kowsik11/abhivan/internal/connection/delivery"
	ingestDelivery "github.com/kowsik11/abhivan/internal/ingest/delivery"
	pipelineDelivery "github.com/kowsik11/abhivan/internal/pipeline/delivery"
)

type Handler struct {
	authUsecase       authUsecase.AuthUsecase
	connectionHandler *connectionDelivery.ConnectionHandler
	mailboxHandler    *ingestDelivery.MailboxHandler
	pipelineHandler   *pipelineDelivery.PipelineHandler
}

func NewHandler(authUc authUsecase.AuthUsecase, connectionHandler *connectionDelivery.ConnectionHandler, mailboxHandler *ingestDelivery.MailboxHandler, pipelineHandler *pipelineDelivery.PipelineHandler) *Handler {
	return &Handler{
		authUsecase:       authUc,
		connectionHandler: connectionHandler,
		mailboxHandler:    mailboxHandler,
		pipelineHandler:   pipelineHandler,
	}
}

// Router builds the gin engine with CORS and every API route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.connectionHandler, h.mailboxHandler, h.pipelineHandler)
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (h *Handler) Start(ctx context.Context, addr string) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: addr, Handler: h.Router()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Println("Server shutting down")
	return srv.Shutdown(shutdownCtx)
}
