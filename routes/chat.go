package routes

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdf-chat-saas/middleware"
	"pdf-chat-saas/models"
	"pdf-chat-saas/services"
	"pdf-chat-saas/utils"
)

// ChatResponder streams an answer about a file into the sink.
type ChatResponder interface {
	Respond(ctx context.Context, userID, fileID, question string, sink services.StreamSink) error
}

const defaultMessagePageSize = 10

// SetupChatRoutes registers the chat endpoints: the streaming message
// endpoint and the paginated history listing.
func SetupChatRoutes(router *gin.Engine, responder ChatResponder, files services.FileStore, messages services.MessageStore, authMiddleware *middleware.AuthMiddleware) {
	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	api.POST("/message", func(c *gin.Context) {
		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		userID := middleware.GetUserID(c)

		// Plain chunked text, rendered incrementally by the client
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Header("X-Accel-Buffering", "no")

		err := responder.Respond(c.Request.Context(), userID, req.FileID, req.Message, c.Writer)
		if err == nil {
			return
		}
		if c.Writer.Written() {
			// Too late for a status code; the stream already carries
			// whatever was produced.
			return
		}

		// Nothing streamed: drop the stream headers so the JSON error
		// body is labelled correctly.
		c.Writer.Header().Del("Content-Type")
		c.Writer.Header().Del("X-Accel-Buffering")

		switch err {
		case services.ErrFileNotFound, services.ErrFileNotReady:
			utils.RespondWithNotFound(c, "File not found")
		default:
			utils.RespondWithInternalError(c, "Failed to generate response", nil)
		}
	})

	api.GET("/files/:fileID/messages", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		fileID := c.Param("fileID")

		if _, err := files.GetOwned(c.Request.Context(), fileID, userID); err != nil {
			utils.RespondWithNotFound(c, "File not found")
			return
		}

		limit := defaultMessagePageSize
		if l, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil && l > 0 && l <= 100 {
			limit = l
		}

		page, nextCursor, err := messages.List(c.Request.Context(), fileID, c.Query("cursor"), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load messages", nil)
			return
		}

		c.JSON(http.StatusOK, models.MessagePage{
			Messages:   page,
			NextCursor: nextCursor,
		})
	})
}
