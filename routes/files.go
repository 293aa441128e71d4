package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"pdf-chat-saas/internal/logger"
	"pdf-chat-saas/internal/queue"
	"pdf-chat-saas/internal/vectorstore"
	"pdf-chat-saas/middleware"
	"pdf-chat-saas/models"
	"pdf-chat-saas/services"
	"pdf-chat-saas/utils"
)

// SetupFileRoutes registers the upload-completion webhook, status
// polling, listing, and deletion.
func SetupFileRoutes(router *gin.Engine, ingestion *services.IngestionService, files services.FileStore, messages services.MessageStore, vectors vectorstore.Store, queueClient *asynq.Client, authMiddleware *middleware.AuthMiddleware) {
	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	// Upload service calls this once a file has landed in storage.
	api.POST("/upload/complete", func(c *gin.Context) {
		var req models.UploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid webhook payload", gin.H{"error": err.Error()})
			return
		}

		file, created, err := ingestion.RegisterUpload(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to register upload", nil)
			return
		}
		if !created {
			// Duplicate storage key: ingestion must not run twice.
			c.JSON(http.StatusOK, gin.H{
				"file_id": file.ID,
				"status":  file.UploadStatus,
				"message": "Upload already registered",
			})
			return
		}

		plan := models.PlanForSubscriber(req.Metadata.IsSubscribed)
		task, err := queue.NewIngestTask(file.ID, plan.Slug)
		if err == nil {
			_, err = queueClient.Enqueue(task)
		}
		if err != nil {
			logger.Error("failed to enqueue ingestion", "file_id", file.ID, "error", err)
			// Terminal: the status poll must not spin on a file whose
			// task never made it onto the queue.
			if statusErr := files.SetStatus(c.Request.Context(), file.ID, models.UploadStatusFailed, "failed to schedule ingestion", 0); statusErr != nil {
				logger.Error("failed to mark file FAILED", "file_id", file.ID, "error", statusErr)
			}
			utils.RespondWithInternalError(c, "Failed to schedule ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"file_id": file.ID,
			"status":  file.UploadStatus,
			"name":    file.Name,
		})
	})

	// Status poll used by the processing UI.
	api.GET("/files/:fileID", func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		file, err := files.GetOwned(c.Request.Context(), c.Param("fileID"), userID)
		if err != nil {
			utils.RespondWithNotFound(c, "File not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"file_id":        file.ID,
			"name":           file.Name,
			"status":         file.UploadStatus,
			"page_count":     file.PageCount,
			"failure_reason": file.FailureReason,
			"created_at":     file.CreatedAt,
			"updated_at":     file.UpdatedAt,
		})
	})

	api.GET("/files", func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		list, err := files.ListByUser(c.Request.Context(), userID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list files", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"files": list})
	})

	api.DELETE("/files/:fileID", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		fileID := c.Param("fileID")

		if _, err := files.GetOwned(c.Request.Context(), fileID, userID); err != nil {
			utils.RespondWithNotFound(c, "File not found")
			return
		}

		// Passages and messages go with the file.
		if err := vectors.DeleteNamespace(c.Request.Context(), fileID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete file index", nil)
			return
		}
		if err := messages.DeleteByFile(c.Request.Context(), fileID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete file messages", nil)
			return
		}
		if err := files.Delete(c.Request.Context(), fileID); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete file", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": fileID})
	})
}
