package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdf-chat-saas/middleware"
	"pdf-chat-saas/services"
	"pdf-chat-saas/utils"
)

// SetupExportRoutes registers conversation-history download endpoints.
func SetupExportRoutes(router *gin.Engine, export *services.ExportService, files services.FileStore, authMiddleware *middleware.AuthMiddleware) {
	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	api.GET("/files/:fileID/export", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		fileID := c.Param("fileID")

		file, err := files.GetOwned(c.Request.Context(), fileID, userID)
		if err != nil {
			utils.RespondWithNotFound(c, "File not found")
			return
		}

		format := c.DefaultQuery("format", "json")
		switch format {
		case "json":
			history, err := export.CollectHistory(c.Request.Context(), fileID)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to collect history", nil)
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"file_id":  fileID,
				"name":     file.Name,
				"messages": history,
			})

		case "excel":
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-conversation.xlsx"`, fileID))
			if err := export.WriteExcel(c.Request.Context(), fileID, c.Writer); err != nil {
				if !c.Writer.Written() {
					utils.RespondWithInternalError(c, "Failed to build workbook", nil)
				}
				return
			}

		default:
			utils.RespondWithBadRequest(c, "Unknown export format", gin.H{"format": format})
		}
	})
}
