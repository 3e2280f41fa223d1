// internal/handlers/context.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/utils"
)

// currentUserID reads the authenticated user's id set by the auth middleware.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func currentUserEmail(c *gin.Context) string {
	email, _ := utils.GetUserEmailFromContext(c)
	return email
}

func isAdminCaller(c *gin.Context) bool {
	role, exists := utils.GetUserRoleFromContext(c)
	return exists && role == string(models.UserRoleAdmin)
}
