// internal/services/admin_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/apperrors"
	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/utils"
)

type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

type AdminUserFilter struct {
	utils.PaginationParams
	Role          *models.UserRole `json:"role,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
	CreatedAfter  *time.Time       `json:"created_after,omitempty"`
	CreatedBefore *time.Time       `json:"created_before,omitempty"`
}

type AdminUpdateUserRequest struct {
	Role     *string `json:"role" validate:"omitempty,oneof=user admin"`
	IsActive *bool   `json:"is_active"`
}

type PlatformStats struct {
	TotalUsers        int64 `json:"total_users"`
	ActiveUsers       int64 `json:"active_users"`
	TotalDocuments    int64 `json:"total_documents"`
	TotalRequests     int64 `json:"total_requests"`
	PendingRequests   int64 `json:"pending_requests"`
	ApprovedRequests  int64 `json:"approved_requests"`
	RejectedRequests  int64 `json:"rejected_requests"`
	ExpiredRequests   int64 `json:"expired_requests"`
	CancelledRequests int64 `json:"cancelled_requests"`
}

// GetUsers lists accounts for the admin console.
func (s *AdminService) GetUsers(filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.Model(&models.User{})

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("email ILIKE ? OR full_name ILIKE ?", searchTerm, searchTerm)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "email", "full_name", "role"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// UpdateUser changes a user's role or active flag. The platform must never
// lose its last active administrator.
func (s *AdminService) UpdateUser(userID, adminID uuid.UUID, req *AdminUpdateUserRequest) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	oldRole := user.Role
	oldActive := user.IsActive

	newRole := user.Role
	if req.Role != nil {
		newRole = models.UserRole(*req.Role)
	}
	newActive := user.IsActive
	if req.IsActive != nil {
		newActive = *req.IsActive
	}

	losesAdmin := user.Role == models.UserRoleAdmin &&
		(newRole != models.UserRoleAdmin || !newActive)
	if losesAdmin {
		var activeAdmins int64
		if err := s.db.Model(&models.User{}).
			Where("role = ? AND is_active = ?", models.UserRoleAdmin, true).
			Count(&activeAdmins).Error; err != nil {
			return nil, fmt.Errorf("failed to count administrators: %w", err)
		}
		if activeAdmins <= 1 {
			return nil, apperrors.Validation("cannot demote or deactivate the last administrator")
		}
	}

	user.Role = newRole
	user.IsActive = newActive
	if err := s.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	entry := models.AuditLog{
		UserID:  &adminID,
		Action:  models.AuditActionAdminUserUpdated,
		Details: fmt.Sprintf("user %s updated by administrator", user.Email),
		Metadata: models.JSONB{
			"target_user_id": userID.String(),
			"old_role":       string(oldRole),
			"new_role":       string(user.Role),
			"old_is_active":  oldActive,
			"new_is_active":  user.IsActive,
		},
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", err)
	}

	return &user, nil
}

// GetPlatformStats aggregates platform-wide totals.
func (s *AdminService) GetPlatformStats() (*PlatformStats, error) {
	stats := &PlatformStats{}

	if err := s.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.Model(&models.User{}).
		Where("is_active = ?", true).
		Count(&stats.ActiveUsers).Error; err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}
	if err := s.db.Model(&models.Document{}).Count(&stats.TotalDocuments).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.Model(&models.ApprovalRequest{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate request stats: %w", err)
	}

	for _, row := range rows {
		stats.TotalRequests += row.Count
		switch models.ApprovalStatus(row.Status) {
		case models.ApprovalStatusPending:
			stats.PendingRequests = row.Count
		case models.ApprovalStatusApproved:
			stats.ApprovedRequests = row.Count
		case models.ApprovalStatusRejected:
			stats.RejectedRequests = row.Count
		case models.ApprovalStatusExpired:
			stats.ExpiredRequests = row.Count
		case models.ApprovalStatusCancelled:
			stats.CancelledRequests = row.Count
		}
	}

	return stats, nil
}
