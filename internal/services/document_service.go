// internal/services/document_service.go
package services

import (
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docuflow/dms-backend/internal/apperrors"
	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/utils"
)

type DocumentService struct {
	db      *gorm.DB
	cfg     *config.Config
	storage *StorageService
}

// DownloadResult carries either the file bytes (local storage) or a
// presigned URL (S3).
type DownloadResult struct {
	Document *models.Document
	Data     []byte
	URL      string
}

func NewDocumentService(db *gorm.DB, cfg *config.Config, storage *StorageService) *DocumentService {
	return &DocumentService{
		db:      db,
		cfg:     cfg,
		storage: storage,
	}
}

func (s *DocumentService) Upload(ownerID uuid.UUID, file multipart.File, header *multipart.FileHeader, description string) (*models.Document, error) {
	if header.Filename == "" {
		return nil, apperrors.Validation("filename is required")
	}

	stored, err := s.storage.UploadFile(file, header, s.storage.DocumentUploadOptions())
	if err != nil {
		return nil, err
	}

	document := &models.Document{
		OwnerID:          ownerID,
		Filename:         stored.Key,
		OriginalFilename: header.Filename,
		ContentType:      stored.ContentType,
		SizeBytes:        stored.Size,
		FileHash:         stored.Hash,
		StoragePath:      stored.Key,
		Description:      strings.TrimSpace(description),
	}

	if err := s.db.Create(document).Error; err != nil {
		// Best effort: do not leave an orphaned binary behind
		_ = s.storage.DeleteFile(stored.Key)
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	return document, nil
}

func (s *DocumentService) List(ownerID uuid.UUID, params utils.PaginationParams) (utils.PaginationResult, error) {
	var documents []models.Document
	var total int64

	query := s.db.Model(&models.Document{}).Where("owner_id = ?", ownerID)

	if params.Search != "" {
		search := "%" + params.Search + "%"
		query = query.Where("original_filename ILIKE ? OR description ILIKE ?", search, search)
	}

	if err := query.Count(&total).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to count documents: %w", err)
	}

	query = utils.ApplySort(query, params, []string{"created_at", "original_filename", "size_bytes"})
	query = utils.ApplyPagination(query, params)

	if err := query.Find(&documents).Error; err != nil {
		return utils.PaginationResult{}, fmt.Errorf("failed to list documents: %w", err)
	}

	return utils.CreatePaginationResult(documents, total, params), nil
}

// Get returns the document when the caller is its owner, an admin, or a
// recipient of a pending approval request that references it.
func (s *DocumentService) Get(documentID, callerID uuid.UUID, callerEmail string, isAdmin bool) (*models.Document, error) {
	document, err := s.find(documentID)
	if err != nil {
		return nil, err
	}

	if err := s.checkAccess(document, callerID, callerEmail, isAdmin); err != nil {
		return nil, err
	}

	return document, nil
}

func (s *DocumentService) Download(documentID, callerID uuid.UUID, callerEmail string, isAdmin bool) (*DownloadResult, error) {
	document, err := s.Get(documentID, callerID, callerEmail, isAdmin)
	if err != nil {
		return nil, err
	}

	if s.storage.UsesS3() {
		url, err := s.storage.GeneratePresignedURL(document.StoragePath, 15*time.Minute)
		if err != nil {
			return nil, err
		}
		return &DownloadResult{Document: document, URL: url}, nil
	}

	data, err := s.storage.ReadFile(document.StoragePath)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{Document: document, Data: data}, nil
}

// Delete removes a document owned by the caller. Documents referenced by a
// pending or approved request stay: the approval trail must keep pointing at
// the content it covered.
func (s *DocumentService) Delete(documentID, callerID uuid.UUID) error {
	document, err := s.find(documentID)
	if err != nil {
		return err
	}

	if document.OwnerID != callerID {
		return apperrors.Forbidden("only the owner may delete a document")
	}

	var activeCount int64
	err = s.db.Model(&models.ApprovalRequest{}).
		Where("document_id = ? AND status IN ?", documentID,
			[]models.ApprovalStatus{models.ApprovalStatusPending, models.ApprovalStatusApproved}).
		Count(&activeCount).Error
	if err != nil {
		return fmt.Errorf("failed to check approval requests: %w", err)
	}
	if activeCount > 0 {
		return apperrors.Conflict("document has active approval requests and cannot be deleted")
	}

	if err := s.db.Delete(document).Error; err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.storage.DeleteFile(document.StoragePath); err != nil {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}

	return nil
}

func (s *DocumentService) find(documentID uuid.UUID) (*models.Document, error) {
	var document models.Document
	if err := s.db.First(&document, documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("document")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &document, nil
}

func (s *DocumentService) checkAccess(document *models.Document, callerID uuid.UUID, callerEmail string, isAdmin bool) error {
	if isAdmin || document.OwnerID == callerID {
		return nil
	}

	// Recipients of a pending approval may inspect the document they are
	// deciding on.
	var count int64
	err := s.db.Model(&models.ApprovalRecipient{}).
		Joins("JOIN approval_requests ON approval_requests.id = approval_recipients.approval_request_id AND approval_requests.deleted_at IS NULL").
		Where("approval_requests.document_id = ? AND approval_requests.status = ? AND approval_recipients.recipient_email = ?",
			document.ID, models.ApprovalStatusPending, strings.ToLower(callerEmail)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check document access: %w", err)
	}

	if count == 0 {
		return apperrors.Forbidden("you do not have access to this document")
	}
	return nil
}
