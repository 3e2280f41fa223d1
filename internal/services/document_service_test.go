// internal/services/document_service_test.go
package services

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/docuflow/dms-backend/internal/apperrors"
	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/models"
	"github.com/docuflow/dms-backend/internal/utils"
	"gorm.io/gorm"
)

type DocumentServiceTestSuite struct {
	suite.Suite
	db    *gorm.DB
	cfg   *config.Config
	store *StorageService
	svc   *DocumentService
	owner *models.User
}

func (s *DocumentServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.cfg = testConfig()
	s.cfg.Upload.LocalPath = s.T().TempDir()

	store, err := NewStorageService(s.cfg)
	s.Require().NoError(err)
	s.store = store
	s.svc = NewDocumentService(s.db, s.cfg, store)
	s.owner = createTestUser(s.T(), s.db, "owner@example.com", models.UserRoleUser)
}

// multipartFixture builds a real multipart upload so header metadata (size,
// declared content type) comes from the same code path the handler uses.
func multipartFixture(t *testing.T, filename, contentType string, content []byte) (multipart.File, *multipart.FileHeader) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	partHeader.Set("Content-Type", contentType)
	part, err := writer.CreatePart(partHeader)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	file, header, err := req.FormFile("file")
	require.NoError(t, err)
	return file, header
}

func (s *DocumentServiceTestSuite) upload(filename, contentType string, content []byte) *models.Document {
	file, header := multipartFixture(s.T(), filename, contentType, content)
	document, err := s.svc.Upload(s.owner.ID, file, header, "  quarterly figures  ")
	s.Require().NoError(err)
	return document
}

func (s *DocumentServiceTestSuite) TestUploadAndDownload() {
	content := []byte("line one\nline two\n")
	document := s.upload("notes.txt", "text/plain", content)

	s.Equal(s.owner.ID, document.OwnerID)
	s.Equal("notes.txt", document.OriginalFilename)
	s.Equal("text/plain", document.ContentType)
	s.Equal(int64(len(content)), document.SizeBytes)
	s.Equal(utils.HashBytes(content), document.FileHash)
	s.True(strings.HasPrefix(document.StoragePath, "documents/"))
	s.Equal("quarterly figures", document.Description)

	// The binary landed under the local storage root.
	_, err := os.Stat(filepath.Join(s.cfg.Upload.LocalPath, filepath.FromSlash(document.StoragePath)))
	s.Require().NoError(err)

	result, err := s.svc.Download(document.ID, s.owner.ID, s.owner.Email, false)
	s.Require().NoError(err)
	s.Equal(content, result.Data)
	s.Empty(result.URL)
	s.Equal(document.ID, result.Document.ID)
}

func (s *DocumentServiceTestSuite) TestUploadRejectsDisallowedFiles() {
	file, header := multipartFixture(s.T(), "script.sh", "text/plain", []byte("echo hi"))
	_, err := s.svc.Upload(s.owner.ID, file, header, "")
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
	s.Contains(err.Error(), ".sh")

	file, header = multipartFixture(s.T(), "notes.txt", "application/zip", []byte("zipped"))
	_, err = s.svc.Upload(s.owner.ID, file, header, "")
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
	s.Contains(err.Error(), "application/zip")

	// A missing filename is rejected before the file is touched.
	_, err = s.svc.Upload(s.owner.ID, nil, &multipart.FileHeader{}, "")
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
	s.Contains(err.Error(), "filename is required")
}

func (s *DocumentServiceTestSuite) TestUploadFileSizeLimit() {
	file, header := multipartFixture(s.T(), "notes.txt", "text/plain", []byte("far too large"))
	_, err := s.store.UploadFile(file, header, UploadOptions{
		Folder:            "documents",
		MaxSize:           4,
		AllowedExtensions: []string{".txt"},
		AllowedMimeTypes:  []string{"text/plain"},
	})
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindValidation))
	s.Contains(err.Error(), "exceeds maximum")
}

func (s *DocumentServiceTestSuite) TestListScopedToOwner() {
	s.upload("first.txt", "text/plain", []byte("first"))
	s.upload("second.txt", "text/plain", []byte("second"))

	other := createTestUser(s.T(), s.db, "other@example.com", models.UserRoleUser)
	createTestDocument(s.T(), s.db, other.ID)

	params := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
	result, err := s.svc.List(s.owner.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(2), result.Total)
	documents := result.Data.([]models.Document)
	s.Len(documents, 2)
	for _, document := range documents {
		s.Equal(s.owner.ID, document.OwnerID)
	}

	result, err = s.svc.List(other.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(1), result.Total)
}

func (s *DocumentServiceTestSuite) TestGetAccessRules() {
	document := s.upload("notes.txt", "text/plain", []byte("restricted"))

	stranger := createTestUser(s.T(), s.db, "stranger@example.com", models.UserRoleUser)
	_, err := s.svc.Get(document.ID, stranger.ID, stranger.Email, false)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindForbidden))

	// Admins can always inspect.
	admin := createTestUser(s.T(), s.db, "admin@example.com", models.UserRoleAdmin)
	_, err = s.svc.Get(document.ID, admin.ID, admin.Email, true)
	s.Require().NoError(err)

	// A recipient of a pending request may read the document under review.
	request := models.ApprovalRequest{
		DocumentID:   document.ID,
		RequesterID:  s.owner.ID,
		Title:        "Review notes",
		ApprovalType: models.ApprovalTypeAll,
		Status:       models.ApprovalStatusPending,
	}
	s.Require().NoError(s.db.Create(&request).Error)
	recipient := models.ApprovalRecipient{
		ApprovalRequestID: request.ID,
		RecipientEmail:    "stranger@example.com",
		Status:            models.RecipientStatusPending,
	}
	s.Require().NoError(s.db.Create(&recipient).Error)

	fetched, err := s.svc.Get(document.ID, stranger.ID, "STRANGER@example.com", false)
	s.Require().NoError(err)
	s.Equal(document.ID, fetched.ID)

	// Access lapses once the request is no longer pending.
	err = s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("status", models.ApprovalStatusApproved).Error
	s.Require().NoError(err)

	_, err = s.svc.Get(document.ID, stranger.ID, stranger.Email, false)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindForbidden))
}

func (s *DocumentServiceTestSuite) TestGetNotFound() {
	_, err := s.svc.Get(uuid.New(), s.owner.ID, s.owner.Email, false)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindNotFound))
}

func (s *DocumentServiceTestSuite) TestDeleteGuards() {
	document := s.upload("notes.txt", "text/plain", []byte("guarded"))

	stranger := createTestUser(s.T(), s.db, "stranger@example.com", models.UserRoleUser)
	err := s.svc.Delete(document.ID, stranger.ID)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindForbidden))

	request := models.ApprovalRequest{
		DocumentID:   document.ID,
		RequesterID:  s.owner.ID,
		Title:        "Review notes",
		ApprovalType: models.ApprovalTypeAll,
		Status:       models.ApprovalStatusPending,
	}
	s.Require().NoError(s.db.Create(&request).Error)

	err = s.svc.Delete(document.ID, s.owner.ID)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindConflict))
	s.Contains(err.Error(), "active approval requests")

	// An approved request keeps the trail alive as well.
	err = s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("status", models.ApprovalStatusApproved).Error
	s.Require().NoError(err)
	err = s.svc.Delete(document.ID, s.owner.ID)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindConflict))

	// Rejected requests no longer block deletion.
	err = s.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("status", models.ApprovalStatusRejected).Error
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Delete(document.ID, s.owner.ID))

	_, err = s.svc.Get(document.ID, s.owner.ID, s.owner.Email, false)
	s.Require().Error(err)
	s.True(apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = os.Stat(filepath.Join(s.cfg.Upload.LocalPath, filepath.FromSlash(document.StoragePath)))
	s.True(os.IsNotExist(err))
}

func TestDocumentServiceSuite(t *testing.T) {
	suite.Run(t, new(DocumentServiceTestSuite))
}
