// internal/services/storage_service.go
package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/docuflow/dms-backend/internal/apperrors"
	"github.com/docuflow/dms-backend/internal/config"
	"github.com/docuflow/dms-backend/internal/utils"
)

// StorageService persists document binaries on S3 when a bucket is
// configured, otherwise on the local filesystem under Upload.LocalPath.
// Keys are relative either way, so the backend can switch without a data
// model change.
type StorageService struct {
	s3Client *s3.S3
	cfg      *config.Config
}

type StoredFile struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Hash        string `json:"hash"`
}

type UploadOptions struct {
	Folder            string
	MaxSize           int64 // in bytes
	AllowedExtensions []string
	AllowedMimeTypes  []string
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	if cfg.AWS.S3Bucket == "" {
		// Local filesystem storage
		if err := os.MkdirAll(cfg.Upload.LocalPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local storage directory: %w", err)
		}
		return &StorageService{cfg: cfg}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		cfg:      cfg,
	}, nil
}

func (s *StorageService) UsesS3() bool {
	return s.s3Client != nil
}

// DocumentUploadOptions builds the allow-lists for document uploads from
// configuration.
func (s *StorageService) DocumentUploadOptions() UploadOptions {
	return UploadOptions{
		Folder:            "documents",
		MaxSize:           s.cfg.Upload.MaxSizeBytes,
		AllowedExtensions: s.cfg.Upload.AllowedExtensions,
		AllowedMimeTypes:  s.cfg.Upload.AllowedMimeTypes,
	}
}

func (s *StorageService) UploadFile(file multipart.File, header *multipart.FileHeader, options UploadOptions) (*StoredFile, error) {
	// Validate file size
	if options.MaxSize > 0 && header.Size > options.MaxSize {
		return nil, apperrors.Newf(apperrors.KindValidation,
			"file size %d bytes exceeds maximum allowed size %d bytes", header.Size, options.MaxSize)
	}

	// Validate extension
	fileExt := strings.ToLower(filepath.Ext(header.Filename))
	if len(options.AllowedExtensions) > 0 && !containsString(options.AllowedExtensions, fileExt) {
		return nil, apperrors.Newf(apperrors.KindValidation, "file type %s is not allowed", fileExt)
	}

	// Validate declared MIME type
	contentType := header.Header.Get("Content-Type")
	if len(options.AllowedMimeTypes) > 0 && !containsString(options.AllowedMimeTypes, contentType) {
		return nil, apperrors.Newf(apperrors.KindValidation, "content type %s is not allowed", contentType)
	}

	// Read file content
	fileBytes, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	key := s.generateFileName(header.Filename, options.Folder)

	if s.s3Client != nil {
		if err := s.uploadToS3(fileBytes, key, contentType); err != nil {
			return nil, err
		}
	} else {
		if err := s.uploadToLocal(fileBytes, key); err != nil {
			return nil, err
		}
	}

	return &StoredFile{
		Key:         key,
		Size:        int64(len(fileBytes)),
		ContentType: contentType,
		Hash:        utils.HashBytes(fileBytes),
	}, nil
}

func (s *StorageService) uploadToS3(fileBytes []byte, key, contentType string) error {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	}

	if _, err := s.s3Client.PutObject(params); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func (s *StorageService) uploadToLocal(fileBytes []byte, key string) error {
	path := filepath.Join(s.cfg.Upload.LocalPath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	if err := os.WriteFile(path, fileBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// ReadFile returns the stored bytes for streaming to a client.
func (s *StorageService) ReadFile(key string) ([]byte, error) {
	if s.s3Client != nil {
		out, err := s.s3Client.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(s.cfg.AWS.S3Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch file from S3: %w", err)
		}
		defer out.Body.Close()

		return io.ReadAll(out.Body)
	}

	path := filepath.Join(s.cfg.Upload.LocalPath, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *StorageService) DeleteFile(key string) error {
	if s.s3Client != nil {
		_, err := s.s3Client.DeleteObject(&s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.AWS.S3Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to delete file from S3: %w", err)
		}
		return nil
	}

	path := filepath.Join(s.cfg.Upload.LocalPath, filepath.FromSlash(key))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GeneratePresignedURL returns a short-lived direct download link. Only
// available on S3; local storage streams through the API instead.
func (s *StorageService) GeneratePresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AWS.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url, nil
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(originalName))

	timestamp := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, id.String()[:8], ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}

	return filename
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
