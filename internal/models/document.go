// internal/models/document.go
package models

import (
	"github.com/google/uuid"
)

type Document struct {
	BaseModel
	OwnerID          uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Filename         string    `json:"filename" gorm:"size:255;not null"`
	OriginalFilename string    `json:"original_filename" gorm:"size:255;not null"`
	ContentType      string    `json:"content_type" gorm:"size:100"`
	SizeBytes        int64     `json:"size_bytes" gorm:"not null;default:0"`
	FileHash         string    `json:"file_hash" gorm:"size:64;index"`
	StoragePath      string    `json:"-" gorm:"size:512;not null"`
	Description      string    `json:"description" gorm:"type:text"`

	// Relationships
	Owner            User              `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	ApprovalRequests []ApprovalRequest `json:"approval_requests,omitempty" gorm:"foreignKey:DocumentID"`
}
