package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DocumentStatusPending           = "PENDING"
	DocumentStatusExtracting        = "EXTRACTING"
	DocumentStatusChunking          = "CHUNKING"
	DocumentStatusGeneratingModules = "GENERATING_MODULES"
	DocumentStatusCompleted         = "COMPLETED"
	DocumentStatusFailed            = "FAILED"
)

// DocumentStatusTerminal reports whether no further transitions will happen.
func DocumentStatusTerminal(status string) bool {
	return status == DocumentStatusCompleted || status == DocumentStatusFailed
}

type Document struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`

	Filename    string `gorm:"column:filename;not null" json:"filename"`
	MimeType    string `gorm:"column:mime_type" json:"mime_type,omitempty"`
	SizeBytes   int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	StoragePath string `gorm:"column:storage_path;not null" json:"storage_path"`
	ContentHash string `gorm:"column:content_hash;not null;index" json:"content_hash"`
	PageCount   int    `gorm:"column:page_count;not null;default:0" json:"page_count"`

	Status   string         `gorm:"column:status;not null;index" json:"status"`
	Progress datatypes.JSON `gorm:"column:progress" json:"progress"`
	Error    *string        `gorm:"column:error;type:text" json:"error"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DocumentStatusPending
	}
	if len(d.Progress) == 0 {
		d.Progress = datatypes.JSON([]byte(`{"current_stage":"queued"}`))
	}
	return nil
}
