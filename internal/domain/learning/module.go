package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmbeddingDimensions is fixed for every stored chunk vector.
const EmbeddingDimensions = 768

type Module struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_module_document_order,priority:1" json:"document_id"`
	ModuleOrder int       `gorm:"column:module_order;not null;uniqueIndex:idx_module_document_order,priority:2" json:"module_order"`

	Title       string `gorm:"column:title;not null" json:"title"`
	Content     string `gorm:"column:content;type:text;not null" json:"-"`
	Summary     string `gorm:"column:summary;type:text" json:"summary"`
	StartOffset int    `gorm:"column:start_offset;not null" json:"start_offset"`
	EndOffset   int    `gorm:"column:end_offset;not null" json:"end_offset"`
	WordCount   int    `gorm:"column:word_count;not null;default:0" json:"word_count"`
	TotalChunks int    `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`
	IsQuizReady bool   `gorm:"column:is_quiz_ready;not null;default:false;index" json:"is_quiz_ready"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Module) TableName() string { return "module" }

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ModuleChunk is immutable once written. Its vector lives in whichever
// embedding table the configured vector store owns.
type ModuleChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_chunk_module_order,priority:1" json:"module_id"`
	ChunkOrder int       `gorm:"column:chunk_order;not null;uniqueIndex:idx_chunk_module_order,priority:2" json:"chunk_order"`
	Content    string    `gorm:"column:content;type:text;not null" json:"content"`
	WordCount  int       `gorm:"column:word_count;not null" json:"word_count"`

	Embedding []float32 `gorm:"-" json:"embedding,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ModuleChunk) TableName() string { return "module_chunk" }

func (c *ModuleChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
