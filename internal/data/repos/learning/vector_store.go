package learning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/docquiz-backend/internal/domain"
)

const (
	VectorStoreNative     = "native"
	VectorStoreSerialized = "serialized"
)

// VectorStore persists chunk embeddings through a context-bound handle. The
// backend is picked once at startup so writes never inspect column types.
type VectorStore interface {
	Kind() string
	Migrate(db *gorm.DB) error
	Save(db *gorm.DB, chunks []*types.ModuleChunk) error
	Load(db *gorm.DB, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error)
	Delete(db *gorm.DB, chunkIDs []uuid.UUID) error
}

func NewVectorStore(kind string) (VectorStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case VectorStoreNative:
		return NativeVectorStore{}, nil
	case "", VectorStoreSerialized:
		return SerializedTextStore{}, nil
	default:
		return nil, fmt.Errorf("invalid VECTOR_STORE=%q (allowed: native, serialized)", kind)
	}
}

func checkDims(chunks []*types.ModuleChunk) error {
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if len(c.Embedding) != types.EmbeddingDimensions {
			return fmt.Errorf("chunk %d: embedding has %d dimensions, want %d", c.ChunkOrder, len(c.Embedding), types.EmbeddingDimensions)
		}
	}
	return nil
}

// ---- pgvector column ----

type chunkEmbeddingVector struct {
	ChunkID   uuid.UUID       `gorm:"type:uuid;primaryKey;column:chunk_id"`
	Embedding pgvector.Vector `gorm:"type:vector(768);not null;column:embedding"`
}

func (chunkEmbeddingVector) TableName() string { return "module_chunk_embedding" }

// NativeVectorStore keeps embeddings in a Postgres vector(768) column.
type NativeVectorStore struct{}

func (NativeVectorStore) Kind() string { return VectorStoreNative }

func (NativeVectorStore) Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return fmt.Errorf("enable pgvector: %w", err)
	}
	return db.AutoMigrate(&chunkEmbeddingVector{})
}

func (NativeVectorStore) Save(db *gorm.DB, chunks []*types.ModuleChunk) error {
	if err := checkDims(chunks); err != nil {
		return err
	}
	rows := make([]chunkEmbeddingVector, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		rows = append(rows, chunkEmbeddingVector{ChunkID: c.ID, Embedding: pgvector.NewVector(c.Embedding)})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (NativeVectorStore) Load(db *gorm.DB, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error) {
	out := map[uuid.UUID][]float32{}
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var rows []chunkEmbeddingVector
	if err := db.Where("chunk_id IN ?", chunkIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ChunkID] = r.Embedding.Slice()
	}
	return out, nil
}

func (NativeVectorStore) Delete(db *gorm.DB, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return db.Where("chunk_id IN ?", chunkIDs).Delete(&chunkEmbeddingVector{}).Error
}

// ---- JSON text column ----

type chunkEmbeddingText struct {
	ChunkID    uuid.UUID `gorm:"type:uuid;primaryKey;column:chunk_id"`
	Dimensions int       `gorm:"not null;column:dimensions"`
	Embedding  string    `gorm:"type:text;not null;column:embedding"`
}

func (chunkEmbeddingText) TableName() string { return "module_chunk_embedding_text" }

// SerializedTextStore keeps embeddings as JSON arrays in a text column, for
// databases without pgvector.
type SerializedTextStore struct{}

func (SerializedTextStore) Kind() string { return VectorStoreSerialized }

func (SerializedTextStore) Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&chunkEmbeddingText{})
}

func (SerializedTextStore) Save(db *gorm.DB, chunks []*types.ModuleChunk) error {
	if err := checkDims(chunks); err != nil {
		return err
	}
	rows := make([]chunkEmbeddingText, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		raw, err := json.Marshal(c.Embedding)
		if err != nil {
			return err
		}
		rows = append(rows, chunkEmbeddingText{ChunkID: c.ID, Dimensions: len(c.Embedding), Embedding: string(raw)})
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (SerializedTextStore) Load(db *gorm.DB, chunkIDs []uuid.UUID) (map[uuid.UUID][]float32, error) {
	out := map[uuid.UUID][]float32{}
	if len(chunkIDs) == 0 {
		return out, nil
	}
	var rows []chunkEmbeddingText
	if err := db.Where("chunk_id IN ?", chunkIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		var v []float32
		if err := json.Unmarshal([]byte(r.Embedding), &v); err != nil {
			return nil, fmt.Errorf("decode embedding for chunk %s: %w", r.ChunkID, err)
		}
		out[r.ChunkID] = v
	}
	return out, nil
}

func (SerializedTextStore) Delete(db *gorm.DB, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	return db.Where("chunk_id IN ?", chunkIDs).Delete(&chunkEmbeddingText{}).Error
}
