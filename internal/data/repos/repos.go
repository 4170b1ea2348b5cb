package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/docquiz-backend/internal/data/repos/documents"
	"github.com/yungbote/docquiz-backend/internal/data/repos/learning"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type DocumentRepo = documents.DocumentRepo
type ProcessingJobRepo = documents.ProcessingJobRepo

type ModuleRepo = learning.ModuleRepo
type ModuleChunkRepo = learning.ModuleChunkRepo
type QuizRepo = learning.QuizRepo
type VectorStore = learning.VectorStore

// Repos is the full persistence surface handed to services and jobs.
type Repos struct {
	Documents      DocumentRepo
	ProcessingJobs ProcessingJobRepo
	Modules        ModuleRepo
	ModuleChunks   ModuleChunkRepo
	Quizzes        QuizRepo
	Vectors        VectorStore
}

func New(db *gorm.DB, log *logger.Logger, vectors VectorStore) *Repos {
	return &Repos{
		Documents:      documents.NewDocumentRepo(db, log),
		ProcessingJobs: documents.NewProcessingJobRepo(db, log),
		Modules:        learning.NewModuleRepo(db, log, vectors),
		ModuleChunks:   learning.NewModuleChunkRepo(db, log, vectors),
		Quizzes:        learning.NewQuizRepo(db, log),
		Vectors:        vectors,
	}
}

var NewVectorStore = learning.NewVectorStore
