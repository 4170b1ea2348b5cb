package domain

import (
	"github.com/yungbote/docquiz-backend/internal/domain/documents"
	"github.com/yungbote/docquiz-backend/internal/domain/learning"
)

const (
	DocumentStatusPending           = documents.DocumentStatusPending
	DocumentStatusExtracting        = documents.DocumentStatusExtracting
	DocumentStatusChunking          = documents.DocumentStatusChunking
	DocumentStatusGeneratingModules = documents.DocumentStatusGeneratingModules
	DocumentStatusCompleted         = documents.DocumentStatusCompleted
	DocumentStatusFailed            = documents.DocumentStatusFailed

	JobStatusPending    = documents.JobStatusPending
	JobStatusProcessing = documents.JobStatusProcessing
	JobStatusCompleted  = documents.JobStatusCompleted
	JobStatusFailed     = documents.JobStatusFailed

	EmbeddingDimensions     = learning.EmbeddingDimensions
	QuestionsPerQuiz        = learning.QuestionsPerQuiz
	OptionsPerQuestion      = learning.OptionsPerQuestion
	QuizDifficultyMedium    = learning.QuizDifficultyMedium
	QuizDefaultDurationMins = learning.QuizDefaultDurationMins
	QuestionTypeMCQ         = learning.QuestionTypeMCQ
)

type Document = documents.Document
type ProcessingJob = documents.ProcessingJob

type Module = learning.Module
type ModuleChunk = learning.ModuleChunk
type Quiz = learning.Quiz
type Question = learning.Question

var DocumentStatusTerminal = documents.DocumentStatusTerminal
