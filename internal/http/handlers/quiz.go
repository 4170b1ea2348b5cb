package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/docquiz-backend/internal/http/response"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/services"
)

type QuizHandler struct {
	log     *logger.Logger
	quizzes services.QuizService
}

func NewQuizHandler(log *logger.Logger, quizzes services.QuizService) *QuizHandler {
	return &QuizHandler{log: log.With("handler", "QuizHandler"), quizzes: quizzes}
}

// GET /api/modules/:id/quiz
func (h *QuizHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "invalid_module_id")
	if !ok {
		return
	}
	q, err := h.quizzes.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": q})
}

// POST /api/modules/:id/quiz generates the quiz when the pipeline could not.
func (h *QuizHandler) Generate(c *gin.Context) {
	id, ok := parseID(c, "invalid_module_id")
	if !ok {
		return
	}
	q, err := h.quizzes.Generate(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": q})
}
