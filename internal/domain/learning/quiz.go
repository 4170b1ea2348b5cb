package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	QuizDifficultyMedium    = "MEDIUM"
	QuizDefaultDurationMins = 10
	QuestionTypeMCQ         = "MCQ"
	QuestionsPerQuiz        = 5
	OptionsPerQuestion      = 4
)

// Quiz is unique per module.
type Quiz struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ModuleID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"module_id"`
	Title            string    `gorm:"column:title;not null" json:"title"`
	Difficulty       string    `gorm:"column:difficulty;not null" json:"difficulty"`
	DurationMinutes  int       `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	Validated        bool      `gorm:"column:validated;not null;default:false" json:"validated"`
	GenerationSource string    `gorm:"column:generation_source" json:"generation_source,omitempty"`

	Questions []Question `gorm:"foreignKey:QuizID;references:ID" json:"questions,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Quiz) TableName() string { return "quiz" }

func (q *Quiz) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Difficulty == "" {
		q.Difficulty = QuizDifficultyMedium
	}
	if q.DurationMinutes == 0 {
		q.DurationMinutes = QuizDefaultDurationMins
	}
	return nil
}

type Question struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuizID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_question_quiz_order,priority:1" json:"quiz_id"`
	QuestionOrder int            `gorm:"column:question_order;not null;uniqueIndex:idx_question_quiz_order,priority:2" json:"question_order"`
	Type          string         `gorm:"column:type;not null" json:"type"`
	Text          string         `gorm:"column:text;type:text;not null" json:"text"`
	Options       datatypes.JSON `gorm:"column:options;not null" json:"options"`
	CorrectAnswer string         `gorm:"column:correct_answer;type:text;not null" json:"correct_answer"`
	Explanation   string         `gorm:"column:explanation;type:text" json:"explanation"`
	Concept       string         `gorm:"column:concept;not null" json:"concept"`

	Difficulty        float64 `gorm:"column:difficulty;not null" json:"difficulty"`
	DistractorQuality float64 `gorm:"column:distractor_quality;not null" json:"distractor_quality"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Question) TableName() string { return "question" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Type == "" {
		q.Type = QuestionTypeMCQ
	}
	return nil
}
