package quiz

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/platform/llm"
)

// Draft is one generated question before it is persisted.
type Draft struct {
	Question          string
	Options           []string
	CorrectAnswer     string
	Explanation       string
	Concept           string
	Difficulty        float64
	DistractorQuality float64
}

type rawQuestion struct {
	Question        string     `json:"question"`
	QuestionText    string     `json:"question_text"`
	Options         []string   `json:"options"`
	CorrectAnswer   string     `json:"correct_answer"`
	Explanation     string     `json:"explanation"`
	Concept         string     `json:"concept"`
	ConceptCovered  string     `json:"concept_covered"`
	Difficulty      looseFloat `json:"difficulty"`
	DifficultyScore looseFloat `json:"difficulty_score"`
}

// looseFloat accepts 0.6, "0.6" and null.
type looseFloat struct {
	v   float64
	set bool
}

func (f *looseFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f.v, f.set = v, true
	return nil
}

func (r rawQuestion) draft() Draft {
	d := Draft{
		Question:      strings.TrimSpace(firstNonEmpty(r.Question, r.QuestionText)),
		CorrectAnswer: strings.TrimSpace(r.CorrectAnswer),
		Explanation:   strings.TrimSpace(r.Explanation),
		Concept:       strings.TrimSpace(firstNonEmpty(r.Concept, r.ConceptCovered)),

		// overwritten by the validator when a set is scored
		DistractorQuality: 0.5,
	}
	for _, o := range r.Options {
		d.Options = append(d.Options, strings.TrimSpace(o))
	}
	switch {
	case r.Difficulty.set:
		d.Difficulty = r.Difficulty.v
	case r.DifficultyScore.set:
		d.Difficulty = r.DifficultyScore.v
	default:
		d.Difficulty = 0.5
	}
	if d.Difficulty < 0 {
		d.Difficulty = 0
	}
	if d.Difficulty > 1 {
		d.Difficulty = 1
	}
	return d
}

// ParseDrafts decodes model output shaped either as {"questions":[...]} or as
// a bare array. ok is false when nothing usable came back: no list, or a
// question without text or options.
func ParseDrafts(raw string) ([]Draft, bool) {
	body := llm.StripCodeFences(raw)
	var items []rawQuestion
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		var wrapped struct {
			Questions []rawQuestion `json:"questions"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, false
		}
		items = wrapped.Questions
	}
	if len(items) == 0 {
		return nil, false
	}
	out := make([]Draft, 0, len(items))
	for _, it := range items {
		d := it.draft()
		if d.Question == "" || len(d.Options) < 2 {
			return nil, false
		}
		out = append(out, d)
	}
	return out, true
}

// WellFormed reports whether a set can be stored as a quiz at all: five
// questions, each with four distinct options and the correct answer among
// them. Sets that fail it are treated like unparseable output.
func WellFormed(qs []Draft) bool {
	if len(qs) != domain.QuestionsPerQuiz {
		return false
	}
	for _, q := range qs {
		if q.Question == "" || len(q.Options) != domain.OptionsPerQuestion {
			return false
		}
		seen := make(map[string]bool, len(q.Options))
		for _, o := range q.Options {
			if o == "" || seen[o] {
				return false
			}
			seen[o] = true
		}
		if !seen[q.CorrectAnswer] {
			return false
		}
	}
	return true
}

func firstRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
