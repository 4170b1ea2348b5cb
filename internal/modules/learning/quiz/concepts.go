package quiz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yungbote/docquiz-backend/internal/domain"
)

var (
	reHeading    = regexp.MustCompile(`(?m)^#+\s+(.+)$`)
	reProperNoun = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
	reQuoted     = regexp.MustCompile(`"([^"]{5,50})"`)
	reDefinition = regexp.MustCompile(`:\s*([A-Z][a-z]+(?:\s+[a-z]+)*)`)
	reSentence   = regexp.MustCompile(`[.!?]\s+`)
	reNounPhrase = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[a-z]+){0,2})\b`)
)

var commonWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "was": true, "one": true, "our": true,
	"out": true, "has": true, "how": true, "its": true, "may": true, "new": true,
	"now": true, "see": true, "two": true, "way": true, "who": true, "use": true,
}

const (
	maxKeyTerms     = 10
	fallbackScanCap = 4000
)

// KeyTerms pulls candidate concept labels out of free text: markdown
// headings, capitalized multi-word phrases, quoted terms and the term after
// a colon. When that yields fewer than five, leading noun phrases of the
// first sentences are added.
func KeyTerms(content string) []string {
	content = firstRunes(content, fallbackScanCap)
	seen := map[string]bool{}
	var out []string
	add := func(term string, minLen, maxLen int) bool {
		term = strings.TrimSpace(term)
		if len(term) < minLen || len(term) > maxLen || commonWords[strings.ToLower(term)] || seen[term] {
			return false
		}
		seen[term] = true
		out = append(out, term)
		return len(out) >= maxKeyTerms
	}

	var all []string
	for _, re := range []*regexp.Regexp{reHeading, reProperNoun, reQuoted, reDefinition} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			all = append(all, m[1])
		}
	}
	for _, t := range all {
		if add(t, 5, 50) {
			return out
		}
	}

	if len(out) < domain.QuestionsPerQuiz {
		head := firstRunes(content, 2000)
		sentences := reSentence.Split(head, -1)
		if len(sentences) > 10 {
			sentences = sentences[:10]
		}
		for _, s := range sentences {
			phrases := reNounPhrase.FindAllStringSubmatch(s, 2)
			for _, m := range phrases {
				if add(m[1], 5, 40) {
					return out
				}
			}
		}
	}
	return out
}

// FallbackQuestions builds a structurally valid set without a model call.
// Every question has distinct concepts and four distinct options with the
// correct answer first.
func FallbackQuestions(title, content string) []Draft {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "this module"
	}
	terms := KeyTerms(content)

	out := make([]Draft, 0, domain.QuestionsPerQuiz)
	for i := 0; i < domain.QuestionsPerQuiz; i++ {
		var d Draft
		if i < len(terms) {
			term := terms[i]
			opts := []string{fmt.Sprintf("The correct definition of %s", term)}
			for _, other := range terms {
				if other != term && len(opts) < domain.OptionsPerQuestion {
					opts = append(opts, other)
				}
			}
			for n := 1; len(opts) < domain.OptionsPerQuestion; n++ {
				opts = append(opts, fmt.Sprintf("Unrelated concept %d", n))
			}
			d = Draft{
				Question: fmt.Sprintf("What is %s?", term),
				Options:  opts,
				Concept:  term,
			}
		} else {
			n := i + 1
			d = Draft{
				Question: fmt.Sprintf("Which statement best reflects key idea %d of %s?", n, title),
				Options: []string{
					fmt.Sprintf("An important topic in %s", title),
					"An unrelated concept",
					"A random fact",
					"None of the above",
				},
				Concept: fmt.Sprintf("%s: key idea %d", title, n),
			}
		}
		d.CorrectAnswer = d.Options[0]
		d.Explanation = fmt.Sprintf("This concept is discussed in %s.", title)
		d.Difficulty = 0.5
		d.DistractorQuality = 0.5
		out = append(out, d)
	}
	return out
}
