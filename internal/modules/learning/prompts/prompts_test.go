package prompts

import (
	"strings"
	"testing"
)

func TestBuildQuizPrompt(t *testing.T) {
	p, err := Build(PromptQuizGeneration, Input{
		ModuleTitle:   "Photosynthesis",
		ModuleContent: "Chlorophyll absorbs light.",
		QuestionCount: 5,
		OptionCount:   4,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	text := p.Text()
	for _, want := range []string{"Photosynthesis", "Chlorophyll absorbs light.", "exactly 5 questions", "exactly 4 options"} {
		if !strings.Contains(text, want) {
			t.Fatalf("prompt missing %q:\n%s", want, text)
		}
	}
	if p.Version != 1 || p.Name != string(PromptQuizGeneration) {
		t.Fatalf("metadata: name=%q version=%d", p.Name, p.Version)
	}
}

func TestBuildValidates(t *testing.T) {
	if _, err := Build(PromptModuleBoundaries, Input{MaxWords: 3000}); err == nil {
		t.Fatalf("expected missing DocumentText error")
	}
	if _, err := Build(PromptName("nope"), Input{}); err == nil {
		t.Fatalf("expected unknown prompt error")
	}
}

func TestBuildReportsEveryFailedCheck(t *testing.T) {
	_, err := Build(PromptQuizGeneration, Input{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, field := range []string{"ModuleContent", "QuestionCount", "OptionCount"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("error %q does not mention %s", err, field)
		}
	}
}

func TestCompileRejectsBadSpecs(t *testing.T) {
	if _, err := compile(Spec{Name: "x", Version: 0}); err == nil {
		t.Fatalf("expected version error")
	}
	if _, err := compile(Spec{Name: "x", Version: 1, User: "{{.Missing"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
