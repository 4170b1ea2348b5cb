package prompts

type PromptName string

const (
	PromptModuleBoundaries PromptName = "module_boundaries"
	PromptModuleSummary    PromptName = "module_summary"
	PromptQuizGeneration   PromptName = "quiz_generation"
)
