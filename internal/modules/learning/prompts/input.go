package prompts

// Input carries every field a prompt template may reference.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	// Segmentation
	DocumentText string
	MinWords     int
	MaxWords     int

	// Summary
	ModuleText string

	// Quiz
	ModuleTitle   string
	ModuleSummary string
	ModuleContent string
	QuestionCount int
	OptionCount   int
}
