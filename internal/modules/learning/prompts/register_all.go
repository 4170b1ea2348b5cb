package prompts

// RegisterAll is run once, lazily, by Build.
func RegisterAll() {
	RegisterSpec(Spec{
		Name:    PromptModuleBoundaries,
		Version: 1,
		System: `
You split educational documents into self-contained learning modules.
Each module must cover one coherent topic and span between {{.MinWords}} and {{.MaxWords}} words.
Offsets are character positions into the text exactly as given.
Return JSON only.`,
		User: `
TEXT:
{{.DocumentText}}

Return a JSON array, in document order, of objects with exactly these fields:
- "title": short descriptive module title
- "start_offset": integer character offset where the module begins
- "end_offset": integer character offset where the module ends (exclusive)
- "summary": two-sentence summary of the module

Modules must not overlap and should together cover the text.`,
		Validators: []Validator{
			NonBlank("DocumentText", func(in Input) string { return in.DocumentText }),
			AtLeastOne("MaxWords", func(in Input) int { return in.MaxWords }),
		},
	})

	RegisterSpec(Spec{
		Name:    PromptModuleSummary,
		Version: 1,
		System: `
You write concise study summaries.
Answer with plain text only.`,
		User: `
Summarize the following learning material in exactly 2 sentences:

{{.ModuleText}}`,
		Validators: []Validator{
			NonBlank("ModuleText", func(in Input) string { return in.ModuleText }),
		},
	})

	RegisterSpec(Spec{
		Name:    PromptQuizGeneration,
		Version: 1,
		System: `
You write multiple-choice assessment questions grounded strictly in the provided material.
Distractors must be plausible but clearly wrong to someone who understood the material.
Never use "not <correct answer>" style distractors.
Return JSON only.`,
		User: `
MODULE: {{.ModuleTitle}}
SUMMARY: {{.ModuleSummary}}

CONTENT:
{{.ModuleContent}}

Write exactly {{.QuestionCount}} questions. Return a JSON object:
{"questions": [
  {
    "question": "question text",
    "options": [{{.OptionCount}} distinct answer strings],
    "correct_answer": "must be exactly one of the options",
    "explanation": "why the correct answer is right",
    "concept": "the single concept this question tests",
    "difficulty": number between 0 and 1
  }
]}

Rules:
- Every question tests a different concept; concept labels must all be distinct.
- Each question has exactly {{.OptionCount}} options.
- correct_answer is copied verbatim from options.`,
		Validators: []Validator{
			NonBlank("ModuleContent", func(in Input) string { return in.ModuleContent }),
			AtLeastOne("QuestionCount", func(in Input) int { return in.QuestionCount }),
			AtLeastOne("OptionCount", func(in Input) int { return in.OptionCount }),
		},
	})
}
