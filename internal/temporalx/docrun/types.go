package docrun

const (
	WorkflowName    = "document_process"
	ActivityProcess = "document_process_run"
)

// Result is what the activity reports back to the workflow history.
type Result struct {
	JobID   string `json:"job_id"`
	Skipped bool   `json:"skipped,omitempty"`
}
