package domain

// TaskSubmissionTypeProduct asks the task service to import a product file.
const TaskSubmissionTypeProduct = "product"

type TaskRequest struct {
	Path           string `json:"path"`           // File path as seen by the task service
	WebsiteAddress string `json:"websiteAddress"` // Home page of the scraped store
}

// TaskSubmission is posted once per category after its output file is complete.
type TaskSubmission struct {
	Requests []TaskRequest `json:"requests"`
	Type     string        `json:"type"`
}

// TaskReport is the completion payload sent after all categories of a task were processed.
type TaskReport struct {
	Task         string         `json:"task"`
	FailedCount  int            `json:"failedCount"`
	SuccessCount int            `json:"successCount"`
	ErrorLog     map[string]any `json:"errorLog"`
	Files        []string       `json:"files"`
}

// NewTaskReport builds a report with an empty error log and file list.
func NewTaskReport(taskID string, failed, success int) TaskReport {
	return TaskReport{
		Task:         taskID,
		FailedCount:  failed,
		SuccessCount: success,
		ErrorLog:     map[string]any{},
		Files:        []string{},
	}
}
