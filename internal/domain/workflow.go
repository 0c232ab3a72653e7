package domain

import "time"

// WorkflowResult is the outcome of processing a single feed item.
type WorkflowResult struct {
	WorkflowID        string        `json:"workflow_id"`
	Success           bool          `json:"success"`
	Message           string        `json:"message,omitempty"`
	EventID           string        `json:"event_id,omitempty"`
	Confidence        float64       `json:"confidence"`
	VersionCreated    bool          `json:"version_created"`
	ChangesCount      int           `json:"changes_count"`
	NotificationsSent int           `json:"notifications_sent"`
	ProcessingTime    time.Duration `json:"processing_time"`
	Errors            []string      `json:"errors,omitempty"`
}

// CycleResult summarises one monitoring cycle.
type CycleResult struct {
	StartedAt             time.Time        `json:"started_at"`
	Duration              time.Duration    `json:"duration"`
	ItemsFetched          int              `json:"items_fetched"`
	Total                 int              `json:"total"`
	Successful            int              `json:"successful"`
	Failed                int              `json:"failed"`
	Skipped               int              `json:"skipped"`
	AverageProcessingTime time.Duration    `json:"average_processing_time"`
	Results               []WorkflowResult `json:"results"`
}

// Statistics are the running orchestrator counters.
type Statistics struct {
	TotalWorkflows        int           `json:"total_workflows"`
	SuccessfulWorkflows   int           `json:"successful_workflows"`
	FailedWorkflows       int           `json:"failed_workflows"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
	LastCycleAt           time.Time     `json:"last_cycle_at"`
}

// HealthReport is the AND of every component's self-reported health.
type HealthReport struct {
	Healthy    bool            `json:"healthy"`
	Components map[string]bool `json:"components"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// CycleMetrics is handed to the persistence boundary after each cycle.
type CycleMetrics struct {
	RecordedAt            time.Time
	ItemsFetched          int
	Successful            int
	Failed                int
	AverageProcessingTime time.Duration
	ActiveSources         int
}
