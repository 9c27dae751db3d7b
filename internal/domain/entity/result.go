package entity

import "time"

// AnalysisMetadata describes how an analysis was produced.
type AnalysisMetadata struct {
	FileName    string `json:"file_name"`
	RowCount    int    `json:"row_count"`
	AssistantID string `json:"assistant_id"`
	ThreadID    string `json:"thread_id"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

// AnalysisResult is the full outcome of analyzing one uploaded document.
type AnalysisResult struct {
	Summary  string           `json:"summary"`
	Insights []string         `json:"insights"`
	Charts   []ChartRecord    `json:"charts"`
	Metadata AnalysisMetadata `json:"metadata"`
}

// ChatReply is the outcome of a follow-up message on an existing session.
type ChatReply struct {
	Content string        `json:"content"`
	Charts  []ChartRecord `json:"charts"`
	Cached  bool          `json:"cached"` // answered from the semantic cache
	Score   float32       `json:"score,omitempty"`
}

// CachedAnswer is a semantic-cache hit payload.
type CachedAnswer struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float32 `json:"score"`
}

// CallStats summarizes remote API usage for observability widgets.
type CallStats struct {
	TotalCalls             int     `json:"total_calls"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
	CallsPerMinute         float64 `json:"calls_per_minute"`
}

// HistoryDocument is one persisted chat/chart/dashboard record.
type HistoryDocument struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // e.g. "chat", "chart", "dashboard"
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
