package model

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session is a durable, ordered conversation thread.
type Session struct {
	SessionID    string    `json:"sessionId"`
	Label        string    `json:"label"`
	Active       bool      `json:"active"`
	CreationTime time.Time `json:"creationTime"`
	UpdateTime   time.Time `json:"updateTime"`
}

// Message belongs to exactly one session. Messages are append-only and
// totally ordered by creation time within their session.
type Message struct {
	MessageID    string                 `json:"messageId"`
	SessionID    string                 `json:"sessionId"`
	Role         string                 `json:"role"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreationTime time.Time              `json:"creationTime"`
}

// ToolDescriptor describes one invocable tool offered to the completion
// provider. Parameters is a JSON-schema object.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolResult pairs one requested tool call with its outcome. Err is set
// instead of Result when the invocation failed; the failure is captured,
// never propagated out of the dispatch cycle.
type ToolResult struct {
	Name      string                 `json:"name"`
	Arguments string                 `json:"arguments,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Err       string                 `json:"error,omitempty"`
}

// AuditRecord captures one full dispatch cycle. Append-only; never read by
// the dispatcher itself.
type AuditRecord struct {
	AuditID      string    `json:"auditId"`
	SessionID    string    `json:"sessionId"`
	Input        string    `json:"input"`
	Tools        []string  `json:"tools,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	ElapsedMS    int64     `json:"elapsedMs"`
	CreationTime time.Time `json:"creationTime"`
}

// Audit statuses.
const (
	AuditComplete = "COMPLETE"
	AuditFailed   = "FAILED"
)

// MemoryEntry is a semantically searchable fact. Every stored entry carries
// a valid embedding; rows without one are never inserted.
type MemoryEntry struct {
	MemoryID     string                 `json:"memoryId"`
	Content      string                 `json:"content"`
	ContextType  string                 `json:"contextType"`
	Importance   float64                `json:"importanceScore"`
	Embedding    []float32              `json:"-"`
	SessionID    *string                `json:"sessionId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreationTime time.Time              `json:"creationTime"`

	// Similarity is populated on query results only.
	Similarity float64 `json:"similarity,omitempty"`
}

// OutboxJob is a deferred background task persisted alongside the write that
// produced it.
type OutboxJob struct {
	ID           int64                  `json:"id"`
	Op           string                 `json:"op"`
	Payload      map[string]interface{} `json:"payload"`
	AttemptCount int                    `json:"attemptCount"`
}
