package store

import "time"

// Message status values.
const (
	StatusReplied     = "replied"
	StatusFailed      = "failed"
	StatusRateLimited = "rate_limited"
	StatusSent        = "sent" // delivered through the REST API
)

// Message is one inbound SMS and the reply produced for it.
type Message struct {
	ID         string    `json:"id"`
	MessageSID string    `json:"message_sid,omitempty"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Reply      string    `json:"reply"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Segments   int       `json:"segments"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows List results.
type Filter struct {
	From  string
	Limit int // defaults to 50
}

// Stats summarizes the message log.
type Stats struct {
	Total            int     `json:"total"`
	Failed           int     `json:"failed"`
	RateLimited      int     `json:"rate_limited"`
	DistinctSenders  int     `json:"distinct_senders"`
	AverageLatencyMS float64 `json:"average_latency_ms"`
}

// Recorder persists exchanges. The SQLite Store and Nop implement it.
type Recorder interface {
	Record(m *Message) error
	SetStatus(id, status, errMsg string) error
	List(f Filter) ([]Message, error)
	Stats() (*Stats, error)
	Close() error
}

// Nop discards everything; used when the store is disabled.
type Nop struct{}

func (Nop) Record(*Message) error                  { return nil }
func (Nop) SetStatus(string, string, string) error { return nil }
func (Nop) List(Filter) ([]Message, error)         { return nil, nil }
func (Nop) Stats() (*Stats, error)                 { return &Stats{}, nil }
func (Nop) Close() error                           { return nil }
