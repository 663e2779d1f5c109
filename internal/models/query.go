package models

import "fmt"

// AskRequest is a question against the index, optionally scoped to a
// conversation so prior turns inform the answer.
type AskRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Validate normalizes the request and rejects empty questions.
func (r *AskRequest) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.TopK > 50 {
		r.TopK = 50
	}
	return nil
}

// AskResponse is the answer to one question.
type AskResponse struct {
	Answer         string      `json:"answer"`
	Sources        []SourceRef `json:"sources"`
	FromCache      bool        `json:"from_cache"`
	Domain         string      `json:"domain,omitempty"`
	DomainLabel    string      `json:"domain_label,omitempty"`
	ResponseTimeMS int64       `json:"response_time_ms"`
}

// Turn is one prior conversation message supplied by the message store.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
