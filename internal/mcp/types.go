// Package mcp exposes StudyFlow documents, chunk search and review sessions
// over the Model Context Protocol.
package mcp

import "time"

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists every uploaded document.
type ListDocumentsOutput struct {
	Documents []DocumentSummary `json:"documents"`
	Count     int               `json:"count"`
}

// DocumentSummary describes a document without its chunks.
type DocumentSummary struct {
	ID           string    `json:"id"`
	FileName     string    `json:"file_name"`
	Status       string    `json:"status"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Source       string    `json:"source,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Chunks       int       `json:"chunks"`
	Flashcards   int       `json:"flashcards"`
}

// GetDocumentInput selects a document.
type GetDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"The document id returned by list_documents"`
}

// GetDocumentOutput carries a document's outline and generated study content.
type GetDocumentOutput struct {
	Found     bool             `json:"found"`
	Document  *DocumentSummary `json:"document,omitempty"`
	Outline   []string         `json:"outline,omitempty"`
	Concepts  []ConceptInfo    `json:"concepts,omitempty"`
	Knowledge []KnowledgeInfo  `json:"knowledge,omitempty"`
	// Counts of generated questions by type.
	MultipleChoice int `json:"multiple_choice"`
	ShortAnswer    int `json:"short_answer"`
}

// ConceptInfo is a key concept of a document.
type ConceptInfo struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	Category   string `json:"category"`
}

// KnowledgeInfo is background material with its sources.
type KnowledgeInfo struct {
	Topic   string   `json:"topic"`
	Summary string   `json:"summary"`
	Sources []string `json:"sources,omitempty"`
}

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	DocumentID string  `json:"document_id" jsonschema:"The document to search"`
	Query      string  `json:"query" jsonschema:"Free text describing what to find"`
	MaxResults int     `json:"max_results,omitempty" jsonschema:"Maximum number of chunks to return (1-20, default 5)"`
	MinScore   float64 `json:"min_score,omitempty" jsonschema:"Minimum cosine similarity (0-1, default 0)"`
}

// SearchChunksOutput contains the ranked chunks.
type SearchChunksOutput struct {
	Results []ChunkResult `json:"results"`
	Message string        `json:"message,omitempty"`
}

// ChunkResult is one matching chunk.
type ChunkResult struct {
	Index   int     `json:"index"`
	Heading string  `json:"heading,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// BuildSessionInput defines the input parameters for the build_session tool.
type BuildSessionInput struct {
	DocumentID string `json:"document_id" jsonschema:"The document to study"`
	ItemCount  int    `json:"item_count,omitempty" jsonschema:"Maximum number of items in the session (default 20)"`
	Seed       uint64 `json:"seed,omitempty" jsonschema:"Optional seed for a reproducible question order"`
}

// BuildSessionOutput is an ordered list of study items.
type BuildSessionOutput struct {
	SessionID string        `json:"session_id"`
	Items     []SessionItem `json:"items"`
}

// SessionItem is one entry of a session, flattened for display. Options and
// Answer are only set for the item types that have them.
type SessionItem struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// RecordReviewInput defines the input parameters for the record_review tool.
type RecordReviewInput struct {
	SessionID        string  `json:"session_id" jsonschema:"Session returned by build_session"`
	ItemID           string  `json:"item_id" jsonschema:"The reviewed item"`
	Outcome          string  `json:"outcome" jsonschema:"One of correct, partial, incorrect, skipped"`
	TimeSpentSeconds float64 `json:"time_spent_seconds,omitempty" jsonschema:"Seconds spent on the item"`
}

// RecordReviewOutput echoes the stored review.
type RecordReviewOutput struct {
	ItemID     string    `json:"item_id"`
	Type       string    `json:"type"`
	Outcome    string    `json:"outcome"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// CompleteSessionInput closes a session.
type CompleteSessionInput struct {
	SessionID string `json:"session_id" jsonschema:"Session returned by build_session"`
}

// CompleteSessionOutput contains the final session statistics.
type CompleteSessionOutput struct {
	SessionID        string         `json:"session_id"`
	TotalItems       int            `json:"total_items"`
	CorrectAnswers   int            `json:"correct_answers"`
	IncorrectAnswers int            `json:"incorrect_answers"`
	TimeSpentSeconds float64        `json:"time_spent_seconds"`
	TopicBreakdown   map[string]int `json:"topic_breakdown"`
}

// ReviewFlashcardInput defines the input parameters for the review_flashcard tool.
type ReviewFlashcardInput struct {
	DocumentID  string `json:"document_id" jsonschema:"The document owning the flashcard"`
	FlashcardID string `json:"flashcard_id" jsonschema:"The flashcard to reschedule"`
	Outcome     string `json:"outcome" jsonschema:"One of correct, partial, incorrect, skipped"`
}

// ReviewFlashcardOutput reports the new schedule.
type ReviewFlashcardOutput struct {
	FlashcardID     string    `json:"flashcard_id"`
	NextReviewAt    time.Time `json:"next_review_at"`
	IntervalDays    int       `json:"interval_days"`
	EaseFactor      float64   `json:"ease_factor"`
	RepetitionCount int       `json:"repetition_count"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput summarises the library and index.
type StatusOutput struct {
	TotalDocuments int            `json:"total_documents"`
	ByStatus       map[string]int `json:"by_status"`
	TotalChunks    int            `json:"total_chunks"`
	IndexHealthy   bool           `json:"index_healthy"`
	IndexError     string         `json:"index_error,omitempty"`
}
