// Package study holds the domain types shared by the ingestion pipeline and
// the review scheduler.
package study

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks a document through the processing pipeline.
type DocumentStatus string

const (
	StatusUploaded          DocumentStatus = "uploaded"
	StatusProcessing        DocumentStatus = "processing"
	StatusChunking          DocumentStatus = "chunking"
	StatusEmbedding         DocumentStatus = "embedding"
	StatusGeneratingContent DocumentStatus = "generating_content"
	StatusEnriching         DocumentStatus = "enriching"
	StatusCompleted         DocumentStatus = "completed"
	StatusFailed            DocumentStatus = "failed"
)

// Terminal reports whether no further pipeline transitions are possible.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is an uploaded source document. It owns its chunks and study content.
type Document struct {
	ID           string         `json:"id"`
	FileName     string         `json:"file_name"`
	FileSize     int64          `json:"file_size"`
	ContentType  string         `json:"content_type"`
	StoragePath  string         `json:"storage_path"`
	UploadedAt   time.Time      `json:"uploaded_at"`
	Status       DocumentStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Outline      []string       `json:"outline,omitempty"` // Heading titles found during extraction
	Source       string         `json:"source,omitempty"`  // Import origin, e.g. owner/repo/path@sha

	Chunks       []*Chunk      `json:"chunks,omitempty"`
	StudyContent *StudyContent `json:"study_content,omitempty"`
}

// NewDocument creates a document in the Uploaded state.
func NewDocument(fileName string, size int64, contentType string) *Document {
	return &Document{
		ID:          uuid.New().String(),
		FileName:    fileName,
		FileSize:    size,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
		Status:      StatusUploaded,
	}
}

// Chunk is a bounded span of a document's text, the unit of retrieval.
type Chunk struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"document_id"`
	Index       int               `json:"index"`        // Position in document (0, 1, 2...)
	Content     string            `json:"content"`      // Never empty
	StartOffset int               `json:"start_offset"` // Running cursor over emitted content, in characters
	EndOffset   int               `json:"end_offset"`
	PageNumber  int               `json:"page_number,omitempty"` // 0 = unknown
	Heading     string            `json:"heading,omitempty"`
	Embedding   []float32         `json:"embedding,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// EmbeddingText is the text handed to the embedder: the heading, when present,
// is prepended so the vector carries section context.
func (c *Chunk) EmbeddingText() string {
	if c.Heading == "" {
		return c.Content
	}
	return c.Heading + "\n\n" + c.Content
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
}

// Difficulty grades generated study items.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Concept is a key idea extracted from a document.
type Concept struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Definition           string   `json:"definition"`
	RelatedConcepts      []string `json:"related_concepts,omitempty"`
	CommonMisconceptions []string `json:"common_misconceptions,omitempty"`
	Category             string   `json:"category,omitempty"`
}

// CategoryOrDefault returns the concept category, or "General" when unset.
func (c Concept) CategoryOrDefault() string {
	if c.Category == "" {
		return "General"
	}
	return c.Category
}

// Spaced repetition defaults for a new flashcard.
const (
	DefaultEaseFactor   = 2.5
	MinEaseFactor       = 1.3
	DefaultIntervalDays = 1
)

// Flashcard is a schedulable study item. Its scheduling fields are only
// mutated by the review scheduler.
type Flashcard struct {
	ID         string     `json:"id"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	Tags       []string   `json:"tags,omitempty"`
	Difficulty Difficulty `json:"difficulty"`

	NextReviewAt    time.Time `json:"next_review_at"`
	RepetitionCount int       `json:"repetition_count"`
	EaseFactor      float64   `json:"ease_factor"`
	IntervalDays    int       `json:"interval_days"`
}

// NewFlashcard creates a card that is due immediately.
func NewFlashcard(front, back string, tags []string, difficulty Difficulty, now time.Time) *Flashcard {
	if difficulty == "" {
		difficulty = DifficultyMedium
	}
	return &Flashcard{
		ID:           uuid.New().String(),
		Front:        front,
		Back:         back,
		Tags:         tags,
		Difficulty:   difficulty,
		NextReviewAt: now,
		EaseFactor:   DefaultEaseFactor,
		IntervalDays: DefaultIntervalDays,
	}
}

// MultipleChoiceQuestion has exactly one correct option.
type MultipleChoiceQuestion struct {
	ID                 string     `json:"id"`
	Question           string     `json:"question"`
	Options            []string   `json:"options"`
	CorrectOptionIndex int        `json:"correct_option_index"`
	Explanation        string     `json:"explanation,omitempty"`
	Tags               []string   `json:"tags,omitempty"`
	Difficulty         Difficulty `json:"difficulty"`
}

// ShortAnswerQuestion is graded against a model answer and key points.
type ShortAnswerQuestion struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	ModelAnswer string     `json:"model_answer"`
	KeyPoints   []string   `json:"key_points,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
}

// Citation points at an external source backing an enrichment entry.
type Citation struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt,omitempty"`
}

// EnrichedKnowledge is background material gathered for a search query.
type EnrichedKnowledge struct {
	ID        string     `json:"id"`
	Topic     string     `json:"topic"`
	Summary   string     `json:"summary"`
	Citations []Citation `json:"citations,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
}

// StudyContent aggregates everything generated for one document.
type StudyContent struct {
	ID                      string                    `json:"id"`
	DocumentID              string                    `json:"document_id"`
	CreatedAt               time.Time                 `json:"created_at"`
	Concepts                []Concept                 `json:"concepts"`
	Flashcards              []*Flashcard              `json:"flashcards"`
	MultipleChoiceQuestions []*MultipleChoiceQuestion `json:"multiple_choice_questions"`
	ShortAnswerQuestions    []*ShortAnswerQuestion    `json:"short_answer_questions"`
	EnrichedKnowledge       []EnrichedKnowledge       `json:"enriched_knowledge"`
}

// Flashcard looks up a card by ID.
func (sc *StudyContent) Flashcard(id string) (*Flashcard, bool) {
	for _, card := range sc.Flashcards {
		if card.ID == id {
			return card, true
		}
	}
	return nil, false
}
