package review

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/studyflow/internal/study"
)

// Session is a learner's sitting over one document's study content.
type Session struct {
	ID          string                  `json:"id"`
	DocumentID  string                  `json:"document_id"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Reviews     []study.ReviewRecord    `json:"reviews"`
	Statistics  study.SessionStatistics `json:"statistics"`
}

// Tracker records reviews into sessions and reschedules reviewed flashcards.
type Tracker struct {
	scheduler *Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// NewTracker creates a tracker that schedules flashcards with scheduler.
func NewTracker(scheduler *Scheduler, now func() time.Time, logger *slog.Logger) *Tracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{scheduler: scheduler, now: now, logger: logger}
}

// Start opens a new session for documentID.
func (t *Tracker) Start(documentID string) *Session {
	return &Session{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		StartedAt:  t.now(),
		Statistics: study.SessionStatistics{TopicBreakdown: make(map[string]int)},
	}
}

// Record logs the outcome for itemID, which must belong to content. Flashcards
// are rescheduled; questions only count toward statistics.
func (t *Tracker) Record(s *Session, content *study.StudyContent, itemID string, outcome study.ReviewOutcome, spent time.Duration) (*study.ReviewRecord, error) {
	if s.CompletedAt != nil {
		return nil, fmt.Errorf("%w: session %s already completed", study.ErrInvalidInput, s.ID)
	}

	itemType, tags, ok := lookupItem(content, itemID)
	if !ok {
		return nil, fmt.Errorf("%w: study item %s", study.ErrNotFound, itemID)
	}

	if itemType == study.ItemFlashcard {
		card, _ := content.Flashcard(itemID)
		t.scheduler.Schedule(card, outcome)
		t.logger.Debug("rescheduled flashcard",
			"flashcard_id", card.ID,
			"interval_days", card.IntervalDays,
			"ease_factor", card.EaseFactor)
	}

	rec := study.ReviewRecord{
		ItemID:     itemID,
		Type:       itemType,
		ReviewedAt: t.now(),
		Outcome:    outcome,
		TimeSpent:  spent,
	}
	s.Reviews = append(s.Reviews, rec)

	stats := &s.Statistics
	if stats.TopicBreakdown == nil {
		stats.TopicBreakdown = make(map[string]int)
	}
	stats.TotalItems++
	stats.TotalTimeSpent += spent
	switch outcome {
	case study.OutcomeCorrect:
		stats.CorrectAnswers++
	case study.OutcomeIncorrect:
		stats.IncorrectAnswers++
	}
	stats.TopicBreakdown[topic(tags)]++

	return &rec, nil
}

// Complete stamps the session as finished.
func (t *Tracker) Complete(s *Session) {
	if s.CompletedAt != nil {
		return
	}
	now := t.now()
	s.CompletedAt = &now
	t.logger.Info("study session completed",
		"session_id", s.ID,
		"document_id", s.DocumentID,
		"items", s.Statistics.TotalItems,
		"correct", s.Statistics.CorrectAnswers)
}

func lookupItem(content *study.StudyContent, id string) (study.ItemType, []string, bool) {
	if content == nil {
		return "", nil, false
	}
	for _, c := range content.Flashcards {
		if c.ID == id {
			return study.ItemFlashcard, c.Tags, true
		}
	}
	for _, q := range content.MultipleChoiceQuestions {
		if q.ID == id {
			return study.ItemMultipleChoice, q.Tags, true
		}
	}
	for _, q := range content.ShortAnswerQuestions {
		if q.ID == id {
			return study.ItemShortAnswer, q.Tags, true
		}
	}
	return "", nil, false
}

func topic(tags []string) string {
	if len(tags) == 0 || tags[0] == "" {
		return "General"
	}
	return tags[0]
}
