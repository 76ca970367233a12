package study

import (
	"fmt"
	"strings"
	"time"
)

// ReviewOutcome is the learner's self-assessment for one reviewed item.
type ReviewOutcome string

const (
	OutcomeCorrect   ReviewOutcome = "correct"
	OutcomePartial   ReviewOutcome = "partial"
	OutcomeIncorrect ReviewOutcome = "incorrect"
	OutcomeSkipped   ReviewOutcome = "skipped"
)

// ParseReviewOutcome accepts the outcome names case-insensitively.
func ParseReviewOutcome(s string) (ReviewOutcome, error) {
	switch o := ReviewOutcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeCorrect, OutcomePartial, OutcomeIncorrect, OutcomeSkipped:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown review outcome %q", ErrInvalidInput, s)
}

// ItemType tags the kind of study item a session or review refers to.
type ItemType string

const (
	ItemFlashcard      ItemType = "flashcard"
	ItemMultipleChoice ItemType = "multiple_choice"
	ItemShortAnswer    ItemType = "short_answer"
)

// ReviewRecord is one reviewed item within a study session.
type ReviewRecord struct {
	ItemID     string        `json:"item_id"`
	Type       ItemType      `json:"type"`
	ReviewedAt time.Time     `json:"reviewed_at"`
	Outcome    ReviewOutcome `json:"outcome"`
	TimeSpent  time.Duration `json:"time_spent"`
}

// SessionStatistics summarises the reviews recorded in a session.
type SessionStatistics struct {
	TotalItems       int            `json:"total_items"`
	CorrectAnswers   int            `json:"correct_answers"`
	IncorrectAnswers int            `json:"incorrect_answers"`
	TotalTimeSpent   time.Duration  `json:"total_time_spent"`
	TopicBreakdown   map[string]int `json:"topic_breakdown"`
}
