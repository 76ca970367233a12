// Package review implements SM-2 style spaced repetition scheduling and the
// composition of mixed study sessions.
package review

import (
	"math"
	"sort"
	"time"

	"github.com/bull/studyflow/internal/study"
)

const day = 24 * time.Hour

// Quality maps a review outcome to its SM-2 quality score.
func Quality(outcome study.ReviewOutcome) float64 {
	switch outcome {
	case study.OutcomeCorrect:
		return 5
	case study.OutcomePartial:
		return 3
	case study.OutcomeSkipped:
		return 2
	default:
		return 0
	}
}

// Scheduler updates flashcard scheduling fields after a review. Callers
// serialize updates to the same card.
type Scheduler struct {
	now func() time.Time
}

// NewScheduler creates a scheduler. A nil clock means time.Now.
func NewScheduler(now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{now: now}
}

// Schedule applies outcome to card in place and returns it.
func (s *Scheduler) Schedule(card *study.Flashcard, outcome study.ReviewOutcome) *study.Flashcard {
	q := Quality(outcome)

	card.RepetitionCount++
	card.EaseFactor = math.Max(study.MinEaseFactor, card.EaseFactor+(0.1-(5-q)*(0.08+(5-q)*0.02)))

	switch {
	case q < 3:
		// Lapse: start over.
		card.RepetitionCount = 0
		card.IntervalDays = 1
	case card.RepetitionCount == 1:
		card.IntervalDays = 1
	case card.RepetitionCount == 2:
		card.IntervalDays = 6
	default:
		card.IntervalDays = max(1, int(math.RoundToEven(float64(card.IntervalDays)*card.EaseFactor)))
	}

	card.NextReviewAt = s.now().Add(time.Duration(card.IntervalDays) * day)
	return card
}

// DueFlashcards returns the cards whose next review is at or before now,
// most overdue first.
func DueFlashcards(cards []*study.Flashcard, now time.Time) []*study.Flashcard {
	due := make([]*study.Flashcard, 0, len(cards))
	for _, card := range cards {
		if !card.NextReviewAt.After(now) {
			due = append(due, card)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextReviewAt.Before(due[j].NextReviewAt)
	})
	return due
}
