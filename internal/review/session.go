package review

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bull/studyflow/internal/study"
)

// DefaultSessionSize is the number of items requested when none is given.
const DefaultSessionSize = 20

// Item is one entry of a study session. Exactly one of the pointers is set,
// selected by Type.
type Item struct {
	Type           study.ItemType                `json:"type"`
	ID             string                        `json:"id"`
	Flashcard      *study.Flashcard              `json:"flashcard,omitempty"`
	MultipleChoice *study.MultipleChoiceQuestion `json:"multiple_choice,omitempty"`
	ShortAnswer    *study.ShortAnswerQuestion    `json:"short_answer,omitempty"`
}

// SessionBuilder composes sessions from due flashcards and shuffled questions.
type SessionBuilder struct {
	rng *rand.Rand
	now func() time.Time
}

// NewSessionBuilder creates a builder. Pass a seeded rng for reproducible
// question order; nil uses a randomly seeded source. A nil clock means time.Now.
func NewSessionBuilder(rng *rand.Rand, now func() time.Time) *SessionBuilder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if now == nil {
		now = time.Now
	}
	return &SessionBuilder{rng: rng, now: now}
}

// Build returns at most n items. Pools hold up to n/2 due flashcards, n/3
// multiple-choice and n/6 short-answer questions; they are interleaved one
// flashcard then one multiple-choice per round, with a short answer added
// whenever the session length is a multiple of five.
func (b *SessionBuilder) Build(content *study.StudyContent, n int) ([]Item, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: item count must be positive, got %d", study.ErrInvalidInput, n)
	}
	if content == nil {
		return []Item{}, nil
	}

	flashcards := DueFlashcards(content.Flashcards, b.now())
	flashcards = flashcards[:min(len(flashcards), n/2)]
	mcqs := shuffled(b.rng, content.MultipleChoiceQuestions, n/3)
	shortAnswers := shuffled(b.rng, content.ShortAnswerQuestions, n/6)

	items := make([]Item, 0, n)
	var fi, mi, si int
	for len(items) < n && (fi < len(flashcards) || mi < len(mcqs) || si < len(shortAnswers)) {
		added := false

		if fi < len(flashcards) {
			items = append(items, Item{Type: study.ItemFlashcard, ID: flashcards[fi].ID, Flashcard: flashcards[fi]})
			fi++
			added = true
		}
		if mi < len(mcqs) && len(items) < n {
			items = append(items, Item{Type: study.ItemMultipleChoice, ID: mcqs[mi].ID, MultipleChoice: mcqs[mi]})
			mi++
			added = true
		}
		if si < len(shortAnswers) && len(items) < n && len(items)%5 == 0 {
			items = append(items, Item{Type: study.ItemShortAnswer, ID: shortAnswers[si].ID, ShortAnswer: shortAnswers[si]})
			si++
			added = true
		}

		// Only short answers are left and the length is off the five-slot grid.
		if !added {
			break
		}
	}
	return items, nil
}

// shuffled returns up to limit elements of a uniformly shuffled copy of items.
func shuffled[T any](rng *rand.Rand, items []T, limit int) []T {
	out := make([]T, len(items))
	copy(out, items)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:min(len(out), limit)]
}
