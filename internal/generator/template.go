package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/studyflow/internal/study"
)

const (
	maxTemplateConcepts     = 10
	maxMisconceptionCards   = 2
	maxTemplateMCQs         = 5
	maxTemplateShortAnswers = 3
)

var (
	markdownHeading = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	colonHeading    = regexp.MustCompile(`^([A-Z][^.!?]*):\s*$`)
	numberedHeading = regexp.MustCompile(`^\d+\.\s+([A-Z].+)$`)
	sentenceEnd     = regexp.MustCompile(`[.!?](\s|$)`)
)

// TemplateGenerator builds study content without a model: concepts come from
// section headings and questions are filled from fixed templates.
type TemplateGenerator struct {
	now func() time.Time
}

// NewTemplateGenerator creates an offline generator. A nil clock means time.Now.
func NewTemplateGenerator(now func() time.Time) *TemplateGenerator {
	if now == nil {
		now = time.Now
	}
	return &TemplateGenerator{now: now}
}

// ExtractConcepts names one concept per distinct heading, defined by the
// first sentence of the section below it. Text without headings yields a
// single concept built from its opening sentence.
func (g *TemplateGenerator) ExtractConcepts(ctx context.Context, text string) ([]study.Concept, error) {
	var (
		concepts []study.Concept
		seen     = make(map[string]bool)
		pending  string
		body     strings.Builder
	)

	flush := func() {
		if pending == "" {
			return
		}
		if def := firstSentence(body.String()); def != "" && !seen[strings.ToLower(pending)] && len(concepts) < maxTemplateConcepts {
			seen[strings.ToLower(pending)] = true
			concepts = append(concepts, study.Concept{
				ID:         newID(),
				Name:       pending,
				Definition: def,
			})
		}
		pending = ""
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if name := headingTitle(trimmed); name != "" {
			flush()
			pending = name
			continue
		}
		if pending != "" {
			body.WriteString(trimmed)
			body.WriteByte(' ')
		}
	}
	flush()

	if len(concepts) == 0 {
		if def := firstSentence(text); def != "" {
			concepts = append(concepts, study.Concept{
				ID:         newID(),
				Name:       titleFrom(def),
				Definition: def,
			})
		}
	}
	return concepts, nil
}

// GenerateFlashcards writes one definition card per concept plus up to two
// true-or-false cards for its misconceptions.
func (g *TemplateGenerator) GenerateFlashcards(ctx context.Context, concepts []study.Concept, text string) ([]*study.Flashcard, error) {
	now := g.now()
	var cards []*study.Flashcard
	for _, c := range concepts {
		category := c.CategoryOrDefault()
		cards = append(cards, study.NewFlashcard(
			fmt.Sprintf("What is %s?", c.Name),
			c.Definition,
			[]string{category},
			study.DifficultyMedium,
			now,
		))

		for _, m := range c.CommonMisconceptions[:min(len(c.CommonMisconceptions), maxMisconceptionCards)] {
			cards = append(cards, study.NewFlashcard(
				fmt.Sprintf("True or False: %s", m),
				fmt.Sprintf("False. This is a common misconception about %s.", c.Name),
				[]string{category, "Misconceptions"},
				study.DifficultyHard,
				now,
			))
		}
	}
	return cards, nil
}

// GenerateMCQs asks for the definition of each of the first five concepts,
// using other concepts' definitions as distractors when there are enough.
func (g *TemplateGenerator) GenerateMCQs(ctx context.Context, concepts []study.Concept, text string) ([]*study.MultipleChoiceQuestion, error) {
	var questions []*study.MultipleChoiceQuestion
	for i, c := range concepts[:min(len(concepts), maxTemplateMCQs)] {
		options := []string{c.Definition}
		for j := 1; len(options) < 4 && j < len(concepts); j++ {
			other := concepts[(i+j)%len(concepts)]
			if other.Definition != c.Definition {
				options = append(options, other.Definition)
			}
		}
		for _, filler := range []string{"An incorrect but plausible option", "Another distractor", "Yet another distractor"} {
			if len(options) == 4 {
				break
			}
			options = append(options, filler)
		}

		questions = append(questions, &study.MultipleChoiceQuestion{
			ID:                 newID(),
			Question:           fmt.Sprintf("Which of the following best describes %s?", c.Name),
			Options:            options,
			CorrectOptionIndex: 0,
			Explanation:        fmt.Sprintf("The correct answer is the definition of %s. %s", c.Name, c.Definition),
			Tags:               []string{c.CategoryOrDefault()},
			Difficulty:         study.DifficultyMedium,
		})
	}
	return questions, nil
}

// GenerateShortAnswers asks to explain each of the first three concepts.
func (g *TemplateGenerator) GenerateShortAnswers(ctx context.Context, concepts []study.Concept, text string) ([]*study.ShortAnswerQuestion, error) {
	var questions []*study.ShortAnswerQuestion
	for _, c := range concepts[:min(len(concepts), maxTemplateShortAnswers)] {
		questions = append(questions, &study.ShortAnswerQuestion{
			ID:          newID(),
			Question:    fmt.Sprintf("Explain %s and its significance.", c.Name),
			ModelAnswer: c.Definition,
			KeyPoints: []string{
				fmt.Sprintf("Definition of %s", c.Name),
				"Key characteristics",
				"Practical applications",
			},
			Tags:       []string{c.CategoryOrDefault()},
			Difficulty: study.DifficultyHard,
		})
	}
	return questions, nil
}

func headingTitle(line string) string {
	for _, re := range []*regexp.Regexp{markdownHeading, colonHeading, numberedHeading} {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(strings.TrimRight(m[1], "#: "))
		}
	}
	return ""
}

func firstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		return text[:loc[0]+1]
	}
	return text
}

// titleFrom uses the first few words of a sentence as a concept name.
func titleFrom(sentence string) string {
	words := strings.Fields(strings.TrimRight(sentence, ".!?"))
	return strings.Join(words[:min(len(words), 4)], " ")
}

func newID() string {
	return uuid.New().String()
}
