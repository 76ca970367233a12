// Package generator produces concepts, flashcards and quiz questions from
// document text, either with an OpenAI chat model or with offline templates.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/bull/studyflow/internal/study"
)

const (
	// DefaultModel is the chat model used for content generation.
	DefaultModel = openai.ChatModelGPT4oMini

	// DefaultMaxTokens is the maximum source length before truncation (in tokens).
	DefaultMaxTokens = 4000
)

// OpenAIGenerator produces study content with JSON-mode chat completions.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
	now       func() time.Time

	maxElapsed time.Duration
}

// NewOpenAIGenerator creates a generator with the given OpenAI client. Empty
// model and non-positive maxTokens select the defaults.
func NewOpenAIGenerator(client *openai.Client, model string, maxTokens int, logger *slog.Logger) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{
		client:     client,
		model:      model,
		maxTokens:  maxTokens,
		logger:     logger,
		now:        time.Now,
		maxElapsed: 30 * time.Second,
	}
}

type conceptDTO struct {
	Name                 string   `json:"name"`
	Definition           string   `json:"definition"`
	RelatedConcepts      []string `json:"related_concepts"`
	CommonMisconceptions []string `json:"common_misconceptions"`
	Category             string   `json:"category"`
}

type flashcardDTO struct {
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	Tags       []string `json:"tags"`
	Difficulty string   `json:"difficulty"`
}

type mcqDTO struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
	Explanation        string   `json:"explanation"`
	Tags               []string `json:"tags"`
	Difficulty         string   `json:"difficulty"`
}

type shortAnswerDTO struct {
	Question    string   `json:"question"`
	ModelAnswer string   `json:"model_answer"`
	KeyPoints   []string `json:"key_points"`
	Tags        []string `json:"tags"`
	Difficulty  string   `json:"difficulty"`
}

// ExtractConcepts asks the model for the key concepts of text.
func (g *OpenAIGenerator) ExtractConcepts(ctx context.Context, text string) ([]study.Concept, error) {
	prompt := fmt.Sprintf(`Identify the key concepts a student must learn from this study material.

Study material:
%s

Respond in JSON format:
{"concepts": [{"name": "Concept", "definition": "One or two sentence definition", "related_concepts": ["Other"], "common_misconceptions": ["A statement students often wrongly believe"], "category": "Topic area"}]}

Return between 3 and 15 concepts, most important first.`, g.truncateContent(text))

	var resp struct {
		Concepts []conceptDTO `json:"concepts"`
	}
	if err := g.complete(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	concepts := make([]study.Concept, 0, len(resp.Concepts))
	for _, c := range resp.Concepts {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.Definition) == "" {
			continue
		}
		concepts = append(concepts, study.Concept{
			ID:                   newID(),
			Name:                 strings.TrimSpace(c.Name),
			Definition:           strings.TrimSpace(c.Definition),
			RelatedConcepts:      c.RelatedConcepts,
			CommonMisconceptions: c.CommonMisconceptions,
			Category:             c.Category,
		})
	}
	return concepts, nil
}

// GenerateFlashcards asks the model for question/answer cards covering concepts.
func (g *OpenAIGenerator) GenerateFlashcards(ctx context.Context, concepts []study.Concept, text string) ([]*study.Flashcard, error) {
	prompt := fmt.Sprintf(`Write flashcards that test understanding of these concepts.

Concepts:
%s

Source material:
%s

Respond in JSON format:
{"flashcards": [{"front": "Question", "back": "Answer", "tags": ["Category"], "difficulty": "easy|medium|hard"}]}

Write one card per concept and add "True or False" cards for listed misconceptions.`, describeConcepts(concepts), g.truncateContent(text))

	var resp struct {
		Flashcards []flashcardDTO `json:"flashcards"`
	}
	if err := g.complete(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	now := g.now()
	cards := make([]*study.Flashcard, 0, len(resp.Flashcards))
	for _, c := range resp.Flashcards {
		if strings.TrimSpace(c.Front) == "" || strings.TrimSpace(c.Back) == "" {
			continue
		}
		cards = append(cards, study.NewFlashcard(c.Front, c.Back, c.Tags, parseDifficulty(c.Difficulty), now))
	}
	return cards, nil
}

// GenerateMCQs asks the model for multiple-choice questions. Questions with
// fewer than two options or an out-of-range answer are discarded.
func (g *OpenAIGenerator) GenerateMCQs(ctx context.Context, concepts []study.Concept, text string) ([]*study.MultipleChoiceQuestion, error) {
	prompt := fmt.Sprintf(`Write multiple choice questions with plausible distractors for these concepts.

Concepts:
%s

Source material:
%s

Respond in JSON format:
{"questions": [{"question": "Question", "options": ["A", "B", "C", "D"], "correct_option_index": 0, "explanation": "Why the answer is correct", "tags": ["Category"], "difficulty": "easy|medium|hard"}]}

Write at most 5 questions with exactly one correct option each.`, describeConcepts(concepts), g.truncateContent(text))

	var resp struct {
		Questions []mcqDTO `json:"questions"`
	}
	if err := g.complete(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	questions := make([]*study.MultipleChoiceQuestion, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		if len(q.Options) < 2 || q.CorrectOptionIndex < 0 || q.CorrectOptionIndex >= len(q.Options) {
			g.logger.Warn("discarding malformed multiple choice question", "question", q.Question, "options", len(q.Options))
			continue
		}
		questions = append(questions, &study.MultipleChoiceQuestion{
			ID:                 newID(),
			Question:           q.Question,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			Explanation:        q.Explanation,
			Tags:               q.Tags,
			Difficulty:         parseDifficulty(q.Difficulty),
		})
	}
	return questions, nil
}

// GenerateShortAnswers asks the model for open questions with model answers.
func (g *OpenAIGenerator) GenerateShortAnswers(ctx context.Context, concepts []study.Concept, text string) ([]*study.ShortAnswerQuestion, error) {
	prompt := fmt.Sprintf(`Write short answer questions that require explaining these concepts in the student's own words.

Concepts:
%s

Source material:
%s

Respond in JSON format:
{"questions": [{"question": "Question", "model_answer": "Ideal answer", "key_points": ["Point"], "tags": ["Category"], "difficulty": "easy|medium|hard"}]}

Write at most 3 questions.`, describeConcepts(concepts), g.truncateContent(text))

	var resp struct {
		Questions []shortAnswerDTO `json:"questions"`
	}
	if err := g.complete(ctx, prompt, &resp); err != nil {
		return nil, err
	}

	questions := make([]*study.ShortAnswerQuestion, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		questions = append(questions, &study.ShortAnswerQuestion{
			ID:          newID(),
			Question:    q.Question,
			ModelAnswer: q.ModelAnswer,
			KeyPoints:   q.KeyPoints,
			Tags:        q.Tags,
			Difficulty:  parseDifficulty(q.Difficulty),
		})
	}
	return questions, nil
}

// complete runs one JSON-mode chat completion and decodes the reply into out.
// Rate limits and server errors are retried with exponential backoff.
func (g *OpenAIGenerator) complete(ctx context.Context, prompt string, out any) error {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are an expert tutor who writes accurate study material. Always answer with a single JSON object."),
			openai.UserMessage(prompt),
		},
		Model: g.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	}

	var content string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = g.maxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *OpenAIGenerator) truncateContent(content string) string {
	// Rough estimate: 1 token ≈ 4 characters
	maxChars := g.maxTokens * 4

	runes := []rune(content)
	if len(runes) <= maxChars {
		return content
	}

	g.logger.Warn("truncating content for generation",
		"from_chars", len(runes),
		"to_chars", maxChars,
		"estimated_tokens", g.maxTokens)

	return string(runes[:maxChars])
}

func describeConcepts(concepts []study.Concept) string {
	var b strings.Builder
	for _, c := range concepts {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Definition)
		if len(c.CommonMisconceptions) > 0 {
			fmt.Fprintf(&b, "  misconceptions: %s\n", strings.Join(c.CommonMisconceptions, "; "))
		}
	}
	return b.String()
}

func parseDifficulty(s string) study.Difficulty {
	switch d := study.Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case study.DifficultyEasy, study.DifficultyMedium, study.DifficultyHard:
		return d
	}
	return study.DifficultyMedium
}

func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
