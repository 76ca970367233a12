package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/studyflow/internal/study"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const notes = `# Photosynthesis
Photosynthesis converts light energy into chemical energy. It happens in chloroplasts.

## Cellular Respiration
Cellular respiration releases energy stored in glucose. Mitochondria do most of the work.

Key Terms:
ATP is the energy currency of the cell.
`

// TestTemplate_ExtractConcepts verifies concepts come from headings.
func TestTemplate_ExtractConcepts(t *testing.T) {
	g := NewTemplateGenerator(func() time.Time { return fixedNow })
	concepts, err := g.ExtractConcepts(context.Background(), notes)
	if err != nil {
		t.Fatalf("ExtractConcepts failed: %v", err)
	}

	want := []struct{ name, def string }{
		{"Photosynthesis", "Photosynthesis converts light energy into chemical energy."},
		{"Cellular Respiration", "Cellular respiration releases energy stored in glucose."},
		{"Key Terms", "ATP is the energy currency of the cell."},
	}
	if len(concepts) != len(want) {
		t.Fatalf("Expected %d concepts, got %d", len(want), len(concepts))
	}
	for i, w := range want {
		if concepts[i].Name != w.name {
			t.Errorf("Concept %d name: expected %q, got %q", i, w.name, concepts[i].Name)
		}
		if concepts[i].Definition != w.def {
			t.Errorf("Concept %d definition: expected %q, got %q", i, w.def, concepts[i].Definition)
		}
		if concepts[i].ID == "" {
			t.Errorf("Concept %d has no ID", i)
		}
	}
}

// TestTemplate_ExtractConcepts_NoHeadings verifies the single-concept fallback.
func TestTemplate_ExtractConcepts_NoHeadings(t *testing.T) {
	g := NewTemplateGenerator(nil)
	concepts, err := g.ExtractConcepts(context.Background(), "Entropy measures disorder in a system. It always increases.")
	if err != nil {
		t.Fatalf("ExtractConcepts failed: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("Expected 1 concept, got %d", len(concepts))
	}
	if concepts[0].Name != "Entropy measures disorder in" {
		t.Errorf("Unexpected name %q", concepts[0].Name)
	}

	concepts, _ = g.ExtractConcepts(context.Background(), "  \n ")
	if len(concepts) != 0 {
		t.Errorf("Expected no concepts for blank text, got %d", len(concepts))
	}
}

func sampleConcepts() []study.Concept {
	return []study.Concept{
		{Name: "Osmosis", Definition: "Diffusion of water across a membrane.", CommonMisconceptions: []string{"Osmosis needs ATP", "Salt moves in osmosis", "Third one"}, Category: "Biology"},
		{Name: "Diffusion", Definition: "Net movement from high to low concentration."},
		{Name: "Active Transport", Definition: "Movement against a gradient using energy."},
		{Name: "Endocytosis", Definition: "Uptake of material by engulfing it."},
		{Name: "Exocytosis", Definition: "Release of material by vesicle fusion."},
		{Name: "Pinocytosis", Definition: "Cell drinking."},
	}
}

// TestTemplate_GenerateFlashcards verifies definition and misconception cards.
func TestTemplate_GenerateFlashcards(t *testing.T) {
	g := NewTemplateGenerator(func() time.Time { return fixedNow })
	cards, err := g.GenerateFlashcards(context.Background(), sampleConcepts()[:2], "")
	if err != nil {
		t.Fatalf("GenerateFlashcards failed: %v", err)
	}

	// Osmosis: 1 + 2 misconceptions (capped), Diffusion: 1
	if len(cards) != 4 {
		t.Fatalf("Expected 4 cards, got %d", len(cards))
	}
	if cards[0].Front != "What is Osmosis?" || cards[0].Tags[0] != "Biology" {
		t.Errorf("Unexpected first card: %+v", cards[0])
	}
	if !strings.HasPrefix(cards[1].Front, "True or False: ") || cards[1].Difficulty != study.DifficultyHard {
		t.Errorf("Unexpected misconception card: %+v", cards[1])
	}
	if cards[3].Tags[0] != "General" {
		t.Errorf("Expected default category General, got %q", cards[3].Tags[0])
	}
	for _, c := range cards {
		if c.EaseFactor != study.DefaultEaseFactor || c.IntervalDays != 1 || !c.NextReviewAt.Equal(fixedNow) {
			t.Errorf("Card %q not initialised for scheduling", c.Front)
		}
	}
}

// TestTemplate_Questions verifies question limits and option integrity.
func TestTemplate_Questions(t *testing.T) {
	g := NewTemplateGenerator(nil)
	ctx := context.Background()

	mcqs, err := g.GenerateMCQs(ctx, sampleConcepts(), "")
	if err != nil {
		t.Fatalf("GenerateMCQs failed: %v", err)
	}
	if len(mcqs) != 5 {
		t.Errorf("Expected 5 MCQs, got %d", len(mcqs))
	}
	for _, q := range mcqs {
		if len(q.Options) != 4 {
			t.Errorf("Expected 4 options, got %d", len(q.Options))
		}
		if q.Options[q.CorrectOptionIndex] == "" {
			t.Errorf("Correct option is empty for %q", q.Question)
		}
	}

	single, _ := g.GenerateMCQs(ctx, sampleConcepts()[:1], "")
	if len(single) != 1 || len(single[0].Options) != 4 {
		t.Errorf("Expected filler distractors for a single concept")
	}

	sas, err := g.GenerateShortAnswers(ctx, sampleConcepts(), "")
	if err != nil {
		t.Fatalf("GenerateShortAnswers failed: %v", err)
	}
	if len(sas) != 3 {
		t.Errorf("Expected 3 short answers, got %d", len(sas))
	}
	if sas[0].Question != "Explain Osmosis and its significance." {
		t.Errorf("Unexpected question %q", sas[0].Question)
	}
}

// TestTruncateContent verifies truncation works correctly for very long content.
func TestTruncateContent(t *testing.T) {
	g := NewOpenAIGenerator(nil, "", 100, nil)

	longContent := strings.Repeat("é", 1000)
	truncated := g.truncateContent(longContent)

	if got := len([]rune(truncated)); got != 400 {
		t.Errorf("Expected truncated length 400, got %d", got)
	}
	if !strings.HasPrefix(longContent, truncated) {
		t.Error("Truncated content should be a prefix of original content")
	}

	short := "Short. Content."
	if g.truncateContent(short) != short {
		t.Error("Short content should not be truncated")
	}
}

// chatServer replies to chat completions with the given JSON payloads in turn.
func chatServer(t *testing.T, status int, payloads ...string) (*openai.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error","code":"x","param":""}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": payloads[n%len(payloads)]},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	client := openai.NewClient(option.WithAPIKey("test"), option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
	return &client, &calls
}

// TestOpenAI_ExtractConcepts verifies parsing and filtering of model output.
func TestOpenAI_ExtractConcepts(t *testing.T) {
	client, _ := chatServer(t, http.StatusOK,
		`{"concepts": [{"name": "Osmosis", "definition": "Water diffusion.", "common_misconceptions": ["Needs ATP"], "category": "Biology"}, {"name": "", "definition": "dropped"}]}`)
	g := NewOpenAIGenerator(client, "", 0, nil)

	concepts, err := g.ExtractConcepts(context.Background(), notes)
	if err != nil {
		t.Fatalf("ExtractConcepts failed: %v", err)
	}
	if len(concepts) != 1 {
		t.Fatalf("Expected 1 concept, got %d", len(concepts))
	}
	if concepts[0].Name != "Osmosis" || concepts[0].Category != "Biology" || concepts[0].ID == "" {
		t.Errorf("Unexpected concept %+v", concepts[0])
	}
}

// TestOpenAI_GenerateItems verifies flashcards, MCQ validation and short answers.
func TestOpenAI_GenerateItems(t *testing.T) {
	client, _ := chatServer(t, http.StatusOK,
		`{"flashcards": [{"front": "What is osmosis?", "back": "Water diffusion.", "tags": ["Biology"], "difficulty": "HARD"}]}`,
		`{"questions": [{"question": "Q1", "options": ["a", "b", "c"], "correct_option_index": 1}, {"question": "Bad", "options": ["a"], "correct_option_index": 0}, {"question": "Bad index", "options": ["a", "b"], "correct_option_index": 5}]}`,
		`{"questions": [{"question": "Explain osmosis.", "model_answer": "Water moves.", "key_points": ["membrane"], "difficulty": "weird"}]}`,
	)
	g := NewOpenAIGenerator(client, "", 0, nil)
	g.now = func() time.Time { return fixedNow }
	ctx := context.Background()
	concepts := sampleConcepts()[:1]

	cards, err := g.GenerateFlashcards(ctx, concepts, notes)
	if err != nil {
		t.Fatalf("GenerateFlashcards failed: %v", err)
	}
	if len(cards) != 1 || cards[0].Difficulty != study.DifficultyHard || !cards[0].NextReviewAt.Equal(fixedNow) {
		t.Errorf("Unexpected cards %+v", cards)
	}

	mcqs, err := g.GenerateMCQs(ctx, concepts, notes)
	if err != nil {
		t.Fatalf("GenerateMCQs failed: %v", err)
	}
	if len(mcqs) != 1 || mcqs[0].CorrectOptionIndex != 1 {
		t.Errorf("Expected only the well-formed MCQ, got %d", len(mcqs))
	}

	sas, err := g.GenerateShortAnswers(ctx, concepts, notes)
	if err != nil {
		t.Fatalf("GenerateShortAnswers failed: %v", err)
	}
	if len(sas) != 1 || sas[0].Difficulty != study.DifficultyMedium {
		t.Errorf("Unexpected short answers %+v", sas)
	}
}

// TestOpenAI_Errors verifies client errors and malformed JSON surface as errors.
func TestOpenAI_Errors(t *testing.T) {
	client, calls := chatServer(t, http.StatusBadRequest)
	g := NewOpenAIGenerator(client, "", 0, nil)
	if _, err := g.ExtractConcepts(context.Background(), "text"); err == nil {
		t.Error("Expected error for HTTP 400")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retries for HTTP 400, got %d calls", calls.Load())
	}

	client, _ = chatServer(t, http.StatusOK, `not json`)
	g = NewOpenAIGenerator(client, "", 0, nil)
	if _, err := g.ExtractConcepts(context.Background(), "text"); err == nil || !strings.Contains(err.Error(), "parse") {
		t.Errorf("Expected parse error, got %v", err)
	}
}
