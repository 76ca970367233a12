package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/studyflow/internal/review"
	"github.com/bull/studyflow/internal/study"
)

const (
	defaultMaxResults = 5
	maxMaxResults     = 20
)

// Backend is the application surface the tools call into.
type Backend interface {
	ListDocuments(ctx context.Context) ([]*study.Document, error)
	GetDocument(ctx context.Context, id string) (*study.Document, error)
	Search(ctx context.Context, documentID, query string, topK int) ([]study.ScoredChunk, error)
	StartSession(ctx context.Context, documentID string, n int, seed uint64) (*review.Session, []review.Item, error)
	RecordReview(ctx context.Context, sessionID, itemID string, outcome study.ReviewOutcome, spent time.Duration) (*study.ReviewRecord, error)
	CompleteSession(sessionID string) (*review.Session, error)
	ReviewFlashcard(ctx context.Context, documentID, cardID string, outcome study.ReviewOutcome) (*study.Flashcard, error)
	Health(ctx context.Context) error
}

func summarize(doc *study.Document) DocumentSummary {
	s := DocumentSummary{
		ID:           doc.ID,
		FileName:     doc.FileName,
		Status:       string(doc.Status),
		UploadedAt:   doc.UploadedAt,
		Source:       doc.Source,
		ErrorMessage: doc.ErrorMessage,
		Chunks:       len(doc.Chunks),
	}
	if doc.StudyContent != nil {
		s.Flashcards = len(doc.StudyContent.Flashcards)
	}
	return s
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		docs, err := b.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		out := ListDocumentsOutput{Documents: make([]DocumentSummary, len(docs)), Count: len(docs)}
		for i, doc := range docs {
			out.Documents[i] = summarize(doc)
		}
		return nil, out, nil
	}
}

// makeGetHandler creates the get_document tool handler.
// Unknown documents are reported with Found=false rather than an error.
func makeGetHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		doc, err := b.GetDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, study.ErrNotFound) {
				return nil, GetDocumentOutput{Found: false}, nil
			}
			return nil, GetDocumentOutput{}, fmt.Errorf("failed to get document: %w", err)
		}

		summary := summarize(doc)
		out := GetDocumentOutput{Found: true, Document: &summary, Outline: doc.Outline}
		if sc := doc.StudyContent; sc != nil {
			for _, c := range sc.Concepts {
				out.Concepts = append(out.Concepts, ConceptInfo{
					Name:       c.Name,
					Definition: c.Definition,
					Category:   c.CategoryOrDefault(),
				})
			}
			for _, k := range sc.EnrichedKnowledge {
				info := KnowledgeInfo{Topic: k.Topic, Summary: k.Summary}
				for _, c := range k.Citations {
					info.Sources = append(info.Sources, c.URL)
				}
				out.Knowledge = append(out.Knowledge, info)
			}
			out.MultipleChoice = len(sc.MultipleChoiceQuestions)
			out.ShortAnswer = len(sc.ShortAnswerQuestions)
		}
		return nil, out, nil
	}
}

// makeSearchHandler creates the search_chunks tool handler.
// Search flow:
// 1. Embed the query with the indexing embedder
// 2. Rank the document's chunks by cosine similarity
// 3. Drop chunks below the minimum score
func makeSearchHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		// Apply defaults
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultMaxResults
		}
		maxResults = min(maxResults, maxMaxResults)

		scored, err := b.Search(ctx, input.DocumentID, input.Query, maxResults)
		if err != nil {
			return nil, SearchChunksOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]ChunkResult, 0, len(scored))
		for _, s := range scored {
			if s.Score < input.MinScore {
				continue // Below threshold
			}
			results = append(results, ChunkResult{
				Index:   s.Chunk.Index,
				Heading: s.Chunk.Heading,
				Content: s.Chunk.Content,
				Score:   s.Score,
			})
		}

		if len(results) == 0 {
			return nil, SearchChunksOutput{
				Results: []ChunkResult{},
				Message: "No matching chunks found. The document may not be processed yet, or try broader terms.",
			}, nil
		}
		return nil, SearchChunksOutput{Results: results}, nil
	}
}

// makeSessionHandler creates the build_session tool handler.
func makeSessionHandler(b Backend, defaultSize int) func(
	context.Context, *mcp.CallToolRequest, BuildSessionInput,
) (*mcp.CallToolResult, BuildSessionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input BuildSessionInput) (
		*mcp.CallToolResult, BuildSessionOutput, error,
	) {
		n := input.ItemCount
		if n == 0 {
			n = defaultSize
		}

		session, items, err := b.StartSession(ctx, input.DocumentID, n, input.Seed)
		if err != nil {
			return nil, BuildSessionOutput{}, fmt.Errorf("failed to build session: %w", err)
		}

		out := BuildSessionOutput{SessionID: session.ID, Items: make([]SessionItem, len(items))}
		for i, item := range items {
			out.Items[i] = flatten(item)
		}
		return nil, out, nil
	}
}

func flatten(item review.Item) SessionItem {
	out := SessionItem{Type: string(item.Type), ID: item.ID}
	switch item.Type {
	case study.ItemFlashcard:
		out.Prompt = item.Flashcard.Front
		out.Answer = item.Flashcard.Back
		out.Tags = item.Flashcard.Tags
	case study.ItemMultipleChoice:
		q := item.MultipleChoice
		out.Prompt = q.Question
		out.Options = q.Options
		if q.CorrectOptionIndex >= 0 && q.CorrectOptionIndex < len(q.Options) {
			out.Answer = q.Options[q.CorrectOptionIndex]
		}
		out.Tags = q.Tags
	case study.ItemShortAnswer:
		out.Prompt = item.ShortAnswer.Question
		out.Answer = item.ShortAnswer.ModelAnswer
		out.Tags = item.ShortAnswer.Tags
	}
	return out
}

// makeRecordHandler creates the record_review tool handler.
func makeRecordHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, RecordReviewInput,
) (*mcp.CallToolResult, RecordReviewOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RecordReviewInput) (
		*mcp.CallToolResult, RecordReviewOutput, error,
	) {
		outcome, err := study.ParseReviewOutcome(input.Outcome)
		if err != nil {
			return nil, RecordReviewOutput{}, err
		}
		spent := time.Duration(input.TimeSpentSeconds * float64(time.Second))

		rec, err := b.RecordReview(ctx, input.SessionID, input.ItemID, outcome, spent)
		if err != nil {
			return nil, RecordReviewOutput{}, fmt.Errorf("failed to record review: %w", err)
		}
		return nil, RecordReviewOutput{
			ItemID:     rec.ItemID,
			Type:       string(rec.Type),
			Outcome:    string(rec.Outcome),
			ReviewedAt: rec.ReviewedAt,
		}, nil
	}
}

// makeCompleteHandler creates the complete_session tool handler.
func makeCompleteHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, CompleteSessionInput,
) (*mcp.CallToolResult, CompleteSessionOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input CompleteSessionInput) (
		*mcp.CallToolResult, CompleteSessionOutput, error,
	) {
		session, err := b.CompleteSession(input.SessionID)
		if err != nil {
			return nil, CompleteSessionOutput{}, fmt.Errorf("failed to complete session: %w", err)
		}
		stats := session.Statistics
		return nil, CompleteSessionOutput{
			SessionID:        session.ID,
			TotalItems:       stats.TotalItems,
			CorrectAnswers:   stats.CorrectAnswers,
			IncorrectAnswers: stats.IncorrectAnswers,
			TimeSpentSeconds: stats.TotalTimeSpent.Seconds(),
			TopicBreakdown:   stats.TopicBreakdown,
		}, nil
	}
}

// makeReviewHandler creates the review_flashcard tool handler.
func makeReviewHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, ReviewFlashcardInput,
) (*mcp.CallToolResult, ReviewFlashcardOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ReviewFlashcardInput) (
		*mcp.CallToolResult, ReviewFlashcardOutput, error,
	) {
		outcome, err := study.ParseReviewOutcome(input.Outcome)
		if err != nil {
			return nil, ReviewFlashcardOutput{}, err
		}

		card, err := b.ReviewFlashcard(ctx, input.DocumentID, input.FlashcardID, outcome)
		if err != nil {
			return nil, ReviewFlashcardOutput{}, fmt.Errorf("failed to review flashcard: %w", err)
		}
		return nil, ReviewFlashcardOutput{
			FlashcardID:     card.ID,
			NextReviewAt:    card.NextReviewAt,
			IntervalDays:    card.IntervalDays,
			EaseFactor:      card.EaseFactor,
			RepetitionCount: card.RepetitionCount,
		}, nil
	}
}

// makeStatusHandler creates the get_status tool handler.
// An unhealthy index is reported in the output, not as a tool error.
func makeStatusHandler(b Backend) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		docs, err := b.ListDocuments(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		out := StatusOutput{
			TotalDocuments: len(docs),
			ByStatus:       make(map[string]int),
			IndexHealthy:   true,
		}
		for _, doc := range docs {
			out.ByStatus[string(doc.Status)]++
			out.TotalChunks += len(doc.Chunks)
		}
		if err := b.Health(ctx); err != nil {
			out.IndexHealthy = false
			out.IndexError = err.Error()
		}
		return nil, out, nil
	}
}
