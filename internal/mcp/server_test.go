package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/studyflow/internal/app"
	"github.com/bull/studyflow/internal/config"
)

var notes = "# Photosynthesis\n\n" +
	strings.Repeat("Photosynthesis converts light energy into chemical energy in plants. ", 6) +
	"\n\n# Cellular Respiration\n\n" +
	strings.Repeat("Cellular respiration releases energy stored in glucose molecules. ", 6)

func newTestBackend(t *testing.T) (*app.App, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Repository = config.RepositoryMemory
	cfg.Embedding.Provider = config.EmbeddingHash
	cfg.Enrichment.Provider = config.EnrichmentTemplate

	a, err := app.New(context.Background(), cfg, app.Options{
		Fs:  afero.NewMemMapFs(),
		Now: func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Ingest(context.Background(), "biology.md", strings.NewReader(notes), nil)
	require.NoError(t, err)
	return a, res.Document.ID
}

func connect(t *testing.T, backend Backend) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server := NewServer(&Config{Backend: backend, SessionSize: 10})

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callTool invokes name and decodes the structured result into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if out != nil && !res.IsError {
		raw, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res
}

func TestServer_ListsTools(t *testing.T) {
	a, _ := newTestBackend(t)
	session := connect(t, a)

	tools, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, ToolNames, names)
}

func TestServer_DocumentsAndSearch(t *testing.T) {
	a, docID := newTestBackend(t)
	session := connect(t, a)

	var list ListDocumentsOutput
	callTool(t, session, "list_documents", map[string]any{}, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "completed", list.Documents[0].Status)
	assert.Equal(t, 2, list.Documents[0].Chunks)

	var doc GetDocumentOutput
	callTool(t, session, "get_document", map[string]any{"document_id": docID}, &doc)
	assert.True(t, doc.Found)
	assert.Equal(t, []string{"Photosynthesis", "Cellular Respiration"}, doc.Outline)
	assert.NotEmpty(t, doc.Concepts)

	var missing GetDocumentOutput
	callTool(t, session, "get_document", map[string]any{"document_id": "nope"}, &missing)
	assert.False(t, missing.Found)

	var search SearchChunksOutput
	callTool(t, session, "search_chunks", map[string]any{
		"document_id": docID,
		"query":       "glucose molecules",
		"max_results": 1,
	}, &search)
	require.Len(t, search.Results, 1)
	assert.Equal(t, "# Cellular Respiration", search.Results[0].Heading)

	var empty SearchChunksOutput
	callTool(t, session, "search_chunks", map[string]any{
		"document_id": docID,
		"query":       "glucose",
		"min_score":   1.1,
	}, &empty)
	assert.Empty(t, empty.Results)
	assert.NotEmpty(t, empty.Message)

	res := callTool(t, session, "search_chunks", map[string]any{"document_id": "nope", "query": "x"}, nil)
	assert.True(t, res.IsError)
}

func TestServer_SessionFlow(t *testing.T) {
	a, docID := newTestBackend(t)
	session := connect(t, a)

	var built BuildSessionOutput
	callTool(t, session, "build_session", map[string]any{"document_id": docID, "seed": 7}, &built)
	require.NotEmpty(t, built.Items)
	assert.LessOrEqual(t, len(built.Items), 10)
	first := built.Items[0]
	assert.Equal(t, "flashcard", first.Type)
	assert.NotEmpty(t, first.Prompt)

	var rec RecordReviewOutput
	callTool(t, session, "record_review", map[string]any{
		"session_id":         built.SessionID,
		"item_id":            first.ID,
		"outcome":            "correct",
		"time_spent_seconds": 4.5,
	}, &rec)
	assert.Equal(t, "correct", rec.Outcome)

	res := callTool(t, session, "record_review", map[string]any{
		"session_id": built.SessionID,
		"item_id":    first.ID,
		"outcome":    "great",
	}, nil)
	assert.True(t, res.IsError)

	var done CompleteSessionOutput
	callTool(t, session, "complete_session", map[string]any{"session_id": built.SessionID}, &done)
	assert.Equal(t, 1, done.TotalItems)
	assert.Equal(t, 1, done.CorrectAnswers)
	assert.InDelta(t, 4.5, done.TimeSpentSeconds, 0.001)

	var reviewed ReviewFlashcardOutput
	callTool(t, session, "review_flashcard", map[string]any{
		"document_id":  docID,
		"flashcard_id": first.ID,
		"outcome":      "incorrect",
	}, &reviewed)
	assert.Equal(t, first.ID, reviewed.FlashcardID)
	assert.Equal(t, 0, reviewed.RepetitionCount)
	assert.Equal(t, 1, reviewed.IntervalDays)
}

func TestServer_Status(t *testing.T) {
	a, _ := newTestBackend(t)
	session := connect(t, a)

	var status StatusOutput
	callTool(t, session, "get_status", map[string]any{}, &status)
	assert.Equal(t, 1, status.TotalDocuments)
	assert.Equal(t, 1, status.ByStatus["completed"])
	assert.Equal(t, 2, status.TotalChunks)
	assert.True(t, status.IndexHealthy)
}

type unhealthy struct{ Backend }

func (unhealthy) Health(context.Context) error { return errors.New("index unreachable") }

func TestMux_HealthAndLanding(t *testing.T) {
	a, _ := newTestBackend(t)

	tests := []struct {
		name       string
		backend    Backend
		path       string
		wantStatus int
		wantBody   string
	}{
		{"healthy", a, "/health", http.StatusOK, `"status":"healthy"`},
		{"unhealthy", unhealthy{a}, "/health", http.StatusServiceUnavailable, `"index":"disconnected"`},
		{"landing", a, "/", http.StatusOK, "1 document(s), 1 ready for study"},
		{"unknown path", a, "/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := NewMux(NewServer(&Config{Backend: tt.backend}), "memory", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
