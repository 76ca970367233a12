package storage

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/studyflow/internal/study"
)

// Payload field names of a chunk point.
const (
	fieldDocumentID  = "document_id"
	fieldChunkIndex  = "chunk_index"
	fieldContent     = "content"
	fieldHeading     = "heading"
	fieldStartOffset = "start_offset"
	fieldEndOffset   = "end_offset"
	fieldPageNumber  = "page_number"
)

func chunkPayload(documentID string, c *study.Chunk) map[string]any {
	return map[string]any{
		fieldDocumentID:  documentID,
		fieldChunkIndex:  c.Index,
		fieldContent:     c.Content,
		fieldHeading:     c.Heading,
		fieldStartOffset: c.StartOffset,
		fieldEndOffset:   c.EndOffset,
		fieldPageNumber:  c.PageNumber,
	}
}

// chunkFromPayload rebuilds a chunk from a search hit. Embeddings are not
// requested from Qdrant, so the result carries none.
func chunkFromPayload(id string, payload map[string]*qdrant.Value) *study.Chunk {
	return &study.Chunk{
		ID:          id,
		DocumentID:  payload[fieldDocumentID].GetStringValue(),
		Index:       int(payload[fieldChunkIndex].GetIntegerValue()),
		Content:     payload[fieldContent].GetStringValue(),
		Heading:     payload[fieldHeading].GetStringValue(),
		StartOffset: int(payload[fieldStartOffset].GetIntegerValue()),
		EndOffset:   int(payload[fieldEndOffset].GetIntegerValue()),
		PageNumber:  int(payload[fieldPageNumber].GetIntegerValue()),
	}
}
