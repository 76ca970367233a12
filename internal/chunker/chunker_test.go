package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

// body builds a single-line section body of k identical sentences.
func body(k int) string {
	return strings.TrimSpace(strings.Repeat("Alpha beta gamma delta. ", k))
}

func newChunker(t *testing.T, min, max int) *Chunker {
	t.Helper()
	c, err := New(min, max)
	if err != nil {
		t.Fatalf("New(%d, %d) failed: %v", min, max, err)
	}
	return c
}

// TestChunk_MixedSectionSizes tests the drop, split and keep branches together.
func TestChunk_MixedSectionSizes(t *testing.T) {
	short := strings.TrimSpace(strings.Repeat("Preface text only. ", 12))
	long, medium := body(38), body(17)
	if n := len(short); n >= 300 {
		t.Fatalf("short body too long: %d", n)
	}
	if n := len(long); n <= 800 {
		t.Fatalf("long body too short: %d", n)
	}

	input := "# Intro\n" + short + "\n\n## Details\n" + long + "\n\n## Summary\n" + medium + "\n"

	res := newChunker(t, 300, 800).Split(input)
	chunks := res.Chunks

	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}
	if res.DroppedSections != 1 {
		t.Errorf("Expected 1 dropped section, got %d", res.DroppedSections)
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("Chunk %d has index %d", i, c.Index)
		}
		if n := utf8.RuneCountInString(c.Content); n > 800 {
			t.Errorf("Chunk %d exceeds max size: %d", i, n)
		}
	}

	// Split pieces of the long section come first, all tagged with its heading.
	last := chunks[len(chunks)-1]
	if last.Heading != "## Summary" || last.Content != medium {
		t.Errorf("Last chunk: expected Summary section intact, got heading %q", last.Heading)
	}
	details := chunks[:len(chunks)-1]
	if len(details) < 2 {
		t.Fatalf("Expected long section split into at least 2 pieces, got %d", len(details))
	}
	for i, c := range details {
		if c.Heading != "## Details" {
			t.Errorf("Piece %d heading: expected '## Details', got %q", i, c.Heading)
		}
		if !strings.HasSuffix(c.Content, ".") {
			t.Errorf("Piece %d is not sentence aligned: %q", i, c.Content)
		}
		if i < len(details)-1 && utf8.RuneCountInString(c.Content) < 300 {
			t.Errorf("Non-final piece %d below min size", i)
		}
	}
	for _, c := range chunks {
		if strings.Contains(c.Content, "Preface") {
			t.Errorf("Sub-minimum Intro section should have been dropped")
		}
	}
}

// TestChunk_Idempotent tests that identical input yields identical chunks.
func TestChunk_Idempotent(t *testing.T) {
	input := "Overview:\n" + body(40) + "\n1. First Topic\n" + body(20)
	c := newChunker(t, 300, 800)

	first := c.Chunk(input)
	second := c.Chunk(input)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Chunking is not idempotent")
	}
}

// TestChunk_Offsets tests that offsets form a contiguous running cursor.
func TestChunk_Offsets(t *testing.T) {
	chunks := newChunker(t, 100, 300).Chunk("# A\n" + body(30) + "\n# B\n" + body(8))

	prevEnd := 0
	for i, c := range chunks {
		if c.StartOffset != prevEnd {
			t.Errorf("Chunk %d starts at %d, expected %d", i, c.StartOffset, prevEnd)
		}
		if c.EndOffset <= c.StartOffset {
			t.Errorf("Chunk %d has empty span [%d, %d)", i, c.StartOffset, c.EndOffset)
		}
		if c.EndOffset-c.StartOffset != utf8.RuneCountInString(c.Content) {
			t.Errorf("Chunk %d span does not match content length", i)
		}
		prevEnd = c.EndOffset
	}
}

// TestChunk_EmptyInput tests whitespace-only input.
func TestChunk_EmptyInput(t *testing.T) {
	c := newChunker(t, 300, 800)
	for _, input := range []string{"", "   ", "\n\n\t\n"} {
		if chunks := c.Chunk(input); len(chunks) != 0 {
			t.Errorf("Expected no chunks for %q, got %d", input, len(chunks))
		}
	}
}

// TestChunk_NoHeadings tests text without any heading line.
func TestChunk_NoHeadings(t *testing.T) {
	text := body(15)
	chunks := newChunker(t, 300, 800).Chunk(text)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Heading != "" {
		t.Errorf("Expected empty heading, got %q", chunks[0].Heading)
	}
	if chunks[0].Content != text {
		t.Errorf("Content mismatch")
	}
}

// TestChunk_ConsecutiveHeadings tests that an empty section does not survive.
func TestChunk_ConsecutiveHeadings(t *testing.T) {
	chunks := newChunker(t, 100, 800).Chunk("# Part One\n## Chapter\n" + body(10))
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Heading != "## Chapter" {
		t.Errorf("Expected innermost heading, got %q", chunks[0].Heading)
	}
}

// TestChunk_RuneSizes tests that bounds count characters rather than bytes.
func TestChunk_RuneSizes(t *testing.T) {
	text := strings.Repeat("é", 150)
	if len(text) != 300 {
		t.Fatalf("unexpected byte length %d", len(text))
	}
	if chunks := newChunker(t, 200, 800).Chunk(text); len(chunks) != 0 {
		t.Errorf("Expected 150-character body to be dropped, got %d chunks", len(chunks))
	}
}

func TestHeadingPattern(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"# Title", true},
		{"###### Deep", true},
		{"####### Too deep", false},
		{"Key Ideas:", true},
		{"Note. Then more:", false},
		{"1. Introduction", true},
		{"12. Results and Discussion", true},
		{"1. lowercase item", false},
		{"plain sentence.", false},
		{"#hashtag", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := headingPattern.MatchString(tt.line); got != tt.want {
				t.Errorf("MatchString(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!  Three? Four 3.5 five.")
	want := []string{"One.", "Two!", "Three?", "Four 3.5 five."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSentences = %q, want %q", got, want)
	}
}

func TestNew_InvalidBounds(t *testing.T) {
	for _, b := range [][2]int{{0, 10}, {10, 0}, {20, 10}, {-1, 5}} {
		if _, err := New(b[0], b[1]); err == nil {
			t.Errorf("New(%d, %d) should fail", b[0], b[1])
		}
	}
}
