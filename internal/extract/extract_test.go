package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/studyflow/internal/study"
)

const sampleMarkdown = "# Cell Biology\r\n" +
	"\r\n" +
	"Cells are the basic unit\r\n" +
	"of life. They **divide** by [mitosis](https://example.com).\r\n" +
	"\r\n" +
	"## Organelles\r\n" +
	"\r\n" +
	"- Nucleus holds DNA\r\n" +
	"- Mitochondria make ATP\r\n" +
	"\r\n" +
	"```go\r\n" +
	"fmt.Println(\"cell\")\r\n" +
	"```\r\n" +
	"\r\n" +
	"### Membranes\r\n" +
	"\r\n" +
	"<div>ignored</div>\r\n" +
	"\r\n" +
	"Lipid bilayers separate compartments.\r\n"

func TestExtract_Markdown(t *testing.T) {
	res, err := New().Extract(context.Background(), ContentTypeMarkdown, []byte(sampleMarkdown))
	require.NoError(t, err)

	want := "# Cell Biology\n\n" +
		"Cells are the basic unit of life. They divide by mitosis.\n\n" +
		"## Organelles\n\n" +
		"- Nucleus holds DNA\n\n" +
		"- Mitochondria make ATP\n\n" +
		"fmt.Println(\"cell\")\n\n" +
		"### Membranes\n\n" +
		"Lipid bilayers separate compartments."
	assert.Equal(t, want, res.Text)
	assert.Equal(t, FormatMarkdown, res.Format)
	assert.Equal(t, []string{"Cell Biology", "Organelles", "Membranes"}, res.Outline)
}

func TestExtract_PlainText(t *testing.T) {
	res, err := New().Extract(context.Background(), "text/plain; charset=utf-8", []byte("line one\r\nline two\n"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", res.Text)
	assert.Equal(t, FormatText, res.Format)
	assert.Empty(t, res.Outline)
}

func TestExtract_Errors(t *testing.T) {
	e := New()
	ctx := context.Background()

	_, err := e.Extract(ctx, "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.ErrorIs(t, err, study.ErrNotAvailable)

	_, err = e.Extract(ctx, ContentTypeText, []byte("  \n\t "))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = e.Extract(ctx, ContentTypePDF, []byte("%PDF-1.4\nnot really a pdf"))
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Extract(cancelled, ContentTypeText, []byte("text"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"markdown by extension", "notes.md", []byte("# Title\n\nBody"), ContentTypeMarkdown},
		{"plain text", "notes.txt", []byte("Just some words."), ContentTypeText},
		{"text without extension", "README", []byte("Just some words."), ContentTypeText},
		{"pdf", "paper.bin", []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n"), ContentTypePDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.file, tt.data))
		})
	}

	png := DetectContentType("x.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	assert.Equal(t, "image/png", png)
}
