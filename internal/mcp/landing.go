package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>StudyFlow MCP Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8fafc; color: #0f172a; display: flex; justify-content: center; padding: 3rem 1rem; }
  .card { max-width: 640px; width: 100%; background: #fff; border-radius: 12px; padding: 2rem 2.5rem; box-shadow: 0 10px 30px rgba(15,23,42,0.08); }
  h1 { font-size: 1.6rem; margin: 0 0 0.25rem; }
  .subtitle { color: #475569; margin-bottom: 1.5rem; }
  .section-title { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.1em; color: #64748b; margin: 1.25rem 0 0.5rem; }
  code, .endpoint { font-family: "SF Mono", Menlo, monospace; font-size: 0.9rem; }
  li { margin: 0.2rem 0; }
</style>
</head>
<body>
<div class="card">
  <h1>StudyFlow</h1>
  <p class="subtitle">Turns long documents into searchable chunks, flashcards and spaced-repetition study sessions.</p>

  <div class="section-title">Library</div>
  <p>{{.Documents}} document(s), {{.Completed}} ready for study.</p>

  <div class="section-title">Endpoints</div>
  <ul>
    <li><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</li>
    <li><a href="/health" class="endpoint">/health</a> Health check</li>
  </ul>

  <div class="section-title">Tools</div>
  <ul>{{range .Tools}}<li><code>{{.}}</code></li>{{end}}</ul>
</div>
</body>
</html>`))

type landingData struct {
	Documents int
	Completed int
	Tools     []string
}

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(server *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		docs, err := server.backend.ListDocuments(r.Context())
		if err != nil {
			http.Error(w, "failed to list documents", http.StatusInternalServerError)
			return
		}
		data := landingData{Documents: len(docs), Tools: ToolNames}
		for _, doc := range docs {
			if doc.StudyContent != nil {
				data.Completed++
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = landingTemplate.Execute(w, data)
	}
}
