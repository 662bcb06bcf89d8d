package export

import (
	"bytes"
	"html/template"
	"time"
)

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(layout)
	},
}).Parse(documentLayout))

type TemplateData struct {
	Title       string
	Summary     string
	Category    string
	Status      string
	Tags        []string
	Author      string
	UpdatedAt   time.Time
	ContentHTML template.HTML
}

func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1.title { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .summary { font-style: italic; }
    .tag { display: inline-block; background: #eee; border-radius: 3px; padding: 0 0.4rem; margin-right: 0.3rem; }
    pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; }
  </style>
</head>
<body>
  <h1 class="title">{{.Title}}</h1>
  <div class="meta">{{if .Category}}{{.Category}} | {{end}}{{.Status}}{{if .Author}} | {{.Author}}{{end}}{{with formatDate .UpdatedAt "Jan 2, 2006"}} | {{.}}{{end}}</div>
  {{if .Summary}}<p class="summary">{{.Summary}}</p>{{end}}
  <div class="content">{{.ContentHTML}}</div>
  {{if .Tags}}<div class="tags">{{range .Tags}}<span class="tag">{{.}}</span>{{end}}</div>{{end}}
</body>
</html>`
