package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var ideaTemplate *template.Template

func init() {
	// Custom template functions
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/idea.html")
	if err != nil {
		// Fallback to built-in template if file not found
		ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	ideaTemplate = template.Must(template.New("idea").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for idea template rendering
type TemplateData struct {
	Title                string
	Category             string
	Status               string
	Priority             string
	Department           string
	Submitter            string
	Votes                int
	Tags                 []string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	DescriptionHTML      template.HTML
	ImpactHTML           template.HTML
	InspirationHTML      template.HTML
	SimilarSolutionsHTML template.HTML
	CostSaved            float64
	RevenueGenerated     float64
	Comments             []TemplateComment
	History              []TemplateStatusChange
}

// TemplateComment holds comment data for template
type TemplateComment struct {
	Author    string
	Role      string
	Body      string
	CreatedAt time.Time
}

// TemplateStatusChange holds a workflow transition for template
type TemplateStatusChange struct {
	FromStatus string
	ToStatus   string
	ChangedBy  string
	Note       string
	CreatedAt  time.Time
}

// RenderIdeaHTML renders the idea template with provided data
func RenderIdeaHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := ideaTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .comment { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Category}} | {{.Status}} | {{.Submitter}} | {{.Votes}} votes</div>
  <div>{{.DescriptionHTML | safeHTML}}</div>
  {{if .ImpactHTML}}<h2>Expected Impact</h2><div>{{.ImpactHTML | safeHTML}}</div>{{end}}
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="comment">{{.Author}}: {{.Body}}</div>{{end}}
  {{end}}
</body>
</html>`
