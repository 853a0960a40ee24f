package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// RenderReportHTML renders the engagement report template.
func RenderReportHTML(report Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html lang="es">
<head>
  <meta charset="UTF-8">
  <title>{{.Category}} — {{.RequestID}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .status { display: inline-block; padding: 0.1rem 0.5rem; background: #eee; border-radius: 3px; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.95em; }
    .event { background: #f5f5f5; padding: 0.6rem 1rem; margin: 0.5rem 0; border-left: 3px solid #333; }
    .event .when { color: #666; font-size: 0.85em; }
    .rating { margin: 0.5rem 0; }
  </style>
</head>
<body>
  <h1>{{.Category}}{{if .Subcategory}} / {{.Subcategory}}{{end}}</h1>
  <div class="meta">
    {{.Location}} | Cliente: {{.ClientName}}{{if .ProName}} | Profesional: {{.ProName}}{{end}}
    | {{formatDate .CreatedAt "02/01/2006"}}
    | <span class="status">{{.Status}}</span>
  </div>
  {{if .Description}}<p>{{.Description}}</p>{{end}}

  {{if .Offers}}
  <h2>Presupuestos</h2>
  <table>
    <tr><th>Profesional</th><th>Importe</th><th>Estado</th><th>Fecha</th></tr>
    {{range .Offers}}
    <tr>
      <td>{{.ProName}}</td>
      <td>{{.Amount}}</td>
      <td>{{.Status}}{{if .Reason}} ({{.Reason}}){{end}}</td>
      <td>{{formatDate .SentAt "02/01/2006"}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}

  {{if .Timeline}}
  <h2>Seguimiento</h2>
  {{range .Timeline}}
  <div class="event">
    <div class="when">{{formatDate .At "02/01/2006 15:04"}} — {{.ActorName}}</div>
    <strong>{{.Title}}</strong>
    {{if .Description}}<div>{{.Description}}</div>{{end}}
  </div>
  {{end}}
  {{end}}

  {{if .Ratings}}
  <h2>Valoraciones</h2>
  {{range .Ratings}}
  <div class="rating"><strong>{{.ReviewerName}}</strong>: {{.Score}}/5{{if .Comment}} — {{.Comment}}{{end}}</div>
  {{end}}
  {{end}}
</body>
</html>`
