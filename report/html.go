package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// Document is a titled set of tables rendered to PDF through Gotenberg.
type Document struct {
	Title    string
	Subtitle string
	Company  Company
	Sheets   []Sheet
}

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"cell": func(v any) string { return fmt.Sprint(cellText(v)) },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 11px; color: #222; }
h1 { font-size: 18px; margin: 0 0 4px; }
h2 { font-size: 14px; margin: 18px 0 6px; }
.meta { color: #666; margin-bottom: 12px; }
table { border-collapse: collapse; width: 100%; }
th { background: #d9e1f2; text-align: left; }
th, td { border: 1px solid #bbb; padding: 4px 6px; }
</style></head>
<body>
<h1>{{.Company.Name}}</h1>
<div class="meta">{{.Title}}{{if .Subtitle}} &middot; {{.Subtitle}}{{end}}</div>
{{range .Sheets}}
<h2>{{.Name}}</h2>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{cell .}}</td>{{end}}</tr>{{end}}</tbody>
</table>
{{end}}
</body></html>`))

// HTML renders doc as a standalone HTML page.
func (d Document) HTML() (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderDocument converts doc to PDF.
func (c *Client) RenderDocument(ctx context.Context, doc Document) ([]byte, error) {
	html, err := doc.HTML()
	if err != nil {
		return nil, fmt.Errorf("report: build html: %w", err)
	}
	return c.RenderHTML(ctx, html)
}

// cellText is cellValue with money formatted for reading.
func cellText(v any) any {
	switch t := cellValue(v).(type) {
	case float64:
		return printer.Sprintf("%.2f", t)
	case nil:
		return ""
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return t
	}
}
