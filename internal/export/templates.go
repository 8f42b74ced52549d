package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"title": func(s string) string {
		s = strings.ReplaceAll(s, "_", " ")
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("Jan 2, 2006")
	},
	"formatDatePtr": func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.Format("Jan 2, 2006")
	},
	"money": func(v float64) string {
		return fmt.Sprintf("$%.2f", v)
	},
}).Parse(reportHTML))

// ReportData holds data for report rendering
type ReportData struct {
	Name            string
	Description     string
	Status          string
	Priority        string
	Address         string
	StartDate       time.Time
	EndDate         *time.Time
	Budget          float64
	Spent           float64
	BudgetUsed      int
	Progress        int
	TaskCount       int
	CompletedTasks  int
	Metrics         []ReportMetric
	Tasks           []ReportTask
	Incidents       []ReportIncident
	Resources       []ReportResource
	GeneratedAt     time.Time
	IncludesDetails bool
}

type ReportMetric struct {
	Name  string
	Value float64
}

type ReportTask struct {
	Title    string
	Status   string
	Priority string
	DueDate  *time.Time
}

type ReportIncident struct {
	Type        string
	Severity    string
	Description string
	Resolved    bool
	OccurredAt  time.Time
}

type ReportResource struct {
	Name     string
	Type     string
	Status   string
	Quantity float64
	Unit     string
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}} - Project Report</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #e67e22; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; font-size: 1.2em; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .summary td { padding: 0.25rem 1rem 0.25rem 0; }
    table.list { width: 100%; border-collapse: collapse; font-size: 0.9em; }
    table.list th, table.list td { border-bottom: 1px solid #ddd; padding: 0.35rem; text-align: left; }
    .severity-high, .severity-critical { color: #c0392b; font-weight: bold; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">{{title .Status}} | {{title .Priority}} priority{{if .Address}} | {{.Address}}{{end}} | Generated {{formatDate .GeneratedAt}}</div>
  {{if .Description}}<p>{{.Description}}</p>{{end}}

  <table class="summary">
    <tr><td>Schedule</td><td>{{formatDate .StartDate}} to {{formatDatePtr .EndDate}}</td></tr>
    <tr><td>Progress</td><td>{{.Progress}}% ({{.CompletedTasks}} of {{.TaskCount}} tasks completed)</td></tr>
    <tr><td>Budget</td><td>{{money .Spent}} of {{money .Budget}} ({{.BudgetUsed}}%)</td></tr>
  </table>

  {{if .Metrics}}
  <h2>Performance</h2>
  <table class="list">
    <tr><th>Metric</th><th>Latest value</th></tr>
    {{range .Metrics}}<tr><td>{{title .Name}}</td><td>{{printf "%.1f" .Value}}</td></tr>
    {{end}}
  </table>
  {{end}}

  {{if .IncludesDetails}}
  <h2>Tasks</h2>
  {{if .Tasks}}
  <table class="list">
    <tr><th>Task</th><th>Status</th><th>Priority</th><th>Due</th></tr>
    {{range .Tasks}}<tr><td>{{.Title}}</td><td>{{title .Status}}</td><td>{{title .Priority}}</td><td>{{formatDatePtr .DueDate}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No tasks recorded.</p>{{end}}

  <h2>Safety Incidents</h2>
  {{if .Incidents}}
  <table class="list">
    <tr><th>Date</th><th>Type</th><th>Severity</th><th>Description</th><th>Resolved</th></tr>
    {{range .Incidents}}<tr><td>{{formatDate .OccurredAt}}</td><td>{{title .Type}}</td><td class="severity-{{.Severity}}">{{title .Severity}}</td><td>{{.Description}}</td><td>{{if .Resolved}}Yes{{else}}No{{end}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No incidents reported.</p>{{end}}

  <h2>Resources</h2>
  {{if .Resources}}
  <table class="list">
    <tr><th>Name</th><th>Type</th><th>Status</th><th>Quantity</th></tr>
    {{range .Resources}}<tr><td>{{.Name}}</td><td>{{title .Type}}</td><td>{{title .Status}}</td><td>{{.Quantity}} {{.Unit}}</td></tr>
    {{end}}
  </table>
  {{else}}<p>No resources allocated.</p>{{end}}
  {{end}}
</body>
</html>`
