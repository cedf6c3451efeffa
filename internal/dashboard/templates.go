package dashboard

import (
	"html/template"
	"strconv"
	"time"
)

var templateFuncs = template.FuncMap{
	"markdown":   renderMarkdown,
	"formatTime": formatTime,
	"timeAgo":    timeAgo,
}

// loadTemplates parses the dashboard's single-page template set.
// Panics on syntax errors so startup fails fast, matching the
// teacher's internal/web.loadTemplates behavior.
func loadTemplates() *template.Template {
	return template.Must(
		template.New("index.html").Funcs(templateFuncs).ParseFS(templateFiles, "templates/*.html"),
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(d.Hours())/24) + "d ago"
	}
}
