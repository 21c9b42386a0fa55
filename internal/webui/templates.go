package webui

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/ca-srg/halalfinder/internal/geo"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateManager manages HTML templates
type TemplateManager struct {
	templates *template.Template
}

// NewTemplateManager creates a new template manager
func NewTemplateManager() (*TemplateManager, error) {
	funcMap := template.FuncMap{
		"formatDistance": geo.FormatMeters,
		"formatRating":   formatRating,
		"formatTime":     formatTime,
		"openLabel":      openLabel,
		"statusClass":    statusClass,
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &TemplateManager{
		templates: tmpl,
	}, nil
}

// Render renders a template to the writer
func (tm *TemplateManager) Render(w io.Writer, name string, data interface{}) error {
	return tm.templates.ExecuteTemplate(w, name, data)
}

func formatRating(rating float64, total int) string {
	if rating == 0 {
		return "-"
	}
	if total == 0 {
		return fmt.Sprintf("%.1f", rating)
	}
	return fmt.Sprintf("%.1f (%d)", rating, total)
}

// formatTime formats time for display
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func openLabel(open *bool) string {
	switch {
	case open == nil:
		return ""
	case *open:
		return "Open now"
	default:
		return "Closed"
	}
}

// statusClass returns CSS class based on status
func statusClass(status SearchStatus) string {
	switch status {
	case StatusSearching:
		return "status-searching"
	case StatusError:
		return "status-error"
	default:
		return "status-ready"
	}
}
