package collector

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed templates/dashboard.html
var dashboardTemplate string

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"seconds": func(ms float64) string { return fmt.Sprintf("%.1fs", ms/1000) },
	"kib":     func(b int64) string { return fmt.Sprintf("%.1f KiB", float64(b)/1024) },
	"stamp":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
}).Parse(dashboardTemplate))

// dashboardData feeds the index page.
type dashboardData struct {
	Recordings  []Entry
	Totals      Totals
	GeneratedAt time.Time
}

const dashboardLimit = 200

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List(r.Context(), dashboardLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	totals, err := s.store.Totals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := dashboardData{Recordings: entries, Totals: totals, GeneratedAt: s.now()}
	if err := dashboardTmpl.Execute(w, data); err != nil {
		s.logger.Error("render dashboard failed", "error", err)
	}
}
