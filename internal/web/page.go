package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/policyimport/internal/logging"
	"github.com/JonMunkholm/policyimport/internal/policy"
	"github.com/JonMunkholm/policyimport/internal/web/templates"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	params := templates.UploadPageParams{
		MaxSize: formatSize(s.cfg.Upload.MaxFileSize),
		Columns: columnViews(),
	}
	if s.cfg.Metrics.Enabled {
		params.MetricsPath = s.cfg.Metrics.Path
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.UploadPage(params).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render upload page", "error", err)
	}
}

func columnViews() []templates.ColumnView {
	views := make([]templates.ColumnView, len(policy.Fields))
	for i, f := range policy.Fields {
		views[i] = templates.ColumnView{Column: f.Column, Label: f.Label, Type: f.Type.String()}
	}
	return views
}

func formatSize(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
