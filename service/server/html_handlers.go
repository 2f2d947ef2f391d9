package server

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/transfer"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templateFuncs = template.FuncMap{
	"amount": transfer.FormatAmount,
	"fiat": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"addr": func(s *string) string {
		if s == nil {
			return "-"
		}
		return *s
	},
}

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given status code and data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	return tr.templates.ExecuteTemplate(w, name, data)
}

// dashboardData is the view model for dashboard.html.
type dashboardData struct {
	Address string
	Source  string
	Sources []string
	Report  *report.Report
	Error   string
	Warning string
}

// handleDashboard serves the wallet dashboard. Without an address it shows only the form.
// GET / and GET /wallet?address={address}&source={source}
func handleDashboard(builder ReportBuilder, renderer *TemplateRenderer, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		data := dashboardData{
			Address: query.Get("address"),
			Source:  query.Get("source"),
			Sources: builder.Sources(),
		}

		render := func(status int) {
			if err := renderer.Render(w, "dashboard.html", status, data); err != nil {
				logger.Error("failed to render template", "error", err)
			}
		}

		if data.Address == "" {
			render(http.StatusOK)
			return
		}

		if err := validateAddress(data.Address); err != nil {
			data.Error = err.Error()
			render(http.StatusBadRequest)
			return
		}

		rep, err := builder.Build(r.Context(), report.Request{
			Address: data.Address,
			Source:  data.Source,
		})
		if err != nil {
			if isRequestError(err) {
				data.Error = err.Error()
				render(http.StatusBadRequest)
				return
			}
			logger.Error("failed to build report", "address", data.Address, "error", err)
			data.Error = "Failed to fetch transactions: " + err.Error()
			render(http.StatusBadGateway)
			return
		}

		data.Report = rep
		data.Source = rep.Source
		if rep.Empty() {
			data.Warning = "No transfers found for this wallet."
		}
		render(http.StatusOK)
	})
}
