package views

import (
	"errors"
	"html/template"
	"io"
	"io/fs"
)

var pageTmpl *template.Template

var errNotLoaded = errors.New("templates not loaded: call views.LoadTemplates during startup")

// loadTemplatesFromFS loads page templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	return err
}

// LoadTemplates loads embedded templates. Call during startup before serving
// requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

func render(w io.Writer, name string, data any) error {
	if pageTmpl == nil {
		return errNotLoaded
	}
	return pageTmpl.ExecuteTemplate(w, name, data)
}

func RenderDashboard(w io.Writer, data *DashboardPage) error {
	return render(w, "dashboard.html", data)
}

// RenderLivePartial renders the live section pushed over the event stream.
func RenderLivePartial(w io.Writer, data *LiveData) error {
	return render(w, "partials/live.html", data)
}

// RenderGaugePartial renders only the gauge svg, for animation frames.
func RenderGaugePartial(w io.Writer, data *GaugeData) error {
	return render(w, "partials/gauge.html", data)
}

func RenderHistory(w io.Writer, data *HistoryPage) error {
	return render(w, "history.html", data)
}

// RenderHistoryPartial executes only the history list into w.
// Use for HTMX fragment refresh.
func RenderHistoryPartial(w io.Writer, data *HistoryData) error {
	return render(w, "partials/history_list.html", data)
}

// RenderConfirmPartial renders the delete confirmation prompt.
func RenderConfirmPartial(w io.Writer, data *ConfirmData) error {
	return render(w, "partials/confirm.html", data)
}
