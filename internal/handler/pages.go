// Package handler contains HTTP request handlers for the account portal.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (form fields, multipart upload, cookies)
// 2. Call the account service
// 3. Write the HTTP response (status code, cookie, redirect or rendered page)
//
// Handlers should NOT contain business logic: they are the "glue" between
// HTTP and the service layer.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/sakif/account-portal/internal/model"
)

// Page names. Each one is a file under web/templates.
const (
	pageRegister = "register"
	pageLogin    = "login"
	pageHome     = "home"
)

// Pages holds the parsed page templates so they are not re-parsed on every
// request.
//
// TEMPLATE COMPOSITION:
// base.html defines the page shell with a {{template "content" .}}
// placeholder. Every page file defines its own "content", so each page is
// parsed into its own template set together with base.html.
type Pages struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// pageData is what every page template receives.
type pageData struct {
	Title string
	Error string
	Form  formValues
	User  *model.SessionUser
}

// formValues echoes non-secret fields back into a re-rendered form.
type formValues struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	BirthDate string
}

// NewPages parses base.html plus every page from fsys.
func NewPages(fsys fs.FS, logger *slog.Logger) (*Pages, error) {
	p := &Pages{
		pages:  make(map[string]*template.Template),
		logger: logger,
	}

	for _, name := range []string{pageRegister, pageLogin, pageHome} {
		tmpl, err := template.ParseFS(fsys, "base.html", name+".html")
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		p.pages[name] = tmpl
	}

	return p, nil
}

// render executes a page into a buffer first, so a template error can
// still produce a clean 500 instead of half a page.
func (p *Pages) render(w http.ResponseWriter, status int, name string, data pageData) {
	tmpl, ok := p.pages[name]
	if !ok {
		p.logger.Error("unknown page", slog.String("page", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		p.logger.Error("failed to render template",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Set content type header BEFORE writing the body
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
