package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ginrender "github.com/gin-gonic/gin/render"
)

//go:embed all:views
var viewsFS embed.FS

const (
	pageGlob    = "*.html"
	partialGlob = "partials/**/*.html"
)

// ErrTemplateNotFound is returned when a render names a page that was never loaded.
var ErrTemplateNotFound = errors.New("template not found")

// Renderer holds parsed pages and the shared partial set.
// It is immutable once built and safe for concurrent use.
type Renderer struct {
	pages map[string]*template.Template
	now   func() time.Time
}

// Option configures a Renderer before templates are parsed.
type Option func(*Renderer)

// WithClock overrides the clock behind getCurrentYear.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// Default returns a Renderer over the embedded views.
func Default(opts ...Option) (*Renderer, error) {
	sub, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, err
	}
	return New(sub, opts...)
}

// New parses every page at the root of fsys. Partials under partials/ are
// loaded once and shared by all pages.
func New(fsys fs.FS, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		pages: make(map[string]*template.Template),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	base := template.New("").Funcs(r.funcs())

	partials, err := doublestar.Glob(fsys, partialGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("listing partials: %w", err)
	}
	sort.Strings(partials)
	for _, p := range partials {
		if err := parseInto(base, fsys, p, partialName(p)); err != nil {
			return nil, err
		}
	}

	pages, err := fs.Glob(fsys, pageGlob)
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	for _, p := range pages {
		name := strings.TrimSuffix(p, path.Ext(p))
		tmpl, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if err := parseInto(tmpl, fsys, p, name); err != nil {
			return nil, err
		}
		r.pages[name] = tmpl
	}
	if len(r.pages) == 0 {
		return nil, fmt.Errorf("no %s pages found", pageGlob)
	}

	return r, nil
}

// partialName maps partials/site/header.html to "site/header".
func partialName(p string) string {
	p = strings.TrimPrefix(p, "partials/")
	return strings.TrimSuffix(p, path.Ext(p))
}

func parseInto(t *template.Template, fsys fs.FS, file, name string) error {
	raw, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("reading %s: %w", file, err)
	}
	if _, err := t.New(name).Parse(string(raw)); err != nil {
		return fmt.Errorf("parsing %s: %w", file, err)
	}
	return nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"screamIt":       ScreamIt,
		"getCurrentYear": func() int { return CurrentYear(r.now) },
	}
}

// Pages returns the loaded page names in sorted order.
func (r *Renderer) Pages() []string {
	names := make([]string, 0, len(r.pages))
	for name := range r.pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named page with data and writes the document to w.
// Nothing is written unless execution succeeds.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("executing %q: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Instance implements gin's render.HTMLRender.
func (r *Renderer) Instance(name string, data any) ginrender.Render {
	return page{renderer: r, name: name, data: data}
}

var htmlContentType = []string{"text/html; charset=utf-8"}

type page struct {
	renderer *Renderer
	name     string
	data     any
}

func (p page) Render(w http.ResponseWriter) error {
	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, p.name, p.data); err != nil {
		return err
	}
	p.WriteContentType(w)
	_, err := buf.WriteTo(w)
	return err
}

func (p page) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = htmlContentType
	}
}
