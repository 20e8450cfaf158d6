package echoweb

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Local().Format("Mon 02 Jan 2006 15:04")
	},
	"grade": func(g *float64) string {
		if g == nil {
			return "-"
		}
		return strconv.FormatFloat(*g, 'f', 2, 64)
	},
}

// renderer renders the pages of templates/, each one within `_base.gohtml`.
type renderer struct {
	pages map[string]*template.Template
}

var _ echo.Renderer = (*renderer)(nil)

func newRenderer(strict bool) (*renderer, error) {
	fps, err := fs.Glob(templateFS, "templates/*.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "listing templates")
	}

	r := &renderer{pages: make(map[string]*template.Template, len(fps))}
	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl, err := template.New(fname).Funcs(templateFuncs).ParseFS(templateFS, "templates/_base.gohtml", fp)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", fname)
		}
		if strict {
			tmpl = tmpl.Option("missingkey=error")
		}
		r.pages[strings.TrimSuffix(fname, path.Ext(fname))] = tmpl
	}
	return r, nil
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "base", data)
}
