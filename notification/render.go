package notification

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"grade": func(g *float64) string {
		if g == nil {
			return "-"
		}
		return strconv.FormatFloat(*g, 'f', 2, 64)
	},
}

// Renderer renders notification bodies from the embedded templates
type Renderer struct {
	templates map[model.NotificationKind]*template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	layout, err := template.New("layout").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, errors.Wrap(err, "notification: failed to parse layout")
	}
	r := &Renderer{templates: make(map[model.NotificationKind]*template.Template, len(subjects))}
	for kind := range subjects {
		base, err := layout.Clone()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		t, err := base.ParseFS(templateFS, "templates/"+string(kind)+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "notification: failed to parse template for %s", kind)
		}
		r.templates[kind] = t
	}
	return r, nil
}

// Render returns the html body of n
func (r *Renderer) Render(n model.Notification) (string, error) {
	t, ok := r.templates[n.Kind]
	if !ok {
		return "", errors.Errorf("no template for notification kind %q", n.Kind)
	}
	var data Data
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &data); err != nil {
			return "", errors.Wrap(err, "notification: invalid data")
		}
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", errors.Wrapf(err, "notification: failed to render %s", n.Kind)
	}
	return buf.String(), nil
}
