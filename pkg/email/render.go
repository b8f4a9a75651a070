package email

import (
	"embed"
	"fmt"
	"html/template"
	"strings"
)

// Template names accepted by Render.
const (
	TemplateCheckoutCompleted    = "checkout_completed"
	TemplateSubscriptionCanceled = "subscription_canceled"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = func() map[string]*template.Template {
	out := make(map[string]*template.Template)
	for _, name := range []string{TemplateCheckoutCompleted, TemplateSubscriptionCanceled} {
		out[name] = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return out
}()

// TemplateData is passed to every template. Fields a template does not use
// may be left empty.
type TemplateData struct {
	Subject     string
	Brand       string
	SiteURL     string
	Name        string
	ProductName string
	Amount      string
	Currency    string
	Interval    string
}

// Render executes the named template and returns the HTML body.
func Render(name string, data TemplateData) (string, error) {
	tpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var sb strings.Builder
	if err := tpl.ExecuteTemplate(&sb, "layout", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return sb.String(), nil
}
