package web

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
)

//go:embed assets/*.html
var assets embed.FS

// Template and main menu definition
type Templates struct {
	*template.Template
	Menu []Link
}

type Link struct {
	Url      string
	Name     string
	Selected bool
}

// Parse templates and initialise main menu
func NewTemplates() (*Templates, error) {
	var err error
	t := &Templates{Menu: []Link{
		{Name: "stats", Url: "/stats"},
		{Name: "loss", Url: "/plot/loss"},
		{Name: "accuracy", Url: "/plot/accuracy"},
		{Name: "json", Url: "/stats.json"},
	}}
	t.Template, err = template.New("").Funcs(template.FuncMap{"pct": pct}).ParseFS(assets, "assets/*.html")
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) Clone() *Templates {
	return &Templates{
		Template: t.Template,
		Menu:     append([]Link{}, t.Menu...),
	}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = strings.HasPrefix(key.Url, url)
	}
	return t
}

func pct(x float64) string {
	return fmt.Sprintf("%.2f%%", x)
}

func logError(w http.ResponseWriter, err error) {
	log.Println(err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
