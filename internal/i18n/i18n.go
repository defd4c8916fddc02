// Package i18n is the static UI string table.
package i18n

import (
	_ "embed"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"suraksha-jal/internal/platform/httpjson"
)

const Default = "en"

//go:embed translations.yaml
var translationsYAML []byte

type Catalog struct {
	strings map[string]map[string]string
}

func Load() (*Catalog, error) {
	return Parse(translationsYAML)
}

func Parse(raw []byte) (*Catalog, error) {
	var table map[string]map[string]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse translations: %w", err)
	}
	if _, ok := table[Default]; !ok {
		return nil, fmt.Errorf("translations have no %q table", Default)
	}
	return &Catalog{strings: table}, nil
}

// MustLoad panics if the embedded table is broken.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

func (c *Catalog) Supported(lang string) bool {
	_, ok := c.strings[normalize(lang)]
	return ok
}

func (c *Catalog) Languages() []string {
	langs := make([]string, 0, len(c.strings))
	for l := range c.strings {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// T looks key up in lang, then in English, then returns the key itself.
func (c *Catalog) T(lang, key string) string {
	if v, ok := c.strings[normalize(lang)][key]; ok {
		return v
	}
	if v, ok := c.strings[Default][key]; ok {
		return v
	}
	return key
}

// Table is the full table for lang with English filling the gaps.
func (c *Catalog) Table(lang string) map[string]string {
	out := make(map[string]string, len(c.strings[Default]))
	for k, v := range c.strings[Default] {
		out[k] = v
	}
	for k, v := range c.strings[normalize(lang)] {
		out[k] = v
	}
	return out
}

type Handler struct {
	catalog *Catalog
}

func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

func (h *Handler) Languages(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, map[string]any{"languages": h.catalog.Languages(), "default": Default})
}

func (h *Handler) Strings(w http.ResponseWriter, r *http.Request) {
	lang := chi.URLParam(r, "lang")
	if !h.catalog.Supported(lang) {
		httpjson.Error(w, http.StatusNotFound, "Unsupported language: "+lang)
		return
	}
	httpjson.Write(w, http.StatusOK, h.catalog.Table(lang))
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/i18n", h.Languages)
	r.Get("/i18n/{lang}", h.Strings)
}
