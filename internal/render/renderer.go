package render

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrLayoutNotFound   = errors.New("layout not found")
	ErrRenderFailed     = errors.New("render failed")
)

// ContentPlaceholder marks where compiled Markdown is inserted into a layout.
const ContentPlaceholder = "{{CONTENT}}"

// extensions in lookup order
var extensions = []string{".md", ".html"}

type Template struct {
	Name   string
	Ext    string
	Source string
}

type Result struct {
	HTML string
	Text string
}

type Config struct {
	Layout string
}

// Renderer loads templates from a filesystem and compiles them to HTML.
// Markdown templates go through goldmark and, when a layout is configured,
// are placed into it; HTML templates are used as they are.
type Renderer struct {
	fs  fs.FS
	cfg Config
	md  goldmark.Markdown
}

func New(filesystem fs.FS, cfg Config) *Renderer {
	return &Renderer{
		fs:  filesystem,
		cfg: cfg,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		),
	}
}

func (r *Renderer) Load(name string) (*Template, error) {
	candidates := make([]string, 0, len(extensions))
	if ext := path.Ext(name); isKnownExtension(ext) {
		candidates = append(candidates, name)
	} else {
		for _, ext := range extensions {
			candidates = append(candidates, name+ext)
		}
	}

	for _, candidate := range candidates {
		content, err := fs.ReadFile(r.fs, candidate)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", candidate, err)
		}

		ext := path.Ext(candidate)
		return &Template{
			Name:   strings.TrimSuffix(candidate, ext),
			Ext:    ext,
			Source: string(content),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// Available lists template names (without extension) at the root of the filesystem.
func (r *Renderer) Available() ([]string, error) {
	entries, err := fs.ReadDir(r.fs, ".")
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var names []string
	for _, entry := range entries {
		ext := path.Ext(entry.Name())
		if entry.IsDir() || !isKnownExtension(ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names, nil
}

func (r *Renderer) Compile(tmpl *Template, vars map[string]string) (*Result, error) {
	source := Render(tmpl.Source, vars)

	if tmpl.Ext != ".md" {
		return &Result{HTML: source}, nil
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, tmpl.Name, err)
	}

	html := buf.String()
	if r.cfg.Layout != "" {
		layout, err := fs.ReadFile(r.fs, r.cfg.Layout)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, r.cfg.Layout, err)
		}
		html = strings.Replace(Render(string(layout), vars), ContentPlaceholder, html, 1)
	}

	return &Result{HTML: html, Text: source}, nil
}

// Execute loads the named template and compiles it with vars.
func (r *Renderer) Execute(name string, vars map[string]string) (*Result, error) {
	tmpl, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	return r.Compile(tmpl, vars)
}

// Render replaces every literal {{KEY}} with vars[KEY] in a single pass.
// Placeholders without a matching key are left untouched.
func Render(source string, vars map[string]string) string {
	if len(vars) == 0 {
		return source
	}

	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, key := range keys {
		pairs = append(pairs, "{{"+key+"}}", vars[key])
	}

	return strings.NewReplacer(pairs...).Replace(source)
}

func isKnownExtension(ext string) bool {
	for _, known := range extensions {
		if ext == known {
			return true
		}
	}
	return false
}
