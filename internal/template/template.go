// Package template is a store-backed registry of prompt templates with
// {placeholder} substitution.
package template

import (
	"context"
	"fmt"
	"regexp"

	"github.com/corpusloom/corpusloom/internal/storage"
)

// placeholderPattern matches {name} style placeholders
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Registry manages named prompt templates
type Registry struct {
	store storage.Storage
}

// NewRegistry creates a registry over the given store
func NewRegistry(store storage.Storage) *Registry {
	return &Registry{store: store}
}

// Register creates or replaces a template
func (r *Registry) Register(ctx context.Context, name, content string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("template content cannot be empty")
	}
	return r.store.UpsertTemplate(ctx, &storage.Template{Name: name, Content: content})
}

// Get returns a stored template
func (r *Registry) Get(ctx context.Context, name string) (*storage.Template, error) {
	return r.store.GetTemplate(ctx, name)
}

// List returns all templates ordered by name
func (r *Registry) List(ctx context.Context) ([]*storage.Template, error) {
	return r.store.ListTemplates(ctx)
}

// Delete removes a template
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.store.DeleteTemplate(ctx, name)
}

// Render substitutes {placeholder} occurrences in the named template with
// values from vars. Placeholders without a matching variable are left
// verbatim.
func (r *Registry) Render(ctx context.Context, name string, vars map[string]string) (string, error) {
	tpl, err := r.store.GetTemplate(ctx, name)
	if err != nil {
		return "", err
	}
	return Expand(tpl.Content, vars), nil
}

// Expand substitutes {placeholder} occurrences in content
func Expand(content string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := match[1 : len(match)-1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}
