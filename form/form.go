// Package form cleans the metadata users submit with their requests
package form

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/supremind/svcaccess/types"
)

// field types
const (
	TypeString = "string"
	TypeText   = "text"
	TypeBool   = "bool"
	TypeChoice = "choice"
)

// Field of a metadata form
type Field struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Choices  []string `yaml:"choices,omitempty"`
}

var _ types.Form = (*Schema)(nil)

// Schema is a list of fields, unknown keys are dropped on Clean
type Schema struct {
	ID     int64   `yaml:"id"`
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Clean keeps the known fields of md, checking they are present and well typed
func (s *Schema) Clean(md types.Metadata) (types.Metadata, error) {
	ve := &types.ValidationError{}
	out := make(types.Metadata, len(s.Fields))

	for _, f := range s.Fields {
		v, ok := md[f.Name]
		if !ok || v == nil || v == "" {
			if f.Required {
				ve.Add(f.Name, "this field is required")
			}
			continue
		}

		switch f.Type {
		case TypeBool:
			b, ok := v.(bool)
			if !ok {
				ve.Add(f.Name, "must be true or false")
				continue
			}
			if f.Required && !b {
				ve.Add(f.Name, "this field is required")
				continue
			}
			out[f.Name] = b

		case TypeChoice:
			str, ok := v.(string)
			if !ok || !contains(f.Choices, str) {
				ve.Add(f.Name, fmt.Sprintf("select one of %s", strings.Join(f.Choices, ", ")))
				continue
			}
			out[f.Name] = str

		default:
			str, ok := v.(string)
			if !ok {
				ve.Add(f.Name, "must be text")
				continue
			}
			str = strings.TrimSpace(str)
			if str == "" && f.Required {
				ve.Add(f.Name, "this field is required")
				continue
			}
			out[f.Name] = str
		}
	}

	if e := ve.OrNil(); e != nil {
		return nil, e
	}
	return out, nil
}

func contains(ss []string, s string) bool {
	for _, o := range ss {
		if o == s {
			return true
		}
	}
	return false
}

var _ types.FormRegistry = (*Registry)(nil)

// Registry keeps forms by id
type Registry struct {
	forms map[int64]*Schema
	sync.RWMutex
}

// NewRegistry creates a registry of schemas
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{forms: make(map[int64]*Schema, len(schemas))}
	for _, s := range schemas {
		if e := r.Add(s); e != nil {
			return nil, e
		}
	}
	return r, nil
}

// Load reads schemas listed under the top level forms key of a yaml file
func Load(path string) (*Registry, error) {
	data, e := os.ReadFile(path)
	if e != nil {
		return nil, fmt.Errorf("read forms: %w", e)
	}

	var doc struct {
		Forms []*Schema `yaml:"forms"`
	}
	if e := yaml.Unmarshal(data, &doc); e != nil {
		return nil, fmt.Errorf("parse forms %s: %w", path, e)
	}
	return NewRegistry(doc.Forms...)
}

// Add a schema, its id must be unique and its fields well formed
func (r *Registry) Add(s *Schema) error {
	if s.ID == 0 {
		return types.NewValidationError("id", "form id is required")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" || seen[f.Name] {
			return types.NewValidationError("fields", fmt.Sprintf("form %d: field names must be unique and not empty", s.ID))
		}
		seen[f.Name] = true
		switch f.Type {
		case "", TypeString, TypeText, TypeBool:
		case TypeChoice:
			if len(f.Choices) == 0 {
				return types.NewValidationError("fields", fmt.Sprintf("form %d: field %s has no choices", s.ID, f.Name))
			}
		default:
			return types.NewValidationError("fields", fmt.Sprintf("form %d: field %s has unknown type %s", s.ID, f.Name, f.Type))
		}
	}

	r.Lock()
	defer r.Unlock()
	if _, ok := r.forms[s.ID]; ok {
		return fmt.Errorf("%w: form %d", types.ErrAlreadyExists, s.ID)
	}
	r.forms[s.ID] = s
	return nil
}

// Form by id
func (r *Registry) Form(_ context.Context, id int64) (types.Form, error) {
	r.RLock()
	defer r.RUnlock()
	s, ok := r.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: form %d", types.ErrNotFound, id)
	}
	return s, nil
}
