package behaviour

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/supremind/svcaccess/types"
)

// GroupModel describes one family of posix groups in the directory
type GroupModel struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	BaseDN      string `yaml:"base_dn"`
	GidMin      int    `yaml:"gid_number_min"`
	GidMax      int    `yaml:"gid_number_max"`
}

// GroupRegistry is the set of configured group models
type GroupRegistry struct {
	models map[string]*GroupModel
}

// NewGroupRegistry checks and indexes group models
func NewGroupRegistry(models ...GroupModel) (*GroupRegistry, error) {
	r := &GroupRegistry{models: make(map[string]*GroupModel, len(models))}
	for i := range models {
		m := models[i]
		switch {
		case m.Name == "":
			return nil, types.NewValidationError("name", "group model needs a name")
		case m.BaseDN == "":
			return nil, types.NewValidationError("base_dn", "group model "+m.Name+" needs a base dn")
		case m.GidMin >= m.GidMax:
			return nil, types.NewValidationError("gid_number_max", "group model "+m.Name+" has an empty gid range")
		}
		if _, ok := r.models[m.Name]; ok {
			return nil, fmt.Errorf("%w: group model %s", types.ErrAlreadyExists, m.Name)
		}
		r.models[m.Name] = &m
	}
	return r, nil
}

// LoadGroupRegistry reads group models from a yaml file with a top level "group_models" list
func LoadGroupRegistry(path string) (*GroupRegistry, error) {
	raw, e := os.ReadFile(path)
	if e != nil {
		return nil, e
	}
	var doc struct {
		Models []GroupModel `yaml:"group_models"`
	}
	if e := yaml.Unmarshal(raw, &doc); e != nil {
		return nil, fmt.Errorf("parse group models %s: %w", path, e)
	}
	return NewGroupRegistry(doc.Models...)
}

// Lookup a model by name
func (r *GroupRegistry) Lookup(name string) (*GroupModel, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Names of all models, sorted
func (r *GroupRegistry) Names() []string {
	out := make([]string, 0, len(r.models))
	for n := range r.models {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
