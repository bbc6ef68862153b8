package aggregation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Allowlist resolves the enabled aggregation set for a project. Projects
// without an explicit entry fall back to the default set. Loaded once at
// startup and read-only afterwards, so it is safe to share across requests.
type Allowlist struct {
	defaults []Type
	projects map[string][]Type
}

// rawAllowlist is the on-disk YAML shape: a single map of project id to
// aggregation type names.
type rawAllowlist struct {
	Projects map[string][]string `yaml:"projects"`
}

// NewAllowlist builds an allow-list with no per-project overrides.
func NewAllowlist(defaults []Type) *Allowlist {
	return &Allowlist{
		defaults: append([]Type(nil), defaults...),
		projects: make(map[string][]Type),
	}
}

// LoadAllowlistFile reads per-project overrides from a YAML file. An empty
// path yields the defaults-only allow-list. Unknown type names fail the load;
// a misconfigured allow-list should stop startup, not surface per request.
func LoadAllowlistFile(path string, defaults []Type) (*Allowlist, error) {
	list := NewAllowlist(defaults)
	if path == "" {
		return list, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allowlist file: %w", err)
	}

	var raw rawAllowlist
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing allowlist file %s: %w", path, err)
	}

	for project, names := range raw.Projects {
		if project == "" {
			return nil, fmt.Errorf("allowlist file %s: empty project id", path)
		}
		types := make([]Type, 0, len(names))
		for _, name := range names {
			t, err := ParseType(name)
			if err != nil {
				return nil, fmt.Errorf("allowlist project %q: %w", project, err)
			}
			types = append(types, t)
		}
		list.projects[project] = types
	}

	return list, nil
}

// EnabledFor returns the enabled aggregations for a project.
func (a *Allowlist) EnabledFor(project string) []Type {
	if types, ok := a.projects[project]; ok {
		return append([]Type(nil), types...)
	}
	return append([]Type(nil), a.defaults...)
}
