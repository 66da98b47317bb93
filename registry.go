package hypermedia

import (
	"slices"
	"sort"
)

// Registry holds type definitions by name.
type Registry map[string]TypeDef

func (a *API) Registry() Registry {
	return a.registry
}

// Types returns every registered type ordered by name.
func (a *API) Types() []TypeDef {
	return a.registry.Types()
}

func (a *API) GetType(name string) (TypeDef, bool) {
	return a.registry.Find(name)
}

func (a *API) HasType(name string) bool {
	_, ok := a.GetType(name)
	return ok
}

func (r Registry) Find(name string) (TypeDef, bool) {
	d, ok := r[name]
	return d, ok
}

func (r Registry) Types() []TypeDef {
	defs := make([]TypeDef, 0, len(r))
	for _, d := range r {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// TaggedTypes returns all types that have all the tags provided
func (r Registry) TaggedTypes(tags ...string) []TypeDef {
	defs := make([]TypeDef, 0, len(r))
	for _, d := range r.Types() {
		if len(d.Tags) < len(tags) {
			continue
		}

		hasAllTags := true
		for _, requiredTag := range tags {
			if !slices.Contains(d.Tags, requiredTag) {
				hasAllTags = false
				break
			}
		}

		if hasAllTags {
			defs = append(defs, d)
		}
	}
	return defs
}

// Endpoints returns the paths under which registered types are served, transformed by fn.
func (r Registry) Endpoints(base string, transform func(string) string) []string {
	unique := make(map[string]bool)

	for _, d := range r {
		unique[transform(base+"/"+d.Name+"/{id}")] = true
		for _, rel := range d.Relations {
			unique[transform(base+"/"+d.Name+"/{id}/"+rel.Name)] = true
		}
	}

	keys := make([]string, 0, len(unique))
	for key := range unique {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}
