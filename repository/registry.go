package repository

// Registry lists every through table known to the host. Services that work
// across association types, such as merging and orphan detection, use it to
// find all references to a tag table.
type Registry struct {
	items []Associations
}

func NewRegistry(items ...Associations) *Registry {
	r := &Registry{}
	for _, a := range items {
		r.Register(a)
	}
	return r
}

// Register adds a. A table registered twice is kept once.
func (r *Registry) Register(a Associations) {
	for _, existing := range r.items {
		if existing.Name() == a.Name() {
			return
		}
	}
	r.items = append(r.items, a)
}

func (r *Registry) All() []Associations {
	return append([]Associations(nil), r.items...)
}

// Lookup returns the through table called name.
func (r *Registry) Lookup(name string) (Associations, bool) {
	for _, a := range r.items {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// ForTagTable returns the through tables pointing at tagTable.
func (r *Registry) ForTagTable(tagTable string) []Associations {
	var out []Associations
	for _, a := range r.items {
		if a.Tags().Table() == tagTable {
			out = append(out, a)
		}
	}
	return out
}

// TagTables returns each distinct tag table once, in registration order.
func (r *Registry) TagTables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.items {
		if t := a.Tags().Table(); !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Usages returns the through tables pointing at tagTable as tag usages.
func (r *Registry) Usages(tagTable string) []TagUsage {
	var out []TagUsage
	for _, a := range r.ForTagTable(tagTable) {
		out = append(out, a)
	}
	return out
}
