package hub

// Registry is the set of service names seen so far, kept in discovery
// order. It is not safe for concurrent use; the hub guards it.
type Registry struct {
	seen  map[string]struct{}
	order []string
}

func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]struct{})}
}

// Add records name and reports whether it was new.
func (r *Registry) Add(name string) bool {
	if _, ok := r.seen[name]; ok {
		return false
	}
	r.seen[name] = struct{}{}
	r.order = append(r.order, name)
	return true
}

func (r *Registry) Contains(name string) bool {
	_, ok := r.seen[name]
	return ok
}

func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) Reset() {
	r.seen = make(map[string]struct{})
	r.order = nil
}
