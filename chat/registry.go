package chat

// Registry maps nicknames to users for the duration of one run.
// Users are never removed; Users returns them in first-appearance order.
type Registry struct {
	byNick map[string]User
	order  []User
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byNick: make(map[string]User)}
}

// FindOrCreate returns the user for nick, creating it on first sight.
func (r *Registry) FindOrCreate(nick string) User {
	if u, ok := r.byNick[nick]; ok {
		return u
	}
	u := User{Nick: nick}
	r.byNick[nick] = u
	r.order = append(r.order, u)
	return u
}

// Lookup returns the user for nick without creating it.
func (r *Registry) Lookup(nick string) (User, bool) {
	u, ok := r.byNick[nick]
	return u, ok
}

// Len returns the number of known users.
func (r *Registry) Len() int { return len(r.order) }

// Users returns a copy of all users in first-appearance order.
func (r *Registry) Users() []User {
	out := make([]User, len(r.order))
	copy(out, r.order)
	return out
}
