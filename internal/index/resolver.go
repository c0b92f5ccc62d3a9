package index

// Resolver maps USRs to dense ids, one id space per kind. Ids are handed out
// in first-seen order starting at 0 and are never reassigned. A Resolver
// belongs to exactly one build.
type Resolver struct {
	ids    [3]map[string]int
	counts [3]int
	kinds  map[string]Kind
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	r := &Resolver{kinds: make(map[string]Kind)}
	for i := range r.ids {
		r.ids[i] = make(map[string]int)
	}
	return r
}

// Resolve returns the id for usr within kind, allocating the next id on
// first sight. created reports whether this call allocated it. A usr that
// was already resolved under another kind yields *IdentityConflictError.
func (r *Resolver) Resolve(kind Kind, usr string) (id int, created bool, err error) {
	if existing, ok := r.kinds[usr]; ok && existing != kind {
		return 0, false, &IdentityConflictError{USR: usr, Existing: existing, Got: kind}
	}
	if id, ok := r.ids[kind][usr]; ok {
		return id, false, nil
	}
	id = r.counts[kind]
	r.counts[kind]++
	r.ids[kind][usr] = id
	r.kinds[usr] = kind
	return id, true, nil
}

// Lookup returns the id for usr within kind without allocating.
func (r *Resolver) Lookup(kind Kind, usr string) (int, bool) {
	id, ok := r.ids[kind][usr]
	return id, ok
}

// Count returns how many ids have been allocated for kind.
func (r *Resolver) Count(kind Kind) int {
	return r.counts[kind]
}

// Check reports the conflict Resolve would return for usr under kind,
// without allocating anything.
func (r *Resolver) Check(kind Kind, usr string) error {
	if existing, ok := r.kinds[usr]; ok && existing != kind {
		return &IdentityConflictError{USR: usr, Existing: existing, Got: kind}
	}
	return nil
}
