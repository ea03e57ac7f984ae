package realtime

// View tracks which documents currently satisfy a query and turns raw
// upserts into the added/modified/removed deltas a snapshot listener emits.
// A View is owned by a single producer goroutine.
type View[T any] struct {
	key   func(T) string
	match func(T) bool
	equal func(a, b T) bool
	docs  map[string]T
}

// NewView builds a view. equal may be nil, in which case every upsert of a
// matching document is reported as Modified.
func NewView[T any](key func(T) string, match func(T) bool, equal func(a, b T) bool) *View[T] {
	return &View[T]{
		key:   key,
		match: match,
		equal: equal,
		docs:  make(map[string]T),
	}
}

// Apply folds one upsert into the view.
func (v *View[T]) Apply(doc T) (Change[T], bool) {
	k := v.key(doc)
	prev, had := v.docs[k]
	in := v.match(doc)

	switch {
	case in && !had:
		v.docs[k] = doc
		return Change[T]{Kind: Added, Doc: doc}, true
	case in && had:
		if v.equal != nil && v.equal(prev, doc) {
			return Change[T]{}, false
		}
		v.docs[k] = doc
		return Change[T]{Kind: Modified, Doc: doc}, true
	case !in && had:
		delete(v.docs, k)
		return Change[T]{Kind: Removed, Doc: doc}, true
	default:
		return Change[T]{}, false
	}
}

// Len is the current result-set size.
func (v *View[T]) Len() int {
	return len(v.docs)
}
