package types

import (
	"fmt"
	"sort"
	"strings"
)

// Record is the full payload of a row version. Versions are not
// deltas: every version carries a complete copy of every field.
type Record map[string]Value

// String renders fields in sorted order for deterministic, readable
// output (CLI display, log messages); map iteration order is
// otherwise unspecified.
func (r Record) String() string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, r[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Clone returns a deep copy of the record so stored versions are
// never aliased with a caller's map.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a new record with patch's fields overlaid onto r.
// Used by Update: the stored version is always the fully-merged
// record, never the patch alone.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// MatchesPredicate reports whether r satisfies the conjunction of
// equality clauses in predicate. An empty predicate matches every
// record. Disjunction and set-membership predicates are out of scope.
func (r Record) MatchesPredicate(predicate Record) bool {
	for field, want := range predicate {
		got, ok := r[field]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}
