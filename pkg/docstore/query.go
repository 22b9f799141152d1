package docstore

import "sort"

// Query narrows and orders a collection read. The zero value returns every
// child in key order.
type Query struct {
	orderBy  string
	hasEqual bool
	equalTo  any
	limit    int
}

// OrderByChild orders children by the named field, then by key.
func OrderByChild(field string) Query {
	return Query{orderBy: field}
}

// OrderByKey orders children by key only.
func OrderByKey() Query {
	return Query{}
}

// EqualTo keeps only children whose order field equals v.
func (q Query) EqualTo(v any) Query {
	q.hasEqual = true
	q.equalTo = v
	return q
}

// LimitToLast keeps the last n children in query order.
func (q Query) LimitToLast(n int) Query {
	q.limit = n
	return q
}

func (q Query) apply(children []Child) []Child {
	sort.SliceStable(children, func(i, j int) bool {
		if q.orderBy != "" {
			if c := compareValues(field(children[i].Value, q.orderBy), field(children[j].Value, q.orderBy)); c != 0 {
				return c < 0
			}
		}
		return children[i].Key < children[j].Key
	})

	if q.hasEqual {
		kept := children[:0]
		for _, child := range children {
			var v any
			if q.orderBy == "" {
				v = child.Key
			} else {
				v = field(child.Value, q.orderBy)
			}
			if rank(v) == rank(q.equalTo) && compareValues(v, q.equalTo) == 0 {
				kept = append(kept, child)
			}
		}
		children = kept
	}

	if q.limit > 0 && len(children) > q.limit {
		children = children[len(children)-q.limit:]
	}
	return children
}
