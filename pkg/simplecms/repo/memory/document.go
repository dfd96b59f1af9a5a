package memory

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Sort orders docs in place by the keys of spec, 1 ascending and -1
// descending. Missing fields sort as null. The sort is stable.
func Sort(docs []bson.M, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, e := range spec {
			dir := 1
			if n, ok := number(e.Value); ok && n < 0 {
				dir = -1
			}
			a := sortValue(docs[i], e.Key)
			b := sortValue(docs[j], e.Key)
			c := orderValues(a, b)
			if c != 0 {
				return c*dir < 0
			}
		}
		return false
	})
}

func sortValue(doc bson.M, path string) interface{} {
	vals, found := resolve(doc, strings.Split(path, "."))
	if !found || len(vals) == 0 {
		return nil
	}
	return vals[0]
}

func orderValues(a, b interface{}) int {
	ta, tb := typeOrder(a), typeOrder(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	c, _ := compare(a, b)
	return c
}

// projection is a tree of projected paths; a nil subtree ends a path.
type projection map[string]projection

func newProjection(spec bson.M) (projection, bool) {
	tree := projection{}
	inclusive := false
	for key, v := range spec {
		if key != "_id" && truthy(v) {
			inclusive = true
		}
	}
	if id, ok := spec["_id"]; ok && len(spec) == 1 && truthy(id) {
		inclusive = true
	}
	for key, v := range spec {
		if key == "_id" {
			continue
		}
		if truthy(v) != inclusive {
			continue
		}
		tree.add(strings.Split(key, "."))
	}
	return tree, inclusive
}

func (p projection) add(parts []string) {
	sub, exists := p[parts[0]]
	if len(parts) == 1 {
		p[parts[0]] = nil
		return
	}
	if exists && sub == nil {
		return
	}
	if sub == nil {
		sub = projection{}
		p[parts[0]] = sub
	}
	sub.add(parts[1:])
}

// Project applies a projection spec of 0/1 values to doc. _id is kept
// unless it is explicitly excluded.
func Project(doc bson.M, spec bson.M) bson.M {
	if len(spec) == 0 {
		return doc
	}
	tree, inclusive := newProjection(spec)
	var out bson.M
	if inclusive {
		out = include(doc, tree)
	} else {
		out = exclude(doc, tree)
	}
	if idv, ok := spec["_id"]; ok && !truthy(idv) {
		delete(out, "_id")
	} else if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	return out
}

func include(doc bson.M, tree projection) bson.M {
	out := bson.M{}
	for key, sub := range tree {
		v, ok := doc[key]
		if !ok {
			continue
		}
		if sub == nil {
			out[key] = v
			continue
		}
		switch t := v.(type) {
		case bson.M:
			out[key] = include(t, sub)
		case []interface{}:
			arr := make([]interface{}, 0, len(t))
			for _, el := range t {
				if m, ok := el.(bson.M); ok {
					arr = append(arr, include(m, sub))
				}
			}
			out[key] = arr
		}
	}
	return out
}

func exclude(doc bson.M, tree projection) bson.M {
	out := make(bson.M, len(doc))
	for key, v := range doc {
		sub, listed := tree[key]
		if !listed {
			out[key] = v
			continue
		}
		if sub == nil {
			continue
		}
		switch t := v.(type) {
		case bson.M:
			out[key] = exclude(t, sub)
		case []interface{}:
			arr := make([]interface{}, 0, len(t))
			for _, el := range t {
				if m, ok := el.(bson.M); ok {
					arr = append(arr, exclude(m, sub))
				} else {
					arr = append(arr, el)
				}
			}
			out[key] = arr
		default:
			out[key] = v
		}
	}
	return out
}
