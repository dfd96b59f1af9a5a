package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// collection stores normalized documents keyed by _id in insertion order.
// Documents are copied on the way in and on the way out.
type collection struct {
	mu    sync.RWMutex
	docs  map[primitive.ObjectID]bson.M
	order []primitive.ObjectID
}

func newCollection() *collection {
	return &collection{docs: make(map[primitive.ObjectID]bson.M)}
}

func documentID(doc bson.M) (primitive.ObjectID, error) {
	id, ok := doc["_id"].(primitive.ObjectID)
	if !ok || id.IsZero() {
		return primitive.NilObjectID, fmt.Errorf("document has no _id")
	}
	return id, nil
}

func (c *collection) insert(v interface{}) error {
	doc, err := query.ToDocument(v)
	if err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("duplicate key: _id %s", id.Hex())
	}
	c.docs[id] = doc
	c.order = append(c.order, id)
	return nil
}

func (c *collection) replace(v interface{}) error {
	doc, err := query.ToDocument(v)
	if err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[id]; !exists {
		return fmt.Errorf("%w: %s", simplecms.ErrDocumentNotFound, id.Hex())
	}
	c.docs[id] = doc
	return nil
}

func (c *collection) get(id primitive.ObjectID) (bson.M, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	doc, exists := c.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", simplecms.ErrDocumentNotFound, id.Hex())
	}
	return query.Clone(doc), nil
}

// find returns copies of the matching documents, sorted and limited.
func (c *collection) find(filter bson.M, sortBy bson.D, limit int64) ([]bson.M, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	var out []bson.M
	for _, id := range c.order {
		doc := c.docs[id]
		ok, err := Match(doc, f)
		if err != nil {
			c.mu.RUnlock()
			return nil, err
		}
		if ok {
			out = append(out, query.Clone(doc))
		}
	}
	c.mu.RUnlock()

	if len(sortBy) > 0 {
		Sort(out, sortBy)
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *collection) count(filter bson.M) (int64, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, doc := range c.docs {
		ok, err := Match(doc, f)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// updateEach calls fn on every stored document matching filter while
// holding the write lock, and returns how many matched.
func (c *collection) updateEach(filter bson.M, fn func(doc bson.M)) (int64, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for _, id := range c.order {
		doc := c.docs[id]
		ok, err := Match(doc, f)
		if err != nil {
			return n, err
		}
		if ok {
			fn(doc)
			n++
		}
	}
	return n, nil
}

func (c *collection) set(filter bson.M, set bson.M) (int64, error) {
	values, err := query.ToDocument(set)
	if err != nil {
		return 0, err
	}
	return c.updateEach(filter, func(doc bson.M) {
		for path, v := range values {
			setPath(doc, strings.Split(path, "."), query.Clone(bson.M{"v": v})["v"])
		}
	})
}

func setPath(doc bson.M, parts []string, v interface{}) {
	if len(parts) == 1 {
		doc[parts[0]] = v
		return
	}
	child, ok := doc[parts[0]].(bson.M)
	if !ok {
		child = bson.M{}
		doc[parts[0]] = child
	}
	setPath(child, parts[1:], v)
}

func normalizeFilter(filter bson.M) (bson.M, error) {
	if len(filter) == 0 {
		return bson.M{}, nil
	}
	return query.ToDocument(filter)
}
