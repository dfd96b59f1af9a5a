package query

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// LanguagesField is the embedded array holding a node's per-language records.
const LanguagesField = "contentLanguages"

// ToDocument converts a bson-tagged value into a generic document with
// bson.M for every nested document and []interface{} for every array.
func ToDocument(v interface{}) (bson.M, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return Normalize(doc).(bson.M), nil
}

// FromDocument decodes a generic document into out.
func FromDocument(doc bson.M, out interface{}) error {
	data, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := bson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Normalize rewrites driver container types in place so callers only deal
// with bson.M and []interface{}.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		for k, x := range t {
			t[k] = Normalize(x)
		}
		return t
	case map[string]interface{}:
		m := bson.M(t)
		for k, x := range m {
			m[k] = Normalize(x)
		}
		return m
	case bson.D:
		m := make(bson.M, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = Normalize(x)
		}
		return out
	case []interface{}:
		for i, x := range t {
			t[i] = Normalize(x)
		}
		return t
	default:
		return v
	}
}

// Flatten lays the unwound language record of row over its content fields.
// Language values win on key collision and the embedded record is dropped.
func Flatten(row bson.M) bson.M {
	out := make(bson.M, len(row))
	for k, v := range row {
		if k == LanguagesField {
			continue
		}
		out[k] = v
	}
	if lang, ok := row[LanguagesField].(bson.M); ok {
		for k, v := range lang {
			out[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of doc.
func Clone(doc bson.M) bson.M {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(bson.M)
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		m := make(bson.M, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
