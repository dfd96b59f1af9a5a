package query

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/maps"
)

// ErrInvalidID is returned when an identity filter value is not a valid object id.
var ErrInvalidID = errors.New("invalid object id")

const propertiesPrefix = "properties."

var (
	contentFilterFields = []string{"_id", "hasChildren", "parentId", "parentPath", "contentType", "createdBy", "isDeleted", "deletedBy"}

	idFields = []string{"_id", "parentId", "createdBy", "deletedBy"}

	languageFilterFields = []string{"name", "urlSegment", "language", "status", "startPublish", "updatedAt"}
)

// ContentFilter picks the content-level fields out of a flat filter and
// converts identity values to object ids. Language fields present in the
// filter are folded in as an $elemMatch on the embedded language records,
// so nodes without a matching language are dropped before the unwind.
//
// A key present with a nil value matches null or missing fields.
func ContentFilter(filter bson.M) (bson.M, error) {
	out := pick(filter, contentFilterFields)
	for _, key := range idFields {
		v, ok := out[key]
		if !ok {
			continue
		}
		converted, err := convertID(key, v)
		if err != nil {
			return nil, err
		}
		out[key] = converted
	}

	lang := pick(filter, languageFilterFields)
	if len(lang) > 0 {
		out[LanguagesField] = bson.M{"$elemMatch": lang}
	}
	return out, nil
}

// LanguageFilter builds the filter applied after the language records are
// unwound: every language field is addressed through its embedded path.
// Property filters may be given as a nested "properties" map or as
// "properties.<key>" entries.
func LanguageFilter(filter bson.M) bson.M {
	out := bson.M{}
	for _, key := range languageFilterFields {
		if v, ok := filter[key]; ok {
			out[LanguagesField+"."+key] = v
		}
	}
	if props, ok := asMap(filter["properties"]); ok {
		for _, field := range sortedKeys(props) {
			out[LanguagesField+".properties."+field] = props[field]
		}
	}
	for _, key := range sortedKeys(filter) {
		if strings.HasPrefix(key, propertiesPrefix) {
			out[LanguagesField+"."+key] = filter[key]
		}
	}
	return out
}

func pick(src bson.M, fields []string) bson.M {
	out := bson.M{}
	for _, f := range fields {
		if v, ok := src[f]; ok {
			out[f] = v
		}
	}
	return out
}

func convertID(key string, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case primitive.ObjectID:
		return t, nil
	case *primitive.ObjectID:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case string:
		id, err := primitive.ObjectIDFromHex(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidID, key, t)
		}
		return id, nil
	}

	ops, ok := asMap(v)
	if !ok {
		list, isList := asList(v)
		if !isList {
			return v, nil
		}
		return convertIDList(key, list)
	}

	out := bson.M{}
	for op, operand := range ops {
		switch op {
		case "$in", "$nin":
			list, isList := asList(operand)
			if !isList {
				return nil, fmt.Errorf("%w: %s %s expects a list", ErrInvalidID, key, op)
			}
			converted, err := convertIDList(key, list)
			if err != nil {
				return nil, err
			}
			out[op] = converted
		case "$eq", "$ne":
			converted, err := convertID(key, operand)
			if err != nil {
				return nil, err
			}
			out[op] = converted
		default:
			out[op] = operand
		}
	}
	return out, nil
}

func convertIDList(key string, list []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		converted, err := convertID(key, item)
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func asMap(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	case bson.D:
		return Normalize(t).(bson.M), true
	}
	return nil, false
}

// asList accepts any slice or array except byte slices.
func asList(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if _, isD := v.(bson.D); isD {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func sortedKeys(m bson.M) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
