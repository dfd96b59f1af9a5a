package query

import (
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// TiebreakField is appended descending to every combined sort that does not
// already order by it, keeping pagination stable over duplicate keys.
const TiebreakField = "createdAt"

// updatedAt sorts on the language record only; that is the value a
// flattened row shows.
var (
	contentSortFields  = []string{"parentId", "parentPath", "contentType", "createdAt", "deletedBy"}
	languageSortFields = []string{"name", "urlSegment", "language", "status", "startPublish", "updatedAt"}
)

// ParseSort reads a sort spec: "a,-b", a bson.D, or a map whose values are
// 1/-1 or "asc"/"desc". Map keys are ordered alphabetically.
func ParseSort(spec interface{}) (bson.D, error) {
	switch t := spec.(type) {
	case nil:
		return nil, nil
	case string:
		var out bson.D
		for _, token := range splitFields(t) {
			switch {
			case strings.HasPrefix(token, "-"):
				out = append(out, bson.E{Key: token[1:], Value: -1})
			case strings.HasPrefix(token, "+"):
				out = append(out, bson.E{Key: token[1:], Value: 1})
			default:
				out = append(out, bson.E{Key: token, Value: 1})
			}
		}
		return out, nil
	case bson.D:
		out := make(bson.D, 0, len(t))
		for _, e := range t {
			dir, err := direction(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{Key: e.Key, Value: dir})
		}
		return out, nil
	}

	m, ok := asMap(spec)
	if !ok {
		return nil, fmt.Errorf("unsupported sort type %T", spec)
	}
	out := make(bson.D, 0, len(m))
	for _, k := range sortedKeys(m) {
		dir, err := direction(k, m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, bson.E{Key: k, Value: dir})
	}
	return out, nil
}

func direction(key string, v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return sign(int64(t)), nil
	case int32:
		return sign(int64(t)), nil
	case int64:
		return sign(t), nil
	case float64:
		return sign(int64(t)), nil
	case string:
		switch strings.ToLower(t) {
		case "asc", "ascending", "1":
			return 1, nil
		case "desc", "descending", "-1":
			return -1, nil
		}
	}
	return 0, fmt.Errorf("invalid sort direction for %s: %v", key, v)
}

func sign(v int64) int {
	if v < 0 {
		return -1
	}
	return 1
}

// CombineSort splits a sort spec into content and language keys, addresses
// language keys through the embedded records and appends the createdAt
// tiebreaker when the caller did not sort by it.
func CombineSort(spec interface{}) (bson.D, error) {
	parsed, err := ParseSort(spec)
	if err != nil {
		return nil, err
	}

	var content, language bson.D
	for _, e := range parsed {
		if slices.Contains(contentSortFields, e.Key) {
			content = append(content, e)
		}
	}
	for _, e := range parsed {
		switch {
		case slices.Contains(languageSortFields, e.Key), strings.HasPrefix(e.Key, propertiesPrefix):
			language = append(language, bson.E{Key: LanguagesField + "." + e.Key, Value: e.Value})
		}
	}

	combined := append(content, language...)
	if !slices.ContainsFunc(combined, func(e bson.E) bool { return e.Key == TiebreakField }) {
		combined = append(combined, bson.E{Key: TiebreakField, Value: -1})
	}
	return combined, nil
}
