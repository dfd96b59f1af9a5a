package query

import (
	"fmt"
	"strings"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	contentProjectionFields = []string{
		"ancestors",
		"hasChildren",
		"childOrderRule",
		"peerOrder",
		"isDeleted",
		"visibleInMenu",
		"contentType",
		"masterLanguageId",
		"createdBy",
		"createdAt",
		"updatedBy",
		"updatedAt",
		"parentId",
		"parentPath",
	}

	languageProjectionFields = []string{
		"name",
		"urlSegment",
		"language",
		"status",
		"startPublish",
		"updatedAt",
		"createdBy",
		"versionId",
		"childItems",
		"createdAt",
		"updatedBy",
		"publishedBy",
		"properties",
	}
)

// Projection maps requested field names onto their stored paths. spec is
// either a select string ("name,-status" or "name status") or a map of
// field to 0/1. Language fields are addressed inside the embedded records.
// A nil result means "no projection stage".
func Projection(spec interface{}) (bson.M, error) {
	fields, err := parseFields(spec)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	out := bson.M{}
	for _, f := range contentProjectionFields {
		if v, ok := fields[f]; ok && v != nil {
			out[f] = v
		}
	}
	for _, f := range languageProjectionFields {
		if v, ok := fields[f]; ok && v != nil {
			out[LanguagesField+"."+f] = v
		}
	}
	for _, f := range sortedKeys(fields) {
		if strings.HasPrefix(f, propertiesPrefix) && fields[f] != nil {
			out[LanguagesField+"."+f] = fields[f]
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func parseFields(spec interface{}) (bson.M, error) {
	switch t := spec.(type) {
	case nil:
		return nil, nil
	case string:
		out := bson.M{}
		for _, token := range splitFields(t) {
			switch {
			case strings.HasPrefix(token, "-"):
				out[token[1:]] = 0
			case strings.HasPrefix(token, "+"):
				out[token[1:]] = 1
			default:
				out[token] = 1
			}
		}
		return out, nil
	case map[string]int:
		out := bson.M{}
		for k, v := range t {
			out[k] = v
		}
		return out, nil
	}
	if m, ok := asMap(spec); ok {
		return m, nil
	}
	return nil, fmt.Errorf("unsupported projection type %T", spec)
}

func splitFields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
