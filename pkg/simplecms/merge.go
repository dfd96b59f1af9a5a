package simplecms

import (
	"slices"

	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	fieldChildItems = "childItems"
	fieldContent    = "content"
	fieldVersionID  = "versionId"
)

// MergeToContentLanguage flattens one language record onto a node. Values
// from the language record win on key collision and the embedded records
// are dropped. Populated child items that still carry their own language
// records are flattened to their published branch in the same language.
// Neither argument is modified.
func MergeToContentLanguage(content bson.M, language bson.M) bson.M {
	out := withoutLanguages(content)
	if language == nil {
		return out
	}

	lang := query.Clone(language)
	if items, ok := lang[fieldChildItems].([]interface{}); ok {
		code, _ := lang["language"].(string)
		for _, it := range items {
			item, ok := it.(bson.M)
			if !ok {
				continue
			}
			child, ok := item[fieldContent].(bson.M)
			if !ok {
				continue
			}
			if _, nested := child[query.LanguagesField]; !nested {
				continue
			}
			branch := SelectLanguage(child, code, []VersionStatus{StatusPublished})
			item[fieldContent] = MergeToContentLanguage(child, branch)
		}
	}

	for k, v := range lang {
		out[k] = v
	}
	return out
}

// MergeToContentVersion flattens a version onto a node. Version values win
// on key collision, except that the node keeps its own _id and the
// version's id is exposed as versionId. The contentId back-reference and
// the embedded language records are dropped. Neither argument is modified.
func MergeToContentVersion(content bson.M, version bson.M) bson.M {
	out := withoutLanguages(content)
	if version == nil {
		return out
	}

	v := query.Clone(version)
	versionID, hasID := v["_id"]
	delete(v, "_id")
	delete(v, "contentId")
	for k, val := range v {
		out[k] = val
	}
	if hasID {
		out[fieldVersionID] = versionID
	}
	return out
}

// SelectLanguage returns the embedded language record for language whose
// status is one of statuses (any status when statuses is empty), or nil.
func SelectLanguage(content bson.M, language string, statuses []VersionStatus) bson.M {
	records, _ := content[query.LanguagesField].([]interface{})
	for _, r := range records {
		rec, ok := r.(bson.M)
		if !ok {
			continue
		}
		if code, _ := rec["language"].(string); code != language {
			continue
		}
		if len(statuses) > 0 {
			status, ok := statusOf(rec["status"])
			if !ok || !slices.Contains(statuses, status) {
				continue
			}
		}
		return rec
	}
	return nil
}

func withoutLanguages(content bson.M) bson.M {
	out := make(bson.M, len(content))
	for k, v := range query.Clone(content) {
		if k == query.LanguagesField {
			continue
		}
		out[k] = v
	}
	return out
}

func statusOf(v interface{}) (VersionStatus, bool) {
	switch t := v.(type) {
	case VersionStatus:
		return t, true
	case int:
		return VersionStatus(t), true
	case int32:
		return VersionStatus(t), true
	case int64:
		return VersionStatus(t), true
	case float64:
		return VersionStatus(int(t)), true
	}
	return 0, false
}
