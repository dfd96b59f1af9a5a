package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func normalized(t *testing.T, m bson.M) bson.M {
	t.Helper()
	doc, err := query.ToDocument(m)
	require.NoError(t, err)
	return doc
}

func TestMatch(t *testing.T) {
	id := primitive.NewObjectID()
	parent := primitive.NewObjectID()
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	doc := normalized(t, bson.M{
		"_id":         id,
		"parentId":    parent,
		"parentPath":  "," + parent.Hex() + ",",
		"contentType": nil,
		"peerOrder":   3,
		"isDeleted":   false,
		"createdAt":   created,
		"ancestors":   []primitive.ObjectID{parent},
		"contentLanguages": []bson.M{
			{"language": "en", "name": "Home", "status": 4, "properties": bson.M{"color": "red"}},
			{"language": "de", "name": "Startseite", "status": 2},
		},
	})

	tests := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{"Empty", bson.M{}, true},
		{"Equal", bson.M{"_id": id, "isDeleted": false}, true},
		{"NotEqual", bson.M{"isDeleted": true}, false},
		{"NilMatchesNull", bson.M{"contentType": nil}, true},
		{"NilMatchesMissing", bson.M{"deletedAt": nil}, true},
		{"NilDoesNotMatchValue", bson.M{"parentId": nil}, false},
		{"NeNil", bson.M{"contentType": bson.M{"$ne": nil}}, false},
		{"NumbersAcrossTypes", bson.M{"peerOrder": int64(3)}, true},
		{"In", bson.M{"_id": bson.M{"$in": []primitive.ObjectID{primitive.NewObjectID(), id}}}, true},
		{"Nin", bson.M{"_id": bson.M{"$nin": []primitive.ObjectID{id}}}, false},
		{"ArrayContains", bson.M{"ancestors": parent}, true},
		{"Gt", bson.M{"peerOrder": bson.M{"$gt": 2}}, true},
		{"Lte", bson.M{"peerOrder": bson.M{"$lte": 2}}, false},
		{"Dates", bson.M{"createdAt": bson.M{"$gte": created.Add(-time.Hour), "$lt": created.Add(time.Hour)}}, true},
		{"Exists", bson.M{"deletedAt": bson.M{"$exists": false}}, true},
		{"Regex", bson.M{"parentPath": bson.M{"$regex": primitive.Regex{Pattern: "^," + parent.Hex()}}}, true},
		{"RegexValue", bson.M{"parentPath": primitive.Regex{Pattern: "^,nope"}}, false},
		{"DottedThroughArray", bson.M{"contentLanguages.language": "de"}, true},
		{"NestedProperty", bson.M{"contentLanguages.properties.color": "red"}, true},
		{"ElemMatch", bson.M{"contentLanguages": bson.M{"$elemMatch": bson.M{"language": "de", "status": 2}}}, true},
		{"ElemMatchSameElement", bson.M{"contentLanguages": bson.M{"$elemMatch": bson.M{"language": "de", "status": 4}}}, false},
		{"Size", bson.M{"contentLanguages": bson.M{"$size": 2}}, true},
		{"Not", bson.M{"peerOrder": bson.M{"$not": bson.M{"$gt": 5}}}, true},
		{"Or", bson.M{"$or": []bson.M{{"isDeleted": true}, {"peerOrder": 3}}}, true},
		{"And", bson.M{"$and": []bson.M{{"isDeleted": false}, {"peerOrder": 4}}}, false},
		{"Nor", bson.M{"$nor": []bson.M{{"isDeleted": true}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := memory.Match(doc, normalized(t, tt.filter))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("UnsupportedOperator", func(t *testing.T) {
		_, err := memory.Match(doc, bson.M{"peerOrder": bson.M{"$where": "x"}})
		assert.Error(t, err)
	})
}

func TestSort(t *testing.T) {
	docs := []bson.M{
		{"name": "b", "order": int32(1)},
		{"name": "a", "order": int32(2)},
		{"name": "c"},
		{"name": "a", "order": int32(1)},
	}

	memory.Sort(docs, bson.D{{Key: "name", Value: 1}, {Key: "order", Value: -1}})
	var got []string
	for _, d := range docs {
		got = append(got, d["name"].(string))
	}
	assert.Equal(t, []string{"a", "a", "b", "c"}, got)
	assert.Equal(t, int32(2), docs[0]["order"])

	memory.Sort(docs, bson.D{{Key: "order", Value: 1}})
	assert.Equal(t, "c", docs[0]["name"], "missing fields sort first")
}

func TestProject(t *testing.T) {
	doc := bson.M{
		"_id":  "x",
		"name": "n",
		"size": int32(3),
		"contentLanguages": bson.M{
			"language": "en",
			"name":     "Home",
		},
	}

	t.Run("Inclusion", func(t *testing.T) {
		got := memory.Project(doc, bson.M{"name": 1, "contentLanguages.language": 1})
		assert.Equal(t, bson.M{
			"_id":              "x",
			"name":             "n",
			"contentLanguages": bson.M{"language": "en"},
		}, got)
	})

	t.Run("Exclusion", func(t *testing.T) {
		got := memory.Project(doc, bson.M{"size": 0, "contentLanguages.name": 0})
		assert.Equal(t, bson.M{
			"_id":              "x",
			"name":             "n",
			"contentLanguages": bson.M{"language": "en"},
		}, got)
	})

	t.Run("ExcludeID", func(t *testing.T) {
		got := memory.Project(doc, bson.M{"name": 1, "_id": 0})
		assert.Equal(t, bson.M{"name": "n"}, got)
	})

	t.Run("ArraysOfDocuments", func(t *testing.T) {
		withArray := bson.M{
			"_id": "y",
			"contentLanguages": []interface{}{
				bson.M{"language": "en", "name": "Home"},
				bson.M{"language": "de", "name": "Start"},
			},
		}
		got := memory.Project(withArray, bson.M{"contentLanguages.language": 1})
		assert.Equal(t, []interface{}{bson.M{"language": "en"}, bson.M{"language": "de"}}, got["contentLanguages"])
	})
}
