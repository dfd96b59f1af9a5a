package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestContentFilter(t *testing.T) {
	id := primitive.NewObjectID()
	parent := primitive.NewObjectID()

	t.Run("SplitsContentAndLanguageFields", func(t *testing.T) {
		got, err := query.ContentFilter(bson.M{
			"_id":       id.Hex(),
			"isDeleted": false,
			"language":  "en",
			"status":    bson.M{"$in": []int{2, 4}},
			"unknown":   "ignored",
		})
		require.NoError(t, err)

		assert.Equal(t, id, got["_id"])
		assert.Equal(t, false, got["isDeleted"])
		assert.NotContains(t, got, "unknown")
		assert.NotContains(t, got, "language")
		assert.Equal(t, bson.M{"$elemMatch": bson.M{
			"language": "en",
			"status":   bson.M{"$in": []int{2, 4}},
		}}, got["contentLanguages"])
	})

	t.Run("ConvertsInLists", func(t *testing.T) {
		got, err := query.ContentFilter(bson.M{"_id": bson.M{"$in": []string{id.Hex(), parent.Hex()}}})
		require.NoError(t, err)
		assert.Equal(t, bson.M{"$in": []interface{}{id, parent}}, got["_id"])
	})

	t.Run("NilMeansNull", func(t *testing.T) {
		got, err := query.ContentFilter(bson.M{"parentId": nil, "contentType": bson.M{"$ne": nil}})
		require.NoError(t, err)
		assert.Contains(t, got, "parentId")
		assert.Nil(t, got["parentId"])
		assert.Equal(t, bson.M{"$ne": nil}, got["contentType"])
	})

	t.Run("KeepsObjectIDs", func(t *testing.T) {
		got, err := query.ContentFilter(bson.M{"parentId": parent, "createdBy": &id})
		require.NoError(t, err)
		assert.Equal(t, parent, got["parentId"])
		assert.Equal(t, id, got["createdBy"])
	})

	t.Run("RejectsInvalidIDs", func(t *testing.T) {
		_, err := query.ContentFilter(bson.M{"_id": "nope"})
		assert.ErrorIs(t, err, query.ErrInvalidID)

		_, err = query.ContentFilter(bson.M{"deletedBy": bson.M{"$in": []string{"nope"}}})
		assert.ErrorIs(t, err, query.ErrInvalidID)
	})

	t.Run("NoLanguageFields", func(t *testing.T) {
		got, err := query.ContentFilter(bson.M{"isDeleted": false})
		require.NoError(t, err)
		assert.NotContains(t, got, "contentLanguages")
	})
}

func TestLanguageFilter(t *testing.T) {
	got := query.LanguageFilter(bson.M{
		"_id":              "x",
		"language":         "de",
		"name":             "Home",
		"properties":       bson.M{"color": "red"},
		"properties.title": "Welcome",
	})

	assert.Equal(t, bson.M{
		"contentLanguages.language":         "de",
		"contentLanguages.name":             "Home",
		"contentLanguages.properties.color": "red",
		"contentLanguages.properties.title": "Welcome",
	}, got)
}

func TestProjection(t *testing.T) {
	tests := []struct {
		name string
		spec interface{}
		want bson.M
	}{
		{"Nil", nil, nil},
		{"EmptyString", "", nil},
		{"OnlyUnknown", "foo,bar", nil},
		{
			"String",
			"_id, parentId, parentPath, ancestors",
			bson.M{"parentId": 1, "parentPath": 1, "ancestors": 1},
		},
		{
			"LanguageFields",
			"name -status",
			bson.M{"contentLanguages.name": 1, "contentLanguages.status": 0},
		},
		{
			"SharedAuditField",
			bson.M{"createdAt": 1},
			bson.M{"createdAt": 1, "contentLanguages.createdAt": 1},
		},
		{
			"Properties",
			map[string]int{"properties.title": 1},
			bson.M{"contentLanguages.properties.title": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := query.Projection(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := query.Projection(42)
	assert.Error(t, err)
}

func TestCombineSort(t *testing.T) {
	t.Run("AppendsTiebreaker", func(t *testing.T) {
		got, err := query.CombineSort("name")
		require.NoError(t, err)
		assert.Equal(t, bson.D{
			{Key: "contentLanguages.name", Value: 1},
			{Key: "createdAt", Value: -1},
		}, got)
	})

	t.Run("KeepsExplicitCreatedAt", func(t *testing.T) {
		got, err := query.CombineSort("-createdAt")
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, got)
	})

	t.Run("ContentKeysFirst", func(t *testing.T) {
		got, err := query.CombineSort(bson.D{{Key: "status", Value: "desc"}, {Key: "parentId", Value: 1}})
		require.NoError(t, err)
		assert.Equal(t, bson.D{
			{Key: "parentId", Value: 1},
			{Key: "contentLanguages.status", Value: -1},
			{Key: "createdAt", Value: -1},
		}, got)
	})

	t.Run("UpdatedAtFromLanguageRecord", func(t *testing.T) {
		got, err := query.CombineSort(bson.M{"updatedAt": "asc"})
		require.NoError(t, err)
		assert.Equal(t, bson.D{
			{Key: "contentLanguages.updatedAt", Value: 1},
			{Key: "createdAt", Value: -1},
		}, got)
	})

	t.Run("NilSortIsTiebreakerOnly", func(t *testing.T) {
		got, err := query.CombineSort(nil)
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, got)
	})

	t.Run("InvalidDirection", func(t *testing.T) {
		_, err := query.CombineSort(bson.M{"name": "sideways"})
		assert.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	t.Run("Paginated", func(t *testing.T) {
		p, err := query.Build(bson.M{"language": "en"}, nil, "-createdAt", 2, 10)
		require.NoError(t, err)
		assert.True(t, p.Paginated())
		assert.Equal(t, int64(10), p.Skip())
		assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, p.Sort)

		pipeline := p.Pipeline()
		require.Len(t, pipeline, 6)
		assert.Equal(t, "$match", pipeline[0][0].Key)
		assert.Equal(t, "$unwind", pipeline[1][0].Key)
		assert.Equal(t, "$match", pipeline[2][0].Key)
		assert.Equal(t, "$facet", pipeline[3][0].Key)
		assert.Equal(t, "$unwind", pipeline[4][0].Key)
		assert.Equal(t, "$project", pipeline[5][0].Key)
	})

	t.Run("UnpaginatedWithoutSort", func(t *testing.T) {
		p, err := query.Build(bson.M{"language": "en"}, "name", nil, 0, 0)
		require.NoError(t, err)
		assert.False(t, p.Paginated())
		assert.Nil(t, p.Sort)

		pipeline := p.Pipeline()
		require.Len(t, pipeline, 6)
		assert.Equal(t, "$project", pipeline[3][0].Key)
		assert.Equal(t, "$replaceRoot", pipeline[4][0].Key)
		assert.Equal(t, bson.M{"contentLanguages": 0}, pipeline[5][0].Value)
	})

	t.Run("ProjectAfterSort", func(t *testing.T) {
		p, err := query.Build(bson.M{"language": "en"}, "name", "name", 0, 0)
		require.NoError(t, err)

		pipeline := p.Pipeline()
		require.Len(t, pipeline, 7)
		assert.Equal(t, "$sort", pipeline[3][0].Key)
		assert.Equal(t, "$project", pipeline[4][0].Key)
		assert.Equal(t, bson.M{"contentLanguages.name": 1}, pipeline[4][0].Value)
	})

	t.Run("PaginatedProjectAfterLimit", func(t *testing.T) {
		p, err := query.Build(bson.M{"language": "en"}, "name", "-createdAt", 1, 3)
		require.NoError(t, err)

		facet := p.Pipeline()[3][0].Value.(bson.M)
		docs := facet["docs"].(bson.A)
		require.Len(t, docs, 6)
		assert.Contains(t, docs[0], "$sort")
		assert.Contains(t, docs[2], "$limit")
		assert.Equal(t, bson.M{"$project": bson.M{"contentLanguages.name": 1}}, docs[3])
	})

	t.Run("NegativePage", func(t *testing.T) {
		_, err := query.Build(bson.M{}, nil, nil, -1, 10)
		assert.ErrorIs(t, err, query.ErrInvalidPage)
	})
}

func TestPages(t *testing.T) {
	assert.Equal(t, int64(3), query.Pages(25, 10))
	assert.Equal(t, int64(2), query.Pages(20, 10))
	assert.Equal(t, int64(0), query.Pages(0, 10))
	assert.Equal(t, int64(0), query.Pages(5, 0))
}

func TestFlatten(t *testing.T) {
	got := query.Flatten(bson.M{
		"_id":              "c1",
		"createdAt":        "root",
		"contentLanguages": bson.M{"name": "Home", "createdAt": "lang"},
	})
	assert.Equal(t, bson.M{"_id": "c1", "createdAt": "lang", "name": "Home"}, got)
}

func TestToDocument(t *testing.T) {
	type child struct {
		Name string `bson:"name"`
	}
	type parent struct {
		ID       primitive.ObjectID `bson:"_id"`
		Children []child            `bson:"children"`
		Nested   child              `bson:"nested"`
	}

	id := primitive.NewObjectID()
	doc, err := query.ToDocument(parent{ID: id, Children: []child{{Name: "a"}}, Nested: child{Name: "b"}})
	require.NoError(t, err)

	assert.Equal(t, id, doc["_id"])
	children, ok := doc["children"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, bson.M{"name": "a"}, children[0])
	assert.Equal(t, bson.M{"name": "b"}, doc["nested"])

	var back parent
	require.NoError(t, query.FromDocument(doc, &back))
	assert.Equal(t, id, back.ID)
	assert.Equal(t, "b", back.Nested.Name)
}
