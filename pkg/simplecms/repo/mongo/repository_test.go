package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	repomongo "github.com/tendant/simple-cms/pkg/simplecms/repo/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// setupTestDatabase connects to TEST_MONGO_URI and returns a throwaway database.
func setupTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database(fmt.Sprintf("simplecms_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	require.NoError(t, repomongo.EnsureIndexes(ctx, db, simplecms.Kinds()...))
	return db
}

func node(name string, langs ...string) *simplecms.Content {
	ct := "StandardPage"
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &simplecms.Content{ID: primitive.NewObjectID(), ContentType: &ct, CreatedAt: now, UpdatedAt: now}
	for _, l := range langs {
		c.ContentLanguages = append(c.ContentLanguages, simplecms.ContentLanguage{
			Language: l, Name: name + "-" + l, Status: simplecms.StatusPublished, CreatedAt: now, UpdatedAt: now,
		})
	}
	return c
}

func TestContentRepository(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repomongo.NewContentRepository(db, simplecms.KindPage)
	ctx := context.Background()

	a := node("a", "en", "de")
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ContentLanguages[1].Name, got.ContentLanguages[1].Name)

	_, err = repo.FindByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, simplecms.ErrDocumentNotFound)

	require.NoError(t, repo.UpdateByID(ctx, a.ID, bson.M{"isDeleted": true}))
	n, err := repo.Count(ctx, bson.M{"isDeleted": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	docs, err := repo.FindDocuments(ctx, bson.M{"_id": a.ID}, bson.M{"contentLanguages.name": 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	langs := docs[0]["contentLanguages"].([]interface{})
	assert.Equal(t, bson.M{"name": "a-en"}, langs[0])

	t.Run("BulkUpdate", func(t *testing.T) {
		a.PeerOrder = 7
		ghost := node("ghost", "en")
		res, err := repo.BulkUpdate(ctx, []*simplecms.Content{a, ghost})
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Matched)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, ghost.ID, res.Failures[0].ID)
	})
}

func TestContentRepository_Query(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repomongo.NewContentRepository(db, simplecms.KindPage)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, node(fmt.Sprintf("n%d", i), "en", "de")))
	}

	plan, err := query.Build(bson.M{"language": "en"}, "name", "name", 2, 2)
	require.NoError(t, err)
	res, err := repo.Query(ctx, plan)
	require.NoError(t, err)
	require.NotNil(t, res.Pagination)
	assert.Equal(t, int64(5), res.Total)
	assert.Equal(t, int64(3), res.Pages)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "n2-en", res.Docs[0]["name"])
	assert.NotContains(t, res.Docs[0], "contentLanguages")

	empty, err := query.Build(bson.M{"language": "fr"}, nil, nil, 1, 10)
	require.NoError(t, err)
	res, err = repo.Query(ctx, empty)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Total)
	assert.Empty(t, res.Docs)
}

func TestVersionRepository_SetPrimary(t *testing.T) {
	db := setupTestDatabase(t)
	repo := repomongo.NewVersionRepository(db, simplecms.KindPage)
	ctx := context.Background()
	contentID := primitive.NewObjectID()

	var ids []primitive.ObjectID
	for i := 0; i < 3; i++ {
		v := &simplecms.Version{ID: primitive.NewObjectID(), ContentID: contentID, Language: "en", IsPrimary: i == 0}
		require.NoError(t, repo.Create(ctx, v))
		ids = append(ids, v.ID)
	}

	require.NoError(t, repo.SetPrimary(ctx, contentID, "en", ids[2]))
	primaries, err := repo.Find(ctx, bson.M{"contentId": contentID, "isPrimary": true}, simplecms.FindOptions{})
	require.NoError(t, err)
	require.Len(t, primaries, 1)
	assert.Equal(t, ids[2], primaries[0].ID)

	err = repo.SetPrimary(ctx, contentID, "de", ids[0])
	assert.ErrorIs(t, err, simplecms.ErrDocumentNotFound)
}
