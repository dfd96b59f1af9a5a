package simplecms_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setupVersionService(t *testing.T) (*simplecms.VersionService, *memory.VersionRepository) {
	t.Helper()
	repo := memory.NewVersionRepository()
	return simplecms.NewVersionService(repo, nil), repo
}

func TestVersionService_CreateNewVersion(t *testing.T) {
	svc, _ := setupVersionService(t)
	ctx := context.Background()
	contentID := primitive.NewObjectID()
	user := primitive.NewObjectID()

	first, err := svc.CreateNewVersion(ctx, &simplecms.Version{Name: "one", Status: simplecms.StatusPublished, IsPrimary: true}, contentID, user, "en", nil)
	require.NoError(t, err)
	assert.Equal(t, simplecms.StatusCheckedOut, first.Status)
	assert.False(t, first.IsPrimary)
	assert.Equal(t, contentID, first.ContentID)
	assert.Equal(t, user, first.CreatedBy)

	require.NoError(t, svc.SetPrimaryVersion(ctx, first.ID))

	second, err := svc.CreateNewVersion(ctx, &simplecms.Version{Name: "two"}, contentID, user, "en", &first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, *second.MasterVersionID)

	reloaded, err := svc.GetVersionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsPrimary, "creating a version leaves the primary alone")

	t.Run("Validation", func(t *testing.T) {
		_, err := svc.CreateNewVersion(ctx, nil, primitive.NilObjectID, user, "en", nil)
		assert.ErrorIs(t, err, simplecms.ErrValidation)

		_, err = svc.CreateNewVersion(ctx, nil, contentID, user, "", nil)
		assert.ErrorIs(t, err, simplecms.ErrValidation)
	})
}

func TestVersionService_SetPrimaryVersionConcurrently(t *testing.T) {
	svc, repo := setupVersionService(t)
	ctx := context.Background()
	contentID := primitive.NewObjectID()

	var ids []primitive.ObjectID
	for i := 0; i < 8; i++ {
		v, err := svc.CreateNewVersion(ctx, nil, contentID, primitive.NewObjectID(), "en", nil)
		require.NoError(t, err)
		ids = append(ids, v.ID)
	}
	other, err := svc.CreateNewVersion(ctx, nil, contentID, primitive.NewObjectID(), "de", nil)
	require.NoError(t, err)
	require.NoError(t, svc.SetPrimaryVersion(ctx, other.ID))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.SetPrimaryVersion(ctx, id))
		}()
	}
	wg.Wait()

	primaries, err := repo.Find(ctx, bson.M{"contentId": contentID, "language": "en", "isPrimary": true}, simplecms.FindOptions{})
	require.NoError(t, err)
	assert.Len(t, primaries, 1)

	de, err := svc.GetPrimaryVersion(ctx, contentID, "de")
	require.NoError(t, err)
	assert.Equal(t, other.ID, de.ID, "other languages are not touched")
}

func TestVersionService_PromoteIfNoPrimaryDraft(t *testing.T) {
	svc, _ := setupVersionService(t)
	ctx := context.Background()
	contentID := primitive.NewObjectID()
	user := primitive.NewObjectID()

	live, err := svc.CreateNewVersion(ctx, nil, contentID, user, "en", nil)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, live.ID, simplecms.StatusPublished))
	require.NoError(t, svc.SetPrimaryVersion(ctx, live.ID))

	draft, err := svc.GetPrimaryDraftVersion(ctx, contentID, "en")
	require.NoError(t, err)
	assert.Nil(t, draft)

	a, err := svc.CreateNewVersion(ctx, nil, contentID, user, "en", &live.ID)
	require.NoError(t, err)
	promoted, err := svc.PromoteIfNoPrimaryDraft(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, promoted)

	b, err := svc.CreateNewVersion(ctx, nil, contentID, user, "en", &live.ID)
	require.NoError(t, err)
	promoted, err = svc.PromoteIfNoPrimaryDraft(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, promoted)

	again, err := svc.PromoteIfNoPrimaryDraft(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, again, "already the primary draft")

	draft, err = svc.GetPrimaryDraftVersion(ctx, contentID, "en")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, a.ID, draft.ID)
}

func TestVersionService_History(t *testing.T) {
	env := setupTestService(t)
	svc := env.pages.Versions()
	contentID := primitive.NewObjectID()
	user := primitive.NewObjectID()

	var created []*simplecms.Version
	for _, lang := range []string{"en", "de", "en", "de", "fr"} {
		v, err := svc.CreateNewVersion(env.ctx, &simplecms.Version{Name: lang}, contentID, user, lang, nil)
		require.NoError(t, err)
		created = append(created, v)
	}

	all, err := svc.ListVersions(env.ctx, contentID, "")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, created[4].ID, all[0].ID, "newest first")

	en, err := svc.ListVersions(env.ctx, contentID, "en")
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{created[2].ID, created[0].ID}, []primitive.ObjectID{en[0].ID, en[1].ID})

	latest, err := svc.LatestPerLanguage(env.ctx, contentID)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, []string{"de", "en", "fr"}, []string{latest[0].Language, latest[1].Language, latest[2].Language})
	assert.Equal(t, created[3].ID, latest[0].ID)
	assert.Equal(t, created[2].ID, latest[1].ID)

	_, err = svc.GetContentVersion(env.ctx, primitive.NewObjectID(), created[0].ID)
	assert.ErrorIs(t, err, simplecms.ErrDocumentNotFound)
}
