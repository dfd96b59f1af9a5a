package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/audit/postgres"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type execCall struct {
	sql  string
	args []interface{}
}

// recordingDB captures Exec calls and fails when err is set.
type recordingDB struct {
	calls []execCall
	err   error
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	d.calls = append(d.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), d.err
}

func (d *recordingDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *recordingDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

func TestSink_Insert(t *testing.T) {
	db := &recordingDB{}
	sink := postgres.New(db)

	contentID := primitive.NewObjectID()
	versionID := primitive.NewObjectID()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := sink.ContentPublished(context.Background(), simplecms.Event{
		Kind:       simplecms.KindPage,
		ContentID:  contentID,
		VersionID:  &versionID,
		Language:   "en",
		Detail:     map[string]interface{}{"previous": "x"},
		OccurredAt: at,
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.Len(t, args, 9)
	assert.IsType(t, uuid.UUID{}, args[0])
	assert.Equal(t, "page", args[1])
	assert.Equal(t, postgres.ActionPublished, args[2])
	assert.Equal(t, contentID.Hex(), args[3])
	assert.Equal(t, versionID.Hex(), *args[4].(*string))
	assert.Nil(t, args[6].(*string), "zero user id is stored as null")
	assert.JSONEq(t, `{"previous":"x"}`, string(args[7].([]byte)))
	assert.Equal(t, at, args[8])
}

func TestSink_InsertError(t *testing.T) {
	db := &recordingDB{err: &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}
	sink := postgres.New(db)

	err := sink.ContentCreated(context.Background(), simplecms.Event{ContentID: primitive.NewObjectID()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EnsureSchema")
}

func TestSink_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	sink := postgres.NewWithPool(pool)
	require.NoError(t, sink.EnsureSchema(ctx))

	contentID := primitive.NewObjectID()
	user := primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, sink.ContentCreated(ctx, simplecms.Event{Kind: simplecms.KindBlock, ContentID: contentID, UserID: user, Language: "en", OccurredAt: now}))
	require.NoError(t, sink.ContentMoved(ctx, simplecms.Event{Kind: simplecms.KindBlock, ContentID: contentID, UserID: user, OccurredAt: now.Add(time.Second)}))

	records, err := sink.List(ctx, contentID.Hex())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, postgres.ActionCreated, records[0].Action)
	assert.Equal(t, postgres.ActionMoved, records[1].Action)
	assert.Equal(t, user.Hex(), *records[0].UserID)
	assert.True(t, now.Equal(records[0].OccurredAt))
}
