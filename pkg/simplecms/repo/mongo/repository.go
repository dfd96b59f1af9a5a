// Package mongo implements the simplecms repositories on MongoDB. Each
// content kind uses its own node and version collections.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SiteCollection holds site definitions.
const SiteCollection = "cms_SiteDefinition"

// Error handling helper
func handleMongoError(operation string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return simplecms.ErrDocumentNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: duplicate document: %w", operation, err)
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

func notFound(id primitive.ObjectID) error {
	return fmt.Errorf("%w: %s", simplecms.ErrDocumentNotFound, id.Hex())
}

// findOptions translates typed find options for the driver.
func findOptions(opts simplecms.FindOptions) *options.FindOptions {
	fo := options.Find()
	if len(opts.Sort) > 0 {
		fo.SetSort(opts.Sort)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}
	return fo
}

func orEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

// ContentRepository implements simplecms.ContentRepository using MongoDB
type ContentRepository struct {
	nodes *mongo.Collection
}

// NewContentRepository creates a content repository over the kind's node collection
func NewContentRepository(db *mongo.Database, kind simplecms.Kind) *ContentRepository {
	return &ContentRepository{nodes: db.Collection(kind.Collection())}
}

func (r *ContentRepository) Create(ctx context.Context, content *simplecms.Content) error {
	if _, err := r.nodes.InsertOne(ctx, content); err != nil {
		return handleMongoError("create content", err)
	}
	return nil
}

func (r *ContentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.Content, error) {
	var content simplecms.Content
	err := r.nodes.FindOne(ctx, bson.M{"_id": id}).Decode(&content)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, handleMongoError("get content", err)
	}
	return &content, nil
}

func (r *ContentRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.Content, error) {
	cur, err := r.nodes.Find(ctx, orEmpty(filter), findOptions(opts))
	if err != nil {
		return nil, handleMongoError("find content", err)
	}
	out := []*simplecms.Content{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, handleMongoError("decode content", err)
	}
	return out, nil
}

func (r *ContentRepository) FindDocuments(ctx context.Context, filter bson.M, projection bson.M) ([]bson.M, error) {
	fo := options.Find()
	if len(projection) > 0 {
		fo.SetProjection(projection)
	}
	cur, err := r.nodes.Find(ctx, orEmpty(filter), fo)
	if err != nil {
		return nil, handleMongoError("find documents", err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, handleMongoError("decode documents", err)
	}
	for i, doc := range docs {
		docs[i] = query.Normalize(doc).(bson.M)
	}
	return docs, nil
}

func (r *ContentRepository) Save(ctx context.Context, content *simplecms.Content) error {
	res, err := r.nodes.ReplaceOne(ctx, bson.M{"_id": content.ID}, content)
	if err != nil {
		return handleMongoError("save content", err)
	}
	if res.MatchedCount == 0 {
		return notFound(content.ID)
	}
	return nil
}

func (r *ContentRepository) UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := r.nodes.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return handleMongoError("update content", err)
	}
	if res.MatchedCount == 0 {
		return notFound(id)
	}
	return nil
}

func (r *ContentRepository) UpdateMany(ctx context.Context, filter bson.M, set bson.M) (int64, error) {
	res, err := r.nodes.UpdateMany(ctx, orEmpty(filter), bson.M{"$set": set})
	if err != nil {
		return 0, handleMongoError("update contents", err)
	}
	return res.ModifiedCount, nil
}

func (r *ContentRepository) Count(ctx context.Context, filter bson.M) (int64, error) {
	n, err := r.nodes.CountDocuments(ctx, orEmpty(filter))
	if err != nil {
		return 0, handleMongoError("count content", err)
	}
	return n, nil
}

// BulkUpdate sends one unordered batch of replacements. Write errors are
// mapped back onto the node at the failing index; the other writes apply.
func (r *ContentRepository) BulkUpdate(ctx context.Context, contents []*simplecms.Content) (*simplecms.BulkResult, error) {
	res := &simplecms.BulkResult{}
	if len(contents) == 0 {
		return res, nil
	}

	models := make([]mongo.WriteModel, 0, len(contents))
	for _, c := range contents {
		models = append(models, mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": c.ID}).SetReplacement(c))
	}

	out, err := r.nodes.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if out != nil {
		res.Matched = out.MatchedCount
		res.Modified = out.ModifiedCount
	}
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) {
			return nil, handleMongoError("bulk update content", err)
		}
		for _, we := range bwe.WriteErrors {
			if we.Index >= 0 && we.Index < len(contents) {
				res.Failures = append(res.Failures, simplecms.BulkFailure{ID: contents[we.Index].ID, Error: we.Message})
			}
		}
	}

	// Replacements matching nothing are not write errors to the driver.
	if missing := int64(len(contents)-len(res.Failures)) - res.Matched; missing > 0 {
		ids := make([]primitive.ObjectID, 0, len(contents))
		for _, c := range contents {
			ids = append(ids, c.ID)
		}
		existing, err := r.existingIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range contents {
			if !existing[c.ID] {
				res.Failures = append(res.Failures, simplecms.BulkFailure{ID: c.ID, Error: notFound(c.ID).Error()})
			}
		}
	}
	return res, nil
}

func (r *ContentRepository) existingIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	cur, err := r.nodes.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, handleMongoError("find existing content", err)
	}
	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, handleMongoError("decode existing content", err)
	}
	out := make(map[primitive.ObjectID]bool, len(rows))
	for _, row := range rows {
		out[row.ID] = true
	}
	return out, nil
}

// pageRow is the single row produced by the paginated facet.
type pageRow struct {
	Docs  []bson.M `bson:"docs"`
	Total int64    `bson:"total"`
	Pages float64  `bson:"pages"`
}

// Query runs the plan as an aggregation pipeline.
func (r *ContentRepository) Query(ctx context.Context, plan query.Plan) (*query.Result, error) {
	cur, err := r.nodes.Aggregate(ctx, plan.Pipeline())
	if err != nil {
		return nil, handleMongoError("query content", err)
	}

	if !plan.Paginated() {
		docs := []bson.M{}
		if err := cur.All(ctx, &docs); err != nil {
			return nil, handleMongoError("decode query", err)
		}
		for i, doc := range docs {
			docs[i] = query.Normalize(doc).(bson.M)
		}
		return &query.Result{Docs: docs}, nil
	}

	var rows []pageRow
	if err := cur.All(ctx, &rows); err != nil {
		return nil, handleMongoError("decode query page", err)
	}
	// The facet unwinds its count, so no matches yields no row at all.
	if len(rows) == 0 {
		return query.NewPage(plan, nil, 0), nil
	}
	row := rows[0]
	for i, doc := range row.Docs {
		row.Docs[i] = query.Normalize(doc).(bson.M)
	}
	return query.NewPage(plan, row.Docs, row.Total), nil
}

// VersionRepository implements simplecms.VersionRepository using MongoDB
type VersionRepository struct {
	versions *mongo.Collection
}

// NewVersionRepository creates a version repository over the kind's version collection
func NewVersionRepository(db *mongo.Database, kind simplecms.Kind) *VersionRepository {
	return &VersionRepository{versions: db.Collection(kind.VersionCollection())}
}

func (r *VersionRepository) Create(ctx context.Context, version *simplecms.Version) error {
	if _, err := r.versions.InsertOne(ctx, version); err != nil {
		return handleMongoError("create version", err)
	}
	return nil
}

func (r *VersionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.Version, error) {
	var v simplecms.Version
	err := r.versions.FindOne(ctx, bson.M{"_id": id}).Decode(&v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, handleMongoError("get version", err)
	}
	return &v, nil
}

func (r *VersionRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.Version, error) {
	cur, err := r.versions.Find(ctx, orEmpty(filter), findOptions(opts))
	if err != nil {
		return nil, handleMongoError("find versions", err)
	}
	out := []*simplecms.Version{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, handleMongoError("decode versions", err)
	}
	return out, nil
}

func (r *VersionRepository) Save(ctx context.Context, version *simplecms.Version) error {
	res, err := r.versions.ReplaceOne(ctx, bson.M{"_id": version.ID}, version)
	if err != nil {
		return handleMongoError("save version", err)
	}
	if res.MatchedCount == 0 {
		return notFound(version.ID)
	}
	return nil
}

func (r *VersionRepository) UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := r.versions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return handleMongoError("update version", err)
	}
	if res.MatchedCount == 0 {
		return notFound(id)
	}
	return nil
}

// SetPrimary flips isPrimary across the (contentId, language) pair with a
// single pipeline update, so no reader sees two primaries.
func (r *VersionRepository) SetPrimary(ctx context.Context, contentID primitive.ObjectID, language string, versionID primitive.ObjectID) error {
	n, err := r.versions.CountDocuments(ctx, bson.M{"_id": versionID, "contentId": contentID, "language": language})
	if err != nil {
		return handleMongoError("set primary version", err)
	}
	if n == 0 {
		return notFound(versionID)
	}

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"isPrimary": bson.M{"$eq": bson.A{"$_id", versionID}}}}},
	}
	if _, err := r.versions.UpdateMany(ctx, bson.M{"contentId": contentID, "language": language}, update); err != nil {
		return handleMongoError("set primary version", err)
	}
	return nil
}

// EnsureIndexes creates the indexes the content flows query by.
func EnsureIndexes(ctx context.Context, db *mongo.Database, kinds ...simplecms.Kind) error {
	for _, kind := range kinds {
		_, err := db.Collection(kind.Collection()).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "parentId", Value: 1}}},
			{Keys: bson.D{{Key: "parentPath", Value: 1}}},
			{Keys: bson.D{{Key: "contentLanguages.language", Value: 1}, {Key: "contentLanguages.status", Value: 1}}},
		})
		if err != nil {
			return handleMongoError("create content indexes", err)
		}
		_, err = db.Collection(kind.VersionCollection()).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "contentId", Value: 1}, {Key: "language", Value: 1}, {Key: "isPrimary", Value: 1}}},
		})
		if err != nil {
			return handleMongoError("create version indexes", err)
		}
	}
	_, err := db.Collection(SiteCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "hosts.name", Value: 1}},
	})
	if err != nil {
		return handleMongoError("create site indexes", err)
	}
	return nil
}

// SiteRepository implements simplecms.SiteRepository using MongoDB
type SiteRepository struct {
	sites *mongo.Collection
}

// NewSiteRepository creates a site definition repository
func NewSiteRepository(db *mongo.Database) *SiteRepository {
	return &SiteRepository{sites: db.Collection(SiteCollection)}
}

func (r *SiteRepository) Create(ctx context.Context, site *simplecms.SiteDefinition) error {
	if _, err := r.sites.InsertOne(ctx, site); err != nil {
		return handleMongoError("create site definition", err)
	}
	return nil
}

func (r *SiteRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.SiteDefinition, error) {
	var site simplecms.SiteDefinition
	err := r.sites.FindOne(ctx, bson.M{"_id": id}).Decode(&site)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, handleMongoError("get site definition", err)
	}
	return &site, nil
}

func (r *SiteRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.SiteDefinition, error) {
	cur, err := r.sites.Find(ctx, orEmpty(filter), findOptions(opts))
	if err != nil {
		return nil, handleMongoError("find site definitions", err)
	}
	out := []*simplecms.SiteDefinition{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, handleMongoError("decode site definitions", err)
	}
	return out, nil
}

func (r *SiteRepository) Save(ctx context.Context, site *simplecms.SiteDefinition) error {
	res, err := r.sites.ReplaceOne(ctx, bson.M{"_id": site.ID}, site)
	if err != nil {
		return handleMongoError("save site definition", err)
	}
	if res.MatchedCount == 0 {
		return notFound(site.ID)
	}
	return nil
}

var (
	_ simplecms.ContentRepository = (*ContentRepository)(nil)
	_ simplecms.VersionRepository = (*VersionRepository)(nil)
	_ simplecms.SiteRepository    = (*SiteRepository)(nil)
)
