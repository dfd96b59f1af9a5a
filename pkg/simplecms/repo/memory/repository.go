package memory

import (
	"context"
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContentRepository implements simplecms.ContentRepository using in-memory storage
type ContentRepository struct {
	nodes *collection
}

// NewContentRepository creates a new in-memory content repository
func NewContentRepository() *ContentRepository {
	return &ContentRepository{nodes: newCollection()}
}

func (r *ContentRepository) Create(ctx context.Context, content *simplecms.Content) error {
	return r.nodes.insert(content)
}

func (r *ContentRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.Content, error) {
	doc, err := r.nodes.get(id)
	if err != nil {
		return nil, err
	}
	return decodeContent(doc)
}

func (r *ContentRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.Content, error) {
	docs, err := r.nodes.find(filter, opts.Sort, opts.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]*simplecms.Content, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeContent(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ContentRepository) FindDocuments(ctx context.Context, filter bson.M, projection bson.M) ([]bson.M, error) {
	docs, err := r.nodes.find(filter, nil, 0)
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		docs[i] = Project(doc, projection)
	}
	return docs, nil
}

func (r *ContentRepository) Save(ctx context.Context, content *simplecms.Content) error {
	return r.nodes.replace(content)
}

func (r *ContentRepository) UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	n, err := r.nodes.set(bson.M{"_id": id}, set)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (r *ContentRepository) UpdateMany(ctx context.Context, filter bson.M, set bson.M) (int64, error) {
	return r.nodes.set(filter, set)
}

func (r *ContentRepository) Count(ctx context.Context, filter bson.M) (int64, error) {
	return r.nodes.count(filter)
}

// BulkUpdate replaces each node independently; a missing node is reported
// as a failure and does not stop the rest.
func (r *ContentRepository) BulkUpdate(ctx context.Context, contents []*simplecms.Content) (*simplecms.BulkResult, error) {
	res := &simplecms.BulkResult{}
	for _, c := range contents {
		if err := r.nodes.replace(c); err != nil {
			res.Failures = append(res.Failures, simplecms.BulkFailure{ID: c.ID, Error: err.Error()})
			continue
		}
		res.Matched++
		res.Modified++
	}
	return res, nil
}

// Query evaluates the plan the way the aggregation pipeline does: match
// nodes, unwind language records, match records, project, sort, paginate
// and flatten.
func (r *ContentRepository) Query(ctx context.Context, plan query.Plan) (*query.Result, error) {
	nodes, err := r.nodes.find(plan.Match, nil, 0)
	if err != nil {
		return nil, err
	}
	langMatch, err := normalizeFilter(plan.LanguageMatch)
	if err != nil {
		return nil, err
	}

	var rows []bson.M
	for _, node := range nodes {
		langs, _ := node[query.LanguagesField].([]interface{})
		for _, l := range langs {
			row := make(bson.M, len(node))
			for k, v := range node {
				row[k] = v
			}
			row[query.LanguagesField] = l
			ok, err := Match(row, langMatch)
			if err != nil {
				return nil, err
			}
			if ok {
				rows = append(rows, row)
			}
		}
	}

	if len(plan.Sort) > 0 {
		Sort(rows, plan.Sort)
	}

	total := int64(len(rows))
	if plan.Paginated() {
		start := plan.Skip()
		if start > total {
			start = total
		}
		end := start + plan.Limit
		if end > total {
			end = total
		}
		rows = rows[start:end]
	}

	docs := make([]bson.M, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, query.Flatten(Project(row, plan.Project)))
	}
	if plan.Paginated() {
		return query.NewPage(plan, docs, total), nil
	}
	return &query.Result{Docs: docs}, nil
}

func decodeContent(doc bson.M) (*simplecms.Content, error) {
	var c simplecms.Content
	if err := query.FromDocument(doc, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// VersionRepository implements simplecms.VersionRepository using in-memory storage
type VersionRepository struct {
	versions *collection
}

// NewVersionRepository creates a new in-memory version repository
func NewVersionRepository() *VersionRepository {
	return &VersionRepository{versions: newCollection()}
}

func (r *VersionRepository) Create(ctx context.Context, version *simplecms.Version) error {
	return r.versions.insert(version)
}

func (r *VersionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.Version, error) {
	doc, err := r.versions.get(id)
	if err != nil {
		return nil, err
	}
	return decodeVersion(doc)
}

func (r *VersionRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.Version, error) {
	docs, err := r.versions.find(filter, opts.Sort, opts.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]*simplecms.Version, 0, len(docs))
	for _, doc := range docs {
		v, err := decodeVersion(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *VersionRepository) Save(ctx context.Context, version *simplecms.Version) error {
	return r.versions.replace(version)
}

func (r *VersionRepository) UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	n, err := r.versions.set(bson.M{"_id": id}, set)
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// SetPrimary flips the primary flag across the pair in one locked pass.
func (r *VersionRepository) SetPrimary(ctx context.Context, contentID primitive.ObjectID, language string, versionID primitive.ObjectID) error {
	pair := bson.M{"contentId": contentID, "language": language}
	n, err := r.versions.count(bson.M{"_id": versionID, "contentId": contentID, "language": language})
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(versionID)
	}
	_, err = r.versions.updateEach(pair, func(doc bson.M) {
		doc["isPrimary"] = doc["_id"] == versionID
	})
	return err
}

func decodeVersion(doc bson.M) (*simplecms.Version, error) {
	var v simplecms.Version
	if err := query.FromDocument(doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SiteRepository implements simplecms.SiteRepository using in-memory storage
type SiteRepository struct {
	sites *collection
}

// NewSiteRepository creates a new in-memory site repository
func NewSiteRepository() *SiteRepository {
	return &SiteRepository{sites: newCollection()}
}

func (r *SiteRepository) Create(ctx context.Context, site *simplecms.SiteDefinition) error {
	return r.sites.insert(site)
}

func (r *SiteRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*simplecms.SiteDefinition, error) {
	doc, err := r.sites.get(id)
	if err != nil {
		return nil, err
	}
	return decodeSite(doc)
}

func (r *SiteRepository) Find(ctx context.Context, filter bson.M, opts simplecms.FindOptions) ([]*simplecms.SiteDefinition, error) {
	docs, err := r.sites.find(filter, opts.Sort, opts.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]*simplecms.SiteDefinition, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeSite(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *SiteRepository) Save(ctx context.Context, site *simplecms.SiteDefinition) error {
	return r.sites.replace(site)
}

func decodeSite(doc bson.M) (*simplecms.SiteDefinition, error) {
	var s simplecms.SiteDefinition
	if err := query.FromDocument(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func notFound(id primitive.ObjectID) error {
	return fmt.Errorf("%w: %s", simplecms.ErrDocumentNotFound, id.Hex())
}
