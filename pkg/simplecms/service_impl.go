package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/tendant/simple-cms/pkg/simplecms/hierarchy"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultCopyConcurrency = 4

// service implements the Service interface
type service struct {
	kind        Kind
	contents    ContentRepository
	versionRepo VersionRepository
	versions    *VersionService
	registry    *Registry
	sites       SiteResolver
	eventSink   EventSink
	observer    FlowObserver
	logger      *slog.Logger
	copyLimit   int
	now         func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithContentRepository sets the node repository
func WithContentRepository(repo ContentRepository) Option {
	return func(s *service) {
		s.contents = repo
	}
}

// WithVersionRepository sets the version repository
func WithVersionRepository(repo VersionRepository) Option {
	return func(s *service) {
		s.versionRepo = repo
	}
}

// WithRegistry lets the service resolve child items of other kinds
func WithRegistry(r *Registry) Option {
	return func(s *service) {
		s.registry = r
	}
}

// WithSiteResolver resolves the language of host-scoped reads
func WithSiteResolver(r SiteResolver) Option {
	return func(s *service) {
		s.sites = r
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		if sink != nil {
			s.eventSink = sink
		}
	}
}

// WithFlowObserver sets the metrics observer
func WithFlowObserver(o FlowObserver) Option {
	return func(s *service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCopyConcurrency bounds how many child subtrees are copied at once
func WithCopyConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.copyLimit = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new service for kind with the given options
func New(kind Kind, options ...Option) (Service, error) {
	s := &service{
		kind:      kind,
		eventSink: NewNoopEventSink(),
		observer:  noopObserver{},
		logger:    slog.Default(),
		copyLimit: defaultCopyConcurrency,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, option := range options {
		option(s)
	}

	if s.contents == nil {
		return nil, fmt.Errorf("content repository is required")
	}
	if s.versionRepo == nil {
		return nil, fmt.Errorf("version repository is required")
	}

	s.logger = s.logger.With("kind", string(kind))
	s.versions = NewVersionService(s.versionRepo, s.logger)
	s.versions.now = s.now

	return s, nil
}

func (s *service) Kind() Kind {
	return s.kind
}

func (s *service) Versions() *VersionService {
	return s.versions
}

// Reads

func (s *service) GetContentVersion(ctx context.Context, id, versionID, language, host string) (bson.M, error) {
	language = s.resolveLanguage(ctx, language, host)
	cid, err := parseID("contentId", id)
	if err != nil {
		return nil, err
	}
	if err := validation.Validate(language, validation.Required); err != nil {
		return nil, validationError("language", err)
	}

	node, err := s.contents.FindByID(ctx, cid)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, notFound("content", id)
	}

	var v *Version
	if versionID != "" {
		vid, err := parseID("versionId", versionID)
		if err != nil {
			return nil, err
		}
		v, err = s.versions.GetContentVersion(ctx, cid, vid)
		if err != nil {
			return nil, err
		}
	} else {
		v, err = s.versions.GetPrimaryVersion(ctx, cid, language)
		if err != nil {
			return nil, err
		}
	}

	nodeDoc, err := query.ToDocument(node)
	if err != nil {
		return nil, err
	}
	versionDoc, err := query.ToDocument(v)
	if err != nil {
		return nil, err
	}
	if err := s.populateChildItems(ctx, versionDoc, language, nil, 1); err != nil {
		return nil, err
	}
	return MergeToContentVersion(nodeDoc, versionDoc), nil
}

func (s *service) GetContent(ctx context.Context, id, language string, statuses []VersionStatus, selectFields string) (bson.M, error) {
	if _, err := parseID("contentId", id); err != nil {
		return nil, err
	}

	filter := bson.M{"_id": id, "isDeleted": false}
	if language != "" {
		filter["language"] = language
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}

	res, err := s.QueryContent(ctx, QueryRequest{Filter: filter, Project: selectFields})
	if err != nil {
		return nil, err
	}
	if len(res.Docs) == 0 {
		return nil, notFound("content", id)
	}
	return res.Docs[0], nil
}

func (s *service) GetContentChildren(ctx context.Context, parentID, language, host, selectFields string) ([]bson.M, error) {
	language = s.resolveLanguage(ctx, language, host)
	parent, err := parseParentID(parentID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"parentId":    nil,
		"contentType": bson.M{"$ne": nil},
		"isDeleted":   false,
	}
	if parent != nil {
		filter["parentId"] = *parent
	}
	if language != "" {
		filter["language"] = language
	}

	res, err := s.QueryContent(ctx, QueryRequest{Filter: filter, Project: selectFields})
	if err != nil {
		return nil, err
	}
	return res.Docs, nil
}

func (s *service) GetAncestors(ctx context.Context, id, language, host, selectFields string) ([]bson.M, error) {
	language = s.resolveLanguage(ctx, language, host)
	doc, err := s.GetContent(ctx, id, language, nil, "_id,parentId,parentPath,ancestors")
	if err != nil {
		return nil, err
	}

	path, _ := doc["parentPath"].(string)
	ids, err := hierarchy.ParsePath(path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []bson.M{}, nil
	}

	filter := bson.M{"_id": bson.M{"$in": ids}, "isDeleted": false}
	if language != "" {
		filter["language"] = language
	}
	res, err := s.QueryContent(ctx, QueryRequest{Filter: filter, Project: selectFields})
	if err != nil {
		return nil, err
	}

	byID := make(map[primitive.ObjectID]bson.M, len(res.Docs))
	for _, d := range res.Docs {
		if oid, ok := d["_id"].(primitive.ObjectID); ok {
			byID[oid] = d
		}
	}
	ordered := make([]bson.M, 0, len(ids))
	for _, aid := range ids {
		if d, ok := byID[aid]; ok {
			ordered = append(ordered, d)
		}
	}
	return ordered, nil
}

var defaultItemProjection = bson.M{
	"_id":              1,
	"parentId":         1,
	"parentPath":       1,
	"contentType":      1,
	"isDeleted":        1,
	"deletedBy":        1,
	"visibleInMenu":    1,
	"createdBy":        1,
	"createdAt":        1,
	"updatedAt":        1,
	"contentLanguages": 1,
}

func (s *service) GetContentItems(ctx context.Context, req GetContentItemsRequest) ([]bson.M, error) {
	if err := validation.Validate(req.Language, validation.Required); err != nil {
		return nil, validationError("language", err)
	}
	if len(req.IDs) == 0 {
		return []bson.M{}, nil
	}

	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := parseID("ids", raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	langFilter := bson.M{"language": req.Language}
	if len(req.Statuses) > 0 {
		langFilter["status"] = bson.M{"$in": req.Statuses}
	}
	filter := bson.M{
		"_id":                bson.M{"$in": ids},
		"isDeleted":          false,
		query.LanguagesField: bson.M{"$elemMatch": langFilter},
	}

	projection := query.Clone(defaultItemProjection)
	if req.Project != nil {
		projection = query.Clone(req.Project)
		if _, ok := projection[query.LanguagesField]; !ok && isInclusion(projection) {
			projection[query.LanguagesField] = 1
		}
	}

	docs, err := s.contents.FindDocuments(ctx, filter, projection)
	if err != nil {
		return nil, err
	}

	depth := req.Depth
	if depth <= 0 {
		depth = DefaultPopulateDepth
	}

	byID := make(map[primitive.ObjectID]bson.M, len(docs))
	for _, d := range docs {
		merged := MergeToContentLanguage(d, SelectLanguage(d, req.Language, req.Statuses))
		if req.DeepPopulate {
			if err := s.populateChildItems(ctx, merged, req.Language, req.Statuses, depth); err != nil {
				return nil, err
			}
		}
		if oid, ok := merged["_id"].(primitive.ObjectID); ok {
			byID[oid] = merged
		}
	}

	out := make([]bson.M, 0, len(byID))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *service) QueryContent(ctx context.Context, req QueryRequest) (*query.Result, error) {
	plan, err := query.Build(req.Filter, req.Project, req.Sort, req.Page, req.Limit)
	if err != nil {
		return nil, validationError("query", err)
	}
	return s.contents.Query(ctx, plan)
}

func (s *service) GetFolderChildren(ctx context.Context, parentID, language string) ([]bson.M, error) {
	parent, err := parseParentID(parentID)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"parentId": nil, "contentType": nil, "isDeleted": false}
	if parent != nil {
		filter["parentId"] = *parent
	}
	if language != "" {
		filter["language"] = language
	}
	res, err := s.QueryContent(ctx, QueryRequest{Filter: filter, Sort: "name"})
	if err != nil {
		return nil, err
	}
	return res.Docs, nil
}

// populateChildItems attaches the referenced nodes, flattened to language,
// to every child item of doc. depth is the number of levels to load.
func (s *service) populateChildItems(ctx context.Context, doc bson.M, language string, statuses []VersionStatus, depth int) error {
	items, _ := doc[fieldChildItems].([]interface{})
	if len(items) == 0 || depth <= 0 {
		return nil
	}

	byKind := make(map[Kind][]string)
	for _, it := range items {
		item, ok := it.(bson.M)
		if !ok {
			continue
		}
		id, ok := item["contentId"].(primitive.ObjectID)
		if !ok {
			continue
		}
		byKind[childKind(item, s.kind)] = append(byKind[childKind(item, s.kind)], id.Hex())
	}

	resolved := make(map[primitive.ObjectID]bson.M)
	for kind, ids := range byKind {
		svc, err := s.serviceFor(kind)
		if err != nil {
			return err
		}
		docs, err := svc.GetContentItems(ctx, GetContentItemsRequest{
			IDs:          ids,
			Language:     language,
			Statuses:     statuses,
			DeepPopulate: depth > 1,
			Depth:        depth - 1,
		})
		if err != nil {
			return err
		}
		for _, d := range docs {
			if oid, ok := d["_id"].(primitive.ObjectID); ok {
				resolved[oid] = d
			}
		}
	}

	for _, it := range items {
		item, ok := it.(bson.M)
		if !ok {
			continue
		}
		id, _ := item["contentId"].(primitive.ObjectID)
		if c, ok := resolved[id]; ok {
			item[fieldContent] = c
		} else {
			delete(item, fieldContent)
		}
	}
	return nil
}

func childKind(item bson.M, fallback Kind) Kind {
	if k, ok := item["itemType"].(string); ok && k != "" {
		return Kind(k)
	}
	return fallback
}

func (s *service) serviceFor(kind Kind) (Service, error) {
	if kind == s.kind {
		return s, nil
	}
	if s.registry == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContentKind, kind)
	}
	return s.registry.Service(kind)
}

func (s *service) resolveLanguage(ctx context.Context, language, host string) string {
	if language != "" || s.sites == nil {
		return language
	}
	_, lang := s.sites.GetCurrentSiteDefinition(ctx, host)
	return lang
}

// markHasChildren flags parent as having children.
func (s *service) markHasChildren(ctx context.Context, parent *Content) error {
	if parent == nil || parent.HasChildren {
		return nil
	}
	if err := s.contents.UpdateByID(ctx, parent.ID, bson.M{"hasChildren": true}); err != nil {
		return err
	}
	parent.HasChildren = true
	return nil
}

// refreshHasChildren recomputes the flag from the remaining live children.
func (s *service) refreshHasChildren(ctx context.Context, parentID *primitive.ObjectID) error {
	if parentID == nil {
		return nil
	}
	n, err := s.contents.Count(ctx, bson.M{"parentId": *parentID, "isDeleted": false})
	if err != nil {
		return err
	}
	err = s.contents.UpdateByID(ctx, *parentID, bson.M{"hasChildren": n > 0})
	if errors.Is(err, ErrDocumentNotFound) {
		return nil
	}
	return err
}

func (s *service) emit(ctx context.Context, name string, fire func(context.Context, Event) error, e Event) {
	e.Kind = s.kind
	e.OccurredAt = s.now()
	if err := fire(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", name, "content_id", e.ContentID.Hex(), "error", err)
	}
}

func (s *service) observe(flow string, start time.Time, err *error) {
	var flowErr error
	if err != nil {
		flowErr = *err
	}
	s.observer.ObserveFlow(string(s.kind), flow, flowErr, time.Since(start))
}

func parseID(field, value string) (primitive.ObjectID, error) {
	if err := validation.Validate(value, validation.Required); err != nil {
		return primitive.NilObjectID, validationError(field, err)
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, validationError(field, err)
	}
	return id, nil
}

// parseParentID treats "" and "0" as the root.
func parseParentID(value string) (*primitive.ObjectID, error) {
	if value == "" || value == "0" {
		return nil, nil
	}
	id, err := parseID("parentId", value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func isInclusion(projection bson.M) bool {
	for k, v := range projection {
		if k == "_id" {
			continue
		}
		switch t := v.(type) {
		case bool:
			if t {
				return true
			}
		case int:
			if t != 0 {
				return true
			}
		case int32:
			if t != 0 {
				return true
			}
		case int64:
			if t != 0 {
				return true
			}
		case float64:
			if t != 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}
