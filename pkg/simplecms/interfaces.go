package simplecms

import (
	"context"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FindOptions narrows a typed find.
type FindOptions struct {
	Sort  bson.D
	Limit int64
}

// ContentRepository persists content nodes of one kind. Filters use the
// document-store query language; a nil filter value matches null.
type ContentRepository interface {
	Create(ctx context.Context, content *Content) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Content, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]*Content, error)
	// FindDocuments returns raw documents with an optional projection.
	FindDocuments(ctx context.Context, filter bson.M, projection bson.M) ([]bson.M, error)
	// Save replaces the stored node. Last write wins.
	Save(ctx context.Context, content *Content) error
	UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
	UpdateMany(ctx context.Context, filter bson.M, set bson.M) (int64, error)
	Count(ctx context.Context, filter bson.M) (int64, error)
	// BulkUpdate replaces every node by id in one unordered batch. A failed
	// write is reported in the result, not returned as an error.
	BulkUpdate(ctx context.Context, contents []*Content) (*BulkResult, error)
	// Query runs a two-stage content plan.
	Query(ctx context.Context, plan query.Plan) (*query.Result, error)
}

// VersionRepository persists version history of one kind.
type VersionRepository interface {
	Create(ctx context.Context, version *Version) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Version, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]*Version, error)
	Save(ctx context.Context, version *Version) error
	UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M) error
	// SetPrimary marks versionID primary and every other version of the
	// same (contentID, language) pair non-primary in one scoped update.
	SetPrimary(ctx context.Context, contentID primitive.ObjectID, language string, versionID primitive.ObjectID) error
}

// SiteRepository persists site definitions.
type SiteRepository interface {
	Create(ctx context.Context, site *SiteDefinition) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*SiteDefinition, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]*SiteDefinition, error)
	Save(ctx context.Context, site *SiteDefinition) error
}

// Event describes one completed content flow.
type Event struct {
	Kind       Kind
	ContentID  primitive.ObjectID
	VersionID  *primitive.ObjectID
	Language   string
	UserID     primitive.ObjectID
	Detail     map[string]interface{}
	OccurredAt time.Time
}

// EventSink defines the interface for event handling
type EventSink interface {
	// ContentCreated is fired when a node is created
	ContentCreated(ctx context.Context, event Event) error

	// ContentUpdated is fired when a version is saved
	ContentUpdated(ctx context.Context, event Event) error

	// ContentPublished is fired when a draft version goes live
	ContentPublished(ctx context.Context, event Event) error

	// ContentTrashed is fired when a subtree is soft-deleted
	ContentTrashed(ctx context.Context, event Event) error

	// ContentCopied is fired when a subtree is copied
	ContentCopied(ctx context.Context, event Event) error

	// ContentMoved is fired when a subtree is cut and pasted
	ContentMoved(ctx context.Context, event Event) error
}

// FlowObserver receives flow outcomes for metrics.
type FlowObserver interface {
	ObserveFlow(kind, flow string, err error, elapsed time.Duration)
	BulkWriteFailures(kind string, n int)
}

// Cache is a key/value store that can drop every key sharing a prefix.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	DeleteStartWith(prefix string)
}

// SiteResolver resolves a host name into its start page and language.
type SiteResolver interface {
	GetCurrentSiteDefinition(ctx context.Context, host string) (startPageID string, language string)
}
