package simplecms

import (
	"context"

	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
)

// Service manages the content tree of one kind. Reads return merged views:
// a node flattened with one language record or one version.
type Service interface {
	Kind() Kind
	Versions() *VersionService

	// Reads
	GetContentVersion(ctx context.Context, id, versionID, language, host string) (bson.M, error)
	GetContent(ctx context.Context, id, language string, statuses []VersionStatus, selectFields string) (bson.M, error)
	GetContentChildren(ctx context.Context, parentID, language, host, selectFields string) ([]bson.M, error)
	GetAncestors(ctx context.Context, id, language, host, selectFields string) ([]bson.M, error)
	GetContentItems(ctx context.Context, req GetContentItemsRequest) ([]bson.M, error)
	QueryContent(ctx context.Context, req QueryRequest) (*query.Result, error)
	GetFolderChildren(ctx context.Context, parentID, language string) ([]bson.M, error)

	// Flows
	ExecuteCreateContentFlow(ctx context.Context, req CreateContentRequest) (bson.M, error)
	ExecuteCreateFolderFlow(ctx context.Context, req CreateFolderRequest) (*Content, error)
	ExecuteUpdateContentFlow(ctx context.Context, req UpdateContentRequest) (bson.M, error)
	ExecutePublishContentFlow(ctx context.Context, req PublishContentRequest) (bson.M, error)
	ExecuteMoveContentToTrashFlow(ctx context.Context, id, userID string) (*Content, error)
	ExecuteCopyContentFlow(ctx context.Context, sourceID, targetParentID, userID string) (*CopyResult, error)
	ExecuteCutContentFlow(ctx context.Context, sourceID, targetParentID, userID string) (*CutResult, error)
}
