package simplecms

import (
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultPopulateDepth bounds how deep child items are populated.
const DefaultPopulateDepth = 5

// ContentInput carries the editable fields of a version. Empty strings and
// nil pointers leave the target untouched; a non-nil Properties or
// ChildItems replaces the stored value.
type ContentInput struct {
	Name              string      `json:"name,omitempty"`
	URLSegment        string      `json:"urlSegment,omitempty"`
	SimpleAddress     string      `json:"simpleAddress,omitempty"`
	LinkURL           string      `json:"linkUrl,omitempty"`
	VisibleInMenu     *bool       `json:"visibleInMenu,omitempty"`
	ChildOrderRule    *int        `json:"childOrderRule,omitempty"`
	PeerOrder         *int        `json:"peerOrder,omitempty"`
	Properties        bson.M      `json:"properties,omitempty"`
	ChildItems        []ChildItem `json:"childItems,omitempty"`
	StopPublish       *time.Time  `json:"stopPublish,omitempty"`
	DelayPublishUntil *time.Time  `json:"delayPublishUntil,omitempty"`
}

func (in ContentInput) applyToVersion(v *Version) {
	if in.Name != "" {
		v.Name = in.Name
	}
	if in.URLSegment != "" {
		v.URLSegment = in.URLSegment
	}
	if in.SimpleAddress != "" {
		v.SimpleAddress = in.SimpleAddress
	}
	if in.LinkURL != "" {
		v.LinkURL = in.LinkURL
	}
	if in.VisibleInMenu != nil {
		v.VisibleInMenu = *in.VisibleInMenu
	}
	if in.ChildOrderRule != nil {
		v.ChildOrderRule = *in.ChildOrderRule
	}
	if in.PeerOrder != nil {
		v.PeerOrder = *in.PeerOrder
	}
	if in.Properties != nil {
		v.Properties = in.Properties
	}
	if in.ChildItems != nil {
		v.ChildItems = normalizeChildItems(in.ChildItems)
	}
	if in.StopPublish != nil {
		v.StopPublish = in.StopPublish
	}
	if in.DelayPublishUntil != nil {
		v.DelayPublishUntil = in.DelayPublishUntil
	}
}

func (in ContentInput) applyToLanguage(l *ContentLanguage) {
	if in.Name != "" {
		l.Name = in.Name
	}
	if in.URLSegment != "" {
		l.URLSegment = in.URLSegment
	}
	if in.SimpleAddress != "" {
		l.SimpleAddress = in.SimpleAddress
	}
	if in.LinkURL != "" {
		l.LinkURL = in.LinkURL
	}
	if in.Properties != nil {
		l.Properties = in.Properties
	}
	if in.ChildItems != nil {
		l.ChildItems = normalizeChildItems(in.ChildItems)
	}
	if in.StopPublish != nil {
		l.StopPublish = in.StopPublish
	}
	if in.DelayPublishUntil != nil {
		l.DelayPublishUntil = in.DelayPublishUntil
	}
}

// normalizeChildItems assigns ids to new references and drops populated content.
func normalizeChildItems(items []ChildItem) []ChildItem {
	out := make([]ChildItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.Content = nil
		out = append(out, item)
	}
	return out
}

// CreateContentRequest contains parameters for creating a typed content node
type CreateContentRequest struct {
	// ParentID is empty or "0" for a root node.
	ParentID    string
	ContentType string
	Language    string
	UserID      string
	Input       ContentInput
}

// UpdateContentRequest contains parameters for saving a version
type UpdateContentRequest struct {
	ContentID string
	VersionID string
	UserID    string
	Input     ContentInput
}

// PublishContentRequest contains parameters for publishing a version
type PublishContentRequest struct {
	ContentID string
	VersionID string
	UserID    string
	Host      string
}

// CreateFolderRequest contains parameters for creating a folder
type CreateFolderRequest struct {
	ParentID string
	Name     string
	Language string
	UserID   string
}

// GetContentItemsRequest contains parameters for a batch item fetch
type GetContentItemsRequest struct {
	IDs      []string
	Language string
	Statuses []VersionStatus
	// Project overrides the default field set.
	Project      bson.M
	DeepPopulate bool
	// Depth limits population; zero means DefaultPopulateDepth.
	Depth int
}

// QueryRequest contains parameters for a content query. Project and Sort
// accept the forms understood by the query package.
type QueryRequest struct {
	Filter  bson.M
	Project interface{}
	Sort    interface{}
	Page    int64
	Limit   int64
}
