package simplecms

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms/hierarchy"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind tags the flavour of content a service manages. Each kind lives in
// its own pair of collections.
type Kind string

// Content kinds
const (
	KindPage  Kind = "page"
	KindBlock Kind = "block"
	KindMedia Kind = "media"
)

// Kinds lists every built-in kind.
func Kinds() []Kind {
	return []Kind{KindPage, KindBlock, KindMedia}
}

// ParseKind maps a tag onto a built-in kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentKind, s)
}

// Collection is the name of the collection holding nodes of this kind.
func (k Kind) Collection() string {
	s := string(k)
	if s == "" {
		return "cms_Content"
	}
	return "cms_" + strings.ToUpper(s[:1]) + s[1:]
}

// VersionCollection is the name of the collection holding version history of this kind.
func (k Kind) VersionCollection() string {
	return k.Collection() + "Version"
}

// DerivesURLSegment reports whether nodes of this kind get a URL segment
// from their name when none is supplied.
func (k Kind) DerivesURLSegment() bool {
	return k == KindPage
}

// ChildItem references another content node from a composite node.
// Content holds the referenced node once populated and is never stored.
type ChildItem struct {
	ID        string             `bson:"_id" json:"_id"`
	ItemType  Kind               `bson:"itemType" json:"itemType"`
	ContentID primitive.ObjectID `bson:"contentId" json:"contentId"`
	Content   bson.M             `bson:"content,omitempty" json:"content,omitempty"`
}

// Content is the language-independent node of the content tree.
type Content struct {
	ID             primitive.ObjectID   `bson:"_id" json:"_id"`
	ParentID       *primitive.ObjectID  `bson:"parentId" json:"parentId"`
	ParentPath     string               `bson:"parentPath" json:"parentPath"`
	Ancestors      []primitive.ObjectID `bson:"ancestors" json:"ancestors"`
	HasChildren    bool                 `bson:"hasChildren" json:"hasChildren"`
	ChildOrderRule int                  `bson:"childOrderRule" json:"childOrderRule"`
	PeerOrder      int                  `bson:"peerOrder" json:"peerOrder"`
	VisibleInMenu  bool                 `bson:"visibleInMenu" json:"visibleInMenu"`

	// ContentType is nil for folders.
	ContentType      *string `bson:"contentType" json:"contentType"`
	MasterLanguageID string  `bson:"masterLanguageId,omitempty" json:"masterLanguageId,omitempty"`

	IsDeleted bool                `bson:"isDeleted" json:"isDeleted"`
	DeletedAt *time.Time          `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy *primitive.ObjectID `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`

	CreatedBy primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedBy primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	ContentLanguages []ContentLanguage `bson:"contentLanguages" json:"contentLanguages"`
}

// IsFolder reports whether the node is a folder.
func (c *Content) IsFolder() bool {
	return c.ContentType == nil
}

// Node returns the hierarchy view of the content.
func (c *Content) Node() hierarchy.Node {
	return hierarchy.Node{
		ID:         c.ID,
		ParentID:   c.ParentID,
		ParentPath: c.ParentPath,
		Ancestors:  c.Ancestors,
	}
}

func (c *Content) place(p hierarchy.Placement) {
	c.ParentID = p.ParentID
	c.ParentPath = p.ParentPath
	c.Ancestors = p.Ancestors
}

// LanguageIndex returns the position of the record for language, or -1.
func (c *Content) LanguageIndex(language string) int {
	for i := range c.ContentLanguages {
		if c.ContentLanguages[i].Language == language {
			return i
		}
	}
	return -1
}

// ContentLanguage is the per-language overlay of a content node.
type ContentLanguage struct {
	Language      string        `bson:"language" json:"language"`
	Name          string        `bson:"name" json:"name"`
	URLSegment    string        `bson:"urlSegment,omitempty" json:"urlSegment,omitempty"`
	SimpleAddress string        `bson:"simpleAddress,omitempty" json:"simpleAddress,omitempty"`
	LinkURL       string        `bson:"linkUrl,omitempty" json:"linkUrl,omitempty"`
	Status        VersionStatus `bson:"status" json:"status"`

	VersionID         *primitive.ObjectID `bson:"versionId,omitempty" json:"versionId,omitempty"`
	StartPublish      *time.Time          `bson:"startPublish,omitempty" json:"startPublish,omitempty"`
	StopPublish       *time.Time          `bson:"stopPublish,omitempty" json:"stopPublish,omitempty"`
	DelayPublishUntil *time.Time          `bson:"delayPublishUntil,omitempty" json:"delayPublishUntil,omitempty"`
	PublishedBy       *primitive.ObjectID `bson:"publishedBy,omitempty" json:"publishedBy,omitempty"`

	Properties bson.M      `bson:"properties,omitempty" json:"properties,omitempty"`
	ChildItems []ChildItem `bson:"childItems,omitempty" json:"childItems,omitempty"`

	CreatedBy primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedBy primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Version is one saved revision of a node in one language.
type Version struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	ContentID primitive.ObjectID `bson:"contentId" json:"contentId"`
	Language  string             `bson:"language" json:"language"`
	Status    VersionStatus      `bson:"status" json:"status"`

	Name           string `bson:"name" json:"name"`
	URLSegment     string `bson:"urlSegment,omitempty" json:"urlSegment,omitempty"`
	SimpleAddress  string `bson:"simpleAddress,omitempty" json:"simpleAddress,omitempty"`
	LinkURL        string `bson:"linkUrl,omitempty" json:"linkUrl,omitempty"`
	VisibleInMenu  bool   `bson:"visibleInMenu" json:"visibleInMenu"`
	ChildOrderRule int    `bson:"childOrderRule" json:"childOrderRule"`
	PeerOrder      int    `bson:"peerOrder" json:"peerOrder"`

	Properties bson.M      `bson:"properties,omitempty" json:"properties,omitempty"`
	ChildItems []ChildItem `bson:"childItems,omitempty" json:"childItems,omitempty"`

	StartPublish      *time.Time          `bson:"startPublish,omitempty" json:"startPublish,omitempty"`
	StopPublish       *time.Time          `bson:"stopPublish,omitempty" json:"stopPublish,omitempty"`
	DelayPublishUntil *time.Time          `bson:"delayPublishUntil,omitempty" json:"delayPublishUntil,omitempty"`
	PublishedBy       *primitive.ObjectID `bson:"publishedBy,omitempty" json:"publishedBy,omitempty"`

	MasterVersionID *primitive.ObjectID `bson:"masterVersionId" json:"masterVersionId"`
	IsPrimary       bool                `bson:"isPrimary" json:"isPrimary"`

	SavedAt   time.Time          `bson:"savedAt" json:"savedAt"`
	SavedBy   primitive.ObjectID `bson:"savedBy,omitempty" json:"savedBy,omitempty"`
	CreatedBy primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedBy primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// clone copies v deeply enough that edits to the copy do not reach v.
func (v *Version) clone() *Version {
	c := *v
	if v.Properties != nil {
		c.Properties = query.Clone(v.Properties)
	}
	if v.ChildItems != nil {
		c.ChildItems = append([]ChildItem(nil), v.ChildItems...)
	}
	return &c
}

// Item is the typed form of a merged content view (a node flattened with
// one language record or one version).
type Item struct {
	ID               primitive.ObjectID   `bson:"_id" json:"_id"`
	ParentID         *primitive.ObjectID  `bson:"parentId" json:"parentId"`
	ParentPath       string               `bson:"parentPath" json:"parentPath"`
	Ancestors        []primitive.ObjectID `bson:"ancestors" json:"ancestors"`
	HasChildren      bool                 `bson:"hasChildren" json:"hasChildren"`
	ChildOrderRule   int                  `bson:"childOrderRule" json:"childOrderRule"`
	PeerOrder        int                  `bson:"peerOrder" json:"peerOrder"`
	VisibleInMenu    bool                 `bson:"visibleInMenu" json:"visibleInMenu"`
	ContentType      *string              `bson:"contentType" json:"contentType"`
	MasterLanguageID string               `bson:"masterLanguageId" json:"masterLanguageId"`
	IsDeleted        bool                 `bson:"isDeleted" json:"isDeleted"`

	Language      string        `bson:"language" json:"language"`
	Name          string        `bson:"name" json:"name"`
	URLSegment    string        `bson:"urlSegment" json:"urlSegment"`
	SimpleAddress string        `bson:"simpleAddress" json:"simpleAddress"`
	LinkURL       string        `bson:"linkUrl" json:"linkUrl"`
	Status        VersionStatus `bson:"status" json:"status"`

	VersionID       *primitive.ObjectID `bson:"versionId" json:"versionId"`
	MasterVersionID *primitive.ObjectID `bson:"masterVersionId" json:"masterVersionId"`
	IsPrimary       bool                `bson:"isPrimary" json:"isPrimary"`
	StartPublish    *time.Time          `bson:"startPublish" json:"startPublish"`
	PublishedBy     *primitive.ObjectID `bson:"publishedBy" json:"publishedBy"`

	Properties bson.M      `bson:"properties" json:"properties"`
	ChildItems []ChildItem `bson:"childItems" json:"childItems"`

	CreatedBy primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DecodeItem decodes a merged view into an Item.
func DecodeItem(doc bson.M) (*Item, error) {
	var item Item
	if err := query.FromDocument(doc, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// HostDefinition binds a host name to a site and its default language.
type HostDefinition struct {
	Name      string `bson:"name" json:"name"`
	Language  string `bson:"language" json:"language"`
	IsPrimary bool   `bson:"isPrimary" json:"isPrimary"`
}

// SiteDefinition maps host names onto a start page.
type SiteDefinition struct {
	ID        primitive.ObjectID `bson:"_id" json:"_id"`
	Name      string             `bson:"name" json:"name"`
	StartPage primitive.ObjectID `bson:"startPage" json:"startPage"`
	Hosts     []HostDefinition   `bson:"hosts" json:"hosts"`
	CreatedBy primitive.ObjectID `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedBy primitive.ObjectID `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// BulkFailure is one descendant update that did not apply.
type BulkFailure struct {
	ID    primitive.ObjectID `json:"id"`
	Error string             `json:"error"`
}

// BulkResult reports an unordered bulk write. Failures do not abort the
// remaining writes.
type BulkResult struct {
	Matched  int64         `json:"matched"`
	Modified int64         `json:"modified"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

// CopyFailure is one child subtree that could not be copied.
type CopyFailure struct {
	SourceID primitive.ObjectID `json:"sourceId"`
	Error    string             `json:"error"`
}

// CopyResult reports a subtree copy. Content is the new root.
type CopyResult struct {
	Content  *Content      `json:"content"`
	Copied   int           `json:"copied"`
	Failures []CopyFailure `json:"failures,omitempty"`
}

// CutResult reports a subtree move.
type CutResult struct {
	Content     *Content    `json:"content"`
	Descendants int         `json:"descendants"`
	Bulk        *BulkResult `json:"bulk,omitempty"`
}
