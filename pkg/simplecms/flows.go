package simplecms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gosimple/slug"
	"github.com/tendant/simple-cms/pkg/simplecms/hierarchy"
	"github.com/tendant/simple-cms/pkg/simplecms/query"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// ExecuteCreateContentFlow creates a typed node with its first draft version.
// The version is made primary before the language record pointing at it is
// attached to the node.
func (s *service) ExecuteCreateContentFlow(ctx context.Context, req CreateContentRequest) (doc bson.M, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := validation.ValidateStruct(&req,
		validation.Field(&req.ContentType, validation.Required),
		validation.Field(&req.Language, validation.Required),
		validation.Field(&req.UserID, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	userID, err := parseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	parent, err := s.loadParent(ctx, req.ParentID)
	if err != nil {
		return nil, err
	}

	input := req.Input
	if input.URLSegment == "" && s.kind.DerivesURLSegment() {
		input.URLSegment = slug.Make(input.Name)
	}

	now := s.now()
	contentType := req.ContentType
	node := &Content{
		ID:               primitive.NewObjectID(),
		ContentType:      &contentType,
		MasterLanguageID: req.Language,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedBy:        userID,
		UpdatedAt:        now,
		ContentLanguages: []ContentLanguage{},
	}
	if input.VisibleInMenu != nil {
		node.VisibleInMenu = *input.VisibleInMenu
	}
	if input.ChildOrderRule != nil {
		node.ChildOrderRule = *input.ChildOrderRule
	}
	if input.PeerOrder != nil {
		node.PeerOrder = *input.PeerOrder
	}
	node.place(hierarchy.Place(parentNode(parent)))

	if err := s.contents.Create(ctx, node); err != nil {
		return nil, &ContentError{ContentID: node.ID.Hex(), Op: "create", Err: err}
	}

	data := &Version{}
	input.applyToVersion(data)
	v, err := s.versions.CreateNewVersion(ctx, data, node.ID, userID, req.Language, nil)
	if err != nil {
		return nil, err
	}
	if err := s.versions.SetPrimaryVersion(ctx, v.ID); err != nil {
		return nil, err
	}
	v.IsPrimary = true

	node.ContentLanguages = append(node.ContentLanguages, newLanguageRecord(v, userID, now))
	if err := s.contents.Save(ctx, node); err != nil {
		return nil, &ContentError{ContentID: node.ID.Hex(), Op: "create", Err: err}
	}
	if err := s.markHasChildren(ctx, parent); err != nil {
		return nil, &ContentError{ContentID: node.ID.Hex(), Op: "create", Err: err}
	}

	s.emit(ctx, "created", s.eventSink.ContentCreated, Event{
		ContentID: node.ID, VersionID: &v.ID, Language: v.Language, UserID: userID,
	})
	s.logger.InfoContext(ctx, "content created", "content_id", node.ID.Hex(), "version_id", v.ID.Hex(), "language", v.Language)

	return mergeVersion(node, v)
}

// ExecuteCreateFolderFlow creates a folder: a node without content type and
// without version history.
func (s *service) ExecuteCreateFolderFlow(ctx context.Context, req CreateFolderRequest) (folder *Content, err error) {
	defer s.observe("create_folder", time.Now(), &err)

	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required),
		validation.Field(&req.Language, validation.Required),
		validation.Field(&req.UserID, validation.Required),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	userID, err := parseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	parent, err := s.loadParent(ctx, req.ParentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	folder = &Content{
		ID:               primitive.NewObjectID(),
		MasterLanguageID: req.Language,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedBy:        userID,
		UpdatedAt:        now,
		ContentLanguages: []ContentLanguage{{
			Language:  req.Language,
			Name:      req.Name,
			Status:    StatusPublished,
			CreatedBy: userID,
			CreatedAt: now,
			UpdatedBy: userID,
			UpdatedAt: now,
		}},
	}
	folder.place(hierarchy.Place(parentNode(parent)))

	if err := s.contents.Create(ctx, folder); err != nil {
		return nil, &ContentError{ContentID: folder.ID.Hex(), Op: "create_folder", Err: err}
	}
	if err := s.markHasChildren(ctx, parent); err != nil {
		return nil, &ContentError{ContentID: folder.ID.Hex(), Op: "create_folder", Err: err}
	}

	s.emit(ctx, "created", s.eventSink.ContentCreated, Event{
		ContentID: folder.ID, Language: req.Language, UserID: userID,
		Detail: map[string]interface{}{"folder": true},
	})
	s.logger.InfoContext(ctx, "folder created", "content_id", folder.ID.Hex(), "language", req.Language)
	return folder, nil
}

// ExecuteUpdateContentFlow saves changes to a version. Drafts are edited in
// place; a published version is never changed and gets a new draft branched
// from it instead.
func (s *service) ExecuteUpdateContentFlow(ctx context.Context, req UpdateContentRequest) (doc bson.M, err error) {
	defer s.observe("update", time.Now(), &err)

	userID, err := parseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	v, node, err := s.loadVersionAndContent(ctx, req.ContentID, req.VersionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if IsDraftVersion(v.Status) {
		idx := node.LanguageIndex(v.Language)
		if idx < 0 {
			return nil, &ContentError{ContentID: node.ID.Hex(), Op: "update", Err: fmt.Errorf("%w: %s", ErrContentLanguageNotFound, v.Language)}
		}

		lang := &node.ContentLanguages[idx]
		if IsDraftVersion(lang.Status) {
			req.Input.applyToLanguage(lang)
			lang.UpdatedBy = userID
			lang.UpdatedAt = now
			node.UpdatedBy = userID
			node.UpdatedAt = now
			if err := s.contents.Save(ctx, node); err != nil {
				return nil, &ContentError{ContentID: node.ID.Hex(), Op: "update", Err: err}
			}
		}

		req.Input.applyToVersion(v)
		v.SavedAt = now
		v.SavedBy = userID
		v.UpdatedBy = userID
		if err := s.versions.Save(ctx, v); err != nil {
			return nil, err
		}

		s.emit(ctx, "updated", s.eventSink.ContentUpdated, Event{
			ContentID: node.ID, VersionID: &v.ID, Language: v.Language, UserID: userID,
		})
		s.logger.InfoContext(ctx, "draft saved", "content_id", node.ID.Hex(), "version_id", v.ID.Hex(), "language", v.Language)
		return mergeVersion(node, v)
	}

	branch := v.clone()
	req.Input.applyToVersion(branch)
	created, err := s.versions.CreateNewVersion(ctx, branch, node.ID, userID, v.Language, &v.ID)
	if err != nil {
		return nil, err
	}
	primary, err := s.versions.PromoteIfNoPrimaryDraft(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	created.IsPrimary = primary

	s.emit(ctx, "updated", s.eventSink.ContentUpdated, Event{
		ContentID: node.ID, VersionID: &created.ID, Language: created.Language, UserID: userID,
		Detail: map[string]interface{}{"masterVersionId": v.ID.Hex(), "primary": primary},
	})
	s.logger.InfoContext(ctx, "draft branched from published version",
		"content_id", node.ID.Hex(), "version_id", created.ID.Hex(), "master_version_id", v.ID.Hex(), "language", created.Language)
	return mergeVersion(node, created)
}

// ExecutePublishContentFlow makes a draft version live. Publishing a version
// that is not a draft changes nothing.
func (s *service) ExecutePublishContentFlow(ctx context.Context, req PublishContentRequest) (doc bson.M, err error) {
	defer s.observe("publish", time.Now(), &err)

	userID, err := parseID("userId", req.UserID)
	if err != nil {
		return nil, err
	}
	v, node, err := s.loadVersionAndContent(ctx, req.ContentID, req.VersionID)
	if err != nil {
		return nil, err
	}

	idx := node.LanguageIndex(v.Language)
	if idx < 0 {
		return nil, &ContentError{ContentID: node.ID.Hex(), Op: "publish", Err: fmt.Errorf("%w: %s", ErrContentLanguageNotFound, v.Language)}
	}
	if !IsDraftVersion(v.Status) {
		return mergeVersion(node, v)
	}

	now := s.now()
	v.Status = StatusPublished
	v.StartPublish = &now
	v.PublishedBy = &userID
	v.SavedAt = now
	v.SavedBy = userID
	v.UpdatedBy = userID
	v.MasterVersionID = nil
	if err := s.versions.Save(ctx, v); err != nil {
		return nil, err
	}

	lang := &node.ContentLanguages[idx]
	previous := lang.VersionID
	versionID := v.ID
	lang.URLSegment = v.URLSegment
	lang.SimpleAddress = v.SimpleAddress
	lang.Status = v.Status
	lang.StartPublish = v.StartPublish
	lang.PublishedBy = v.PublishedBy
	lang.Name = v.Name
	lang.Properties = query.Clone(v.Properties)
	lang.ChildItems = append([]ChildItem(nil), v.ChildItems...)
	lang.VersionID = &versionID
	lang.UpdatedBy = userID
	lang.UpdatedAt = now

	node.ChildOrderRule = v.ChildOrderRule
	node.PeerOrder = v.PeerOrder
	node.VisibleInMenu = v.VisibleInMenu
	node.UpdatedBy = userID
	node.UpdatedAt = now
	if err := s.contents.Save(ctx, node); err != nil {
		return nil, &ContentError{ContentID: node.ID.Hex(), Op: "publish", Err: err}
	}

	if previous != nil && *previous != v.ID {
		if err := s.versions.UpdateStatus(ctx, *previous, StatusPreviouslyPublished); err != nil {
			return nil, err
		}
	}
	if !v.IsPrimary {
		primary, err := s.versions.PromoteIfNoPrimaryDraft(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		v.IsPrimary = primary
	}

	s.emit(ctx, "published", s.eventSink.ContentPublished, Event{
		ContentID: node.ID, VersionID: &v.ID, Language: v.Language, UserID: userID,
	})
	s.logger.InfoContext(ctx, "content published", "content_id", node.ID.Hex(), "version_id", v.ID.Hex(), "language", v.Language)
	return mergeVersion(node, v)
}

// ExecuteMoveContentToTrashFlow soft-deletes a node and its whole subtree,
// then clears the parent's hasChildren flag when no live child remains.
func (s *service) ExecuteMoveContentToTrashFlow(ctx context.Context, id, userID string) (node *Content, err error) {
	defer s.observe("trash", time.Now(), &err)

	cid, err := parseID("contentId", id)
	if err != nil {
		return nil, err
	}
	uid, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	node, err = s.findLive(ctx, cid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	set := bson.M{"isDeleted": true, "deletedBy": uid, "deletedAt": now}
	subtree := bson.M{"parentPath": bson.M{"$regex": primitive.Regex{Pattern: hierarchy.SubtreePattern(node.Node())}}}

	var descendants int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.contents.UpdateByID(gctx, node.ID, set)
	})
	g.Go(func() error {
		n, err := s.contents.UpdateMany(gctx, subtree, set)
		descendants = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, &ContentError{ContentID: id, Op: "trash", Err: err}
	}

	node.IsDeleted = true
	node.DeletedBy = &uid
	node.DeletedAt = &now

	if err := s.refreshHasChildren(ctx, node.ParentID); err != nil {
		return nil, &ContentError{ContentID: id, Op: "trash", Err: err}
	}

	s.emit(ctx, "trashed", s.eventSink.ContentTrashed, Event{
		ContentID: node.ID, UserID: uid,
		Detail: map[string]interface{}{"descendants": descendants},
	})
	s.logger.InfoContext(ctx, "content moved to trash", "content_id", id, "descendants", descendants)
	return node, nil
}

// ExecuteCopyContentFlow duplicates a subtree under a new parent. Every
// copied node gets a fresh identity and only the newest version of each
// language. Child subtrees are copied concurrently; a failed child is
// reported in the result and does not stop its siblings.
func (s *service) ExecuteCopyContentFlow(ctx context.Context, sourceID, targetParentID, userID string) (result *CopyResult, err error) {
	defer s.observe("copy", time.Now(), &err)

	srcID, err := parseID("sourceId", sourceID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	src, err := s.findLive(ctx, srcID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadParent(ctx, targetParentID)
	if err != nil {
		return nil, err
	}
	if target != nil && hierarchy.IsInSubtree(src.Node(), target.Node()) {
		return nil, validationError("targetParentId", errors.New("cannot copy a node into its own subtree"))
	}

	result = &CopyResult{}
	var mu sync.Mutex
	root, err := s.copyNode(ctx, src, target, uid, result, &mu)
	if err != nil {
		return nil, &ContentError{ContentID: sourceID, Op: "copy", Err: err}
	}
	if err := s.markHasChildren(ctx, target); err != nil {
		return nil, &ContentError{ContentID: sourceID, Op: "copy", Err: err}
	}
	result.Content = root

	s.emit(ctx, "copied", s.eventSink.ContentCopied, Event{
		ContentID: root.ID, UserID: uid,
		Detail: map[string]interface{}{"sourceId": sourceID, "copied": result.Copied, "failures": len(result.Failures)},
	})
	s.logger.InfoContext(ctx, "content copied", "content_id", root.ID.Hex(), "source_id", sourceID, "copied", result.Copied)
	return result, nil
}

func (s *service) copyNode(ctx context.Context, src *Content, parent *Content, uid primitive.ObjectID, result *CopyResult, mu *sync.Mutex) (*Content, error) {
	latest, err := s.versions.LatestPerLanguage(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	node := &Content{
		ID:               primitive.NewObjectID(),
		ContentType:      src.ContentType,
		MasterLanguageID: src.MasterLanguageID,
		ChildOrderRule:   src.ChildOrderRule,
		PeerOrder:        src.PeerOrder,
		VisibleInMenu:    src.VisibleInMenu,
		CreatedBy:        uid,
		CreatedAt:        now,
		UpdatedBy:        uid,
		UpdatedAt:        now,
		ContentLanguages: []ContentLanguage{},
	}
	node.place(hierarchy.Place(parentNode(parent)))
	if err := s.contents.Create(ctx, node); err != nil {
		return nil, err
	}

	versioned := make(map[string]bool, len(latest))
	for _, v := range latest {
		copied, err := s.versions.CreateNewVersion(ctx, v, node.ID, uid, v.Language, nil)
		if err != nil {
			return nil, err
		}
		if err := s.versions.SetPrimaryVersion(ctx, copied.ID); err != nil {
			return nil, err
		}
		copied.IsPrimary = true
		node.ContentLanguages = append(node.ContentLanguages, newLanguageRecord(copied, uid, now))
		versioned[v.Language] = true
	}
	// folders keep their language records without history
	for _, lang := range src.ContentLanguages {
		if versioned[lang.Language] {
			continue
		}
		lang.VersionID = nil
		lang.Properties = query.Clone(lang.Properties)
		lang.CreatedBy, lang.CreatedAt = uid, now
		lang.UpdatedBy, lang.UpdatedAt = uid, now
		node.ContentLanguages = append(node.ContentLanguages, lang)
	}

	children, err := s.contents.Find(ctx, bson.M{"parentId": src.ID, "isDeleted": false}, FindOptions{
		Sort: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return nil, err
	}

	if len(node.ContentLanguages) > 0 {
		if err := s.contents.Save(ctx, node); err != nil {
			return nil, err
		}
	}

	mu.Lock()
	result.Copied++
	mu.Unlock()

	var copiedChildren atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.copyLimit)
	for _, child := range children {
		g.Go(func() error {
			if _, err := s.copyNode(ctx, child, node, uid, result, mu); err != nil {
				mu.Lock()
				result.Failures = append(result.Failures, CopyFailure{SourceID: child.ID, Error: err.Error()})
				mu.Unlock()
				s.logger.WarnContext(ctx, "child copy failed", "source_id", child.ID.Hex(), "parent_id", node.ID.Hex(), "error", err)
				return nil
			}
			copiedChildren.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	// only children that were actually copied count
	if copiedChildren.Load() > 0 {
		node.HasChildren = true
		if err := s.contents.UpdateByID(ctx, node.ID, bson.M{"hasChildren": true}); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// ExecuteCutContentFlow moves a subtree under a new parent keeping ids.
// Descendants are rewritten in one unordered bulk write whose partial
// failures are returned in the result.
func (s *service) ExecuteCutContentFlow(ctx context.Context, sourceID, targetParentID, userID string) (result *CutResult, err error) {
	defer s.observe("cut", time.Now(), &err)

	srcID, err := parseID("sourceId", sourceID)
	if err != nil {
		return nil, err
	}
	uid, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	src, err := s.findLive(ctx, srcID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadParent(ctx, targetParentID)
	if err != nil {
		return nil, err
	}
	if target != nil && hierarchy.IsInSubtree(src.Node(), target.Node()) {
		return nil, validationError("targetParentId", errors.New("cannot move a node into its own subtree"))
	}

	oldNode := src.Node()
	oldParent := src.ParentID
	now := s.now()

	src.place(hierarchy.Place(parentNode(target)))
	src.UpdatedBy = uid
	src.UpdatedAt = now
	if err := s.contents.Save(ctx, src); err != nil {
		return nil, &ContentError{ContentID: sourceID, Op: "cut", Err: err}
	}

	descendants, err := s.contents.Find(ctx, bson.M{
		"parentPath": bson.M{"$regex": primitive.Regex{Pattern: hierarchy.SubtreePattern(oldNode)}},
	}, FindOptions{})
	if err != nil {
		return nil, &ContentError{ContentID: sourceID, Op: "cut", Err: err}
	}

	var skipped []BulkFailure
	moved := make([]*Content, 0, len(descendants))
	for _, d := range descendants {
		p, err := hierarchy.Relocate(src.Node(), d.Node())
		if err != nil {
			skipped = append(skipped, BulkFailure{ID: d.ID, Error: err.Error()})
			continue
		}
		d.place(p)
		d.UpdatedBy = uid
		d.UpdatedAt = now
		moved = append(moved, d)
	}

	bulk := &BulkResult{}
	if len(moved) > 0 {
		bulk, err = s.contents.BulkUpdate(ctx, moved)
		if err != nil {
			return nil, &ContentError{ContentID: sourceID, Op: "cut", Err: err}
		}
	}
	bulk.Failures = append(bulk.Failures, skipped...)
	if n := len(bulk.Failures); n > 0 {
		s.observer.BulkWriteFailures(string(s.kind), n)
		s.logger.WarnContext(ctx, "descendant updates failed", "content_id", sourceID, "failures", n)
	}

	if oldParent != nil && (target == nil || *oldParent != target.ID) {
		if err := s.refreshHasChildren(ctx, oldParent); err != nil {
			return nil, &ContentError{ContentID: sourceID, Op: "cut", Err: err}
		}
	}
	if err := s.markHasChildren(ctx, target); err != nil {
		return nil, &ContentError{ContentID: sourceID, Op: "cut", Err: err}
	}

	s.emit(ctx, "moved", s.eventSink.ContentMoved, Event{
		ContentID: src.ID, UserID: uid,
		Detail: map[string]interface{}{"targetParentId": targetParentID, "descendants": len(descendants), "failures": len(bulk.Failures)},
	})
	s.logger.InfoContext(ctx, "content moved", "content_id", sourceID, "target_parent_id", targetParentID, "descendants", len(descendants))

	return &CutResult{Content: src, Descendants: len(descendants), Bulk: bulk}, nil
}

// loadParent resolves a parent id; "" and "0" mean the root.
func (s *service) loadParent(ctx context.Context, parentID string) (*Content, error) {
	id, err := parseParentID(parentID)
	if err != nil || id == nil {
		return nil, err
	}
	parent, err := s.contents.FindByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted {
		return nil, notFound("parent", parentID)
	}
	return parent, nil
}

// findLive loads a node that has not been moved to trash.
func (s *service) findLive(ctx context.Context, id primitive.ObjectID) (*Content, error) {
	node, err := s.contents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.IsDeleted {
		return nil, notFound("content", id.Hex())
	}
	return node, nil
}

func (s *service) loadVersionAndContent(ctx context.Context, contentID, versionID string) (*Version, *Content, error) {
	vid, err := parseID("versionId", versionID)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.versions.GetVersionByID(ctx, vid)
	if err != nil {
		return nil, nil, err
	}
	if contentID != "" {
		cid, err := parseID("contentId", contentID)
		if err != nil {
			return nil, nil, err
		}
		if cid != v.ContentID {
			return nil, nil, notFound("version", versionID+" of content "+contentID)
		}
	}
	node, err := s.findLive(ctx, v.ContentID)
	if err != nil {
		return nil, nil, err
	}
	return v, node, nil
}

func parentNode(parent *Content) *hierarchy.Node {
	if parent == nil {
		return nil
	}
	n := parent.Node()
	return &n
}

func newLanguageRecord(v *Version, userID primitive.ObjectID, now time.Time) ContentLanguage {
	versionID := v.ID
	return ContentLanguage{
		Language:          v.Language,
		Name:              v.Name,
		URLSegment:        v.URLSegment,
		SimpleAddress:     v.SimpleAddress,
		LinkURL:           v.LinkURL,
		Status:            StatusCheckedOut,
		VersionID:         &versionID,
		StopPublish:       v.StopPublish,
		DelayPublishUntil: v.DelayPublishUntil,
		Properties:        query.Clone(v.Properties),
		ChildItems:        append([]ChildItem(nil), v.ChildItems...),
		CreatedBy:         userID,
		CreatedAt:         now,
		UpdatedBy:         userID,
		UpdatedAt:         now,
	}
}

func mergeVersion(node *Content, v *Version) (bson.M, error) {
	nodeDoc, err := query.ToDocument(node)
	if err != nil {
		return nil, err
	}
	versionDoc, err := query.ToDocument(v)
	if err != nil {
		return nil, err
	}
	return MergeToContentVersion(nodeDoc, versionDoc), nil
}
