package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VersionService manages version history and keeps exactly one primary
// version per (content, language) pair.
type VersionService struct {
	repo   VersionRepository
	logger *slog.Logger
	now    func() time.Time
	locks  keyedMutex
}

// NewVersionService creates a version service over repo.
func NewVersionService(repo VersionRepository, logger *slog.Logger) *VersionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateNewVersion stores data as a new non-primary draft of contentID in
// language. No other version changes.
func (s *VersionService) CreateNewVersion(ctx context.Context, data *Version, contentID, userID primitive.ObjectID, language string, masterVersionID *primitive.ObjectID) (*Version, error) {
	if contentID.IsZero() {
		return nil, validationError("contentId", errors.New("cannot be blank"))
	}
	if language == "" {
		return nil, validationError("language", errors.New("cannot be blank"))
	}

	v := &Version{}
	if data != nil {
		v = data.clone()
	}
	now := s.now()
	v.ID = primitive.NewObjectID()
	v.ContentID = contentID
	v.Language = language
	v.Status = StatusCheckedOut
	v.IsPrimary = false
	v.MasterVersionID = masterVersionID
	v.StartPublish = nil
	v.PublishedBy = nil
	v.CreatedBy = userID
	v.CreatedAt = now
	v.UpdatedBy = userID
	v.UpdatedAt = now
	v.SavedBy = userID
	v.SavedAt = now

	if err := s.repo.Create(ctx, v); err != nil {
		return nil, &VersionError{VersionID: v.ID.Hex(), Op: "create", Err: err}
	}
	return v, nil
}

// SetPrimaryVersion makes versionID the only primary version of its pair.
func (s *VersionService) SetPrimaryVersion(ctx context.Context, versionID primitive.ObjectID) error {
	v, err := s.GetVersionByID(ctx, versionID)
	if err != nil {
		return err
	}
	unlock := s.locks.lock(pairKey(v.ContentID, v.Language))
	defer unlock()

	return s.setPrimary(ctx, v)
}

func (s *VersionService) setPrimary(ctx context.Context, v *Version) error {
	if err := s.repo.SetPrimary(ctx, v.ContentID, v.Language, v.ID); err != nil {
		return &VersionError{VersionID: v.ID.Hex(), Op: "set_primary", Err: err}
	}
	v.IsPrimary = true
	return nil
}

// PromoteIfNoPrimaryDraft makes versionID primary unless another draft
// already holds the primary flag for the pair. The check and the flip run
// under the pair's lock. It reports whether the version is primary afterwards.
func (s *VersionService) PromoteIfNoPrimaryDraft(ctx context.Context, versionID primitive.ObjectID) (bool, error) {
	v, err := s.GetVersionByID(ctx, versionID)
	if err != nil {
		return false, err
	}
	unlock := s.locks.lock(pairKey(v.ContentID, v.Language))
	defer unlock()

	draft, err := s.GetPrimaryDraftVersion(ctx, v.ContentID, v.Language)
	if err != nil {
		return false, err
	}
	if draft != nil {
		return draft.ID == v.ID, nil
	}
	if err := s.setPrimary(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}

// GetPrimaryDraftVersion returns the primary version of the pair when it is
// still a draft, or nil.
func (s *VersionService) GetPrimaryDraftVersion(ctx context.Context, contentID primitive.ObjectID, language string) (*Version, error) {
	versions, err := s.repo.Find(ctx, bson.M{
		"contentId": contentID,
		"language":  language,
		"isPrimary": true,
		"status":    bson.M{"$nin": []VersionStatus{StatusPublished, StatusPreviouslyPublished}},
	}, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[0], nil
}

// GetPrimaryVersion returns the primary version of the pair.
func (s *VersionService) GetPrimaryVersion(ctx context.Context, contentID primitive.ObjectID, language string) (*Version, error) {
	versions, err := s.repo.Find(ctx, bson.M{
		"contentId": contentID,
		"language":  language,
		"isPrimary": true,
	}, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, notFound("primary version of", contentID.Hex()+"/"+language)
	}
	return versions[0], nil
}

// GetVersionByID returns one version.
func (s *VersionService) GetVersionByID(ctx context.Context, id primitive.ObjectID) (*Version, error) {
	v, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, &VersionError{VersionID: id.Hex(), Op: "get", Err: err}
	}
	return v, nil
}

// GetContentVersion returns versionID only if it belongs to contentID.
func (s *VersionService) GetContentVersion(ctx context.Context, contentID, versionID primitive.ObjectID) (*Version, error) {
	versions, err := s.repo.Find(ctx, bson.M{"_id": versionID, "contentId": contentID}, FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, notFound("version", versionID.Hex())
	}
	return versions[0], nil
}

// ListVersions returns the history of a node, newest first. An empty
// language lists every language.
func (s *VersionService) ListVersions(ctx context.Context, contentID primitive.ObjectID, language string) ([]*Version, error) {
	filter := bson.M{"contentId": contentID}
	if language != "" {
		filter["language"] = language
	}
	return s.repo.Find(ctx, filter, FindOptions{
		Sort: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	})
}

// LatestPerLanguage reduces a node's history to its newest version in each
// language, ordered by language code.
func (s *VersionService) LatestPerLanguage(ctx context.Context, contentID primitive.ObjectID) ([]*Version, error) {
	versions, err := s.repo.Find(ctx, bson.M{"contentId": contentID}, FindOptions{})
	if err != nil {
		return nil, err
	}
	return latestPerLanguage(versions), nil
}

func latestPerLanguage(versions []*Version) []*Version {
	latest := make(map[string]*Version)
	for _, v := range versions {
		prev, ok := latest[v.Language]
		if !ok || prev.CreatedAt.Before(v.CreatedAt) {
			latest[v.Language] = v
		}
	}
	out := make([]*Version, 0, len(latest))
	for _, v := range latest {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// UpdateStatus sets the status of one version.
func (s *VersionService) UpdateStatus(ctx context.Context, id primitive.ObjectID, status VersionStatus) error {
	if err := s.repo.UpdateByID(ctx, id, bson.M{"status": status, "updatedAt": s.now()}); err != nil {
		return &VersionError{VersionID: id.Hex(), Op: "update_status", Err: err}
	}
	return nil
}

// Save persists v as a whole.
func (s *VersionService) Save(ctx context.Context, v *Version) error {
	v.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, v); err != nil {
		return &VersionError{VersionID: v.ID.Hex(), Op: "save", Err: err}
	}
	return nil
}

func pairKey(contentID primitive.ObjectID, language string) string {
	return fmt.Sprintf("%s/%s", contentID.Hex(), language)
}

// keyedMutex serializes work per key within this process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
