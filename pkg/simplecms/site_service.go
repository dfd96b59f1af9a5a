package simplecms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SiteCachePrefix prefixes every cached host resolution.
const SiteCachePrefix = "SiteDefinition"

// RootStartPageID is returned as start page when no site is configured.
const RootStartPageID = "0"

// SiteService manages site definitions and resolves host names into a
// start page and a default language.
type SiteService struct {
	repo      SiteRepository
	pages     ContentRepository
	cache     Cache
	languages []string
	logger    *slog.Logger
	now       func() time.Time
}

// SiteOption configures a SiteService
type SiteOption func(*SiteService)

// WithSiteCache sets the cache holding host resolutions
func WithSiteCache(c Cache) SiteOption {
	return func(s *SiteService) {
		s.cache = c
	}
}

// WithStartPages lets resolution check that the start page is still live
func WithStartPages(pages ContentRepository) SiteOption {
	return func(s *SiteService) {
		s.pages = pages
	}
}

// WithDefaultLanguages sets the enabled languages; the first one is the
// fallback when no site resolves
func WithDefaultLanguages(languages ...string) SiteOption {
	return func(s *SiteService) {
		s.languages = languages
	}
}

// WithSiteLogger sets the logger
func WithSiteLogger(logger *slog.Logger) SiteOption {
	return func(s *SiteService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSiteClock overrides the time source
func WithSiteClock(now func() time.Time) SiteOption {
	return func(s *SiteService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSiteService creates a site service over repo.
func NewSiteService(repo SiteRepository, opts ...SiteOption) *SiteService {
	s := &SiteService{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type siteResolution struct {
	startPageID string
	language    string
}

// GetCurrentSiteDefinition returns the start page id and default language
// for host. An empty host resolves to the oldest site. When nothing
// resolves it returns RootStartPageID and the first enabled language.
func (s *SiteService) GetCurrentSiteDefinition(ctx context.Context, host string) (string, string) {
	key := SiteCachePrefix + ":" + host
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if r, ok := v.(siteResolution); ok {
				return r.startPageID, r.language
			}
		}
	}

	r, err := s.resolve(ctx, host)
	if err != nil {
		s.logger.ErrorContext(ctx, "site definition must be configured", "host", host, "error", err)
		r = siteResolution{startPageID: RootStartPageID}
		if len(s.languages) > 0 {
			r.language = s.languages[0]
		}
	}

	if s.cache != nil {
		s.cache.Set(key, r)
	}
	return r.startPageID, r.language
}

func (s *SiteService) resolve(ctx context.Context, host string) (siteResolution, error) {
	filter := bson.M{}
	if host != "" {
		filter["hosts.name"] = host
	}
	sites, err := s.repo.Find(ctx, filter, FindOptions{
		Sort:  bson.D{{Key: "createdAt", Value: 1}},
		Limit: 1,
	})
	if err != nil {
		return siteResolution{}, err
	}
	if len(sites) == 0 {
		return siteResolution{}, notFound("site definition for host", host)
	}
	site := sites[0]

	if s.pages != nil {
		page, err := s.pages.FindByID(ctx, site.StartPage)
		if err != nil {
			return siteResolution{}, err
		}
		if page.IsDeleted {
			return siteResolution{}, notFound("start page", site.StartPage.Hex())
		}
	}

	h := hostWithFallback(site, host)
	if h == nil {
		return siteResolution{}, notFound("host", host)
	}
	return siteResolution{startPageID: site.StartPage.Hex(), language: h.Language}, nil
}

// hostWithFallback picks the named host, or else the primary host, or else
// the first one.
func hostWithFallback(site *SiteDefinition, name string) *HostDefinition {
	if name != "" {
		for i := range site.Hosts {
			if site.Hosts[i].Name == name {
				return &site.Hosts[i]
			}
		}
		return nil
	}
	for i := range site.Hosts {
		if site.Hosts[i].IsPrimary {
			return &site.Hosts[i]
		}
	}
	if len(site.Hosts) > 0 {
		return &site.Hosts[0]
	}
	return nil
}

// Create validates and stores a new site definition.
func (s *SiteService) Create(ctx context.Context, site *SiteDefinition, userID string) (*SiteDefinition, error) {
	uid, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, site, nil); err != nil {
		return nil, err
	}

	s.invalidate()
	now := s.now()
	site.ID = primitive.NewObjectID()
	site.CreatedBy = uid
	site.CreatedAt = now
	site.UpdatedBy = uid
	site.UpdatedAt = now
	if err := s.repo.Create(ctx, site); err != nil {
		return nil, &SiteError{Site: site.Name, Op: "create", Err: err}
	}
	s.logger.InfoContext(ctx, "site definition created", "site_id", site.ID.Hex(), "name", site.Name)
	return site, nil
}

// Update validates and replaces an existing site definition.
func (s *SiteService) Update(ctx context.Context, site *SiteDefinition, userID string) (*SiteDefinition, error) {
	uid, err := parseID("userId", userID)
	if err != nil {
		return nil, err
	}
	if site.ID.IsZero() {
		return nil, validationError("_id", errors.New("cannot be blank"))
	}
	existing, err := s.repo.FindByID(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, site, &site.ID); err != nil {
		return nil, err
	}

	s.invalidate()
	site.CreatedBy = existing.CreatedBy
	site.CreatedAt = existing.CreatedAt
	site.UpdatedBy = uid
	site.UpdatedAt = s.now()
	if err := s.repo.Save(ctx, site); err != nil {
		return nil, &SiteError{Site: site.Name, Op: "update", Err: err}
	}
	s.logger.InfoContext(ctx, "site definition updated", "site_id", site.ID.Hex(), "name", site.Name)
	return site, nil
}

// Get returns one site definition.
func (s *SiteService) Get(ctx context.Context, id string) (*SiteDefinition, error) {
	sid, err := parseID("siteId", id)
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, sid)
}

// List returns every site definition, oldest first.
func (s *SiteService) List(ctx context.Context) ([]*SiteDefinition, error) {
	return s.repo.Find(ctx, bson.M{}, FindOptions{Sort: bson.D{{Key: "createdAt", Value: 1}}})
}

func (s *SiteService) invalidate() {
	if s.cache != nil {
		s.cache.DeleteStartWith(SiteCachePrefix)
	}
}

func (s *SiteService) validate(ctx context.Context, site *SiteDefinition, self *primitive.ObjectID) error {
	if err := validation.ValidateStruct(site,
		validation.Field(&site.Name, validation.Required),
		validation.Field(&site.StartPage, validation.By(func(interface{}) error {
			if site.StartPage.IsZero() {
				return errors.New("cannot be blank")
			}
			return nil
		})),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	filter := bson.M{}
	if self != nil {
		filter["_id"] = bson.M{"$ne": *self}
	}
	others, err := s.repo.Find(ctx, filter, FindOptions{})
	if err != nil {
		return err
	}

	fail := func(err error, detail string) error {
		return &SiteError{Site: site.Name, Op: "validate", Err: fmt.Errorf("%w: %s", err, detail)}
	}

	for _, other := range others {
		if other.Name == site.Name {
			return fail(ErrDuplicateSiteName, site.Name)
		}
		if other.StartPage == site.StartPage {
			return fail(ErrDuplicateStartPage, site.StartPage.Hex())
		}
	}

	names := make(map[string]bool, len(site.Hosts))
	primaries := make(map[string]int)
	for _, h := range site.Hosts {
		if names[h.Name] {
			return fail(ErrDuplicateHostName, h.Name)
		}
		names[h.Name] = true
		if h.IsPrimary {
			primaries[h.Language]++
			if primaries[h.Language] > 1 {
				return fail(ErrMultiplePrimaryHost, h.Language)
			}
		}
	}

	for _, h := range site.Hosts {
		for _, other := range others {
			for _, used := range other.Hosts {
				if used.Name == h.Name {
					return fail(ErrHostNameAlreadyUsed, h.Name+" (site "+other.Name+")")
				}
			}
		}
	}
	return nil
}
