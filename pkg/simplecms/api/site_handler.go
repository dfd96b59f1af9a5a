package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// SiteHandler handles HTTP requests for site definitions
type SiteHandler struct {
	sites  *simplecms.SiteService
	logger *slog.Logger
}

// NewSiteHandler creates a new site definition handler
func NewSiteHandler(sites *simplecms.SiteService, logger *slog.Logger) *SiteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteHandler{sites: sites, logger: logger}
}

// Routes returns the routes for site definitions
func (h *SiteHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSites)
	r.Post("/", h.CreateSite)
	r.Get("/current", h.CurrentSite)
	r.Get("/{id}", h.GetSite)
	r.Put("/{id}", h.UpdateSite)

	return r
}

// CurrentSiteResponse is the resolution of a host name
type CurrentSiteResponse struct {
	Host      string `json:"host"`
	StartPage string `json:"startPage"`
	Language  string `json:"language"`
}

// CurrentSite resolves the start page and language for the request host
func (h *SiteHandler) CurrentSite(w http.ResponseWriter, r *http.Request) {
	host := hostOf(r)
	start, language := h.sites.GetCurrentSiteDefinition(r.Context(), host)
	render.JSON(w, r, CurrentSiteResponse{Host: host, StartPage: start, Language: language})
}

// ListSites returns every site definition
func (h *SiteHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, sites)
}

// GetSite returns one site definition
func (h *SiteHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.sites.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, site)
}

// CreateSite creates a site definition
func (h *SiteHandler) CreateSite(w http.ResponseWriter, r *http.Request) {
	var site simplecms.SiteDefinition
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.sites.Create(r.Context(), &site, r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// UpdateSite replaces a site definition
func (h *SiteHandler) UpdateSite(w http.ResponseWriter, r *http.Request) {
	var site simplecms.SiteDefinition
	if err := json.NewDecoder(r.Body).Decode(&site); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := parseObjectID("id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	site.ID = id

	updated, err := h.sites.Update(r.Context(), &site, r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, updated)
}
