package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"go.mongodb.org/mongo-driver/bson"
)

// UserHeader carries the id of the acting user. Authentication happens upstream.
const UserHeader = "X-User-ID"

type ctxKey int

const serviceKey ctxKey = iota

// ContentHandler handles HTTP requests for every registered content kind
type ContentHandler struct {
	registry *simplecms.Registry
	logger   *slog.Logger
}

// NewContentHandler creates a new content handler
func NewContentHandler(registry *simplecms.Registry, logger *slog.Logger) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{registry: registry, logger: logger}
}

// Routes returns the routes for one content kind, mounted under /{kind}
func (h *ContentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.kindContext)

	r.Post("/", h.CreateContent)
	r.Post("/folders", h.CreateFolder)
	r.Get("/folders/{parentId}/children", h.GetFolderChildren)
	r.Post("/query", h.QueryContent)
	r.Post("/items", h.GetContentItems)

	r.Get("/{id}", h.GetContent)
	r.Delete("/{id}", h.MoveToTrash)
	r.Get("/{id}/children", h.GetContentChildren)
	r.Get("/{id}/ancestors", h.GetAncestors)
	r.Post("/{id}/copy", h.CopyContent)
	r.Post("/{id}/cut", h.CutContent)

	// Versions
	r.Get("/{id}/version", h.GetContentVersion)
	r.Get("/{id}/versions", h.ListVersions)
	r.Get("/{id}/versions/{versionId}", h.GetContentVersion)
	r.Put("/{id}/versions/{versionId}", h.UpdateContent)
	r.Post("/{id}/versions/{versionId}/publish", h.PublishContent)

	return r
}

func (h *ContentHandler) kindContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := simplecms.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		svc, err := h.registry.Service(kind)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), serviceKey, svc)))
	})
}

func serviceFrom(r *http.Request) simplecms.Service {
	return r.Context().Value(serviceKey).(simplecms.Service)
}

// CreateContentRequest is the request body for creating a content node
type CreateContentRequest struct {
	ParentID    string `json:"parentId"`
	ContentType string `json:"contentType"`
	Language    string `json:"language"`
	simplecms.ContentInput
}

// CreateContent creates a typed node with its first draft version
func (h *ContentHandler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := serviceFrom(r).ExecuteCreateContentFlow(r.Context(), simplecms.CreateContentRequest{
		ParentID:    req.ParentID,
		ContentType: req.ContentType,
		Language:    req.Language,
		UserID:      r.Header.Get(UserHeader),
		Input:       req.ContentInput,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, doc)
}

// CreateFolderRequest is the request body for creating a folder
type CreateFolderRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// CreateFolder creates a folder node
func (h *ContentHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	folder, err := serviceFrom(r).ExecuteCreateFolderFlow(r.Context(), simplecms.CreateFolderRequest{
		ParentID: req.ParentID,
		Name:     req.Name,
		Language: req.Language,
		UserID:   r.Header.Get(UserHeader),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, folder)
}

// GetFolderChildren lists the folders below a parent; "0" is the root
func (h *ContentHandler) GetFolderChildren(w http.ResponseWriter, r *http.Request) {
	docs, err := serviceFrom(r).GetFolderChildren(r.Context(), chi.URLParam(r, "parentId"), r.URL.Query().Get("language"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, docs)
}

// QueryContentRequest is the request body for a content query
type QueryContentRequest struct {
	Filter  bson.M      `json:"filter"`
	Project interface{} `json:"project"`
	Sort    interface{} `json:"sort"`
	Page    int64       `json:"page"`
	Limit   int64       `json:"limit"`
}

// QueryContent runs a filtered, projected, sorted and optionally paginated query
func (h *ContentHandler) QueryContent(w http.ResponseWriter, r *http.Request) {
	var req QueryContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := serviceFrom(r).QueryContent(r.Context(), simplecms.QueryRequest{
		Filter:  req.Filter,
		Project: req.Project,
		Sort:    req.Sort,
		Page:    req.Page,
		Limit:   req.Limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, res)
}

// GetContentItemsRequest is the request body for a batch item fetch
type GetContentItemsRequest struct {
	IDs          []string `json:"ids"`
	Language     string   `json:"language"`
	Statuses     []int    `json:"statuses"`
	Project      bson.M   `json:"project"`
	DeepPopulate bool     `json:"deepPopulate"`
	Depth        int      `json:"depth"`
}

const maxItemsPerRequest = 100

// GetContentItems fetches several nodes in one language, in request order
func (h *ContentHandler) GetContentItems(w http.ResponseWriter, r *http.Request) {
	var req GetContentItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.IDs) > maxItemsPerRequest {
		http.Error(w, "Too many ids, maximum is "+strconv.Itoa(maxItemsPerRequest), http.StatusBadRequest)
		return
	}

	statuses := make([]simplecms.VersionStatus, 0, len(req.Statuses))
	for _, s := range req.Statuses {
		statuses = append(statuses, simplecms.VersionStatus(s))
	}

	docs, err := serviceFrom(r).GetContentItems(r.Context(), simplecms.GetContentItemsRequest{
		IDs:          req.IDs,
		Language:     req.Language,
		Statuses:     statuses,
		Project:      req.Project,
		DeepPopulate: req.DeepPopulate,
		Depth:        req.Depth,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, docs)
}

// GetContent returns one node flattened with a language record.
// Query: language, status (comma separated names or numbers), select.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statuses, err := simplecms.ParseVersionStatuses(q.Get("status"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	doc, err := serviceFrom(r).GetContent(r.Context(), chi.URLParam(r, "id"), q.Get("language"), statuses, q.Get("select"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// GetContentVersion returns a node merged with one version, or with the
// primary version of the language when no version id is given.
func (h *ContentHandler) GetContentVersion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc, err := serviceFrom(r).GetContentVersion(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "versionId"), q.Get("language"), hostOf(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// GetContentChildren lists typed children; the id "0" is the root
func (h *ContentHandler) GetContentChildren(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := serviceFrom(r).GetContentChildren(r.Context(),
		chi.URLParam(r, "id"), q.Get("language"), hostOf(r), q.Get("select"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, docs)
}

// GetAncestors lists the ancestors of a node, root first
func (h *ContentHandler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := serviceFrom(r).GetAncestors(r.Context(),
		chi.URLParam(r, "id"), q.Get("language"), hostOf(r), q.Get("select"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, docs)
}

// ListVersions returns the version history of a node, newest first
func (h *ContentHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := parseObjectID("contentId", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	versions, err := serviceFrom(r).Versions().ListVersions(r.Context(), id, r.URL.Query().Get("language"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, versions)
}

// UpdateContent saves a version; the body is the edited fields
func (h *ContentHandler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var input simplecms.ContentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doc, err := serviceFrom(r).ExecuteUpdateContentFlow(r.Context(), simplecms.UpdateContentRequest{
		ContentID: chi.URLParam(r, "id"),
		VersionID: chi.URLParam(r, "versionId"),
		UserID:    r.Header.Get(UserHeader),
		Input:     input,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// PublishContent makes a version live
func (h *ContentHandler) PublishContent(w http.ResponseWriter, r *http.Request) {
	doc, err := serviceFrom(r).ExecutePublishContentFlow(r.Context(), simplecms.PublishContentRequest{
		ContentID: chi.URLParam(r, "id"),
		VersionID: chi.URLParam(r, "versionId"),
		UserID:    r.Header.Get(UserHeader),
		Host:      hostOf(r),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, doc)
}

// MoveToTrash soft-deletes a node and its subtree
func (h *ContentHandler) MoveToTrash(w http.ResponseWriter, r *http.Request) {
	content, err := serviceFrom(r).ExecuteMoveContentToTrashFlow(r.Context(), chi.URLParam(r, "id"), r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, content)
}

// TargetRequest is the request body for copy and cut
type TargetRequest struct {
	// TargetParentID is empty or "0" for the root.
	TargetParentID string `json:"targetParentId"`
}

// CopyContent copies a subtree below a new parent
func (h *ContentHandler) CopyContent(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := serviceFrom(r).ExecuteCopyContentFlow(r.Context(), chi.URLParam(r, "id"), req.TargetParentID, r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}

// CutContent moves a subtree below a new parent
func (h *ContentHandler) CutContent(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := serviceFrom(r).ExecuteCutContentFlow(r.Context(), chi.URLParam(r, "id"), req.TargetParentID, r.Header.Get(UserHeader))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, res)
}

// hostOf prefers an explicit host query parameter over the request host.
func hostOf(r *http.Request) string {
	if h := r.URL.Query().Get("host"); h != "" {
		return h
	}
	host := r.Host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}
