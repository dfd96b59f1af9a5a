package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testUserID = primitive.NewObjectID().Hex()

// setupRouterTest builds the full router over in-memory repositories
func setupRouterTest(t *testing.T) chi.Router {
	t.Helper()
	cfg, err := config.Load(config.WithDefaultLanguages("en", "de"), config.WithEventLogging(false))
	require.NoError(t, err)

	rt, err := cfg.BuildRegistry(context.Background(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	return NewRouter(rt.Registry, rt.Sites, nil)
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(UserHeader, testUserID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func createPage(t *testing.T, router http.Handler, parentID, name string) map[string]interface{} {
	t.Helper()
	w := do(t, router, http.MethodPost, "/api/page", map[string]interface{}{
		"parentId":    parentID,
		"contentType": "StandardPage",
		"language":    "en",
		"name":        name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeMap(t, w)
}

func TestContentHandler_CreateAndPublish(t *testing.T) {
	router := setupRouterTest(t)

	page := createPage(t, router, "", "About Us")
	id := page["_id"].(string)
	versionID := page["versionId"].(string)
	assert.Equal(t, "about-us", page["urlSegment"])
	assert.Equal(t, float64(2), page["status"])

	w := do(t, router, http.MethodPut, "/api/page/"+id+"/versions/"+versionID, map[string]interface{}{"name": "About"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "About", decodeMap(t, w)["name"])

	w = do(t, router, http.MethodPost, "/api/page/"+id+"/versions/"+versionID+"/publish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(4), decodeMap(t, w)["status"])

	w = do(t, router, http.MethodGet, "/api/page/"+id+"?language=en&status=published", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeMap(t, w)
	assert.Equal(t, "About", got["name"])
	assert.NotContains(t, got, "contentLanguages")

	w = do(t, router, http.MethodGet, "/api/page/"+id+"/version?language=en", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, versionID, decodeMap(t, w)["versionId"])

	w = do(t, router, http.MethodGet, "/api/page/"+id+"/versions?language=en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)
}

func TestContentHandler_Errors(t *testing.T) {
	router := setupRouterTest(t)
	page := createPage(t, router, "", "Home")
	id := page["_id"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown kind", http.MethodGet, "/api/widget/" + id, nil, http.StatusNotFound},
		{"invalid id", http.MethodGet, "/api/page/not-an-id", nil, http.StatusBadRequest},
		{"missing content", http.MethodGet, "/api/page/" + primitive.NewObjectID().Hex(), nil, http.StatusNotFound},
		{"missing content type", http.MethodPost, "/api/page", map[string]string{"language": "en"}, http.StatusBadRequest},
		{"unknown version", http.MethodPut, "/api/page/" + id + "/versions/" + primitive.NewObjectID().Hex(), map[string]string{}, http.StatusNotFound},
		{"cut into itself", http.MethodPost, "/api/page/" + id + "/cut", map[string]string{"targetParentId": id}, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/page/" + id + "?status=live", nil, http.StatusBadRequest},
		{"negative page", http.MethodPost, "/api/page/query", map[string]interface{}{"page": -1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeMap(t, w)["error"])
		})
	}

	t.Run("missing user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/page/"+id, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestContentHandler_Tree(t *testing.T) {
	router := setupRouterTest(t)

	w := do(t, router, http.MethodPost, "/api/page/folders", map[string]string{"name": "Archive", "language": "en"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	folderID := decodeMap(t, w)["_id"].(string)

	home := createPage(t, router, "", "Home")
	homeID := home["_id"].(string)
	child := createPage(t, router, homeID, "Child")
	childID := child["_id"].(string)

	w = do(t, router, http.MethodGet, "/api/page/0/children?language=en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1, "folders are not content children")

	w = do(t, router, http.MethodGet, "/api/page/folders/0/children?language=en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	folders := decodeList(t, w)
	require.Len(t, folders, 1)
	assert.Equal(t, "Archive", folders[0]["name"])

	w = do(t, router, http.MethodGet, "/api/page/"+childID+"/ancestors?language=en", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ancestors := decodeList(t, w)
	require.Len(t, ancestors, 1)
	assert.Equal(t, homeID, ancestors[0]["_id"])

	w = do(t, router, http.MethodPost, "/api/page/"+homeID+"/copy", map[string]string{"targetParentId": folderID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, float64(2), decodeMap(t, w)["copied"])

	w = do(t, router, http.MethodPost, "/api/page/"+childID+"/cut", map[string]string{"targetParentId": folderID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/page/query", map[string]interface{}{
		"filter": map[string]interface{}{"parentId": folderID, "language": "en"},
		"sort":   "name",
		"page":   1,
		"limit":  10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeMap(t, w)
	assert.Equal(t, float64(2), res["total"])
	docs := res["docs"].([]interface{})
	assert.Equal(t, "Child", docs[0].(map[string]interface{})["name"])

	w = do(t, router, http.MethodPost, "/api/page/items", map[string]interface{}{
		"ids":      []string{childID, homeID},
		"language": "en",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items := decodeList(t, w)
	require.Len(t, items, 2)
	assert.Equal(t, childID, items[0]["_id"])

	w = do(t, router, http.MethodDelete, "/api/page/"+homeID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeMap(t, w)["isDeleted"])

	w = do(t, router, http.MethodGet, "/api/page/"+homeID+"?language=en", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
