package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteHandler(t *testing.T) {
	router := setupRouterTest(t)
	home := createPage(t, router, "", "Home")
	other := createPage(t, router, "", "Other")

	w := do(t, router, http.MethodGet, "/api/site-definitions/current?host=example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	current := decodeMap(t, w)
	assert.Equal(t, "0", current["startPage"])
	assert.Equal(t, "en", current["language"])

	w = do(t, router, http.MethodPost, "/api/site-definitions", map[string]interface{}{
		"name":      "main",
		"startPage": home["_id"],
		"hosts": []map[string]interface{}{
			{"name": "example.com", "language": "en", "isPrimary": true},
			{"name": "example.de", "language": "de"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	site := decodeMap(t, w)
	siteID := site["_id"].(string)

	w = do(t, router, http.MethodGet, "/api/site-definitions/current?host=example.de", nil)
	require.Equal(t, http.StatusOK, w.Code)
	current = decodeMap(t, w)
	assert.Equal(t, home["_id"], current["startPage"])
	assert.Equal(t, "de", current["language"])

	t.Run("Conflicts", func(t *testing.T) {
		w := do(t, router, http.MethodPost, "/api/site-definitions", map[string]interface{}{
			"name":      "main",
			"startPage": other["_id"],
		})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = do(t, router, http.MethodPost, "/api/site-definitions", map[string]interface{}{
			"name":      "second",
			"startPage": other["_id"],
			"hosts":     []map[string]interface{}{{"name": "example.de", "language": "de"}},
		})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = do(t, router, http.MethodPost, "/api/site-definitions", map[string]interface{}{"name": "no start page"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Update", func(t *testing.T) {
		site["name"] = "renamed"
		w := do(t, router, http.MethodPut, "/api/site-definitions/"+siteID, site)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = do(t, router, http.MethodGet, "/api/site-definitions/"+siteID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "renamed", decodeMap(t, w)["name"])

		w = do(t, router, http.MethodGet, "/api/site-definitions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeList(t, w), 1)
	})
}
