package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcaldia-digital/memoria/internal/profile"
	apiv1 "github.com/alcaldia-digital/memoria/server/router/api/v1"
	"github.com/alcaldia-digital/memoria/store"
	"github.com/alcaldia-digital/memoria/store/db/sqlite"
)

// newTestAPI builds an echo instance with the memory routes mounted on a
// real sqlite-backed store.
func newTestAPI(t *testing.T) *echo.Echo {
	t.Helper()

	testProfile := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "memoria_test.db"),
	}
	driver, err := sqlite.NewDB(testProfile)
	require.NoError(t, err)

	s := store.New(driver, testProfile)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	e := echo.New()
	apiv1.NewAPIV1Service(testProfile, s).RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUpsertMemories_Handler(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/user-1/memories", `{
		"memories": [
			{"type": "health", "content": "takes blood pressure medication", "importance": 4},
			{"type": "pref", "content": ""}
		]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Upserted int `json:"upserted"`
		Rejected []struct {
			Index  int    `json:"index"`
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Upserted)
	require.Len(t, response.Rejected, 1)
	assert.Equal(t, 1, response.Rejected[0].Index)
	assert.Contains(t, response.Rejected[0].Reason, "content")
}

func TestUpsertMemories_Handler_NullItem(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/user-1/memories", `{
		"memories": [null, {"type": "pref", "content": "likes tea"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, "a null element is rejected per-item, never a 500")

	var response struct {
		Upserted int `json:"upserted"`
		Rejected []struct {
			Index  int    `json:"index"`
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Upserted)
	require.Len(t, response.Rejected, 1)
	assert.Equal(t, 0, response.Rejected[0].Index)
}

func TestUpsertMemories_Handler_MalformedBody(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/user-1/memories", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTopMemories_Handler(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/user-1/memories", `{
		"memories": [{"type": "health", "content": "takes blood pressure medication", "importance": 4}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/users/user-1/memories?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Memories []struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		} `json:"memories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Memories, 1)
	assert.Equal(t, "health", response.Memories[0].Type)
	assert.Equal(t, "takes blood pressure medication", response.Memories[0].Content)
}

func TestGetTopMemories_Handler_EmptyIsOK(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/users/nobody/memories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"memories": []}`, rec.Body.String())
}

func TestGetTopMemories_Handler_BadLimit(t *testing.T) {
	e := newTestAPI(t)

	for _, limit := range []string{"abc", "0", "-3"} {
		rec := doJSON(e, http.MethodGet, "/api/v1/users/user-1/memories?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestConversationSummary_Handlers(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodGet, "/api/v1/users/user-1/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "absent before first save")

	rec = doJSON(e, http.MethodPut, "/api/v1/users/user-1/summary", `{"summary": "talked about the garden"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/v1/users/user-1/summary", `{"summary": "talked about grandchildren"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/users/user-1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Summary string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "talked about grandchildren", response.Summary, "last writer wins")
}

func TestConversationSummary_Handler_RejectsEmpty(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPut, "/api/v1/users/user-1/summary", `{"summary": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurgeUser_Handler(t *testing.T) {
	e := newTestAPI(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/users/user-1/memories", `{
		"memories": [{"type": "pref", "content": "likes tea"}]
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(e, http.MethodPut, "/api/v1/users/user-1/summary", `{"summary": "talked about tea"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/users/user-1/memory", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/v1/users/user-1/memories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"memories": []}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/v1/users/user-1/summary", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
