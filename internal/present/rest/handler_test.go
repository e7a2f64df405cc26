package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/internal/usecase"
	"github.com/totegamma/graphdoc/schemas"
	"github.com/totegamma/graphdoc/serializer"
)

// --- mocks ---

type mockRecordRepo struct {
	records map[string]map[string]any
}

func (m *mockRecordRepo) Get(ctx context.Context, typ, id string, depth int) (map[string]any, error) {
	r, ok := m.records[typ+"/"+id]
	if !ok {
		return nil, domain.NotFoundError{Resource: typ}
	}
	return r, nil
}

func (m *mockRecordRepo) List(ctx context.Context, typ string, page domain.Page, depth int) ([]map[string]any, error) {
	var out []map[string]any
	for key, r := range m.records {
		if strings.HasPrefix(key, typ+"/") {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) Upsert(ctx context.Context, record domain.Record, links []domain.Link) error {
	m.records[record.Type+"/"+record.ID] = record.Document()
	return nil
}

func (m *mockRecordRepo) Delete(ctx context.Context, typ, id string) error {
	if _, ok := m.records[typ+"/"+id]; !ok {
		return domain.NotFoundError{Resource: typ}
	}
	delete(m.records, typ+"/"+id)
	return nil
}

type mockRealtime struct{}

func (mockRealtime) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Change) {
	<-ctx.Done()
}

// --- tests ---

const schemaYAML = `
types:
  tag:
    type: tags
    attributes: [label]
`

func newServer(t *testing.T) (*echo.Echo, *mockRecordRepo) {
	t.Helper()

	s, err := schemas.Parse([]byte(schemaYAML))
	require.NoError(t, err)
	r := serializer.NewRegistry()
	require.NoError(t, s.Register(r, "https://api.test"))
	b := serializer.NewBuilder(r, serializer.WithBaseURL("https://api.test"))

	repo := &mockRecordRepo{records: map[string]map[string]any{
		"tags/t1": {"id": "t1", "label": "go"},
	}}
	uc := usecase.NewResourceUsecase(repo, s, b)

	e := echo.New()
	NewHandler("https://api.test", s, uc, mockRealtime{}).RegisterRoutes(e)
	return e, repo
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	e.ServeHTTP(res, req)
	return res
}

func TestHandleGet(t *testing.T) {
	e, _ := newServer(t)

	res := serve(e, httptest.NewRequest(http.MethodGet, "/tags/t1", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, graphdoc.MediaType, res.Header().Get(echo.HeaderContentType))
	assert.JSONEq(t, `{
		"links": {"self": "https://api.test/tags/t1"},
		"data": {
			"type": "tags",
			"id": "t1",
			"attributes": {"label": "go"},
			"links": {"self": "https://api.test/tags/t1"}
		}
	}`, res.Body.String())

	etag := res.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/tags/t1", nil)
	req.Header.Set("If-None-Match", etag)
	res = serve(e, req)
	assert.Equal(t, http.StatusNotModified, res.Code)
	assert.Empty(t, res.Body.String())
}

func TestHandleNotFound(t *testing.T) {
	e, _ := newServer(t)

	for _, path := range []string{"/tags/missing", "/invoices/1", "/invoices"} {
		res := serve(e, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, res.Code, path)

		var doc graphdoc.ErrorDocument
		require.NoError(t, json.Unmarshal(res.Body.Bytes(), &doc))
		require.Len(t, doc.Errors, 1)
		assert.Equal(t, "404", doc.Errors[0].Status)
	}
}

func TestHandleList(t *testing.T) {
	e, _ := newServer(t)

	res := serve(e, httptest.NewRequest(http.MethodGet, "/tags?page[size]=5", nil))
	require.Equal(t, http.StatusOK, res.Code)

	var doc graphdoc.Document
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &doc))
	assert.True(t, doc.IsCollection())
	assert.Len(t, doc.Resources(), 1)
	assert.Empty(t, doc.Links.Next)

	res = serve(e, httptest.NewRequest(http.MethodGet, "/tags?page[size]=zero", nil))
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestHandlePutAndDelete(t *testing.T) {
	e, repo := newServer(t)

	body := `{"data":{"type":"tags","id":"t2","attributes":{"label":"sql"}}}`
	req := httptest.NewRequest(http.MethodPut, "/tags/t2", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, graphdoc.MediaType)
	res := serve(e, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "sql", repo.records["tags/t2"]["label"])

	req = httptest.NewRequest(http.MethodPut, "/tags/t3", strings.NewReader(`{"data":{"type":"people","attributes":{}}}`))
	req.Header.Set(echo.HeaderContentType, graphdoc.MediaType)
	res = serve(e, req)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = serve(e, httptest.NewRequest(http.MethodDelete, "/tags/t2", nil))
	assert.Equal(t, http.StatusNoContent, res.Code)
	_, ok := repo.records["tags/t2"]
	assert.False(t, ok)

	res = serve(e, httptest.NewRequest(http.MethodDelete, "/tags/t2", nil))
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestMediaTypeNegotiation(t *testing.T) {
	e, _ := newServer(t)

	req := httptest.NewRequest(http.MethodPut, "/tags/t1", strings.NewReader(`{"data":{"type":"tags","attributes":{}}}`))
	req.Header.Set(echo.HeaderContentType, graphdoc.MediaType+"; charset=utf-8")
	res := serve(e, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/tags/t1", nil)
	req.Header.Set(echo.HeaderAccept, graphdoc.MediaType+"; ext=bulk")
	res = serve(e, req)
	assert.Equal(t, http.StatusNotAcceptable, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/tags/t1", nil)
	req.Header.Set(echo.HeaderAccept, graphdoc.MediaType+"; ext=bulk, "+graphdoc.MediaType)
	res = serve(e, req)
	assert.Equal(t, http.StatusOK, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/tags/t1", nil)
	req.Header.Set(echo.HeaderAccept, "application/json")
	res = serve(e, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestHandleWellKnown(t *testing.T) {
	e, _ := newServer(t)

	res := serve(e, httptest.NewRequest(http.MethodGet, "/.well-known/graphdoc", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{
		"version": "1.0",
		"baseURL": "https://api.test",
		"mediaType": "application/vnd.api+json",
		"types": [{"tag": "tag", "type": "tags", "endpoint": "/tags"}]
	}`, res.Body.String())
}
