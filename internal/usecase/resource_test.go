package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/pagination"
	"github.com/totegamma/graphdoc/schemas"
	"github.com/totegamma/graphdoc/serializer"
)

const schemaYAML = `
types:
  department:
    type: departments
    attributes: [name]
  employee:
    type: employees
    attributes: [name]
    meta: [rev]
    relationships:
      - {key: department, kind: one, target: department}
      - {key: skills, kind: many, target: skill}
      - {key: manager, kind: identifier, target: employee}
  skill:
    type: skills
    attributes: [label]
`

type mockRecordRepo struct {
	records  map[string]map[string]any
	page     domain.Page
	upserted domain.Record
	links    []domain.Link
	deleted  string
	gets     int
}

func (m *mockRecordRepo) Get(ctx context.Context, typ, id string, depth int) (map[string]any, error) {
	m.gets++
	r, ok := m.records[typ+"/"+id]
	if !ok {
		return nil, domain.NotFoundError{Resource: typ}
	}
	return r, nil
}

func (m *mockRecordRepo) List(ctx context.Context, typ string, page domain.Page, depth int) ([]map[string]any, error) {
	m.page = page
	return []map[string]any{
		{"id": "e1", "name": "ada"},
		{"id": "e2", "name": "bob"},
	}, nil
}

func (m *mockRecordRepo) Upsert(ctx context.Context, record domain.Record, links []domain.Link) error {
	m.upserted = record
	m.links = links
	value := record.Document()
	m.records[record.Type+"/"+record.ID] = value
	return nil
}

func (m *mockRecordRepo) Delete(ctx context.Context, typ, id string) error {
	if _, ok := m.records[typ+"/"+id]; !ok {
		return domain.NotFoundError{Resource: typ}
	}
	m.deleted = typ + "/" + id
	return nil
}

type mockCache struct {
	items       map[string][]byte
	invalidated int
}

func (m *mockCache) key(parts []string) string {
	b, _ := json.Marshal(parts)
	return string(b)
}

func (m *mockCache) Get(ctx context.Context, parts ...string) ([]byte, string, bool, error) {
	key := m.key(parts)
	v, ok := m.items[key]
	return v, key, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte) error {
	m.items[key] = value
	return nil
}

func (m *mockCache) Invalidate(ctx context.Context) error {
	m.invalidated++
	m.items = map[string][]byte{}
	return nil
}

type mockSignal struct {
	changes []domain.Change
}

func (m *mockSignal) Publish(ctx context.Context, change domain.Change) error {
	m.changes = append(m.changes, change)
	return nil
}

func newUsecase(t *testing.T, repo *mockRecordRepo, opts ...ResourceOption) *ResourceUsecase {
	t.Helper()
	s, err := schemas.Parse([]byte(schemaYAML))
	require.NoError(t, err)

	r := serializer.NewRegistry()
	require.NoError(t, s.Register(r, "https://api.test"))
	b := serializer.NewBuilder(r, serializer.WithBaseURL("https://api.test"))

	return NewResourceUsecase(repo, s, b, opts...)
}

func TestResourceUsecaseGet(t *testing.T) {
	repo := &mockRecordRepo{records: map[string]map[string]any{
		"employees/e1": {
			"id":         "e1",
			"name":       "ada",
			"rev":        2,
			"manager_id": "e0",
			"department": map[string]any{"id": "d1", "name": "Research"},
		},
	}}
	cache := &mockCache{items: map[string][]byte{}}
	uc := newUsecase(t, repo, WithDocumentCache(cache))

	body, err := uc.Get(context.Background(), "employees", "e1", true)
	require.NoError(t, err)

	var doc graphdoc.Document
	require.NoError(t, json.Unmarshal(body, &doc))
	data := doc.Data.(graphdoc.Resource)
	assert.Equal(t, "e1", data.ID)
	rev, _ := data.Meta.Get("rev")
	assert.Equal(t, float64(2), rev)
	_, ok := doc.Find("departments", "d1")
	assert.True(t, ok)

	again, err := uc.Get(context.Background(), "employees", "e1", true)
	require.NoError(t, err)
	assert.Equal(t, body, again)
	assert.Equal(t, 1, repo.gets)
}

func TestResourceUsecaseGetCachesWithoutManager(t *testing.T) {
	repo := &mockRecordRepo{records: map[string]map[string]any{
		"employees/e1": {"id": "e1", "name": "ceo"},
	}}
	cache := &mockCache{items: map[string][]byte{}}
	uc := newUsecase(t, repo, WithDocumentCache(cache))

	body, err := uc.Get(context.Background(), "employees", "e1", false)
	require.NoError(t, err)
	assert.NotContains(t, string(body), `"manager"`)

	_, err = uc.Get(context.Background(), "employees", "e1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets)
	assert.Len(t, cache.items, 1)
}

func TestResourceUsecaseGetNotFound(t *testing.T) {
	uc := newUsecase(t, &mockRecordRepo{records: map[string]map[string]any{}})

	_, err := uc.Get(context.Background(), "employees", "missing", false)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = uc.Get(context.Background(), "invoices", "1", false)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResourceUsecaseList(t *testing.T) {
	repo := &mockRecordRepo{records: map[string]map[string]any{}}
	uc := newUsecase(t, repo, WithPageDefaults(pagination.Defaults{Size: 2, MaxSize: 10}))

	query := url.Values{"page[after]": {"e0"}, "fields[employees]": {"name"}}
	body, err := uc.List(context.Background(), "employees", query)
	require.NoError(t, err)

	assert.Equal(t, domain.Page{After: "e0", Limit: 2}, repo.page)

	var doc graphdoc.Document
	require.NoError(t, json.Unmarshal(body, &doc))
	require.True(t, doc.IsCollection())
	assert.Len(t, doc.Resources(), 2)

	next, err := url.Parse(doc.Links.Next)
	require.NoError(t, err)
	assert.Equal(t, "e2", next.Query().Get("page[after]"))
	prev, err := url.Parse(doc.Links.Prev)
	require.NoError(t, err)
	assert.Equal(t, "e1", prev.Query().Get("page[before]"))

	_, err = uc.List(context.Background(), "employees", url.Values{"page[size]": {"x"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestResourceUsecasePut(t *testing.T) {
	repo := &mockRecordRepo{records: map[string]map[string]any{}}
	cache := &mockCache{items: map[string][]byte{}}
	signal := &mockSignal{}
	uc := newUsecase(t, repo, WithDocumentCache(cache), WithSignal(signal))

	body := []byte(`{"data":{
		"type":"employees",
		"id":"e1",
		"attributes":{"name":"ada"},
		"relationships":{
			"department":{"data":{"type":"departments","id":"d1"}},
			"skills":{"data":[{"type":"skills","id":"s1"},{"type":"skills","id":"s2"}]}
		}
	}}`)

	out, err := uc.Put(context.Background(), "employees", "e1", body)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"id":"e1"`)

	assert.Equal(t, map[string]any{"name": "ada"}, repo.upserted.Value)
	assert.Equal(t, []domain.Link{
		{Field: "department", Type: "departments", IDs: []string{"d1"}},
		{Field: "skills", Type: "skills", IDs: []string{"s1", "s2"}, Many: true},
	}, repo.links)

	assert.Equal(t, 1, cache.invalidated)
	require.Len(t, signal.changes, 1)
	assert.Equal(t, domain.ChangeOpPut, signal.changes[0].Op)
	assert.Equal(t, "employee", signal.changes[0].Tag)
}

func TestResourceUsecasePutRejects(t *testing.T) {
	uc := newUsecase(t, &mockRecordRepo{records: map[string]map[string]any{}})

	for name, body := range map[string]string{
		"malformed":   `{`,
		"collection":  `{"data":[]}`,
		"wrong type":  `{"data":{"type":"skills","id":"e1","attributes":{}}}`,
		"wrong id":    `{"data":{"type":"employees","id":"e2","attributes":{}}}`,
		"unknown rel": `{"data":{"type":"employees","attributes":{},"relationships":{"boss":{"data":null}}}}`,
		"identifier":  `{"data":{"type":"employees","attributes":{},"relationships":{"manager":{"data":{"type":"employees","id":"e0"}}}}}`,
		"many on one": `{"data":{"type":"employees","attributes":{},"relationships":{"department":{"data":[]}}}}`,
		"mixed types": `{"data":{"type":"employees","attributes":{},"relationships":{"skills":{"data":[{"type":"skills","id":"1"},{"type":"tags","id":"2"}]}}}}`,
	} {
		_, err := uc.Put(context.Background(), "employees", "e1", []byte(body))
		assert.True(t, errors.Is(err, domain.ErrInvalidInput), name)
	}
}

func TestResourceUsecaseDelete(t *testing.T) {
	repo := &mockRecordRepo{records: map[string]map[string]any{"employees/e1": {"id": "e1"}}}
	signal := &mockSignal{}
	uc := newUsecase(t, repo, WithSignal(signal))

	require.NoError(t, uc.Delete(context.Background(), "employees", "e1"))
	assert.Equal(t, "employees/e1", repo.deleted)
	require.Len(t, signal.changes, 1)
	assert.Equal(t, domain.ChangeOpDelete, signal.changes[0].Op)

	err := uc.Delete(context.Background(), "employees", "e9")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Len(t, signal.changes, 1)
}
