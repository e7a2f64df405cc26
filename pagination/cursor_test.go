package pagination

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string, d Defaults) *Cursor {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	c, err := Parse(q, d)
	require.NoError(t, err)
	return c
}

func TestParse(t *testing.T) {
	c := parse(t, "page[size]=5&include=people,tags&fields[people]=name,%20email&fields[tags]=", Defaults{})
	assert.Equal(t, 5, c.Size())
	assert.Equal(t, []string{"people", "tags"}, c.IncludedTypes())

	fields, ok := c.IncludedFields("people")
	assert.True(t, ok)
	assert.Equal(t, []string{"name", "email"}, fields)

	fields, ok = c.IncludedFields("tags")
	assert.True(t, ok)
	assert.Empty(t, fields)

	_, ok = c.IncludedFields("articles")
	assert.False(t, ok)
}

func TestParseDefaults(t *testing.T) {
	c := parse(t, "", Defaults{})
	assert.Equal(t, 20, c.Size())
	assert.Empty(t, c.IncludedTypes())

	c = parse(t, "page[size]=500", Defaults{Size: 10, MaxSize: 50})
	assert.Equal(t, 50, c.Size())

	c = parse(t, "page[after]=k", Defaults{Size: 10})
	assert.Equal(t, 10, c.Size())
	assert.Equal(t, "k", c.After())
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{
		"page[size]=abc",
		"page[size]=0",
		"page[size]=-2",
		"page[after]=a&page[before]=b",
	} {
		q, _ := url.ParseQuery(raw)
		_, err := Parse(q, Defaults{})
		assert.True(t, errors.Is(err, ErrInvalidPage), raw)
	}
}

func TestGenerateLinks(t *testing.T) {
	data := []any{
		map[string]any{"id": "a"},
		map[string]any{"id": "b"},
	}

	c := parse(t, "page[size]=2", Defaults{})
	links, err := c.GenerateLinks(context.Background(), data, "https://api.test/people?sort=name")
	require.NoError(t, err)

	self, _ := url.Parse(links.Self)
	assert.Equal(t, "2", self.Query().Get("page[size]"))
	assert.Equal(t, "name", self.Query().Get("sort"))
	assert.Empty(t, self.Query().Get("page[after]"))

	next, _ := url.Parse(links.Next)
	assert.Equal(t, "b", next.Query().Get("page[after]"))
	assert.Empty(t, links.Previous)

	c = parse(t, "page[size]=2&page[after]=x", Defaults{})
	links, err = c.GenerateLinks(context.Background(), data, "https://api.test/people?page[after]=x")
	require.NoError(t, err)

	self, _ = url.Parse(links.Self)
	assert.Equal(t, "x", self.Query().Get("page[after]"))
	prev, _ := url.Parse(links.Previous)
	assert.Equal(t, "a", prev.Query().Get("page[before]"))
	assert.Empty(t, prev.Query().Get("page[after]"))
}

func TestGenerateLinksEmptyPage(t *testing.T) {
	c := parse(t, "page[before]=m", Defaults{})
	links, err := c.GenerateLinks(context.Background(), nil, "https://api.test/people")
	require.NoError(t, err)
	assert.NotEmpty(t, links.Self)
	assert.Empty(t, links.Next)
	assert.Empty(t, links.Previous)
}

func TestGenerateLinksShortPage(t *testing.T) {
	data := []any{map[string]any{"id": "a"}}

	c := parse(t, "page[size]=2", Defaults{})
	links, err := c.GenerateLinks(context.Background(), data, "https://api.test/people")
	require.NoError(t, err)
	assert.Empty(t, links.Next)
	assert.Empty(t, links.Previous)

	c = parse(t, "page[size]=2&page[after]=x", Defaults{})
	links, err = c.GenerateLinks(context.Background(), data, "https://api.test/people")
	require.NoError(t, err)
	assert.Empty(t, links.Next)
	prev, _ := url.Parse(links.Previous)
	assert.Equal(t, "a", prev.Query().Get("page[before]"))

	// walking backwards, a short page has nothing before it
	c = parse(t, "page[size]=2&page[before]=x", Defaults{})
	links, err = c.GenerateLinks(context.Background(), data, "https://api.test/people")
	require.NoError(t, err)
	assert.Empty(t, links.Previous)
	next, _ := url.Parse(links.Next)
	assert.Equal(t, "a", next.Query().Get("page[after]"))
}

func TestGenerateLinksNeedsID(t *testing.T) {
	c := parse(t, "page[size]=1", Defaults{})
	links, err := c.GenerateLinks(context.Background(), []any{map[string]any{"id": 42}}, "https://api.test/events")
	require.NoError(t, err)
	next, _ := url.Parse(links.Next)
	assert.Equal(t, "42", next.Query().Get("page[after]"))

	_, err = c.GenerateLinks(context.Background(), []any{map[string]any{"seq": "1"}}, "https://api.test/events")
	assert.Error(t, err)
}
