package serializer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/totegamma/graphdoc"
)

type typeFilter []string

func (f typeFilter) Size() int { return 10 }
func (f typeFilter) IncludedTypes() []string { return f }
func (f typeFilter) IncludedFields(string) ([]string, bool) { return nil, false }
func (f typeFilter) GenerateLinks(context.Context, []any, string) (PageLinks, error) {
	return PageLinks{}, nil
}

func resource(typ, id string) graphdoc.Resource {
	return graphdoc.Resource{Type: typ, ID: id}
}

func TestAddToIncluded(t *testing.T) {
	existing := []graphdoc.Resource{resource("people", "1")}
	incoming := []graphdoc.Resource{
		resource("people", "1"),
		resource("people", "2"),
		resource("tags", "1"),
		resource("people", "2"),
	}

	got := addToIncluded(existing, incoming, nil)
	assert.Equal(t, []graphdoc.Resource{
		resource("people", "1"),
		resource("people", "2"),
		resource("tags", "1"),
	}, got)
}

func TestAddToIncludedTypeFilter(t *testing.T) {
	incoming := []graphdoc.Resource{
		resource("people", "1"),
		resource("tags", "1"),
		resource("comments", "9"),
	}

	got := addToIncluded(nil, incoming, typeFilter{"tags", "comments"})
	assert.Equal(t, []graphdoc.Resource{
		resource("tags", "1"),
		resource("comments", "9"),
	}, got)

	got = addToIncluded(nil, incoming, typeFilter{})
	assert.Len(t, got, 3)
}
