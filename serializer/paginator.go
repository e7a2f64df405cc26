package serializer

import (
	"context"
)

// PageLinks is what a Paginator computes for one page of records.
type PageLinks struct {
	Self     string
	Next     string
	Previous string
}

// Paginator carries the page size, the include/field allow-lists and the
// link generation for a list request. The builder never inspects cursors.
type Paginator interface {
	Size() int
	// IncludedTypes restricts which resource types may appear in included.
	// An empty list allows every type.
	IncludedTypes() []string
	// IncludedFields returns the attribute allow-list for a resource type.
	// ok is false when the type is unrestricted.
	IncludedFields(resourceType string) (fields []string, ok bool)
	GenerateLinks(ctx context.Context, data []any, url string) (PageLinks, error)
}
