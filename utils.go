package graphdoc

import (
	"net/url"
	"strings"
)

func ResourceKey(typ, id string) string {
	return typ + "-" + id
}

// ComposeSelfURL builds base + endpoint + "/" + id.
func ComposeSelfURL(base, endpoint, id string) string {
	return base + endpoint + "/" + url.PathEscape(id)
}

// ComposeCollectionURL builds base + endpoint + query. The query may be given
// with or without its leading "?".
func ComposeCollectionURL(base, endpoint, query string) string {
	if query != "" && !strings.HasPrefix(query, "?") {
		query = "?" + query
	}
	return base + endpoint + query
}

// SplitCompoundKey splits "parent__child" into its two halves.
func SplitCompoundKey(key string) (string, string, bool) {
	parent, child, ok := strings.Cut(key, "__")
	if !ok || parent == "" || child == "" {
		return "", "", false
	}
	return parent, child, true
}
