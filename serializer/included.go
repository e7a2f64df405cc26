package serializer

import (
	"github.com/totegamma/graphdoc"
)

// addToIncluded merges incoming into existing, keeping one entry per
// (type, id) and honoring the paginator's type allow-list. It is the only
// place the included list grows.
func addToIncluded(existing, incoming []graphdoc.Resource, p Paginator) []graphdoc.Resource {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Key()] = struct{}{}
	}

	var allowed map[string]struct{}
	if p != nil {
		if types := p.IncludedTypes(); len(types) > 0 {
			allowed = make(map[string]struct{}, len(types))
			for _, t := range types {
				allowed[t] = struct{}{}
			}
		}
	}

	for _, candidate := range incoming {
		if allowed != nil {
			if _, ok := allowed[candidate.Type]; !ok {
				continue
			}
		}
		key := candidate.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, candidate)
	}
	return existing
}
