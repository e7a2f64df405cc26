package serializer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/totegamma/graphdoc"
)

// walk is the per-branch state of one serialization. It is copied into every
// branch; frame links the chain of ancestors for cycle detection.
type walk struct {
	logger    *slog.Logger
	paginator Paginator
	meta      bool
	maxDepth  int
	report    *report
	frame     *frame
	via       string
}

type frame struct {
	parent *frame
	key    string
	via    string
	depth  int
}

// report collects swallowed relationship errors from concurrent branches.
type report struct {
	mu         sync.Mutex
	unresolved []ResolutionError
}

func (r *report) add(err ResolutionError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved = append(r.unresolved, err)
}

func (r *report) sorted() []ResolutionError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]ResolutionError(nil), r.unresolved...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Relationship < out[j].Relationship
	})
	return out
}

func (w walk) path() string {
	var parts []string
	for f := w.frame; f != nil; f = f.parent {
		if f.via != "" {
			parts = append(parts, f.via)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// enter pushes (typ, id) onto the ancestor chain, failing on a revisit or
// when the depth limit is exceeded.
func (w walk) enter(typ, id string) (walk, error) {
	key := graphdoc.ResourceKey(typ, id)
	depth := 0
	if w.frame != nil {
		depth = w.frame.depth + 1
	}

	for f := w.frame; f != nil; f = f.parent {
		if f.key == key {
			return w, ConfigurationError{
				Type:   typ,
				Reason: fmt.Sprintf("relationship cycle: %s reached again via %q", key, joinPath(w.path(), w.via)),
			}
		}
	}
	if w.maxDepth > 0 && depth > w.maxDepth {
		return w, ConfigurationError{
			Type:   typ,
			Reason: fmt.Sprintf("maximum depth %d exceeded via %q", w.maxDepth, joinPath(w.path(), w.via)),
		}
	}

	w.frame = &frame{parent: w.frame, key: key, via: w.via, depth: depth}
	w.via = ""
	return w, nil
}

func (w walk) through(rel string) walk {
	w.via = rel
	return w
}

func joinPath(base, next string) string {
	if base == "" {
		return next
	}
	return base + "." + next
}

func resolveID(ctx context.Context, d *Descriptor, record any) (string, error) {
	v, err := d.ID.Resolve(ctx, record)
	if err != nil {
		return "", err
	}
	if isNil(v) {
		return "", fmt.Errorf("%s record has no id", d.Type)
	}
	id, err := toString(v)
	if err != nil {
		return "", errors.Wrapf(err, "%s id", d.Type)
	}
	return id, nil
}

// serialiseData turns one record into a resource object plus the related
// resources it pulled in.
func (w walk) serialiseData(ctx context.Context, record any, d *Descriptor) (graphdoc.Resource, []graphdoc.Resource, error) {
	id, err := resolveID(ctx, d, record)
	if err != nil {
		return graphdoc.Resource{}, nil, errors.Wrap(err, "serialiseData: resolveID failed")
	}

	w, err = w.enter(d.Type, id)
	if err != nil {
		return graphdoc.Resource{}, nil, err
	}

	resource := graphdoc.Resource{
		Type:       d.Type,
		ID:         id,
		Attributes: graphdoc.OrderedMap[any]{},
	}

	if d.Self != nil {
		if self := d.Self(record); self != "" {
			resource.Links = &graphdoc.ResourceLinks{Self: self}
		}
	}

	var allowed map[string]bool
	if w.paginator != nil {
		if fields, ok := w.paginator.IncludedFields(d.Type); ok {
			allowed = make(map[string]bool, len(fields))
			for _, f := range fields {
				allowed[f] = true
			}
		}
	}

	for _, attr := range d.Attributes {
		if allowed != nil && !allowed[attr.Name] {
			continue
		}
		v, err := attr.Value.Resolve(ctx, record)
		if err != nil {
			return graphdoc.Resource{}, nil, errors.Wrapf(err, "attribute %s.%s", d.Type, attr.Name)
		}
		resource.Attributes.Set(attr.Name, v)
	}

	if w.meta && len(d.Meta) > 0 {
		for _, m := range d.Meta {
			v, err := m.Value.Resolve(ctx, record)
			if err != nil {
				return graphdoc.Resource{}, nil, errors.Wrapf(err, "meta %s.%s", d.Type, m.Name)
			}
			resource.Meta.Set(m.Name, v)
		}
	}

	var included []graphdoc.Resource
	if len(d.Relationships) > 0 {
		relationships, related, err := w.resolveRelationships(ctx, record, d, id)
		if err != nil {
			return graphdoc.Resource{}, nil, err
		}
		if len(relationships) > 0 {
			resource.Relationships = relationships
		}
		included = related
	}

	return resource, included, nil
}
