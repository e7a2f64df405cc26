package serializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/totegamma/graphdoc"
)

// branch is the result of serializing one item of a fan-out.
type branch struct {
	resource graphdoc.Resource
	included []graphdoc.Resource
	ok       bool
}

var errNoDescriptor = errors.New("no descriptor for related item")

func (w walk) resolveRelationships(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
) (graphdoc.OrderedMap[graphdoc.Relationship], []graphdoc.Resource, error) {
	var relationships graphdoc.OrderedMap[graphdoc.Relationship]
	var included []graphdoc.Resource

	for _, rel := range d.Relationships {
		out, related, ok, err := w.resolveRelationship(ctx, record, d, id, rel)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		relationships.Set(rel.WireName(), out)
		included = append(included, related...)
	}
	return relationships, included, nil
}

func (w walk) resolveRelationship(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
	rel Relationship,
) (graphdoc.Relationship, []graphdoc.Resource, bool, error) {
	switch edge := rel.Edge.(type) {
	case IdentifierOnly:
		out, ok := w.resolveIdentifier(ctx, record, d, id, rel, edge)
		return out, nil, ok, nil

	case ToOne:
		if value, ok := lookup(record, rel.Key); ok && present(value) {
			return w.resolveToOne(ctx, record, d, id, rel, edge, value)
		}

	case ToMany:
		if value, ok := lookup(record, rel.Key); ok && present(value) {
			items, isSlice := asSlice(value)
			if !isSlice {
				items = []any{value}
			}
			return w.resolveToMany(ctx, record, d, id, rel, edge, items)
		}

	case Through:
		parent, child, _ := edge.fields(rel.Key)
		if value, ok := lookup(record, parent); ok {
			if parents, isSlice := asSlice(value); isSlice && len(parents) > 0 {
				return w.resolveThrough(ctx, record, d, id, rel, edge, parents, child)
			}
		}
	}

	out, ok := linksOnly(record, rel)
	return out, nil, ok, nil
}

// resolveIdentifier builds linkage straight from the record. Resolver errors
// are recorded and the relationship is left out. A record without the
// identifier falls back to the related link, if any.
func (w walk) resolveIdentifier(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
	rel Relationship,
	edge IdentifierOnly,
) (graphdoc.Relationship, bool) {
	linkage, err := identifierLinkage(ctx, record, edge)
	if err != nil {
		w.unresolved(ctx, ResolutionError{Type: d.Type, ID: id, Relationship: rel.WireName(), Err: err})
		return graphdoc.Relationship{}, false
	}
	if linkage == nil {
		return linksOnly(record, rel)
	}

	out := graphdoc.Relationship{Data: linkage}
	attachRelated(record, rel, &out)
	return out, true
}

func identifierLinkage(ctx context.Context, record any, edge IdentifierOnly) (linkage *graphdoc.Linkage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("identifier resolver panicked: %v", r)
		}
	}()

	v, err := edge.ID.Resolve(ctx, record)
	if err != nil {
		return nil, err
	}
	if isNil(v) {
		return nil, nil
	}

	if items, ok := asSlice(v); ok {
		ids := make([]graphdoc.Identifier, 0, len(items))
		for _, item := range items {
			s, err := toString(item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, graphdoc.Identifier{Type: edge.Type, ID: s})
		}
		return graphdoc.ToManyLinkage(ids), nil
	}

	s, err := toString(v)
	if err != nil {
		return nil, err
	}
	return graphdoc.ToOneLinkage(&graphdoc.Identifier{Type: edge.Type, ID: s}), nil
}

func (w walk) resolveToOne(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
	rel Relationship,
	edge ToOne,
	value any,
) (graphdoc.Relationship, []graphdoc.Resource, bool, error) {
	// a collection on a to-one edge keeps its first element
	if items, ok := asSlice(value); ok {
		if len(items) == 0 || !present(items[0]) {
			out, ok := linksOnly(record, rel)
			return out, nil, ok, nil
		}
		value = items[0]
	}

	results, err := w.serialiseItems(ctx, []any{value}, edge.Target, edge.Dynamic, d, id, rel)
	if err != nil {
		return graphdoc.Relationship{}, nil, false, err
	}
	result := results[0]
	if !result.ok {
		out, ok := linksOnly(record, rel)
		return out, nil, ok, nil
	}

	ident := result.resource.Identifier()
	out := graphdoc.Relationship{Data: graphdoc.ToOneLinkage(&ident)}
	if result.resource.Links != nil && result.resource.Links.Self != "" {
		out.Links = &graphdoc.RelationshipLinks{Self: result.resource.Links.Self}
	}
	attachRelated(record, rel, &out)

	var included []graphdoc.Resource
	if !rel.Excluded {
		included = append(included, result.resource)
		included = append(included, result.included...)
	}
	return out, included, true, nil
}

func (w walk) resolveToMany(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
	rel Relationship,
	edge ToMany,
	items []any,
) (graphdoc.Relationship, []graphdoc.Resource, bool, error) {
	results, err := w.serialiseItems(ctx, items, edge.Target, edge.Dynamic, d, id, rel)
	if err != nil {
		return graphdoc.Relationship{}, nil, false, err
	}

	ids := make([]graphdoc.Identifier, 0, len(results))
	var included []graphdoc.Resource
	for _, result := range results {
		if !result.ok {
			continue
		}
		ids = append(ids, result.resource.Identifier())
		if !rel.Excluded {
			included = append(included, result.resource)
			included = append(included, result.included...)
		}
	}

	var out graphdoc.Relationship
	if edge.ForceSingle {
		var first *graphdoc.Identifier
		if len(ids) > 0 {
			first = &ids[0]
		}
		out.Data = graphdoc.ToOneLinkage(first)
	} else {
		out.Data = graphdoc.ToManyLinkage(ids)
	}
	attachRelated(record, rel, &out)
	return out, included, true, nil
}

// resolveThrough follows record[parent][i][child] for every intermediate item.
// With ForceSingle the identifier resolved for the last intermediate item wins.
func (w walk) resolveThrough(
	ctx context.Context,
	record any,
	d *Descriptor,
	id string,
	rel Relationship,
	edge Through,
	parents []any,
	child string,
) (graphdoc.Relationship, []graphdoc.Resource, bool, error) {
	var targets []any
	var groups []int
	for i, item := range parents {
		value, ok := lookup(item, child)
		if !ok || !present(value) {
			continue
		}
		if items, isSlice := asSlice(value); isSlice {
			for _, it := range items {
				targets = append(targets, it)
				groups = append(groups, i)
			}
			continue
		}
		targets = append(targets, value)
		groups = append(groups, i)
	}

	results, err := w.serialiseItems(ctx, targets, edge.Target, edge.Dynamic, d, id, rel)
	if err != nil {
		return graphdoc.Relationship{}, nil, false, err
	}

	ids := make([]graphdoc.Identifier, 0, len(results))
	var single *graphdoc.Identifier
	lastGroup := -1
	var included []graphdoc.Resource
	for i, result := range results {
		if !result.ok {
			continue
		}
		ident := result.resource.Identifier()
		ids = append(ids, ident)
		if groups[i] != lastGroup {
			single = &ident
			lastGroup = groups[i]
		}
		if !rel.Excluded {
			included = append(included, result.resource)
			included = append(included, result.included...)
		}
	}

	var out graphdoc.Relationship
	if edge.ForceSingle {
		out.Data = graphdoc.ToOneLinkage(single)
	} else {
		out.Data = graphdoc.ToManyLinkage(ids)
	}
	attachRelated(record, rel, &out)
	return out, included, true, nil
}

// serialiseItems fans out one branch per item and joins them in index order.
// Items without a usable descriptor are recorded and skipped.
func (w walk) serialiseItems(
	ctx context.Context,
	items []any,
	target Factory,
	dynamic Dynamic,
	d *Descriptor,
	id string,
	rel Relationship,
) ([]branch, error) {
	results := make([]branch, len(items))
	next := w.through(rel.WireName())

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		if !present(item) {
			continue
		}
		i, item := i, item
		g.Go(func() error {
			factory := target
			if dynamic != nil {
				if f := dynamic(item); f != nil {
					factory = f
				}
			}
			if factory == nil {
				w.unresolved(gctx, ResolutionError{Type: d.Type, ID: id, Relationship: rel.WireName(), Err: errNoDescriptor})
				return nil
			}

			nested, err := describe(gctx, factory, d.Type, rel)
			if err != nil {
				return err
			}

			// related data without an id is left out; primary records fail below
			if w.frame != nil {
				if _, err := resolveID(gctx, nested, item); err != nil {
					w.unresolved(gctx, ResolutionError{Type: d.Type, ID: id, Relationship: rel.WireName(), Err: err})
					return nil
				}
			}

			resource, included, err := next.serialiseData(gctx, item, nested)
			if err != nil {
				return err
			}
			results[i] = branch{resource: resource, included: included, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func describe(ctx context.Context, factory Factory, parentType string, rel Relationship) (*Descriptor, error) {
	nested, err := factory(ctx)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return nil, err
		}
		return nil, ConfigurationError{
			Type:   parentType,
			Reason: fmt.Sprintf("descriptor for relationship %q", rel.WireName()),
			Err:    err,
		}
	}
	if err := nested.Validate(); err != nil {
		return nil, err
	}
	return nested, nil
}

func (w walk) unresolved(ctx context.Context, err ResolutionError) {
	w.report.add(err)
	trace.SpanFromContext(ctx).AddEvent("relationship left out", trace.WithAttributes(
		attribute.String("type", err.Type),
		attribute.String("id", err.ID),
		attribute.String("relationship", err.Relationship),
	))
	w.logger.WarnContext(
		ctx, "relationship left out",
		slog.String("type", err.Type),
		slog.String("id", err.ID),
		slog.String("relationship", err.Relationship),
		slog.String("error", err.Err.Error()),
		slog.String("module", "serializer"),
	)
}

func attachRelated(record any, rel Relationship, out *graphdoc.Relationship) {
	if out.Links != nil || rel.Related == nil {
		return
	}
	if related := rel.Related(record); related != "" {
		out.Links = &graphdoc.RelationshipLinks{Related: related}
	}
}

func linksOnly(record any, rel Relationship) (graphdoc.Relationship, bool) {
	if rel.Related == nil {
		return graphdoc.Relationship{}, false
	}
	related := rel.Related(record)
	if related == "" {
		return graphdoc.Relationship{}, false
	}
	return graphdoc.Relationship{Links: &graphdoc.RelationshipLinks{Related: related}}, true
}
