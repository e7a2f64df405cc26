package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/pagination"
	"github.com/totegamma/graphdoc/serializer"
)

var tracer = otel.Tracer("usecase")

type ResourceUsecase struct {
	repo     RecordRepository
	cache    DocumentCache
	signal   SignalPublisher
	catalog  Catalog
	builder  *serializer.Builder
	defaults pagination.Defaults
	depth    int
}

type ResourceOption func(*ResourceUsecase)

// WithDocumentCache enables caching of rendered documents.
func WithDocumentCache(cache DocumentCache) ResourceOption {
	return func(uc *ResourceUsecase) {
		uc.cache = cache
	}
}

func WithSignal(signal SignalPublisher) ResourceOption {
	return func(uc *ResourceUsecase) {
		uc.signal = signal
	}
}

func WithPageDefaults(d pagination.Defaults) ResourceOption {
	return func(uc *ResourceUsecase) {
		uc.defaults = d
	}
}

// WithHydrationDepth bounds how many edge levels are loaded per record.
func WithHydrationDepth(depth int) ResourceOption {
	return func(uc *ResourceUsecase) {
		uc.depth = depth
	}
}

func NewResourceUsecase(repo RecordRepository, catalog Catalog, builder *serializer.Builder, opts ...ResourceOption) *ResourceUsecase {
	uc := &ResourceUsecase{
		repo:    repo,
		catalog: catalog,
		builder: builder,
		depth:   3,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *ResourceUsecase) resolve(ctx context.Context, name string) (string, *serializer.Descriptor, error) {
	tag, ok := uc.catalog.Lookup(name)
	if !ok {
		return "", nil, domain.NotFoundError{Resource: name}
	}
	d, err := uc.builder.Registry().Descriptor(ctx, tag)
	if err != nil {
		return "", nil, err
	}
	return tag, d, nil
}

// Get renders one resource of the named collection.
func (uc *ResourceUsecase) Get(ctx context.Context, name, id string, withMeta bool) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Usecase.Resource.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name), attribute.String("id", id))

	tag, d, err := uc.resolve(ctx, name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return uc.render(ctx, tag, d, id, withMeta)
}

// Render renders one resource by registry tag.
func (uc *ResourceUsecase) Render(ctx context.Context, tag, id string) ([]byte, error) {
	d, err := uc.builder.Registry().Descriptor(ctx, tag)
	if err != nil {
		return nil, err
	}
	return uc.render(ctx, tag, d, id, false)
}

func (uc *ResourceUsecase) render(ctx context.Context, tag string, d *serializer.Descriptor, id string, withMeta bool) ([]byte, error) {
	parts := []string{"single", tag, id, meta(withMeta)}
	body, key, ok := uc.cached(ctx, parts)
	if ok {
		return body, nil
	}

	record, err := uc.repo.Get(ctx, d.Type, id, uc.depth)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "ResourceUsecase.Get: repo.Get failed")
	}

	var opts []serializer.CallOption
	if withMeta {
		opts = append(opts, serializer.WithMeta())
	}
	result, err := uc.builder.BuildSingle(ctx, tag, record, opts...)
	if err != nil {
		return nil, err
	}

	return uc.store(ctx, result, key)
}

// List renders one page of the named collection. The query carries page,
// include and fields parameters.
func (uc *ResourceUsecase) List(ctx context.Context, name string, query url.Values) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Usecase.Resource.List")
	defer span.End()
	span.SetAttributes(attribute.String("collection", name))

	tag, d, err := uc.resolve(ctx, name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	cursor, err := pagination.Parse(query, uc.defaults)
	if err != nil {
		return nil, domain.InvalidInputError{Reason: err.Error()}
	}

	encoded := query.Encode()
	withMeta := query.Get("meta") == "true"
	parts := []string{"list", tag, encoded}
	body, key, ok := uc.cached(ctx, parts)
	if ok {
		return body, nil
	}

	page := domain.Page{After: cursor.After(), Before: cursor.Before(), Limit: cursor.Size()}
	values, err := uc.repo.List(ctx, d.Type, page, uc.depth)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "ResourceUsecase.List: repo.List failed")
	}

	records := make([]any, len(values))
	for i, v := range values {
		records[i] = v
	}

	var opts []serializer.CallOption
	if withMeta {
		opts = append(opts, serializer.WithMeta())
	}
	result, err := uc.builder.BuildList(ctx, tag, records, encoded, cursor, opts...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return uc.store(ctx, result, key)
}

// Put stores the resource object in body under id and returns it rendered.
func (uc *ResourceUsecase) Put(ctx context.Context, name, id string, body []byte) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Usecase.Resource.Put")
	defer span.End()

	tag, d, err := uc.resolve(ctx, name)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	record, links, err := decodeResource(d, id, body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := uc.repo.Upsert(ctx, record, links); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "ResourceUsecase.Put: repo.Upsert failed")
	}

	uc.changed(ctx, domain.Change{Tag: tag, Type: d.Type, ID: id, Op: domain.ChangeOpPut, At: time.Now()})

	return uc.render(ctx, tag, d, id, false)
}

func (uc *ResourceUsecase) Delete(ctx context.Context, name, id string) error {
	ctx, span := tracer.Start(ctx, "Usecase.Resource.Delete")
	defer span.End()

	tag, d, err := uc.resolve(ctx, name)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := uc.repo.Delete(ctx, d.Type, id); err != nil {
		span.RecordError(err)
		return err
	}

	uc.changed(ctx, domain.Change{Tag: tag, Type: d.Type, ID: id, Op: domain.ChangeOpDelete, At: time.Now()})
	return nil
}

func (uc *ResourceUsecase) changed(ctx context.Context, change domain.Change) {
	if uc.cache != nil {
		if err := uc.cache.Invalidate(ctx); err != nil {
			slog.ErrorContext(ctx, "document cache invalidation failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		}
	}
	if uc.signal != nil {
		if err := uc.signal.Publish(ctx, change); err != nil {
			slog.ErrorContext(ctx, "change signal failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		}
	}
}

// cached looks parts up. On a miss it returns the key the rendered document
// goes under; an empty key means nothing is stored.
func (uc *ResourceUsecase) cached(ctx context.Context, parts []string) ([]byte, string, bool) {
	if uc.cache == nil {
		return nil, "", false
	}
	body, key, found, err := uc.cache.Get(ctx, parts...)
	if err != nil {
		slog.WarnContext(ctx, "document cache read failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		return nil, "", false
	}
	return body, key, found
}

func (uc *ResourceUsecase) store(ctx context.Context, result *serializer.Result, key string) ([]byte, error) {
	body, err := json.Marshal(result.Document)
	if err != nil {
		return nil, errors.Wrap(err, "marshal document")
	}

	// documents with left-out relationships are not cached
	if uc.cache != nil && key != "" && len(result.Unresolved) == 0 {
		if err := uc.cache.Set(ctx, key, body); err != nil {
			slog.WarnContext(ctx, "document cache write failed", slog.String("error", err.Error()), slog.String("module", "usecase"))
		}
	}
	return body, nil
}

func meta(withMeta bool) string {
	if withMeta {
		return "meta"
	}
	return ""
}

// decodeResource turns a {"data": resource} request body into a record and
// the links of its relationships.
func decodeResource(d *serializer.Descriptor, id string, body []byte) (domain.Record, []domain.Link, error) {
	var doc graphdoc.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Record{}, nil, domain.InvalidInputError{Reason: err.Error()}
	}
	resource, ok := doc.Data.(graphdoc.Resource)
	if !ok {
		return domain.Record{}, nil, domain.InvalidInputError{Reason: "data must be a single resource object"}
	}
	if resource.Type != d.Type {
		return domain.Record{}, nil, domain.InvalidInputError{Reason: "type " + resource.Type + " does not match " + d.Type}
	}
	if resource.ID != "" && resource.ID != id {
		return domain.Record{}, nil, domain.InvalidInputError{Reason: "id " + resource.ID + " does not match the url"}
	}

	value := make(map[string]any, len(resource.Attributes))
	for _, key := range resource.Attributes.Keys() {
		value[key] = resource.Attributes[key].Value
	}
	for _, key := range resource.Meta.Keys() {
		value[key] = resource.Meta[key].Value
	}
	delete(value, "id")

	var links []domain.Link
	for _, name := range resource.Relationships.Keys() {
		rel, ok := findRelationship(d, name)
		if !ok {
			return domain.Record{}, nil, domain.InvalidInputError{Reason: "unknown relationship " + name}
		}
		linkage := resource.Relationships[name].Value.Data
		if linkage == nil {
			continue
		}

		link := domain.Link{Field: rel.Key}
		switch edge := rel.Edge.(type) {
		case serializer.ToOne:
			if linkage.IsMany {
				return domain.Record{}, nil, domain.InvalidInputError{Reason: name + " is a to-one relationship"}
			}
		case serializer.ToMany:
			link.Many = !edge.ForceSingle
		default:
			return domain.Record{}, nil, domain.InvalidInputError{Reason: name + " cannot be written"}
		}

		for _, ident := range linkage.Identifiers() {
			if link.Type == "" {
				link.Type = ident.Type
			}
			if ident.Type != link.Type {
				return domain.Record{}, nil, domain.InvalidInputError{Reason: name + " mixes resource types"}
			}
			link.IDs = append(link.IDs, ident.ID)
		}
		if link.Type == "" {
			// an empty linkage clears the field; the type is irrelevant
			link.Type = d.Type
		}
		links = append(links, link)
	}

	return domain.Record{Type: d.Type, ID: id, Value: value}, links, nil
}

func findRelationship(d *serializer.Descriptor, name string) (serializer.Relationship, bool) {
	for _, rel := range d.Relationships {
		if rel.WireName() == name || rel.Key == name {
			return rel, true
		}
	}
	return serializer.Relationship{}, false
}
