package serializer

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/graphdoc"
)

var tracer = otel.Tracer("serializer")

const defaultMaxDepth = 32

// Builder turns records into documents using the descriptors of a Registry.
type Builder struct {
	registry *Registry
	baseURL  string
	maxDepth int
	logger   *slog.Logger
}

type Option func(*Builder)

// WithBaseURL sets the prefix of generated self links.
func WithBaseURL(baseURL string) Option {
	return func(b *Builder) {
		b.baseURL = baseURL
	}
}

// WithMaxDepth bounds relationship nesting. Zero disables the bound; cycles
// are still detected.
func WithMaxDepth(depth int) Option {
	return func(b *Builder) {
		b.maxDepth = depth
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func NewBuilder(registry *Registry, opts ...Option) *Builder {
	b := &Builder{
		registry: registry,
		maxDepth: defaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Registry() *Registry {
	return b.registry
}

func (b *Builder) BaseURL() string {
	return b.baseURL
}

type callOptions struct {
	meta bool
}

type CallOption func(*callOptions)

// WithMeta resolves the descriptors' meta entries.
func WithMeta() CallOption {
	return func(o *callOptions) {
		o.meta = true
	}
}

// Result is a built document plus the relationships that were left out.
type Result struct {
	Document   *graphdoc.Document
	Unresolved []ResolutionError
}

// BuildSingle serializes one record of the given type. A nil record yields
// NotFoundError.
func (b *Builder) BuildSingle(ctx context.Context, tag string, record any, opts ...CallOption) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Serializer.Builder.BuildSingle")
	defer span.End()
	span.SetAttributes(attribute.String("tag", tag))

	d, err := b.registry.Descriptor(ctx, tag)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if isNil(record) {
		err := NotFoundError{Resource: tag}
		span.RecordError(err)
		return nil, err
	}

	id, err := resolveID(ctx, d, record)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "BuildSingle: resolveID failed")
	}

	return b.Serialise(ctx, record, d, graphdoc.ComposeSelfURL(b.baseURL, d.Endpoint, id), nil, opts...)
}

// BuildList serializes a page of records. query is appended to the
// collection URL as is.
func (b *Builder) BuildList(ctx context.Context, tag string, records []any, query string, p Paginator, opts ...CallOption) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Serializer.Builder.BuildList")
	defer span.End()
	span.SetAttributes(attribute.String("tag", tag), attribute.Int("records", len(records)))

	d, err := b.registry.Descriptor(ctx, tag)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if records == nil {
		records = []any{}
	}

	return b.Serialise(ctx, records, d, graphdoc.ComposeCollectionURL(b.baseURL, d.Endpoint, query), p, opts...)
}

// Serialise builds a document from a record or a slice of records. An empty
// url omits the document links. Pagination links are only generated when the
// slice holds no more than p.Size() records.
func (b *Builder) Serialise(ctx context.Context, data any, d *Descriptor, url string, p Paginator, opts ...CallOption) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Serializer.Builder.Serialise")
	defer span.End()

	if err := d.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}

	w := walk{
		logger:    b.logger,
		paginator: p,
		meta:      options.meta,
		maxDepth:  b.maxDepth,
		report:    &report{},
	}

	doc := &graphdoc.Document{}
	if url != "" {
		doc.Links = &graphdoc.DocumentLinks{Self: url}
	}

	var included []graphdoc.Resource

	if items, ok := asSlice(data); ok {
		if url != "" && p != nil && len(items) <= p.Size() {
			links, err := p.GenerateLinks(ctx, items, url)
			if err != nil {
				span.RecordError(err)
				return nil, errors.Wrap(err, "Serialise: GenerateLinks failed")
			}
			mergeLinks(doc.Links, links)
		}

		results, err := w.serialiseItems(ctx, items, Static(d), nil, d, "", Relationship{})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		resources := make([]graphdoc.Resource, 0, len(results))
		var incoming []graphdoc.Resource
		for _, result := range results {
			if !result.ok {
				continue
			}
			resources = append(resources, result.resource)
			incoming = append(incoming, result.included...)
		}
		doc.Data = resources
		included = addToIncluded(included, incoming, p)
	} else {
		resource, incoming, err := w.serialiseData(ctx, data, d)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		doc.Data = resource
		included = addToIncluded(included, incoming, p)
	}

	if len(included) > 0 {
		doc.Included = included
	}

	unresolved := w.report.sorted()
	span.SetAttributes(
		attribute.Int("included", len(included)),
		attribute.Int("unresolved", len(unresolved)),
	)

	return &Result{Document: doc, Unresolved: unresolved}, nil
}

func mergeLinks(links *graphdoc.DocumentLinks, page PageLinks) {
	if page.Self != "" {
		links.Self = page.Self
	}
	if page.Next != "" {
		links.Next = page.Next
	}
	if page.Previous != "" {
		links.Prev = page.Previous
	}
}
