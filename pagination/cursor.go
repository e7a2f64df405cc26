package pagination

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/totegamma/graphdoc/serializer"
)

const (
	sizeParam   = "page[size]"
	afterParam  = "page[after]"
	beforeParam = "page[before]"

	// records are stored and paged by id
	cursorField = "id"
)

var ErrInvalidPage = errors.New("invalid page parameter")

type Defaults struct {
	Size    int
	MaxSize int
}

// Cursor is a keyset paginator driven by page[size], page[after] and
// page[before]. It also carries the include and sparse fieldset allow-lists.
type Cursor struct {
	size    int
	after   string
	before  string
	include []string
	fields  map[string][]string
}

var _ serializer.Paginator = (*Cursor)(nil)

func Parse(query url.Values, d Defaults) (*Cursor, error) {
	if d.Size <= 0 {
		d.Size = 20
	}
	if d.MaxSize <= 0 {
		d.MaxSize = 100
	}

	c := &Cursor{
		size:   d.Size,
		after:  query.Get(afterParam),
		before: query.Get(beforeParam),
	}

	if raw := query.Get(sizeParam); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return nil, errors.Wrapf(ErrInvalidPage, "%s=%q", sizeParam, raw)
		}
		c.size = size
	}
	if c.size > d.MaxSize {
		c.size = d.MaxSize
	}

	if c.after != "" && c.before != "" {
		return nil, errors.Wrap(ErrInvalidPage, "page[after] and page[before] are exclusive")
	}

	c.include = splitList(query.Get("include"))

	for key, values := range query {
		if !strings.HasPrefix(key, "fields[") || !strings.HasSuffix(key, "]") {
			continue
		}
		typ := key[len("fields[") : len(key)-1]
		if typ == "" || len(values) == 0 {
			continue
		}
		if c.fields == nil {
			c.fields = map[string][]string{}
		}
		c.fields[typ] = splitList(values[0])
	}

	return c, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Cursor) Size() int {
	return c.size
}

func (c *Cursor) After() string {
	return c.after
}

func (c *Cursor) Before() string {
	return c.before
}

func (c *Cursor) IncludedTypes() []string {
	return c.include
}

func (c *Cursor) IncludedFields(resourceType string) ([]string, bool) {
	fields, ok := c.fields[resourceType]
	return fields, ok
}

// GenerateLinks rewrites the page parameters of rawURL for the current, next
// and previous pages.
func (c *Cursor) GenerateLinks(ctx context.Context, data []any, rawURL string) (serializer.PageLinks, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return serializer.PageLinks{}, errors.Wrap(err, "GenerateLinks: parse url failed")
	}

	page := func(key, value string) string {
		q := u.Query()
		q.Del(afterParam)
		q.Del(beforeParam)
		q.Set(sizeParam, strconv.Itoa(c.size))
		if key != "" {
			q.Set(key, value)
		}
		next := *u
		next.RawQuery = q.Encode()
		return next.String()
	}

	var links serializer.PageLinks
	switch {
	case c.after != "":
		links.Self = page(afterParam, c.after)
	case c.before != "":
		links.Self = page(beforeParam, c.before)
	default:
		links.Self = page("", "")
	}

	if len(data) == 0 {
		return links, nil
	}

	// a short page is the end of the collection in its direction
	short := len(data) < c.size

	if c.before != "" || !short {
		last, err := c.value(ctx, data[len(data)-1])
		if err != nil {
			return serializer.PageLinks{}, err
		}
		links.Next = page(afterParam, last)
	}

	if c.after != "" || (c.before != "" && !short) {
		first, err := c.value(ctx, data[0])
		if err != nil {
			return serializer.PageLinks{}, err
		}
		links.Previous = page(beforeParam, first)
	}

	return links, nil
}

func (c *Cursor) value(ctx context.Context, record any) (string, error) {
	v, err := serializer.Field(cursorField).Resolve(ctx, record)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", errors.Errorf("record has no %s to page by", cursorField)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", errors.Wrapf(err, "cursor field %s", cursorField)
	}
	return s, nil
}
