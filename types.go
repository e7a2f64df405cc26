package graphdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	MediaType = "application/vnd.api+json"
)

// Identifier is the {type, id} pair used as relationship linkage.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type DocumentLinks struct {
	Self string `json:"self,omitempty"`
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

type ResourceLinks struct {
	Self string `json:"self"`
}

type RelationshipLinks struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

// Linkage is the "data" member of a relationship. It renders as a single
// identifier (or null) for to-one linkage and as an array for to-many.
type Linkage struct {
	One    *Identifier
	Many   []Identifier
	IsMany bool
}

func ToOneLinkage(id *Identifier) *Linkage {
	return &Linkage{One: id}
}

func ToManyLinkage(ids []Identifier) *Linkage {
	return &Linkage{Many: ids, IsMany: true}
}

// Identifiers returns the linkage as a flat list regardless of its shape.
func (l *Linkage) Identifiers() []Identifier {
	if l == nil {
		return nil
	}
	if l.IsMany {
		return l.Many
	}
	if l.One == nil {
		return nil
	}
	return []Identifier{*l.One}
}

func (l Linkage) MarshalJSON() ([]byte, error) {
	if l.IsMany {
		if l.Many == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(l.Many)
	}
	if l.One == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.One)
}

func (l *Linkage) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*l = Linkage{}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var many []Identifier
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return err
		}
		if many == nil {
			many = []Identifier{}
		}
		*l = Linkage{Many: many, IsMany: true}
		return nil
	default:
		var one Identifier
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*l = Linkage{One: &one}
		return nil
	}
}

type Relationship struct {
	Data  *Linkage           `json:"data,omitempty"`
	Links *RelationshipLinks `json:"links,omitempty"`
}

// Resource is the serialized form of one record.
type Resource struct {
	Type          string                   `json:"type"`
	ID            string                   `json:"id"`
	Attributes    OrderedMap[any]          `json:"attributes"`
	Meta          OrderedMap[any]          `json:"meta,omitempty"`
	Links         *ResourceLinks           `json:"links,omitempty"`
	Relationships OrderedMap[Relationship] `json:"relationships,omitempty"`
}

func (r Resource) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// Key is the "type-id" key used to deduplicate included resources.
func (r Resource) Key() string {
	return ResourceKey(r.Type, r.ID)
}

// Document is a top-level response. Data holds a Resource or a []Resource.
type Document struct {
	Links    *DocumentLinks  `json:"links,omitempty"`
	Data     any             `json:"data"`
	Included []Resource      `json:"included,omitempty"`
	Meta     OrderedMap[any] `json:"meta,omitempty"`
}

// IsCollection reports whether the primary data is an array.
func (d *Document) IsCollection() bool {
	_, ok := d.Data.([]Resource)
	return ok
}

// Resources returns the primary data as a list.
func (d *Document) Resources() []Resource {
	switch data := d.Data.(type) {
	case []Resource:
		return data
	case Resource:
		return []Resource{data}
	case *Resource:
		if data == nil {
			return nil
		}
		return []Resource{*data}
	default:
		return nil
	}
}

// Find looks a resource up in data and included.
func (d *Document) Find(typ, id string) (Resource, bool) {
	for _, r := range d.Resources() {
		if r.Type == typ && r.ID == id {
			return r, true
		}
	}
	for _, r := range d.Included {
		if r.Type == typ && r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var raw struct {
		Links    *DocumentLinks  `json:"links,omitempty"`
		Data     json.RawMessage `json:"data"`
		Included []Resource      `json:"included,omitempty"`
		Meta     OrderedMap[any] `json:"meta,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	doc := Document{
		Links:    raw.Links,
		Included: raw.Included,
		Meta:     raw.Meta,
	}

	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		doc.Data = nil
	case data[0] == '[':
		var list []Resource
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("invalid data array: %w", err)
		}
		if list == nil {
			list = []Resource{}
		}
		doc.Data = list
	default:
		var single Resource
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("invalid data object: %w", err)
		}
		doc.Data = single
	}

	*d = doc
	return nil
}

// ErrorObject is a JSON:API error entry.
type ErrorObject struct {
	Status string `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}
