package serializer

import (
	"context"
	"fmt"

	"github.com/totegamma/graphdoc"
)

// Resolver produces a value for an id, attribute or meta entry.
// It is either a Field (direct read) or a Computed function.
type Resolver interface {
	Resolve(ctx context.Context, record any) (any, error)
}

// Field copies the named field from the record.
type Field string

func (f Field) Resolve(_ context.Context, record any) (any, error) {
	v, _ := lookup(record, string(f))
	return v, nil
}

// Computed derives a value from the whole record.
type Computed func(ctx context.Context, record any) (any, error)

func (c Computed) Resolve(ctx context.Context, record any) (any, error) {
	return c(ctx, record)
}

type Attribute struct {
	Name  string
	Value Resolver
}

// Attributes declares direct-copy attributes, one per field name.
func Attributes(names ...string) []Attribute {
	attrs := make([]Attribute, len(names))
	for i, name := range names {
		attrs[i] = Attribute{Name: name, Value: Field(name)}
	}
	return attrs
}

type LinkFunc func(record any) string

// Descriptor describes how one domain type becomes a resource object.
// Descriptors are not modified after construction.
type Descriptor struct {
	Type          string
	Endpoint      string
	ID            Resolver
	Attributes    []Attribute
	Meta          []Attribute
	Relationships []Relationship
	Self          LinkFunc
}

// Relationship declares one relationship. Key is the record field holding the
// related value (or a "parent__child" compound key for Through edges), Name
// overrides the wire-level key. A nil Edge declares a links-only relationship.
type Relationship struct {
	Key      string
	Name     string
	Edge     Edge
	Excluded bool
	Related  LinkFunc
}

func (r Relationship) WireName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Key
}

// Edge is one of IdentifierOnly, ToOne, ToMany or Through.
type Edge interface {
	edge()
}

// IdentifierOnly emits linkage without serializing the related record.
// When ID resolves to a collection the linkage is an array.
type IdentifierOnly struct {
	Type string
	ID   Resolver
}

type ToOne struct {
	Target  Factory
	Dynamic Dynamic
}

type ToMany struct {
	Target      Factory
	Dynamic     Dynamic
	ForceSingle bool
}

// Through reaches the related records via an intermediate collection:
// record[Parent][i][Child]. Parent and Child default to the halves of a
// "parent__child" relationship key.
type Through struct {
	Parent      string
	Child       string
	Target      Factory
	Dynamic     Dynamic
	ForceSingle bool
}

func (IdentifierOnly) edge() {}
func (ToOne) edge()          {}
func (ToMany) edge()         {}
func (Through) edge()        {}

func (t Through) fields(key string) (string, string, bool) {
	if t.Parent != "" && t.Child != "" {
		return t.Parent, t.Child, true
	}
	return graphdoc.SplitCompoundKey(key)
}

// Validate rejects descriptors that cannot be serialized.
func (d *Descriptor) Validate() error {
	if d == nil {
		return ConfigurationError{Reason: "nil descriptor"}
	}
	if d.Type == "" {
		return ConfigurationError{Reason: "descriptor without type"}
	}
	if d.ID == nil {
		return ConfigurationError{Type: d.Type, Reason: "descriptor without id resolver"}
	}

	if err := validateAttributes(d.Type, "attribute", d.Attributes); err != nil {
		return err
	}
	if err := validateAttributes(d.Type, "meta", d.Meta); err != nil {
		return err
	}

	names := map[string]bool{}
	for _, rel := range d.Relationships {
		if rel.Key == "" {
			return ConfigurationError{Type: d.Type, Reason: "relationship without key"}
		}
		name := rel.WireName()
		if names[name] {
			return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("duplicate relationship %q", name)}
		}
		names[name] = true

		switch edge := rel.Edge.(type) {
		case nil:
			if rel.Related == nil {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q has neither edge nor related link", name)}
			}
		case IdentifierOnly:
			if edge.Type == "" || edge.ID == nil {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q: identifier needs type and id", name)}
			}
		case ToOne:
			if edge.Target == nil && edge.Dynamic == nil {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q has no target", name)}
			}
		case ToMany:
			if edge.Target == nil && edge.Dynamic == nil {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q has no target", name)}
			}
		case Through:
			if edge.Target == nil && edge.Dynamic == nil {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q has no target", name)}
			}
			if _, _, ok := edge.fields(rel.Key); !ok {
				return ConfigurationError{Type: d.Type, Reason: fmt.Sprintf("relationship %q is not a parent__child key", name)}
			}
		}
	}
	return nil
}

func validateAttributes(typ, kind string, attrs []Attribute) error {
	seen := map[string]bool{}
	for _, attr := range attrs {
		if attr.Name == "" {
			return ConfigurationError{Type: typ, Reason: kind + " without name"}
		}
		if attr.Value == nil {
			return ConfigurationError{Type: typ, Reason: fmt.Sprintf("%s %q without resolver", kind, attr.Name)}
		}
		if seen[attr.Name] {
			return ConfigurationError{Type: typ, Reason: fmt.Sprintf("duplicate %s %q", kind, attr.Name)}
		}
		seen[attr.Name] = true
	}
	return nil
}
