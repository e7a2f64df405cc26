package schemas

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/serializer"
)

const (
	KindOne        = "one"
	KindMany       = "many"
	KindIdentifier = "identifier"
	KindThrough    = "through"
	KindLinks      = "links"
)

// Schema declares resource types in YAML. Keys of Types are the registry tags.
type Schema struct {
	Types map[string]TypeSchema `yaml:"types"`
}

type TypeSchema struct {
	Type          string               `yaml:"type"`     // wire type, defaults to the tag
	Endpoint      string               `yaml:"endpoint"` // defaults to "/" + type
	ID            string               `yaml:"id"`       // defaults to "id"
	Attributes    []string             `yaml:"attributes"`
	Meta          []string             `yaml:"meta"`
	Relationships []RelationshipSchema `yaml:"relationships"`
}

type RelationshipSchema struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	Target      string `yaml:"target"`
	Type        string `yaml:"type"`
	Field       string `yaml:"field"`
	Parent      string `yaml:"parent"`
	Child       string `yaml:"child"`
	Excluded    bool   `yaml:"excluded"`
	ForceSingle bool   `yaml:"forceSingle"`
	Related     string `yaml:"related"`
}

func Load(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "schemas.Load")
	}
	return Parse(b)
}

func Parse(b []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "schemas.Parse")
	}
	if len(s.Types) == 0 {
		return nil, errors.New("schemas.Parse: no types declared")
	}
	for tag := range s.Types {
		t := s.Types[tag]
		if t.Type == "" {
			t.Type = tag
		}
		if t.Endpoint == "" {
			t.Endpoint = "/" + t.Type
		}
		if t.ID == "" {
			t.ID = "id"
		}
		s.Types[tag] = t
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) check() error {
	for _, tag := range s.Tags() {
		for _, rel := range s.Types[tag].Relationships {
			if rel.Key == "" {
				return errors.Errorf("%s: relationship without key", tag)
			}
			switch rel.Kind {
			case KindOne, KindMany, KindThrough:
				if _, ok := s.Types[rel.Target]; !ok {
					return errors.Errorf("%s.%s: unknown target %q", tag, rel.Key, rel.Target)
				}
			case KindIdentifier:
				if rel.Type == "" {
					if _, ok := s.Types[rel.Target]; !ok {
						return errors.Errorf("%s.%s: identifier needs type or target", tag, rel.Key)
					}
				}
			case KindLinks:
				if rel.Related == "" {
					return errors.Errorf("%s.%s: links relationship needs related", tag, rel.Key)
				}
			default:
				return errors.Errorf("%s.%s: unknown kind %q", tag, rel.Key, rel.Kind)
			}
		}
	}
	return nil
}

// Tags returns the declared tags in sorted order.
func (s *Schema) Tags() []string {
	tags := make([]string, 0, len(s.Types))
	for tag := range s.Types {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Lookup finds the tag whose wire type or endpoint matches name.
func (s *Schema) Lookup(name string) (string, bool) {
	for _, tag := range s.Tags() {
		t := s.Types[tag]
		if t.Type == name || strings.TrimPrefix(t.Endpoint, "/") == name {
			return tag, true
		}
	}
	return "", false
}

// Register adds one factory per declared type. Self and related links are
// prefixed with baseURL.
func (s *Schema) Register(r *serializer.Registry, baseURL string) error {
	for _, tag := range s.Tags() {
		tag := tag
		err := r.Register(tag, func(ctx context.Context) (*serializer.Descriptor, error) {
			return s.Descriptor(r, tag, baseURL)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Descriptor builds the serializer descriptor for tag. Related types are
// referenced lazily through r.
func (s *Schema) Descriptor(r *serializer.Registry, tag, baseURL string) (*serializer.Descriptor, error) {
	t, ok := s.Types[tag]
	if !ok {
		return nil, errors.Errorf("unknown type %q", tag)
	}

	d := &serializer.Descriptor{
		Type:       t.Type,
		Endpoint:   t.Endpoint,
		ID:         serializer.Field(t.ID),
		Attributes: serializer.Attributes(t.Attributes...),
		Meta:       serializer.Attributes(t.Meta...),
		Self:       selfLink(baseURL, t),
	}

	for _, rel := range t.Relationships {
		out := serializer.Relationship{
			Key:      rel.Key,
			Name:     rel.Name,
			Excluded: rel.Excluded,
		}
		if rel.Related != "" {
			out.Related = relatedLink(baseURL, t.ID, rel.Related)
		}

		switch rel.Kind {
		case KindOne:
			out.Edge = serializer.ToOne{Target: r.Factory(rel.Target)}
		case KindMany:
			out.Edge = serializer.ToMany{Target: r.Factory(rel.Target), ForceSingle: rel.ForceSingle}
		case KindThrough:
			out.Edge = serializer.Through{
				Parent:      rel.Parent,
				Child:       rel.Child,
				Target:      r.Factory(rel.Target),
				ForceSingle: rel.ForceSingle,
			}
		case KindIdentifier:
			typ := rel.Type
			if typ == "" {
				typ = s.Types[rel.Target].Type
			}
			field := rel.Field
			if field == "" {
				field = rel.Key + "_id"
			}
			out.Edge = serializer.IdentifierOnly{Type: typ, ID: serializer.Field(field)}
		case KindLinks:
		}

		d.Relationships = append(d.Relationships, out)
	}

	return d, nil
}

func selfLink(baseURL string, t TypeSchema) serializer.LinkFunc {
	return func(record any) string {
		id, err := serializer.Field(t.ID).Resolve(context.Background(), record)
		if err != nil || id == nil {
			return ""
		}
		return graphdoc.ComposeSelfURL(baseURL, t.Endpoint, cast.ToString(id))
	}
}

func relatedLink(baseURL, idField, template string) serializer.LinkFunc {
	return func(record any) string {
		id, err := serializer.Field(idField).Resolve(context.Background(), record)
		if err != nil || id == nil {
			return ""
		}
		link := strings.ReplaceAll(template, "{id}", cast.ToString(id))
		if strings.HasPrefix(link, "/") {
			link = baseURL + link
		}
		return link
	}
}

// Endpoint describes one served collection.
type Endpoint struct {
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

func (s *Schema) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(s.Types))
	for _, tag := range s.Tags() {
		t := s.Types[tag]
		out = append(out, Endpoint{Tag: tag, Type: t.Type, Endpoint: t.Endpoint})
	}
	return out
}
