package serializer

import (
	"context"
	"errors"
	"fmt"
)

const baseURL = "https://api.test"

// --- mocks ---

type mockPaginator struct {
	size   int
	types  []string
	fields map[string][]string
	calls  int
}

func (m *mockPaginator) Size() int { return m.size }
func (m *mockPaginator) IncludedTypes() []string { return m.types }
func (m *mockPaginator) IncludedFields(t string) ([]string, bool) {
	f, ok := m.fields[t]
	return f, ok
}
func (m *mockPaginator) GenerateLinks(ctx context.Context, data []any, url string) (PageLinks, error) {
	m.calls++
	return PageLinks{
		Self:     url + "&page[size]=" + fmt.Sprint(m.size),
		Next:     url + "&page[after]=last",
		Previous: url + "&page[before]=first",
	}, nil
}

// --- fixtures ---

func selfLink(endpoint string) LinkFunc {
	return func(record any) string {
		return baseURL + endpoint + "/" + fmt.Sprint(record.(map[string]any)["id"])
	}
}

func newRegistry() *Registry {
	r := NewRegistry()

	r.MustRegister("department", Static(&Descriptor{
		Type:       "departments",
		Endpoint:   "/departments",
		ID:         Field("id"),
		Attributes: Attributes("name", "floor"),
		Self:       selfLink("/departments"),
	}))

	r.MustRegister("skill", Static(&Descriptor{
		Type:       "skills",
		Endpoint:   "/skills",
		ID:         Field("id"),
		Attributes: Attributes("label"),
	}))

	r.MustRegister("employee", func(ctx context.Context) (*Descriptor, error) {
		return &Descriptor{
			Type:       "employees",
			Endpoint:   "/employees",
			ID:         Field("id"),
			Attributes: Attributes("name", "email"),
			Meta: []Attribute{
				{Name: "revision", Value: Field("rev")},
			},
			Relationships: []Relationship{
				{
					Key:  "department",
					Edge: ToOne{Target: r.Factory("department")},
				},
				{
					Key:  "skills",
					Edge: ToMany{Target: r.Factory("skill")},
				},
				{
					Key: "manager",
					Edge: IdentifierOnly{
						Type: "employees",
						ID: Computed(func(ctx context.Context, record any) (any, error) {
							id, ok := record.(map[string]any)["manager_id"]
							if !ok {
								return nil, errors.New("manager_id missing")
							}
							return id, nil
						}),
					},
				},
			},
		}, nil
	})

	r.MustRegister("counterpart", Static(&Descriptor{
		Type:       "counterparts",
		Endpoint:   "/counterparts",
		ID:         Field("id"),
		Attributes: Attributes("name"),
	}))

	r.MustRegister("matter", func(ctx context.Context) (*Descriptor, error) {
		return &Descriptor{
			Type:       "matters",
			Endpoint:   "/matters",
			ID:         Field("id"),
			Attributes: Attributes("title"),
			Relationships: []Relationship{
				{
					Key:  "proceedings__counterpart",
					Name: "counterparts",
					Edge: Through{Target: r.Factory("counterpart")},
				},
				{
					Key:  "lead",
					Edge: ToMany{Target: r.Factory("employee"), ForceSingle: true},
				},
				{
					Key: "documents",
					Related: func(record any) string {
						return baseURL + "/matters/" + fmt.Sprint(record.(map[string]any)["id"]) + "/documents"
					},
				},
			},
		}, nil
	})

	return r
}

func department(id, name string) map[string]any {
	return map[string]any{"id": id, "name": name, "floor": 3}
}

func employee(id, name string, dept map[string]any) map[string]any {
	return map[string]any{
		"id":         id,
		"name":       name,
		"email":      name + "@example.com",
		"rev":        7,
		"department": dept,
		"manager_id": "e0",
	}
}
