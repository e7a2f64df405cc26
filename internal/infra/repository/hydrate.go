package repository

import (
	"encoding/json"

	pkgerrors "github.com/pkg/errors"

	"github.com/totegamma/graphdoc/internal/infra/database/models"
)

// node is one occurrence of a record in a hydrated tree. The same record can
// appear under several parents, each with its own copy of the value.
type node struct {
	typ       string
	id        string
	value     map[string]any
	ancestors map[string]bool
}

func recordKey(typ, id string) string {
	return typ + "-" + id
}

func decode(record models.Record) (map[string]any, error) {
	value := map[string]any{}
	if record.Value != "" {
		if err := json.Unmarshal([]byte(record.Value), &value); err != nil {
			return nil, pkgerrors.Wrapf(err, "decode %s", recordKey(record.Type, record.ID))
		}
	}
	value["id"] = record.ID
	return value, nil
}

func newNodes(records []models.Record, ancestors map[string]bool) ([]*node, error) {
	nodes := make([]*node, len(records))
	for i, record := range records {
		value, err := decode(record)
		if err != nil {
			return nil, err
		}
		key := recordKey(record.Type, record.ID)
		path := make(map[string]bool, len(ancestors)+1)
		for k := range ancestors {
			path[k] = true
		}
		path[key] = true
		nodes[i] = &node{typ: record.Type, id: record.ID, value: value, ancestors: path}
	}
	return nodes, nil
}

// attach places targets into the fields of the nodes they are linked from and
// returns the newly created child nodes. Edges pointing back to an ancestor or
// to a missing record are skipped.
func attach(level []*node, edges []models.Edge, targets []models.Record) ([]*node, error) {
	byKey := make(map[string]models.Record, len(targets))
	for _, t := range targets {
		byKey[recordKey(t.Type, t.ID)] = t
	}

	parents := make(map[string][]*node, len(level))
	for _, n := range level {
		k := recordKey(n.typ, n.id)
		parents[k] = append(parents[k], n)
	}

	var next []*node
	for _, e := range edges {
		target, ok := byKey[recordKey(e.TargetType, e.TargetID)]
		if !ok {
			continue
		}
		for _, parent := range parents[recordKey(e.SourceType, e.SourceID)] {
			if parent.ancestors[recordKey(e.TargetType, e.TargetID)] {
				continue
			}
			children, err := newNodes([]models.Record{target}, parent.ancestors)
			if err != nil {
				return nil, err
			}
			child := children[0]

			if e.Many {
				list, _ := parent.value[e.Field].([]any)
				parent.value[e.Field] = append(list, child.value)
			} else {
				parent.value[e.Field] = child.value
			}
			next = append(next, child)
		}
	}
	return next, nil
}
