package graphdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type OrderedEntry[T any] struct {
	Value T
	Order int64
}

// OrderedMap is a JSON object that keeps insertion order when marshaled.
type OrderedMap[T any] map[string]OrderedEntry[T]

// Set stores value under key. An existing key keeps its position.
func (om *OrderedMap[T]) Set(key string, value T) {
	if *om == nil {
		*om = make(OrderedMap[T])
	}
	m := *om
	if existing, ok := m[key]; ok {
		m[key] = OrderedEntry[T]{Value: value, Order: existing.Order}
		return
	}
	m[key] = OrderedEntry[T]{Value: value, Order: int64(len(m))}
}

func (om OrderedMap[T]) Get(key string) (T, bool) {
	e, ok := om[key]
	return e.Value, ok
}

func (om OrderedMap[T]) Keys() []string {
	type pair struct {
		key   string
		order int64
	}
	pairs := make([]pair, 0, len(om))
	for k, v := range om {
		pairs = append(pairs, pair{key: k, order: v.Order})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].order == pairs[j].order {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].order < pairs[j].order
	})
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.key
	}
	return keys
}

func (om OrderedMap[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range om.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valueBytes, err := json.Marshal(om[key].Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (om *OrderedMap[T]) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*om = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("ordered map: expected object, got %v", tok)
	}

	out := make(OrderedMap[T])
	var order int64
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("ordered map: invalid key %v", keyTok)
		}
		var value T
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out[key] = OrderedEntry[T]{Value: value, Order: order}
		order++
	}
	*om = out
	return nil
}
