package domain

import "time"

// Record is one stored resource. Value holds its fields without the id.
type Record struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Value map[string]any `json:"value"`
	CDate time.Time      `json:"cdate"`
	MDate time.Time      `json:"mdate"`
}

// Edge links a field of one record to another record. Many edges of the same
// field are ordered by Position.
type Edge struct {
	SourceType string `json:"sourceType"`
	SourceID   string `json:"sourceID"`
	Field      string `json:"field"`
	Position   int    `json:"position"`
	TargetType string `json:"targetType"`
	TargetID   string `json:"targetID"`
	Many       bool   `json:"many"`
}

// Link is the write-side form of an edge, relative to the record being put.
type Link struct {
	Field string   `json:"field"`
	Type  string   `json:"type"`
	IDs   []string `json:"ids"`
	Many  bool     `json:"many"`
}

// Page selects a window of a collection ordered by id.
type Page struct {
	After  string
	Before string
	Limit  int
}

// Document returns the record value with its id, ready to serialize.
func (r Record) Document() map[string]any {
	out := make(map[string]any, len(r.Value)+1)
	for k, v := range r.Value {
		out[k] = v
	}
	out["id"] = r.ID
	return out
}
