package domain

import "time"

type ChangeOp string

const (
	ChangeOpPut    ChangeOp = "put"
	ChangeOpDelete ChangeOp = "delete"
)

// Change announces that a resource was written or removed.
type Change struct {
	Tag  string    `json:"tag"`
	Type string    `json:"type"`
	ID   string    `json:"id"`
	Op   ChangeOp  `json:"op"`
	At   time.Time `json:"at"`
}

// Channel is the pub/sub channel that carries changes of one type.
func Channel(resourceType string) string {
	return "graphdoc:changes:" + resourceType
}
