package models

import (
	"time"
)

type Record struct {
	Type  string    `json:"type" gorm:"primaryKey;type:text"`
	ID    string    `json:"id" gorm:"primaryKey;type:text"`
	Value string    `json:"value" gorm:"type:jsonb;not null"`
	CDate time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate time.Time `json:"mdate" gorm:"autoUpdateTime"`
}

type Edge struct {
	SourceType string `json:"sourceType" gorm:"primaryKey;type:text"`
	SourceID   string `json:"sourceID" gorm:"primaryKey;type:text"`
	Field      string `json:"field" gorm:"primaryKey;type:text"`
	Position   int    `json:"position" gorm:"primaryKey"`
	TargetType string `json:"targetType" gorm:"type:text;index:idx_edge_target"`
	TargetID   string `json:"targetID" gorm:"type:text;index:idx_edge_target"`
	Many       bool   `json:"many" gorm:"type:boolean;not null;default:false"`
}
