package models

import (
	"time"

	"gorm.io/datatypes"
)

// LinkTag is a direct association: a foreign key to links instead of a
// type/id pair.
type LinkTag struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	LinkID    uint              `json:"link_id" gorm:"not null;uniqueIndex:,composite:record_tag"`
	TagID     uint              `json:"tag_id" gorm:"not null;index;uniqueIndex:,composite:record_tag"`
	Extra     datatypes.JSONMap `json:"extra,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
