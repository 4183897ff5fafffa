package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenericThroughTable holds associations for any record type.
const GenericThroughTable = "tagged_items"

// TaggedItem is a generic association. ObjectID is the record's primary key
// rendered as text so that records with any key type can be tagged.
type TaggedItem struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	ContentType string            `json:"content_type" gorm:"size:100;not null;uniqueIndex:,composite:record_tag;index:,composite:record"`
	ObjectID    string            `json:"object_id" gorm:"size:255;not null;uniqueIndex:,composite:record_tag;index:,composite:record"`
	TagID       uint              `json:"tag_id" gorm:"not null;index;uniqueIndex:,composite:record_tag"`
	Extra       datatypes.JSONMap `json:"extra,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func (TaggedItem) TableName() string {
	return GenericThroughTable
}
