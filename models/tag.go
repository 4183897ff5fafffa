package models

import (
	"time"
)

// DefaultTagTable holds tags unless a custom tag type is configured.
const DefaultTagTable = "tags"

type Tag struct {
	ID        uint      `json:"id" yaml:"id" gorm:"primaryKey"`
	Name      string    `json:"name" yaml:"name" gorm:"size:100;uniqueIndex;not null"`
	Slug      string    `json:"slug" yaml:"slug" gorm:"size:128;uniqueIndex;not null"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func (Tag) TableName() string {
	return DefaultTagTable
}
