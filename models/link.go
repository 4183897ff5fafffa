package models

import (
	"time"
)

// LinkRecordType is the record type of links in change notifications.
const LinkRecordType = "links"

type Link struct {
	ID          uint       `json:"id" yaml:"id" gorm:"primaryKey"`
	OriginalURL string     `json:"original_url" yaml:"original_url" gorm:"not null"`
	ShortCode   string     `json:"short_code" yaml:"short_code" gorm:"unique;not null"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at" yaml:"expires_at,omitempty"`
	Tags        []LinkTag  `json:"-" yaml:"-" gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE"`
}

// Ref returns the record reference used to manage the link's tags.
func (l *Link) Ref() RecordRef {
	return RecordRef{Type: LinkRecordType, ID: l.ID}
}
