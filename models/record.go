package models

import (
	"fmt"
	"reflect"
	"time"

	"gorm.io/datatypes"
)

// RecordRef identifies a tagged record without knowing its Go type.
type RecordRef struct {
	Type string `json:"type" yaml:"type"`
	ID   any    `json:"id" yaml:"id"`
}

// Persisted reports whether the record has an identity. A nil or zero ID
// means the record has not been saved yet.
func (r RecordRef) Persisted() bool {
	if r.ID == nil {
		return false
	}
	return !reflect.ValueOf(r.ID).IsZero()
}

func (r RecordRef) String() string {
	return fmt.Sprintf("%s:%v", r.Type, r.ID)
}

// Association is one record-to-tag link as read from any through table.
type Association struct {
	ID        uint
	TagID     uint
	Record    RecordRef
	Extra     datatypes.JSONMap
	CreatedAt time.Time
}
