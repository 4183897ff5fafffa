package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordRefPersisted(t *testing.T) {
	tests := []struct {
		name string
		ref  RecordRef
		want bool
	}{
		{"nil id", RecordRef{Type: "article"}, false},
		{"zero int", RecordRef{Type: "article", ID: 0}, false},
		{"zero uint", RecordRef{Type: "article", ID: uint(0)}, false},
		{"empty string", RecordRef{Type: "article", ID: ""}, false},
		{"int", RecordRef{Type: "article", ID: 7}, true},
		{"string", RecordRef{Type: "article", ID: "a1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ref.Persisted())
		})
	}
}

func TestRecordRefString(t *testing.T) {
	assert.Equal(t, "article:7", RecordRef{Type: "article", ID: 7}.String())
	link := &Link{ID: 3}
	assert.Equal(t, RecordRef{Type: LinkRecordType, ID: uint(3)}, link.Ref())
}
