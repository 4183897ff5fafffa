package services

import (
	"context"

	"github.com/google/uuid"

	"tag_manager/models"
)

type Action string

const (
	PreAdd     Action = "pre_add"
	PostAdd    Action = "post_add"
	PreRemove  Action = "pre_remove"
	PostRemove Action = "post_remove"
	PreClear   Action = "pre_clear"
	PostClear  Action = "post_clear"
)

// Change describes one step of a tag set update. The pre and post events of
// one operation share ID. TagIDs is nil for clears.
type Change struct {
	ID      uuid.UUID
	Action  Action
	Through string
	Record  models.RecordRef
	TagType string
	TagIDs  []uint
	Using   string
}

// Observer receives tag set changes. Returning an error aborts the
// operation and rolls back its transaction.
type Observer interface {
	TagsChanged(ctx context.Context, change Change) error
}

type ObserverFunc func(ctx context.Context, change Change) error

func (f ObserverFunc) TagsChanged(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Observers fans a change out to each observer in order.
type Observers []Observer

func (o Observers) TagsChanged(ctx context.Context, change Change) error {
	for _, obs := range o {
		if err := obs.TagsChanged(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) TagsChanged(context.Context, Change) error { return nil }
