package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tag_manager/database/dbtest"
	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/slug"
)

type recorder struct {
	changes []Change
}

func (r *recorder) TagsChanged(_ context.Context, c Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func (r *recorder) actions() []Action {
	out := make([]Action, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Action
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	tags     *repository.TagRepository
	generic  *repository.Through
	links    *repository.Through
	registry *repository.Registry
	events   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	tags := repository.NewTagRepository(db, "", slug.Options{}, zerolog.Nop())
	generic := repository.NewGeneric(db, "", tags)
	links := repository.NewDirect(db, "link_tags", "link_id", models.LinkRecordType, tags)
	return &fixture{
		db:       db,
		tags:     tags,
		generic:  generic,
		links:    links,
		registry: repository.NewRegistry(generic, links),
		events:   &recorder{},
	}
}

func (f *fixture) manager(opts Options) *TagManager {
	return NewTagManager(f.generic, opts, f.events, zerolog.Nop())
}

func (f *fixture) linkManager(opts Options) *TagManager {
	return NewTagManager(f.links, opts, f.events, zerolog.Nop())
}

func (f *fixture) tag(t *testing.T, name string) *models.Tag {
	t.Helper()
	tag, err := f.tags.Create(context.Background(), name)
	require.NoError(t, err)
	return tag
}

// attach links rec to existing tags without going through a manager, so
// duplicates that differ by case can be set up.
func (f *fixture) attach(t *testing.T, a repository.Associations, rec models.RecordRef, tags ...*models.Tag) {
	t.Helper()
	for _, tag := range tags {
		_, err := a.InsertIfAbsent(context.Background(), rec, tag.ID, nil)
		require.NoError(t, err)
	}
}

func (f *fixture) link(t *testing.T, code string) *models.Link {
	t.Helper()
	link := &models.Link{OriginalURL: "https://example.com/" + code, ShortCode: code}
	require.NoError(t, f.db.Omit("Tags").Create(link).Error)
	return link
}

func (f *fixture) tagCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Tag{}).Count(&n).Error)
	return n
}

func article(id int) models.RecordRef { return models.RecordRef{Type: "article", ID: id} }

func names(tags []models.Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out
}
