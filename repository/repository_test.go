package repository

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tag_manager/database/dbtest"
	"tag_manager/models"
	"tag_manager/slug"
	"tag_manager/tagerr"
)

type fixture struct {
	db      *gorm.DB
	tags    *TagRepository
	generic *Through
	links   *Through
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	tags := NewTagRepository(db, "", slug.Options{}, zerolog.Nop())
	return &fixture{
		db:      db,
		tags:    tags,
		generic: NewGeneric(db, "", tags),
		links:   NewDirect(db, "link_tags", "link_id", models.LinkRecordType, tags),
	}
}

func (f *fixture) tag(t *testing.T, name string) *models.Tag {
	t.Helper()
	tag, err := f.tags.Create(context.Background(), name)
	require.NoError(t, err)
	return tag
}

func (f *fixture) link(t *testing.T, code string) *models.Link {
	t.Helper()
	link := &models.Link{OriginalURL: "https://example.com/" + code, ShortCode: code}
	require.NoError(t, f.db.Create(link).Error)
	return link
}

func (f *fixture) attach(t *testing.T, a Associations, rec models.RecordRef, names ...string) {
	t.Helper()
	for _, name := range names {
		tag, err := f.tags.GetOrCreate(context.Background(), name)
		require.NoError(t, err)
		_, err = a.InsertIfAbsent(context.Background(), rec, tag.ID, nil)
		require.NoError(t, err)
	}
}

func article(id int) models.RecordRef { return models.RecordRef{Type: "article", ID: id} }

func TestCreateAssignsSlug(t *testing.T) {
	f := newFixture(t)

	tag := f.tag(t, "Machine Learning")
	assert.NotZero(t, tag.ID)
	assert.Equal(t, "machine-learning", tag.Slug)
	assert.False(t, tag.CreatedAt.IsZero())
}

func TestCreateDisambiguatesSlugs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, "python", f.tag(t, "Python").Slug)
	assert.Equal(t, "python_1", f.tag(t, "python").Slug)
	assert.Equal(t, "python_2", f.tag(t, "PYTHON").Slug)

	// a suffix taken out of order is skipped
	require.NoError(t, f.tags.Insert(ctx, &models.Tag{Name: "py thon", Slug: "python_3"}))
	assert.Equal(t, "python_4", f.tag(t, "PyThOn").Slug)
}

func TestCreateReusesGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tag(t, "go")
	second := f.tag(t, "Go")
	f.tag(t, "GO")
	_, err := f.tags.Delete(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, "go_1", f.tag(t, "gO").Slug)
}

func TestCreateReturnsExistingName(t *testing.T) {
	f := newFixture(t)

	first := f.tag(t, "rust")
	again := f.tag(t, "rust")
	assert.Equal(t, first.ID, again.ID)

	var n int64
	require.NoError(t, f.db.Model(&models.Tag{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCreateEmptySlug(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "", f.tag(t, "Привет").Slug)
	assert.Equal(t, "_1", f.tag(t, "Мир").Slug)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	_, err := f.tags.Create(context.Background(), "")
	assert.True(t, tagerr.IsUsage(err))
}

func TestCreateTransliterates(t *testing.T) {
	db := dbtest.New(t)
	tags := NewTagRepository(db, "", slug.Options{Transliterate: true}, zerolog.Nop())

	tag, err := tags.Create(context.Background(), "Привет")
	require.NoError(t, err)
	assert.Equal(t, "privet", tag.Slug)
}

func TestCustomTagTable(t *testing.T) {
	db := dbtest.New(t, "labels")
	labels := NewTagRepository(db, "labels", slug.Options{}, zerolog.Nop())
	ctx := context.Background()

	tag, err := labels.Create(ctx, "urgent")
	require.NoError(t, err)
	assert.Equal(t, "labels", labels.Table())

	_, err = NewTagRepository(db, "", slug.Options{}, zerolog.Nop()).FindByName(ctx, "urgent")
	assert.ErrorIs(t, err, ErrTagNotFound)

	found, err := labels.FindBySlug(ctx, "urgent")
	require.NoError(t, err)
	assert.Equal(t, tag.ID, found.ID)
}

func TestSlugsWithPrefixEscapesWildcards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tag(t, "a_b")
	f.tag(t, "axb")
	f.tag(t, "a_b c")

	used, err := f.tags.SlugsWithPrefix(ctx, "a_b")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a_b": true, "a_b-c": true}, used)
}

func TestFindByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tag(t, "Spain")

	_, err := f.tags.FindByName(ctx, "spain")
	assert.ErrorIs(t, err, ErrTagNotFound)

	tag, err := f.tags.FindByNameCaseInsensitive(ctx, "SPAIN")
	require.NoError(t, err)
	assert.Equal(t, "Spain", tag.Name)

	f.tag(t, "France")
	tags, err := f.tags.FindByNames(ctx, []string{"Spain", "France", "Italy"})
	require.NoError(t, err)
	assert.Equal(t, []string{"France", "Spain"}, names(tags))
}

func TestRenameKeepsSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tag := f.tag(t, "golang")
	f.tag(t, "go")

	require.NoError(t, f.tags.Rename(ctx, tag.ID, "Go language"))
	renamed, err := f.tags.FindByID(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go language", renamed.Name)
	assert.Equal(t, "golang", renamed.Slug)

	err = f.tags.Rename(ctx, tag.ID, "go")
	assert.Equal(t, tagerr.Uniqueness, tagerr.KindOf(err))

	assert.ErrorIs(t, f.tags.Rename(ctx, 9999, "nothing"), ErrTagNotFound)
}

func TestInsertIfAbsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tag := f.tag(t, "news")

	first, err := f.generic.InsertIfAbsent(ctx, article(1), tag.ID, datatypes.JSONMap{"source": "import"})
	require.NoError(t, err)
	second, err := f.generic.InsertIfAbsent(ctx, article(1), tag.ID, datatypes.JSONMap{"source": "other"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "import", second.Extra["source"])
	assert.Equal(t, models.RecordRef{Type: "article", ID: "1"}, second.Record)

	rows, err := f.generic.ForRecord(ctx, article(1))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUnsavedRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.generic.ForRecord(ctx, models.RecordRef{Type: "article"})
	assert.ErrorIs(t, err, tagerr.ErrRequiresPersistedRecord)

	_, err = f.links.InsertIfAbsent(ctx, (&models.Link{}).Ref(), 1, nil)
	assert.ErrorIs(t, err, tagerr.ErrRequiresPersistedRecord)
}

func TestDirectAssociations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link := f.link(t, "abc123")
	other := f.link(t, "xyz789")

	f.attach(t, f.links, link.Ref(), "go", "databases")
	f.attach(t, f.links, other.Ref(), "go")

	tags, err := f.links.TagsForRecord(ctx, link.Ref())
	require.NoError(t, err)
	assert.Equal(t, []string{"databases", "go"}, names(tags))

	rows, err := f.links.ForRecord(ctx, link.Ref())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, link.Ref(), rows[0].Record)

	var stored []models.LinkTag
	require.NoError(t, f.db.Where("link_id = ?", link.ID).Find(&stored).Error)
	assert.Len(t, stored, 2)

	similar, err := f.links.SharingTags(ctx, link.Ref())
	require.NoError(t, err)
	assert.Equal(t, []SimilarRecord{{Record: other.Ref(), SharedTags: 1}}, similar)

	_, err = f.links.ForRecord(ctx, article(1))
	assert.True(t, tagerr.IsUsage(err))
}

func TestDeleteByTagIDsAndAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attach(t, f.generic, article(1), "a", "b", "c")
	f.attach(t, f.generic, article(2), "a")
	a, err := f.tags.FindByName(ctx, "a")
	require.NoError(t, err)
	c, err := f.tags.FindByName(ctx, "c")
	require.NoError(t, err)
	unused := f.tag(t, "unused")

	n, err := f.generic.DeleteByTagIDs(ctx, article(1), []uint{a.ID, c.ID, unused.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	tags, err := f.generic.TagsForRecord(ctx, article(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(tags))

	n, err = f.generic.DeleteAll(ctx, article(1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// other records are untouched
	tags, err = f.generic.TagsForRecord(ctx, article(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(tags))
}

func TestRepointAndExists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attach(t, f.generic, article(1), "old")
	target := f.tag(t, "new")
	old, err := f.tags.FindByName(ctx, "old")
	require.NoError(t, err)

	rows, err := f.generic.ByTagIDs(ctx, []uint{old.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, f.generic.Repoint(ctx, rows[0].ID, target.ID))

	ok, err := f.generic.Exists(ctx, article(1), target.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.generic.Exists(ctx, article(1), old.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountByTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attach(t, f.generic, article(1), "a", "b", "c")
	f.attach(t, f.generic, article(2), "a", "b")
	f.tag(t, "unused")

	query := f.generic.CountByTag()
	// the query only runs when read, so rows added now are counted
	f.attach(t, f.generic, models.RecordRef{Type: "video", ID: 1}, "a")

	counts, err := query.All(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, "a", counts[0].Name)
	assert.EqualValues(t, 3, counts[0].Count)
	assert.Equal(t, "b", counts[1].Name)
	assert.EqualValues(t, 2, counts[1].Count)

	counts, err = query.MinCount(2).All(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, 2)

	counts, err = query.RecordType("video").All(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.EqualValues(t, 1, counts[0].Count)

	var seen []string
	err = query.Limit(2).Iter(ctx, func(c TagCount) error {
		seen = append(seen, c.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestSharingTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attach(t, f.generic, article(1), "a", "b", "c")
	f.attach(t, f.generic, article(2), "a", "b")
	f.attach(t, f.generic, article(3), "c")
	f.attach(t, f.generic, article(4), "d")
	f.attach(t, f.generic, models.RecordRef{Type: "video", ID: 1}, "a", "b", "c")

	similar, err := f.generic.SharingTags(ctx, article(1))
	require.NoError(t, err)
	assert.Equal(t, []SimilarRecord{
		{Record: models.RecordRef{Type: "article", ID: "2"}, SharedTags: 2},
		{Record: models.RecordRef{Type: "article", ID: "3"}, SharedTags: 1},
	}, similar)
}

func TestTagsInUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.attach(t, f.generic, article(1), "b", "a")
	f.attach(t, f.generic, models.RecordRef{Type: "video", ID: 7}, "c")
	f.tag(t, "unused")

	tags, err := f.generic.TagsInUse(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(tags))

	tags, err = f.generic.TagsInUse(ctx, "video")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names(tags))
}

func TestOrphansAndDeleteUnused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	link := f.link(t, "l1")
	f.attach(t, f.generic, article(1), "used-generic")
	f.attach(t, f.links, link.Ref(), "used-link")
	lonely := f.tag(t, "lonely")
	usages := []TagUsage{f.generic, f.links}

	orphans, err := f.tags.Orphans(ctx, usages)
	require.NoError(t, err)
	assert.Equal(t, []string{"lonely"}, names(orphans))

	used, err := f.tags.FindByName(ctx, "used-link")
	require.NoError(t, err)
	n, err := f.tags.DeleteUnused(ctx, []uint{lonely.ID, used.ID}, usages)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.tags.FindByID(ctx, lonely.ID)
	assert.ErrorIs(t, err, ErrTagNotFound)
	_, err = f.tags.FindByID(ctx, used.ID)
	assert.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	f := newFixture(t)
	labels := NewTagRepository(f.db, "labels", slug.Options{}, zerolog.Nop())
	labelled := NewGeneric(f.db, "labelled_items", labels)

	reg := NewRegistry(f.generic, f.links, labelled, f.generic)
	assert.Len(t, reg.All(), 3)
	assert.Equal(t, []string{"tags", "labels"}, reg.TagTables())
	assert.Len(t, reg.ForTagTable("tags"), 2)
	assert.Len(t, reg.Usages("labels"), 1)

	got, ok := reg.Lookup("link_tags")
	require.True(t, ok)
	assert.Equal(t, "link_tags", got.Name())
	_, ok = reg.Lookup("nope")
	assert.False(t, ok)
}

func names(tags []models.Tag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.Name
	}
	return out
}
