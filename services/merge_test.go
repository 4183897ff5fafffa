package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/tagerr"
)

func TestMergeCaseInsensitiveDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	green, green2, green3 := f.tag(t, "green"), f.tag(t, "Green"), f.tag(t, "GREEN")
	red := f.tag(t, "red")
	link := f.link(t, "abc")

	f.attach(t, f.generic, article(1), green, green2, red)
	f.attach(t, f.generic, article(2), green3)
	f.attach(t, f.links, link.Ref(), green2)

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())
	res, err := svc.MergeCaseInsensitiveDuplicates(ctx, "green")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Canonical: "green", Repointed: 2, Dropped: 1, TagsDeleted: 2}, res)

	all, err := f.tags.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"green", "red"}, names(all))

	got, err := f.generic.TagsForRecord(ctx, article(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"green", "red"}, names(got))
	got, err = f.generic.TagsForRecord(ctx, article(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"green"}, names(got))
	got, err = f.links.TagsForRecord(ctx, link.Ref())
	require.NoError(t, err)
	assert.Equal(t, []string{"green"}, names(got))

	again, err := svc.MergeCaseInsensitiveDuplicates(ctx, "green")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Canonical: "green"}, again)
}

func TestMergeSkipsMissingCanonical(t *testing.T) {
	f := newFixture(t)
	f.attach(t, f.generic, article(1), f.tag(t, "Blue"))

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())
	res, err := svc.MergeCaseInsensitiveDuplicates(context.Background(), "blue")
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Canonical: "blue"}, res)
	assert.EqualValues(t, 1, f.tagCount(t))
}

func TestMergeRequiresSelector(t *testing.T) {
	f := newFixture(t)
	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())

	_, err := svc.Merge(context.Background(), "green", nil)
	assert.ErrorIs(t, err, tagerr.ErrNotCallable)
}

func TestMergeWithRegexSelector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yummy := f.tag(t, "yummy")
	f.attach(t, f.generic, article(1), f.tag(t, "yummmy"), f.tag(t, "yum"))
	f.attach(t, f.generic, article(2), yummy)

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())
	res, err := svc.Merge(ctx, "yummy", RegexSelector(`^yum+y$`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Repointed)
	assert.EqualValues(t, 1, res.TagsDeleted)

	got, err := f.generic.TagsForRecord(ctx, article(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"yum", "yummy"}, names(got))

	_, err = svc.Merge(ctx, "yummy", RegexSelector(`yum(`))
	assert.True(t, tagerr.IsValidation(err), "got %v", err)
}

func TestMergeRegexSelectorTimeout(t *testing.T) {
	saved := regexTimeout
	regexTimeout = 10 * time.Millisecond
	t.Cleanup(func() { regexTimeout = saved })

	f := newFixture(t)
	ctx := context.Background()
	f.tag(t, "a")
	f.attach(t, f.generic, article(1), f.tag(t, strings.Repeat("a", 40)+"!"))

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())
	_, err := svc.Merge(ctx, "a", RegexSelector(`^(a+)+$`))
	require.Error(t, err)
	assert.True(t, tagerr.IsValidation(err), "got %v", err)

	// nothing was merged
	assert.EqualValues(t, 2, f.tagCount(t))
}

func TestMergeFailureKeepsEarlierTables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	green, dup := f.tag(t, "green"), f.tag(t, "Green")
	link := f.link(t, "abc")
	f.attach(t, f.generic, article(1), dup)
	f.attach(t, f.links, link.Ref(), dup)

	boom := errors.New("boom")
	calls := 0
	failSecond := func(tags *gorm.DB, canonical string) *gorm.DB {
		calls++
		if calls == 2 {
			db := tags.Session(&gorm.Session{})
			_ = db.AddError(boom)
			return db
		}
		return CaseInsensitiveSelector(tags, canonical)
	}

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())
	res, err := svc.Merge(ctx, "green", failSecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, tagerr.IsStorage(err))
	assert.Contains(t, err.Error(), `merge "green" in link_tags`)
	assert.Equal(t, 1, res.Repointed)

	got, err := f.generic.TagsForRecord(ctx, article(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, green.ID, got[0].ID)
	got, err = f.links.TagsForRecord(ctx, link.Ref())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, dup.ID, got[0].ID)

	// still referenced by link_tags
	assert.EqualValues(t, 2, f.tagCount(t))
}

func TestMergeSlugs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	python := f.tag(t, "python")
	python1 := f.tag(t, "Python")
	require.Equal(t, "python_1", python1.Slug)
	f.attach(t, f.generic, article(1), python1)
	f.attach(t, f.generic, article(2), python, python1)

	svc := NewMergeService(f.registry, Options{}, zerolog.Nop())

	_, err := svc.MergeSlugs(ctx, models.DefaultTagTable, "nope", []string{"python_1"})
	assert.True(t, tagerr.IsValidation(err))
	_, err = svc.MergeSlugs(ctx, models.DefaultTagTable, "python", []string{"python_1", "python_9"})
	assert.True(t, tagerr.IsValidation(err))
	_, err = svc.MergeSlugs(ctx, "labels", "python", []string{"python_1"})
	assert.True(t, tagerr.IsUsage(err))

	res, err := svc.MergeSlugs(ctx, models.DefaultTagTable, "python", []string{"python_1"})
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Canonical: "python", Repointed: 1, Dropped: 1, TagsDeleted: 1}, res)

	_, err = f.tags.FindBySlug(ctx, "python_1")
	assert.Error(t, err)
}

func TestDeduplicateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := NewMergeService(f.registry, Options{}, zerolog.Nop()).DeduplicateAll(ctx)
	assert.True(t, tagerr.IsUsage(err))

	spain, spain2, spain3 := f.tag(t, "Spain"), f.tag(t, "spain"), f.tag(t, "SPAIN")
	other := f.tag(t, "france")
	f.attach(t, f.generic, article(1), spain2, other)
	f.attach(t, f.generic, article(2), spain, spain3)

	svc := NewMergeService(f.registry, Options{CaseInsensitive: true}, zerolog.Nop())
	res, err := svc.DeduplicateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Repointed)
	assert.Equal(t, 1, res.Dropped)
	assert.EqualValues(t, 2, res.TagsDeleted)

	all, err := f.tags.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Spain", "france"}, names(all))

	got, err := f.generic.TagsForRecord(ctx, article(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"Spain", "france"}, names(got))
	got, err = f.generic.TagsForRecord(ctx, article(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"Spain"}, names(got))
}
