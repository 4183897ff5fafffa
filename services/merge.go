package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/tagerr"
)

// Selector picks the duplicates of canonicalName from a query on one tag
// table. The canonical tag itself is excluded afterwards, so a selector may
// match it.
type Selector func(tags *gorm.DB, canonicalName string) *gorm.DB

// CaseInsensitiveSelector matches tags whose name equals the canonical name
// ignoring case.
func CaseInsensitiveSelector(tags *gorm.DB, canonicalName string) *gorm.DB {
	return tags.Where("LOWER(name) = LOWER(?)", canonicalName)
}

func SlugSelector(slugs ...string) Selector {
	return func(tags *gorm.DB, _ string) *gorm.DB {
		return tags.Where("slug IN ?", slugs)
	}
}

func IDSelector(ids ...uint) Selector {
	return func(tags *gorm.DB, _ string) *gorm.DB {
		return tags.Where("id IN ?", ids)
	}
}

// RegexSelector matches tag names against pattern. Patterns use .NET/Python
// style syntax; an invalid pattern or a match that times out fails the merge
// with a validation error.
func RegexSelector(pattern string) Selector {
	re, compileErr := regexp2.Compile(pattern, regexp2.None)
	if compileErr == nil {
		re.MatchTimeout = regexTimeout
	}
	return func(tags *gorm.DB, _ string) *gorm.DB {
		if compileErr != nil {
			db := tags.Session(&gorm.Session{})
			_ = db.AddError(tagerr.NewValidation("regex selector", fmt.Errorf("invalid pattern %q: %w", pattern, compileErr)))
			return db
		}
		var all []models.Tag
		if err := tags.Session(&gorm.Session{}).Find(&all).Error; err != nil {
			db := tags.Session(&gorm.Session{})
			_ = db.AddError(err)
			return db
		}
		ids := []uint{}
		for _, tag := range all {
			ok, err := re.MatchString(tag.Name)
			if err != nil {
				db := tags.Session(&gorm.Session{})
				_ = db.AddError(tagerr.NewValidation("regex selector", fmt.Errorf("match %q against %q: %w", pattern, tag.Name, err)))
				return db
			}
			if ok {
				ids = append(ids, tag.ID)
			}
		}
		return tags.Where("id IN ?", ids)
	}
}

// MergeResult summarizes one merge.
type MergeResult struct {
	Canonical string `json:"canonical" yaml:"canonical"`
	// Repointed associations now point at the canonical tag.
	Repointed int `json:"repointed" yaml:"repointed"`
	// Dropped associations were deleted because their record already had
	// the canonical tag.
	Dropped     int   `json:"dropped" yaml:"dropped"`
	TagsDeleted int64 `json:"tags_deleted" yaml:"tags_deleted"`
}

func (r *MergeResult) add(o MergeResult) {
	r.Repointed += o.Repointed
	r.Dropped += o.Dropped
	r.TagsDeleted += o.TagsDeleted
}

// MergeService folds duplicate tags into a canonical one across every
// registered association table.
type MergeService struct {
	registry *repository.Registry
	opts     Options
	log      zerolog.Logger
}

func NewMergeService(registry *repository.Registry, opts Options, log zerolog.Logger) *MergeService {
	return &MergeService{registry: registry, opts: opts, log: log}
}

// MergeCaseInsensitiveDuplicates merges every tag whose name equals
// canonical ignoring case into the tag named exactly canonical.
func (s *MergeService) MergeCaseInsensitiveDuplicates(ctx context.Context, canonical string) (MergeResult, error) {
	return s.Merge(ctx, canonical, CaseInsensitiveSelector)
}

// Merge repoints associations of the tags picked by selector to the tag
// named canonical and deletes the duplicates once nothing references them.
//
// Each association table is merged in its own transaction; a failure rolls
// back that table only and earlier tables stay merged. Tables whose tag type
// has no tag named canonical are skipped. Merging again is a no-op.
func (s *MergeService) Merge(ctx context.Context, canonical string, selector Selector) (MergeResult, error) {
	if selector == nil {
		return MergeResult{}, tagerr.ErrNotCallable
	}
	return s.merge(ctx, s.registry.All(), canonical, selector)
}

func (s *MergeService) merge(ctx context.Context, throughs []repository.Associations, canonical string, selector Selector) (MergeResult, error) {
	total := MergeResult{Canonical: canonical}
	runID := uuid.New()
	for _, through := range throughs {
		var res MergeResult
		err := through.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = s.mergeOne(ctx, through.WithDB(tx), canonical, selector)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("merge %q in %s: %w", canonical, through.Name(), err)
		}
		total.add(res)
		s.log.Info().
			Str("run", runID.String()).
			Str("through", through.Name()).
			Str("canonical", canonical).
			Int("repointed", res.Repointed).
			Int("dropped", res.Dropped).
			Int64("tags_deleted", res.TagsDeleted).
			Msg("merged tags")
	}
	return total, nil
}

func (s *MergeService) mergeOne(ctx context.Context, through repository.Associations, canonical string, selector Selector) (MergeResult, error) {
	res := MergeResult{Canonical: canonical}
	tags := through.Tags()

	base, err := tags.FindByName(ctx, canonical)
	if errors.Is(err, repository.ErrTagNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	q := selector(tags.Query(ctx), canonical)
	if q == nil {
		return res, tagerr.NewUsage("merge", errors.New("selector returned no query"))
	}
	var dups []models.Tag
	if err := q.Where("id <> ?", base.ID).Find(&dups).Error; err != nil {
		return res, tagerr.NewStorage("select duplicates", err)
	}
	if len(dups) == 0 {
		return res, nil
	}
	ids := make([]uint, len(dups))
	for i, d := range dups {
		ids[i] = d.ID
	}

	assocs, err := through.ByTagIDs(ctx, ids)
	if err != nil {
		return res, err
	}
	var drop []uint
	for _, a := range assocs {
		exists, err := through.Exists(ctx, a.Record, base.ID)
		if err != nil {
			return res, err
		}
		if exists {
			drop = append(drop, a.ID)
			continue
		}
		if err := through.Repoint(ctx, a.ID, base.ID); err != nil {
			return res, err
		}
		res.Repointed++
	}
	if _, err := through.Delete(ctx, drop...); err != nil {
		return res, err
	}
	res.Dropped = len(drop)

	res.TagsDeleted, err = tags.DeleteUnused(ctx, ids, s.registry.Usages(tags.Table()))
	if err != nil {
		return res, err
	}
	return res, nil
}

// MergeSlugs merges the tags with the given slugs into the tag with slug
// into, within one tag table. Every slug must exist.
func (s *MergeService) MergeSlugs(ctx context.Context, tagTable, into string, slugs []string) (MergeResult, error) {
	throughs := s.registry.ForTagTable(tagTable)
	if len(throughs) == 0 {
		return MergeResult{}, tagerr.NewUsage("merge slugs", fmt.Errorf("no association table uses tag table %q", tagTable))
	}
	tags := throughs[0].Tags()

	dest, err := tags.FindBySlug(ctx, into)
	if errors.Is(err, repository.ErrTagNotFound) {
		return MergeResult{}, tagerr.NewValidation("merge slugs", fmt.Errorf("destination tag %q does not exist", into))
	}
	if err != nil {
		return MergeResult{}, err
	}

	found, err := tags.FindBySlugs(ctx, slugs)
	if err != nil {
		return MergeResult{}, err
	}
	have := make(map[string]bool, len(found))
	for _, t := range found {
		have[t.Slug] = true
	}
	var missing []string
	for _, sl := range slugs {
		if !have[sl] {
			missing = append(missing, sl)
		}
	}
	if len(missing) > 0 {
		return MergeResult{}, tagerr.NewValidation("merge slugs", fmt.Errorf("unknown tag slugs: %s", strings.Join(missing, ", ")))
	}

	return s.merge(ctx, throughs, dest.Name, SlugSelector(slugs...))
}

// DeduplicateAll merges every group of tags whose names differ only by case
// into the oldest tag of the group. It requires case-insensitive mode.
func (s *MergeService) DeduplicateAll(ctx context.Context) (MergeResult, error) {
	total := MergeResult{}
	if !s.opts.CaseInsensitive {
		return total, tagerr.NewUsage("deduplicate", errors.New("case-insensitive tagging must be enabled to deduplicate tags"))
	}

	for _, table := range s.registry.TagTables() {
		throughs := s.registry.ForTagTable(table)
		all, err := throughs[0].Tags().All(ctx)
		if err != nil {
			return total, err
		}

		groups := make(map[string][]models.Tag)
		var order []string
		for _, tag := range all {
			key := strings.ToLower(tag.Name)
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], tag)
		}

		for _, key := range order {
			group := groups[key]
			if len(group) < 2 {
				continue
			}
			ids := make([]uint, 0, len(group)-1)
			for _, t := range group[1:] {
				ids = append(ids, t.ID)
			}
			res, err := s.merge(ctx, throughs, group[0].Name, IDSelector(ids...))
			if err != nil {
				return total, err
			}
			total.add(res)
		}
	}
	return total, nil
}
