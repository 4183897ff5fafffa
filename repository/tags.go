package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/slug"
	"tag_manager/tagerr"
)

// maxSlugAttempts bounds the create loop. Every retry re-reads the slugs in
// use so the suffix only grows; running out means the table is being written
// faster than we can read it.
const maxSlugAttempts = 10

var ErrTagNotFound = errors.New("tag not found")

// TagUsage is anything that references tags by id, usually a through table.
type TagUsage interface {
	// UsedTagIDs returns a subquery selecting every referenced tag id.
	UsedTagIDs(db *gorm.DB) *gorm.DB
}

// TagRepository reads and writes one tag table.
type TagRepository struct {
	db       *gorm.DB
	table    string
	slugOpts slug.Options
	log      zerolog.Logger
}

func NewTagRepository(db *gorm.DB, table string, opts slug.Options, log zerolog.Logger) *TagRepository {
	if table == "" {
		table = models.DefaultTagTable
	}
	return &TagRepository{db: db, table: table, slugOpts: opts, log: log}
}

// WithDB returns a copy bound to db, typically a transaction.
func (r *TagRepository) WithDB(db *gorm.DB) *TagRepository {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TagRepository) DB() *gorm.DB { return r.db }

// Table is the name of the tag table, which identifies the tag type.
func (r *TagRepository) Table() string { return r.table }

// Query starts a statement on the tag table. Callers add conditions.
func (r *TagRepository) Query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *TagRepository) first(ctx context.Context, op string, query string, args ...any) (*models.Tag, error) {
	var tag models.Tag
	err := r.Query(ctx).Where(query, args...).Order("id").Take(&tag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, tagerr.NewStorage(op, err)
	}
	return &tag, nil
}

func (r *TagRepository) FindByID(ctx context.Context, id uint) (*models.Tag, error) {
	return r.first(ctx, "find tag", "id = ?", id)
}

// FindByName matches the name exactly.
func (r *TagRepository) FindByName(ctx context.Context, name string) (*models.Tag, error) {
	return r.first(ctx, "find tag", "name = ?", name)
}

// FindByNameCaseInsensitive returns the oldest tag whose name folds to name.
func (r *TagRepository) FindByNameCaseInsensitive(ctx context.Context, name string) (*models.Tag, error) {
	return r.first(ctx, "find tag", "LOWER(name) = LOWER(?)", name)
}

func (r *TagRepository) FindBySlug(ctx context.Context, s string) (*models.Tag, error) {
	return r.first(ctx, "find tag", "slug = ?", s)
}

// FindByNames returns the tags whose names are in names, ordered by name.
func (r *TagRepository) FindByNames(ctx context.Context, names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.Query(ctx).Where("name IN ?", names).Order("name").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("find tags", err)
	}
	return tags, nil
}

func (r *TagRepository) FindBySlugs(ctx context.Context, slugs []string) ([]models.Tag, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.Query(ctx).Where("slug IN ?", slugs).Order("slug").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("find tags", err)
	}
	return tags, nil
}

func (r *TagRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := r.Query(ctx).Where("id IN ?", ids).Order("name").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("find tags", err)
	}
	return tags, nil
}

// All returns every tag ordered by id, oldest first.
func (r *TagRepository) All(ctx context.Context) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.Query(ctx).Order("id").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("list tags", err)
	}
	return tags, nil
}

// SlugsWithPrefix returns the set of slugs starting with prefix.
func (r *TagRepository) SlugsWithPrefix(ctx context.Context, prefix string) (map[string]bool, error) {
	var slugs []string
	err := r.Query(ctx).
		Where("slug LIKE ? ESCAPE '!'", escapeLike(prefix)+"%").
		Pluck("slug", &slugs).Error
	if err != nil {
		return nil, tagerr.NewStorage("find slugs", err)
	}
	used := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		used[s] = true
	}
	return used, nil
}

// Insert stores tag as given, without slug handling. A unique violation is
// returned as gorm.ErrDuplicatedKey.
func (r *TagRepository) Insert(ctx context.Context, tag *models.Tag) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(r.table).Create(tag).Error
	})
}

// Create inserts a tag named name with a unique slug.
//
// The insert is optimistic: it tries the base slug first and only reads the
// slugs in use after a unique violation. If a tag with the same name appeared
// meanwhile, that tag is returned. Two writers may still pick the same
// suffix concurrently; the loser simply retries with the next free one.
func (r *TagRepository) Create(ctx context.Context, name string) (*models.Tag, error) {
	if name == "" {
		return nil, tagerr.NewUsage("create tag", errors.New("tag name must not be empty"))
	}

	base := slug.Slugify(name, r.slugOpts)
	candidate := base
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		tag := models.Tag{Name: name, Slug: candidate}
		err := r.Insert(ctx, &tag)
		if err == nil {
			return &tag, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, tagerr.NewStorage("create tag", err)
		}

		existing, ferr := r.FindByName(ctx, name)
		if ferr == nil {
			return existing, nil
		}
		if !errors.Is(ferr, ErrTagNotFound) {
			return nil, ferr
		}

		used, err := r.SlugsWithPrefix(ctx, base)
		if err != nil {
			return nil, err
		}
		candidate = slug.Disambiguate(base, used)
		r.log.Debug().
			Str("table", r.table).
			Str("name", name).
			Str("slug", candidate).
			Msg("slug collision, retrying")
	}
	return nil, tagerr.NewUniqueness("create tag",
		fmt.Errorf("no free slug for %q after %d attempts", name, maxSlugAttempts))
}

// GetOrCreate returns the tag named name, creating it when absent.
func (r *TagRepository) GetOrCreate(ctx context.Context, name string) (*models.Tag, error) {
	tag, err := r.FindByName(ctx, name)
	if errors.Is(err, ErrTagNotFound) {
		return r.Create(ctx, name)
	}
	return tag, err
}

// Rename changes a tag's name. The slug stays as it is.
func (r *TagRepository) Rename(ctx context.Context, id uint, name string) error {
	if name == "" {
		return tagerr.NewUsage("rename tag", errors.New("tag name must not be empty"))
	}
	res := r.Query(ctx).Where("id = ?", id).Update("name", name)
	if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return tagerr.NewUniqueness("rename tag", fmt.Errorf("tag %q already exists", name))
	}
	if res.Error != nil {
		return tagerr.NewStorage("rename tag", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagNotFound
	}
	return nil
}

func (r *TagRepository) Delete(ctx context.Context, ids ...uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.Query(ctx).Where("id IN ?", ids).Delete(&models.Tag{})
	if res.Error != nil {
		return 0, tagerr.NewStorage("delete tags", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteUnused deletes the tags among ids that none of usages reference.
func (r *TagRepository) DeleteUnused(ctx context.Context, ids []uint, usages []TagUsage) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q := r.Query(ctx).Where("id IN ?", ids)
	for _, u := range usages {
		q = q.Where("id NOT IN (?)", u.UsedTagIDs(r.db.WithContext(ctx)))
	}
	res := q.Delete(&models.Tag{})
	if res.Error != nil {
		return 0, tagerr.NewStorage("delete unused tags", res.Error)
	}
	return res.RowsAffected, nil
}

// Orphans returns the tags none of usages reference, ordered by name.
func (r *TagRepository) Orphans(ctx context.Context, usages []TagUsage) ([]models.Tag, error) {
	q := r.Query(ctx)
	for _, u := range usages {
		q = q.Where("id NOT IN (?)", u.UsedTagIDs(r.db.WithContext(ctx)))
	}
	var tags []models.Tag
	if err := q.Order("name").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("find orphaned tags", err)
	}
	return tags, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
