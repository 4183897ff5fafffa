package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tag_manager/config"
	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/tagerr"
	"tag_manager/tagstring"
)

// Options controls name matching and tag string handling.
type Options struct {
	// CaseInsensitive makes "Spain" and "spain" the same tag when resolving
	// names and removing tags.
	CaseInsensitive bool
	Parser          tagstring.Parser
}

// OptionsFromConfig resolves the configured parser.
func OptionsFromConfig(cfg config.TaggingConfig) (Options, error) {
	parser, err := tagstring.Lookup(cfg.Parser)
	if err != nil {
		return Options{}, err
	}
	return Options{CaseInsensitive: cfg.CaseInsensitive, Parser: parser}, nil
}

// SetOptions tunes Set. Clear drops every association before adding, so
// unchanged associations are recreated and lose their Extra data.
type SetOptions struct {
	Clear bool
	Extra datatypes.JSONMap
}

// TagManager manages the tags of records through one association table.
type TagManager struct {
	through  repository.Associations
	opts     Options
	observer Observer
	log      zerolog.Logger
}

func NewTagManager(through repository.Associations, opts Options, observer Observer, log zerolog.Logger) *TagManager {
	if opts.Parser == nil {
		opts.Parser = tagstring.Default
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &TagManager{
		through:  through,
		opts:     opts,
		observer: observer,
		log:      log.With().Str("through", through.Name()).Logger(),
	}
}

func (m *TagManager) Through() repository.Associations { return m.through }

// inTx runs fn with a manager bound to a transaction. Nested calls use
// savepoints.
func (m *TagManager) inTx(ctx context.Context, fn func(m *TagManager) error) error {
	return m.through.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := *m
		bound.through = m.through.WithDB(tx)
		return fn(&bound)
	})
}

func (m *TagManager) notify(ctx context.Context, change Change) error {
	m.log.Debug().
		Str("action", string(change.Action)).
		Stringer("record", change.Record).
		Interface("tag_ids", change.TagIDs).
		Msg("tags changed")
	if err := m.observer.TagsChanged(ctx, change); err != nil {
		return fmt.Errorf("%s observer: %w", change.Action, err)
	}
	return nil
}

func (m *TagManager) newChange(action Action, rec models.RecordRef, ids []uint) Change {
	return Change{
		ID:      uuid.New(),
		Action:  action,
		Through: m.through.Name(),
		Record:  rec,
		TagType: m.through.Tags().Table(),
		TagIDs:  ids,
		Using:   m.through.DB().Dialector.Name(),
	}
}

// resolve turns names and tags into stored tags, creating missing ones. The
// result holds each tag once, in input order.
func (m *TagManager) resolve(ctx context.Context, items []any) ([]models.Tag, error) {
	var (
		resolved []models.Tag
		names    []string
	)
	for _, item := range items {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case models.Tag:
			resolved = append(resolved, v)
		case *models.Tag:
			if v == nil {
				return nil, &tagerr.UnsupportedTagTypeError{Value: item}
			}
			resolved = append(resolved, *v)
		default:
			return nil, &tagerr.UnsupportedTagTypeError{Value: item}
		}
	}
	for _, tag := range resolved {
		if tag.ID == 0 {
			return nil, tagerr.NewUsage("resolve tags", fmt.Errorf("tag %q has not been saved", tag.Name))
		}
	}

	var (
		created []models.Tag
		err     error
	)
	if m.opts.CaseInsensitive {
		created, err = m.resolveFolded(ctx, names)
	} else {
		created, err = m.resolveExact(ctx, names)
	}
	if err != nil {
		return nil, err
	}
	return uniqueTags(append(resolved, created...)), nil
}

func (m *TagManager) resolveExact(ctx context.Context, names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	tags := m.through.Tags()
	existing, err := tags.FindByNames(ctx, names)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.Tag, len(existing))
	for _, tag := range existing {
		byName[tag.Name] = tag
	}

	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		if tag, ok := byName[name]; ok {
			out = append(out, tag)
			continue
		}
		tag, err := tags.Create(ctx, name)
		if err != nil {
			return nil, err
		}
		byName[name] = *tag
		out = append(out, *tag)
	}
	return out, nil
}

// resolveFolded looks names up one at a time. A batched case-insensitive IN
// does not behave the same on every database.
func (m *TagManager) resolveFolded(ctx context.Context, names []string) ([]models.Tag, error) {
	tags := m.through.Tags()
	seen := make(map[string]bool, len(names))
	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		tag, err := tags.FindByNameCaseInsensitive(ctx, name)
		if errors.Is(err, repository.ErrTagNotFound) {
			tag, err = tags.Create(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *tag)
	}
	return out, nil
}

// Add attaches tags to rec. Each item is a tag name, a models.Tag or a
// *models.Tag; missing names are created.
func (m *TagManager) Add(ctx context.Context, rec models.RecordRef, tags ...any) error {
	return m.AddWithExtra(ctx, rec, nil, tags...)
}

// AddWithExtra is Add storing extra on every new association.
func (m *TagManager) AddWithExtra(ctx context.Context, rec models.RecordRef, extra datatypes.JSONMap, tags ...any) error {
	if !rec.Persisted() {
		return tagerr.ErrRequiresPersistedRecord
	}
	return m.inTx(ctx, func(m *TagManager) error {
		resolved, err := m.resolve(ctx, tags)
		if err != nil {
			return err
		}
		return m.add(ctx, rec, resolved, extra)
	})
}

func (m *TagManager) add(ctx context.Context, rec models.RecordRef, tags []models.Tag, extra datatypes.JSONMap) error {
	current, err := m.through.TagsForRecord(ctx, rec)
	if err != nil {
		return err
	}
	have := make(map[uint]bool, len(current))
	for _, tag := range current {
		have[tag.ID] = true
	}

	var newIDs []uint
	for _, tag := range tags {
		if !have[tag.ID] {
			have[tag.ID] = true
			newIDs = append(newIDs, tag.ID)
		}
	}

	change := m.newChange(PreAdd, rec, newIDs)
	if err := m.notify(ctx, change); err != nil {
		return err
	}
	for _, id := range newIDs {
		if _, err := m.through.InsertIfAbsent(ctx, rec, id, extra); err != nil {
			return err
		}
	}
	change.Action = PostAdd
	return m.notify(ctx, change)
}

// Remove detaches the named tags from rec. Items are names or tags; names
// the record does not carry are ignored.
func (m *TagManager) Remove(ctx context.Context, rec models.RecordRef, tags ...any) error {
	if !rec.Persisted() {
		return tagerr.ErrRequiresPersistedRecord
	}
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	for _, item := range tags {
		switch v := item.(type) {
		case string:
			names = append(names, v)
		case models.Tag:
			names = append(names, v.Name)
		case *models.Tag:
			if v == nil {
				return &tagerr.UnsupportedTagTypeError{Value: item}
			}
			names = append(names, v.Name)
		default:
			return &tagerr.UnsupportedTagTypeError{Value: item}
		}
	}
	return m.inTx(ctx, func(m *TagManager) error {
		return m.remove(ctx, rec, names)
	})
}

func (m *TagManager) remove(ctx context.Context, rec models.RecordRef, names []string) error {
	if len(names) == 0 {
		return nil
	}
	current, err := m.through.TagsForRecord(ctx, rec)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[m.key(name)] = true
	}
	var matched []models.Tag
	for _, tag := range current {
		if wanted[m.key(tag.Name)] {
			matched = append(matched, tag)
		}
	}
	return m.removeTags(ctx, rec, matched)
}

// removeTags detaches exactly tags from rec, matching by id.
func (m *TagManager) removeTags(ctx context.Context, rec models.RecordRef, tags []models.Tag) error {
	var ids []uint
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}

	change := m.newChange(PreRemove, rec, ids)
	if err := m.notify(ctx, change); err != nil {
		return err
	}
	if _, err := m.through.DeleteByTagIDs(ctx, rec, ids); err != nil {
		return err
	}
	change.Action = PostRemove
	return m.notify(ctx, change)
}

func (m *TagManager) key(name string) string {
	if m.opts.CaseInsensitive {
		return strings.ToLower(name)
	}
	return name
}

// Clear detaches every tag from rec.
func (m *TagManager) Clear(ctx context.Context, rec models.RecordRef) error {
	if !rec.Persisted() {
		return tagerr.ErrRequiresPersistedRecord
	}
	return m.inTx(ctx, func(m *TagManager) error {
		return m.clear(ctx, rec)
	})
}

func (m *TagManager) clear(ctx context.Context, rec models.RecordRef) error {
	change := m.newChange(PreClear, rec, nil)
	if err := m.notify(ctx, change); err != nil {
		return err
	}
	if _, err := m.through.DeleteAll(ctx, rec); err != nil {
		return err
	}
	change.Action = PostClear
	return m.notify(ctx, change)
}

// Set makes tags the exact tag set of rec. Without Clear only the difference
// is applied: tags rec already has keep their association rows.
func (m *TagManager) Set(ctx context.Context, rec models.RecordRef, tags []any, opts SetOptions) error {
	if !rec.Persisted() {
		return tagerr.ErrRequiresPersistedRecord
	}
	return m.inTx(ctx, func(m *TagManager) error {
		resolved, err := m.resolve(ctx, tags)
		if err != nil {
			return err
		}
		if opts.Clear {
			if err := m.clear(ctx, rec); err != nil {
				return err
			}
			return m.add(ctx, rec, resolved, opts.Extra)
		}

		current, err := m.through.TagsForRecord(ctx, rec)
		if err != nil {
			return err
		}
		// Names compare exactly here: with case folding two stored tags
		// may differ only by case, and only the undesired one goes.
		stale := make(map[string]models.Tag, len(current))
		for _, tag := range current {
			stale[tag.Name] = tag
		}
		var missing []models.Tag
		for _, tag := range resolved {
			if _, ok := stale[tag.Name]; ok {
				delete(stale, tag.Name)
			} else {
				missing = append(missing, tag)
			}
		}

		if len(stale) > 0 {
			old := make([]models.Tag, 0, len(stale))
			for _, tag := range stale {
				old = append(old, tag)
			}
			sort.Slice(old, func(i, j int) bool { return old[i].Name < old[j].Name })
			if err := m.removeTags(ctx, rec, old); err != nil {
				return err
			}
		}
		return m.add(ctx, rec, missing, opts.Extra)
	})
}

// SetString parses text with the configured parser and sets the result.
func (m *TagManager) SetString(ctx context.Context, rec models.RecordRef, text string) error {
	names := m.opts.Parser.Parse(text)
	items := make([]any, len(names))
	for i, name := range names {
		items[i] = name
	}
	return m.Set(ctx, rec, items, SetOptions{})
}

// String formats the tags of rec with the configured parser.
func (m *TagManager) String(ctx context.Context, rec models.RecordRef) (string, error) {
	names, err := m.Names(ctx, rec)
	if err != nil {
		return "", err
	}
	return m.opts.Parser.Format(names), nil
}

// Tags returns the tags of rec ordered by name.
func (m *TagManager) Tags(ctx context.Context, rec models.RecordRef) ([]models.Tag, error) {
	return m.through.TagsForRecord(ctx, rec)
}

func (m *TagManager) Names(ctx context.Context, rec models.RecordRef) ([]string, error) {
	tags, err := m.through.TagsForRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.Name
	}
	return out, nil
}

// Slugs returns the slugs of rec's tags, ordered by tag name.
func (m *TagManager) Slugs(ctx context.Context, rec models.RecordRef) ([]string, error) {
	tags, err := m.through.TagsForRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.Slug
	}
	return out, nil
}

// MostCommon counts how often each tag is used through this table. Nothing
// runs until the returned query is read. Tags differing only by case are
// counted separately even in case-insensitive mode.
func (m *TagManager) MostCommon(minCount int64) *repository.TagCountQuery {
	return m.through.CountByTag().MinCount(minCount)
}

// Similar returns records sharing tags with rec, most shared tags first.
func (m *TagManager) Similar(ctx context.Context, rec models.RecordRef) ([]repository.SimilarRecord, error) {
	return m.through.SharingTags(ctx, rec)
}

// TagsInUse returns the tags attached to at least one record.
func (m *TagManager) TagsInUse(ctx context.Context, recordType string) ([]models.Tag, error) {
	return m.through.TagsInUse(ctx, recordType)
}

func uniqueTags(tags []models.Tag) []models.Tag {
	seen := make(map[uint]bool, len(tags))
	out := tags[:0]
	for _, tag := range tags {
		if !seen[tag.ID] {
			seen[tag.ID] = true
			out = append(out, tag)
		}
	}
	return out
}
