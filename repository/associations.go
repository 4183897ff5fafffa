package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tag_manager/models"
	"tag_manager/tagerr"
)

// Associations reads and writes one through table: the links between
// records of some type and the tags of one tag table.
type Associations interface {
	TagUsage

	// Name identifies the through table in change notifications.
	Name() string
	// Tags is the repository of the tag type this table points at.
	Tags() *TagRepository
	DB() *gorm.DB
	WithDB(db *gorm.DB) Associations

	ForRecord(ctx context.Context, rec models.RecordRef) ([]models.Association, error)
	TagsForRecord(ctx context.Context, rec models.RecordRef) ([]models.Tag, error)
	Exists(ctx context.Context, rec models.RecordRef, tagID uint) (bool, error)
	InsertIfAbsent(ctx context.Context, rec models.RecordRef, tagID uint, extra datatypes.JSONMap) (*models.Association, error)
	DeleteByTagIDs(ctx context.Context, rec models.RecordRef, tagIDs []uint) (int64, error)
	DeleteAll(ctx context.Context, rec models.RecordRef) (int64, error)
	CountByTag() *TagCountQuery
	ByTagIDs(ctx context.Context, tagIDs []uint) ([]models.Association, error)
	Repoint(ctx context.Context, id uint, tagID uint) error
	Delete(ctx context.Context, ids ...uint) (int64, error)
	TagsInUse(ctx context.Context, recordType string) ([]models.Tag, error)
	SharingTags(ctx context.Context, rec models.RecordRef) ([]SimilarRecord, error)
}

// SimilarRecord is a record sharing tags with another one.
type SimilarRecord struct {
	Record     models.RecordRef `json:"record" yaml:"record"`
	SharedTags int64            `json:"shared_tags" yaml:"shared_tags"`
}

// recordKeys maps a record reference onto the columns of a through table.
type recordKeys interface {
	// scope restricts q to the rows of rec.
	scope(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error)
	// sameType restricts q to rows of records of rec's type.
	sameType(q *gorm.DB, rec models.RecordRef) *gorm.DB
	// exclude drops the rows of rec from q.
	exclude(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error)
	// columns selects the record as record_type and record_id.
	columns() string
	groupBy() string
	// typeColumn holds the record type, empty when the table has one type.
	typeColumn() string
	values(rec models.RecordRef) (map[string]any, error)
	decode(recordType, recordID string) models.RecordRef
}

// Through implements Associations for one table.
type Through struct {
	db    *gorm.DB
	table string
	tags  *TagRepository
	keys  recordKeys
}

// NewGeneric returns the associations of a type/id through table such as
// tagged_items. Any record type can be tagged.
func NewGeneric(db *gorm.DB, table string, tags *TagRepository) *Through {
	if table == "" {
		table = models.GenericThroughTable
	}
	return &Through{db: db, table: table, tags: tags, keys: genericKeys{}}
}

// NewDirect returns the associations of a table holding a foreign key to
// one record table, such as link_tags.link_id.
func NewDirect(db *gorm.DB, table, fkColumn, recordType string, tags *TagRepository) *Through {
	return &Through{db: db, table: table, tags: tags, keys: directKeys{column: fkColumn, recordType: recordType}}
}

func (t *Through) Name() string         { return t.table }
func (t *Through) Tags() *TagRepository { return t.tags }
func (t *Through) DB() *gorm.DB         { return t.db }

func (t *Through) WithDB(db *gorm.DB) Associations {
	cp := *t
	cp.db = db
	cp.tags = t.tags.WithDB(db)
	return &cp
}

func (t *Through) query(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Table(t.table)
}

func (t *Through) forRecord(ctx context.Context, rec models.RecordRef) (*gorm.DB, error) {
	if !rec.Persisted() {
		return nil, tagerr.ErrRequiresPersistedRecord
	}
	return t.keys.scope(t.query(ctx), rec)
}

func (t *Through) UsedTagIDs(db *gorm.DB) *gorm.DB {
	return db.Table(t.table).Select("tag_id")
}

type associationRow struct {
	ID         uint
	TagID      uint
	RecordType string
	RecordID   string
	Extra      datatypes.JSONMap
	CreatedAt  time.Time
}

func (t *Through) selectRows(q *gorm.DB) ([]models.Association, error) {
	var rows []associationRow
	err := q.Select("id, tag_id, " + t.keys.columns() + ", extra, created_at").
		Order("id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Association, len(rows))
	for i, row := range rows {
		out[i] = models.Association{
			ID:        row.ID,
			TagID:     row.TagID,
			Record:    t.keys.decode(row.RecordType, row.RecordID),
			Extra:     row.Extra,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

func (t *Through) ForRecord(ctx context.Context, rec models.RecordRef) ([]models.Association, error) {
	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	rows, err := t.selectRows(q)
	if err != nil {
		return nil, tagerr.NewStorage("list associations", err)
	}
	return rows, nil
}

// TagsForRecord returns the record's tags ordered by name.
func (t *Through) TagsForRecord(ctx context.Context, rec models.RecordRef) ([]models.Tag, error) {
	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	var tags []models.Tag
	err = t.tags.Query(ctx).
		Where("id IN (?)", q.Select("tag_id")).
		Order("name").
		Find(&tags).Error
	if err != nil {
		return nil, tagerr.NewStorage("list record tags", err)
	}
	return tags, nil
}

func (t *Through) Exists(ctx context.Context, rec models.RecordRef, tagID uint) (bool, error) {
	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return false, err
	}
	var n int64
	if err := q.Where("tag_id = ?", tagID).Count(&n).Error; err != nil {
		return false, tagerr.NewStorage("check association", err)
	}
	return n > 0, nil
}

// InsertIfAbsent links rec to the tag unless the link already exists, and
// returns the stored row either way. Concurrent inserts of the same pair do
// not fail; the later one is a no-op.
func (t *Through) InsertIfAbsent(ctx context.Context, rec models.RecordRef, tagID uint, extra datatypes.JSONMap) (*models.Association, error) {
	if !rec.Persisted() {
		return nil, tagerr.ErrRequiresPersistedRecord
	}
	row, err := t.keys.values(rec)
	if err != nil {
		return nil, err
	}
	row["tag_id"] = tagID
	row["extra"] = extra
	row["created_at"] = time.Now().UTC()

	err = t.query(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	if err != nil {
		return nil, tagerr.NewStorage("insert association", err)
	}

	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	rows, err := t.selectRows(q.Where("tag_id = ?", tagID).Limit(1))
	if err != nil {
		return nil, tagerr.NewStorage("insert association", err)
	}
	if len(rows) == 0 {
		return nil, tagerr.NewStorage("insert association", fmt.Errorf("association %s -> %d vanished after insert", rec, tagID))
	}
	return &rows[0], nil
}

func (t *Through) DeleteByTagIDs(ctx context.Context, rec models.RecordRef, tagIDs []uint) (int64, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return 0, err
	}
	res := q.Where("tag_id IN ?", tagIDs).Delete(&associationRow{})
	if res.Error != nil {
		return 0, tagerr.NewStorage("remove tags", res.Error)
	}
	return res.RowsAffected, nil
}

func (t *Through) DeleteAll(ctx context.Context, rec models.RecordRef) (int64, error) {
	q, err := t.forRecord(ctx, rec)
	if err != nil {
		return 0, err
	}
	res := q.Delete(&associationRow{})
	if res.Error != nil {
		return 0, tagerr.NewStorage("clear tags", res.Error)
	}
	return res.RowsAffected, nil
}

func (t *Through) CountByTag() *TagCountQuery {
	return newTagCountQuery(t.db, t.tags.Table(), t.table, t.keys.typeColumn())
}

func (t *Through) ByTagIDs(ctx context.Context, tagIDs []uint) ([]models.Association, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	rows, err := t.selectRows(t.query(ctx).Where("tag_id IN ?", tagIDs))
	if err != nil {
		return nil, tagerr.NewStorage("list associations", err)
	}
	return rows, nil
}

func (t *Through) Repoint(ctx context.Context, id uint, tagID uint) error {
	res := t.query(ctx).Where("id = ?", id).Update("tag_id", tagID)
	if res.Error != nil {
		return tagerr.NewStorage("repoint association", res.Error)
	}
	return nil
}

func (t *Through) Delete(ctx context.Context, ids ...uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := t.query(ctx).Where("id IN ?", ids).Delete(&associationRow{})
	if res.Error != nil {
		return 0, tagerr.NewStorage("delete associations", res.Error)
	}
	return res.RowsAffected, nil
}

// TagsInUse returns the distinct tags used by this table, ordered by name.
// A non-empty recordType narrows generic tables to one record type.
func (t *Through) TagsInUse(ctx context.Context, recordType string) ([]models.Tag, error) {
	used := t.query(ctx).Select("tag_id")
	if recordType != "" {
		used = t.keys.sameType(used, models.RecordRef{Type: recordType})
	}
	var tags []models.Tag
	if err := t.tags.Query(ctx).Where("id IN (?)", used).Order("name").Find(&tags).Error; err != nil {
		return nil, tagerr.NewStorage("list tags in use", err)
	}
	return tags, nil
}

// SharingTags returns other records of rec's type that share at least one
// tag with it, most shared tags first.
func (t *Through) SharingTags(ctx context.Context, rec models.RecordRef) ([]SimilarRecord, error) {
	own, err := t.forRecord(ctx, rec)
	if err != nil {
		return nil, err
	}
	others, err := t.keys.exclude(t.keys.sameType(t.query(ctx), rec), rec)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		RecordType string
		RecordID   string
		Shared     int64
	}
	q := others.
		Select(t.keys.columns()+", COUNT(*) AS shared").
		Where("tag_id IN (?)", own.Select("tag_id")).
		Group(t.keys.groupBy()).
		Order("shared DESC").
		Order("record_id")
	if err := q.Scan(&rows).Error; err != nil {
		return nil, tagerr.NewStorage("find similar records", err)
	}

	out := make([]SimilarRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, SimilarRecord{
			Record:     t.keys.decode(row.RecordType, row.RecordID),
			SharedTags: row.Shared,
		})
	}
	return out, nil
}

type genericKeys struct{}

func (genericKeys) scope(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error) {
	if rec.Type == "" {
		return nil, tagerr.NewUsage("tags", errors.New("generic associations need a record type"))
	}
	return q.Where("content_type = ? AND object_id = ?", rec.Type, fmt.Sprint(rec.ID)), nil
}

func (genericKeys) exclude(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error) {
	return q.Where("NOT (content_type = ? AND object_id = ?)", rec.Type, fmt.Sprint(rec.ID)), nil
}

func (genericKeys) sameType(q *gorm.DB, rec models.RecordRef) *gorm.DB {
	return q.Where("content_type = ?", rec.Type)
}

func (genericKeys) columns() string {
	return "content_type AS record_type, object_id AS record_id"
}

func (genericKeys) groupBy() string    { return "content_type, object_id" }
func (genericKeys) typeColumn() string { return "content_type" }

func (genericKeys) values(rec models.RecordRef) (map[string]any, error) {
	if rec.Type == "" {
		return nil, tagerr.NewUsage("tags", errors.New("generic associations need a record type"))
	}
	return map[string]any{"content_type": rec.Type, "object_id": fmt.Sprint(rec.ID)}, nil
}

func (genericKeys) decode(recordType, recordID string) models.RecordRef {
	return models.RecordRef{Type: recordType, ID: recordID}
}

type directKeys struct {
	column     string
	recordType string
}

func (k directKeys) id(rec models.RecordRef) (uint64, error) {
	if rec.Type != "" && rec.Type != k.recordType {
		return 0, tagerr.NewUsage("tags", fmt.Errorf("%s cannot tag records of type %q", k.recordType, rec.Type))
	}
	id, err := toUint(rec.ID)
	if err != nil {
		return 0, tagerr.NewUsage("tags", err)
	}
	return id, nil
}

func (k directKeys) scope(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error) {
	id, err := k.id(rec)
	if err != nil {
		return nil, err
	}
	return q.Where(k.column+" = ?", id), nil
}

func (k directKeys) exclude(q *gorm.DB, rec models.RecordRef) (*gorm.DB, error) {
	id, err := k.id(rec)
	if err != nil {
		return nil, err
	}
	return q.Where(k.column+" <> ?", id), nil
}

func (k directKeys) sameType(q *gorm.DB, _ models.RecordRef) *gorm.DB { return q }

func (k directKeys) columns() string {
	return "'" + k.recordType + "' AS record_type, CAST(" + k.column + " AS TEXT) AS record_id"
}

func (k directKeys) groupBy() string  { return k.column }
func (directKeys) typeColumn() string { return "" }

func (k directKeys) values(rec models.RecordRef) (map[string]any, error) {
	id, err := k.id(rec)
	if err != nil {
		return nil, err
	}
	return map[string]any{k.column: id}, nil
}

func (k directKeys) decode(_ string, recordID string) models.RecordRef {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return models.RecordRef{Type: k.recordType, ID: recordID}
	}
	return models.RecordRef{Type: k.recordType, ID: uint(id)}
}

func toUint(v any) (uint64, error) {
	switch id := v.(type) {
	case uint:
		return uint64(id), nil
	case uint32:
		return uint64(id), nil
	case uint64:
		return id, nil
	case int:
		if id >= 0 {
			return uint64(id), nil
		}
	case int32:
		if id >= 0 {
			return uint64(id), nil
		}
	case int64:
		if id >= 0 {
			return uint64(id), nil
		}
	case string:
		return strconv.ParseUint(id, 10, 64)
	}
	return 0, fmt.Errorf("record id %v (%T) is not a positive integer", v, v)
}
