package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/tagerr"
)

// TagCount is a tag with the number of associations pointing at it.
type TagCount struct {
	models.Tag `yaml:",inline"`
	Count      int64 `json:"count" yaml:"count"`
}

// TagCountQuery counts associations per tag, most used first. It is lazy:
// building and refining it runs nothing, only All and Iter hit the database.
// Tags without associations never appear.
type TagCountQuery struct {
	db         *gorm.DB
	tagTable   string
	through    string
	typeColumn string
	minCount   int64
	limit      int
	recordType string
	scopes     []func(*gorm.DB) *gorm.DB
}

func newTagCountQuery(db *gorm.DB, tagTable, through, typeColumn string) *TagCountQuery {
	return &TagCountQuery{db: db, tagTable: tagTable, through: through, typeColumn: typeColumn}
}

func (q *TagCountQuery) clone() *TagCountQuery {
	cp := *q
	cp.scopes = append([]func(*gorm.DB) *gorm.DB(nil), q.scopes...)
	return &cp
}

// MinCount keeps tags used at least n times.
func (q *TagCountQuery) MinCount(n int64) *TagCountQuery {
	cp := q.clone()
	cp.minCount = n
	return cp
}

func (q *TagCountQuery) Limit(n int) *TagCountQuery {
	cp := q.clone()
	cp.limit = n
	return cp
}

// RecordType restricts generic through tables to one record type. Direct
// tables hold a single record type and ignore it.
func (q *TagCountQuery) RecordType(recordType string) *TagCountQuery {
	cp := q.clone()
	cp.recordType = recordType
	return cp
}

// Where adds an arbitrary filter. Column names must be qualified with the
// tag or through table name.
func (q *TagCountQuery) Where(scope func(*gorm.DB) *gorm.DB) *TagCountQuery {
	cp := q.clone()
	cp.scopes = append(cp.scopes, scope)
	return cp
}

// Statement builds the query without executing it.
func (q *TagCountQuery) Statement(ctx context.Context) *gorm.DB {
	t, thr := q.tagTable, q.through
	cols := t + ".id, " + t + ".name, " + t + ".slug, " + t + ".created_at"

	stmt := q.db.WithContext(ctx).
		Table(t).
		Select(cols + ", COUNT(" + thr + ".id) AS num_times").
		Joins("JOIN " + thr + " ON " + thr + ".tag_id = " + t + ".id")
	if q.recordType != "" && q.typeColumn != "" {
		stmt = stmt.Where(thr+"."+q.typeColumn+" = ?", q.recordType)
	}
	stmt = stmt.Scopes(q.scopes...).Group(cols)
	if q.minCount > 0 {
		stmt = stmt.Having("COUNT("+thr+".id) >= ?", q.minCount)
	}
	stmt = stmt.Order("num_times DESC").Order(t + ".name")
	if q.limit > 0 {
		stmt = stmt.Limit(q.limit)
	}
	return stmt
}

type tagCountRow struct {
	ID        uint
	Name      string
	Slug      string
	CreatedAt time.Time
	NumTimes  int64
}

func (r tagCountRow) value() TagCount {
	return TagCount{
		Tag:   models.Tag{ID: r.ID, Name: r.Name, Slug: r.Slug, CreatedAt: r.CreatedAt},
		Count: r.NumTimes,
	}
}

func (q *TagCountQuery) All(ctx context.Context) ([]TagCount, error) {
	var rows []tagCountRow
	if err := q.Statement(ctx).Scan(&rows).Error; err != nil {
		return nil, tagerr.NewStorage("count tags", err)
	}
	out := make([]TagCount, len(rows))
	for i, r := range rows {
		out[i] = r.value()
	}
	return out, nil
}

// Iter streams the counts to fn, stopping at the first error.
func (q *TagCountQuery) Iter(ctx context.Context, fn func(TagCount) error) error {
	stmt := q.Statement(ctx)
	rows, err := stmt.Rows()
	if err != nil {
		return tagerr.NewStorage("count tags", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r tagCountRow
		if err := stmt.ScanRows(rows, &r); err != nil {
			return tagerr.NewStorage("count tags", err)
		}
		if err := fn(r.value()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return tagerr.NewStorage("count tags", err)
	}
	return nil
}
