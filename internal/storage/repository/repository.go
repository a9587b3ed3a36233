// Package repository provides typed access to the knowledge base tables.
// Entities cross the boundary as pkg/types values; JSON columns carry the
// nested structures.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"

	srverrors "openapi-mcp-server/internal/errors"
)

// Page describes one page of a listing.
type Page struct {
	Number     int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// NewPage computes the page envelope for a total count.
func NewPage(number, perPage, total int) Page {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return Page{Number: number, PerPage: perPage, TotalItems: total, TotalPages: pages}
}

// Offset returns the SQL offset for the page.
func (p Page) Offset() int { return (p.Number - 1) * p.PerPage }

// mapError converts driver errors into the server taxonomy.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return srverrors.New(srverrors.CodeResourceNotFound, op+": no matching row")
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return srverrors.Wrap(srverrors.CodeConflict, op+": constraint violated", err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return srverrors.Wrap(srverrors.CodeDatabaseConnection, op+": database is busy", err)
		case sqlite3.ErrCorrupt:
			return srverrors.Wrap(srverrors.CodeDataIntegrity, op+": database is corrupt", err)
		}
	}
	return srverrors.Wrap(srverrors.CodeRepository, op+" failed", err)
}

func marshalColumn(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(data), nil
}

func unmarshalColumn(data string, dest interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return srverrors.Wrap(srverrors.CodeDataIntegrity, "stored column is not valid JSON", err)
	}
	return nil
}

// placeholders renders "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Filters are column equality constraints ANDed into a query. Keys must
// name columns of the repository's table.
type Filters map[string]interface{}

// ListOptions shape a generic listing. A zero Limit falls back to the
// default page size.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy string
	Filters Filters
}

const defaultListLimit = 50

// table is one repository's queryable surface, shared by the generic
// list, count, exists, update and delete helpers.
type table struct {
	name         string
	entity       string
	columns      map[string]bool
	defaultOrder string
}

func (t table) where(f Filters) (string, []interface{}, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		if !t.columns[k] {
			return "", nil, srverrors.Validation("filters", "unknown column", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		parts[i] = k + " = ?"
		args[i] = f[k]
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (t table) order(orderBy string) (string, error) {
	if orderBy == "" {
		return " ORDER BY " + t.defaultOrder, nil
	}
	col := orderBy
	dir := ""
	lower := strings.ToLower(orderBy)
	switch {
	case strings.HasSuffix(lower, " desc"):
		col = strings.TrimSpace(orderBy[:len(orderBy)-len(" desc")])
		dir = " DESC"
	case strings.HasSuffix(lower, " asc"):
		col = strings.TrimSpace(orderBy[:len(orderBy)-len(" asc")])
	}
	if !t.columns[col] {
		return "", srverrors.Validation("order_by", "unknown column", orderBy)
	}
	return " ORDER BY " + col + dir, nil
}

// listQuery renders a full SELECT for the options, with the limit and
// offset appended to the returned args.
func (t table) listQuery(selectCols string, opts ListOptions) (string, []interface{}, error) {
	whereSQL, args, err := t.where(opts.Filters)
	if err != nil {
		return "", nil, err
	}
	orderSQL, err := t.order(opts.OrderBy)
	if err != nil {
		return "", nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + selectCols + " FROM " + t.name + whereSQL + orderSQL + " LIMIT ? OFFSET ?"
	return q, append(args, limit, offset), nil
}

func (t table) count(ctx context.Context, db *sql.DB, f Filters) (int, error) {
	whereSQL, args, err := t.where(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name+whereSQL, args...).Scan(&n); err != nil {
		return 0, mapError("count "+t.entity+" rows", err)
	}
	return n, nil
}

func (t table) exists(ctx context.Context, db *sql.DB, f Filters) (bool, error) {
	whereSQL, args, err := t.where(f)
	if err != nil {
		return false, err
	}
	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM "+t.name+whereSQL+" LIMIT 1", args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError("check "+t.entity+" existence", err)
	}
	return true, nil
}

// updateByID applies a partial column update inside its own transaction.
func (t table) updateByID(ctx context.Context, db *sql.DB, id int64, fields Filters) error {
	if len(fields) == 0 {
		return srverrors.Validation("fields", "no columns to update", nil)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !t.columns[k] || k == "id" {
			return srverrors.Validation("fields", "unknown column", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = k + " = ?"
		args = append(args, fields[k])
	}
	args = append(args, id)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin "+t.entity+" update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE "+t.name+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return mapError("update "+t.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound(t.entity, fmt.Sprintf("%d", id))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit "+t.entity+" update", err)
	}
	return nil
}

func (t table) deleteByID(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin "+t.entity+" delete", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE id = ?", id)
	if err != nil {
		return mapError("delete "+t.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return srverrors.NotFound(t.entity, fmt.Sprintf("%d", id))
	}
	if err := tx.Commit(); err != nil {
		return mapError("commit "+t.entity+" delete", err)
	}
	return nil
}
