package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/docstore"
)

var _ docstore.Store = (*DB)(nil)

// Get returns the document at path, or nil if it does not exist.
func (db *DB) Get(ctx context.Context, path string) (*docstore.Document, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	doc, err := decodeRow(path, raw)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Set replaces the document at path. Writing identical data leaves the
// version untouched so change feeds do not report a modification.
func (db *DB) Set(ctx context.Context, path string, data any) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	encoded, err := docstore.Encode(data)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, version, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			version = documents.version + 1,
			updated_at = excluded.updated_at
		WHERE documents.data != excluded.data`,
		path, collection, id, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Update applies deltas to an existing document inside a transaction.
func (db *DB) Update(ctx context.Context, path string, deltas ...docstore.Delta) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %s: begin: %w", path, err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}

	var cur map[string]any
	if err := json.Unmarshal([]byte(raw), &cur); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	next := make(map[string]any, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	if err := docstore.ApplyDeltas(next, deltas); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if reflect.DeepEqual(cur, next) {
		return nil
	}
	out, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, version = version + 1, updated_at = ?
		WHERE path = ?`, string(out), time.Now().UnixMilli(), path); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return tx.Commit()
}

// Delete removes the document at path. Deleting a missing document is not an error.
func (db *DB) Delete(ctx context.Context, path string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Query runs q against the collection using SQLite's JSON functions.
func (db *DB) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []docstore.Document
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		doc, err := decodeRow(path, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func buildQuery(q docstore.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT path, data FROM documents WHERE collection = ?`)

	for _, f := range q.Filters {
		v, err := sqlValue(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		switch f.Op {
		case docstore.Eq:
			b.WriteString(` AND json_extract(data, ?) = ?`)
		case docstore.Gte:
			b.WriteString(` AND json_extract(data, ?) >= ?`)
		case docstore.Lte:
			b.WriteString(` AND json_extract(data, ?) <= ?`)
		case docstore.ArrayContains:
			b.WriteString(` AND EXISTS (SELECT 1 FROM json_each(data, ?) WHERE json_each.value = ?)`)
		default:
			return "", nil, fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Op)
		}
		args = append(args, jsonPath(f.Field), v)
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY json_extract(data, ?) %s, path`, dir)
		args = append(args, jsonPath(q.OrderBy))
	} else {
		b.WriteString(` ORDER BY path`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// sqlValue converts a filter value into the SQL value json_extract yields
// for the same JSON scalar.
func sqlValue(v any) (any, error) {
	n, err := docstore.Normalize(v)
	if err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case string, float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("cannot compare against %T", v)
	}
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

func splitPath(path string) (collection, id string, err error) {
	collection, id = docstore.Split(path)
	if collection == "" || id == "" {
		return "", "", fmt.Errorf("invalid document path %q", path)
	}
	return collection, id, nil
}

func decodeRow(path, raw string) (docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	_, id := docstore.Split(path)
	return docstore.Document{ID: id, Path: path, Data: data}, nil
}
