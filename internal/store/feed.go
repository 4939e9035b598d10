package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/docstore"
	"go.uber.org/zap"
)

type snapshotRow struct {
	version int64
	raw     string
}

// Subscribe streams changes to one collection. The collection is read once
// before Subscribe returns; every document found is delivered as Added, and
// later polls diff against the previous snapshot.
func (db *DB) Subscribe(ctx context.Context, collection string) (*docstore.Subscription, error) {
	initial, err := db.snapshot(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan docstore.ChangeEvent)
	go db.poll(ctx, collection, initial, out)
	return docstore.NewSubscription(out, cancel), nil
}

func (db *DB) poll(ctx context.Context, collection string, initial map[string]snapshotRow, out chan<- docstore.ChangeEvent) {
	defer close(out)

	prev := map[string]snapshotRow{}
	if !db.emit(ctx, prev, initial, out) {
		return
	}
	prev = initial

	ticker := time.NewTicker(db.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		next, err := db.snapshot(ctx, collection)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			db.logger.Warn("change feed poll failed", zap.String("collection", collection), zap.Error(err))
			continue
		}
		if !db.emit(ctx, prev, next, out) {
			return
		}
		prev = next
	}
}

// emit sends the difference between two snapshots in path order. It reports
// false once the subscription has been cancelled.
func (db *DB) emit(ctx context.Context, prev, next map[string]snapshotRow, out chan<- docstore.ChangeEvent) bool {
	for _, evt := range diff(prev, next) {
		select {
		case out <- evt:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func diff(prev, next map[string]snapshotRow) []docstore.ChangeEvent {
	var events []docstore.ChangeEvent
	for _, path := range slices.Sorted(maps.Keys(next)) {
		row := next[path]
		old, ok := prev[path]
		switch {
		case !ok:
			events = append(events, changeEvent(docstore.Added, path, row.raw))
		case old.raw != row.raw:
			events = append(events, changeEvent(docstore.Modified, path, row.raw))
		}
	}
	for _, path := range slices.Sorted(maps.Keys(prev)) {
		if _, ok := next[path]; !ok {
			events = append(events, changeEvent(docstore.Removed, path, prev[path].raw))
		}
	}
	return events
}

func changeEvent(kind docstore.ChangeKind, path, raw string) docstore.ChangeEvent {
	doc, err := decodeRow(path, raw)
	if err != nil {
		_, id := docstore.Split(path)
		doc = docstore.Document{ID: id, Path: path}
	}
	return docstore.ChangeEvent{Kind: kind, Doc: doc}
}

func (db *DB) snapshot(ctx context.Context, collection string) (map[string]snapshotRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, data, version FROM documents WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snap := make(map[string]snapshotRow)
	for rows.Next() {
		var path string
		var row snapshotRow
		if err := rows.Scan(&path, &row.raw, &row.version); err != nil {
			return nil, err
		}
		snap[path] = row
	}
	return snap, rows.Err()
}
