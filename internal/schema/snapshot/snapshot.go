// Package snapshot archives schema documents in the object store so that
// schema drift can be tracked between introspections.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
)

var ErrNoSnapshots = errors.New("no schema snapshots stored")

type Archive struct {
	store storage.ObjectStore
	now   func() time.Time
}

func NewArchive(store storage.ObjectStore) *Archive {
	return &Archive{store: store, now: time.Now}
}

// Save uploads doc under a key derived from the schema name and the current time.
func (a *Archive) Save(ctx context.Context, schemaName string, doc schema.Document) (storage.ObjectInfo, error) {
	key, err := storage.BuildSchemaSnapshotPath(schema.NormalizeName(schemaName), a.now())
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	rendered, err := doc.Render()
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := a.store.Put(ctx, key, strings.NewReader(rendered), int64(len(rendered)), storage.PutOptions{ContentType: "application/json"})
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if info.Key == "" {
		info.Key = key
	}
	return info, nil
}

// List returns the stored snapshots of schemaName, oldest first.
func (a *Archive) List(ctx context.Context, schemaName string) ([]storage.ObjectInfo, error) {
	prefix, err := storage.SchemaSnapshotPrefix(schema.NormalizeName(schemaName))
	if err != nil {
		return nil, err
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	filtered := objects[:0]
	for _, object := range objects {
		if strings.HasSuffix(object.Key, ".json") {
			filtered = append(filtered, object)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Key < filtered[j].Key })
	return filtered, nil
}

// Latest loads the most recent snapshot of schemaName.
func (a *Archive) Latest(ctx context.Context, schemaName string) (schema.Document, storage.ObjectInfo, error) {
	objects, err := a.List(ctx, schemaName)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if len(objects) == 0 {
		return nil, storage.ObjectInfo{}, ErrNoSnapshots
	}
	latest := objects[len(objects)-1]
	doc, err := a.Load(ctx, latest.Key)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return doc, latest, nil
}

// Prune deletes all but the newest keep snapshots of schemaName and returns
// the removed keys. keep below one is rejected so the latest snapshot survives.
func (a *Archive) Prune(ctx context.Context, schemaName string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	objects, err := a.List(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	if len(objects) <= keep {
		return nil, nil
	}
	var removed []string
	for _, object := range objects[:len(objects)-keep] {
		if err := a.store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("delete snapshot %s: %w", object.BaseName(), err)
		}
		removed = append(removed, object.Key)
	}
	return removed, nil
}

func (a *Archive) Load(ctx context.Context, key string) (schema.Document, error) {
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	return Decode(reader)
}

// Write renders doc as indented JSON followed by a newline.
func Write(w io.Writer, doc schema.Document) error {
	rendered, err := doc.Render()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rendered+"\n")
	return err
}

func Decode(r io.Reader) (schema.Document, error) {
	var doc schema.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema snapshot: %w", err)
	}
	if doc == nil {
		doc = schema.Document{}
	}
	return doc, nil
}

// Diff lists the tables and columns added or removed between two documents,
// plus columns whose type changed.
func Diff(before, after schema.Document) []string {
	var changes []string
	for _, table := range after.TableNames() {
		old, ok := before[table]
		if !ok {
			changes = append(changes, "+ table "+table)
			continue
		}
		changes = append(changes, diffColumns(table, old, after[table])...)
	}
	for _, table := range before.TableNames() {
		if _, ok := after[table]; !ok {
			changes = append(changes, "- table "+table)
		}
	}
	return changes
}

func diffColumns(table string, before, after schema.Table) []string {
	var changes []string
	for _, column := range sortedColumns(after) {
		old, ok := before.Columns[column]
		switch {
		case !ok:
			changes = append(changes, fmt.Sprintf("+ column %s.%s %s", table, column, after.Columns[column].Type))
		case old.Type != after.Columns[column].Type:
			changes = append(changes, fmt.Sprintf("~ column %s.%s %s -> %s", table, column, old.Type, after.Columns[column].Type))
		}
	}
	for _, column := range sortedColumns(before) {
		if _, ok := after.Columns[column]; !ok {
			changes = append(changes, fmt.Sprintf("- column %s.%s", table, column))
		}
	}
	return changes
}

func sortedColumns(table schema.Table) []string {
	names := make([]string, 0, len(table.Columns))
	for name := range table.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
