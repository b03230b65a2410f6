package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/storage"
)

type memoryStore struct {
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key string, body io.Reader, size int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if int64(len(data)) != size {
		return storage.ObjectInfo{}, errors.New("size mismatch")
	}
	m.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func sampleDocument() schema.Document {
	return schema.Document{
		"customer": {
			Columns: map[string]schema.ColumnDef{
				"id":    {Type: "integer", Required: true, Constraints: []string{"PRIMARY KEY"}},
				"email": {Type: "character varying", Constraints: []string{}},
			},
			Relationships: []schema.ForeignKeyRef{},
			ColumnOrder:   []string{"id", "email"},
		},
	}
}

func TestSaveListAndLatest(t *testing.T) {
	store := newMemoryStore()
	archive := NewArchive(store)

	times := []time.Time{
		time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	for i, at := range times {
		archive.now = func() time.Time { return at }
		doc := sampleDocument()
		if i == 1 {
			table := doc["customer"]
			table.Columns["created"] = schema.ColumnDef{Type: "timestamp", Constraints: []string{}}
			doc["customer"] = table
		}
		info, err := archive.Save(context.Background(), "", doc)
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		want := "schemas/public/" + at.Format(storage.SnapshotTimeLayout) + ".json"
		if info.Key != want {
			t.Fatalf("Save() key = %q, want %q", info.Key, want)
		}
	}
	store.objects["schemas/public/notes.txt"] = []byte("ignored")

	listed, err := archive.List(context.Background(), "public")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "schemas/public/20260301T100000Z.json" {
		t.Fatalf("List() = %#v", listed)
	}

	doc, info, err := archive.Latest(context.Background(), "public")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if info.Key != "schemas/public/20260302T100000Z.json" {
		t.Fatalf("Latest() key = %q", info.Key)
	}
	if _, ok := doc["customer"].Columns["created"]; !ok {
		t.Fatalf("Latest() doc = %#v", doc)
	}
	if !doc["customer"].Columns["id"].Required {
		t.Fatal("decoded column lost required flag")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	store := newMemoryStore()
	archive := NewArchive(store)
	for day := 1; day <= 4; day++ {
		at := time.Date(2026, 3, day, 10, 0, 0, 0, time.UTC)
		archive.now = func() time.Time { return at }
		if _, err := archive.Save(context.Background(), "public", sampleDocument()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	removed, err := archive.Prune(context.Background(), "public", 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if len(removed) != 2 || removed[0] != "schemas/public/20260301T100000Z.json" {
		t.Fatalf("Prune() removed = %v", removed)
	}
	listed, err := archive.List(context.Background(), "public")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 || listed[0].BaseName() != "20260303T100000Z.json" {
		t.Fatalf("List() after prune = %#v", listed)
	}

	if _, err := archive.Prune(context.Background(), "public", 0); err == nil {
		t.Fatal("Prune(keep=0) error = nil")
	}
}

func TestLatestWithoutSnapshots(t *testing.T) {
	archive := NewArchive(newMemoryStore())
	if _, _, err := archive.Latest(context.Background(), "public"); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("Latest() error = %v", err)
	}
}

func TestSaveRejectsInvalidSchemaName(t *testing.T) {
	archive := NewArchive(newMemoryStore())
	if _, err := archive.Save(context.Background(), "../etc", sampleDocument()); err == nil {
		t.Fatal("expected invalid schema name error")
	}
}

func TestWriteFollowsColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleDocument()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := buf.String()
	if strings.Index(out, `"id"`) > strings.Index(out, `"email"`) {
		t.Fatalf("columns out of ordinal order:\n%s", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Fatalf("missing trailing newline: %q", out)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(strings.NewReader("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDiff(t *testing.T) {
	before := sampleDocument()
	before["legacy"] = schema.Table{Columns: map[string]schema.ColumnDef{"id": {Type: "integer"}}}

	after := sampleDocument()
	table := after["customer"]
	table.Columns = map[string]schema.ColumnDef{
		"id":      {Type: "bigint"},
		"created": {Type: "timestamp"},
	}
	after["customer"] = table
	after["orders"] = schema.Table{Columns: map[string]schema.ColumnDef{}}

	got := strings.Join(Diff(before, after), "\n")
	want := strings.Join([]string{
		"+ column customer.created timestamp",
		"~ column customer.id integer -> bigint",
		"- column customer.email",
		"+ table orders",
		"- table legacy",
	}, "\n")
	if got != want {
		t.Fatalf("Diff() =\n%s\nwant\n%s", got, want)
	}

	if changes := Diff(sampleDocument(), sampleDocument()); len(changes) != 0 {
		t.Fatalf("Diff() of identical documents = %v", changes)
	}
}
