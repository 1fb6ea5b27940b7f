package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mperelman/chronicle/config"
	"github.com/mperelman/chronicle/models"
)

func TestMemoryStoreRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	chunks := []models.Chunk{
		{ID: "c1", Text: "first chunk", SourceRef: "vol1 p3"},
		{ID: "c2", Text: "second chunk"},
		{ID: "c3", Text: "third chunk"},
	}
	if err := s.SaveChunks(ctx, chunks); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}

	got, err := s.GetChunks(ctx, []string{"c3", "c1"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c3" || got[1].ID != "c1" {
		t.Fatalf("expected [c3 c1] in request order, got %+v", got)
	}
	if got[1].SourceRef != "vol1 p3" {
		t.Fatalf("source ref lost: %+v", got[1])
	}
}

func TestMemoryStoreSkipsUnknownIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.SaveChunks(ctx, []models.Chunk{{ID: "c1", Text: "x"}}); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	got, err := s.GetChunks(ctx, []string{"missing", "c1"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("unknown ids must be skipped, got %+v", got)
	}
}

func TestMemoryStoreAllChunksOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.SaveChunks(ctx, []models.Chunk{
		{ID: "b", Text: "two"}, {ID: "a", Text: "one"}, {ID: "c", Text: "three"},
	}); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	got, err := s.AllChunks(ctx)
	if err != nil {
		t.Fatalf("AllChunks: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "c" {
		t.Fatalf("expected id order, got %+v", got)
	}
}

func TestLoadJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := `{"id":"c1","text":"The bank opened in 1850.","source_ref":"vol1"}

{"text":"A chunk without an id."}
{"id":"c3","text":""}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	chunks, err := LoadJSONL(path)
	if err != nil {
		t.Fatalf("LoadJSONL: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (blank line and empty text skipped), got %d", len(chunks))
	}
	if chunks[0].ID != "c1" || chunks[0].SourceRef != "vol1" {
		t.Fatalf("first chunk mangled: %+v", chunks[0])
	}
	if chunks[1].ID == "" {
		t.Fatal("missing id should be generated")
	}
}

func TestLoadJSONLBadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadJSONL(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore, got %T", s)
	}
}
