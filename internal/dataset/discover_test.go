package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverShardsBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "nested", "shard-000001.tar"))
	mustWrite(t, filepath.Join(dir, "ignore.txt"))

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "nested", "shard-000001.tar"),
		filepath.Join(dir, "shard-000000.tar"),
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i, shard := range want {
		if shards[i] != shard {
			t.Fatalf("shard[%d]=%s want %s", i, shards[i], shard)
		}
	}
}

func TestDiscoverSplit(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "train", "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "train", "shard-000001.tar"))

	train, err := DiscoverSplit(dir, Train)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(train) != 2 {
		t.Fatalf("expected 2 train shards, got %d", len(train))
	}
	val, err := DiscoverSplit(dir, Val)
	if err != nil {
		t.Fatalf("missing val split should not fail: %v", err)
	}
	if len(val) != 0 {
		t.Fatalf("expected no val shards, got %v", val)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
