package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Block uint64 `json:"block"`
}

func TestJsonlAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stats.jsonl")
	var sink Sink = NewJsonlStorage(path)

	if err := sink.Append(record{Block: 1}, record{Block: 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Append(record{Block: 3}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := sink.Append(); err != nil {
		t.Fatalf("empty append: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var blocks []uint64
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		blocks = append(blocks, r.Block)
	}
	if len(blocks) != 3 || blocks[0] != 1 || blocks[2] != 3 {
		t.Fatalf("unexpected lines: %v", blocks)
	}
}

func TestJsonlRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.jsonl")
	// Each record line is 12 bytes: {"block":N}\n
	sink := NewRotatingJsonlStorage(path, 30)

	for i := uint64(1); i <= 3; i++ {
		if err := sink.Append(record{Block: i}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	rotated, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("read rotated: %v", err)
	}
	if string(rotated) != "{\"block\":1}\n{\"block\":2}\n" {
		t.Fatalf("unexpected rotated content %q", rotated)
	}
	if string(current) != "{\"block\":3}\n" {
		t.Fatalf("unexpected current content %q", current)
	}
}

func TestJsonlMarshalErrorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.jsonl")
	sink := NewJsonlStorage(path)

	if err := sink.Append(record{Block: 1}, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should not exist, stat err: %v", err)
	}
}
