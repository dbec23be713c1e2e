package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFileStoreWriteOpenRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "datasets/abc/input.csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "datasets/abc/input.csv" {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "a,b\n1,2\n" {
		t.Fatalf("payload mismatch: %q", data)
	}
}

func TestFileStoreReadSampleBounded(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	payload := strings.Repeat("x", 4096)
	if _, err := store.Write(ctx, "big.txt", []byte(payload)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sample, err := store.ReadSample(ctx, "big.txt", 128)
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if len(sample) != 128 {
		t.Fatalf("sample length = %d, want 128", len(sample))
	}

	short, err := store.ReadSample(ctx, "big.txt", 1<<20)
	if err != nil {
		t.Fatalf("ReadSample short: %v", err)
	}
	if len(short) != len(payload) {
		t.Fatalf("short sample length = %d, want %d", len(short), len(payload))
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"ok/file.csv", false},
		{"./ok/file.csv", false},
		{"/leading/slash.csv", false},
		{"../escape.csv", true},
		{"a/../../escape.csv", true},
		{"", true},
		{"   ", true},
	}
	for _, tc := range tests {
		_, err := sanitizeKey(tc.key)
		if (err != nil) != tc.wantErr {
			t.Fatalf("sanitizeKey(%q) error = %v, wantErr %v", tc.key, err, tc.wantErr)
		}
	}
}
