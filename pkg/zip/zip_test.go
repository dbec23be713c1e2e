package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveRoundTrip(t *testing.T) {
	entries := []Entry{
		{Name: "a.txt", Data: []byte("alpha")},
		{Name: "dir/b.txt", Data: []byte("beta")},
	}
	data, err := Archive(entries)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	for i, entry := range entries {
		zf := zr.File[i]
		if zf.Name != entry.Name {
			t.Errorf("entry %d name = %q, want %q", i, zf.Name, entry.Name)
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open %q: %v", zf.Name, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %q: %v", zf.Name, err)
		}
		if !bytes.Equal(got, entry.Data) {
			t.Errorf("entry %q = %q, want %q", zf.Name, got, entry.Data)
		}
	}
}

func TestArchiveIsDeterministic(t *testing.T) {
	entries := []Entry{{Name: "data.csv", Data: []byte("x,y\n1,2\n")}}
	first, err := Archive(entries)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	second, err := Archive(entries)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("identical entries produced different archives")
	}
}
