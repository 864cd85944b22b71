package storage

import (
	"os"
	"path/filepath"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteReadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")

	if err := WriteJSON(path, doc{Name: "tent", Count: 3}); err != nil {
		t.Fatal(err)
	}

	var got doc
	if !ReadJSON(path, &got) {
		t.Fatal("expected read to succeed")
	}
	if got.Name != "tent" || got.Count != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestReadJSON_MissingFile(t *testing.T) {
	got := doc{Name: "default"}
	if ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &got) {
		t.Error("expected read of missing file to report false")
	}
	if got.Name != "default" {
		t.Errorf("default value clobbered: %+v", got)
	}
}

func TestReadJSON_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"name": "tr`), 0o644); err != nil {
		t.Fatal(err)
	}

	got := doc{Name: "default"}
	if ReadJSON(path, &got) {
		t.Error("expected corrupt file to report false")
	}
	if got.Name != "default" {
		t.Errorf("default value clobbered: %+v", got)
	}
}

func TestWriteJSON_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "doc.json")
	if err := WriteJSON(path, doc{Name: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestWriteJSON_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	for i := 0; i < 5; i++ {
		if err := WriteJSON(path, doc{Count: i}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the document, found %d entries", len(entries))
	}
}

func TestAppendNDJSON_TailOrderAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	for i := 0; i < 4; i++ {
		if err := AppendNDJSON(path, doc{Count: i}); err != nil {
			t.Fatal(err)
		}
	}

	lines := ReadNDJSONTail(path, 2)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if string(lines[1]) != `{"name":"","count":3}` {
		t.Errorf("unexpected last line: %s", lines[1])
	}
}

func TestReadNDJSONTail_SkipsGarbageLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	if err := os.WriteFile(path, []byte("{\"count\":1}\nnot json\n{\"count\":2}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lines := ReadNDJSONTail(path, 0)
	if len(lines) != 2 {
		t.Errorf("expected 2 valid lines, got %d", len(lines))
	}
}
