package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "doc.json")
	WriteJSON(t, path, map[string]interface{}{"tempo_bpm": 120.0})

	data, err := os.ReadFile(path)
	AssertNoError(t, err)

	var doc map[string]float64
	AssertNoError(t, json.Unmarshal(data, &doc))
	if doc["tempo_bpm"] != 120 {
		t.Errorf("tempo_bpm = %v, want 120", doc["tempo_bpm"])
	}
}

func TestRunDirLayout(t *testing.T) {
	root := t.TempDir()
	dir := RunDir(t, root, "baseline", "t1", 7)

	want := filepath.Join(root, "baseline", "t1", "7")
	if dir != want {
		t.Errorf("run dir = %s, want %s", dir, want)
	}
	info, err := os.Stat(dir)
	AssertNoError(t, err)
	if !info.IsDir() {
		t.Error("run dir is not a directory")
	}
}
