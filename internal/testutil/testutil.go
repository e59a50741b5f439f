// Package testutil provides shared test fixtures for the diagnostic
// pipeline: helpers that lay out runs-directory trees and artifact
// documents the way the generator writes them.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// WriteJSON marshals doc and writes it to path, creating parent
// directories as needed.
func WriteJSON(t *testing.T, path string, doc interface{}) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// RunDir creates (and returns) the directory for one run under the
// condition/trace/seed layout.
func RunDir(t *testing.T, root, condition, trace string, seed int) string {
	t.Helper()
	dir := filepath.Join(root, condition, trace, strconv.Itoa(seed))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir run dir %s: %v", dir, err)
	}
	return dir
}

// WriteFile writes raw content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
