package fsconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "fsbuild.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"name": "FWFS",
		"id": "0x12345678",
		"source": {"hello.txt": "$SRC/hello.txt"},
		"rules": [{"mask": "*.json", "compress": "gzip"}]
	}`)

	var warnings []string
	cfg, err := Load(path, func(msg string) { warnings = append(warnings, msg) })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if cfg.Name != "FWFS" {
		t.Fatalf("Name = %q, want FWFS", cfg.Name)
	}
	id, err := cfg.VolumeID()
	if err != nil {
		t.Fatalf("VolumeID: %v", err)
	}
	if id != 0x12345678 {
		t.Fatalf("VolumeID = %#x, want %#x", id, 0x12345678)
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"id": "0x1"}`) // missing required "name"/"source"

	_, err := Load(path, func(string) {})
	if err == nil {
		t.Fatal("expected a schema validation error for a config missing required fields")
	}
}

func TestExpandedSourceExpandsEnv(t *testing.T) {
	t.Setenv("FSBUILD_TEST_SRC", "/srv/assets")
	cfg := &Config{Source: map[string]string{"hello.txt": "$FSBUILD_TEST_SRC/hello.txt"}}
	want := map[string]string{"hello.txt": "/srv/assets/hello.txt"}
	if diff := cmp.Diff(want, cfg.ExpandedSource()); diff != "" {
		t.Fatalf("ExpandedSource mismatch (-want +got):\n%s", diff)
	}
}

func TestVolumeIDDefaultsToZero(t *testing.T) {
	cfg := &Config{}
	id, err := cfg.VolumeID()
	if err != nil {
		t.Fatalf("VolumeID: %v", err)
	}
	if id != 0 {
		t.Fatalf("VolumeID = %d, want 0", id)
	}
}

func TestVolumeIDDecimalString(t *testing.T) {
	cfg := &Config{ID: []byte(`"42"`)}
	id, err := cfg.VolumeID()
	if err != nil {
		t.Fatalf("VolumeID: %v", err)
	}
	if id != 42 {
		t.Fatalf("VolumeID = %d, want 42", id)
	}
}
