package pipeline

import (
	"crypto/md5"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fsbuild/internal/fwfs"
)

func newFile(t *testing.T, name string) *fwfs.Container {
	t.Helper()
	mtime := time.Unix(1_700_000_000, 0)
	vol := fwfs.NewVolume("FWFS", 1, mtime)
	root := fwfs.NewRootDirectory(vol, mtime)
	f, err := fwfs.NewFile(root, name, mtime)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return f
}

// Scenario B equivalent: no compression rule, bytes stored verbatim.
func TestAddFileNoCompression(t *testing.T) {
	f := newFile(t, "hello.txt")
	if err := AddFile(f, "hello.txt", strings.NewReader("hi"), true); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	data := f.FindByType(fwfs.TypeData8).(*fwfs.DataLeaf)
	if diff := cmp.Diff([]byte("hi"), data.Bytes()); diff != "" {
		t.Fatalf("stored bytes mismatch (-want +got):\n%s", diff)
	}
	want := md5.Sum([]byte("hi"))
	_, got, err := f.FindByType(fwfs.TypeMd5Hash).(*fwfs.Md5Leaf).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if diff := cmp.Diff(want[:], got); diff != "" {
		t.Fatalf("md5 mismatch (-want +got):\n%s", diff)
	}
}

// Scenario C: compression shrinks a large, highly repetitive payload.
func TestAddFileCompressionShrinks(t *testing.T) {
	f := newFile(t, "big.json")
	f.AppendCompression(fwfs.CompressionGzip)

	// A JSON array of a repeated string: highly compressible, and immune
	// to the minify step's duplicate-object-key collapsing.
	elem := `"` + strings.Repeat("ab", 16) + `"`
	elements := make([]string, 256)
	for i := range elements {
		elements[i] = elem
	}
	input := "[" + strings.Join(elements, ",") + "]"
	if err := AddFile(f, "big.json", strings.NewReader(input), true); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	fc := f.Compression()
	if fc.CompType != fwfs.CompressionGzip {
		t.Fatalf("compression type = %v, want gzip", fc.CompType)
	}
	if f.DataSize() >= int64(fc.OriginalSize) {
		t.Fatalf("stored size %d not smaller than original size %d", f.DataSize(), fc.OriginalSize)
	}
}

// Scenario D: compression does not shrink small/incompressible data, so
// the Compression leaf is dropped and raw bytes are kept.
func TestAddFileCompressionDoesNotShrink(t *testing.T) {
	f := newFile(t, "rand.bin")
	f.AppendCompression(fwfs.CompressionGzip)

	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	if err := AddFile(f, "rand.bin", strings.NewReader(string(raw)), true); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if f.FindByType(fwfs.TypeCompression) != nil {
		t.Fatal("Compression leaf present though gzip did not shrink the payload")
	}
	data := f.FindByType(fwfs.TypeData8).(*fwfs.DataLeaf)
	if diff := cmp.Diff(raw, data.Bytes()); diff != "" {
		t.Fatalf("stored bytes mismatch (-want +got):\n%s", diff)
	}
}

// The `-n` flag (minify=false) stores JSON verbatim, spaces included.
func TestAddFileMinifyDisabled(t *testing.T) {
	f := newFile(t, "config.json")
	raw := `{  "a" :  1  }`
	if err := AddFile(f, "config.json", strings.NewReader(raw), false); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	data := f.FindByType(fwfs.TypeData8).(*fwfs.DataLeaf)
	if string(data.Bytes()) != raw {
		t.Fatalf("stored = %q, want verbatim %q", data.Bytes(), raw)
	}
}

func TestMinifyJSON(t *testing.T) {
	out, err := minifyByExtension("config.json", []byte(`{  "a" :  1,  "b": [1, 2,   3] }`))
	if err != nil {
		t.Fatalf("minifyByExtension: %v", err)
	}
	if strings.Contains(string(out), " ") {
		t.Fatalf("minified JSON still contains spaces: %s", out)
	}
}

func TestMinifyIdempotent(t *testing.T) {
	once, err := minifyByExtension("config.json", []byte(`{"a":1,"b":[1,2,3]}`))
	if err != nil {
		t.Fatalf("minifyByExtension: %v", err)
	}
	twice, err := minifyByExtension("config.json", once)
	if err != nil {
		t.Fatalf("minifyByExtension (second pass): %v", err)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("minify not idempotent (-first +second):\n%s", diff)
	}
}
