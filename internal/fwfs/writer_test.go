package fwfs

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func mustWrite(t *testing.T, vol *Container) []byte {
	t.Helper()
	vol.Prune()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Flush(vol); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return buf.Bytes()
}

// Scenario A: empty volume.
func TestEmptyVolume(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 0x12345678, mtime)
	NewRootDirectory(vol, mtime)

	out := mustWrite(t, vol)

	if got := binary.LittleEndian.Uint32(out[:4]); got != startMarker {
		t.Fatalf("start marker = %#x, want %#x", got, startMarker)
	}
	if got := binary.LittleEndian.Uint32(out[len(out)-4:]); got != endMarker {
		t.Fatalf("end marker = %#x, want %#x", got, endMarker)
	}

	root := vol.Children[1].(*Container)
	if root.Type() != TypeDirectory || root.Name != "" {
		t.Fatalf("root = %+v, want anonymous Directory", root)
	}
	if root.ReadACE().Role != RoleGuest {
		t.Fatalf("root read ACE = %v, want guest", root.ReadACE().Role)
	}
	if root.WriteACE().Role != RoleAdmin {
		t.Fatalf("root write ACE = %v, want admin", root.WriteACE().Role)
	}
	id32 := vol.FindByType(TypeID32).(*ID32Leaf)
	if id32.Value != 0x12345678 {
		t.Fatalf("volume id = %#x, want %#x", id32.Value, 0x12345678)
	}
}

// Scenario B (Variant B IDs): single small file.
func TestSingleSmallFile(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)

	f, err := NewFile(root, "hello.txt", mtime)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	content := []byte("hi")
	if err := AppendFileData(f, content); err != nil {
		t.Fatalf("AppendFileData: %v", err)
	}

	mustWrite(t, vol)

	data := f.FindByType(TypeData8).(*DataLeaf)
	if diff := cmp.Diff(content, data.Bytes()); diff != "" {
		t.Fatalf("stored bytes mismatch (-want +got):\n%s", diff)
	}
	if id, assigned := data.refID(); !assigned || id == 0 {
		// offset 0 is occupied by the start marker; a data leaf can
		// never legitimately land there.
		t.Fatalf("data leaf ID = %d (assigned=%v), want a nonzero assigned offset", id, assigned)
	}

	want := md5.Sum(content)
	_, got, err := f.FindByType(TypeMd5Hash).(*Md5Leaf).Encode()
	if err != nil {
		t.Fatalf("Md5Leaf.Encode: %v", err)
	}
	if diff := cmp.Diff(want[:], got); diff != "" {
		t.Fatalf("md5 mismatch (-want +got):\n%s", diff)
	}
}

// Scenario E: ACE inheritance minimization.
func TestACEInheritanceMinimization(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)
	root.AppendReadACE(RoleGuest)

	foo, err := NewDirectory(root, "foo", mtime)
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	foo.AppendReadACE(RoleGuest)

	if leaf := foo.FindByType(TypeReadACE); leaf != nil {
		t.Fatalf("foo carries its own ReadACE leaf %+v, want none (inherited)", leaf)
	}
	if foo.ReadACE().Role != RoleGuest {
		t.Fatalf("foo effective read ACE = %v, want guest", foo.ReadACE().Role)
	}

	// Changing the role still needs its own leaf.
	foo.AppendReadACE(RoleUser)
	leaf := foo.FindByType(TypeReadACE)
	if leaf == nil {
		t.Fatal("foo read ACE = user should have its own leaf, found none")
	}
	if leaf.(*ACELeaf).Role != RoleUser {
		t.Fatalf("foo read ACE = %v, want user", leaf.(*ACELeaf).Role)
	}
}

// Scenario F: mountpoint.
func TestMountPoint(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)

	mp, err := NewMountPoint(root, "mnt", 3, mtime)
	if err != nil {
		t.Fatalf("NewMountPoint: %v", err)
	}

	mustWrite(t, vol)

	if mp.ChildCount() != 1 {
		t.Fatalf("mountpoint child count = %d, want 1", mp.ChildCount())
	}
	vi, ok := mp.Children[0].(*VolumeIndexLeaf)
	if !ok {
		t.Fatalf("mountpoint child = %T, want *VolumeIndexLeaf", mp.Children[0])
	}
	if vi.Store != 3 {
		t.Fatalf("volume index = %d, want 3", vi.Store)
	}
}

// Invariant 5: uniqueness of named children.
func TestDuplicateNameRejected(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)

	if _, err := NewFile(root, "dup", mtime); err != nil {
		t.Fatalf("first NewFile: %v", err)
	}
	if _, err := NewFile(root, "dup", mtime); err == nil {
		t.Fatal("second NewFile with duplicate name succeeded, want error")
	}
}

// Invariant 3/4 and the compression append rule (Scenario C/D collapsed to
// unit level; the full pipeline is exercised in internal/pipeline).
func TestCompressionAppendRuleRemovesNoneLeaf(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)
	f, err := NewFile(root, "rand.bin", mtime)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	f.AppendCompression(CompressionGzip)
	if f.FindByType(TypeCompression) == nil {
		t.Fatal("expected Compression leaf after AppendCompression(gzip)")
	}
	f.AppendCompression(CompressionNone)
	if leaf := f.FindByType(TypeCompression); leaf != nil {
		t.Fatalf("Compression leaf still present after AppendCompression(none): %+v", leaf)
	}
}

// Invariant 7: determinism — two runs over the same tree-building
// sequence produce byte-identical images.
func TestDeterministicOutput(t *testing.T) {
	build := func() []byte {
		mtime := time.Unix(1_700_000_000, 0)
		vol := NewVolume("FWFS", 7, mtime)
		root := NewRootDirectory(vol, mtime)
		f, err := NewFile(root, "a.txt", mtime)
		if err != nil {
			t.Fatalf("NewFile: %v", err)
		}
		if err := AppendFileData(f, []byte("payload")); err != nil {
			t.Fatalf("AppendFileData: %v", err)
		}
		return mustWrite(t, vol)
	}

	first := build()
	second := build()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("two builds over identical input produced different images (-first +second):\n%s", diff)
	}
}

// Pruning: an untouched File's empty MD5 leaf (no data ever appended) is
// dropped before serialization.
func TestPruneDropsEmptyMd5(t *testing.T) {
	mtime := time.Unix(1_700_000_000, 0)
	vol := NewVolume("FWFS", 1, mtime)
	root := NewRootDirectory(vol, mtime)
	f, err := NewFile(root, "untouched.txt", mtime)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	vol.Prune()

	if leaf := f.FindByType(TypeMd5Hash); leaf != nil {
		t.Fatalf("empty Md5Hash leaf survived pruning: %+v", leaf)
	}
}
