package fwfs

import (
	"crypto/md5"
	"encoding/binary"
	"hash"
)

// ObjAttrLeaf carries a bitmask of file attributes (ReadOnly, Archive).
// It is inline: at most one exists per container.
type ObjAttrLeaf struct {
	Bits byte
}

func (o *ObjAttrLeaf) Type() ObjType    { return TypeObjAttr }
func (o *ObjAttrLeaf) IsRef() bool      { return false }
func (o *ObjAttrLeaf) IsEmpty() bool    { return false }
func (o *ObjAttrLeaf) Get(bit int) bool { return o.Bits&(1<<uint(bit)) != 0 }
func (o *ObjAttrLeaf) Set(bit int, state bool) {
	if state {
		o.Bits |= 1 << uint(bit)
	} else {
		o.Bits &^= 1 << uint(bit)
	}
}

// String renders the attribute bits the way the build log does: one
// character per known bit, '-' where clear.
func (o *ObjAttrLeaf) String() string {
	b := []byte{'-', '-'}
	if o.Get(AttrReadOnly) {
		b[0] = 'R'
	}
	if o.Get(AttrArchive) {
		b[1] = 'A'
	}
	return string(b)
}

func (o *ObjAttrLeaf) Encode() (header, content []byte, err error) {
	content = []byte{o.Bits}
	return size8Header(o.Type(), len(content)), content, nil
}

// CompressionLeaf records the compressor applied to a file's stored data
// and, if compressed, the pre-compression length. Present on a File only
// when its stored data is actually compressed.
type CompressionLeaf struct {
	CompType     CompressionType
	OriginalSize uint32
}

func (c *CompressionLeaf) Type() ObjType { return TypeCompression }
func (c *CompressionLeaf) IsRef() bool   { return false }
func (c *CompressionLeaf) IsEmpty() bool { return false }
func (c *CompressionLeaf) String() string {
	return c.CompType.String()
}

func (c *CompressionLeaf) Encode() (header, content []byte, err error) {
	content = make([]byte, 5)
	content[0] = byte(c.CompType)
	binary.LittleEndian.PutUint32(content[1:], c.OriginalSize)
	return size8Header(c.Type(), len(content)), content, nil
}

// ACELeaf is an access control entry: the minimum Role required for
// either read or write access. Kind distinguishes ReadACE from WriteACE.
type ACELeaf struct {
	Kind ObjType
	Role Role
}

func (a *ACELeaf) Type() ObjType  { return a.Kind }
func (a *ACELeaf) IsRef() bool    { return false }
func (a *ACELeaf) IsEmpty() bool  { return false }
func (a *ACELeaf) String() string { return a.Role.String() }

func (a *ACELeaf) Encode() (header, content []byte, err error) {
	content = []byte{byte(a.Role)}
	return size8Header(a.Type(), len(content)), content, nil
}

// VolumeIndexLeaf identifies the object store backing a MountPoint.
type VolumeIndexLeaf struct {
	Store byte
}

func (v *VolumeIndexLeaf) Type() ObjType { return TypeVolumeIndex }
func (v *VolumeIndexLeaf) IsRef() bool   { return false }
func (v *VolumeIndexLeaf) IsEmpty() bool { return false }

func (v *VolumeIndexLeaf) Encode() (header, content []byte, err error) {
	content = []byte{v.Store}
	return size8Header(v.Type(), len(content)), content, nil
}

// Md5Leaf accumulates the MD5 digest of a File's stored bytes. It is
// pruned before serialization if nothing was ever hashed (zero length).
type Md5Leaf struct {
	hash   hash.Hash
	Length int64
}

func (m *Md5Leaf) Type() ObjType { return TypeMd5Hash }
func (m *Md5Leaf) IsRef() bool   { return false }
func (m *Md5Leaf) IsEmpty() bool { return m.Length == 0 }

// Update folds content into the running digest.
func (m *Md5Leaf) Update(content []byte) {
	if m.hash == nil {
		m.hash = md5.New()
	}
	m.hash.Write(content)
	m.Length += int64(len(content))
}

func (m *Md5Leaf) Encode() (header, content []byte, err error) {
	if m.hash == nil {
		m.hash = md5.New()
	}
	content = m.hash.Sum(nil)
	return size8Header(m.Type(), len(content)), content, nil
}

// ID32Leaf carries a single uint32 value, used for the volume ID.
type ID32Leaf struct {
	Value uint32
}

func (i *ID32Leaf) Type() ObjType { return TypeID32 }
func (i *ID32Leaf) IsRef() bool   { return false }
func (i *ID32Leaf) IsEmpty() bool { return false }

func (i *ID32Leaf) Encode() (header, content []byte, err error) {
	content = make([]byte, 4)
	binary.LittleEndian.PutUint32(content, i.Value)
	return size8Header(i.Type(), len(content)), content, nil
}

// EndLeaf is the image footer, written directly after the volume. The
// checksum field is reserved but always zero (DESIGN.md, Open Question 2).
type EndLeaf struct {
	refState
	Checksum uint32
}

func (e *EndLeaf) Type() ObjType { return TypeEnd }
func (e *EndLeaf) IsRef() bool   { return false }
func (e *EndLeaf) IsEmpty() bool { return false }

func (e *EndLeaf) Encode() (header, content []byte, err error) {
	content = make([]byte, 4)
	binary.LittleEndian.PutUint32(content, e.Checksum)
	return size8Header(e.Type(), len(content)), content, nil
}

// DataLeaf holds a file's final stored bytes, in the smallest size class
// that fits. It is always emitted standalone and addressed by reference.
type DataLeaf struct {
	refState
	typ   ObjType
	bytes []byte
}

// NewDataLeaf selects the smallest size class that fits data and returns
// the leaf, or an error if data exceeds the size24 maximum (16 MiB).
func NewDataLeaf(data []byte) (*DataLeaf, error) {
	n := len(data)
	var t ObjType
	switch {
	case n <= maxSize8:
		t = TypeData8
	case n <= maxSize16:
		t = TypeData16
	case n <= maxSize24:
		t = TypeData24
	default:
		return nil, errDataTooLarge(n)
	}
	return &DataLeaf{typ: t, bytes: data}, nil
}

func (d *DataLeaf) Type() ObjType { return d.typ }
func (d *DataLeaf) IsRef() bool   { return true }
func (d *DataLeaf) IsEmpty() bool { return false }
func (d *DataLeaf) Bytes() []byte { return d.bytes }

func (d *DataLeaf) Encode() (header, content []byte, err error) {
	content = d.bytes
	switch d.typ {
	case TypeData8:
		header = size8Header(d.typ, len(content))
	case TypeData16:
		header = size16Header(d.typ, len(content))
	case TypeData24:
		header = size24Header(d.typ, len(content))
	}
	return header, content, nil
}
