// Package fwfs implements the Firmware Filesystem (FWFS) object model and
// image serializer: a typed object graph (volume, directories, files,
// leaf metadata) that is written out as a compact, byte-exact binary
// image for embedded firmware to read in place.
//
// The wire format and the rule-driven metadata semantics mirror the
// mikee47/IFS fsbuild tool, reimplemented with that tool's deep class
// hierarchy replaced by a single tagged Container plus small leaf
// structs.
package fwfs

import "encoding/binary"

// ObjType is the one-octet type tag that prefixes every object's header.
type ObjType byte

// Object type tags, matching the FWFS wire format.
const (
	TypeEnd         ObjType = 0
	TypeData8       ObjType = 1
	TypeID32        ObjType = 2
	TypeObjAttr     ObjType = 3
	TypeCompression ObjType = 4
	TypeReadACE     ObjType = 5
	TypeWriteACE    ObjType = 6
	TypeVolumeIndex ObjType = 7
	TypeMd5Hash     ObjType = 8

	TypeData16     ObjType = 32
	TypeVolume     ObjType = 33
	TypeMountPoint ObjType = 34
	TypeDirectory  ObjType = 35
	TypeFile       ObjType = 36

	TypeData24 ObjType = 64
)

// refFlag is ORed into a child-table entry's type byte when the entry is
// a reference to a standalone-emitted object rather than inline content.
const refFlag ObjType = 0x80

// isNamed reports whether t identifies one of the four container kinds.
func (t ObjType) isNamed() bool {
	return t == TypeVolume || t == TypeMountPoint || t == TypeDirectory || t == TypeFile
}

// Role is the minimum UserRole required for a given access kind.
type Role byte

// Role values, matching the original access.UserRole enum. None and Any
// share the same wire value.
const (
	RoleNone    Role = 0
	RoleAny     Role = 0
	RoleGuest   Role = 1
	RoleUser    Role = 2
	RoleManager Role = 3
	RoleAdmin   Role = 4
)

var roleNames = map[Role]string{
	RoleNone:    "none",
	RoleGuest:   "guest",
	RoleUser:    "user",
	RoleManager: "manager",
	RoleAdmin:   "admin",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRole resolves a role name, matching the original config's `read`/
// `write` rule field values. "any" is accepted as an alias for "none".
func ParseRole(name string) (Role, bool) {
	for r, s := range roleNames {
		if s == name {
			return r, true
		}
	}
	if name == "any" {
		return RoleAny, true
	}
	return 0, false
}

// CompressionType identifies the compressor applied to a file's stored
// data, or none.
type CompressionType byte

const (
	CompressionNone CompressionType = 0
	CompressionGzip CompressionType = 1
)

var compressionNames = map[CompressionType]string{
	CompressionNone: "none",
	CompressionGzip: "gzip",
}

func (c CompressionType) String() string {
	if s, ok := compressionNames[c]; ok {
		return s
	}
	return "unknown"
}

// ParseCompressionType resolves a compression name from a rule's
// `compress` field.
func ParseCompressionType(name string) (CompressionType, bool) {
	for c, s := range compressionNames {
		if s == name {
			return c, true
		}
	}
	return 0, false
}

// Object attribute bits, packed into a single ObjAttr byte.
const (
	AttrReadOnly = 0
	AttrArchive  = 1
)

// size8Header builds a header for a size8 leaf: type + 1-byte length.
func size8Header(t ObjType, contentLen int) []byte {
	return []byte{byte(t), byte(contentLen)}
}

// size16Header builds a header for a size16 container: type + 2-byte
// little-endian length.
func size16Header(t ObjType, contentLen int) []byte {
	b := make([]byte, 3)
	b[0] = byte(t)
	binary.LittleEndian.PutUint16(b[1:], uint16(contentLen))
	return b
}

// size24Header builds a header for a size24 data leaf: type + 2-byte low
// word + 1-byte high byte, little-endian.
func size24Header(t ObjType, contentLen int) []byte {
	b := make([]byte, 4)
	b[0] = byte(t)
	binary.LittleEndian.PutUint16(b[1:], uint16(contentLen&0xffff))
	b[3] = byte(contentLen >> 16)
	return b
}

const (
	maxSize8  = 0xff
	maxSize16 = 0xffff
	maxSize24 = 0xffffff
)
