package fwfs

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/orcaman/writerseeker"
	"golang.org/x/xerrors"
)

// Container is a named object: Volume, Directory, MountPoint or File.
// All four share the same layout (name, mtime, ordered children) and
// differ only in their type tag and in a couple of construction-time
// invariants enforced by the constructors in tree.go.
type Container struct {
	refState

	typ      ObjType
	Name     string
	Mtime    time.Time
	Parent   *Container
	Children []Object

	dataSize int64
}

func newContainer(typ ObjType, name string, mtime time.Time) *Container {
	return &Container{typ: typ, Name: name, Mtime: mtime}
}

func (c *Container) Type() ObjType { return c.typ }
func (c *Container) IsRef() bool   { return true }
func (c *Container) IsEmpty() bool { return false }

// pathSep returns the separator this container places between itself and
// each of its children's name when computing a child's path. The Volume
// has no separator (its only child is the anonymous root Directory).
func (c *Container) pathSep() string {
	if c.typ == TypeVolume {
		return ""
	}
	return "/"
}

// Path returns the node's full path from the volume root. The anonymous
// root Directory and the Volume itself both report "".
func (c *Container) Path() string {
	if c.Parent == nil {
		return ""
	}
	return c.Parent.Path() + c.Parent.pathSep() + c.Name
}

// NodeName returns the container's own name, for rule matching against
// a bare (non-path) mask.
func (c *Container) NodeName() string { return c.Name }

// AppendChild adds obj as this container's next child, in insertion
// order. Use AddNamedChild instead for Directory/MountPoint/File
// children, which must additionally be unique by name.
func (c *Container) AppendChild(obj Object) {
	c.Children = append(c.Children, obj)
}

// RemoveChild removes the first occurrence of obj from this container's
// children, if present.
func (c *Container) RemoveChild(obj Object) {
	for i, ch := range c.Children {
		if ch == obj {
			c.Children = append(c.Children[:i], c.Children[i+1:]...)
			return
		}
	}
}

// AddNamedChild attaches child under c, enforcing name uniqueness among
// named children.
func (c *Container) AddNamedChild(child *Container) error {
	if existing := c.FindChildByName(child.Name); existing != nil {
		return &ErrDuplicateName{Parent: c.Path(), Name: child.Name}
	}
	child.Parent = c
	c.AppendChild(child)
	return nil
}

// FindByType returns the first direct child whose Type matches t, or nil.
func (c *Container) FindByType(t ObjType) Object {
	for _, ch := range c.Children {
		if ch.Type() == t {
			return ch
		}
	}
	return nil
}

// FindInheritable searches for a typed child on c, then walks toward the
// root if not found locally (ACE inheritance).
func (c *Container) FindInheritable(t ObjType) Object {
	if obj := c.FindByType(t); obj != nil {
		return obj
	}
	if c.Parent != nil {
		return c.Parent.FindInheritable(t)
	}
	return nil
}

// FindChildByName returns the named child with the given name, or nil.
func (c *Container) FindChildByName(name string) *Container {
	for _, ch := range c.Children {
		if cc, ok := ch.(*Container); ok && cc.Name == name {
			return cc
		}
	}
	return nil
}

// Attr returns the container's own ObjAttr leaf, or a zero-value one if
// it has none — used by the report writer, which always wants a string
// to print.
func (c *Container) Attr() *ObjAttrLeaf {
	if obj := c.FindByType(TypeObjAttr); obj != nil {
		return obj.(*ObjAttrLeaf)
	}
	return &ObjAttrLeaf{}
}

// SetAttr sets or clears a single attribute bit, creating the ObjAttr
// leaf if this container doesn't have one yet.
func (c *Container) SetAttr(bit int, state bool) {
	attr := c.Attr()
	obj := c.FindByType(TypeObjAttr)
	if obj == nil {
		attr = &ObjAttrLeaf{}
		c.AppendChild(attr)
	}
	attr.Set(bit, state)
}

// Compression returns the container's own Compression leaf, or a
// zero-value one (CompressionNone) if it has none.
func (c *Container) Compression() *CompressionLeaf {
	if obj := c.FindByType(TypeCompression); obj != nil {
		return obj.(*CompressionLeaf)
	}
	return &CompressionLeaf{}
}

// AppendCompression sets this container's compression choice, per the
// compression append rule: ct == CompressionNone removes any existing
// Compression leaf and adds nothing.
func (c *Container) AppendCompression(ct CompressionType) {
	if existing := c.FindByType(TypeCompression); existing != nil {
		c.RemoveChild(existing)
	}
	if ct == CompressionNone {
		return
	}
	c.AppendChild(&CompressionLeaf{CompType: ct})
}

// ReadACE returns the node's effective (possibly inherited) read ACE, or
// a zero-value one (RoleNone) if none is set anywhere up to the Volume.
func (c *Container) ReadACE() *ACELeaf {
	return c.inheritedACE(TypeReadACE)
}

// WriteACE returns the node's effective (possibly inherited) write ACE.
func (c *Container) WriteACE() *ACELeaf {
	return c.inheritedACE(TypeWriteACE)
}

func (c *Container) inheritedACE(kind ObjType) *ACELeaf {
	if obj := c.FindInheritable(kind); obj != nil {
		return obj.(*ACELeaf)
	}
	return &ACELeaf{Kind: kind}
}

// AppendReadACE appends or updates this node's read ACE via the ACE
// append rule.
func (c *Container) AppendReadACE(role Role) { c.appendACE(TypeReadACE, role) }

// AppendWriteACE appends or updates this node's write ACE via the ACE
// append rule.
func (c *Container) AppendWriteACE(role Role) { c.appendACE(TypeWriteACE, role) }

// appendACE implements the ACE append rule: a node's ACE of a given kind
// is added or changed only when it would differ from the value it
// already inherits.
func (c *Container) appendACE(kind ObjType, role Role) {
	if inherited := c.FindInheritable(kind); inherited != nil {
		if inherited.(*ACELeaf).Role == role {
			return
		}
	}
	if own := c.FindByType(kind); own != nil {
		own.(*ACELeaf).Role = role
		return
	}
	c.AppendChild(&ACELeaf{Kind: kind, Role: role})
}

// AppendData appends a data leaf containing content, choosing the
// smallest size class that fits, and accumulates dataSize. Callers that
// need the file's MD5 kept in sync should use AppendFileData instead.
func (c *Container) AppendData(content []byte) (*DataLeaf, error) {
	leaf, err := NewDataLeaf(content)
	if err != nil {
		return nil, err
	}
	c.AppendChild(leaf)
	c.dataSize += int64(len(content))
	return leaf, nil
}

// ChildCount returns the number of direct children.
func (c *Container) ChildCount() int { return len(c.Children) }

// FileCount returns the number of File children, optionally recursing
// into named descendants.
func (c *Container) FileCount(recursive bool) int {
	count := 0
	for _, ch := range c.Children {
		if ch.Type() == TypeFile {
			count++
		}
		if recursive {
			if cc, ok := ch.(*Container); ok {
				count += cc.FileCount(true)
			}
		}
	}
	return count
}

// DataSize returns the number of stored (post-pipeline) bytes directly
// owned by this node.
func (c *Container) DataSize() int64 { return c.dataSize }

// OriginalDataSize returns the pre-compression size if this node carries
// a Compression leaf, else its stored size.
func (c *Container) OriginalDataSize() int64 {
	if obj := c.FindByType(TypeCompression); obj != nil {
		return int64(obj.(*CompressionLeaf).OriginalSize)
	}
	return c.dataSize
}

// TotalChildCount returns the recursive count of all descendants.
func (c *Container) TotalChildCount() int {
	total := c.ChildCount()
	for _, ch := range c.Children {
		if cc, ok := ch.(*Container); ok {
			total += cc.TotalChildCount()
		}
	}
	return total
}

// TotalDataSize returns the recursive sum of stored data sizes.
func (c *Container) TotalDataSize() int64 {
	total := c.DataSize()
	for _, ch := range c.Children {
		if cc, ok := ch.(*Container); ok {
			total += cc.TotalDataSize()
		}
	}
	return total
}

// TotalOriginalDataSize returns the recursive sum of pre-compression data
// sizes.
func (c *Container) TotalOriginalDataSize() int64 {
	total := c.OriginalDataSize()
	for _, ch := range c.Children {
		if cc, ok := ch.(*Container); ok {
			total += cc.TotalOriginalDataSize()
		}
	}
	return total
}

// Prune removes any leaf whose IsEmpty reports true, recursing into
// named children. Must run once, after tree construction and the
// content pipeline, before serialization begins.
func (c *Container) Prune() {
	kept := c.Children[:0]
	for _, ch := range c.Children {
		if ch.IsEmpty() {
			continue
		}
		if cc, ok := ch.(*Container); ok {
			cc.Prune()
		}
		kept = append(kept, ch)
	}
	c.Children = kept
}

// Encode builds this container's header and content. It must only be
// called once every referenced child has already been assigned an ID —
// the serializer enforces this by emitting ref children before calling
// Encode on their parent.
func (c *Container) Encode() (header, content []byte, err error) {
	table, err := c.childTable()
	if err != nil {
		return nil, nil, xerrors.Errorf("encoding %q: %w", c.Path(), err)
	}
	name := []byte(c.Name)

	var ws writerseeker.WriterSeeker
	if _, err := ws.Write([]byte{byte(len(name))}); err != nil {
		return nil, nil, err
	}
	var mtimeBuf [4]byte
	binary.LittleEndian.PutUint32(mtimeBuf[:], uint32(c.Mtime.Unix()))
	if _, err := ws.Write(mtimeBuf[:]); err != nil {
		return nil, nil, err
	}
	if _, err := ws.Write(name); err != nil {
		return nil, nil, err
	}
	if _, err := ws.Write(table); err != nil {
		return nil, nil, err
	}

	content, err = io.ReadAll(ws.BytesReader())
	if err != nil {
		return nil, nil, err
	}
	return size16Header(c.typ, len(content)), content, nil
}

// childTable builds the serialized child-table: inline bytes for
// non-reference children, reference headers for already-emitted ones, in
// insertion order.
func (c *Container) childTable() ([]byte, error) {
	var ws writerseeker.WriterSeeker
	for _, ch := range c.Children {
		if ch.IsRef() {
			entry, err := refEntry(ch)
			if err != nil {
				return nil, err
			}
			if _, err := ws.Write(entry); err != nil {
				return nil, err
			}
			continue
		}
		header, cbytes, err := ch.Encode()
		if err != nil {
			return nil, err
		}
		if _, err := ws.Write(header); err != nil {
			return nil, err
		}
		if _, err := ws.Write(cbytes); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(ws.BytesReader())
}
