package fwfs

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// Object is the atomic unit of an FWFS image: every leaf and every
// container implements it. Encode returns the object's header and
// content bytes. For a Container, Encode may only be called once all of
// its referenced children have been assigned an ID by the serializer —
// the child-table entries for those children are reference headers that
// encode the assigned ID.
type Object interface {
	Type() ObjType
	// IsRef reports whether this object is emitted standalone and
	// addressed by ID from its parent's child-table (true), or inlined
	// directly into the parent's child-table (false).
	IsRef() bool
	// IsEmpty reports whether this object should be dropped during the
	// pre-serialization pruning pass.
	IsEmpty() bool
	// Encode returns the object's wire header and content bytes.
	Encode() (header, content []byte, err error)
}

// refState tracks the ID assigned to a standalone-emitted object. IDs are
// the byte offset of the object within the image (see DESIGN.md, Open
// Question 1: Variant B).
type refState struct {
	id       uint64
	assigned bool
}

func (r *refState) assign(id uint64) { r.id, r.assigned = id, true }

// refObject is implemented by every Object whose IsRef() is true, so the
// serializer can assign and later read back its ID.
type refObject interface {
	Object
	assign(id uint64)
	refID() (uint64, bool)
}

func (r *refState) refID() (uint64, bool) { return r.id, r.assigned }

// refByteLen returns the minimum number of little-endian bytes needed to
// hold id, per the reference header encoding (ref_len is 1, 2, 3 or 4 bytes).
func refByteLen(id uint64) (int, error) {
	switch {
	case id <= 0xff:
		return 1, nil
	case id <= 0xffff:
		return 2, nil
	case id <= 0xffffff:
		return 3, nil
	case id <= 0xffffffff:
		return 4, nil
	default:
		return 0, xerrors.Errorf("object id %d exceeds the maximum 4-byte reference size", id)
	}
}

// refEntry builds the child-table reference header for a child that has
// already been emitted standalone: {type|0x80, refLen, refLen bytes of
// little-endian id}.
func refEntry(child Object) ([]byte, error) {
	ro, ok := child.(refObject)
	if !ok {
		return nil, xerrors.Errorf("object of type %d is not a reference object", child.Type())
	}
	id, assigned := ro.refID()
	if !assigned {
		return nil, xerrors.Errorf("object of type %d has not been emitted yet", child.Type())
	}
	n, err := refByteLen(id)
	if err != nil {
		return nil, err
	}
	idBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(idBytes, id)

	entry := make([]byte, 2+n)
	entry[0] = byte(child.Type() | refFlag)
	entry[1] = byte(n)
	copy(entry[2:], idBytes[:n])
	return entry, nil
}
