package fwfs

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

const (
	startMarker uint32 = 0x53465746 // "FWFS"
	endMarker   uint32 = 0x46574653 // "SFWF"
)

// Writer serializes a Volume tree to an FWFS image in a single forward
// pass: single-threaded, synchronous, no seeking required — FWFS never
// back-patches a superblock.
type Writer struct {
	w           io.Writer
	offset      int64
	objectCount int
}

// NewWriter returns a Writer that serializes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// ObjectCount returns the number of standalone objects emitted so far.
func (w *Writer) ObjectCount() int { return w.objectCount }

// Flush writes the start marker, the volume tree (and everything it
// references, post-order), the End footer and the end marker. vol must
// already be pruned; the Writer must not be reused afterwards.
func (w *Writer) Flush(vol *Container) error {
	if err := w.writeMarker(startMarker); err != nil {
		return xerrors.Errorf("writing start marker: %w", err)
	}
	if err := w.emit(vol); err != nil {
		return xerrors.Errorf("emitting volume: %w", err)
	}
	end := &EndLeaf{Checksum: 0}
	if err := w.writeObject(end); err != nil {
		return xerrors.Errorf("emitting end object: %w", err)
	}
	if err := w.writeMarker(endMarker); err != nil {
		return xerrors.Errorf("writing end marker: %w", err)
	}
	return nil
}

// emit recursively emits obj's referenced children (post-order), then
// emits obj itself. Re-emitting an already-assigned object is a no-op —
// this idempotent guard protects against a future graph where one object
// is referenced from multiple parents; the present tree is strictly
// tree-shaped, so it never actually triggers.
func (w *Writer) emit(obj Object) error {
	if ro, ok := obj.(refObject); ok {
		if _, assigned := ro.refID(); assigned {
			return nil
		}
	}
	if c, ok := obj.(*Container); ok {
		for _, child := range c.Children {
			if child.IsRef() {
				if err := w.emit(child); err != nil {
					return err
				}
			}
		}
	}
	return w.writeObject(obj)
}

// writeObject encodes obj and writes it to the output stream, recording
// its assigned ID (the byte offset immediately before the write).
func (w *Writer) writeObject(obj Object) error {
	header, content, err := obj.Encode()
	if err != nil {
		return err
	}
	id := uint64(w.offset)
	if _, err := w.w.Write(header); err != nil {
		return err
	}
	if _, err := w.w.Write(content); err != nil {
		return err
	}
	w.offset += int64(len(header) + len(content))
	w.objectCount++
	if ro, ok := obj.(refObject); ok {
		ro.assign(id)
	}
	return nil
}

func (w *Writer) writeMarker(m uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], m)
	_, err := w.w.Write(b[:])
	w.offset += 4
	return err
}
