package fwfs

import "golang.org/x/xerrors"

func errDataTooLarge(n int) error {
	return xerrors.Errorf("payload of %d bytes exceeds the size24 maximum of %d bytes", n, maxSize24)
}

// ErrDuplicateName is returned by Container.AddNamedChild when a named
// child with the same name already exists.
type ErrDuplicateName struct {
	Parent string
	Name   string
}

func (e *ErrDuplicateName) Error() string {
	return xerrors.Errorf("%q: a child named %q already exists", e.Parent, e.Name).Error()
}
