package fwfs

import "time"

// NewVolume creates the single image root. Exactly one Volume exists per
// image; it has no parent.
func NewVolume(name string, id uint32, mtime time.Time) *Container {
	vol := newContainer(TypeVolume, name, mtime)
	vol.AppendChild(&ID32Leaf{Value: id})
	return vol
}

// NewRootDirectory creates the single anonymous directory that hangs
// directly under vol and serves as the filesystem root, with the default
// ACEs (read=guest, write=admin).
func NewRootDirectory(vol *Container, mtime time.Time) *Container {
	root := newContainer(TypeDirectory, "", mtime)
	root.Parent = vol
	vol.AppendChild(root)
	root.AppendReadACE(RoleGuest)
	root.AppendWriteACE(RoleAdmin)
	return root
}

// NewDirectory creates a Directory named name under parent.
func NewDirectory(parent *Container, name string, mtime time.Time) (*Container, error) {
	dir := newContainer(TypeDirectory, name, mtime)
	if err := parent.AddNamedChild(dir); err != nil {
		return nil, err
	}
	return dir, nil
}

// NewMountPoint creates a MountPoint named name under parent, pointing at
// the given object store index. A MountPoint always owns exactly one
// VolumeIndex child; rules are never applied to it
// (DESIGN.md, Open Question 3).
func NewMountPoint(parent *Container, name string, store byte, mtime time.Time) (*Container, error) {
	mp := newContainer(TypeMountPoint, name, mtime)
	if err := parent.AddNamedChild(mp); err != nil {
		return nil, err
	}
	mp.AppendChild(&VolumeIndexLeaf{Store: store})
	return mp, nil
}

// NewFile creates a File named name under parent. A File always owns
// exactly one Md5Hash leaf, maintained by AppendFileData.
func NewFile(parent *Container, name string, mtime time.Time) (*Container, error) {
	f := newContainer(TypeFile, name, mtime)
	if err := parent.AddNamedChild(f); err != nil {
		return nil, err
	}
	f.AppendChild(&Md5Leaf{})
	return f, nil
}

// AppendFileData stores content as f's data leaf and folds it into f's
// MD5 hash. f must have been created with NewFile.
func AppendFileData(f *Container, content []byte) error {
	if _, err := f.AppendData(content); err != nil {
		return err
	}
	f.FindByType(TypeMd5Hash).(*Md5Leaf).Update(content)
	return nil
}
