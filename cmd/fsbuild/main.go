// Command fsbuild compiles a tree of host files into a Firmware
// Filesystem (FWFS) image for embedded firmware to read in place.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"fsbuild/internal/fsconfig"
	"fsbuild/internal/fwfs"
	"fsbuild/internal/pipeline"
	"fsbuild/internal/report"
	"fsbuild/internal/rules"
)

// Mode bits for the -f copy-out tree, matching squashfs.Writer's own
// rwxr-xr-x/rw-r--r-- directory/file mode constants.
const (
	copyDirMode = unix.S_IRUSR | unix.S_IWUSR | unix.S_IXUSR |
		unix.S_IRGRP | unix.S_IXGRP |
		unix.S_IROTH | unix.S_IXOTH
	copyFileMode = unix.S_IRUSR | unix.S_IWUSR |
		unix.S_IRGRP | unix.S_IROTH
)

func usage(fset *flag.FlagSet) func() {
	return func() {
		fmt.Fprintln(os.Stderr, "fsbuild: compile a Firmware Filesystem image from a source tree")
		fmt.Fprintln(os.Stderr, "usage: fsbuild -i <config> -o <image> [-f <dir>] [-l <logfile|->] [-v] [-n]")
		fset.PrintDefaults()
	}
}

func funcmain() error {
	fset := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	input := fset.String("i", "", "source configuration file (required)")
	output := fset.String("o", "", "destination image file (required)")
	filesDir := fset.String("f", "", "write a copy of the generated file layout for inspection")
	logPath := fset.String("l", "", "write a build log file, use `-` to print to stdout")
	verbose := fset.Bool("v", false, "show build details")
	noMinify := fset.Bool("n", false, "disable minification")
	fset.Usage = usage(fset)
	fset.Parse(os.Args[1:])

	if *input == "" || *output == "" {
		fset.Usage()
		os.Exit(2)
	}

	return build(*input, *output, *filesDir, *logPath, *verbose, !*noMinify)
}

func build(input, output, filesDir, logPath string, verbose, minify bool) (err error) {
	cfg, err := fsconfig.Load(input, func(msg string) {
		log.Printf("warning: %s", msg)
	})
	if err != nil {
		return err
	}

	// Non-absolute source paths are relative to the config file's
	// directory, matching the original's chdir-to-config-dir behavior.
	if dir := filepath.Dir(input); dir != "." {
		if err := os.Chdir(dir); err != nil {
			return xerrors.Errorf("chdir to config directory: %w", err)
		}
	}

	if filesDir != "" {
		if err := prepareFilesDir(filesDir); err != nil {
			return err
		}
	}

	volID, err := cfg.VolumeID()
	if err != nil {
		return err
	}

	mtime := time.Now()
	vol := fwfs.NewVolume(cfg.Name, volID, mtime)
	root := fwfs.NewRootDirectory(vol, mtime)

	engine, err := rules.Compile(cfg.Rules)
	if err != nil {
		return err
	}
	if err := engine.Apply(root); err != nil {
		return err
	}

	var logw *report.Writer
	if logPath != "" {
		logw, err = report.Open(logPath)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := logw.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		logw.Header()
	}

	for target, source := range cfg.ExpandedSource() {
		if err := addTree(root, engine, target, source, mtime, filesDir, verbose, minify, logw); err != nil {
			return err
		}
	}

	for target, store := range cfg.MountPoints {
		name := strings.TrimPrefix(target, "/")
		if _, err := fwfs.NewMountPoint(root, name, byte(store), mtime); err != nil {
			return err
		}
	}

	vol.Prune()

	if logw != nil {
		logw.Totals(root.FileCount(true), root.TotalOriginalDataSize(), root.TotalDataSize())
	}

	out, err := renameio.TempFile("", output)
	if err != nil {
		return xerrors.Errorf("creating %s: %w", output, err)
	}
	defer out.Cleanup()

	w := fwfs.NewWriter(out)
	if err := w.Flush(vol); err != nil {
		return xerrors.Errorf("writing image: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return xerrors.Errorf("publishing %s: %w", output, err)
	}

	fmt.Printf("image contains %d objects, %d bytes in %d files\n",
		w.ObjectCount(), root.TotalDataSize(), root.FileCount(true))
	return nil
}

// prepareFilesDir creates filesDir if it doesn't already exist, then
// removes its existing contents (but not the directory itself),
// matching the original's mkdir+cleandir call pair.
func prepareFilesDir(filesDir string) error {
	if err := os.MkdirAll(filesDir, os.FileMode(copyDirMode)); err != nil {
		return xerrors.Errorf("creating %s: %w", filesDir, err)
	}
	entries, err := os.ReadDir(filesDir)
	if err != nil {
		return xerrors.Errorf("reading %s: %w", filesDir, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(filesDir, entry.Name())); err != nil {
			return xerrors.Errorf("cleaning %s: %w", filesDir, err)
		}
	}
	return nil
}

// addTree mirrors createFsObject/addDirectory/addFile: it walks source
// (a file or a directory) and builds the corresponding File/Directory
// nodes under parent, named target.
func addTree(parent *fwfs.Container, engine *rules.Engine, target, source string, mtime time.Time, filesDir string, verbose, minify bool, logw *report.Writer) error {
	info, err := os.Stat(source)
	if err != nil {
		return xerrors.Errorf("stat %s: %w", source, err)
	}

	var obj *fwfs.Container
	if info.IsDir() {
		obj, err = addDirectory(parent, engine, target, source, mtime, filesDir, verbose, minify, logw)
	} else {
		obj, err = addFile(parent, engine, target, source, mtime, filesDir, verbose, minify, logw)
	}
	if err != nil {
		return err
	}
	if logw != nil {
		logw.Row(obj)
	}
	return nil
}

func addDirectory(parent *fwfs.Container, engine *rules.Engine, name, sourcePath string, mtime time.Time, filesDir string, verbose, minify bool, logw *report.Writer) (*fwfs.Container, error) {
	dir := parent
	if name != "/" {
		d, err := fwfs.NewDirectory(parent, name, mtime)
		if err != nil {
			return nil, err
		}
		if err := engine.Apply(d); err != nil {
			return nil, err
		}
		dir = d
	}

	entries, err := os.ReadDir(sourcePath)
	if err != nil {
		return nil, xerrors.Errorf("reading directory %s: %w", sourcePath, err)
	}
	for _, entry := range entries {
		if err := addTree(dir, engine, entry.Name(), filepath.Join(sourcePath, entry.Name()), mtime, filesDir, verbose, minify, logw); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

func addFile(parent *fwfs.Container, engine *rules.Engine, name, sourcePath string, mtime time.Time, filesDir string, verbose, minify bool, logw *report.Writer) (*fwfs.Container, error) {
	// A File's mtime is taken from its source file, not the shared
	// build-time value used for directories/mountpoints — this keeps each
	// File object's bytes unchanged across builds of unchanged inputs. The
	// Volume, the root and every Directory/MountPoint still carry the
	// build's wall-clock time, so the image as a whole differs per build.
	fileMtime := mtime
	if info, err := os.Stat(sourcePath); err == nil {
		fileMtime = info.ModTime()
	}
	f, err := fwfs.NewFile(parent, name, fileMtime)
	if err != nil {
		return nil, err
	}
	if err := engine.Apply(f); err != nil {
		return nil, err
	}

	in, err := os.Open(sourcePath)
	if err != nil {
		return nil, xerrors.Errorf("opening %s: %w", sourcePath, err)
	}
	defer in.Close()

	if err := pipeline.AddFile(f, name, in, minify); err != nil {
		return nil, err
	}

	if filesDir != "" {
		path := filepath.Join(filesDir, f.Path())
		if err := os.MkdirAll(filepath.Dir(path), os.FileMode(copyDirMode)); err != nil {
			return nil, xerrors.Errorf("creating %s: %w", filepath.Dir(path), err)
		}
		if verbose && logw != nil {
			log.Printf("writing %s", path)
		}
		data := f.FindByType(storedDataType(f))
		if dl, ok := data.(*fwfs.DataLeaf); ok {
			if err := os.WriteFile(path, dl.Bytes(), os.FileMode(copyFileMode)); err != nil {
				return nil, xerrors.Errorf("writing %s: %w", path, err)
			}
		}
	}
	return f, nil
}

// storedDataType finds which of the three data-leaf types f actually
// carries, since AppendFileData picks the smallest size class that fits.
func storedDataType(f *fwfs.Container) fwfs.ObjType {
	for _, t := range []fwfs.ObjType{fwfs.TypeData8, fwfs.TypeData16, fwfs.TypeData24} {
		if f.FindByType(t) != nil {
			return t
		}
	}
	return fwfs.TypeEnd
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
