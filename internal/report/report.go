// Package report renders the tabular build log: one row per
// file/directory object, plus a totals row. It never affects the
// generated image bytes.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
	"github.com/mattn/go-isatty"
	"golang.org/x/xerrors"

	"fsbuild/internal/fwfs"
)

const rowFormat = "%-40s %8s %8s %8s %8s %8s %5s%%  %-16s %-8s %-8s\n"

// maxInlinePathLen is the path length above which a row's path is
// written on its own line, matching the original's `len(objpath) > 40`
// wrapping rule.
const maxInlinePathLen = 40

// Writer accumulates build log rows and writes them to an underlying
// destination, which is either stdout or a file replaced atomically on
// Close.
type Writer struct {
	w       io.Writer
	pending *renameio.PendingFile
	emph    bool
}

// Open returns a Writer for path. path == "-" writes directly to
// stdout, bypassing the atomic-replace machinery, matching the
// original's behavior for a live stream destination.
func Open(path string) (*Writer, error) {
	if path == "-" {
		return &Writer{w: os.Stdout, emph: isatty.IsTerminal(os.Stdout.Fd())}, nil
	}
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return nil, xerrors.Errorf("opening log %s: %w", path, err)
	}
	return &Writer{w: pf, pending: pf}, nil
}

// Close flushes and, for a file destination, atomically publishes the
// log at its final path.
func (w *Writer) Close() error {
	if w.pending == nil {
		return nil
	}
	return w.pending.CloseAtomicallyReplace()
}

func (w *Writer) section(title string) {
	if w.emph {
		fmt.Fprintf(w.w, "\033[1m%s\033[0m\n", title)
		return
	}
	fmt.Fprintln(w.w, title)
}

// Header writes the column header and its separator row.
func (w *Writer) Header() {
	w.section("Firmware filesystem build log")
	fmt.Fprintf(w.w, rowFormat, "Filename", "NameLen", "Children", "In", "Out", "Change", "", "ACL (R,W)", "Attr", "Compress")
	fmt.Fprintf(w.w, rowFormat, "--------", "-------", "--------", "--", "---", "------", "", "---------", "----", "--------")
}

// Row writes one object's statistics.
func (w *Writer) Row(obj *fwfs.Container) {
	in := obj.OriginalDataSize()
	out := obj.DataSize()
	pc := percent(out, in)

	path := obj.Path()
	if len(path) > maxInlinePathLen {
		fmt.Fprintln(w.w, path)
		path = ""
	}

	acl := fmt.Sprintf("%s, %s", obj.ReadACE().Role, obj.WriteACE().Role)
	fmt.Fprintf(w.w, rowFormat,
		path,
		fmt.Sprintf("%d", len(obj.Name)),
		fmt.Sprintf("%d", obj.ChildCount()),
		fmt.Sprintf("%d", in),
		fmt.Sprintf("%d", out),
		fmt.Sprintf("%d", out-in),
		fmt.Sprintf("%d", pc),
		acl,
		obj.Attr().String(),
		obj.Compression().String(),
	)
}

// Totals writes the final summary row.
func (w *Writer) Totals(fileCount int, totalIn, totalOut int64) {
	pc := percent(totalOut, totalIn)
	fmt.Fprintf(w.w, rowFormat, "--------", "", "", "--", "---", "------", "", "", "", "")
	fmt.Fprintf(w.w, rowFormat,
		fmt.Sprintf("%d files", fileCount),
		"", "",
		fmt.Sprintf("%d", totalIn),
		fmt.Sprintf("%d", totalOut),
		fmt.Sprintf("%d", totalOut-totalIn),
		fmt.Sprintf("%d", pc),
		"", "", "",
	)
}

func percent(out, in int64) int64 {
	if in == 0 {
		return 0
	}
	return (100*out + in/2) / in
}
