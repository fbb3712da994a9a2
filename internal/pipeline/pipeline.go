// Package pipeline implements the per-file content transform: minify by
// extension, then conditionally gzip, before the bytes are stored as a
// file's data leaf.
package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/klauspost/pgzip"
	"github.com/tdewolff/minify/v2"
	mjs "github.com/tdewolff/minify/v2/js"
	"golang.org/x/xerrors"

	"fsbuild/internal/fwfs"
)

var jsMinifier = minify.New()

func init() {
	jsMinifier.AddFunc("text/javascript", mjs.Minify)
}

// minifyByExtension rewrites raw per name's extension: .json/.jsonc are
// re-encoded with the minimal separator form, .js is run through a JS
// minifier. Every other extension passes through unchanged.
func minifyByExtension(name string, raw []byte) ([]byte, error) {
	switch filepath.Ext(name) {
	case ".json", ".jsonc":
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, xerrors.Errorf("minifying %s: %w", name, err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, xerrors.Errorf("minifying %s: %w", name, err)
		}
		return out, nil
	case ".js":
		var buf bytes.Buffer
		if err := jsMinifier.Minify("text/javascript", &buf, bytes.NewReader(raw)); err != nil {
			return nil, xerrors.Errorf("minifying %s: %w", name, err)
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}

// gzipCompress compresses data with the default compression level,
// matching the original's one-shot util.compress helper.
func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := pgzip.NewWriterLevel(&buf, pgzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AddFile reads all of raw, runs it through the content pipeline, and
// stores the result as f's data leaf, keeping f's MD5 and (if present)
// Compression leaf in sync. f must already carry whatever Compression
// leaf the rule engine appended (AddFile decides only whether to keep
// or discard it, never whether compression was requested). minify
// disables the extension-based minify step when false, matching the
// `-n` command-line flag.
func AddFile(f *fwfs.Container, name string, raw io.Reader, minify bool) error {
	din, err := io.ReadAll(raw)
	if err != nil {
		return xerrors.Errorf("reading %s: %w", name, err)
	}

	dout := din
	if minify {
		dout, err = minifyByExtension(name, din)
		if err != nil {
			return err
		}
	}

	if cmp := f.Compression(); cmp.CompType == fwfs.CompressionGzip {
		dcmp, err := gzipCompress(dout)
		if err != nil {
			return xerrors.Errorf("compressing %s: %w", name, err)
		}
		if len(dcmp) < len(dout) {
			cmp.OriginalSize = uint32(len(dout))
			dout = dcmp
		} else {
			// Compressed form isn't smaller: store uncompressed and
			// drop the Compression leaf.
			f.AppendCompression(fwfs.CompressionNone)
		}
	}

	return fwfs.AppendFileData(f, dout)
}
