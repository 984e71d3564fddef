package datasource

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compression returns the effective compression for name under mode.
func Compression(mode, name string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "", "auto":
		switch strings.ToLower(filepath.Ext(name)) {
		case ".gz", ".gzip":
			return "gzip", nil
		case ".zst", ".zstd":
			return "zstd", nil
		}
		return "none", nil
	case "none", "gzip", "zstd":
		return m, nil
	default:
		return "", fmt.Errorf("unknown compression %q", mode)
	}
}

// CheckEncoding reports whether label names a supported charset.
func CheckEncoding(label string) error {
	if isUTF8(label) {
		return nil
	}
	if _, err := htmlindex.Get(label); err != nil {
		return fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	return nil
}

func isUTF8(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}

// Wrap layers decoders over raw per opt. raw is closed by the returned
// reader's Close but not on error; callers own raw until Wrap succeeds.
func Wrap(raw io.ReadCloser, name string, opt Options) (io.ReadCloser, error) {
	comp, err := Compression(opt.Compression, name)
	if err != nil {
		return nil, err
	}
	if err := CheckEncoding(opt.Encoding); err != nil {
		return nil, err
	}

	s := &stack{Reader: raw}

	switch comp {
	case "gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", name, err)
		}
		s.Reader = zr
		s.closers = append(s.closers, zr)
	case "zstd":
		dec, err := zstd.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("zstd %s: %w", name, err)
		}
		zrc := dec.IOReadCloser()
		s.Reader = zrc
		s.closers = append(s.closers, zrc)
	}

	if !isUTF8(opt.Encoding) {
		enc, _ := htmlindex.Get(opt.Encoding)
		s.Reader = transform.NewReader(s.Reader, enc.NewDecoder())
	}
	if opt.NormalizeUnicode {
		s.Reader = norm.NFC.Reader(s.Reader)
	}

	s.closers = append(s.closers, raw)
	return s, nil
}
