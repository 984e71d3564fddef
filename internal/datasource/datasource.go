// Package datasource opens harvest sources. A location is either a local path
// or an http(s) URL; Open resolves it and layers decompression, charset
// decoding and Unicode normalisation on top of the raw bytes so that the CSV
// reader always sees UTF-8 text.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"csvharvest/internal/datasource/file"
	"csvharvest/internal/datasource/httpds"
)

// Source yields the raw bytes of one input.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Named is implemented by sources that know their file name.
type Named interface {
	Name() string
}

// Options controls how a source's bytes are decoded.
type Options struct {
	// Compression is "auto" (by file extension), "none", "gzip" or "zstd".
	Compression string

	// Encoding is a WHATWG charset label such as "windows-1250" or
	// "iso-8859-2". Empty or any UTF-8 label means no transcoding.
	Encoding string

	// NormalizeUnicode rewrites text to NFC.
	NormalizeUnicode bool

	// HTTP configures remote sources.
	HTTP httpds.Config
}

// New returns the Source for location: an httpds.Remote for http:// and
// https:// URLs, a file.Local otherwise.
func New(location string, opt Options) Source {
	if isURL(location) {
		return httpds.NewRemote(location, opt.HTTP)
	}
	return file.NewLocal(location)
}

// Name returns the file name of src when it implements Named.
func Name(src Source) string {
	if n, ok := src.(Named); ok {
		return n.Name()
	}
	return ""
}

// Open opens src and wraps it according to opt. name is used to detect
// compression when opt.Compression is "auto". Closing the returned reader
// closes every layer, the underlying source last.
func Open(ctx context.Context, src Source, name string, opt Options) (io.ReadCloser, error) {
	raw, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := Wrap(raw, name, opt)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return rc, nil
}

func isURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// stack is a ReadCloser over a chain of decoding layers.
type stack struct {
	io.Reader
	closers []io.Closer // innermost last
}

func (s *stack) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("close source: %w", first)
	}
	return nil
}
