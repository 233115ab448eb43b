package archive

import (
	"archive/zip"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/tphakala/sensorrec/internal/errors"
)

// openReader opens a session archive with the klauspost decompressor.
func openReader(path string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	r.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})
	return r, nil
}

// List returns the entry names of the archive at path in archive order.
func List(path string) ([]string, error) {
	r, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// Walk calls fn with the name and content of every entry in archive order.
// It stops at the first error fn returns.
func Walk(path string, fn func(name string, data []byte) error) error {
	r, err := openReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		data, err := readEntry(f)
		if err != nil {
			return errors.New(err).
				Component(ComponentArchive).
				Category(errors.CategoryFileIO).
				Context("entry", f.Name).
				Build()
		}
		if err := fn(f.Name, data); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
