// internal/session/reader.go
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
)

// Source is a user-selected file.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Reader reads a selected transcript file in full.
type Reader interface {
	Read(ctx context.Context, src Source) ([]byte, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, src Source) ([]byte, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context, src Source) ([]byte, error) {
	return f(ctx, src)
}

// TextReader reads the whole source into memory. MaxSize 0 means no limit.
type TextReader struct {
	MaxSize int64
}

// Read implements Reader.
func (r TextReader) Read(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name(), err)
	}
	defer rc.Close()

	var in io.Reader = rc
	if r.MaxSize > 0 {
		in = io.LimitReader(rc, r.MaxSize+1)
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	if r.MaxSize > 0 && int64(len(data)) > r.MaxSize {
		return nil, apperrors.NewTooLargeError(fmt.Sprintf("transcript file exceeds %d bytes", r.MaxSize), nil)
	}
	return data, nil
}

// FileSource is a Source backed by a path on disk.
type FileSource string

// Name returns the base name of the path.
func (f FileSource) Name() string { return filepath.Base(string(f)) }

// Open opens the file.
func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }

// BytesSource is an in-memory Source.
type BytesSource struct {
	Filename string
	Data     []byte
}

// Name returns the file name.
func (b BytesSource) Name() string { return b.Filename }

// Open returns a reader over the data.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}
