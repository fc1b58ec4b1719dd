// Package stream provides the body buffer used by messages.
// A Stream wraps an afero file handle and fixes its readable, writable and
// seekable capabilities from the open mode at construction time.
package stream

import (
	"errors"
	"io"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/spf13/afero"
	"github.com/spf13/afero/mem"
)

var (
	// ErrNotReadable is returned when reading from a stream opened without read access.
	ErrNotReadable = errors.New("stream is not readable")
	// ErrNotWritable is returned when writing to a stream opened without write access.
	ErrNotWritable = errors.New("stream is not writable")
	// ErrNotSeekable is returned when seeking on a stream that cannot seek.
	ErrNotSeekable = errors.New("stream is not seekable")
	// ErrInvalidMode is returned for open modes that are not recognized.
	ErrInvalidMode = errors.New("invalid stream mode")
	// ErrClosed is returned for any operation on a closed stream.
	ErrClosed = errors.New("stream is closed")
)

// memoryCounter names in-memory files so they are distinguishable in errors.
var memoryCounter atomic.Uint64

// resource is the subset of afero.File a Stream drives.
type resource interface {
	io.ReadWriteSeeker
	io.Closer
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
}

// Stream is a body buffer with fixed capabilities.
// A Stream is owned by a single message and is not safe for concurrent use.
type Stream struct {
	file     resource
	mode     string
	readable bool
	writable bool
	seekable bool
	append   bool
	closed   bool
}

// Memory returns an empty in-memory stream opened with mode.
func Memory(mode string) (*Stream, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	return newStream(mem.NewFileHandle(mem.CreateFile(memoryName())), mode, m), nil
}

// FromString returns an in-memory stream holding s, positioned at its start.
// The initial contents are written regardless of mode.
func FromString(s, mode string) (*Stream, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	f := mem.NewFileHandle(mem.CreateFile(memoryName()))
	if _, err := io.WriteString(f, s); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return newStream(f, mode, m), nil
}

// Open opens name on fs with the given mode.
func Open(fs afero.Fs, name, mode string) (*Stream, error) {
	m, err := parseMode(mode)
	if err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(name, m.flag, 0o644)
	if err != nil {
		return nil, err
	}
	return newStream(f, mode, m), nil
}

// FromReader returns a read-only, non-seekable stream over r. It suits
// bodies that should be consumed once without buffering. If r is an
// io.Closer, Close closes it.
func FromReader(r io.Reader) *Stream {
	return &Stream{file: readerResource{r}, mode: "r", readable: true}
}

func newStream(f resource, mode string, m openMode) *Stream {
	return &Stream{
		file:     f,
		mode:     mode,
		readable: m.readable,
		writable: m.writable,
		seekable: true,
		append:   m.append,
	}
}

// Mode returns the mode the stream was opened with.
func (s *Stream) Mode() string { return s.mode }

// IsReadable reports whether the stream was opened with read access.
func (s *Stream) IsReadable() bool { return s.readable && !s.closed }

// IsWritable reports whether the stream was opened with write access.
func (s *Stream) IsWritable() bool { return s.writable && !s.closed }

// IsSeekable reports whether the stream supports seeking.
func (s *Stream) IsSeekable() bool { return s.seekable && !s.closed }

// Write appends p at the current position, or at the end in append modes.
func (s *Stream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.writable {
		return 0, ErrNotWritable
	}
	if s.append {
		if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
			return 0, err
		}
	}
	return s.file.Write(p)
}

// WriteString writes s to the stream.
func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.readable {
		return 0, ErrNotReadable
	}
	return s.file.Read(p)
}

// Contents returns everything from the current position to the end. It
// does not rewind first.
func (s *Stream) Contents() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if !s.readable {
		return "", ErrNotReadable
	}
	b, err := io.ReadAll(s.file)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Seek implements io.Seeker.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.seekable {
		return 0, ErrNotSeekable
	}
	return s.file.Seek(offset, whence)
}

// Rewind moves the position to the start of the stream.
func (s *Stream) Rewind() error {
	_, err := s.Seek(0, io.SeekStart)
	return err
}

// Tell returns the current position.
func (s *Stream) Tell() (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// Size returns the total length of the stream. The size of a non-seekable
// stream is unknown and Size fails with ErrNotSeekable.
func (s *Stream) Size() (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if !s.seekable {
		return 0, ErrNotSeekable
	}
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Wipe truncates the stream to zero length and moves to its start.
func (s *Stream) Wipe() error {
	if s.closed {
		return ErrClosed
	}
	if !s.writable {
		return ErrNotWritable
	}
	if !s.seekable {
		return ErrNotSeekable
	}
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	_, err := s.file.Seek(0, io.SeekStart)
	return err
}

// Close releases the underlying resource. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

type openMode struct {
	flag     int
	readable bool
	writable bool
	append   bool
}

// parseMode interprets fopen-style modes: one of r w a x c, optionally
// followed by "+" and the ignored "b" or "t" letters.
func parseMode(mode string) (openMode, error) {
	if mode == "" {
		return openMode{}, ErrInvalidMode
	}
	plus := false
	for _, c := range mode[1:] {
		switch c {
		case '+':
			if plus {
				return openMode{}, ErrInvalidMode
			}
			plus = true
		case 'b', 't':
		default:
			return openMode{}, ErrInvalidMode
		}
	}

	var m openMode
	switch mode[0] {
	case 'r':
		m.readable = true
		m.writable = plus
		m.flag = 0
	case 'w':
		m.writable = true
		m.readable = plus
		m.flag = os.O_CREATE | os.O_TRUNC
	case 'a':
		m.writable = true
		m.readable = plus
		m.append = true
		m.flag = os.O_CREATE
	case 'x':
		m.writable = true
		m.readable = plus
		m.flag = os.O_CREATE | os.O_EXCL
	case 'c':
		m.writable = true
		m.readable = plus
		m.flag = os.O_CREATE
	default:
		return openMode{}, ErrInvalidMode
	}

	switch {
	case m.readable && m.writable:
		m.flag |= os.O_RDWR
	case m.writable:
		m.flag |= os.O_WRONLY
	default:
		m.flag |= os.O_RDONLY
	}
	return m, nil
}

func memoryName() string {
	return "memory-" + strconv.FormatUint(memoryCounter.Add(1), 10)
}

// readerResource adapts a plain reader to resource.
type readerResource struct {
	r io.Reader
}

func (rr readerResource) Read(p []byte) (int, error) { return rr.r.Read(p) }

func (rr readerResource) Write([]byte) (int, error) { return 0, ErrNotWritable }

func (rr readerResource) Seek(int64, int) (int64, error) { return 0, ErrNotSeekable }

func (rr readerResource) Truncate(int64) error { return ErrNotWritable }

func (rr readerResource) Stat() (os.FileInfo, error) { return nil, ErrNotSeekable }

func (rr readerResource) Close() error {
	if c, ok := rr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
