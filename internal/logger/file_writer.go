package logger

import (
	"bufio"
	"errors"
	"os"
	"sync"
)

const fileBufferSize = 32 * 1024

// bufferedFileWriter is a mutex-guarded bufio.Writer over an append-only log file.
// Reopen supports external rotation tools that move the file and send SIGHUP.
type bufferedFileWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	closed bool
}

func newBufferedFileWriter(path string) (*bufferedFileWriter, error) {
	f, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	return &bufferedFileWriter{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, fileBufferSize),
	}, nil
}

func openLogFile(path string) (*os.File, error) {
	const filePermissions = 0o600
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
}

func (w *bufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, os.ErrClosed
	}
	return w.writer.Write(p)
}

// Flush pushes buffered bytes to the OS without fsync.
func (w *bufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Reopen flushes and reopens the file at the same path.
func (w *bufferedFileWriter) Reopen() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	flushErr := w.writer.Flush()
	closeErr := w.file.Close()

	f, err := openLogFile(w.path)
	if err != nil {
		return errors.Join(flushErr, closeErr, err)
	}
	w.file = f
	w.writer.Reset(f)
	return errors.Join(flushErr, closeErr)
}

// Close flushes, syncs and closes the file.
func (w *bufferedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.writer.Flush(), w.file.Sync(), w.file.Close())
}
