// Package archive packages the chunk files of a finished session into a
// single zip container and cleans up the session directory.
package archive

import (
	"archive/zip"
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/tphakala/sensorrec/internal/chunkfile"
	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/fsutil"
	"github.com/tphakala/sensorrec/internal/logger"
	"github.com/tphakala/sensorrec/internal/observability/metrics"
)

// ComponentArchive identifies errors raised by the packager.
const ComponentArchive = "archive"

// DefaultFileMode is the permission of written archives.
const DefaultFileMode os.FileMode = 0o644

// ErrArchiveFailed is wrapped when the archive container cannot be produced.
var ErrArchiveFailed = errors.Newf("archive could not be created").
	Component(ComponentArchive).
	Category(errors.CategoryArchive).
	Build()

// FileName returns the archive name for a session.
func FileName(sessionID string) string {
	return "recording_" + sessionID + ".zip"
}

// ChunkFile is a chunk file found in a session directory.
type ChunkFile struct {
	Name   string
	Path   string
	Stream string
	Seq    uint64
}

// Result describes a packaged session.
type Result struct {
	Path string
	// Added lists archived entry names in archive order.
	Added []string
	// Skipped lists chunk files that could not be read.
	Skipped []string
	// DirRemoved reports whether the session directory was deleted.
	DirRemoved bool
}

// Options configures a Packager.
type Options struct {
	ArchiveDir string
	// CompressionLevel is a flate level from flate.HuffmanOnly to
	// flate.BestCompression.
	CompressionLevel int
	Logger           logger.Logger
	Metrics          metrics.ArchiveRecorder
}

// Packager writes session archives.
type Packager struct {
	dir     string
	level   int
	log     logger.Logger
	metrics metrics.ArchiveRecorder
}

// NewPackager validates opts and returns a Packager.
func NewPackager(opts Options) (*Packager, error) {
	if opts.ArchiveDir == "" {
		return nil, errors.Newf("archive directory is required").
			Component(ComponentArchive).
			Category(errors.CategoryConfiguration).
			Build()
	}
	level := opts.CompressionLevel
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, errors.Newf("compression level %d out of range", level).
			Component(ComponentArchive).
			Category(errors.CategoryConfiguration).
			Build()
	}

	p := &Packager{
		dir:     opts.ArchiveDir,
		level:   level,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if p.log == nil {
		p.log = logger.Global().Module("archive")
	}
	if p.metrics == nil {
		p.metrics = metrics.NoopRecorder{}
	}
	return p, nil
}

// Collect returns the chunk files in dir ordered by stream name, then by
// sequence. Other files are ignored.
func Collect(dir string) ([]ChunkFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.FileError(err, dir, 0)
	}

	var files []ChunkFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stream, seq, ok := chunkfile.ParseFileName(e.Name())
		if !ok {
			continue
		}
		files = append(files, ChunkFile{
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
			Stream: stream,
			Seq:    seq,
		})
	}
	slices.SortFunc(files, func(a, b ChunkFile) int {
		return cmp.Or(cmp.Compare(a.Stream, b.Stream), cmp.Compare(a.Seq, b.Seq))
	})
	return files, nil
}

// Package archives the chunk files of sessionDir into
// <archive dir>/recording_<sessionID>.zip. Files that cannot be read are
// skipped and left in place; an archive is still produced. On success the
// archived files are removed, then the session directory if it is empty.
func (p *Packager) Package(ctx context.Context, sessionDir, sessionID string) (*Result, error) {
	start := time.Now()
	path := filepath.Join(p.dir, FileName(sessionID))

	files, err := Collect(sessionDir)
	if err != nil {
		return nil, p.failure(err, path)
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil { //nolint:gosec // G301: archives are shared with the operator
		return nil, p.failure(err, path)
	}

	res := &Result{Path: path}
	err = fsutil.AtomicWriteFile(path, fsutil.TempPattern(FileName(sessionID)), DefaultFileMode, func(f *os.File) error {
		return p.writeZip(ctx, f, files, res)
	})
	if err != nil {
		return nil, p.failure(err, path)
	}
	p.metrics.RecordArchiveDuration(time.Since(start).Seconds())

	p.cleanup(sessionDir, files, res)

	p.log.Info("session archived",
		logger.String("archive", path),
		logger.Int("files", len(res.Added)),
		logger.Int("skipped", len(res.Skipped)),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (p *Packager) writeZip(ctx context.Context, out io.Writer, files []ChunkFile, res *Result) error {
	zw := zip.NewWriter(out)
	level := p.level
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	for i := range files {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}

		cf := &files[i]
		data, info, err := readChunk(cf.Path)
		if err != nil {
			p.log.Warn("skipping unreadable chunk file",
				logger.String("file", cf.Name),
				logger.Error(err))
			res.Skipped = append(res.Skipped, cf.Name)
			p.metrics.RecordArchiveFile(metrics.StatusSkipped)
			continue
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = cf.Name
		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		res.Added = append(res.Added, cf.Name)
		p.metrics.RecordArchiveFile(metrics.StatusAdded)
	}
	return zw.Close()
}

func readChunk(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the session directory listing
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

// cleanup removes archived files and then the session directory if empty.
func (p *Packager) cleanup(sessionDir string, files []ChunkFile, res *Result) {
	added := make(map[string]struct{}, len(res.Added))
	for _, name := range res.Added {
		added[name] = struct{}{}
	}
	for i := range files {
		if _, ok := added[files[i].Name]; !ok {
			continue
		}
		if err := os.Remove(files[i].Path); err != nil {
			p.log.Warn("failed to remove archived chunk file",
				logger.String("file", files[i].Name),
				logger.Error(err))
		}
	}

	left, err := os.ReadDir(sessionDir)
	if err != nil {
		p.log.Warn("failed to list session directory", logger.Error(err))
		return
	}
	if len(left) > 0 {
		p.log.Warn("session directory kept, it still holds files",
			logger.String("dir", sessionDir),
			logger.Int("files", len(left)))
		return
	}
	if err := os.Remove(sessionDir); err != nil {
		p.log.Warn("failed to remove session directory", logger.Error(err))
		return
	}
	res.DirRemoved = true
}

func (p *Packager) failure(err error, path string) error {
	return errors.New(fmt.Errorf("%w: %w", ErrArchiveFailed, err)).
		Component(ComponentArchive).
		Category(errors.CategoryArchive).
		Priority(errors.PriorityHigh).
		FileContext(path, 0).
		Build()
}
