package fastq

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/kvarq/kvarq-go/kerrors"
)

// seekReader is the subset of github.com/grailbio/base/file's reader
// interface this package depends on: Seek is called directly on the value
// returned by file.File.Reader(ctx) to support SeekAndResync.
type seekReader interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Reader is a restartable reader over a FASTQ or FASTQ.gz stream. It is not
// safe for concurrent use; the scan driver gives each worker its own Reader
// over its own file handle.
type Reader struct {
	ctx    context.Context
	path   string
	f      file.File
	gzip   bool
	raw    seekReader   // the underlying file reader, beneath any gzip wrapping
	stream io.Reader    // what we actually read lines from (raw, or a gzip.Reader over raw)
	gz     *gzip.Reader // non-nil when reading a .gz stream
	br     *bufio.Reader
	pos    int64 // absolute byte offset of br's next unread byte in the underlying (possibly compressed) stream for plain files; for gzip files, offset into the decompressed stream
	closed bool
}

// IsGzip reports whether path names a gzip-compressed FASTQ file, judged
// only by a ".gz" suffix (so ".fastq.gz" and any other ".gz" name qualify).
func IsGzip(path string) bool {
	n := len(path)
	return n >= 3 && path[n-3:] == ".gz"
}

// NewReader opens path (plain or gzip-compressed FASTQ) for sequential
// reading starting at byte 0.
func NewReader(ctx context.Context, path string) (*Reader, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, &kerrors.IoError{Op: "fastq: open " + path, Err: err}
	}
	r := &Reader{ctx: ctx, path: path, f: f, gzip: IsGzip(path)}
	raw, ok := f.Reader(ctx).(seekReader)
	if !ok {
		_ = f.Close(ctx)
		return nil, fmt.Errorf("fastq: %s: underlying file reader does not support seeking", path)
	}
	r.raw = raw
	if r.gzip {
		gz, err := gzip.NewReader(raw)
		if err != nil {
			_ = f.Close(ctx)
			return nil, kerrors.Wrap(err, "fastq: gzip "+path)
		}
		r.gz = gz
		r.stream = gz
	} else {
		r.stream = raw
	}
	r.br = bufio.NewReaderSize(r.stream, 1<<20)
	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if e := r.f.Close(r.ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// CanSeek reports whether SeekAndResync is supported. Gzip inputs are read
// sequentially only.
func (r *Reader) CanSeek() bool { return !r.gzip }

// Pos returns the stream offset of the next unread byte: for plain files,
// the absolute file offset; for gzip files, the offset into the
// decompressed stream.
func (r *Reader) Pos() int64 { return r.pos }

// readLine reads one line (without its terminator), returning the number of
// raw bytes consumed from the stream including the terminator. A trailing
// '\r' (Windows line endings) is stripped from the returned line.
func (r *Reader) readLine() (line []byte, consumed int, err error) {
	raw, err := r.br.ReadBytes('\n')
	if err != nil && len(raw) == 0 {
		return nil, 0, err
	}
	consumed = len(raw)
	if err == io.EOF {
		// Last line of the file with no trailing newline: still a line.
		err = nil
	} else if err != nil {
		return nil, consumed, err
	} else {
		raw = raw[:len(raw)-1] // drop '\n'
	}
	if n := len(raw); n > 0 && raw[n-1] == '\r' {
		raw = raw[:n-1]
	}
	return raw, consumed, nil
}

// ReadRecord returns the next record in the stream, or io.EOF when the
// stream is exhausted. Malformed records surface as *kerrors.MalformedRecord
// and a premature EOF mid-record as *kerrors.Truncated.
func (r *Reader) ReadRecord() (*Record, error) {
	startOffset := r.pos
	idLine, n, err := r.readLine()
	r.pos += int64(n)
	if err != nil {
		return nil, err
	}
	if len(idLine) == 0 {
		// A blank line at top-of-stream position means no more records.
		return nil, io.EOF
	}
	if idLine[0] != '@' {
		return nil, &kerrors.MalformedRecord{Offset: startOffset, Reason: "identifier line must start with '@'"}
	}

	basesLine, n, err := r.readLine()
	r.pos += int64(n)
	if err != nil {
		return nil, midRecordError(err, startOffset)
	}
	if !validateBases(basesLine) {
		return nil, &kerrors.MalformedRecord{Offset: startOffset, Reason: "base line must contain only A, C, G, T, N"}
	}

	sepLine, n, err := r.readLine()
	r.pos += int64(n)
	if err != nil {
		return nil, midRecordError(err, startOffset)
	}
	if !isSeparatorLine(sepLine, idLine) {
		return nil, &kerrors.MalformedRecord{Offset: startOffset, Reason: "separator line must be '+' or '+<identifier>'"}
	}

	qualLine, n, err := r.readLine()
	r.pos += int64(n)
	if err != nil {
		return nil, midRecordError(err, startOffset)
	}
	qualLine = trimSentinel(qualLine, len(basesLine))
	if len(qualLine) != len(basesLine) {
		return nil, &kerrors.MalformedRecord{
			Offset: startOffset,
			Reason: fmt.Sprintf("quality length %d does not match base length %d", len(qualLine), len(basesLine)),
		}
	}

	rec := &Record{
		ID:     string(idLine),
		Bases:  append([]byte(nil), basesLine...),
		Qual:   append([]byte(nil), qualLine...),
		Offset: startOffset,
	}
	return rec, nil
}

// midRecordError classifies a read failure inside a record: EOF there means
// the record is truncated; anything else is an OS-level failure.
func midRecordError(err error, startOffset int64) error {
	if err == io.EOF {
		return &kerrors.Truncated{Offset: startOffset}
	}
	return &kerrors.IoError{Op: "fastq: read", Err: err}
}

// isSeparatorLine reports whether sep is a valid third FASTQ line for the
// record whose identifier is id: either a bare "+", or "+" followed by id's
// text sans its leading '@'.
func isSeparatorLine(sep, id []byte) bool {
	if len(sep) == 0 || sep[0] != '+' {
		return false
	}
	if len(sep) == 1 {
		return true
	}
	return string(sep[1:]) == string(id[1:])
}

// trimSentinel drops a trailing literal '!' byte from qual when qual is
// exactly one byte longer than the base line it accompanies.
func trimSentinel(qual []byte, baseLen int) []byte {
	if len(qual) == baseLen+1 && qual[len(qual)-1] == '!' {
		return qual[:len(qual)-1]
	}
	return qual
}
