package fastq

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kvarq/kvarq-go/kerrors"
)

// resyncWindow is how far back of pos we start scanning for a line
// boundary. It only needs to cover a handful of FASTQ lines.
const resyncWindow = 8192

type resyncLine struct {
	offset int64
	text   []byte
}

// SeekAndResync repositions the reader so that the next call to ReadRecord
// returns the first record whose identifier line starts at or after pos. It
// walks forward from the first line boundary at or after pos, checking at
// most four line starts for one that begins a well-formed record
// (identifier, bases, separator), which disambiguates a literal '+'
// appearing inside a quality string from a genuine separator line. Not
// supported for gzip streams; use CanSeek to check.
func (r *Reader) SeekAndResync(pos int64) error {
	if !r.CanSeek() {
		return fmt.Errorf("fastq: %s: SeekAndResync not supported for gzip input", r.path)
	}
	start := pos - resyncWindow
	if start < 0 {
		start = 0
	}
	if _, err := r.raw.Seek(start, io.SeekStart); err != nil {
		return kerrors.Wrap(err, "fastq: seek")
	}
	br := bufio.NewReaderSize(r.raw, 1<<16)

	var lines []resyncLine
	offset := start
	first := -1 // index of the first line starting at or after pos
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			break
		}
		consumed := int64(len(raw))
		text := raw
		if err == nil {
			text = text[:len(text)-1]
		}
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text = text[:n-1]
		}
		if first < 0 && offset >= pos {
			first = len(lines)
		}
		lines = append(lines, resyncLine{offset: offset, text: append([]byte(nil), text...)})
		offset += consumed
		if first >= 0 && len(lines)-first >= 6 {
			break
		}
		if err != nil {
			break
		}
	}
	if first < 0 {
		return fmt.Errorf("fastq: %s: could not resync at offset %d", r.path, pos)
	}

	// Candidates start at the first line boundary at or after pos: a record
	// whose identifier line begins before pos belongs to the preceding byte
	// range, even when pos falls inside that very line.
	limit := first + 4
	for k := first; k < limit && k+2 < len(lines); k++ {
		id, bases, sep := lines[k].text, lines[k+1].text, lines[k+2].text
		if len(id) > 0 && id[0] == '@' && validateBases(bases) && isSeparatorLine(sep, id) {
			target := lines[k].offset
			if _, err := r.raw.Seek(target, io.SeekStart); err != nil {
				return kerrors.Wrap(err, "fastq: seek")
			}
			r.br = bufio.NewReaderSize(r.stream, 1<<20)
			r.pos = target
			return nil
		}
	}
	return fmt.Errorf("fastq: %s: no record boundary found at or after offset %d", r.path, pos)
}
