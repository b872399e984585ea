package template

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// GenomeSource supplies bases from a named reference sequence, for templates
// declared as a genome region or a single-nucleotide polymorphism rather
// than a literal sequence. Positions are 1-based, inclusive of start and
// stop.
type GenomeSource interface {
	// Bases returns the closed interval [start, stop] of the named
	// reference (1-based, inclusive).
	Bases(ref string, start, stop int) ([]byte, error)
	// Len returns the length of the named reference.
	Len(ref string) (int, error)
}

// Genome is an in-memory GenomeSource loaded from a single FASTA record or a
// headerless flat base file; the two formats are told apart by whether the
// first byte is '>'.
type Genome struct {
	name  string
	bases []byte
}

// LoadGenome reads path (plain or gzip-compressed) into memory. A FASTA
// file's defline becomes the genome's name; a headerless file is named
// after its identifier argument.
func LoadGenome(ctx context.Context, path, identifier string) (*Genome, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("template: open %s: %w", path, err)
	}
	defer func() { _ = f.Close(ctx) }()

	var r io.Reader = f.Reader(ctx)
	if len(path) >= 3 && path[len(path)-3:] == ".gz" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("template: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	br := bufio.NewReaderSize(r, 1<<20)
	first, err := br.Peek(1)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("template: read %s: %w", path, err)
	}

	g := &Genome{name: identifier}
	if len(first) > 0 && first[0] == '>' {
		defline, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
		if name := parseDefline(defline); name != "" {
			g.name = name
		}
		scanner := bufio.NewScanner(br)
		scanner.Buffer(make([]byte, 0, 1<<16), 1<<24)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) > 0 && line[0] == '>' {
				break // only the first FASTA record is read
			}
			g.bases = append(g.bases, line...)
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
	} else {
		buf, err := io.ReadAll(br)
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
		for _, b := range buf {
			if b == '\n' || b == '\r' {
				continue
			}
			g.bases = append(g.bases, b)
		}
	}
	return g, nil
}

func parseDefline(defline string) string {
	if len(defline) == 0 {
		return ""
	}
	defline = defline[1:]
	for i := 0; i < len(defline); i++ {
		if defline[i] == ' ' || defline[i] == '\n' || defline[i] == '\r' {
			return defline[:i]
		}
	}
	for len(defline) > 0 && (defline[len(defline)-1] == '\n' || defline[len(defline)-1] == '\r') {
		defline = defline[:len(defline)-1]
	}
	return defline
}

// Bases implements GenomeSource.
func (g *Genome) Bases(ref string, start, stop int) ([]byte, error) {
	if start < 1 || stop < start || stop > len(g.bases) {
		return nil, fmt.Errorf("template: %s: region [%d,%d] out of bounds (length %d)", ref, start, stop, len(g.bases))
	}
	out := make([]byte, stop-start+1)
	copy(out, g.bases[start-1:stop])
	return out, nil
}

// Len implements GenomeSource.
func (g *Genome) Len(ref string) (int, error) { return len(g.bases), nil }
