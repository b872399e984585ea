package fastq

import (
	"context"
	"strings"

	"github.com/grailbio/base/file"
)

// DiscoverPair implements the paired-input naming convention: if path names
// "<stem>_1.fastq[.gz]" and a sibling "<stem>_2.fastq[.gz]" exists,
// DiscoverPair returns that sibling path and ok=true.
func DiscoverPair(ctx context.Context, path string) (sibling string, ok bool) {
	const (
		tagOne = "_1"
		tagTwo = "_2"
		ext    = ".fastq"
	)
	rest := path
	gzSuffix := ""
	if strings.HasSuffix(rest, ".gz") {
		gzSuffix = ".gz"
		rest = rest[:len(rest)-len(".gz")]
	}
	if !strings.HasSuffix(rest, ext) {
		return "", false
	}
	stem := rest[:len(rest)-len(ext)]
	if !strings.HasSuffix(stem, tagOne) {
		return "", false
	}
	sibling = stem[:len(stem)-len(tagOne)] + tagTwo + ext + gzSuffix
	f, err := file.Open(ctx, sibling)
	if err != nil {
		return "", false
	}
	_, statErr := f.Stat(ctx)
	_ = f.Close(ctx)
	if statErr != nil {
		return "", false
	}
	return sibling, true
}
