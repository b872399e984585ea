package scan

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvarq/kvarq-go/kerrors"
	"github.com/kvarq/kvarq-go/match"
	"github.com/kvarq/kvarq-go/template"
)

func writeFastq(t *testing.T, path string, reads [][2]string) {
	t.Helper()
	var b strings.Builder
	for i, r := range reads {
		b.WriteString("@r")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("\n")
		b.WriteString(r[0])
		b.WriteString("\n+\n")
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func staticTemplate(t *testing.T, id, text string) *template.Template {
	t.Helper()
	spec, err := template.ParseStaticSeq(id, text)
	require.NoError(t, err)
	tmpl, err := template.Build(spec, nil, 0)
	require.NoError(t, err)
	return tmpl
}

func TestScanExactMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	writeFastq(t, path, [][2]string{{"AAAAAAAAAA", "##########"}})

	tmpl := staticTemplate(t, "t", "AAAA")
	cfg := EngineConfig{NThreads: 1, MaxErrors: 0, MinReadLength: 4, MinOverlap: 4, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})

	result, err := engine.Scan(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1)
	assert.False(t, result.Cancelled)
}

// A malformed record halts the scan with a format error.
func TestScanRejectsMalformedRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	require.NoError(t, os.WriteFile(path, []byte("@r0\nAAAA\n-\nIIII\n"), 0o600))

	tmpl := staticTemplate(t, "t", "AAAA")
	cfg := EngineConfig{NThreads: 1, MaxErrors: 0, MinReadLength: 4, MinOverlap: 4, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})

	_, err := engine.Scan(context.Background(), path)
	assert.Error(t, err)
}

func randomBases(r *rand.Rand, n int) []byte {
	const alphabet = "ACGT"
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[r.Intn(4)]
	}
	return out
}

func buildSyntheticReads(seed int64, nReads, readLen, templateLen int) (templateSeq string, reads [][2]string) {
	r := rand.New(rand.NewSource(seed))
	tmplBytes := randomBases(r, templateLen)
	reads = make([][2]string, nReads)
	for i := 0; i < nReads; i++ {
		bases := randomBases(r, readLen)
		offset := r.Intn(readLen - templateLen + 1)
		copy(bases[offset:offset+templateLen], tmplBytes)
		qual := strings.Repeat("I", readLen)
		reads[i] = [2]string{string(bases), qual}
	}
	return string(tmplBytes), reads
}

// The multiset of hits is invariant to worker count.
func TestScanMultiThreadInvariance(t *testing.T) {
	templateSeq, reads := buildSyntheticReads(42, 1000, 100, 51)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	writeFastq(t, path, reads)

	tmpl := staticTemplate(t, "t", templateSeq)
	cfg := EngineConfig{MaxErrors: 2, MinReadLength: 25, MinOverlap: 25, Amin: '!'}

	var results [][]match.Hit
	for _, n := range []int{1, 2, 8} {
		cfg.NThreads = n
		engine := NewEngine(cfg, []*template.Template{tmpl})
		result, err := engine.Scan(context.Background(), path)
		require.NoError(t, err)
		results = append(results, result.Hits)
	}
	assert.Greater(t, len(results[0]), 0)
	assert.True(t, EqualMultiset(results[0], results[1]))
	assert.True(t, EqualMultiset(results[0], results[2]))
}

// alignmentKey is a match.Hit minus its FileOffset, which legitimately
// differs when the same records sit at different byte positions in
// differently laid-out files.
type alignmentKey struct {
	templateNum int
	seqPos      int
	length      int
	readLength  int
}

func alignmentMultiset(hits []match.Hit) map[alignmentKey]int {
	out := make(map[alignmentKey]int, len(hits))
	for _, h := range hits {
		out[alignmentKey{h.TemplateNum, h.SeqPos, h.Length, h.ReadLength}]++
	}
	return out
}

// Scanning one file is equivalent to scanning its records split across a
// <stem>_1/<stem>_2 pair: the same alignments with the same multiplicities,
// ignoring only the byte offsets the records moved to.
func TestScanPairedFileEquivalence(t *testing.T) {
	templateSeq, reads := buildSyntheticReads(7, 200, 100, 51)

	dir := t.TempDir()
	singlePath := filepath.Join(dir, "single.fastq")
	writeFastq(t, singlePath, reads)

	pairedPath1 := filepath.Join(dir, "paired_1.fastq")
	pairedPath2 := filepath.Join(dir, "paired_2.fastq")
	writeFastq(t, pairedPath1, reads[:100])
	writeFastq(t, pairedPath2, reads[100:])

	tmpl := staticTemplate(t, "t", templateSeq)
	cfg := EngineConfig{NThreads: 4, MaxErrors: 2, MinReadLength: 25, MinOverlap: 25, Amin: '!'}

	singleEngine := NewEngine(cfg, []*template.Template{tmpl})
	singleResult, err := singleEngine.Scan(context.Background(), singlePath)
	require.NoError(t, err)

	pairedEngine := NewEngine(cfg, []*template.Template{tmpl})
	pairedResult, err := pairedEngine.Scan(context.Background(), pairedPath1)
	require.NoError(t, err)

	require.Greater(t, len(singleResult.Hits), 0)
	assert.Equal(t, alignmentMultiset(singleResult.Hits), alignmentMultiset(pairedResult.Hits))
}

// A gzip input runs through the single sequential reader and finds the
// same hits as the identical uncompressed file.
func TestScanGzipInput(t *testing.T) {
	templateSeq, reads := buildSyntheticReads(11, 100, 100, 51)
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "s.fastq")
	writeFastq(t, plainPath, reads)

	gzPath := filepath.Join(dir, "s2.fastq.gz")
	plain, err := os.ReadFile(plainPath)
	require.NoError(t, err)
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	tmpl := staticTemplate(t, "t", templateSeq)
	cfg := EngineConfig{NThreads: 4, MaxErrors: 2, MinReadLength: 25, MinOverlap: 25, Amin: '!'}

	plainEngine := NewEngine(cfg, []*template.Template{tmpl})
	plainResult, err := plainEngine.Scan(context.Background(), plainPath)
	require.NoError(t, err)
	require.Greater(t, len(plainResult.Hits), 0)

	gzEngine := NewEngine(cfg, []*template.Template{tmpl})
	gzResult, err := gzEngine.Scan(context.Background(), gzPath)
	require.NoError(t, err)

	// Record offsets in the decompressed stream equal the plain file's, so
	// the hit multisets match exactly.
	assert.True(t, EqualMultiset(plainResult.Hits, gzResult.Hits))
	assert.Equal(t, plainResult.Stats.RecordsParsed(), gzResult.Stats.RecordsParsed())
}

func TestScanStats(t *testing.T) {
	templateSeq, reads := buildSyntheticReads(5, 200, 100, 51)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	writeFastq(t, path, reads)

	tmpl := staticTemplate(t, "t", templateSeq)
	cfg := EngineConfig{NThreads: 4, MaxErrors: 2, MinReadLength: 25, MinOverlap: 25, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})

	assert.Nil(t, engine.Stats())
	result, err := engine.Scan(context.Background(), path)
	require.NoError(t, err)
	stats := engine.Stats()
	require.NotNil(t, stats)
	assert.Same(t, result.Stats, stats)

	assert.Equal(t, int64(200), stats.RecordsParsed())
	assert.Equal(t, map[int]int64{100: 200}, stats.ReadLengthHistogram())
	assert.InDelta(t, 1.0, stats.Progress(), 1e-9)

	var hitTotal int64
	for _, n := range stats.TemplateHits() {
		hitTotal += n
	}
	assert.Equal(t, int64(len(result.Hits)), hitTotal)

	assert.Equal(t, int32(0), stats.Sigints())
	engine.Interrupt()
	assert.Equal(t, int32(1), stats.Sigints())
}

func TestScanRejectsInconsistentConfig(t *testing.T) {
	tmpl := staticTemplate(t, "t", "AAAA")
	cfg := EngineConfig{NThreads: 1, MinReadLength: 10, MinOverlap: 25, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})
	_, err := engine.Scan(context.Background(), "nonexistent.fastq")
	assert.Error(t, err)
}

// An expired context tears the scan down with a Cancelled error, unlike
// Stop, which returns a partial result.
func TestScanContextCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	writeFastq(t, path, [][2]string{{"AAAAAAAAAA", "##########"}})

	tmpl := staticTemplate(t, "t", "AAAA")
	cfg := EngineConfig{NThreads: 1, MaxErrors: 0, MinReadLength: 4, MinOverlap: 4, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Scan(ctx, path)
	require.Error(t, err)
	assert.True(t, kerrors.IsCancelled(err))
}

func TestEngineStopCancelsScan(t *testing.T) {
	templateSeq, reads := buildSyntheticReads(3, 500, 100, 51)
	dir := t.TempDir()
	path := filepath.Join(dir, "s.fastq")
	writeFastq(t, path, reads)

	tmpl := staticTemplate(t, "t", templateSeq)
	cfg := EngineConfig{NThreads: 1, MaxErrors: 2, MinReadLength: 25, MinOverlap: 25, Amin: '!'}
	engine := NewEngine(cfg, []*template.Template{tmpl})
	engine.Stop()

	result, err := engine.Scan(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
}
