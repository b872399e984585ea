package fastq

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvarq/kvarq-go/kerrors"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestReadRecordBasic(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nACGTN\n+\nIIIII\n@r2\nTTTTT\n+r2\nHHHHH\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	rec1, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "@r1", rec1.ID)
	assert.Equal(t, "ACGTN", string(rec1.Bases))
	assert.Equal(t, "IIIII", string(rec1.Qual))
	assert.Equal(t, int64(0), rec1.Offset)

	rec2, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "@r2", rec2.ID)
	assert.Equal(t, "TTTTT", string(rec2.Bases))

	_, err = r.ReadRecord()
	assert.Equal(t, io.EOF, err)
}

func TestReadRecordEOF(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nACGT\n+\nIIII\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord()
	require.NoError(t, err)
	_, err = r.ReadRecord()
	assert.Equal(t, io.EOF, err)
}

// A record whose separator line is not '+' is rejected.
func TestReadRecordRejectsBadSeparator(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nACGT\n-\nIIII\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord()
	var malformed *kerrors.MalformedRecord
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, int64(0), malformed.Offset)
}

func TestReadRecordRejectsBadIdentifier(t *testing.T) {
	path := writeTemp(t, "r.fastq", "r1\nACGT\n+\nIIII\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord()
	var malformed *kerrors.MalformedRecord
	require.ErrorAs(t, err, &malformed)
}

func TestReadRecordRejectsInvalidBase(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nACGX\n+\nIIII\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord()
	var malformed *kerrors.MalformedRecord
	require.ErrorAs(t, err, &malformed)
}

func TestReadRecordTruncated(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nACGT\n+\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadRecord()
	var truncated *kerrors.Truncated
	require.ErrorAs(t, err, &truncated)
}

func TestReadRecordTrimsSentinelQuality(t *testing.T) {
	// Quality one byte longer than bases, with a trailing literal '!'.
	path := writeTemp(t, "r.fastq", "@r1\nACGT\n+\nIIII!\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "IIII", string(rec.Qual))
}

func TestReadRecordWindowsLineEndings(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\r\nACGT\r\n+\r\nIIII\r\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, "ACGT", string(rec.Bases))
	assert.Equal(t, "IIII", string(rec.Qual))
}

func TestReadRecordTracksOffsets(t *testing.T) {
	path := writeTemp(t, "r.fastq", "@r1\nAC\n+\nII\n@r2\nGT\n+\nHH\n")
	r, err := NewReader(context.Background(), path)
	require.NoError(t, err)
	defer r.Close()

	rec1, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec1.Offset)

	rec2, err := r.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, int64(len("@r1\nAC\n+\nII\n")), rec2.Offset)
}
