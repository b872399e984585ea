package fastq

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverPairFindsSibling(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "sample_1.fastq")
	p2 := filepath.Join(dir, "sample_2.fastq")
	require.NoError(t, os.WriteFile(p1, []byte("@r\nA\n+\nI\n"), 0o600))
	require.NoError(t, os.WriteFile(p2, []byte("@r\nA\n+\nI\n"), 0o600))

	sibling, ok := DiscoverPair(context.Background(), p1)
	assert.True(t, ok)
	assert.Equal(t, p2, sibling)
}

func TestDiscoverPairGzipSibling(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "sample_1.fastq.gz")
	p2 := filepath.Join(dir, "sample_2.fastq.gz")
	require.NoError(t, os.WriteFile(p1, []byte{}, 0o600))
	require.NoError(t, os.WriteFile(p2, []byte{}, 0o600))

	sibling, ok := DiscoverPair(context.Background(), p1)
	assert.True(t, ok)
	assert.Equal(t, p2, sibling)
}

func TestDiscoverPairNoSibling(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "sample_1.fastq")
	require.NoError(t, os.WriteFile(p1, []byte("@r\nA\n+\nI\n"), 0o600))

	_, ok := DiscoverPair(context.Background(), p1)
	assert.False(t, ok)
}

func TestDiscoverPairNotPairNamed(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "sample.fastq")
	require.NoError(t, os.WriteFile(p1, []byte("@r\nA\n+\nI\n"), 0o600))

	_, ok := DiscoverPair(context.Background(), p1)
	assert.False(t, ok)
}
