package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvarq/kvarq-go/template"
)

func TestLoadTemplateFileDeclarations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.tsv")
	contents := "# spacers and markers\n" +
		"spacer1\t...NACTT...\n" +
		"rrs\tregion:10-40\n" +
		"katG-rev\tregion:100-160:reverse\n" +
		"rpoB.S450L\tsnp:761155CT\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	specs, err := loadTemplateFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 4)

	assert.Equal(t, template.KindStaticSeq, specs[0].Kind)
	assert.True(t, specs[0].LeftOpen)
	assert.True(t, specs[0].RightOpen)

	assert.Equal(t, template.KindGenomeRegion, specs[1].Kind)
	assert.Equal(t, genomeRef, specs[1].GenomeRef)
	assert.Equal(t, 10, specs[1].Start)
	assert.Equal(t, 40, specs[1].Stop)
	assert.Equal(t, template.Forward, specs[1].Dir)

	assert.Equal(t, template.KindGenomeRegion, specs[2].Kind)
	assert.Equal(t, template.Reverse, specs[2].Dir)

	assert.Equal(t, template.KindSnp, specs[3].Kind)
	assert.Equal(t, 761155, specs[3].Start)
	assert.Equal(t, byte('C'), specs[3].OrigBase)
	assert.Equal(t, byte('T'), specs[3].NewBase)
	assert.True(t, specs[3].IsSnp())
}

func TestParseRegionDeclRejectsMalformed(t *testing.T) {
	for _, text := range []string{"10", "40-10", "0-10", "x-10", "10-y"} {
		_, err := parseRegionDecl("t", text)
		assert.Errorf(t, err, "declaration %q", text)
	}
}

func TestParseSnpDeclRejectsMalformed(t *testing.T) {
	for _, text := range []string{"", "CT", "12XT", "12CX", "0CT", "xCT"} {
		_, err := parseSnpDecl("t", text)
		assert.Errorf(t, err, "declaration %q", text)
	}
}

func TestLoadTemplateFileRejectsConflictingRedeclaration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.tsv")
	contents := "t\tACGT\nt\tACGG\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := loadTemplateFile(path)
	assert.Error(t, err)
}
