package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kvarq/kvarq-go/template"
)

// genomeRef is the name every genome-derived template declaration binds
// to; the -genome flag supplies the one reference it resolves against.
const genomeRef = "genome"

// loadTemplateFile reads a tab-separated "<id>\t<declaration>" template
// file, one template per line; blank lines and lines starting with '#' are
// skipped. A declaration is one of:
//
//	<bases>                     a literal sequence, following
//	                            template.ParseStaticSeq's grammar (optional
//	                            "..." open-flank markers, '.'/'N' wildcards)
//	region:<start>-<stop>       bases [start, stop] (1-based, inclusive) of
//	                            the -genome reference; append ":reverse" for
//	                            the reverse strand
//	snp:<pos><orig><new>        the reference around position pos with base
//	                            orig substituted by new, e.g. snp:761155CT
//
// The region: and snp: forms require the -genome flag.
func loadTemplateFile(path string) ([]*template.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kvarqscan: open template file %s: %w", path, err)
	}
	defer f.Close()

	var specs []*template.Spec
	seen := map[string]*template.Spec{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("kvarqscan: %s:%d: expected \"<id>\\t<declaration>\"", path, lineNo)
		}
		id, text := fields[0], fields[1]
		spec, err := parseTemplateDecl(id, text)
		if err != nil {
			return nil, fmt.Errorf("kvarqscan: %s:%d: %w", path, lineNo, err)
		}
		if prev, ok := seen[id]; ok {
			if err := template.MergeConflictCheck(prev, spec); err != nil {
				return nil, fmt.Errorf("kvarqscan: %s:%d: %w", path, lineNo, err)
			}
			continue
		}
		seen[id] = spec
		specs = append(specs, spec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("kvarqscan: read template file %s: %w", path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("kvarqscan: %s: no templates declared", path)
	}
	return specs, nil
}

func parseTemplateDecl(id, text string) (*template.Spec, error) {
	switch {
	case strings.HasPrefix(text, "region:"):
		return parseRegionDecl(id, text[len("region:"):])
	case strings.HasPrefix(text, "snp:"):
		return parseSnpDecl(id, text[len("snp:"):])
	default:
		return template.ParseStaticSeq(id, text)
	}
}

func parseRegionDecl(id, text string) (*template.Spec, error) {
	dir := template.Forward
	if strings.HasSuffix(text, ":reverse") {
		dir = template.Reverse
		text = text[:len(text)-len(":reverse")]
	}
	startText, stopText, ok := strings.Cut(text, "-")
	if !ok {
		return nil, fmt.Errorf("template %q: region declaration must be \"region:<start>-<stop>[:reverse]\"", id)
	}
	start, err := strconv.Atoi(startText)
	if err != nil {
		return nil, fmt.Errorf("template %q: invalid region start %q", id, startText)
	}
	stop, err := strconv.Atoi(stopText)
	if err != nil {
		return nil, fmt.Errorf("template %q: invalid region stop %q", id, stopText)
	}
	if start < 1 || stop < start {
		return nil, fmt.Errorf("template %q: region [%d,%d] is not a 1-based interval", id, start, stop)
	}
	return template.GenomeRegionSpec(id, genomeRef, start, stop, dir), nil
}

func parseSnpDecl(id, text string) (*template.Spec, error) {
	if len(text) < 3 {
		return nil, fmt.Errorf("template %q: snp declaration must be \"snp:<pos><orig><new>\"", id)
	}
	origBase, newBase := text[len(text)-2], text[len(text)-1]
	if !isSnpBase(origBase) || !isSnpBase(newBase) {
		return nil, fmt.Errorf("template %q: snp bases must be A, C, G or T", id)
	}
	pos, err := strconv.Atoi(text[:len(text)-2])
	if err != nil || pos < 1 {
		return nil, fmt.Errorf("template %q: invalid snp position %q", id, text[:len(text)-2])
	}
	return template.SnpSpec(id, genomeRef, pos, newBase, origBase), nil
}

func isSnpBase(b byte) bool {
	switch b {
	case 'A', 'C', 'G', 'T':
		return true
	default:
		return false
	}
}
