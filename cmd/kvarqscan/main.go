/*
kvarqscan scans a FASTQ (or paired FASTQ) file against a set of templates
and persists the resulting per-template coverage as a scanfile.File.
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"time"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/kvarq/kvarq-go/fastq"
	"github.com/kvarq/kvarq-go/kerrors"
	"github.com/kvarq/kvarq-go/scan"
	"github.com/kvarq/kvarq-go/scanfile"
	"github.com/kvarq/kvarq-go/template"
)

const (
	exitOK           = 0
	exitUsage        = 1
	exitFastqFormat  = 2
	exitWouldClobber = 3
)

var (
	templatesPath = flag.String("templates", "", "Path to a tab-separated \"<id>\\t<declaration>\" template file (required); declarations are a literal sequence, \"region:<start>-<stop>[:reverse]\", or \"snp:<pos><orig><new>\"")
	genomePath    = flag.String("genome", "", "Reference FASTA (or flat base) file resolving region:/snp: template declarations")
	outPrefix     = flag.String("out", "kvarqscan", "Output path prefix; the scan result is written to <prefix>.json")
	force         = flag.Bool("force", false, "Overwrite the output file if it already exists")
	threads       = flag.Int("threads", 0, "Worker thread count; 0 = runtime.NumCPU()")
	maxErrors     = flag.Int("errors", scan.DefaultEngineConfig.MaxErrors, "Maximum consecutive mismatches inside a hit's aligned span")
	minOverlap    = flag.Int("minoverlap", scan.DefaultEngineConfig.MinOverlap, "Minimum number of in-template positions a hit must cover")
	minReadLength = flag.Int("minreadlength", scan.DefaultEngineConfig.MinReadLength, "Minimum quality-trimmed run length a read must have")
	quality       = flag.Int("quality", scan.DefaultQuality, "Minimum PHRED score a position must reach to be accepted")
	noReverse     = flag.Bool("no-reverse", false, "Disable matching against each template's reverse complement")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -templates FILE [OPTIONS] fastqpath\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if *templatesPath == "" || flag.NArg() != 1 {
		usage()
		os.Exit(exitUsage)
	}
	path := flag.Arg(0)
	outPath := *outPrefix + ".json"
	if !*force {
		if _, err := os.Stat(outPath); err == nil {
			fmt.Fprintf(os.Stderr, "kvarqscan: %s already exists; pass -force to overwrite\n", outPath)
			os.Exit(exitWouldClobber)
		}
	}

	ctx := vcontext.Background()

	specs, err := loadTemplateFile(*templatesPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	var genome template.GenomeSource
	if *genomePath != "" {
		g, err := template.LoadGenome(ctx, *genomePath, genomeRef)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUsage)
		}
		genome = g
	}
	templates := make([]*template.Template, len(specs))
	for i, spec := range specs {
		if spec.Kind != template.KindStaticSeq && genome == nil {
			fmt.Fprintf(os.Stderr, "kvarqscan: template %q needs a reference; pass -genome\n", spec.ID)
			os.Exit(exitUsage)
		}
		t, err := template.Build(spec, genome, template.DefaultSpacing)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitUsage)
		}
		templates[i] = t
	}

	nThreads := *threads
	if nThreads <= 0 {
		nThreads = runtime.NumCPU()
	}
	cfg := scan.EngineConfig{
		NThreads:      nThreads,
		MaxErrors:     *maxErrors,
		MinReadLength: *minReadLength,
		MinOverlap:    *minOverlap,
		ReverseScan:   !*noReverse,
	}

	enc, err := fastq.DetectEncoding(ctx, path)
	if err != nil {
		reportScanError(err)
	}
	cfg.Azero = enc.Azero
	cfg.Amin = enc.Azero + byte(*quality)

	engine := scan.NewEngine(cfg, templates)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go watchInterrupts(engine, sigCh)

	started := time.Now()
	result, err := engine.Scan(ctx, path)
	signal.Stop(sigCh)
	if err != nil {
		reportScanError(err)
	}
	duration := time.Since(started)
	if result.Cancelled {
		log.Printf("kvarqscan: scan cancelled at %.0f%%; writing partial coverages", result.Stats.Progress()*100)
	}

	files := []string{path}
	sizes := []int64{fileSize(path)}
	if sibling, ok := fastq.DiscoverPair(ctx, path); ok {
		files = append(files, sibling)
		sizes = append(sizes, fileSize(sibling))
	}

	info := scanfile.Info{
		EngineConfig:  cfg,
		Files:         files,
		FileSizes:     sizes,
		ReadLength:    enc.ReadLength,
		RecordsApprox: enc.RecordsApprox,
		ScanDuration:  duration,
		Timestamp:     started,
		EngineVersion: scanfile.Version,
		FlankSpacing:  template.DefaultSpacing,
		TestSuites:    []scanfile.TestSuiteVersion{{Name: filepath.Base(*templatesPath), Version: "local"}},
	}
	out := &scanfile.File{
		Info:      info,
		Coverages: scanfile.BuildCoverages(engine.Index(), engine.Coverages()),
		Hits:      result.Hits,
	}

	w, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	if err := scanfile.Write(w, out); err != nil {
		w.Close()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	if err := w.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	log.Printf("kvarqscan: %d records, %d hits, %d templates, cancelled=%v -> %s",
		result.Stats.RecordsParsed(), len(result.Hits), len(templates), result.Cancelled, outPath)
	os.Exit(exitOK)
}

// watchInterrupts implements the operator cancellation policy: a single
// Ctrl-C prints scan diagnostics, a second one within 2 seconds aborts the
// scan. Every signal is also tallied in the scan's stats.
func watchInterrupts(engine *scan.Engine, sigCh <-chan os.Signal) {
	var last time.Time
	for range sigCh {
		engine.Interrupt()
		now := time.Now()
		if !last.IsZero() && now.Sub(last) <= 2*time.Second {
			log.Printf("kvarqscan: aborting")
			engine.Abort()
		} else if stats := engine.Stats(); stats != nil {
			log.Printf("kvarqscan: %.0f%% scanned, %d interrupts; interrupt again within 2s to abort",
				stats.Progress()*100, stats.Sigints())
		}
		last = now
	}
}

// reportScanError prints err and exits with the FASTQ-format exit code for
// parse and encoding errors, or the generic misuse code otherwise.
func reportScanError(err error) {
	fmt.Fprintln(os.Stderr, err)
	var malformed *kerrors.MalformedRecord
	var truncated *kerrors.Truncated
	var unknown *kerrors.UnknownEncoding
	var ambiguous *kerrors.AmbiguousEncoding
	var empty *kerrors.EmptyInput
	switch {
	case errors.As(err, &malformed), errors.As(err, &truncated),
		errors.As(err, &unknown), errors.As(err, &ambiguous), errors.As(err, &empty):
		os.Exit(exitFastqFormat)
	default:
		os.Exit(exitUsage)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
