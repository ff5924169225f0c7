// rnadiff runs the full differential expression pipeline over per-sample
// read count files: ingestion, annotation, expression filtering, TMM
// normalization, quasi-likelihood NB modeling of a treatment-vs-control
// contrast with individual of origin held fixed, gene-set enrichment, and
// report rendering.
package main

import (
	"flag"
	"log"
	"strings"

	_ "github.com/kindlab/rnadiff/buildinfo/buildinfoprint"
)

func main() {
	var (
		countFiles   string
		sampleSheet  string
		annotFile    string
		setFiles     string
		outDir       string
		fdrCutoff    float64
		lfcThreshold float64
		topN         int
	)

	flag.StringVar(&countFiles, "counts", "", "Optional comma-separated list of per-sample count files, in sample-sheet order. If empty, the sample sheet's file column is used.")
	flag.StringVar(&sampleSheet, "samples", "", "Sample sheet with header: sample,file,treatment,individual,batch,sex.")
	flag.StringVar(&annotFile, "annot", "", "Gene annotation reference with header: gene_id,symbol,chromosome,numeric_id.")
	flag.StringVar(&setFiles, "sets", "", "Optional comma-separated gene-set collection files (.gmt or .json).")
	flag.StringVar(&outDir, "outdir", "results", "Directory for output tables, plots, and the rendered report.")
	flag.Float64Var(&fdrCutoff, "fdr", 0.05, "FDR cutoff used for significance calls throughout.")
	flag.Float64Var(&lfcThreshold, "lfc", 1.0, "Minimum |log2 fold change| for the threshold (treat) test.")
	flag.IntVar(&topN, "topn", 50, "Number of top genes written to the results table. 0 writes all.")
	flag.Parse()

	if sampleSheet == "" || annotFile == "" {
		flag.PrintDefaults()
		log.Fatalln("Please provide -samples and -annot")
	}

	var files []string
	if countFiles != "" {
		files = strings.Split(countFiles, ",")
	}

	var sets []string
	if setFiles != "" {
		sets = strings.Split(setFiles, ",")
	}

	cfg := runConfig{
		CountFiles:   files,
		SampleSheet:  sampleSheet,
		AnnotFile:    annotFile,
		SetFiles:     sets,
		OutDir:       outDir,
		FDRCutoff:    fdrCutoff,
		LFCThreshold: lfcThreshold,
		TopN:         topN,
	}

	if err := runAll(cfg); err != nil {
		log.Fatalln(err)
	}
}
