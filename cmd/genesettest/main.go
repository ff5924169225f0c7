// genesettest reruns the gene set procedures over an existing differential
// expression table, so that new collections can be scored without refitting
// any models.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	_ "github.com/kindlab/rnadiff/buildinfo/buildinfoprint"
)

func main() {
	var resultsFile, setFiles, outDir string
	var fdrCutoff float64

	flag.StringVar(&resultsFile, "results", "", "Differential expression table CSV, as written by the rnadiff tool.")
	flag.StringVar(&setFiles, "sets", "", "Comma-delimited list of gene set collection files (.gmt or .json).")
	flag.StringVar(&outDir, "outdir", "results", "Directory for the output tables.")
	flag.Float64Var(&fdrCutoff, "fdr", 0.05, "FDR cutoff defining the significant gene list.")
	flag.Parse()

	if resultsFile == "" || setFiles == "" {
		flag.PrintDefaults()
		log.Fatalln("Please provide -results and -sets")
	}

	if err := run(resultsFile, strings.Split(setFiles, ","), outDir, fdrCutoff); err != nil {
		log.Fatalln(err)
	}

	fmt.Fprintln(os.Stderr, "Completed")
}
