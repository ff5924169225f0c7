// counts2matrix merges per-sample count files into a single gene-by-sample
// matrix written as CSV, with meta-rows stripped. Useful for inspecting the
// ingested data outside the pipeline.
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
	var countFiles, sampleSheet, output string

	flag.StringVar(&countFiles, "counts", "", "Comma-delimited list of per-sample count files. Optional when the sample sheet lists them.")
	flag.StringVar(&sampleSheet, "samples", "", "Sample sheet CSV with sample, file, treatment, and individual columns.")
	flag.StringVar(&output, "output", "", "Output CSV path. Defaults to stdout.")
	flag.Parse()

	if sampleSheet == "" {
		flag.PrintDefaults()
		log.Fatalln("Please provide -samples")
	}

	var files []string
	if countFiles != "" {
		files = strings.Split(countFiles, ",")
	}

	if err := run(files, sampleSheet, output); err != nil {
		log.Fatalln(err)
	}

	fmt.Fprintln(os.Stderr, "Completed")
}
